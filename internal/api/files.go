package api

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"tolatables/internal/silo"
	"tolatables/internal/source"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// POST /api/tables/:table/_upload — CSV в поле multipart "file".
// При настроенном хранилище исходный файл сохраняется, а его хеш становится read_id.
func (s *Server) uploadCSV(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	hdr, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "multipart file not found (field name 'file')", nil)
		return
	}

	// 1) архив исходника
	var stored *Stored
	if s.blob != nil {
		f, err := hdr.Open()
		if err != nil {
			s.fail(c, err)
			return
		}
		st, err := s.blob.Put(hdr.Filename, f)
		_ = f.Close()
		if err != nil {
			s.log.Error("Failed to store upload", zap.String("file", hdr.Filename), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store error", "details": err.Error()})
			return
		}
		stored = &st
	}

	// 2) разбор CSV
	f, err := hdr.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()
	records, err := source.ReadCSV(f)
	if err != nil {
		badRequest(c, "Invalid CSV", err)
		return
	}

	// 3) метка источника
	readID := strings.TrimSpace(c.Query("read_id"))
	if readID == "" && stored != nil {
		readID = uploadReadID(stored.SHA256)
	}
	if readID == "" {
		readID = silo.NoSource
	}

	res, err := s.eng.Ingest(c.Request.Context(), t.ID, records, readID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "result": res})
		return
	}
	out := gin.H{"result": res, "file_name": safeFileName(hdr.Filename)}
	if stored != nil {
		out["file"] = stored
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/uploads/*key
func (s *Server) downloadUpload(c *gin.Context) {
	if s.blob == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload storage is not configured"})
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	p, err := s.blob.Path(key)
	if err != nil {
		badRequest(c, "Invalid key", err)
		return
	}
	if st, err := os.Stat(p); err != nil || st.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Upload not found"})
		return
	}

	// имя без uuid-префикса
	name := path.Base(key)
	if len(name) > 37 && name[36] == '-' {
		name = name[37:]
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Header("Content-Type", "text/csv")
	c.File(p)
}

// openUpload: чтение сохранённого файла (для повторного приёма).
func (s *Server) openUpload(key string) (io.ReadCloser, error) {
	if s.blob == nil {
		return nil, fmt.Errorf("upload storage is not configured")
	}
	p, err := s.blob.Path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// uploadReadID: read_id загрузки по hex sha256 файла.
func uploadReadID(sum string) string { return "upload:" + sum[:12] }

// POST /api/tables/:table/_reingest/*key — повторно влить ранее загруженный файл.
func (s *Server) reingestUpload(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	f, err := s.openUpload(key)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Upload not found"})
			return
		}
		badRequest(c, "Invalid key", err)
		return
	}
	defer f.Close()
	h := sha256.New()
	tee := io.TeeReader(f, h)
	records, err := source.ReadCSV(tee)
	if err != nil {
		badRequest(c, "Invalid CSV", err)
		return
	}
	if _, err := io.Copy(io.Discard, tee); err != nil {
		s.fail(c, err)
		return
	}
	readID := strings.TrimSpace(c.Query("read_id"))
	if readID == "" {
		readID = uploadReadID(hex.EncodeToString(h.Sum(nil)))
	}
	res, err := s.eng.Ingest(c.Request.Context(), t.ID, records, readID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}
