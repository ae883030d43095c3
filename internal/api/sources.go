package api

import (
	"errors"
	"net/http"

	"tolatables/internal/source"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/sources
func (s *Server) listSources(c *gin.Context) {
	c.JSON(http.StatusOK, s.sourceList())
}

// GET /api/sources/:source
func (s *Server) getSource(c *gin.Context) {
	src, ok := s.source(c.Param("source"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}
	c.JSON(http.StatusOK, src)
}

// POST /api/tables/:table/_pull/:source — скачать записи источника и влить в таблицу.
func (s *Server) pullSource(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	src, ok := s.source(c.Param("source"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	records, err := s.fetch.Records(c.Request.Context(), src)
	if err != nil {
		s.log.Warn("Source fetch failed", zap.String("source", src.Name), zap.String("table", t.ID), zap.Error(err))
		code := http.StatusBadGateway
		var se *source.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			code = http.StatusNotFound
		}
		c.JSON(code, gin.H{"error": "source fetch failed", "details": err.Error()})
		return
	}

	res, err := s.eng.Ingest(c.Request.Context(), t.ID, records, src.ID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "result": res})
		return
	}
	s.log.Info("Source pulled", zap.String("source", src.Name), zap.String("table", t.ID), zap.Int("records", len(records)))
	c.JSON(http.StatusOK, res)
}
