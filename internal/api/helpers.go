package api

import (
	"errors"
	"net/http"
	"time"

	"tolatables/internal/silo"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// flatten: строка в «плоском» виде: служебные поля, затем поля строки по порядку.
func flatten(v silo.RowView) silo.Fields {
	var out silo.Fields
	out.Set("id", silo.String(v.ID))
	out.Set("read_id", silo.String(v.SourceID))
	out.Set("create_date", silo.String(v.CreatedAt.Format(time.RFC3339)))
	out.Set("edit_date", silo.String(v.EditedAt.Format(time.RFC3339)))
	for _, k := range v.Fields.Keys() {
		val, _ := v.Fields.Get(k)
		// поле строки не перетирает служебное
		if out.Has(k) {
			out.Set("data."+k, val)
			continue
		}
		out.Set(k, val)
	}
	return out
}

func viewOf(r *silo.Row) silo.RowView {
	return silo.RowView{ID: r.ID, SourceID: r.SourceID, CreatedAt: r.CreatedAt, EditedAt: r.EditedAt, Fields: r.Fields}
}

// statusFor переводит ошибку движка в HTTP-код.
func statusFor(err error) int {
	var (
		dup     *silo.DuplicateColumnError
		coerce  *silo.TypeCoercionError
		op      *silo.UnknownOperationError
		uniqKey *silo.IncompatibleUniqueKeysError
	)
	switch {
	case errors.Is(err, silo.ErrTableNotFound), errors.Is(err, silo.ErrRowNotFound), errors.Is(err, silo.ErrColumnNotFound):
		return http.StatusNotFound
	case errors.As(err, &dup), errors.Is(err, errAmbiguousName):
		return http.StatusConflict
	case errors.As(err, &coerce), errors.As(err, &uniqKey):
		return http.StatusUnprocessableEntity
	case errors.As(err, &op):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= 500 {
		s.log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

// result: ответ пользовательской операции: success 200, danger по ошибке.
func result(c *gin.Context, res silo.Result) {
	if res.OK() {
		c.JSON(http.StatusOK, res)
		return
	}
	code := http.StatusUnprocessableEntity
	if res.Err != nil {
		if sc := statusFor(res.Err); sc != http.StatusInternalServerError {
			code = sc
		}
	}
	c.JSON(code, res)
}

// requestLogger: access-лог запросов через zap.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
