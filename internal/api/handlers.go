package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"tolatables/internal/silo"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// tableView: таблица плюс вычисленный видимый набор колонок.
type tableView struct {
	*silo.Table
	Visible []string `json:"visible_columns"`
}

func viewTable(t *silo.Table) tableView {
	return tableView{Table: t, Visible: t.ListVisible()}
}

// table: общий разбор параметра :table; при ошибке ответ уже записан.
func (s *Server) table(c *gin.Context) (*silo.Table, bool) {
	t, err := s.resolveTable(c.Request.Context(), c.Param("table"), c.Query("owner"))
	if err != nil {
		if errors.Is(err, silo.ErrTableNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Table not found"})
			return nil, false
		}
		s.fail(c, err)
		return nil, false
	}
	return t, true
}

// GET /api/tables?owner=
func (s *Server) listTables(c *gin.Context) {
	tables, err := s.eng.ListTables(c.Request.Context(), c.Query("owner"))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]tableView, 0, len(tables))
	for _, t := range tables {
		out = append(out, viewTable(t))
	}
	c.Header("X-Total-Count", strconv.Itoa(len(out)))
	c.JSON(http.StatusOK, out)
}

type createTableReq struct {
	Name         string               `json:"name"`
	Owner        string               `json:"owner"`
	Description  string               `json:"description"`
	Columns      []silo.Column        `json:"columns"`
	UniqueFields []string             `json:"unique_fields"`
	Formulas     []silo.FormulaColumn `json:"formula_columns"`
	RowFilter    []silo.FilterGroup   `json:"row_filter"`
}

// POST /api/tables
func (s *Server) createTable(c *gin.Context) {
	var req createTableReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		badRequest(c, "name is required", nil)
		return
	}
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		owner = s.owner
	}

	// 1) каталог колонок с нормализованными именами
	t := &silo.Table{Owner: owner, Name: strings.TrimSpace(req.Name), Description: req.Description, RowFilter: req.RowFilter}
	for _, col := range req.Columns {
		name := silo.NormalizeKey(strings.TrimSpace(col.Name))
		if name == "" {
			continue
		}
		typ := col.Type
		if typ == "" {
			typ = silo.TypeString
		}
		if !typ.Valid() {
			badRequest(c, "unknown column type", errors.New(string(col.Type)))
			return
		}
		if !t.HasColumn(name) {
			t.Columns = append(t.Columns, silo.Column{Name: name, Type: typ})
		}
	}
	if err := silo.ValidateFormulas(req.Formulas); err != nil {
		badRequest(c, "Invalid formula", err)
		return
	}

	ctx := c.Request.Context()
	created, err := s.eng.CreateTable(ctx, t)
	if err != nil {
		s.fail(c, err)
		return
	}

	// 2) ключи и формулы — через движок, чтобы прошли его проверки
	if len(req.UniqueFields) > 0 {
		if created, err = s.eng.SetUniqueKeys(ctx, created.ID, req.UniqueFields); err != nil {
			s.fail(c, err)
			return
		}
	}
	for _, fc := range req.Formulas {
		if created, err = s.eng.AddFormulaColumn(ctx, created.ID, fc); err != nil {
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, viewTable(created))
}

// GET /api/tables/:table
func (s *Server) getTable(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewTable(t))
}

// DELETE /api/tables/:table
func (s *Server) deleteTable(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	if err := s.eng.DeleteTable(c.Request.Context(), t.ID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/tables/:table/_ingest?read_id=
// Тело — массив записей или одна запись; порядок ключей сохраняется.
func (s *Server) ingest(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	doc, err := silo.DecodeJSON(c.Request.Body)
	if err != nil {
		badRequest(c, "Invalid JSON", err)
		return
	}
	var records []any
	switch v := doc.(type) {
	case []any:
		records = v
	case silo.Object:
		records = []any{v}
	default:
		badRequest(c, "body must be a JSON array or object", nil)
		return
	}
	res, err := s.eng.Ingest(c.Request.Context(), t.ID, records, strings.TrimSpace(c.Query("read_id")))
	if err != nil {
		s.log.Warn("Ingest stopped", zap.String("table", t.ID), zap.Int("processed", res.Processed), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/tables/:table/rows?_limit=&_offset=&_sort=&filter=
func (s *Server) listRows(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	q, err := parseListParams(c.Request.URL.Query())
	if err != nil {
		badRequest(c, "Invalid query", err)
		return
	}
	views, total, err := s.eng.QueryRows(c.Request.Context(), t.ID, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]silo.Fields, 0, len(views))
	for _, v := range views {
		out = append(out, flatten(v))
	}
	c.Header("X-Total-Count", strconv.Itoa(total))
	c.JSON(http.StatusOK, out)
}

// GET /api/tables/:table/_count?filter=
func (s *Server) countRows(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	q, err := parseListParams(c.Request.URL.Query())
	if err != nil {
		badRequest(c, "Invalid query", err)
		return
	}
	n, err := s.eng.CountRows(c.Request.Context(), t.ID, q.Filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": n})
}

// GET /api/tables/:table/rows/:id
func (s *Server) getRow(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	r, err := s.eng.GetRow(c.Request.Context(), t.ID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, flatten(viewOf(r)))
}

// PATCH /api/tables/:table/rows/:id
func (s *Server) patchRow(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	doc, err := silo.DecodeJSON(c.Request.Body)
	if err != nil {
		badRequest(c, "Invalid JSON", err)
		return
	}
	if _, isObj := doc.(silo.Object); !isObj {
		badRequest(c, "body must be a JSON object", nil)
		return
	}
	r, err := s.eng.UpdateRow(c.Request.Context(), t.ID, c.Param("id"), doc)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, flatten(viewOf(r)))
}

// DELETE /api/tables/:table/rows/:id
func (s *Server) deleteRow(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	if err := s.eng.DeleteRow(c.Request.Context(), t.ID, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
