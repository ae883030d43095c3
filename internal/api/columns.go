package api

import (
	"errors"
	"net/http"
	"strings"

	"tolatables/internal/silo"

	"github.com/gin-gonic/gin"
)

type columnsReq struct {
	Columns []silo.Column `json:"columns"`
}

// namesReq принимает колонки строками: {"columns": ["a", "b"]}.
type namesReq struct {
	Columns []string `json:"columns"`
	Strip   bool     `json:"strip"`
}

func normalizedNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, n := range in {
		if n = silo.NormalizeKey(strings.TrimSpace(n)); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// normalizedFilter: колонки групп фильтра как у имён колонок; BLANKCHAR не трогается.
func normalizedFilter(groups []silo.FilterGroup) []silo.FilterGroup {
	for i := range groups {
		if groups[i].Columns != nil {
			groups[i].Columns = normalizedNames(groups[i].Columns)
		}
	}
	return groups
}

// POST /api/tables/:table/columns
func (s *Server) declareColumns(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	var req columnsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON", err)
		return
	}
	names := make([]string, 0, len(req.Columns))
	types := make(map[string]silo.ColumnType, len(req.Columns))
	for _, col := range req.Columns {
		name := silo.NormalizeKey(strings.TrimSpace(col.Name))
		if name == "" {
			continue
		}
		if col.Type != "" && !col.Type.Valid() {
			badRequest(c, "unknown column type", errors.New(string(col.Type)))
			return
		}
		names = append(names, name)
		if col.Type != "" {
			types[name] = col.Type
		}
	}
	added, err := s.eng.DeclareColumns(c.Request.Context(), t.ID, names, types)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// DELETE /api/tables/:table/columns {"columns": [...], "strip": true}
func (s *Server) deleteColumns(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	var req namesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON", err)
		return
	}
	updated, err := s.eng.DeleteColumns(c.Request.Context(), t.ID, normalizedNames(req.Columns), req.Strip)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTable(updated))
}

// POST /api/tables/:table/columns/_hide и _unhide
func (s *Server) hideColumns(hide bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := s.table(c)
		if !ok {
			return
		}
		var req namesReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid JSON", err)
			return
		}
		apply := s.eng.UnhideColumns
		if hide {
			apply = s.eng.HideColumns
		}
		updated, err := apply(c.Request.Context(), t.ID, normalizedNames(req.Columns))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, viewTable(updated))
	}
}

// PUT /api/tables/:table/columns/:column/type {"type": "int"}
func (s *Server) setColumnType(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	var req struct {
		Type silo.ColumnType `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON", err)
		return
	}
	if !req.Type.Valid() {
		badRequest(c, "unknown column type", errors.New(string(req.Type)))
		return
	}
	column := silo.NormalizeKey(strings.TrimSpace(c.Param("column")))
	result(c, s.eng.SetColumnType(c.Request.Context(), t.ID, column, req.Type))
}

// PUT /api/tables/:table/unique_fields {"unique_fields": [...]}
func (s *Server) setUniqueFields(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	var req struct {
		UniqueFields []string `json:"unique_fields"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON", err)
		return
	}
	updated, err := s.eng.SetUniqueKeys(c.Request.Context(), t.ID, req.UniqueFields)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTable(updated))
}

// POST /api/tables/:table/formulas
func (s *Server) addFormula(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	var fc silo.FormulaColumn
	if err := c.ShouldBindJSON(&fc); err != nil {
		badRequest(c, "Invalid JSON", err)
		return
	}
	fc.Columns = normalizedNames(fc.Columns)
	fc.Name = silo.NormalizeKey(strings.TrimSpace(fc.Name))
	updated, err := s.eng.AddFormulaColumn(c.Request.Context(), t.ID, fc)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTable(updated))
}

// PUT /api/tables/:table/row_filter — тело: список групп фильтра.
func (s *Server) setRowFilter(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	groups := []silo.FilterGroup{}
	if err := c.ShouldBindJSON(&groups); err != nil {
		badRequest(c, "Invalid JSON", err)
		return
	}
	updated, err := s.eng.SetRowFilter(c.Request.Context(), t.ID, normalizedFilter(groups))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewTable(updated))
}
