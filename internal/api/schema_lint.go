package api

import (
	"fmt"
	"net/http"

	"tolatables/internal/silo"

	"github.com/gin-gonic/gin"
)

type TableIssue struct {
	Table   string `json:"table"`
	Column  string `json:"column"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LintTables проверяет ссылки на необъявленные колонки и известность операций.
func LintTables(tables []*silo.Table) []TableIssue {
	var issues []TableIssue
	add := func(t *silo.Table, col, code, msg string) {
		issues = append(issues, TableIssue{Table: t.Name, Column: col, Code: code, Message: msg})
	}

	for _, t := range tables {
		// уникальные ключи
		for _, k := range t.UniqueKeys {
			if !t.HasColumn(k) {
				add(t, k, "unique_key_undeclared", fmt.Sprintf("unique key %q is not a declared column", k))
			}
		}

		// формулы
		if err := silo.ValidateFormulas(t.Formulas); err != nil {
			add(t, "", "formula_unknown_op", err.Error())
		}
		for _, f := range t.Formulas {
			for _, col := range f.Columns {
				if !t.HasColumn(col) {
					add(t, col, "formula_column_undeclared", fmt.Sprintf("formula %q uses undeclared column %q", f.Name, col))
				}
			}
			if col, ok := t.Column(f.Name); ok && col.Type != silo.TypeFloat {
				add(t, f.Name, "formula_column_type", fmt.Sprintf("formula column %q is declared as %s, not float", f.Name, col.Type))
			}
		}

		// фильтр строк
		if _, err := silo.CompileFilter(t.RowFilter); err != nil {
			add(t, "", "row_filter_invalid", err.Error())
		}
		for _, g := range t.RowFilter {
			for _, col := range g.Columns {
				if !t.HasColumn(col) {
					add(t, col, "row_filter_column_undeclared", fmt.Sprintf("row filter uses undeclared column %q", col))
				}
			}
		}

		// скрытые колонки
		for _, h := range t.Hidden {
			if !t.HasColumn(h) {
				add(t, h, "hidden_column_undeclared", fmt.Sprintf("hidden column %q is not declared", h))
			}
		}
	}
	return issues
}

// GET /api/tables/:table/_lint
func (s *Server) lintTable(c *gin.Context) {
	t, ok := s.table(c)
	if !ok {
		return
	}
	issues := LintTables([]*silo.Table{t})
	if issues == nil {
		issues = []TableIssue{}
	}
	c.JSON(http.StatusOK, gin.H{"table": t.ID, "issues": issues})
}
