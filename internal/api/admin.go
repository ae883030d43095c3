package api

import (
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"tolatables/internal/dsl"
	"tolatables/internal/reference"
	"tolatables/internal/silo"

	"github.com/gin-gonic/gin"
)

type reloadReq struct {
	TablesDir  string `json:"tables_dir"`  // директория с декларациями таблиц
	SourcesDir string `json:"sources_dir"` // директория с описаниями источников
}

// POST /api/admin/reload — перечитать декларации таблиц и источники.
func (s *Server) adminReload(c *gin.Context) {
	var req reloadReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
	}

	tablesDir := strings.TrimSpace(req.TablesDir)
	if tablesDir == "" {
		tablesDir = s.tablesDir
	}
	sourcesDir := strings.TrimSpace(req.SourcesDir)
	if sourcesDir == "" {
		sourcesDir = s.sourcesDir
	}

	// 1) читаем декларации и источники
	var decls []*dsl.TableDecl
	if tablesDir != "" {
		d, err := dsl.LoadAllTables(tablesDir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "DSL load error", "details": err.Error()})
			return
		}
		decls = d
	}
	newSources := map[string]reference.Source{}
	if sourcesDir != "" {
		m, err := reference.LoadSources(sourcesDir)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Source load error", "details": err.Error()})
			return
		default:
			newSources = m
		}
	}

	// 2) линтер по декларациям до записи
	tables := make([]*silo.Table, 0, len(decls))
	for _, d := range decls {
		tables = append(tables, d.ToTable(s.owner))
	}
	if issues := LintTables(tables); len(issues) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "declarations have blocking issues",
			"issues":     issues,
			"hint":       "fix declarations and retry",
			"tablesDir":  tablesDir,
			"sourcesDir": sourcesDir,
		})
		return
	}

	// 3) создаём недостающие таблицы
	created, err := dsl.Seed(c.Request.Context(), s.eng, decls, s.owner, s.log)
	if err != nil {
		s.fail(c, err)
		return
	}

	// 4) атомарная замена источников под write-lock
	s.mu.Lock()
	s.sources = newSources
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"tablesDir":  tablesDir,
		"sourcesDir": sourcesDir,
		"declared":   len(decls),
		"created":    created,
		"sources":    len(newSources),
	})
}
