package api

import (
	"net/http"
	"strings"

	"tolatables/internal/silo"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type mergeReq struct {
	Mode     string            `json:"mode"` // merge | append
	Left     string            `json:"left"`
	Right    string            `json:"right"`
	Dest     string            `json:"dest"`
	DestName string            `json:"dest_name"` // создать новую таблицу назначения
	Mapping  silo.MergeMapping `json:"mapping"`
}

// POST /api/merge
func (s *Server) mergeTables(c *gin.Context) {
	var req mergeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON", err)
		return
	}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = silo.ModeMerge
	}
	if mode != silo.ModeMerge && mode != silo.ModeAppend {
		badRequest(c, "mode must be merge or append", nil)
		return
	}
	ctx := c.Request.Context()
	owner := c.Query("owner")

	// 1) источники
	left, err := s.resolveTable(ctx, req.Left, owner)
	if err != nil {
		s.fail(c, err)
		return
	}
	right, err := s.resolveTable(ctx, req.Right, owner)
	if err != nil {
		s.fail(c, err)
		return
	}

	// 2) назначение: существующая или новая таблица
	var dest *silo.Table
	created := false
	switch {
	case strings.TrimSpace(req.Dest) != "":
		if dest, err = s.resolveTable(ctx, req.Dest, owner); err != nil {
			s.fail(c, err)
			return
		}
	case strings.TrimSpace(req.DestName) != "":
		dest, err = s.eng.CreateTable(ctx, &silo.Table{Owner: left.Owner, Name: strings.TrimSpace(req.DestName)})
		if err != nil {
			s.fail(c, err)
			return
		}
		created = true
	default:
		badRequest(c, "dest or dest_name is required", nil)
		return
	}

	// 3) операция
	var res silo.Result
	if mode == silo.ModeAppend {
		res = s.eng.AppendTables(ctx, req.Mapping, left.ID, right.ID, dest.ID)
	} else {
		res = s.eng.MergeTables(ctx, req.Mapping, left.ID, right.ID, dest.ID)
	}

	// новую таблицу после неудачи не оставляем
	if !res.OK() && created {
		if err := s.eng.DeleteTable(ctx, dest.ID); err != nil {
			s.log.Error("Failed to drop merge destination", zap.String("table", dest.ID), zap.Error(err))
		}
	}
	if res.OK() {
		c.JSON(http.StatusOK, gin.H{"status": res.Status, "message": res.Message, "dest": dest.ID})
		return
	}
	result(c, res)
}
