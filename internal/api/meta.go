package api

import (
	"net/http"

	"tolatables/internal/reference"
	"tolatables/internal/silo"

	"github.com/gin-gonic/gin"
)

// ===== META =====

type metaInfo struct {
	ColumnTypes       []silo.ColumnType `json:"column_types"`
	FormulaOperations []string          `json:"formula_operations"`
	FilterLogic       []string          `json:"filter_logic"`
	FilterOperations  []string          `json:"filter_operations"`
	MergeTypes        []string          `json:"merge_types"`
	MergeModes        []string          `json:"merge_modes"`
	SourceKinds       []reference.Kind  `json:"source_kinds"`
	ReservedColumns   []string          `json:"reserved_columns"`
}

// GET /api/meta — справочник допустимых значений для клиентов
func (s *Server) meta(c *gin.Context) {
	c.JSON(http.StatusOK, metaInfo{
		ColumnTypes:       []silo.ColumnType{silo.TypeString, silo.TypeInt, silo.TypeFloat, silo.TypeBool, silo.TypeDate, silo.TypeDatetime},
		FormulaOperations: silo.FormulaOperations(),
		FilterLogic:       []string{silo.LogicAnd, silo.LogicOr, silo.LogicBlankChar},
		FilterOperations:  []string{silo.OpEmpty, silo.OpNotEmpty, silo.OpEq, silo.OpNeq},
		MergeTypes:        []string{silo.ReduceSum, silo.ReduceAvg, silo.ReduceJoin},
		MergeModes:        []string{silo.ModeMerge, silo.ModeAppend},
		SourceKinds:       []reference.Kind{reference.KindCSV, reference.KindJSON, reference.KindCommCare, reference.KindONA, reference.KindGSheet},
		ReservedColumns:   []string{"user_assigned_id", "silo_id", "read_id", "created_date", "editted_date"},
	})
}
