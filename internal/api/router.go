// api/router.go
package api

import (
	"github.com/gin-gonic/gin"
)

func NewRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/meta", s.meta)
		apiGroup.POST("/admin/reload", s.adminReload)
		apiGroup.POST("/merge", s.mergeTables)

		apiGroup.GET("/sources", s.listSources)
		apiGroup.GET("/sources/:source", s.getSource)
		apiGroup.GET("/uploads/*key", s.downloadUpload)

		apiGroup.GET("/tables", s.listTables)
		apiGroup.POST("/tables", s.createTable)
		apiGroup.GET("/tables/:table", s.getTable)
		apiGroup.DELETE("/tables/:table", s.deleteTable)

		// служебные маршруты таблицы
		apiGroup.POST("/tables/:table/_ingest", s.ingest)
		apiGroup.POST("/tables/:table/_upload", s.uploadCSV)
		apiGroup.POST("/tables/:table/_reingest/*key", s.reingestUpload)
		apiGroup.POST("/tables/:table/_pull/:source", s.pullSource)
		apiGroup.GET("/tables/:table/_count", s.countRows)
		apiGroup.GET("/tables/:table/_lint", s.lintTable)

		// каталог
		apiGroup.POST("/tables/:table/columns", s.declareColumns)
		apiGroup.DELETE("/tables/:table/columns", s.deleteColumns)
		apiGroup.POST("/tables/:table/columns/_hide", s.hideColumns(true))
		apiGroup.POST("/tables/:table/columns/_unhide", s.hideColumns(false))
		apiGroup.PUT("/tables/:table/columns/:column/type", s.setColumnType)
		apiGroup.PUT("/tables/:table/unique_fields", s.setUniqueFields)
		apiGroup.POST("/tables/:table/formulas", s.addFormula)
		apiGroup.PUT("/tables/:table/row_filter", s.setRowFilter)

		// строки
		apiGroup.GET("/tables/:table/rows", s.listRows)
		apiGroup.GET("/tables/:table/rows/:id", s.getRow)
		apiGroup.PATCH("/tables/:table/rows/:id", s.patchRow)
		apiGroup.DELETE("/tables/:table/rows/:id", s.deleteRow)
	}
	return r
}

func RunServer(addr string, s *Server) error {
	return NewRouter(s).Run(addr)
}
