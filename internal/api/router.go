package api

import (
	_ "go-star-pipeline/internal/api/docs"
	"go-star-pipeline/internal/api/handler"
	"go-star-pipeline/pkg/router"

	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Star Schema Pipeline API
// @version 1.0
// @description Trigger and inspect runs of the star-schema sample DAG and read the warehouse tables.
// @BasePath /api/v1
func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.GET("/api/v1/health", h.Health)

	r.POST("/api/v1/dags/*/runs", h.TriggerRun)
	r.GET("/api/v1/dags/*/runs", h.ListRuns)
	r.GET("/api/v1/runs/*", h.GetRun)

	r.GET("/api/v1/warehouse", h.GetWarehouse)
	r.GET("/api/v1/warehouse/people", h.ListPeople)
	r.GET("/api/v1/warehouse/purchases", h.ListPurchases)

	r.GET("/swagger/*", router.HandlerFunc(httpSwagger.WrapHandler))
}
