package api

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the control API on app. cmd/server and the
// handler tests share this wiring.
func RegisterRoutes(app *fiber.App, h *Handlers, storageHandler *StorageHandler) {
	app.Get("/health", h.Health)

	v1 := app.Group("/api/v1")

	docs := v1.Group("/documents")
	docs.Post("/", h.IngestPublication)
	docs.Post("/upload", h.UploadDocument)
	docs.Get(":id", h.GetDocument)
	docs.Get("/", h.ListDocuments)

	ingestion := v1.Group("/ingestion")
	ingestion.Post("/scheduled", h.CreateScheduledHarvest)
	ingestion.Post("/batch", h.CreateBatchIngestion)

	workflows := v1.Group("/workflows")
	workflows.Get(":id", h.GetWorkflow)

	storage := v1.Group("/storage")
	storage.Get("/stats", storageHandler.GetStorageStats)
	storage.Get("/metrics", storageHandler.GetStorageMetrics)
	storage.Get("/health", storageHandler.GetStorageHealth)
	storage.Delete("/metrics", storageHandler.ClearMetrics)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "Observatorio Legislativo",
			"version": "0.1.0",
			"docs":    "https://github.com/civiclab-mx/observatorio",
		})
	})
}
