package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/civiclab-mx/observatorio/internal/storage"
)

// StorageHandler exposes archive monitoring endpoints: backend stats,
// operation metrics, and health.
type StorageHandler struct {
	hybridStorage *storage.HybridStorage
	metrics       *storage.SimpleMetricsCollector
}

func NewStorageHandler(hybridStorage *storage.HybridStorage, metrics *storage.SimpleMetricsCollector) *StorageHandler {
	return &StorageHandler{
		hybridStorage: hybridStorage,
		metrics:       metrics,
	}
}

// GetStorageStats reports backend state plus pipeline event counters
// when an event bus is attached.
func (h *StorageHandler) GetStorageStats(c *fiber.Ctx) error {
	stats := h.hybridStorage.GetStats()
	response := fiber.Map{
		"storage_stats": stats,
	}
	if bus := h.hybridStorage.GetEventBus(); bus != nil {
		response["event_stats"] = bus.GetStats()
	}
	return c.JSON(response)
}

// GetStorageMetrics returns per-operation latency and error summaries.
func (h *StorageHandler) GetStorageMetrics(c *fiber.Ctx) error {
	summary := h.metrics.GetMetricsSummary()
	return c.JSON(fiber.Map{
		"metrics_summary":  summary,
		"total_operations": len(h.metrics.GetMetrics()),
	})
}

// GetStorageHealth checks both backends and answers 503 when either
// fails.
func (h *StorageHandler) GetStorageHealth(c *fiber.Ctx) error {
	if err := h.hybridStorage.Health(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"healthy": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"healthy": true,
		"status":  "All storage backends are healthy",
	})
}

// ClearMetrics drops collected metrics. Intended for tests and load
// experiments.
func (h *StorageHandler) ClearMetrics(c *fiber.Ctx) error {
	h.metrics.ClearMetrics()
	return c.JSON(fiber.Map{
		"message": "Metrics cleared successfully",
	})
}
