package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// maxRetainedMetrics bounds the raw metric window. Harvest runs record
// one metric per fetch and store, so an unbounded slice would grow for
// days.
const maxRetainedMetrics = 10000

// SimpleMetricsCollector aggregates storage metrics in memory. Stats
// are folded in as metrics arrive; a bounded window of raw metrics is
// kept for inspection.
type SimpleMetricsCollector struct {
	mutex  sync.RWMutex
	recent []StorageMetrics
	stats  map[string]map[string]*OperationStats // backend -> operation
}

// NewSimpleMetricsCollector creates a new simple metrics collector
func NewSimpleMetricsCollector() *SimpleMetricsCollector {
	return &SimpleMetricsCollector{
		recent: make([]StorageMetrics, 0),
		stats:  make(map[string]map[string]*OperationStats),
	}
}

// RecordMetric records a storage operation metric
func (s *SimpleMetricsCollector) RecordMetric(metric StorageMetrics) {
	s.mutex.Lock()

	s.recent = append(s.recent, metric)
	if len(s.recent) > maxRetainedMetrics {
		s.recent = s.recent[len(s.recent)-maxRetainedMetrics:]
	}

	byOperation := s.stats[metric.Backend]
	if byOperation == nil {
		byOperation = make(map[string]*OperationStats)
		s.stats[metric.Backend] = byOperation
	}
	stats := byOperation[metric.OperationType]
	if stats == nil {
		stats = &OperationStats{}
		byOperation[metric.OperationType] = stats
	}
	stats.fold(metric)

	s.mutex.Unlock()

	if metric.Error != nil {
		log.Warn().
			Str("operation", metric.OperationType).
			Str("backend", metric.Backend).
			Int64("duration_ns", metric.Duration).
			Err(metric.Error).
			Msg("Storage operation failed")
	} else {
		log.Debug().
			Str("operation", metric.OperationType).
			Str("backend", metric.Backend).
			Int64("duration_ns", metric.Duration).
			Bool("success", metric.Success).
			Msg("Storage operation metric recorded")
	}
}

// GetMetrics returns a copy of the retained metric window.
func (s *SimpleMetricsCollector) GetMetrics() []StorageMetrics {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]StorageMetrics, len(s.recent))
	copy(result, s.recent)
	return result
}

// GetMetricsSummary returns aggregated stats grouped by backend and
// operation.
func (s *SimpleMetricsCollector) GetMetricsSummary() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	byBackend := make(map[string]map[string]*OperationStats, len(s.stats))
	total := 0
	for backend, operations := range s.stats {
		byBackend[backend] = make(map[string]*OperationStats, len(operations))
		for operation, stats := range operations {
			statsCopy := *stats
			byBackend[backend][operation] = &statsCopy
			total += stats.Count
		}
	}

	return map[string]interface{}{
		"by_backend":       byBackend,
		"total_operations": total,
	}
}

// ClearMetrics clears all collected metrics
func (s *SimpleMetricsCollector) ClearMetrics() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.recent = make([]StorageMetrics, 0)
	s.stats = make(map[string]map[string]*OperationStats)
}

// OperationStats holds statistics for a specific operation type
type OperationStats struct {
	Count         int   `json:"count"`
	SuccessCount  int   `json:"success_count"`
	FailureCount  int   `json:"failure_count"`
	TotalDuration int64 `json:"total_duration_ns"`
	MinDuration   int64 `json:"min_duration_ns"`
	MaxDuration   int64 `json:"max_duration_ns"`
	AvgDuration   int64 `json:"avg_duration_ns"`
}

// fold merges one metric into the running stats.
func (o *OperationStats) fold(metric StorageMetrics) {
	o.Count++
	o.TotalDuration += metric.Duration

	if metric.Success {
		o.SuccessCount++
	} else {
		o.FailureCount++
	}

	if o.Count == 1 || metric.Duration < o.MinDuration {
		o.MinDuration = metric.Duration
	}
	if metric.Duration > o.MaxDuration {
		o.MaxDuration = metric.Duration
	}
	o.AvgDuration = o.TotalDuration / int64(o.Count)
}

// GetSuccessRate returns the success rate as a percentage
func (o *OperationStats) GetSuccessRate() float64 {
	if o.Count == 0 {
		return 0.0
	}
	return float64(o.SuccessCount) / float64(o.Count) * 100.0
}

// GetAvgDurationMs returns the average duration in milliseconds
func (o *OperationStats) GetAvgDurationMs() float64 {
	return float64(o.AvgDuration) / float64(time.Millisecond)
}
