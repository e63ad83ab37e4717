package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// SourceRateLimiter spaces requests per collection source so the
// harvesters stay polite with government and newspaper servers.
type SourceRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*SourceLimiter
}

// SourceLimiter tracks request pacing for a specific source.
type SourceLimiter struct {
	name            string
	minInterval     time.Duration
	jitterFraction  float64
	lastRequestTime time.Time
	backoffUntil    time.Time
	requestCount    int64
	errorCount      int64
}

// NewSourceRateLimiter creates a rate limiter preloaded with the sites
// the observatory collects from. The Senate site gets the longest
// interval; the newspapers with JSON APIs tolerate a faster pace than
// the ones we scrape page by page.
func NewSourceRateLimiter() *SourceRateLimiter {
	return &SourceRateLimiter{
		limiters: map[string]*SourceLimiter{
			"gaceta": {
				name:           "gaceta",
				minInterval:    3 * time.Second,
				jitterFraction: 0.5,
			},
			"jornada": {
				name:           "jornada",
				minInterval:    2 * time.Second,
				jitterFraction: 0.25,
			},
			"proceso": {
				name:           "proceso",
				minInterval:    2 * time.Second,
				jitterFraction: 0.25,
			},
			"economista": {
				name:           "economista",
				minInterval:    2 * time.Second,
				jitterFraction: 0.25,
			},
			"financiero": {
				name:           "financiero",
				minInterval:    1 * time.Second,
				jitterFraction: 0.25,
			},
			"animalpolitico": {
				name:           "animalpolitico",
				minInterval:    1 * time.Second,
				jitterFraction: 0.25,
			},
		},
	}
}

// Register adds or replaces a source with the given minimum interval.
// Registered sources get no jitter, which keeps test timing exact.
func (r *SourceRateLimiter) Register(source string, minInterval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.limiters[source] = &SourceLimiter{
		name:        source,
		minInterval: minInterval,
	}
}

// RaiseInterval lifts a source's minimum interval to at least the given
// duration. Used to honor robots.txt crawl delays that exceed our own
// pacing. Lower values are ignored; unknown sources are registered.
func (r *SourceRateLimiter) RaiseInterval(source string, minInterval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, exists := r.limiters[source]
	if !exists {
		r.limiters[source] = &SourceLimiter{
			name:        source,
			minInterval: minInterval,
		}
		return
	}
	if minInterval > limiter.minInterval {
		limiter.minInterval = minInterval
	}
}

// WaitForSource blocks until it's safe to make a request to the source.
func (r *SourceRateLimiter) WaitForSource(ctx context.Context, source string) error {
	r.mu.Lock()
	limiter, exists := r.limiters[source]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("unknown source: %s", source)
	}

	now := time.Now()

	// Check if we're in backoff
	if now.Before(limiter.backoffUntil) {
		waitTime := limiter.backoffUntil.Sub(now)
		r.mu.Unlock()

		select {
		case <-time.After(waitTime):
			return r.WaitForSource(ctx, source) // Retry after backoff
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timeSinceLastRequest := now.Sub(limiter.lastRequestTime)

	// If not enough time has passed, wait out the interval plus a
	// random slice of it so request timing never looks mechanical.
	if timeSinceLastRequest < limiter.minInterval {
		waitTime := limiter.minInterval - timeSinceLastRequest
		waitTime += time.Duration(float64(limiter.minInterval) * limiter.jitterFraction * rand.Float64())
		r.mu.Unlock()

		select {
		case <-time.After(waitTime):
			r.mu.Lock()
			limiter.lastRequestTime = time.Now()
			limiter.requestCount++
			r.mu.Unlock()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	limiter.lastRequestTime = now
	limiter.requestCount++
	r.mu.Unlock()
	return nil
}

// RecordError records a failed request and triggers backoff once a
// source has failed repeatedly.
func (r *SourceRateLimiter) RecordError(source string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, exists := r.limiters[source]
	if !exists {
		return
	}

	limiter.errorCount++

	if limiter.errorCount > 3 {
		backoffDuration := time.Duration(limiter.errorCount) * 30 * time.Second
		if backoffDuration > 5*time.Minute {
			backoffDuration = 5 * time.Minute
		}
		limiter.backoffUntil = time.Now().Add(backoffDuration)
	}
}

// RecordSuccess resets the error count for a source.
func (r *SourceRateLimiter) RecordSuccess(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, exists := r.limiters[source]
	if exists {
		limiter.errorCount = 0
	}
}

// GetStats returns statistics for all sources.
func (r *SourceRateLimiter) GetStats() map[string]SourceStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make(map[string]SourceStats)
	for name, limiter := range r.limiters {
		stats[name] = SourceStats{
			RequestCount:    limiter.requestCount,
			ErrorCount:      limiter.errorCount,
			LastRequestTime: limiter.lastRequestTime,
			InBackoff:       time.Now().Before(limiter.backoffUntil),
			BackoffUntil:    limiter.backoffUntil,
		}
	}
	return stats
}

// SourceStats contains statistics for a source.
type SourceStats struct {
	RequestCount    int64
	ErrorCount      int64
	LastRequestTime time.Time
	InBackoff       bool
	BackoffUntil    time.Time
}

// CollectorConfig carries the identification and retry settings every
// harvester shares.
type CollectorConfig struct {
	UserAgent      string
	ContactEmail   string
	MaxRetries     int
	RequestTimeout time.Duration
}

// DefaultCollectorConfig returns the collection defaults used by the
// harvest binaries.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		UserAgent:      "ObservatorioCivico/1.0 (+https://github.com/civiclab-mx/observatorio; contacto@civiclab.mx)",
		ContactEmail:   "contacto@civiclab.mx",
		MaxRetries:     5,
		RequestTimeout: 30 * time.Second,
	}
}
