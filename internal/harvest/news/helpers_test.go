package news

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/storage"
	"github.com/civiclab-mx/observatorio/pkg/ratelimit"
)

func newTestFetcher(t *testing.T, sources ...string) *harvest.Fetcher {
	t.Helper()

	limiter := ratelimit.NewSourceRateLimiter()
	for _, s := range sources {
		limiter.Register(s, 0)
	}
	config := harvest.DefaultFetcherConfig()
	config.MaxRetries = 2
	config.RetryBaseWait = time.Millisecond
	config.RespectRobots = false

	fetcher, err := harvest.NewFetcher(config, limiter, nil)
	require.NoError(t, err)
	return fetcher
}

func newTestCheckpoints(t *testing.T) *storage.Checkpoints {
	t.Helper()
	cp, err := storage.NewCheckpoints(t.TempDir())
	require.NoError(t, err)
	return cp
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
