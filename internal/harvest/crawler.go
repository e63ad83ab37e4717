package harvest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// FetchPool fans page downloads out over a bounded set of workers. The
// per-source rate limiter inside the shared Fetcher still paces requests,
// so the pool bounds memory and goroutines, not politeness.
type FetchPool struct {
	fetcher *Fetcher
	config  *PoolConfig

	jobQueue chan *FetchJob
	workers  []*fetchWorker

	metrics   *PoolMetrics
	metricsMu sync.RWMutex
}

// PoolConfig configures fetch pool behavior.
type PoolConfig struct {
	Workers    int           `json:"workers"`
	QueueSize  int           `json:"queue_size"`
	JobTimeout time.Duration `json:"job_timeout"`
}

// DefaultPoolConfig returns the fetch pool defaults.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:    4,
		QueueSize:  256,
		JobTimeout: 2 * time.Minute,
	}
}

// FetchJob is one queued download. A nil Form means GET; otherwise the
// fields are posted as form data. Wait blocks until a worker finishes
// the job and Result or Err is set.
type FetchJob struct {
	ID     string
	Source string
	URL    string
	Form   map[string]string

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	Result *FetchResult
	Err    error

	done chan struct{}
}

// Wait blocks until the job completes or the context is canceled.
func (j *FetchJob) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PoolMetrics tracks fetch pool throughput.
type PoolMetrics struct {
	JobsQueued    int64     `json:"jobs_queued"`
	JobsCompleted int64     `json:"jobs_completed"`
	JobsFailed    int64     `json:"jobs_failed"`
	BytesFetched  int64     `json:"bytes_fetched"`
	LastUpdated   time.Time `json:"last_updated"`
}

type fetchWorker struct {
	id      int
	pool    *FetchPool
	stopCh  chan struct{}
	stopped bool
	mu      sync.Mutex
}

// NewFetchPool creates a fetch pool over the shared fetcher.
func NewFetchPool(fetcher *Fetcher, config *PoolConfig) *FetchPool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	return &FetchPool{
		fetcher:  fetcher,
		config:   config,
		jobQueue: make(chan *FetchJob, config.QueueSize),
		workers:  make([]*fetchWorker, 0, config.Workers),
		metrics:  &PoolMetrics{LastUpdated: time.Now()},
	}
}

// Start launches the workers.
func (p *FetchPool) Start(ctx context.Context) {
	log.Info().
		Int("workers", p.config.Workers).
		Int("queue_size", p.config.QueueSize).
		Msg("Starting fetch pool")

	for i := 0; i < p.config.Workers; i++ {
		worker := &fetchWorker{
			id:     i,
			pool:   p,
			stopCh: make(chan struct{}),
		}
		p.workers = append(p.workers, worker)
		go worker.run(ctx)
	}
}

// Stop stops all workers. Queued jobs that no worker picked up remain
// unfinished; callers waiting on them should use a context with a
// deadline.
func (p *FetchPool) Stop() {
	for _, worker := range p.workers {
		worker.stop()
	}
	log.Info().Msg("Fetch pool stopped")
}

// Submit enqueues a job. It fails fast when the queue is full rather
// than blocking a harvester's control loop.
func (p *FetchPool) Submit(ctx context.Context, job *FetchJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.CreatedAt = time.Now()
	job.done = make(chan struct{})

	select {
	case p.jobQueue <- job:
		p.metricsMu.Lock()
		p.metrics.JobsQueued++
		p.metricsMu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("fetch queue full")
	}
}

// FetchBatch downloads a set of URLs for one source in parallel and
// returns the jobs in input order. Individual failures are carried in
// each job's Err; only queue or context errors abort the batch.
func (p *FetchPool) FetchBatch(ctx context.Context, source string, urls []string) ([]*FetchJob, error) {
	jobs := make([]*FetchJob, 0, len(urls))
	for _, u := range urls {
		job := &FetchJob{Source: source, URL: u}
		if err := p.Submit(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to submit %s: %w", u, err)
		}
		jobs = append(jobs, job)
	}
	for _, job := range jobs {
		if err := job.Wait(ctx); err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return jobs, nil
}

// GetMetrics returns a snapshot of pool throughput.
func (p *FetchPool) GetMetrics() PoolMetrics {
	p.metricsMu.RLock()
	defer p.metricsMu.RUnlock()
	return *p.metrics
}

func (w *fetchWorker) run(ctx context.Context) {
	log.Debug().Int("worker_id", w.id).Msg("Fetch worker started")
	for {
		select {
		case job := <-w.pool.jobQueue:
			if job == nil {
				return
			}
			w.process(ctx, job)
		case <-w.stopCh:
			log.Debug().Int("worker_id", w.id).Msg("Fetch worker stopping")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *fetchWorker) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		close(w.stopCh)
		w.stopped = true
	}
}

func (w *fetchWorker) process(ctx context.Context, job *FetchJob) {
	job.StartedAt = time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, w.pool.config.JobTimeout)
	defer cancel()

	if job.Form != nil {
		job.Result, job.Err = w.pool.fetcher.FetchForm(jobCtx, job.Source, job.URL, job.Form)
	} else {
		job.Result, job.Err = w.pool.fetcher.Fetch(jobCtx, job.Source, job.URL)
	}
	job.CompletedAt = time.Now()

	w.pool.metricsMu.Lock()
	if job.Err != nil {
		w.pool.metrics.JobsFailed++
	} else {
		w.pool.metrics.JobsCompleted++
		w.pool.metrics.BytesFetched += int64(len(job.Result.Body))
	}
	w.pool.metrics.LastUpdated = time.Now()
	w.pool.metricsMu.Unlock()

	if job.Err != nil {
		log.Debug().
			Err(job.Err).
			Int("worker_id", w.id).
			Str("source", job.Source).
			Str("url", job.URL).
			Msg("Fetch job failed")
	}
	close(job.done)
}
