package render

import (
	"context"
	"log/slog"
	"runtime"
)

// Pool is a bounded worker pool dedicated to CPU-bound rasterization, kept
// separate from the network-bound OCR worker pool per the concurrency
// model's split between CPU-bound and blocking-I/O work. Grounded on
// internal/jobs/cpu_pool.go's CPUWorkerPool: a single shared queue that all
// workers pull from, giving natural load balancing without a scheduler.
type Pool struct {
	logger  *slog.Logger
	workers int
	queue   chan job
}

type job struct {
	ctx    context.Context
	req    Request
	result chan<- renderResult
}

type renderResult struct {
	data []byte
	err  error
}

// Config configures a new rendering Pool.
type Config struct {
	Logger  *slog.Logger
	Workers int // default runtime.NumCPU()
}

// NewPool creates a Pool. Call Start to begin processing and Close to stop.
func NewPool(cfg Config) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		logger:  logger.With("component", "render_pool", "workers", workers),
		workers: workers,
		queue:   make(chan job, workers*4),
	}
}

// Start launches the pool's worker goroutines. Workers run until ctx is
// cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			data, err := Render(j.ctx, j.req)
			j.result <- renderResult{data: data, err: err}
		}
	}
}

// Render submits req to the pool and blocks until a worker completes it or
// ctx is cancelled.
func (p *Pool) Render(ctx context.Context, req Request) ([]byte, error) {
	resultCh := make(chan renderResult, 1)
	select {
	case p.queue <- job{ctx: ctx, req: req, result: resultCh}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-resultCh:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new work. It does not wait for in-flight jobs;
// callers should cancel the context passed to Start and drain via their own
// WaitGroup if needed.
func (p *Pool) Close() {
	close(p.queue)
}
