// Package cleanup runs the background TTL sweep that evicts terminal jobs'
// data directories and source PDFs. Grounded on internal/defra/sink.go's
// ticker-driven background goroutine shape (NewSink/Start/ctx+cancel+wg),
// repurposed from write-batching to a periodic directory sweep.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hasangilak/vision-pdf-to-epub/internal/job"
)

// Config configures the cleanup loop.
type Config struct {
	Interval    time.Duration // default 10 minutes
	JobTTL      time.Duration // default 24 hours (jobs/<id>/ removed once completed_at exceeds this)
	PDFTTL      time.Duration // default 1 hour (input.pdf removed once completed_at exceeds this)
	Logger      *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.JobTTL <= 0 {
		c.JobTTL = 24 * time.Hour
	}
	if c.PDFTTL <= 0 {
		c.PDFTTL = 1 * time.Hour
	}
}

// Loop periodically sweeps a Registry for terminal jobs past their TTLs.
type Loop struct {
	registry job.Registry
	cfg      Config
	logger   *slog.Logger
}

// New creates a cleanup Loop.
func New(registry job.Registry, cfg Config) *Loop {
	cfg.applyDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With("component", "cleanup"),
	}
}

// Run blocks until ctx is cancelled, sweeping every cfg.Interval. Per-job
// I/O errors are logged and swallowed so one bad job never stalls the loop.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Loop) sweep() {
	now := time.Now()

	jobDeadline := now.Add(-l.cfg.JobTTL)
	expiredJobs, err := l.registry.ListTerminalOlderThan(jobDeadline)
	if err != nil {
		l.logger.Error("list terminal jobs for job_ttl sweep failed", "error", err)
	}
	for _, id := range expiredJobs {
		if err := l.registry.Delete(id); err != nil {
			l.logger.Error("failed to delete expired job", "job_id", id, "error", err)
			continue
		}
		l.logger.Info("deleted expired job", "job_id", id)
	}

	pdfDeadline := now.Add(-l.cfg.PDFTTL)
	candidatesForPDFOnly, err := l.registry.ListTerminalOlderThan(pdfDeadline)
	if err != nil {
		l.logger.Error("list terminal jobs for pdf_ttl sweep failed", "error", err)
		return
	}
	expiredSet := make(map[string]bool, len(expiredJobs))
	for _, id := range expiredJobs {
		expiredSet[id] = true
	}
	for _, id := range candidatesForPDFOnly {
		if expiredSet[id] {
			continue // already removed entirely by the job_ttl sweep above
		}
		pdfPath := filepath.Join(l.registry.DataDir(id), "input.pdf")
		if err := os.Remove(pdfPath); err != nil && !os.IsNotExist(err) {
			l.logger.Error("failed to remove expired source pdf", "job_id", id, "error", err)
			continue
		}
	}
}
