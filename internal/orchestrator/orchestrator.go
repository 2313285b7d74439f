// Package orchestrator runs the render → OCR → assemble pipeline for one
// job: a single bounded render queue feeding a fixed pool of OCR workers,
// rather than an arbitrary DAG of pools (this pipeline has exactly two
// stages).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hasangilak/vision-pdf-to-epub/internal/assembler"
	"github.com/hasangilak/vision-pdf-to-epub/internal/eventbus"
	"github.com/hasangilak/vision-pdf-to-epub/internal/job"
	"github.com/hasangilak/vision-pdf-to-epub/internal/render"
)

// Config holds the pipeline's tunable parameters, defaulted the way the
// spec names them.
type Config struct {
	RenderQueueSize int // default 4
	OCRWorkers      int // default 2
	PagesPerChapter int // default 20
	DPI             int // default 300
	JPEGQuality     int // default 85
	DefaultPrompt   string
}

func (c *Config) applyDefaults() {
	if c.RenderQueueSize <= 0 {
		c.RenderQueueSize = 4
	}
	if c.OCRWorkers <= 0 {
		c.OCRWorkers = 2
	}
	if c.PagesPerChapter <= 0 {
		c.PagesPerChapter = 20
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = 85
	}
	if c.DefaultPrompt == "" {
		c.DefaultPrompt = "Extract all text from this scanned book page. Preserve paragraph structure. Output only the extracted text, nothing else."
	}
}

// Renderer rasterizes one page. *render.Pool satisfies this; tests use a
// fake to avoid depending on pdftoppm being installed.
type Renderer interface {
	Render(ctx context.Context, req render.Request) ([]byte, error)
}

// OCRClient extracts text from one page image. *ocr.Client satisfies this;
// tests use a fake backed by httptest or an in-memory stub.
type OCRClient interface {
	Extract(ctx context.Context, image []byte, prompt string) (string, error)
}

// Orchestrator runs pipelines against a shared registry, render pool, and
// OCR client. One Orchestrator serves every job; state specific to a single
// run lives in the run's own goroutines and local variables, not on this
// struct, so Run is safe to call concurrently for distinct jobs.
type Orchestrator struct {
	registry   job.Registry
	renderPool Renderer
	ocrClient  OCRClient
	cfg        Config
	logger     *slog.Logger
}

// New creates an Orchestrator.
func New(registry job.Registry, renderPool Renderer, ocrClient OCRClient, cfg Config, logger *slog.Logger) *Orchestrator {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry:   registry,
		renderPool: renderPool,
		ocrClient:  ocrClient,
		cfg:        cfg,
		logger:     logger.With("component", "orchestrator"),
	}
}

type renderedPage struct {
	index int
	data  []byte
	err   error
}

const sentinelIndex = -1

// Run executes the full pipeline for jobID against bus. If pagesToProcess
// is non-nil, only those page indices are rendered and OCR'd (the retry
// path); all other pages' already-persisted text is reused for assembly.
func (o *Orchestrator) Run(ctx context.Context, jobID string, bus *eventbus.Bus, pagesToProcess []int) error {
	j, err := o.registry.Get(jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	if err := o.registry.UpdateAndPersist(jobID, true, func(j *job.Job) error {
		j.Status = job.StatusProcessing
		now := time.Now()
		j.StartedAt = &now
		return nil
	}); err != nil {
		return o.fail(jobID, bus, fmt.Errorf("mark job processing: %w", err))
	}
	bus.Emit("job.started", map[string]any{"total_pages": j.TotalPages, "status": string(job.StatusProcessing)})

	dataDir := o.registry.DataDir(jobID)
	pdfPath := filepath.Join(dataDir, "input.pdf")
	if _, statErr := os.Stat(pdfPath); statErr != nil {
		return o.fail(jobID, bus, fmt.Errorf("source pdf missing: %w", statErr))
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "pages"), 0o755); err != nil {
		return o.fail(jobID, bus, fmt.Errorf("create pages dir: %w", err))
	}

	process := indexSet(pagesToProcess)

	queue := make(chan renderedPage, o.cfg.RenderQueueSize)
	go o.produce(ctx, pdfPath, j.TotalPages, process, queue)

	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(int64(o.cfg.OCRWorkers))
	prompt := j.OCRPrompt
	if prompt == "" {
		prompt = o.cfg.DefaultPrompt
	}

	var firstWorkerErr error
	var mu sync.Mutex
	for i := 0; i < o.cfg.OCRWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rp := range queue {
				if rp.index == sentinelIndex {
					return
				}
				if err := sem.Acquire(ctx, 1); err != nil {
					mu.Lock()
					if firstWorkerErr == nil {
						firstWorkerErr = err
					}
					mu.Unlock()
					continue
				}
				persistErr := o.handlePage(ctx, jobID, dataDir, prompt, j.TotalPages, rp, bus)
				sem.Release(1)
				if persistErr != nil {
					mu.Lock()
					if firstWorkerErr == nil {
						firstWorkerErr = persistErr
					}
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if firstWorkerErr != nil {
		return o.fail(jobID, bus, firstWorkerErr)
	}

	return o.assembleAndComplete(ctx, jobID, dataDir, bus)
}

func indexSet(indices []int) map[int]bool {
	if indices == nil {
		return nil
	}
	set := make(map[int]bool, len(indices))
	for _, idx := range indices {
		set[idx] = true
	}
	return set
}

func (o *Orchestrator) produce(ctx context.Context, pdfPath string, totalPages int, process map[int]bool, queue chan<- renderedPage) {
	for idx := 0; idx < totalPages; idx++ {
		if process != nil && !process[idx] {
			continue
		}
		data, err := o.renderPool.Render(ctx, render.Request{
			PDFPath: pdfPath,
			Page:    idx + 1, // pdftoppm pages are 1-indexed
			DPI:     o.cfg.DPI,
			Quality: o.cfg.JPEGQuality,
		})
		select {
		case queue <- renderedPage{index: idx, data: data, err: err}:
		case <-ctx.Done():
			close(queue)
			return
		}
	}
	for i := 0; i < o.cfg.OCRWorkers; i++ {
		select {
		case queue <- renderedPage{index: sentinelIndex}:
		case <-ctx.Done():
			close(queue)
			return
		}
	}
	close(queue)
}

// handlePage OCRs one rendered page, records its result, and emits
// page.completed. OCR and render failures stay on the page; the returned
// error is non-nil only when the page result could not be persisted.
func (o *Orchestrator) handlePage(ctx context.Context, jobID, dataDir, prompt string, totalPages int, rp renderedPage, bus *eventbus.Bus) error {
	var text string
	var pageErr error

	if rp.err != nil {
		pageErr = rp.err
	} else {
		text, pageErr = o.ocrClient.Extract(ctx, rp.data, prompt)
	}

	status := job.PageStatusSuccess
	errMsg := ""
	if pageErr != nil {
		status = job.PageStatusFailed
		errMsg = pageErr.Error()
	} else {
		textPath := filepath.Join(dataDir, "pages", fmt.Sprintf("%05d.txt", rp.index))
		if writeErr := os.WriteFile(textPath, []byte(text), 0o644); writeErr != nil {
			status = job.PageStatusFailed
			errMsg = fmt.Sprintf("write page text: %v", writeErr)
		}
	}

	err := o.registry.UpdateAndPersist(jobID, false, func(j *job.Job) error {
		p, ok := j.Pages[rp.index]
		if !ok {
			return fmt.Errorf("unknown page index %d", rp.index)
		}
		p.Status = status
		p.Error = errMsg
		if status == job.PageStatusSuccess {
			p.Text = text
		}
		return nil
	})
	if err != nil {
		o.logger.Error("failed to persist page result", "job_id", jobID, "page", rp.index, "error", err)
	}

	payload := map[string]any{"page": rp.index, "total_pages": totalPages, "status": string(status)}
	if status == job.PageStatusSuccess {
		payload["text_preview"] = previewText(text)
	} else {
		payload["error"] = errMsg
	}
	bus.Emit("page.completed", payload)

	if err != nil {
		return fmt.Errorf("persist page %d: %w", rp.index, err)
	}
	return nil
}

// previewText returns the first 200 characters (runes, not bytes) of the
// trimmed text.
func previewText(text string) string {
	trimmed := []rune(strings.TrimSpace(text))
	if len(trimmed) > 200 {
		return string(trimmed[:200])
	}
	return string(trimmed)
}

func (o *Orchestrator) assembleAndComplete(ctx context.Context, jobID, dataDir string, bus *eventbus.Bus) error {
	j, err := o.registry.Get(jobID)
	if err != nil {
		return o.fail(jobID, bus, err)
	}

	bus.Emit("job.assembling", map[string]any{
		"pages_succeeded": j.PagesSucceeded(),
		"pages_failed":    j.PagesFailed(),
	})
	if err := o.registry.UpdateAndPersist(jobID, true, func(j *job.Job) error {
		j.Status = job.StatusAssembling
		return nil
	}); err != nil {
		return o.fail(jobID, bus, err)
	}

	pages, err := loadPages(dataDir, j.TotalPages)
	if err != nil {
		return o.fail(jobID, bus, fmt.Errorf("load page text for assembly: %w", err))
	}

	book := assembler.Book{
		JobID:           jobID,
		Title:           strings.TrimSuffix(j.Filename, filepath.Ext(j.Filename)),
		Language:        j.Language,
		Pages:           pages,
		PagesPerChapter: o.cfg.PagesPerChapter,
	}
	outputPath := filepath.Join(dataDir, "output.epub")
	if err := assembler.Assemble(book, outputPath); err != nil {
		return o.fail(jobID, bus, fmt.Errorf("assemble epub: %w", err))
	}

	var completedAt time.Time
	if err := o.registry.UpdateAndPersist(jobID, true, func(j *job.Job) error {
		j.Status = job.StatusCompleted
		now := time.Now()
		j.CompletedAt = &now
		completedAt = now
		return nil
	}); err != nil {
		return o.fail(jobID, bus, err)
	}

	duration := 0.0
	if j.StartedAt != nil {
		duration = completedAt.Sub(*j.StartedAt).Seconds()
	}
	bus.Emit("job.completed", map[string]any{
		"download_url":    fmt.Sprintf("/api/jobs/%s/result", jobID),
		"duration_seconds": duration,
		"pages_succeeded":  j.PagesSucceeded(),
		"failed_pages":     j.FailedPageIndices(),
	})
	bus.Close()
	return nil
}

func loadPages(dataDir string, totalPages int) ([]assembler.Page, error) {
	pages := make([]assembler.Page, totalPages)
	for idx := 0; idx < totalPages; idx++ {
		path := filepath.Join(dataDir, "pages", fmt.Sprintf("%05d.txt", idx))
		data, err := os.ReadFile(path)
		if err != nil {
			pages[idx] = assembler.Page{Index: idx, OK: false}
			continue
		}
		pages[idx] = assembler.Page{Index: idx, Text: string(data), OK: true}
	}
	return pages, nil
}

func (o *Orchestrator) fail(jobID string, bus *eventbus.Bus, cause error) error {
	o.logger.Error("pipeline failed", "job_id", jobID, "error", cause)
	_ = o.registry.UpdateAndPersist(jobID, true, func(j *job.Job) error {
		j.Status = job.StatusFailed
		j.Error = cause.Error()
		now := time.Now()
		j.CompletedAt = &now
		return nil
	})
	bus.Emit("job.failed", map[string]any{"error": cause.Error()})
	bus.Close()
	return cause
}

// RetryFailedPages resets the given job's failed pages to pending and
// invokes a fresh Run restricted to those indices, per the retry protocol:
// the job must already be terminal and its source PDF must still exist.
// A job with no failed pages is still run, over an empty page set, so the
// lifecycle (job.started through job.completed) is re-emitted on bus and
// the EPUB is reassembled; bus would otherwise never reach a terminal
// event and never close.
func RetryFailedPages(ctx context.Context, o *Orchestrator, jobID string, bus *eventbus.Bus) ([]int, error) {
	j, err := o.registry.Get(jobID)
	if err != nil {
		return nil, err
	}
	if !j.IsTerminal() {
		return nil, job.ErrConflictState
	}
	dataDir := o.registry.DataDir(jobID)
	if _, err := os.Stat(filepath.Join(dataDir, "input.pdf")); err != nil {
		return nil, job.ErrGone
	}

	failed := j.FailedPageIndices()
	sort.Ints(failed)

	err = o.registry.UpdateAndPersist(jobID, true, func(j *job.Job) error {
		for _, idx := range failed {
			p := j.Pages[idx]
			p.Status = job.PageStatusPending
			p.Error = ""
		}
		j.Status = job.StatusProcessing
		j.Error = ""
		j.CompletedAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	go func() {
		if err := o.Run(ctx, jobID, bus, failed); err != nil {
			o.logger.Error("retry run failed", "job_id", jobID, "error", err)
		}
	}()

	return failed, nil
}
