package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hasangilak/vision-pdf-to-epub/internal/eventbus"
	"github.com/hasangilak/vision-pdf-to-epub/internal/job"
	"github.com/hasangilak/vision-pdf-to-epub/internal/render"
)

// fakeRenderer renders deterministic placeholder bytes for each page,
// optionally failing specific indices.
type fakeRenderer struct {
	failIndices map[int]bool
}

func (f *fakeRenderer) Render(_ context.Context, req render.Request) ([]byte, error) {
	if f.failIndices[req.Page-1] {
		return nil, fmt.Errorf("simulated render failure for page %d", req.Page)
	}
	return []byte(fmt.Sprintf("jpeg-bytes-for-page-%d", req.Page)), nil
}

// fakeOCR returns deterministic text derived from the image bytes,
// optionally failing specific calls.
type fakeOCR struct {
	failText map[string]bool
}

func (f *fakeOCR) Extract(_ context.Context, image []byte, _ string) (string, error) {
	if f.failText[string(image)] {
		return "", fmt.Errorf("simulated ocr failure")
	}
	return "extracted: " + string(image), nil
}

func setupJob(t *testing.T, totalPages int) (*job.MemoryRegistry, string, string) {
	t.Helper()
	reg := job.NewMemoryRegistry()
	dataDir := t.TempDir()

	id, err := job.NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	j := job.New(id, "book.pdf", "en", "", totalPages)
	if err := reg.Create(j); err != nil {
		t.Fatalf("Create: %v", err)
	}
	reg.SetDataDir(id, dataDir)

	if err := os.WriteFile(filepath.Join(dataDir, "input.pdf"), []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatalf("write input.pdf: %v", err)
	}
	return reg, id, dataDir
}

func TestRunHappyPath(t *testing.T) {
	reg, id, dataDir := setupJob(t, 3)
	o := New(reg, &fakeRenderer{}, &fakeOCR{}, Config{OCRWorkers: 2, RenderQueueSize: 2}, nil)
	bus := eventbus.New(50)

	if err := o.Run(context.Background(), id, bus, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := reg.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != job.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.PagesSucceeded() != 3 {
		t.Fatalf("expected 3 succeeded pages, got %d", got.PagesSucceeded())
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatal("expected both timestamps set")
	}

	epubPath := filepath.Join(dataDir, "output.epub")
	data, err := os.ReadFile(epubPath)
	if err != nil {
		t.Fatalf("expected output.epub to exist: %v", err)
	}
	if _, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("output.epub is not a valid zip: %v", err)
	}

	replay, _, unsub := bus.Subscribe(0)
	defer unsub()
	names := make([]string, len(replay))
	for i, rec := range replay {
		names[i] = rec.Name
	}
	if names[0] != "job.started" {
		t.Fatalf("expected first event job.started, got %v", names)
	}
	if names[len(names)-1] != "job.completed" {
		t.Fatalf("expected last event job.completed, got %v", names)
	}
}

func TestRunPageFailureIsolation(t *testing.T) {
	reg, id, _ := setupJob(t, 3)
	renderer := &fakeRenderer{failIndices: map[int]bool{1: true}}
	o := New(reg, renderer, &fakeOCR{}, Config{OCRWorkers: 2, RenderQueueSize: 2}, nil)
	bus := eventbus.New(50)

	if err := o.Run(context.Background(), id, bus, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := reg.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != job.StatusCompleted {
		t.Fatalf("a single page failure must not fail the job, got %s", got.Status)
	}
	if got.PagesSucceeded() != 2 || got.PagesFailed() != 1 {
		t.Fatalf("expected 2 succeeded / 1 failed, got %d/%d", got.PagesSucceeded(), got.PagesFailed())
	}
	if got.Pages[1].Status != job.PageStatusFailed {
		t.Fatalf("expected page 1 failed, got %s", got.Pages[1].Status)
	}
}

func TestRunMissingPDFFailsJob(t *testing.T) {
	reg, id, dataDir := setupJob(t, 2)
	if err := os.Remove(filepath.Join(dataDir, "input.pdf")); err != nil {
		t.Fatalf("remove input.pdf: %v", err)
	}
	o := New(reg, &fakeRenderer{}, &fakeOCR{}, Config{}, nil)
	bus := eventbus.New(50)

	err := o.Run(context.Background(), id, bus, nil)
	if err == nil {
		t.Fatal("expected an error when input.pdf is missing")
	}

	got, getErr := reg.Get(id)
	if getErr != nil {
		t.Fatalf("Get: %v", getErr)
	}
	if got.Status != job.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestRetryFailedPagesReprocessesOnlyFailures(t *testing.T) {
	reg, id, _ := setupJob(t, 3)
	renderer := &fakeRenderer{failIndices: map[int]bool{2: true}}
	o := New(reg, renderer, &fakeOCR{}, Config{OCRWorkers: 2, RenderQueueSize: 2}, nil)
	bus := eventbus.New(50)

	if err := o.Run(context.Background(), id, bus, nil); err != nil {
		t.Fatalf("initial Run: %v", err)
	}
	got, _ := reg.Get(id)
	if got.PagesFailed() != 1 {
		t.Fatalf("expected 1 failed page before retry, got %d", got.PagesFailed())
	}

	// Fix the renderer so the retry succeeds, then retry.
	renderer.failIndices = nil
	retryBus := eventbus.New(50)
	retrying, err := RetryFailedPages(context.Background(), o, id, retryBus)
	if err != nil {
		t.Fatalf("RetryFailedPages: %v", err)
	}
	if len(retrying) != 1 || retrying[0] != 2 {
		t.Fatalf("expected retry to target page 2, got %v", retrying)
	}

	// RetryFailedPages runs the pipeline in a background goroutine; give it
	// a moment to finish against the fake (in-memory, no real I/O latency).
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := reg.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if j.IsTerminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	final, err := reg.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != job.StatusCompleted {
		t.Fatalf("expected completed after retry, got %s", final.Status)
	}
	if final.PagesFailed() != 0 || final.PagesSucceeded() != 3 {
		t.Fatalf("expected all 3 pages succeeded after retry, got succeeded=%d failed=%d",
			final.PagesSucceeded(), final.PagesFailed())
	}
}

func TestRetryFailedPagesRequiresTerminalJob(t *testing.T) {
	reg, id, _ := setupJob(t, 1)
	o := New(reg, &fakeRenderer{}, &fakeOCR{}, Config{}, nil)
	bus := eventbus.New(10)

	_, err := RetryFailedPages(context.Background(), o, id, bus)
	if err != job.ErrConflictState {
		t.Fatalf("expected ErrConflictState for a non-terminal job, got %v", err)
	}
}

func TestRetryFailedPagesRequiresSourcePDF(t *testing.T) {
	reg, id, dataDir := setupJob(t, 1)
	o := New(reg, &fakeRenderer{}, &fakeOCR{}, Config{}, nil)
	bus := eventbus.New(10)

	if err := o.Run(context.Background(), id, bus, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := os.Remove(filepath.Join(dataDir, "input.pdf")); err != nil {
		t.Fatalf("remove input.pdf: %v", err)
	}

	_, err := RetryFailedPages(context.Background(), o, id, eventbus.New(10))
	if err != job.ErrGone {
		t.Fatalf("expected ErrGone when source pdf evicted, got %v", err)
	}
}
