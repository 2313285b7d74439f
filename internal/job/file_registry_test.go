package job

import (
	"os"
	"testing"
	"time"
)

func TestFileRegistryCreateGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRegistry(FileRegistryConfig{DataRoot: dir})
	if err != nil {
		t.Fatalf("NewFileRegistry: %v", err)
	}
	defer r.Close()

	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	j := New(id, "book.pdf", "fa", "", 3)
	if err := r.Create(j); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TotalPages != 3 || got.Status != StatusPending {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if len(got.Pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(got.Pages))
	}
}

func TestFileRegistryUpdateAndPersistFlush(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRegistry(FileRegistryConfig{DataRoot: dir})
	if err != nil {
		t.Fatalf("NewFileRegistry: %v", err)
	}
	defer r.Close()

	id, _ := NewID()
	j := New(id, "book.pdf", "en", "", 1)
	if err := r.Create(j); err != nil {
		t.Fatalf("Create: %v", err)
	}

	err = r.UpdateAndPersist(id, true, func(job *Job) error {
		job.Status = StatusProcessing
		now := time.Now()
		job.StartedAt = &now
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateAndPersist: %v", err)
	}

	// Reload from disk into a fresh registry to confirm the flush actually hit disk.
	r2, err := NewFileRegistry(FileRegistryConfig{DataRoot: dir})
	if err != nil {
		t.Fatalf("NewFileRegistry reload: %v", err)
	}
	defer r2.Close()

	got, err := r2.Get(id)
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	// A non-terminal job reloaded at startup is recovered per spec §4.5.
	if got.Status != StatusFailed || got.Error != "interrupted by restart" {
		t.Fatalf("expected crash recovery to mark job failed, got status=%s error=%q", got.Status, got.Error)
	}
}

func TestFileRegistryCrashRecoveryRewritesPages(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRegistry(FileRegistryConfig{DataRoot: dir})
	if err != nil {
		t.Fatalf("NewFileRegistry: %v", err)
	}

	id, _ := NewID()
	j := New(id, "book.pdf", "en", "", 5)
	if err := r.Create(j); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err = r.UpdateAndPersist(id, true, func(job *Job) error {
		job.Status = StatusProcessing
		now := time.Now()
		job.StartedAt = &now
		job.Pages[0].Status = PageStatusSuccess
		job.Pages[0].Text = "hello"
		job.Pages[1].Status = PageStatusSuccess
		job.Pages[1].Text = "world"
		job.Pages[2].Status = PageStatusProcessing
		// pages 3,4 remain pending
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateAndPersist: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2, err := NewFileRegistry(FileRegistryConfig{DataRoot: dir})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer r2.Close()

	got, err := r2.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Pages[0].Status != PageStatusSuccess || got.Pages[1].Status != PageStatusSuccess {
		t.Fatalf("successful pages must remain success across restart")
	}
	for _, idx := range []int{2, 3, 4} {
		if got.Pages[idx].Status != PageStatusFailed || got.Pages[idx].Error != "interrupted" {
			t.Fatalf("page %d expected failed/interrupted, got %+v", idx, got.Pages[idx])
		}
	}
}

func TestFileRegistryDeleteRemovesDir(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRegistry(FileRegistryConfig{DataRoot: dir})
	if err != nil {
		t.Fatalf("NewFileRegistry: %v", err)
	}
	defer r.Close()

	id, _ := NewID()
	j := New(id, "book.pdf", "en", "", 1)
	if err := r.Create(j); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Get(id); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := os.Stat(r.jobDir(id)); !os.IsNotExist(err) {
		t.Fatalf("expected job directory removed, stat err=%v", err)
	}
}

func TestFileRegistryListTerminalOlderThan(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRegistry(FileRegistryConfig{DataRoot: dir})
	if err != nil {
		t.Fatalf("NewFileRegistry: %v", err)
	}
	defer r.Close()

	id, _ := NewID()
	j := New(id, "book.pdf", "en", "", 1)
	if err := r.Create(j); err != nil {
		t.Fatalf("Create: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	err = r.UpdateAndPersist(id, true, func(job *Job) error {
		job.Status = StatusCompleted
		job.CompletedAt = &old
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateAndPersist: %v", err)
	}

	ids, err := r.ListTerminalOlderThan(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("ListTerminalOlderThan: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("expected [%s], got %v", id, ids)
	}
}
