package job

import "time"

// Registry abstracts job persistence. The orchestrator, the retry entry
// point, the HTTP facade, and the cleanup loop all depend on this interface
// rather than a concrete store, so tests can swap in an in-memory fake.
type Registry interface {
	// Create persists a newly-created job.
	Create(j *Job) error

	// Get returns a snapshot copy of the job, or ErrNotFound.
	Get(id string) (*Job, error)

	// UpdateAndPersist applies mutator to the live job under the per-job
	// lock and schedules (or forces) a durable write. flush, if true,
	// bypasses the debounce and writes before returning.
	UpdateAndPersist(id string, flush bool, mutator func(j *Job) error) error

	// Delete removes the job from the registry and, for FileRegistry,
	// its on-disk directory.
	Delete(id string) error

	// ListTerminalOlderThan returns ids of terminal jobs whose
	// CompletedAt is before deadline.
	ListTerminalOlderThan(deadline time.Time) ([]string, error)

	// DataDir returns the per-job directory for id (used by the
	// orchestrator/assembler/renderer to place input.pdf, pages/, output.epub).
	DataDir(id string) string

	// Close stops any background flush goroutines and persists dirty jobs.
	Close() error
}
