package job

import (
	"sort"
	"sync"
	"time"
)

// MemoryRegistry is an in-memory Registry fake for unit tests: an
// interface-backed fake with error-injection fields so orchestrator tests
// can exercise persistence-error paths without touching a filesystem.
type MemoryRegistry struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	dirs  map[string]string

	// Error injection, set directly by tests before the call under test.
	CreateErr error
	UpdateErr error
	GetErr    error
	DeleteErr error
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		jobs: make(map[string]*Job),
		dirs: make(map[string]string),
	}
}

// Create implements Registry.
func (m *MemoryRegistry) Create(j *Job) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
	return nil
}

// Get implements Registry.
func (m *MemoryRegistry) Get(id string) (*Job, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

// UpdateAndPersist implements Registry. flush/debounce has no meaning for an
// in-memory store; every mutation is immediately visible.
func (m *MemoryRegistry) UpdateAndPersist(id string, _ bool, mutator func(j *Job) error) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return mutator(j)
}

// Delete implements Registry.
func (m *MemoryRegistry) Delete(id string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	delete(m.dirs, id)
	return nil
}

// ListTerminalOlderThan implements Registry.
func (m *MemoryRegistry) ListTerminalOlderThan(deadline time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, j := range m.jobs {
		if j.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(deadline) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DataDir implements Registry. Tests set one explicitly via SetDataDir when
// they need the orchestrator to write real files (pages/, output.epub)
// alongside an in-memory job registry.
func (m *MemoryRegistry) DataDir(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[id]
}

// SetDataDir lets a test pin the data directory returned for id.
func (m *MemoryRegistry) SetDataDir(id, dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[id] = dir
}

// Close implements Registry.
func (m *MemoryRegistry) Close() error { return nil }

var _ Registry = (*MemoryRegistry)(nil)
