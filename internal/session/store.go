package session

import (
	"sync"
	"time"
)

// Progress is the single session's phase/progress record. Get hands out value
// copies only, so readers can never observe a partially applied transition.
type Progress struct {
	RunID     string    `json:"run_id,omitempty"`
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Attempts  int       `json:"attempts"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Done      bool      `json:"done"`
	Success   bool      `json:"success"`
	Running   bool      `json:"running"`
}

// Store holds the one Progress record plus the cooperative cancel flag.
// There is a single logical writer (the automation driver, through the
// controller) and many readers (HTTP handlers).
type Store struct {
	mu              sync.RWMutex
	progress        Progress
	cancelRequested bool
}

func NewStore() *Store {
	return &Store{progress: idleProgress()}
}

func idleProgress() Progress {
	return Progress{Phase: PhaseIdle}
}

func (s *Store) Snapshot() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// BeginRun installs a whole new record if no run is active and clears the
// cancel flag. Progress is superseded, never merged. Reports whether the
// record was replaced.
func (s *Store) BeginRun(p Progress) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress.Running {
		return false
	}
	s.progress = p
	s.cancelRequested = false
	return true
}

// Reset clears back to the initial idle record and drops the cancel flag.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = idleProgress()
	s.cancelRequested = false
}

// Update runs fn against the record under the write lock. fn must validate
// before mutating; an error returned after partial mutation would still be
// visible to readers.
func (s *Store) Update(fn func(*Progress) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.progress)
}

// RequestCancel flips the cooperative flag, but only while a run is active.
// Reports whether the flag was set by this call.
func (s *Store) RequestCancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.progress.Running {
		return false
	}
	s.cancelRequested = true
	return true
}

func (s *Store) CancelRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelRequested
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
