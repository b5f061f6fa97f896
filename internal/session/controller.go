package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidTransition signals a phase jump the state machine forbids.
	// It indicates a driver bug rather than a user-facing failure.
	ErrInvalidTransition = errors.New("invalid phase transition")
)

// StartResult reports whether a new run began. AlreadyRunning is
// informational, not an error: the caller should attach to the existing run.
type StartResult struct {
	Started        bool `json:"started"`
	AlreadyRunning bool `json:"already_running,omitempty"`
}

// Controller exposes the only mutation path for the single session record.
type Controller struct {
	store *Store
}

func NewController() *Controller {
	return &Controller{store: NewStore()}
}

// Start begins a fresh run unless one is already active. A second Start with
// no intervening terminal state leaves the existing record untouched.
func (c *Controller) Start() StartResult {
	now := nowUTC()
	fresh := Progress{
		RunID:     uuid.NewString(),
		Phase:     PhaseStarting,
		StartedAt: now,
		UpdatedAt: now,
		Running:   true,
	}
	if !c.store.BeginRun(fresh) {
		return StartResult{Started: false, AlreadyRunning: true}
	}
	return StartResult{Started: true}
}

// Update applies a phase transition. Targets outside the transition table are
// rejected so an out-of-order driver cannot corrupt the displayed state.
func (c *Controller) Update(phase Phase, message string) error {
	return c.store.Update(func(p *Progress) error {
		if p.Done {
			return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, p.Phase)
		}
		if !canTransition(p.Phase, phase) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Phase, phase)
		}
		p.Phase = phase
		if message != "" {
			p.Message = message
		}
		p.UpdatedAt = nowUTC()
		return nil
	})
}

// IncrementAttempt bumps the retry counter for internally looping sub-steps,
// e.g. each cycle spent waiting for the user to confirm an MFA prompt.
func (c *Controller) IncrementAttempt() {
	_ = c.store.Update(func(p *Progress) error {
		if p.Done {
			return nil
		}
		p.Attempts++
		p.UpdatedAt = nowUTC()
		return nil
	})
}

// Fail moves the session to the failed terminal state. Idempotent: once a
// terminal state is reached the first message and timestamps are preserved.
func (c *Controller) Fail(errMessage string) {
	_ = c.store.Update(func(p *Progress) error {
		if p.Done {
			return nil
		}
		p.Phase = PhaseFailed
		p.Error = errMessage
		p.Done = true
		p.Success = false
		p.Running = false
		p.UpdatedAt = nowUTC()
		return nil
	})
}

// Success moves the session to the completed terminal state. Idempotent.
func (c *Controller) Success(message string) {
	_ = c.store.Update(func(p *Progress) error {
		if p.Done {
			return nil
		}
		p.Phase = PhaseCompleted
		if message != "" {
			p.Message = message
		}
		p.Error = ""
		p.Done = true
		p.Success = true
		p.Running = false
		p.UpdatedAt = nowUTC()
		return nil
	})
}

// RequestCancel flips the cooperative cancel flag if a run is active.
// Reports whether the flag was set by this call.
func (c *Controller) RequestCancel() bool {
	return c.store.RequestCancel()
}

// WasCancelRequested is the checkpoint read the driver polls. The flag stays
// observable until the next Start or Reset.
func (c *Controller) WasCancelRequested() bool {
	return c.store.CancelRequested()
}

// Get returns an immutable snapshot of the current progress.
func (c *Controller) Get() Progress {
	return c.store.Snapshot()
}

// Reset clears to the initial idle snapshot, ready for the next Start.
func (c *Controller) Reset() {
	c.store.Reset()
}
