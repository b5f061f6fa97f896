// Package driver holds the UI-automation collaborators. The core never
// depends on a concrete driver: it sees only the Driver interface, a status
// reporter and an event publisher, plus the cooperative cancel flag polled at
// checkpoints the driver chooses.
package driver

import (
	"context"
	"errors"

	"github.com/nvalerio/portalsync/internal/session"
	"github.com/nvalerio/portalsync/internal/stream"
)

// ErrCancelled is returned when the driver honors a cancel request at one of
// its checkpoints. Cancellation latency is bounded by checkpoint spacing; an
// in-flight remote operation is never aborted mid-step.
var ErrCancelled = errors.New("cancelled at checkpoint")

// Target describes one workflow run.
type Target struct {
	PortalURL  string
	Account    string
	Secret     string
	Headless   bool
	ProjectRef string
}

// StatusReporter is the controller surface the driver mutates coarse state
// through.
type StatusReporter interface {
	Update(phase session.Phase, message string) error
	IncrementAttempt()
	WasCancelRequested() bool
}

// Publisher receives granular step events, independently of the coarse
// status updates.
type Publisher interface {
	Publish(ev stream.StepEvent)
}

// Driver executes the portal workflow. A non-nil error is normalized by the
// runtime into a terminal failed state; it never propagates further.
type Driver interface {
	Run(ctx context.Context, target Target, status StatusReporter, events Publisher) error
}
