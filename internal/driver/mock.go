package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/nvalerio/portalsync/internal/session"
	"github.com/nvalerio/portalsync/internal/stream"
)

type mockStep struct {
	action string
	phase  session.Phase
}

var mockPlan = []mockStep{
	{action: "open_portal", phase: session.PhaseOpeningPortal},
	{action: "submit_credentials", phase: session.PhaseOpeningPortal},
	{action: "wait_user_confirm", phase: session.PhaseWaitingUser},
	{action: "check_session", phase: session.PhaseCheckingSession},
	{action: "persist_state", phase: session.PhasePersistingState},
}

// MockDriver walks a fixed plan with small delays, for local development and
// tests where no browser is available.
type MockDriver struct {
	StepDelay time.Duration
	// FailAt aborts the run when the named action starts, simulating a
	// mid-workflow driver fault.
	FailAt string
}

func (d *MockDriver) Run(ctx context.Context, target Target, status StatusReporter, events Publisher) error {
	delay := d.StepDelay
	if delay <= 0 {
		delay = 10 * time.Millisecond
	}

	plan := make([]stream.PlanStep, 0, len(mockPlan))
	for i, step := range mockPlan {
		plan = append(plan, stream.PlanStep{Action: step.action, StepIndex: i})
	}
	events.Publish(stream.StepEvent{
		Phase:      stream.PhasePlan,
		ProjectRef: target.ProjectRef,
		TotalSteps: len(plan),
		Plan:       plan,
	})

	lastPhase := session.Phase("")
	for i, step := range mockPlan {
		if status.WasCancelRequested() {
			return ErrCancelled
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if step.phase != lastPhase {
			if err := status.Update(step.phase, ""); err != nil {
				return err
			}
			lastPhase = step.phase
		}
		if step.phase == session.PhaseWaitingUser {
			status.IncrementAttempt()
		}

		idx := i
		events.Publish(stream.StepEvent{
			Phase:      stream.PhaseStart,
			ProjectRef: target.ProjectRef,
			Action:     step.action,
			StepIndex:  &idx,
			TotalSteps: len(plan),
		})
		if d.FailAt == step.action {
			events.Publish(stream.StepEvent{
				Phase:      stream.PhaseError,
				ProjectRef: target.ProjectRef,
				Action:     step.action,
				StepIndex:  &idx,
				Message:    "simulated failure",
			})
			return fmt.Errorf("mock driver: simulated failure at %s", step.action)
		}

		started := time.Now()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		events.Publish(stream.StepEvent{
			Phase:      stream.PhaseSuccess,
			ProjectRef: target.ProjectRef,
			Action:     step.action,
			StepIndex:  &idx,
			TotalSteps: len(plan),
			DurationMs: time.Since(started).Milliseconds(),
		})
	}
	return nil
}
