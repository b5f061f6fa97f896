package stream

import "time"

// EventPhase classifies a step event within one workflow action.
type EventPhase string

const (
	PhasePlan    EventPhase = "plan"
	PhaseStart   EventPhase = "start"
	PhaseSuccess EventPhase = "success"
	PhaseError   EventPhase = "error"
	PhaseSkip    EventPhase = "skip"
	PhaseInfo    EventPhase = "info"
	PhaseDelay   EventPhase = "delay"
)

// ActionWorkflow is the reserved action name for events about the run as a
// whole rather than one of its steps. A success event with this action is the
// authoritative signal that the workflow finished.
const ActionWorkflow = "workflow"

// PlanStep is one entry of an announced plan.
type PlanStep struct {
	Action    string `json:"action"`
	StepIndex int    `json:"step_index"`
}

// StepEvent is a single granular progress notification. Events are transient:
// they are not persisted and late subscribers never see history.
type StepEvent struct {
	At         time.Time  `json:"at"`
	ProjectRef string     `json:"project_ref,omitempty"`
	StepIndex  *int       `json:"step_index,omitempty"`
	TotalSteps int        `json:"total_steps,omitempty"`
	Action     string     `json:"action"`
	Phase      EventPhase `json:"phase"`
	Message    string     `json:"message,omitempty"`
	DurationMs int64      `json:"duration_ms,omitempty"`
	Plan       []PlanStep `json:"plan,omitempty"`
}

// WorkflowSuccess reports whether this is the distinguished workflow-level
// success event.
func (e StepEvent) WorkflowSuccess() bool {
	return e.Action == ActionWorkflow && e.Phase == PhaseSuccess
}
