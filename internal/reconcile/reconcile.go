// Package reconcile folds an ambiguous, possibly incomplete step-event stream
// into a stable, orderable task list for progress display. It is a pure
// reducer: no I/O, no clock, no locks. Each observer runs its own fold over
// whatever events it has seen.
package reconcile

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nvalerio/portalsync/internal/stream"
)

// Status is the display status of one reconciled task.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkip    Status = "skip"
)

// Terminal statuses are sticky: once reached they are never revised, so a
// duplicate or late event cannot corrupt a finished task.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusSkip:
		return true
	default:
		return false
	}
}

// TaskRecord is one display-ready task derived from the event stream.
type TaskRecord struct {
	ID         string `json:"id"`
	Action     string `json:"action"`
	StepIndex  int    `json:"step_index"` // -1 when the producer omitted it
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Label      string `json:"label"`
}

// State is the fold accumulator. Apply returns a new State and never mutates
// its input, so snapshots can be handed to a renderer without copying.
type State struct {
	Tasks        []TaskRecord `json:"tasks"`
	PlanReceived bool         `json:"plan_received"`
	TotalTasks   int          `json:"total_tasks"`
	Percent      int          `json:"percent"`
	WorkflowDone bool         `json:"workflow_done"`
}

func NewState() State {
	return State{}
}

func taskID(action string, stepIndex int) string {
	return fmt.Sprintf("%s@%d", action, stepIndex)
}

func synthesizeID(action string) string {
	return fmt.Sprintf("%s:%s", action, uuid.NewString())
}

// Apply folds one event into the state.
func Apply(s State, ev stream.StepEvent) State {
	out := s
	out.Tasks = make([]TaskRecord, len(s.Tasks))
	copy(out.Tasks, s.Tasks)

	switch {
	case ev.Phase == stream.PhasePlan && len(ev.Plan) > 0:
		out.seedPlan(ev.Plan)
	case ev.Action == stream.ActionWorkflow:
		// Workflow-level events never appear as tasks. Only the distinguished
		// success event snaps percent to 100; everything else about the run as
		// a whole is carried by the session controller.
		if ev.WorkflowSuccess() {
			out.WorkflowDone = true
		}
	default:
		out.applyStep(ev)
	}

	out.TotalTasks = len(out.Tasks)
	out.Percent = computePercent(out)
	relabel(out.Tasks)
	return out
}

// Reduce folds a whole event slice, for replay after reconnect.
func Reduce(s State, events []stream.StepEvent) State {
	for _, ev := range events {
		s = Apply(s, ev)
	}
	return s
}

// seedPlan makes the announced plan authoritative: listed steps appear as
// pending tasks in plan order. Tasks already derived from earlier events keep
// their progress; dynamically created tasks missing from the plan stay at the
// tail in first-seen order.
func (s *State) seedPlan(plan []stream.PlanStep) {
	byID := make(map[string]TaskRecord, len(s.Tasks))
	for _, t := range s.Tasks {
		byID[t.ID] = t
	}

	seeded := make([]TaskRecord, 0, len(plan)+len(s.Tasks))
	inPlan := make(map[string]bool, len(plan))
	for _, step := range plan {
		id := taskID(step.Action, step.StepIndex)
		if inPlan[id] {
			continue
		}
		inPlan[id] = true
		if existing, ok := byID[id]; ok {
			seeded = append(seeded, existing)
			continue
		}
		seeded = append(seeded, TaskRecord{
			ID:        id,
			Action:    step.Action,
			StepIndex: step.StepIndex,
			Status:    StatusPending,
		})
	}
	for _, t := range s.Tasks {
		if !inPlan[t.ID] {
			seeded = append(seeded, t)
		}
	}

	s.Tasks = seeded
	s.PlanReceived = true
}

func (s *State) applyStep(ev stream.StepEvent) {
	if ev.StepIndex != nil {
		id := taskID(ev.Action, *ev.StepIndex)
		if i := s.indexByID(id); i >= 0 {
			updateTask(&s.Tasks[i], ev)
			return
		}
		// No exact match. Once a plan is in, an index inside the known range
		// may not spawn a new task; an out-of-range index still may.
		if s.PlanReceived && s.hasStepIndex(*ev.StepIndex) {
			return
		}
		task := TaskRecord{
			ID:        id,
			Action:    ev.Action,
			StepIndex: *ev.StepIndex,
			Status:    StatusPending,
		}
		updateTask(&task, ev)
		s.Tasks = append(s.Tasks, task)
		return
	}

	// No id derivable. While no plan has been received, a non-start event
	// targets the first non-terminal task with the same action (producers may
	// omit stepIndex); a start event, or a miss, appends a new task with a
	// synthesized id. After a plan arrives the task list is pinned, so an
	// unaddressable event is dropped.
	if s.PlanReceived {
		return
	}
	if ev.Phase != stream.PhaseStart {
		if i := s.firstNonTerminalByAction(ev.Action); i >= 0 {
			updateTask(&s.Tasks[i], ev)
			return
		}
	}
	task := TaskRecord{
		ID:        synthesizeID(ev.Action),
		Action:    ev.Action,
		StepIndex: -1,
		Status:    StatusPending,
	}
	updateTask(&task, ev)
	s.Tasks = append(s.Tasks, task)
}

func (s *State) indexByID(id string) int {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) hasStepIndex(idx int) bool {
	for i := range s.Tasks {
		if s.Tasks[i].StepIndex == idx {
			return true
		}
	}
	return false
}

func (s *State) firstNonTerminalByAction(action string) int {
	for i := range s.Tasks {
		if s.Tasks[i].Action == action && !s.Tasks[i].Status.Terminal() {
			return i
		}
	}
	return -1
}

func updateTask(t *TaskRecord, ev stream.StepEvent) {
	if t.Status.Terminal() {
		return
	}
	switch ev.Phase {
	case stream.PhaseStart:
		t.Status = StatusRunning
	case stream.PhaseSuccess:
		t.Status = StatusSuccess
	case stream.PhaseError:
		t.Status = StatusError
	case stream.PhaseSkip:
		t.Status = StatusSkip
	case stream.PhaseInfo, stream.PhaseDelay:
		// message refresh only
	}
	if ev.Message != "" {
		t.Message = ev.Message
	}
	if ev.DurationMs > 0 {
		t.DurationMs = ev.DurationMs
	}
}

// computePercent caps at 99 until the workflow-level success event arrives:
// the last sub-task completing and the wrapping workflow's own confirmation
// can race by one tick.
func computePercent(s State) int {
	if s.WorkflowDone {
		return 100
	}
	if len(s.Tasks) == 0 {
		return 0
	}
	terminal := 0
	for _, t := range s.Tasks {
		if t.Status.Terminal() {
			terminal++
		}
	}
	pct := 100 * terminal / len(s.Tasks)
	if pct > 99 {
		pct = 99
	}
	return pct
}

// relabel disambiguates repeated action names with a "#n" suffix. Labels are
// display-only; identity stays with the id.
func relabel(tasks []TaskRecord) {
	seen := make(map[string]int, len(tasks))
	for i := range tasks {
		seen[tasks[i].Action]++
		if n := seen[tasks[i].Action]; n > 1 {
			tasks[i].Label = fmt.Sprintf("%s #%d", tasks[i].Action, n)
		} else {
			tasks[i].Label = tasks[i].Action
		}
	}
}
