package reconcile

import (
	"testing"

	"github.com/nvalerio/portalsync/internal/stream"
)

func idx(i int) *int { return &i }

func TestPlanThenStepsThenWorkflowSuccess(t *testing.T) {
	events := []stream.StepEvent{
		{Phase: stream.PhasePlan, Plan: []stream.PlanStep{
			{Action: "login", StepIndex: 0},
			{Action: "sync", StepIndex: 1},
		}},
		{Phase: stream.PhaseStart, Action: "login", StepIndex: idx(0)},
		{Phase: stream.PhaseSuccess, Action: "login", StepIndex: idx(0), DurationMs: 10},
		{Phase: stream.PhaseStart, Action: "sync", StepIndex: idx(1)},
		{Phase: stream.PhaseError, Action: "sync", StepIndex: idx(1), Message: "x"},
	}

	s := Reduce(NewState(), events)
	if !s.PlanReceived {
		t.Fatalf("PlanReceived = false after plan event")
	}
	if len(s.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2", len(s.Tasks))
	}
	login, sync := s.Tasks[0], s.Tasks[1]
	if login.Status != StatusSuccess || login.DurationMs != 10 {
		t.Fatalf("login = %+v, want success with duration 10", login)
	}
	if sync.Status != StatusError || sync.Message != "x" {
		t.Fatalf("sync = %+v, want error %q", sync, "x")
	}
	if s.Percent != 99 {
		t.Fatalf("Percent = %d, want 99 before workflow success", s.Percent)
	}

	s = Apply(s, stream.StepEvent{Phase: stream.PhaseSuccess, Action: stream.ActionWorkflow})
	if !s.WorkflowDone || s.Percent != 100 {
		t.Fatalf("after workflow success: done=%v percent=%d, want true/100", s.WorkflowDone, s.Percent)
	}
	if len(s.Tasks) != 2 {
		t.Fatalf("workflow event spawned a task: %d tasks", len(s.Tasks))
	}
}

func TestTerminalStatusIsSticky(t *testing.T) {
	s := Reduce(NewState(), []stream.StepEvent{
		{Phase: stream.PhaseStart, Action: "login", StepIndex: idx(0)},
		{Phase: stream.PhaseSuccess, Action: "login", StepIndex: idx(0), DurationMs: 42},
	})

	// Late duplicate start must not regress the finished task.
	s = Apply(s, stream.StepEvent{Phase: stream.PhaseStart, Action: "login", StepIndex: idx(0)})

	got := s.Tasks[0]
	if got.Status != StatusSuccess {
		t.Fatalf("status = %s, want success untouched by late start", got.Status)
	}
	if got.DurationMs != 42 {
		t.Fatalf("duration = %d, want 42 untouched", got.DurationMs)
	}
}

func TestDynamicCreationWithoutPlanLabelsDuplicates(t *testing.T) {
	s := NewState()
	for i := 0; i < 3; i++ {
		s = Apply(s, stream.StepEvent{Phase: stream.PhaseStart, Action: "extract"})
	}

	if len(s.Tasks) != 3 {
		t.Fatalf("len(Tasks) = %d, want 3 distinct tasks", len(s.Tasks))
	}
	wantLabels := []string{"extract", "extract #2", "extract #3"}
	ids := make(map[string]bool, 3)
	for i, task := range s.Tasks {
		if task.Label != wantLabels[i] {
			t.Fatalf("task %d label = %q, want %q", i, task.Label, wantLabels[i])
		}
		if ids[task.ID] {
			t.Fatalf("duplicate task id %q", task.ID)
		}
		ids[task.ID] = true
	}
}

func TestFallbackUpdateByActionWithoutIndex(t *testing.T) {
	s := Reduce(NewState(), []stream.StepEvent{
		{Phase: stream.PhaseStart, Action: "extract"},
		{Phase: stream.PhaseStart, Action: "extract"},
		// Producer omits stepIndex on completion: first non-terminal wins.
		{Phase: stream.PhaseSuccess, Action: "extract", DurationMs: 7},
	})

	if len(s.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2", len(s.Tasks))
	}
	if s.Tasks[0].Status != StatusSuccess || s.Tasks[0].DurationMs != 7 {
		t.Fatalf("first task = %+v, want success", s.Tasks[0])
	}
	if s.Tasks[1].Status != StatusRunning {
		t.Fatalf("second task = %+v, want still running", s.Tasks[1])
	}
}

func TestPlanPinsKnownRange(t *testing.T) {
	s := Reduce(NewState(), []stream.StepEvent{
		{Phase: stream.PhasePlan, Plan: []stream.PlanStep{
			{Action: "login", StepIndex: 0},
			{Action: "sync", StepIndex: 1},
		}},
		// Same index, different action name: may not spawn inside the range.
		{Phase: stream.PhaseStart, Action: "renamed", StepIndex: idx(0)},
	})
	if len(s.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want in-range mismatch dropped", len(s.Tasks))
	}

	// Out-of-range index still appends.
	s = Apply(s, stream.StepEvent{Phase: stream.PhaseStart, Action: "cleanup", StepIndex: idx(5)})
	if len(s.Tasks) != 3 {
		t.Fatalf("len(Tasks) = %d, want out-of-range step appended", len(s.Tasks))
	}
	if s.Tasks[2].Action != "cleanup" || s.Tasks[2].Status != StatusRunning {
		t.Fatalf("appended task = %+v", s.Tasks[2])
	}
	if s.TotalTasks != 3 {
		t.Fatalf("TotalTasks = %d, want 3", s.TotalTasks)
	}
}

func TestLatePlanKeepsEarlierProgress(t *testing.T) {
	s := Reduce(NewState(), []stream.StepEvent{
		{Phase: stream.PhaseStart, Action: "login", StepIndex: idx(0)},
		{Phase: stream.PhaseSuccess, Action: "login", StepIndex: idx(0), DurationMs: 3},
		{Phase: stream.PhasePlan, Plan: []stream.PlanStep{
			{Action: "login", StepIndex: 0},
			{Action: "sync", StepIndex: 1},
		}},
	})

	if len(s.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2", len(s.Tasks))
	}
	if s.Tasks[0].Status != StatusSuccess || s.Tasks[0].DurationMs != 3 {
		t.Fatalf("late plan regressed finished task: %+v", s.Tasks[0])
	}
	if s.Tasks[1].Status != StatusPending {
		t.Fatalf("seeded task = %+v, want pending", s.Tasks[1])
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	base := Reduce(NewState(), []stream.StepEvent{
		{Phase: stream.PhaseStart, Action: "login", StepIndex: idx(0)},
	})
	snapshot := base.Tasks[0]

	_ = Apply(base, stream.StepEvent{Phase: stream.PhaseError, Action: "login", StepIndex: idx(0), Message: "boom"})

	if base.Tasks[0] != snapshot {
		t.Fatalf("Apply mutated prior state: %+v", base.Tasks[0])
	}
}

func TestInfoAndDelayRefreshMessageOnly(t *testing.T) {
	s := Reduce(NewState(), []stream.StepEvent{
		{Phase: stream.PhaseStart, Action: "sync", StepIndex: idx(1)},
		{Phase: stream.PhaseDelay, Action: "sync", StepIndex: idx(1), Message: "rate limited, waiting"},
	})
	got := s.Tasks[0]
	if got.Status != StatusRunning {
		t.Fatalf("status = %s, want running after delay event", got.Status)
	}
	if got.Message != "rate limited, waiting" {
		t.Fatalf("message = %q", got.Message)
	}
}

func TestPercentEmptyState(t *testing.T) {
	s := NewState()
	if s.Percent != 0 {
		t.Fatalf("Percent = %d, want 0", s.Percent)
	}
	s = Apply(s, stream.StepEvent{Phase: stream.PhaseInfo, Action: stream.ActionWorkflow, Message: "warming up"})
	if s.Percent != 0 || s.WorkflowDone {
		t.Fatalf("workflow info event changed completion: %+v", s)
	}
}
