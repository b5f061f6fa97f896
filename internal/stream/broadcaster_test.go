package stream

import (
	"fmt"
	"testing"
)

func TestPublishDeliversInOrder(t *testing.T) {
	b := NewBroadcaster(16)
	ch, cancel := b.Subscribe("")
	defer cancel()

	for i := 0; i < 5; i++ {
		b.Publish(StepEvent{Action: fmt.Sprintf("step-%d", i), Phase: PhaseStart})
	}

	for i := 0; i < 5; i++ {
		ev := <-ch
		if want := fmt.Sprintf("step-%d", i); ev.Action != want {
			t.Fatalf("event %d action = %q, want %q", i, ev.Action, want)
		}
		if ev.At.IsZero() {
			t.Fatalf("event %d missing timestamp", i)
		}
	}
}

func TestLateJoinerGetsNoReplay(t *testing.T) {
	b := NewBroadcaster(16)
	b.Publish(StepEvent{Action: "before", Phase: PhaseStart})

	ch, cancel := b.Subscribe("")
	defer cancel()

	b.Publish(StepEvent{Action: "after", Phase: PhaseStart})
	ev := <-ch
	if ev.Action != "after" {
		t.Fatalf("late joiner got %q, want only events published after subscribe", ev.Action)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected replayed event %q", extra.Action)
	default:
	}
}

func TestProjectRefFilter(t *testing.T) {
	b := NewBroadcaster(16)
	scoped, cancelScoped := b.Subscribe("proj-a")
	defer cancelScoped()
	all, cancelAll := b.Subscribe("")
	defer cancelAll()

	b.Publish(StepEvent{Action: "a", Phase: PhaseStart, ProjectRef: "proj-a"})
	b.Publish(StepEvent{Action: "b", Phase: PhaseStart, ProjectRef: "proj-b"})
	b.Publish(StepEvent{Action: "global", Phase: PhaseInfo})

	if ev := <-scoped; ev.Action != "a" {
		t.Fatalf("scoped subscriber got %q, want %q", ev.Action, "a")
	}
	// Unscoped events still reach a scoped subscriber.
	if ev := <-scoped; ev.Action != "global" {
		t.Fatalf("scoped subscriber got %q, want %q", ev.Action, "global")
	}
	select {
	case ev := <-scoped:
		t.Fatalf("scoped subscriber got cross-delivered event %q", ev.Action)
	default:
	}

	for _, want := range []string{"a", "b", "global"} {
		if ev := <-all; ev.Action != want {
			t.Fatalf("unscoped subscriber got %q, want %q", ev.Action, want)
		}
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := NewBroadcaster(2)
	ch, cancel := b.Subscribe("")
	defer cancel()

	for i := 0; i < 4; i++ {
		b.Publish(StepEvent{Action: fmt.Sprintf("step-%d", i), Phase: PhaseStart})
	}

	// Buffer of two: the two oldest were dropped to admit the newest.
	if ev := <-ch; ev.Action != "step-2" {
		t.Fatalf("first drained event = %q, want %q", ev.Action, "step-2")
	}
	if ev := <-ch; ev.Action != "step-3" {
		t.Fatalf("second drained event = %q, want %q", ev.Action, "step-3")
	}
	if got := b.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}
}

func TestUnsubscribeClosesChannelAndIsIdempotent(t *testing.T) {
	b := NewBroadcaster(4)
	ch, cancel := b.Subscribe("")

	cancel()
	cancel() // second call is a no-op

	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after unsubscribe")
	}
	if got := b.SubscriberCount(); got != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", got)
	}

	// Publishing after the last unsubscribe must not panic.
	b.Publish(StepEvent{Action: "noop", Phase: PhaseInfo})
}
