package dag

import (
	"reflect"
	"testing"
)

func TestStateMachine_Transitions_ValidAndInvalid(t *testing.T) {
	state := ExecutionState{"A": TaskPending}

	if err := Transition(state, "A", TaskPending, TaskRunning); err != nil {
		t.Fatalf("expected valid transition, got %v", err)
	}
	if err := Transition(state, "A", TaskRunning, TaskCompleted); err != nil {
		t.Fatalf("expected valid transition, got %v", err)
	}

	// Terminal -> RUNNING is forbidden.
	if err := Transition(state, "A", TaskCompleted, TaskRunning); err == nil {
		t.Fatalf("expected error")
	}

	// Stale expectation is observable.
	state["A"] = TaskRunning
	if err := Transition(state, "A", TaskPending, TaskRunning); err == nil {
		t.Fatalf("expected error for mismatched prior state")
	}

	state["A"] = TaskFailed
	if err := Transition(state, "A", TaskFailed, TaskRunning); err == nil {
		t.Fatalf("expected error")
	}

	if err := Transition(state, "missing", TaskPending, TaskRunning); err == nil {
		t.Fatalf("expected error for unknown task")
	}
}

func TestAbortPending_SkipsOnlyPending(t *testing.T) {
	state := ExecutionState{
		"A": TaskCompleted,
		"B": TaskRunning,
		"C": TaskPending,
		"D": TaskFailed,
		"E": TaskPending,
	}
	got := AbortPending(state)
	if !reflect.DeepEqual(got, []string{"C", "E"}) {
		t.Fatalf("unexpected skipped list: %v", got)
	}
	want := ExecutionState{
		"A": TaskCompleted,
		"B": TaskRunning,
		"C": TaskSkipped,
		"D": TaskFailed,
		"E": TaskSkipped,
	}
	if !reflect.DeepEqual(state, want) {
		t.Fatalf("unexpected state: %v", state)
	}
}
