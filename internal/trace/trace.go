// Package trace records the logical lifecycle of tasks during a run.
package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ExecutionTrace is the record of one run of a plan.
//
// Events are kept in recording order until Canonicalize is called. The
// canonical form is independent of goroutine timing, so two runs of the same
// plan with the same outcome produce byte-identical canonical JSON.
type ExecutionTrace struct {
	PlanHash string  `json:"planHash"`
	Target   string  `json:"target,omitempty"`
	Events   []Event `json:"events"`
}

// EventKind is the discriminator for Event. The string values are part of the
// canonical bytes; do not rename.
type EventKind string

const (
	EventTaskStarted   EventKind = "TaskStarted"
	EventTaskCompleted EventKind = "TaskCompleted"
	EventTaskFailed    EventKind = "TaskFailed"
	EventTaskSkipped   EventKind = "TaskSkipped"
)

// Event is a single task transition.
//
// Events carry no timestamps or error strings; those go to the log.
type Event struct {
	Kind EventKind `json:"kind"`

	// TaskID is the task the event refers to.
	TaskID string `json:"taskId"`

	// Reason is a stable reason code, e.g. "RunAborted".
	Reason string `json:"reason,omitempty"`

	// CauseTaskID records the task that caused this event, e.g. the failing
	// task that aborted the run.
	CauseTaskID string `json:"causeTaskId,omitempty"`
}

// Validate checks basic invariants.
func (t *ExecutionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.PlanHash == "" {
		return errors.New("planHash is required")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.TaskID == "" {
			return fmt.Errorf("events[%d].taskId is required for kind %q", i, e.Kind)
		}
	}
	return nil
}

// Canonicalize sorts events by (taskId, kind order, reason, causeTaskId).
func (t *ExecutionTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.TaskID != b.TaskID {
			return a.TaskID < b.TaskID
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		return a.CauseTaskID < b.CauseTaskID
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventTaskStarted:
		return 10
	case EventTaskCompleted:
		return 20
	case EventTaskFailed:
		return 30
	case EventTaskSkipped:
		return 40
	default:
		return 1000
	}
}

// CanonicalJSON returns the canonical JSON encoding of the trace without
// mutating the receiver.
func (t ExecutionTrace) CanonicalJSON() ([]byte, error) {
	cp := ExecutionTrace{PlanHash: t.PlanHash, Target: t.Target}
	cp.Events = make([]Event, len(t.Events))
	copy(cp.Events, t.Events)
	cp.Canonicalize()
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&cp)
}

// Hash returns the sha256 hex of the canonical JSON bytes.
func (t ExecutionTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}
