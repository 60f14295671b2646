package dag

import "context"

// PlanHash is the deterministic identity of a compiled TaskGraph.
//
// It is computed from task names and canonicalized edge structure only, so it is
// stable across registration order.
type PlanHash string

// String returns the string representation of the PlanHash.
func (h PlanHash) String() string { return string(h) }

// Mode controls how a task's prerequisites are run relative to each other.
type Mode int

const (
	// Sequential runs prerequisites strictly in declaration order: a prerequisite
	// (together with anything it first pulls into the plan) starts only after the
	// previous one completed.
	Sequential Mode = iota

	// Parallel dispatches prerequisites concurrently. All of them must complete
	// before the dependent task starts.
	Parallel
)

func (m Mode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// Action is the unit of work of a task. A nil Action marks a group task that
// only orders its prerequisites.
type Action func(ctx context.Context) error

// Task is a named unit of build work with declared prerequisites.
type Task struct {
	// Name is the unique identifier of the task.
	Name string

	// Action runs after every prerequisite completed successfully.
	Action Action

	// After lists prerequisite task names in declaration order.
	After []string

	// RunAs selects how the After list is executed.
	RunAs Mode

	// Description is shown by task listings.
	Description string
}

// Edge represents a must-complete-before relation: To runs only after From
// completed successfully.
type Edge struct {
	From string
	To   string
}

// TaskNode is an immutable node in the TaskGraph.
type TaskNode struct {
	Name           string
	Task           Task
	canonicalIndex int
}

// CanonicalIndex returns the node's deterministic position in the graph's canonical ordering.
func (n *TaskNode) CanonicalIndex() int { return n.canonicalIndex }
