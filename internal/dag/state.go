package dag

// TaskState is the runtime execution state of a node within one run.
//
// It is kept apart from TaskGraph, which is immutable and shared by runs.
type TaskState string

const (
	TaskPending   TaskState = "PENDING"
	TaskRunning   TaskState = "RUNNING"
	TaskCompleted TaskState = "COMPLETED"
	TaskFailed    TaskState = "FAILED"
	TaskSkipped   TaskState = "SKIPPED"
)

// ExecutionState maps task name to its current TaskState.
//
// It is a plain map so the scheduler stays a pure function over it.
type ExecutionState map[string]TaskState

func newExecutionState(g *TaskGraph) ExecutionState {
	st := make(ExecutionState, len(g.nodes))
	for _, n := range g.nodes {
		st[n.Name] = TaskPending
	}
	return st
}

func (s ExecutionState) clone() ExecutionState {
	cp := make(ExecutionState, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}
