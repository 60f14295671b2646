package dag

import "time"

// GraphResult summarizes one run of a plan.
type GraphResult struct {
	RunID    string
	Target   string
	PlanHash PlanHash

	// FinalState is the terminal state of each task by name.
	FinalState ExecutionState

	// ExecutionOrder lists tasks in the order they were started.
	ExecutionOrder []string

	// CompletionOrder lists tasks in the order they finished (completed or failed).
	CompletionOrder []string

	// Durations records how long each started task ran.
	Durations map[string]time.Duration

	// Failed names the first task whose action failed, if any.
	Failed string

	// Err is the run's failure, nil on success.
	Err error
}

// Succeeded reports whether every task completed.
func (r *GraphResult) Succeeded() bool {
	if r == nil || r.Err != nil {
		return false
	}
	for _, st := range r.FinalState {
		if st != TaskCompleted {
			return false
		}
	}
	return true
}
