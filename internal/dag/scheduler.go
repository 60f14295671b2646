package dag

import "sort"

// GetReadyTasks returns the ordered list of task names that are eligible to run.
//
// Policy:
//   - A task is ready iff it is PENDING and all its prerequisites are COMPLETED.
//   - The returned list is sorted by (topological depth asc, task name asc).
//
// This function is pure: it does not mutate graph or state.
func GetReadyTasks(g *TaskGraph, state ExecutionState) []string {
	if g == nil {
		return nil
	}

	var ready []string
	for _, node := range g.nodes {
		if state[node.Name] != TaskPending {
			continue
		}
		depsOK := true
		for _, p := range g.incoming[node.canonicalIndex] {
			if state[g.nodes[p].Name] != TaskCompleted {
				depsOK = false
				break
			}
		}
		if depsOK {
			ready = append(ready, node.Name)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		ad, _ := g.Depth(ready[i])
		bd, _ := g.Depth(ready[j])
		if ad != bd {
			return ad < bd
		}
		return ready[i] < ready[j]
	})
	return ready
}
