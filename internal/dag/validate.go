package dag

import "container/heap"

// validateAcyclic runs Kahn's algorithm; when some nodes can never become
// ready, it reports one cycle among them.
func (g *TaskGraph) validateAcyclic() error {
	if len(g.topoOrderIndices()) == len(g.nodes) {
		return nil
	}
	return cycleError(g.cycleWitness())
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// topoOrderIndices returns a topological ordering of node indices. Among
// simultaneously ready nodes the lowest canonical index goes first.
func (g *TaskGraph) topoOrderIndices() []int {
	remaining := make([]int, len(g.indeg))
	copy(remaining, g.indeg)

	ready := &indexHeap{}
	for i, d := range remaining {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(remaining))
	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		out = append(out, u)
		for _, v := range g.outgoing[u] {
			remaining[v]--
			if remaining[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}
	return out
}

// cycleWitness walks the graph depth-first in canonical order and returns the
// first cycle found as a closed path of names (first == last).
func (g *TaskGraph) cycleWitness() []string {
	const (
		unseen = iota
		active
		done
	)
	mark := make([]int, len(g.nodes))
	var path []int

	var walk func(u int) []int
	walk = func(u int) []int {
		mark[u] = active
		path = append(path, u)
		for _, v := range g.outgoing[u] { // sorted by construction
			switch mark[v] {
			case unseen:
				if c := walk(v); c != nil {
					return c
				}
			case active:
				for i, p := range path {
					if p == v {
						c := append([]int{}, path[i:]...)
						return append(c, v)
					}
				}
			}
		}
		path = path[:len(path)-1]
		mark[u] = done
		return nil
	}

	for i := range g.nodes {
		if mark[i] != unseen {
			continue
		}
		if c := walk(i); c != nil {
			names := make([]string, 0, len(c))
			for _, idx := range c {
				names = append(names, g.nodes[idx].Name)
			}
			return names
		}
	}
	return nil
}
