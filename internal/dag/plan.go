package dag

// Compile builds the execution plan for target: the subgraph of every task
// reachable from target through After, expanded into explicit edges.
//
// Rules:
//   - Each reachable task appears exactly once, however many paths reach it.
//   - Every prerequisite gets an edge to its dependent.
//   - For a Sequential After list [p1..pn], every task first pulled into the
//     plan by p(i+1) (p(i+1) itself included) gets an extra edge from p(i).
//     A sequential step therefore starts, prerequisites and all, only after
//     the previous step completed.
//   - When p(i+1) was already pulled in by an earlier branch, it still gets
//     an edge from p(i), unless it is an ancestor of p(i) and so necessarily
//     completes first.
//   - A Parallel After list adds no edges between its members.
//
// A task first introduced by a later step cannot be an ancestor of an
// earlier step, which was fully resolved before it, and edges to tasks
// already in the plan are checked for reachability, so sequencing edges
// never close a cycle.
func Compile(r *Registry, target string) (*TaskGraph, error) {
	if r == nil {
		return nil, invalidf("nil registry")
	}
	if _, ok := r.Lookup(target); !ok {
		return nil, &UnknownDependencyError{Dependency: target}
	}

	c := &planCompiler{
		reg:     r,
		visited: make(map[string]bool),
		onStack: make(map[string]bool),
		edgeSet: make(map[Edge]struct{}),
	}
	if _, err := c.visit(target, ""); err != nil {
		return nil, err
	}
	return NewTaskGraph(c.tasks, c.edges)
}

type planCompiler struct {
	reg     *Registry
	visited map[string]bool
	onStack map[string]bool
	stack   []string

	tasks   []Task
	edges   []Edge
	edgeSet map[Edge]struct{}
}

// visit resolves name depth-first and returns the tasks it introduced into the
// plan, in post-order.
func (c *planCompiler) visit(name, parent string) ([]string, error) {
	if c.onStack[name] {
		path := make([]string, 0, len(c.stack)+1)
		start := 0
		for i, n := range c.stack {
			if n == name {
				start = i
				break
			}
		}
		path = append(path, c.stack[start:]...)
		path = append(path, name)
		return nil, cycleError(path)
	}
	if c.visited[name] {
		return nil, nil
	}

	t, ok := c.reg.Lookup(name)
	if !ok {
		return nil, &UnknownDependencyError{Task: parent, Dependency: name}
	}

	c.onStack[name] = true
	c.stack = append(c.stack, name)

	var introduced []string
	prev := ""
	for _, dep := range t.After {
		added, err := c.visit(dep, name)
		if err != nil {
			return nil, err
		}
		if t.RunAs == Sequential && prev != "" {
			switch {
			case len(added) > 0:
				for _, n := range added {
					c.addEdge(prev, n)
				}
			case !c.reaches(dep, prev):
				c.addEdge(prev, dep)
			}
		}
		c.addEdge(dep, name)
		introduced = append(introduced, added...)
		prev = dep
	}

	c.stack = c.stack[:len(c.stack)-1]
	c.onStack[name] = false
	c.visited[name] = true
	c.tasks = append(c.tasks, t)

	return append(introduced, name), nil
}

func (c *planCompiler) addEdge(from, to string) {
	e := Edge{From: from, To: to}
	if _, exists := c.edgeSet[e]; exists {
		return
	}
	c.edgeSet[e] = struct{}{}
	c.edges = append(c.edges, e)
}

// reaches reports whether to is reachable from from over the edges built so
// far.
func (c *planCompiler) reaches(from, to string) bool {
	if from == to {
		return true
	}
	next := make(map[string][]string, len(c.edges))
	for _, e := range c.edges {
		next[e.From] = append(next[e.From], e.To)
	}
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, m := range next[n] {
			if m == to {
				return true
			}
			if !seen[m] {
				seen[m] = true
				queue = append(queue, m)
			}
		}
	}
	return false
}
