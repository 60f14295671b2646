// Package dag implements sitepipe's task graph.
//
// It is split into:
//   - Registry: tasks registered once at startup, with their prerequisites
//   - Plan compilation: the subgraph reachable from one requested task,
//     expanded into an immutable TaskGraph with explicit ordering edges
//   - Execution: a ready-driven Executor over mutable ExecutionState
//
// A TaskGraph is never mutated by execution, so the same plan can be run any
// number of times. Every run starts from PENDING; nothing is memoized between runs.
package dag
