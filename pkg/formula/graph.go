package formula

import (
	"fmt"
	"sort"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/token"
)

// DependencyGraph is the output-to-output reference subgraph of one query.
// It exists so a future evaluator can walk outputs in dependency order;
// the current engine only uses it to detect reference cycles.
type DependencyGraph struct {
	outputs map[int64]*models.Output
	edges   map[int64][]int64 // output id -> referenced output ids
}

// NewDependencyGraph builds the reference graph over a query's outputs.
// References to ids outside the set are ignored; Validate reports those
// separately.
func NewDependencyGraph(outputs []*models.Output) *DependencyGraph {
	graph := &DependencyGraph{
		outputs: make(map[int64]*models.Output, len(outputs)),
		edges:   make(map[int64][]int64, len(outputs)),
	}

	for _, output := range outputs {
		graph.outputs[output.ID] = output
	}

	for _, output := range outputs {
		for _, referenced := range token.Extract(output.Formula, token.KindOutput) {
			if _, ok := graph.outputs[referenced]; ok {
				graph.edges[output.ID] = append(graph.edges[output.ID], referenced)
			}
		}
	}

	return graph
}

// DependsOn reports whether from references to, directly or transitively.
func (g *DependencyGraph) DependsOn(from, to int64) bool {
	visited := make(map[int64]bool)

	var walk func(id int64) bool

	walk = func(id int64) bool {
		if visited[id] {
			return false
		}

		visited[id] = true

		for _, next := range g.edges[id] {
			if next == to || walk(next) {
				return true
			}
		}

		return false
	}

	return walk(from)
}

// Cycle returns the ids of one reference cycle, or nil when the graph is
// acyclic. Detection is a DFS with white/grey/black coloring.
func (g *DependencyGraph) Cycle() []int64 {
	const (
		white = 0
		grey  = 1
		black = 2
	)

	color := make(map[int64]int, len(g.outputs))
	parent := make(map[int64]int64)

	var cycle []int64

	var visit func(id int64) bool

	visit = func(id int64) bool {
		color[id] = grey

		for _, next := range g.edges[id] {
			if color[next] == grey {
				// Unwind the grey chain back to next.
				cycle = []int64{next}
				for at := id; at != next; at = parent[at] {
					cycle = append(cycle, at)
				}

				return true
			}

			if color[next] == white {
				parent[next] = id
				if visit(next) {
					return true
				}
			}
		}

		color[id] = black

		return false
	}

	for _, id := range g.sortedIDs() {
		if color[id] == white && visit(id) {
			return cycle
		}
	}

	return nil
}

// ExecutionPlan returns output ids in evaluation order: dependencies first,
// ties broken by execution order, then id. Returns an error naming the
// cycle members when the graph is cyclic.
func (g *DependencyGraph) ExecutionPlan() ([]int64, error) {
	if cycle := g.Cycle(); cycle != nil {
		return nil, fmt.Errorf("output reference cycle: %v", cycle)
	}

	indegree := make(map[int64]int, len(g.outputs))
	dependents := make(map[int64][]int64, len(g.outputs))

	for id := range g.outputs {
		indegree[id] = len(g.edges[id])
	}

	for id, referenced := range g.edges {
		for _, dep := range referenced {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	ready := make([]int64, 0, len(g.outputs))
	for id, degree := range indegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}

	plan := make([]int64, 0, len(g.outputs))

	for len(ready) > 0 {
		g.sortByExecutionOrder(ready)

		next := ready[0]
		ready = ready[1:]
		plan = append(plan, next)

		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	return plan, nil
}

func (g *DependencyGraph) sortedIDs() []int64 {
	ids := make([]int64, 0, len(g.outputs))
	for id := range g.outputs {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

func (g *DependencyGraph) sortByExecutionOrder(ids []int64) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := g.outputs[ids[i]], g.outputs[ids[j]]
		if a.ExecutionOrder != b.ExecutionOrder {
			return a.ExecutionOrder < b.ExecutionOrder
		}

		return a.ID < b.ID
	})
}
