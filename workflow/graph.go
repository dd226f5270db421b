package workflow

import (
	"context"
	"fmt"

	"github.com/mirrorlake/augur/research"
)

// Predicate decides at schedule time whether a step should execute. It reads
// a frozen view of the state; a false result moves the step to Skipped.
type Predicate func(view research.View) bool

// StepDefinition is the static metadata of one pipeline step. Definitions are
// built once at startup and shared read-only across runs.
type StepDefinition struct {
	// Name uniquely identifies the step within the graph.
	Name string
	// Topic is the primary topic key the step writes evidence under.
	Topic string
	// DependsOn lists step names that must reach a terminal state first.
	DependsOn []string
	// Reads lists the topic keys the step's view is built from.
	Reads []string
	// Required marks steps whose failure fails the whole run. Best-effort
	// steps record their failure and the run proceeds.
	Required bool
	// Predicate gates execution. Nil means always execute.
	Predicate Predicate
}

// Executor runs one step against a frozen view and returns its delta.
// Failures are encoded in the delta's outcome, never raised: a step always
// produces a delta.
type Executor interface {
	Execute(ctx context.Context, def StepDefinition, view research.View) *research.Delta
}

// Graph declares the pipeline steps and their dependency edges. It is
// validated once at construction and immutable afterwards.
type Graph struct {
	steps  []StepDefinition
	byName map[string]StepDefinition
	// order is a topological order of step names used by the scheduler.
	order []string
}

// NewGraph validates the step definitions and returns the graph. Names must
// be unique and non-empty, dependencies must reference known steps, and the
// dependency relation must be acyclic.
func NewGraph(defs ...StepDefinition) (*Graph, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("graph: no steps defined")
	}

	byName := make(map[string]StepDefinition, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("graph: step with empty name")
		}
		if _, dup := byName[def.Name]; dup {
			return nil, fmt.Errorf("graph: duplicate step name %q", def.Name)
		}
		byName[def.Name] = def
	}
	for _, def := range defs {
		for _, dep := range def.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("graph: step %q depends on unknown step %q", def.Name, dep)
			}
			if dep == def.Name {
				return nil, fmt.Errorf("graph: step %q depends on itself", def.Name)
			}
		}
	}

	order, err := topoSort(defs, byName)
	if err != nil {
		return nil, err
	}

	return &Graph{steps: defs, byName: byName, order: order}, nil
}

// MustGraph is NewGraph that panics on an invalid definition. Intended for
// the process-wide pipeline built at startup.
func MustGraph(defs ...StepDefinition) *Graph {
	g, err := NewGraph(defs...)
	if err != nil {
		panic(err)
	}
	return g
}

// Step returns the definition for a step name.
func (g *Graph) Step(name string) (StepDefinition, bool) {
	def, ok := g.byName[name]
	return def, ok
}

// Steps returns the definitions in topological order.
func (g *Graph) Steps() []StepDefinition {
	out := make([]StepDefinition, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.byName[name])
	}
	return out
}

// Len returns the number of steps in the graph.
func (g *Graph) Len() int { return len(g.steps) }

// topoSort is Kahn's algorithm over the dependency edges. A remaining node
// after the queue drains means a cycle.
func topoSort(defs []StepDefinition, byName map[string]StepDefinition) ([]string, error) {
	indegree := make(map[string]int, len(defs))
	dependents := make(map[string][]string, len(defs))
	for _, def := range defs {
		indegree[def.Name] += 0
		for _, dep := range def.DependsOn {
			indegree[def.Name]++
			dependents[dep] = append(dependents[dep], def.Name)
		}
	}

	// Seed the queue in declaration order so the result is stable.
	var queue []string
	for _, def := range defs {
		if indegree[def.Name] == 0 {
			queue = append(queue, def.Name)
		}
	}

	order := make([]string, 0, len(defs))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)
		for _, next := range dependents[name] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(defs) {
		return nil, fmt.Errorf("graph: dependency cycle detected")
	}
	return order, nil
}
