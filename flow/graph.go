package flow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/supportdesk/core"
	"github.com/hupe1980/supportdesk/logging"
)

// Reserved node names marking the entry and exit of a graph.
const (
	Start = "__start__"
	End   = "__end__"
)

// DefaultRecursionLimit bounds the number of node executions per run.
const DefaultRecursionLimit = 25

var (
	// ErrInvalidGraph is returned by Compile when the wiring is inconsistent.
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrRecursionLimit is returned when a run exceeds its step budget.
	ErrRecursionLimit = errors.New("recursion limit exceeded")

	// ErrInvalidRoute is returned when a router picks an unknown target.
	ErrInvalidRoute = errors.New("invalid route")
)

// Node is a unit of work in a graph.
type Node interface {
	Invoke(rc *core.RunContext, state State) (Update, error)
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc func(rc *core.RunContext, state State) (Update, error)

// Invoke implements Node.
func (f NodeFunc) Invoke(rc *core.RunContext, state State) (Update, error) { return f(rc, state) }

// Router selects the next node based on the state.
type Router func(state State) string

type branch struct {
	router  Router
	pathMap map[string]string
}

// Graph collects nodes and edges. Builder methods record wiring errors which
// Compile reports all at once.
type Graph struct {
	nodes    map[string]Node
	edges    map[string]string
	branches map[string]branch
	errs     []error
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    map[string]Node{},
		edges:    map[string]string{},
		branches: map[string]branch{},
	}
}

// AddNode registers a node under name.
func (g *Graph) AddNode(name string, node Node) *Graph {
	switch {
	case name == "" || name == Start || name == End:
		g.errs = append(g.errs, fmt.Errorf("node name %q is reserved", name))
	case node == nil:
		g.errs = append(g.errs, fmt.Errorf("node %q is nil", name))
	default:
		if _, exists := g.nodes[name]; exists {
			g.errs = append(g.errs, fmt.Errorf("node %q already exists", name))
			return g
		}
		g.nodes[name] = node
	}
	return g
}

// AddEdge adds an unconditional transition.
func (g *Graph) AddEdge(from, to string) *Graph {
	if _, exists := g.edges[from]; exists {
		g.errs = append(g.errs, fmt.Errorf("node %q already has an outgoing edge", from))
		return g
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdges routes from a node using router. When pathMap is
// non-nil the router result is looked up in it; otherwise the result is
// used as the target node name.
func (g *Graph) AddConditionalEdges(from string, router Router, pathMap map[string]string) *Graph {
	if router == nil {
		g.errs = append(g.errs, fmt.Errorf("router for %q is nil", from))
		return g
	}
	if _, exists := g.branches[from]; exists {
		g.errs = append(g.errs, fmt.Errorf("node %q already has conditional edges", from))
		return g
	}
	g.branches[from] = branch{router: router, pathMap: pathMap}
	return g
}

// SetEntryPoint wires Start to the named node.
func (g *Graph) SetEntryPoint(name string) *Graph { return g.AddEdge(Start, name) }

// CompileOptions tune a compiled graph.
type CompileOptions struct {
	Name           string
	RecursionLimit int
	Logger         logging.Logger
	Messages       MessagesReducer
	Values         ValuesReducer
}

// Compile validates the graph and returns a Runnable.
func (g *Graph) Compile(optFns ...func(o *CompileOptions)) (*Runnable, error) {
	opts := CompileOptions{
		Name:           "graph",
		RecursionLimit: DefaultRecursionLimit,
		Messages:       AppendMessages,
		Values:         MergeValues,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if err := g.validate(); err != nil {
		return nil, err
	}

	r := &Runnable{
		nodes:    make(map[string]Node, len(g.nodes)),
		edges:    make(map[string]string, len(g.edges)),
		branches: make(map[string]branch, len(g.branches)),
		opts:     opts,
	}
	for k, v := range g.nodes {
		r.nodes[k] = v
	}
	for k, v := range g.edges {
		r.edges[k] = v
	}
	for k, v := range g.branches {
		r.branches[k] = v
	}
	return r, nil
}

func (g *Graph) validate() error {
	errs := append([]error(nil), g.errs...)

	if _, ok := g.edges[Start]; !ok {
		errs = append(errs, errors.New("entry point not set"))
	}
	if _, ok := g.branches[Start]; ok {
		errs = append(errs, errors.New("start cannot have conditional edges"))
	}

	isTarget := func(name string) bool {
		_, ok := g.nodes[name]
		return ok || name == End
	}

	for _, from := range sortedKeys(g.edges) {
		to := g.edges[from]
		if _, ok := g.nodes[from]; !ok && from != Start {
			errs = append(errs, fmt.Errorf("edge source %q does not exist", from))
		}
		if !isTarget(to) {
			errs = append(errs, fmt.Errorf("edge target %q does not exist", to))
		}
		if _, ok := g.branches[from]; ok {
			errs = append(errs, fmt.Errorf("node %q has both an edge and conditional edges", from))
		}
	}

	for _, from := range sortedKeys(g.branches) {
		if _, ok := g.nodes[from]; !ok && from != Start {
			errs = append(errs, fmt.Errorf("conditional edge source %q does not exist", from))
		}
		for _, key := range sortedKeys(g.branches[from].pathMap) {
			if target := g.branches[from].pathMap[key]; !isTarget(target) {
				errs = append(errs, fmt.Errorf("conditional target %q of %q does not exist", target, from))
			}
		}
	}

	for _, name := range sortedKeys(g.nodes) {
		_, hasEdge := g.edges[name]
		_, hasBranch := g.branches[name]
		if !hasEdge && !hasBranch {
			errs = append(errs, fmt.Errorf("node %q has no outgoing edge", name))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(errs...))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
