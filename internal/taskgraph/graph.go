// Package taskgraph implements the directed acyclic task graph and its
// executor: tasks are graph nodes, dependencies are edges, and execution
// grows the graph dynamically as the allocator decomposes tasks.
package taskgraph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNodeExists   = errors.New("node already exists")
	ErrNodeNotFound = errors.New("node does not exist")
	ErrEdgeNotFound = errors.New("edge does not exist")
	ErrCycle        = errors.New("graph is not acyclic")
)

// node is a single graph node with full edge bookkeeping in both directions.
type node struct {
	name     string
	outEdges map[string]struct{}
	inEdges  map[string]struct{}
}

func newNode(name string) *node {
	return &node{
		name:     name,
		outEdges: make(map[string]struct{}),
		inEdges:  make(map[string]struct{}),
	}
}

// Graph is a DAG over named nodes. Nodes keep insertion order so traversals
// and renderings are deterministic.
type Graph struct {
	nodes map[string]*node
	order []string
}

func NewGraph() *Graph {
	g := &Graph{}
	g.Reset()
	return g
}

// Reset restores the graph to an empty state.
func (g *Graph) Reset() {
	g.nodes = make(map[string]*node)
	g.order = nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns node names in insertion order.
func (g *Graph) Nodes() []string {
	names := make([]string, len(g.order))
	copy(names, g.order)
	return names
}

// HasNode reports whether the named node exists.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// AddNode adds a node if it does not exist yet.
func (g *Graph) AddNode(name string) error {
	if _, ok := g.nodes[name]; ok {
		return fmt.Errorf("%w: %s", ErrNodeExists, name)
	}
	g.nodes[name] = newNode(name)
	g.order = append(g.order, name)
	return nil
}

// DeleteNode deletes a node and all edges referencing it.
func (g *Graph) DeleteNode(name string) error {
	target, ok := g.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}

	for predecessor := range target.inEdges {
		delete(g.nodes[predecessor].outEdges, name)
	}
	for successor := range target.outEdges {
		delete(g.nodes[successor].inEdges, name)
	}
	delete(g.nodes, name)

	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

// AddEdge adds a dependency edge between existing nodes. An edge that would
// create a cycle is rejected and the graph is left unchanged.
func (g *Graph) AddEdge(from, to string) error {
	fromNode, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, to)
	}

	fromNode.outEdges[to] = struct{}{}
	toNode.inEdges[from] = struct{}{}

	if _, err := g.TopologicalSort(); err != nil {
		delete(fromNode.outEdges, to)
		delete(toNode.inEdges, from)
		return fmt.Errorf("adding edge %s -> %s: %w", from, to, ErrCycle)
	}
	return nil
}

// DeleteEdge deletes an edge from the graph.
func (g *Graph) DeleteEdge(from, to string) error {
	fromNode, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	if _, ok := fromNode.outEdges[to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrEdgeNotFound, from, to)
	}
	delete(fromNode.outEdges, to)
	delete(g.nodes[to].inEdges, from)
	return nil
}

// HasEdge reports whether an edge exists.
func (g *Graph) HasEdge(from, to string) bool {
	fromNode, ok := g.nodes[from]
	if !ok {
		return false
	}
	_, ok = fromNode.outEdges[to]
	return ok
}

// Successors returns the direct successors of a node, sorted.
func (g *Graph) Successors(name string) []string {
	return sortedKeys(g.edgeSet(name, true))
}

// Predecessors returns the direct predecessors of a node, sorted.
func (g *Graph) Predecessors(name string) []string {
	return sortedKeys(g.edgeSet(name, false))
}

func (g *Graph) edgeSet(name string, out bool) map[string]struct{} {
	n, ok := g.nodes[name]
	if !ok {
		return nil
	}
	if out {
		return n.outEdges
	}
	return n.inEdges
}

// TopologicalSort returns a topological ordering of the DAG using Kahn's
// algorithm. Ready nodes are consumed in insertion order so ties resolve
// deterministically. Returns ErrCycle if the graph is not acyclic.
func (g *Graph) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for _, name := range g.order {
		inDegree[name] = len(g.nodes[name].inEdges)
	}

	var ready []string
	for _, name := range g.order {
		if inDegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		result = append(result, name)

		// Visit successors in insertion order for stable output.
		for _, successor := range g.order {
			if _, ok := g.nodes[name].outEdges[successor]; !ok {
				continue
			}
			inDegree[successor]--
			if inDegree[successor] == 0 {
				ready = append(ready, successor)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, ErrCycle
	}
	return result, nil
}

// Validate reports whether the graph is a valid DAG.
func (g *Graph) Validate() (bool, string) {
	if _, err := g.TopologicalSort(); err != nil {
		return false, "graph is not acyclic"
	}
	return true, "valid DAG"
}

// AllDownstreams returns all nodes reachable from the given node, in
// topological order.
func (g *Graph) AllDownstreams(name string) ([]string, error) {
	if _, ok := g.nodes[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}

	seen := map[string]struct{}{}
	toVisit := []string{name}
	for len(toVisit) > 0 {
		current := toVisit[len(toVisit)-1]
		toVisit = toVisit[:len(toVisit)-1]
		if _, ok := seen[current]; ok {
			continue
		}
		seen[current] = struct{}{}
		for successor := range g.nodes[current].outEdges {
			toVisit = append(toVisit, successor)
		}
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}
	var result []string
	for _, n := range order {
		if _, ok := seen[n]; ok {
			result = append(result, n)
		}
	}
	return result, nil
}

func (g *Graph) String() string {
	var sb strings.Builder
	sb.WriteString("TaskGraph(")
	for i, name := range g.order {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := g.nodes[name]
		fmt.Fprintf(&sb, "%s(out=%v, in=%v)", name, sortedKeys(n.outEdges), sortedKeys(n.inEdges))
	}
	sb.WriteString(")")
	return sb.String()
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
