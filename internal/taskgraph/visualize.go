package taskgraph

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RenderDOT generates a Graphviz DOT digraph for the graph, laid out left to
// right. Feed the output to `dot -Tpng` to produce an image.
func RenderDOT(g *Graph) string {
	var sb strings.Builder
	sb.WriteString("digraph TaskGraph {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=lightblue];\n")

	for _, name := range g.Nodes() {
		fmt.Fprintf(&sb, "  %q;\n", name)
	}
	for _, name := range g.Nodes() {
		for _, successor := range g.Successors(name) {
			fmt.Fprintf(&sb, "  %q -> %q;\n", name, successor)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// RenderASCII generates a plain-text representation of the graph: a summary
// header followed by the nodes in topological order with their edges.
func RenderASCII(g *Graph) string {
	var sb strings.Builder

	edgeCount := 0
	for _, name := range g.Nodes() {
		edgeCount += len(g.Successors(name))
	}
	fmt.Fprintf(&sb, "Task Graph\n==========\nTasks: %d  |  Edges: %d\n\n", g.Len(), edgeCount)

	order, err := g.TopologicalSort()
	if err != nil {
		sb.WriteString("graph is not acyclic; listing nodes in insertion order\n")
		order = g.Nodes()
	}

	for i, name := range order {
		prefix := "|-"
		if i == len(order)-1 {
			prefix = "+-"
		}
		successors := g.Successors(name)
		if len(successors) == 0 {
			fmt.Fprintf(&sb, "%s %s\n", prefix, name)
			continue
		}
		fmt.Fprintf(&sb, "%s %s -> %s\n", prefix, name, strings.Join(successors, ", "))
	}

	return sb.String()
}

// WriteDOT writes the DOT rendering to path, creating parent directories.
func WriteDOT(g *Graph, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(RenderDOT(g)), 0o644); err != nil {
		return fmt.Errorf("writing DOT file: %w", err)
	}
	return nil
}
