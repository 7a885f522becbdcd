package taskgraph

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidGraphSpec = errors.New("invalid graph spec")

// GraphSpec is a predefined task graph loaded from a YAML file:
//
//	name: research-pipeline
//	input: what to work on
//	tasks:
//	  - name: gather
//	    description: collect the raw material
//	  - name: summarize
//	    description: condense the findings
//	    depends_on: [gather]
type GraphSpec struct {
	Name  string     `yaml:"name"`
	Input string     `yaml:"input,omitempty"`
	Tasks []SpecTask `yaml:"tasks"`
}

// SpecTask is one task entry of a graph spec.
type SpecTask struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Input       string   `yaml:"input,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty"`
}

// ParseGraphSpecFile parses and validates a graph spec from a YAML file.
func ParseGraphSpecFile(path string) (*GraphSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph spec: %w", err)
	}
	return ParseGraphSpec(data)
}

// ParseGraphSpec parses and validates a graph spec from YAML bytes. Unknown
// fields are rejected.
func ParseGraphSpec(data []byte) (*GraphSpec, error) {
	var spec GraphSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGraphSpec, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks spec-level invariants: a name, at least one task, unique
// non-reserved task names, known dependencies, and an acyclic graph.
func (s *GraphSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidGraphSpec)
	}
	if len(s.Tasks) == 0 {
		return fmt.Errorf("%w: at least one task is required", ErrInvalidGraphSpec)
	}

	seen := map[string]struct{}{}
	for _, task := range s.Tasks {
		if task.Name == "" {
			return fmt.Errorf("%w: task name is required", ErrInvalidGraphSpec)
		}
		if task.Name == AlphaTaskName || task.Name == OmegaTaskName {
			return fmt.Errorf("%w: task name %q is reserved", ErrInvalidGraphSpec, task.Name)
		}
		if _, ok := seen[task.Name]; ok {
			return fmt.Errorf("%w: duplicate task name %q", ErrInvalidGraphSpec, task.Name)
		}
		seen[task.Name] = struct{}{}
	}

	for _, task := range s.Tasks {
		for _, dep := range task.DependsOn {
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("%w: task %q depends on unknown task %q", ErrInvalidGraphSpec, task.Name, dep)
			}
		}
	}

	if _, err := s.BuildGraph(); err != nil {
		return err
	}
	return nil
}

// BuildGraph materialises the spec into a Graph, wiring the alpha task to
// every source and every sink to the omega task.
func (s *GraphSpec) BuildGraph() (*Graph, error) {
	g := NewGraph()
	if err := g.AddNode(AlphaTaskName); err != nil {
		return nil, err
	}
	for _, task := range s.Tasks {
		if err := g.AddNode(task.Name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGraphSpec, err)
		}
	}
	if err := g.AddNode(OmegaTaskName); err != nil {
		return nil, err
	}

	for _, task := range s.Tasks {
		for _, dep := range task.DependsOn {
			if err := g.AddEdge(dep, task.Name); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidGraphSpec, err)
			}
		}
	}

	for _, task := range s.Tasks {
		if len(task.DependsOn) == 0 {
			if err := g.AddEdge(AlphaTaskName, task.Name); err != nil {
				return nil, err
			}
		}
		if len(g.Successors(task.Name)) == 0 {
			if err := g.AddEdge(task.Name, OmegaTaskName); err != nil {
				return nil, err
			}
		}
	}

	return g, nil
}
