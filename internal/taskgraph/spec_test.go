package taskgraph_test

import (
	"os"
	"path/filepath"
	"testing"

	"datg/internal/taskgraph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSpecYAML = `name: research-pipeline
input: the state of solid-state batteries
tasks:
  - name: gather
    description: collect the raw material
  - name: check
    description: verify the sources
  - name: summarize
    description: condense the findings
    depends_on: [gather, check]
`

func TestParseGraphSpec(t *testing.T) {
	// when
	spec, err := taskgraph.ParseGraphSpec([]byte(validSpecYAML))

	// then
	require.NoError(t, err)
	assert.Equal(t, "research-pipeline", spec.Name)
	assert.Equal(t, "the state of solid-state batteries", spec.Input)
	require.Len(t, spec.Tasks, 3)
	assert.Equal(t, []string{"gather", "check"}, spec.Tasks[2].DependsOn)
}

func TestParseGraphSpecFile(t *testing.T) {
	// given
	path := filepath.Join(t.TempDir(), "pipeline.yml")
	require.NoError(t, os.WriteFile(path, []byte(validSpecYAML), 0o644))

	// when
	spec, err := taskgraph.ParseGraphSpecFile(path)

	// then
	require.NoError(t, err)
	assert.Equal(t, "research-pipeline", spec.Name)
}

func TestParseGraphSpecRejectsUnknownFields(t *testing.T) {
	// given
	data := []byte("name: x\ntasks:\n  - name: a\n    retries: 3\n")

	// when
	_, err := taskgraph.ParseGraphSpec(data)

	// then
	require.ErrorIs(t, err, taskgraph.ErrInvalidGraphSpec)
}

func TestGraphSpecValidate(t *testing.T) {
	tests := []struct {
		name string
		spec taskgraph.GraphSpec
	}{
		{
			name: "missing name",
			spec: taskgraph.GraphSpec{Tasks: []taskgraph.SpecTask{{Name: "a"}}},
		},
		{
			name: "no tasks",
			spec: taskgraph.GraphSpec{Name: "x"},
		},
		{
			name: "duplicate task names",
			spec: taskgraph.GraphSpec{Name: "x", Tasks: []taskgraph.SpecTask{{Name: "a"}, {Name: "a"}}},
		},
		{
			name: "reserved task name",
			spec: taskgraph.GraphSpec{Name: "x", Tasks: []taskgraph.SpecTask{{Name: taskgraph.AlphaTaskName}}},
		},
		{
			name: "unknown dependency",
			spec: taskgraph.GraphSpec{Name: "x", Tasks: []taskgraph.SpecTask{{Name: "a", DependsOn: []string{"missing"}}}},
		},
		{
			name: "dependency cycle",
			spec: taskgraph.GraphSpec{Name: "x", Tasks: []taskgraph.SpecTask{
				{Name: "a", DependsOn: []string{"b"}},
				{Name: "b", DependsOn: []string{"a"}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.spec.Validate(), taskgraph.ErrInvalidGraphSpec)
		})
	}
}

func TestBuildGraphWiresAlphaAndOmega(t *testing.T) {
	// given
	spec, err := taskgraph.ParseGraphSpec([]byte(validSpecYAML))
	require.NoError(t, err)

	// when
	graph, err := spec.BuildGraph()

	// then
	require.NoError(t, err)
	assert.Equal(t, 5, graph.Len())
	assert.True(t, graph.HasEdge(taskgraph.AlphaTaskName, "gather"))
	assert.True(t, graph.HasEdge(taskgraph.AlphaTaskName, "check"))
	assert.True(t, graph.HasEdge("gather", "summarize"))
	assert.True(t, graph.HasEdge("check", "summarize"))
	assert.True(t, graph.HasEdge("summarize", taskgraph.OmegaTaskName))
	assert.False(t, graph.HasEdge("gather", taskgraph.OmegaTaskName))
}
