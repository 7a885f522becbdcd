package taskgraph

import (
	"fmt"
	"strings"

	"datg/internal/agent"
	"datg/internal/llm"
)

// Reserved virtual task names. The alpha task feeds user input into the
// graph; the omega task collects the final output.
const (
	AlphaTaskName = "alpha_task"
	OmegaTaskName = "omega_task"
)

type TaskKind string

const (
	TaskKindAlpha    TaskKind = "alpha"
	TaskKindOmega    TaskKind = "omega"
	TaskKindStandard TaskKind = "standard"
)

// Task is a single node's unit of work.
type Task struct {
	Name        string
	Kind        TaskKind
	Description string
	// Input is what the task works on; for standard tasks it is assembled
	// from the outputs of completed predecessors.
	Input  string
	Output *TaskOutput
	// Tools the task's actor is limited to use.
	Tools []llm.LLMTool
}

// TaskOutput records what a finished task produced.
type TaskOutput struct {
	Kind TaskKind
	// Answer is the text flowing to successor tasks. For a decomposed task
	// it is the task input passed through to its sub-tasks.
	Answer string
	// Reasoning is the allocator's explanation of its decision.
	Reasoning string
	// Decomposition is the allocator's verdict; nil for virtual tasks.
	Decomposition *agent.Decomposition
}

// Decomposed reports whether the task was split into sub-tasks.
func (o *TaskOutput) Decomposed() bool {
	return o != nil && o.Decomposition != nil && !o.Decomposition.Satisfied
}

func newAlphaTask(userInput string) *Task {
	return &Task{
		Name:  AlphaTaskName,
		Kind:  TaskKindAlpha,
		Input: userInput,
		Output: &TaskOutput{
			Kind:   TaskKindAlpha,
			Answer: userInput,
		},
	}
}

func newOmegaTask() *Task {
	return &Task{
		Name: OmegaTaskName,
		Kind: TaskKindOmega,
	}
}

// sanitizeTaskName turns free-form model output into a usable node name.
func sanitizeTaskName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = strings.ToLower(name)
	if name == "" || name == AlphaTaskName || name == OmegaTaskName {
		return "task"
	}
	return name
}

// uniqueName resolves collisions by numeric suffix: name, name-2, name-3...
func uniqueName(g *Graph, name string) string {
	if !g.HasNode(name) {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", name, i)
		if !g.HasNode(candidate) {
			return candidate
		}
	}
}
