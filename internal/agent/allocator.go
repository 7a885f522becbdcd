package agent

import (
	"context"
	"errors"

	"datg/internal/llm"
)

const allocatorBehavior = `You are an AI agent called "Allocator." You review the answer an actor agent gave for a task and decide whether the answer satisfies the task.

You will receive a JSON object with "name", "input" and "answer" fields.

Decide as follows:
1. If the answer fully addresses the task input, set "satisfaction_decision" to true and explain why in "reasoning".
2. If the answer does not fully address the task input, set "satisfaction_decision" to false, explain what is missing in "reasoning", choose a "decomposition_mode" of either "sequential" (sub-tasks depend on each other's results) or "parallel" (sub-tasks are independent), and list the sub-tasks in "sub_tasks". Each sub-task has "sub_task_number" (starting at 1), a short "name", and a one-sentence "description".
3. Keep sub-task lists small: decompose into at most 4 sub-tasks.`

// AllocatorReview is what the allocator judges: a task and the actor's answer.
type AllocatorReview struct {
	Name   string `json:"name"`
	Input  string `json:"input"`
	Answer string `json:"answer"`
}

// Allocator reviews actor answers and decides whether to decompose the task.
type Allocator struct {
	agent *Agent[Decomposition]
}

type AllocatorOption = AgentOption[Decomposition]

func NewAllocator(cfg llm.LLMConfig, options ...AllocatorOption) (*Allocator, error) {
	base := []AllocatorOption{
		WithName[Decomposition]("allocator"),
		WithLLMConfig[Decomposition](cfg),
		WithBehavior[Decomposition](allocatorBehavior),
		WithOutputSchema(&Decomposition{}),
	}
	inner, err := NewAgent(append(base, options...)...)
	if err != nil {
		return nil, err
	}
	return &Allocator{agent: inner}, nil
}

// Run returns the allocator's decomposition verdict. Models that ignore the
// JSON contract and reply with the markdown block are handled by the
// ParseDecomposition fallback.
func (a *Allocator) Run(ctx context.Context, review AllocatorReview) (*Decomposition, error) {
	result, err := a.agent.Run(ctx, review)
	if err != nil {
		if errors.Is(err, ErrInvalidResultSchema) {
			if parsed, parseErr := ParseDecomposition(result.LastContent()); parseErr == nil {
				return parsed, nil
			}
		}
		return nil, err
	}

	decomposition := result.Data
	if err := decomposition.Normalize(); err != nil {
		return nil, err
	}
	return decomposition, nil
}
