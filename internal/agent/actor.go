package agent

import (
	"context"
	"errors"

	"datg/internal/llm"
)

const actorBehavior = `You are an AI agent called "Actor." Your purpose is to address user requests effectively.

Key principles for your response:
1. Directly respond to the user input without unnecessary elaboration unless clarification is needed.
2. Ensure accuracy and provide clear, concise information or guidance.
3. Use examples or additional context only if they improve the user's understanding.
4. Maintain a natural and user-friendly tone throughout.

You will receive the task input as a JSON object with "name", "description" and "input" fields.
Put your response in the "answer" field of the output object.`

// ActorReply is the actor's answer to a task input.
type ActorReply struct {
	Answer string `json:"answer"`
}

// ActorInput is what the actor is asked to work on.
type ActorInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Input       string `json:"input"`
}

// Actor generates responses to task inputs in a concise and accurate manner.
type Actor struct {
	agent *Agent[ActorReply]
}

// ActorOption configures the underlying agent, e.g. to attach tools.
type ActorOption = AgentOption[ActorReply]

func NewActor(cfg llm.LLMConfig, options ...ActorOption) (*Actor, error) {
	base := []ActorOption{
		WithName[ActorReply]("actor"),
		WithLLMConfig[ActorReply](cfg),
		WithBehavior[ActorReply](actorBehavior),
		WithOutputSchema(&ActorReply{}),
	}
	inner, err := NewAgent(append(base, options...)...)
	if err != nil {
		return nil, err
	}
	return &Actor{agent: inner}, nil
}

func (a *Actor) Run(ctx context.Context, input ActorInput) (*ActorReply, error) {
	result, err := a.agent.Run(ctx, input)
	if err != nil {
		// Plain-text reply that did not follow the JSON contract.
		if errors.Is(err, ErrInvalidResultSchema) && result.LastContent() != "" {
			return &ActorReply{Answer: result.LastContent()}, nil
		}
		return nil, err
	}
	return result.Data, nil
}
