package agent

import (
	"context"

	"datg/internal/llm"
)

const summarizerBehavior = `Your purpose is to process user input and generate a summary of the input as a task name.
You will receive the user input as a JSON object with an "input" field.
Summarize it with the fewest phrases and put the summary in the "task_name" field; it will be used as a task name.`

// TaskName is the summarizer's output: the first task's name.
type TaskName struct {
	Name string `json:"task_name"`
}

type summarizerInput struct {
	Input string `json:"input"`
}

// Summarizer condenses raw user input into the name of the first task.
type Summarizer struct {
	agent *Agent[TaskName]
}

type SummarizerOption = AgentOption[TaskName]

func NewSummarizer(cfg llm.LLMConfig, options ...SummarizerOption) (*Summarizer, error) {
	base := []SummarizerOption{
		WithName[TaskName]("summarizer"),
		WithLLMConfig[TaskName](cfg),
		WithBehavior[TaskName](summarizerBehavior),
		WithOutputSchema(&TaskName{}),
	}
	inner, err := NewAgent(append(base, options...)...)
	if err != nil {
		return nil, err
	}
	return &Summarizer{agent: inner}, nil
}

func (s *Summarizer) Run(ctx context.Context, userInput string) (*TaskName, error) {
	result, err := s.agent.Run(ctx, summarizerInput{Input: userInput})
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}
