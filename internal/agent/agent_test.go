package agent_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"datg/internal/agent"
	"datg/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM replays canned assistant messages.
type scriptedLLM struct {
	replies []llm.LLMMessage
	calls   int
}

func (s *scriptedLLM) Call(ctx context.Context, msgs []llm.LLMMessage) (llm.LLMMessage, error) {
	if s.calls >= len(s.replies) {
		return llm.LLMMessage{}, fmt.Errorf("no scripted reply for call %d", s.calls)
	}
	reply := s.replies[s.calls]
	s.calls++
	return reply, nil
}

func assistantReply(content string, end bool) llm.LLMMessage {
	msg := llm.NewLLMMessage(llm.LLMMessageTypeAssistant, content)
	msg.End = end
	return msg
}

type sumResult struct {
	Sum int `json:"sum"`
}

func TestAgentReturnsValidatedOutput(t *testing.T) {
	// given
	scripted := &scriptedLLM{replies: []llm.LLMMessage{
		assistantReply(`{"sum": 8}`, true),
	}}
	sumAgent, err := agent.NewAgent(
		agent.WithName[sumResult]("calculator"),
		agent.WithLLM[sumResult](scripted),
		agent.WithBehavior[sumResult]("Add the two provided numbers."),
		agent.WithOutputSchema(&sumResult{}),
	)
	require.NoError(t, err)

	// when
	result, err := sumAgent.Run(context.Background(), map[string]int{"num1": 3, "num2": 5})

	// then
	require.NoError(t, err)
	require.NotNil(t, result.Data)
	assert.Equal(t, 8, result.Data.Sum)
	assert.NotEmpty(t, result.Messages)
}

func TestAgentRejectsInvalidOutputSchema(t *testing.T) {
	// given
	scripted := &scriptedLLM{replies: []llm.LLMMessage{
		assistantReply(`{"sum": "not a number"}`, true),
	}}
	sumAgent, err := agent.NewAgent(
		agent.WithName[sumResult]("calculator"),
		agent.WithLLM[sumResult](scripted),
		agent.WithBehavior[sumResult]("Add the two provided numbers."),
		agent.WithOutputSchema(&sumResult{}),
	)
	require.NoError(t, err)

	// when
	result, err := sumAgent.Run(context.Background(), map[string]int{"num1": 3, "num2": 5})

	// then
	require.ErrorIs(t, err, agent.ErrInvalidResultSchema)
	assert.Equal(t, `{"sum": "not a number"}`, result.LastContent())
}

func TestAgentDispatchesToolCalls(t *testing.T) {
	// given
	toolCall := llm.NewLLMMessage(llm.LLMMessageTypeAssistant, "")
	toolCall.ToolCalls = []llm.LLMToolCall{
		llm.NewLLMToolCall("call-1", "add", map[string]any{"num1": float64(3), "num2": float64(5)}),
	}
	scripted := &scriptedLLM{replies: []llm.LLMMessage{
		toolCall,
		assistantReply(`{"sum": 8}`, true),
	}}

	var invoked bool
	addTool := llm.NewLLMTool(
		llm.WithLLMToolName("add"),
		llm.WithLLMToolDescription("Adds two numbers together"),
		llm.WithLLMToolParametersSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"num1": map[string]any{"type": "number"},
				"num2": map[string]any{"type": "number"},
			},
			"required": []string{"num1", "num2"},
		}),
		llm.WithLLMToolCall(func(id string, args map[string]any) (llm.BaseLLMToolResult, error) {
			invoked = true
			return llm.BaseLLMToolResult{ID: id}, nil
		}),
	)

	sumAgent, err := agent.NewAgent(
		agent.WithName[sumResult]("calculator"),
		agent.WithLLM[sumResult](scripted),
		agent.WithBehavior[sumResult]("Use the add tool, then report the sum."),
		agent.WithTool[sumResult]("add", addTool),
		agent.WithOutputSchema(&sumResult{}),
	)
	require.NoError(t, err)

	// when
	result, err := sumAgent.Run(context.Background(), map[string]int{"num1": 3, "num2": 5})

	// then
	require.NoError(t, err)
	assert.True(t, invoked, "tool should have been invoked")
	assert.Equal(t, 8, result.Data.Sum)
}

func TestAgentUnknownToolFails(t *testing.T) {
	// given
	toolCall := llm.NewLLMMessage(llm.LLMMessageTypeAssistant, "")
	toolCall.ToolCalls = []llm.LLMToolCall{
		llm.NewLLMToolCall("call-1", "subtract", nil),
	}
	scripted := &scriptedLLM{replies: []llm.LLMMessage{toolCall}}

	sumAgent, err := agent.NewAgent(
		agent.WithName[sumResult]("calculator"),
		agent.WithLLM[sumResult](scripted),
		agent.WithBehavior[sumResult]("Add the two provided numbers."),
		agent.WithOutputSchema(&sumResult{}),
	)
	require.NoError(t, err)

	// when
	_, err = sumAgent.Run(context.Background(), map[string]int{"num1": 3, "num2": 5})

	// then
	require.ErrorIs(t, err, agent.ErrToolError)
}

// TestSumAgentOpenAI exercises the real OpenAI backend and only runs when
// OPENAI_API_KEY is set.
func TestSumAgentOpenAI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY environment variable is not set")
	}

	// given
	sumAgent, err := agent.NewAgent(
		agent.WithName[sumResult]("calculator"),
		agent.WithLLMConfig[sumResult](llm.LLMConfig{
			Provider:    llm.ProviderOpenAI,
			APIKey:      apiKey,
			Model:       "gpt-4.1",
			Temperature: 0.0,
		}),
		agent.WithBehavior[sumResult]("You are a calculator agent. Calculate the sum of the two provided numbers and return it in the specified JSON format."),
		agent.WithOutputSchema(&sumResult{}),
	)
	require.NoError(t, err, "Failed to create agent")

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	// when
	result, err := sumAgent.Run(ctx, map[string]int{"num1": 3, "num2": 5})

	// then
	require.NoError(t, err, "Agent run should not fail")
	require.NotNil(t, result.Data, "Result data should not be nil")
	assert.Equal(t, 8, result.Data.Sum, "Sum should be 8 (3 + 5)")
}

func TestActorFallsBackToPlainText(t *testing.T) {
	// given
	scripted := &scriptedLLM{replies: []llm.LLMMessage{
		assistantReply("Kyoto has excellent temples.", true),
	}}
	actor, err := agent.NewActor(llm.LLMConfig{}, agent.WithLLM[agent.ActorReply](scripted))
	require.NoError(t, err)

	// when
	reply, err := actor.Run(context.Background(), agent.ActorInput{Name: "trip", Input: "plan a trip"})

	// then
	require.NoError(t, err)
	assert.Equal(t, "Kyoto has excellent temples.", reply.Answer)
}

func TestAllocatorFallsBackToMarkdown(t *testing.T) {
	// given
	markdown := "**Satisfaction Decision**: True\n**Reasoning**: The answer covers the task."
	scripted := &scriptedLLM{replies: []llm.LLMMessage{
		assistantReply(markdown, true),
	}}
	allocator, err := agent.NewAllocator(llm.LLMConfig{}, agent.WithLLM[agent.Decomposition](scripted))
	require.NoError(t, err)

	// when
	decomposition, err := allocator.Run(context.Background(), agent.AllocatorReview{
		Name:   "trip",
		Input:  "plan a trip",
		Answer: "done",
	})

	// then
	require.NoError(t, err)
	assert.True(t, decomposition.Satisfied)
	assert.Equal(t, "The answer covers the task.", decomposition.Reasoning)
}

func TestAllocatorParsesJSONVerdict(t *testing.T) {
	// given
	verdict := agent.Decomposition{
		Satisfied: false,
		Reasoning: "needs research first",
		Mode:      agent.DecompositionModeSequential,
		SubTasks: []agent.SubTask{
			{Number: 1, Description: "collect sources", Name: "research"},
			{Number: 2, Description: "write the answer", Name: "draft"},
		},
	}
	payload, err := json.Marshal(verdict)
	require.NoError(t, err)

	scripted := &scriptedLLM{replies: []llm.LLMMessage{
		assistantReply(string(payload), true),
	}}
	allocator, err := agent.NewAllocator(llm.LLMConfig{}, agent.WithLLM[agent.Decomposition](scripted))
	require.NoError(t, err)

	// when
	decomposition, err := allocator.Run(context.Background(), agent.AllocatorReview{
		Name:   "trip",
		Input:  "plan a trip",
		Answer: "partial",
	})

	// then
	require.NoError(t, err)
	assert.False(t, decomposition.Satisfied)
	assert.Equal(t, agent.DecompositionModeSequential, decomposition.Mode)
	require.Len(t, decomposition.SubTasks, 2)
	assert.Equal(t, "research", decomposition.SubTasks[0].Name)
}
