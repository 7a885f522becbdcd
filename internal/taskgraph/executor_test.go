package taskgraph_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"datg/internal/agent"
	"datg/internal/llm"
	"datg/internal/taskgraph"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBrain backs all three agents with scripted replies. It tells the agents
// apart by their behavior text in the system prompt and the tasks apart by the
// JSON user message.
type fakeBrain struct {
	mu         sync.Mutex
	firstTask  string
	verdicts   map[string]agent.Decomposition
	failTasks  map[string]bool
	actorCalls []string
}

func newFakeBrain(firstTask string) *fakeBrain {
	return &fakeBrain{
		firstTask: firstTask,
		verdicts:  map[string]agent.Decomposition{},
		failTasks: map[string]bool{},
	}
}

func (f *fakeBrain) Call(_ context.Context, messages []llm.LLMMessage) (llm.LLMMessage, error) {
	system := messages[0].Content
	user := messages[len(messages)-1].Content

	switch {
	case strings.Contains(system, `called "Allocator."`):
		return f.allocate(user)
	case strings.Contains(system, `called "Actor."`):
		return f.act(user)
	default:
		return f.reply(agent.TaskName{Name: f.firstTask})
	}
}

func (f *fakeBrain) act(user string) (llm.LLMMessage, error) {
	var input agent.ActorInput
	if err := json.Unmarshal([]byte(user), &input); err != nil {
		return llm.LLMMessage{}, err
	}

	f.mu.Lock()
	f.actorCalls = append(f.actorCalls, input.Name)
	fail := f.failTasks[input.Name]
	f.mu.Unlock()

	if fail {
		return llm.LLMMessage{}, fmt.Errorf("scripted failure for %s", input.Name)
	}
	return f.reply(agent.ActorReply{Answer: "answer for " + input.Name})
}

func (f *fakeBrain) allocate(user string) (llm.LLMMessage, error) {
	var review agent.AllocatorReview
	if err := json.Unmarshal([]byte(user), &review); err != nil {
		return llm.LLMMessage{}, err
	}

	f.mu.Lock()
	verdict, ok := f.verdicts[review.Name]
	delete(f.verdicts, review.Name)
	f.mu.Unlock()

	if !ok {
		verdict = agent.Decomposition{Satisfied: true, Reasoning: "answer addresses the task"}
	}
	return f.reply(verdict)
}

func (f *fakeBrain) reply(payload any) (llm.LLMMessage, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return llm.LLMMessage{}, err
	}
	return llm.LLMMessage{
		Type:    llm.LLMMessageTypeAssistant,
		Content: string(content),
		End:     true,
	}, nil
}

func buildAgents(t *testing.T, brain *fakeBrain) (*agent.Actor, *agent.Allocator, *agent.Summarizer) {
	t.Helper()

	actor, err := agent.NewActor(llm.LLMConfig{}, agent.WithLLM[agent.ActorReply](brain))
	require.NoError(t, err)
	allocator, err := agent.NewAllocator(llm.LLMConfig{}, agent.WithLLM[agent.Decomposition](brain))
	require.NoError(t, err)
	summarizer, err := agent.NewSummarizer(llm.LLMConfig{}, agent.WithLLM[agent.TaskName](brain))
	require.NoError(t, err)
	return actor, allocator, summarizer
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func tripVerdict(mode agent.DecompositionMode) agent.Decomposition {
	return agent.Decomposition{
		Satisfied: false,
		Reasoning: "the plan is missing concrete bookings",
		Mode:      mode,
		SubTasks: []agent.SubTask{
			{Number: 1, Name: "Book Flights", Description: "Book flights for the trip."},
			{Number: 2, Name: "Reserve Hotel", Description: "Reserve a hotel for the stay."},
		},
	}
}

func TestRunDynamicSequentialDecomposition(t *testing.T) {
	// given
	brain := newFakeBrain("Plan Trip")
	brain.verdicts["plan_trip"] = tripVerdict(agent.DecompositionModeSequential)
	actor, allocator, summarizer := buildAgents(t, brain)

	var logBuffer bytes.Buffer
	executor, err := taskgraph.NewExecutor(
		taskgraph.WithActor(actor),
		taskgraph.WithAllocator(allocator),
		taskgraph.WithSummarizer(summarizer),
		taskgraph.WithRunID("test-run"),
		taskgraph.WithRunLog(taskgraph.NewTimestampedWriter(&logBuffer)),
		taskgraph.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	// when
	result, err := executor.RunDynamic(context.Background(), "Plan a trip to Lisbon")

	// then
	require.NoError(t, err)
	assert.Equal(t, "test-run", result.RunID)
	assert.Equal(t, "answer for reserve_hotel", result.Answer)

	graph := result.Graph
	assert.Equal(t, 5, graph.Len())
	assert.True(t, graph.HasEdge(taskgraph.AlphaTaskName, "plan_trip"))
	assert.True(t, graph.HasEdge("plan_trip", "book_flights"))
	assert.True(t, graph.HasEdge("book_flights", "reserve_hotel"))
	assert.True(t, graph.HasEdge("reserve_hotel", taskgraph.OmegaTaskName))
	assert.False(t, graph.HasEdge("plan_trip", taskgraph.OmegaTaskName), "decomposed task must hand its successors to the sub-tasks")

	assert.Contains(t, logBuffer.String(), "plan_trip task decomposed (sequential) into: book_flights, reserve_hotel")
	assert.Contains(t, logBuffer.String(), "run test-run completed")
}

func TestRunDynamicParallelDecomposition(t *testing.T) {
	// given
	brain := newFakeBrain("Plan Trip")
	brain.verdicts["plan_trip"] = tripVerdict(agent.DecompositionModeParallel)
	actor, allocator, summarizer := buildAgents(t, brain)

	executor, err := taskgraph.NewExecutor(
		taskgraph.WithActor(actor),
		taskgraph.WithAllocator(allocator),
		taskgraph.WithSummarizer(summarizer),
		taskgraph.WithMaxParallel(2),
		taskgraph.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	// when
	result, err := executor.RunDynamic(context.Background(), "Plan a trip to Lisbon")

	// then
	require.NoError(t, err)
	// The final task joins the parallel answers in alphabetical order.
	assert.Equal(t, "answer for book_flights\n\nanswer for reserve_hotel", result.Answer)

	graph := result.Graph
	assert.True(t, graph.HasEdge("plan_trip", "book_flights"))
	assert.True(t, graph.HasEdge("plan_trip", "reserve_hotel"))
	assert.True(t, graph.HasEdge("book_flights", taskgraph.OmegaTaskName))
	assert.True(t, graph.HasEdge("reserve_hotel", taskgraph.OmegaTaskName))
	assert.False(t, graph.HasEdge("book_flights", "reserve_hotel"))
}

func TestRunDynamicParallelDecompositionExceedingLimit(t *testing.T) {
	// given a parallelism limit below the width of the decomposition
	brain := newFakeBrain("Plan Trip")
	brain.verdicts["plan_trip"] = tripVerdict(agent.DecompositionModeParallel)
	actor, allocator, summarizer := buildAgents(t, brain)

	executor, err := taskgraph.NewExecutor(
		taskgraph.WithActor(actor),
		taskgraph.WithAllocator(allocator),
		taskgraph.WithSummarizer(summarizer),
		taskgraph.WithMaxParallel(1),
		taskgraph.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	type runOutcome struct {
		result *taskgraph.RunResult
		err    error
	}
	outcome := make(chan runOutcome, 1)
	go func() {
		result, err := executor.RunDynamic(context.Background(), "Plan a trip to Lisbon")
		outcome <- runOutcome{result: result, err: err}
	}()

	// then the run drains instead of stalling on the full worker pool
	select {
	case out := <-outcome:
		require.NoError(t, out.err)
		assert.Equal(t, "answer for book_flights\n\nanswer for reserve_hotel", out.result.Answer)
	case <-time.After(10 * time.Second):
		t.Fatal("run never completed with max-parallel below the decomposition width")
	}
}

func TestRunDynamicDepthLimit(t *testing.T) {
	// given
	brain := newFakeBrain("Plan Trip")
	brain.verdicts["plan_trip"] = tripVerdict(agent.DecompositionModeSequential)
	actor, allocator, summarizer := buildAgents(t, brain)

	executor, err := taskgraph.NewExecutor(
		taskgraph.WithActor(actor),
		taskgraph.WithAllocator(allocator),
		taskgraph.WithSummarizer(summarizer),
		taskgraph.WithMaxDepth(1),
		taskgraph.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	// when
	result, err := executor.RunDynamic(context.Background(), "Plan a trip to Lisbon")

	// then
	require.NoError(t, err)
	// At the depth bound the allocator is never consulted.
	assert.Equal(t, "answer for plan_trip", result.Answer)
	assert.Equal(t, 3, result.Graph.Len())
	assert.Equal(t, []string{"plan_trip"}, brain.actorCalls)
}

func TestRunDynamicEmptyInput(t *testing.T) {
	// given
	brain := newFakeBrain("noop")
	actor, allocator, summarizer := buildAgents(t, brain)
	executor, err := taskgraph.NewExecutor(
		taskgraph.WithActor(actor),
		taskgraph.WithAllocator(allocator),
		taskgraph.WithSummarizer(summarizer),
		taskgraph.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	// when
	_, err = executor.RunDynamic(context.Background(), "   ")

	// then
	require.ErrorIs(t, err, taskgraph.ErrEmptyInput)
}

func TestRunDynamicRequiresAllAgents(t *testing.T) {
	// given
	brain := newFakeBrain("noop")
	actor, _, _ := buildAgents(t, brain)
	executor, err := taskgraph.NewExecutor(
		taskgraph.WithActor(actor),
		taskgraph.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	// when
	_, err = executor.RunDynamic(context.Background(), "question")

	// then
	require.ErrorIs(t, err, taskgraph.ErrMissingAgents)
}

func TestNewExecutorRequiresActor(t *testing.T) {
	_, err := taskgraph.NewExecutor()
	require.ErrorIs(t, err, taskgraph.ErrMissingAgents)
}

func staticSpec() *taskgraph.GraphSpec {
	return &taskgraph.GraphSpec{
		Name:  "pipeline",
		Input: "quarterly numbers",
		Tasks: []taskgraph.SpecTask{
			{Name: "fetch", Description: "Fetch the raw data."},
			{Name: "report", Description: "Write the report.", DependsOn: []string{"fetch"}},
		},
	}
}

func TestRunStatic(t *testing.T) {
	// given
	brain := newFakeBrain("unused")
	actor, _, _ := buildAgents(t, brain)
	executor, err := taskgraph.NewExecutor(
		taskgraph.WithActor(actor),
		taskgraph.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	// when
	result, err := executor.RunStatic(context.Background(), staticSpec())

	// then
	require.NoError(t, err)
	assert.Equal(t, "answer for report", result.Answer)
	assert.Equal(t, []string{"fetch", "report"}, brain.actorCalls)
	assert.True(t, result.Graph.HasEdge(taskgraph.AlphaTaskName, "fetch"))
	assert.True(t, result.Graph.HasEdge("fetch", "report"))
	assert.True(t, result.Graph.HasEdge("report", taskgraph.OmegaTaskName))
}

func TestRunStaticFailurePropagates(t *testing.T) {
	// given
	brain := newFakeBrain("unused")
	brain.failTasks["fetch"] = true
	actor, _, _ := buildAgents(t, brain)
	executor, err := taskgraph.NewExecutor(
		taskgraph.WithActor(actor),
		taskgraph.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	// when
	_, err = executor.RunStatic(context.Background(), staticSpec())

	// then
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrLLMCall)
	assert.Contains(t, err.Error(), "task fetch")
}
