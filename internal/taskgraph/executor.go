package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"datg/internal/agent"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrMissingAgents = errors.New("executor requires actor, allocator and summarizer agents")
	ErrEmptyInput    = errors.New("user input cannot be empty")
	ErrNoProgress    = errors.New("no runnable tasks remain")
)

// Executor grows and runs a task graph. Tasks whose dependencies are all
// complete run concurrently up to the parallelism limit; unsatisfied tasks
// are expanded in place with the allocator's sub-tasks, bounded by depth.
type Executor struct {
	actor      *agent.Actor
	allocator  *agent.Allocator
	summarizer *agent.Summarizer

	maxParallel int
	maxDepth    int
	runID       string
	log         logrus.FieldLogger
	runLog      io.Writer

	mu    sync.Mutex
	graph *Graph
	tasks map[string]*Task
	depth map[string]int
}

type ExecutorOption func(*Executor)

func WithActor(a *agent.Actor) ExecutorOption {
	return func(e *Executor) { e.actor = a }
}

func WithAllocator(a *agent.Allocator) ExecutorOption {
	return func(e *Executor) { e.allocator = a }
}

func WithSummarizer(s *agent.Summarizer) ExecutorOption {
	return func(e *Executor) { e.summarizer = s }
}

func WithMaxParallel(n int) ExecutorOption {
	return func(e *Executor) {
		if n >= 1 {
			e.maxParallel = n
		}
	}
}

func WithMaxDepth(n int) ExecutorOption {
	return func(e *Executor) {
		if n >= 1 {
			e.maxDepth = n
		}
	}
}

func WithRunID(id string) ExecutorOption {
	return func(e *Executor) { e.runID = id }
}

func WithLogger(log logrus.FieldLogger) ExecutorOption {
	return func(e *Executor) { e.log = log }
}

// WithRunLog directs the per-run event log to w (usually a TimestampedWriter
// over a file in the logs directory).
func WithRunLog(w io.Writer) ExecutorOption {
	return func(e *Executor) { e.runLog = w }
}

func NewExecutor(options ...ExecutorOption) (*Executor, error) {
	e := &Executor{
		maxParallel: 4,
		maxDepth:    3,
		log:         logrus.StandardLogger(),
		runLog:      io.Discard,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.runID == "" {
		e.runID = uuid.NewString()
	}
	if e.actor == nil {
		return nil, ErrMissingAgents
	}
	return e, nil
}

// RunID returns the run identifier, also used for the run log file name.
func (e *Executor) RunID() string {
	return e.runID
}

// RunResult is the outcome of a graph run.
type RunResult struct {
	RunID  string
	Answer string
	Graph  *Graph
}

// RunDynamic answers user input by growing a task graph from a single seed
// task, decomposing tasks the allocator is not satisfied with.
func (e *Executor) RunDynamic(ctx context.Context, userInput string) (*RunResult, error) {
	if strings.TrimSpace(userInput) == "" {
		return nil, ErrEmptyInput
	}
	if e.allocator == nil || e.summarizer == nil {
		return nil, ErrMissingAgents
	}

	taskName, err := e.summarizer.Run(ctx, userInput)
	if err != nil {
		return nil, fmt.Errorf("summarizing user input: %w", err)
	}
	firstName := sanitizeTaskName(taskName.Name)

	e.mu.Lock()
	e.graph = NewGraph()
	e.tasks = map[string]*Task{}
	e.depth = map[string]int{}

	alpha := newAlphaTask(userInput)
	omega := newOmegaTask()
	for _, t := range []*Task{alpha, {Name: firstName, Kind: TaskKindStandard}, omega} {
		_ = e.graph.AddNode(t.Name)
		e.tasks[t.Name] = t
	}
	_ = e.graph.AddEdge(AlphaTaskName, firstName)
	_ = e.graph.AddEdge(firstName, OmegaTaskName)
	e.depth[firstName] = 1
	e.mu.Unlock()

	e.event("run %s started: first task %q", e.runID, firstName)

	if err := e.schedule(ctx, true); err != nil {
		e.event("run %s failed: %v", e.runID, err)
		return nil, err
	}

	e.mu.Lock()
	answer := e.tasks[OmegaTaskName].Output.Answer
	graph := e.graph
	e.mu.Unlock()

	e.event("run %s completed. final output: %s", e.runID, answer)
	return &RunResult{RunID: e.runID, Answer: answer, Graph: graph}, nil
}

// RunStatic executes a predefined graph spec with the actor only; no
// decomposition takes place.
func (e *Executor) RunStatic(ctx context.Context, spec *GraphSpec) (*RunResult, error) {
	graph, err := spec.BuildGraph()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.graph = graph
	e.tasks = map[string]*Task{
		AlphaTaskName: newAlphaTask(spec.Input),
		OmegaTaskName: newOmegaTask(),
	}
	e.depth = map[string]int{}
	for _, st := range spec.Tasks {
		e.tasks[st.Name] = &Task{
			Name:        st.Name,
			Kind:        TaskKindStandard,
			Description: st.Description,
			Input:       st.Input,
		}
		e.depth[st.Name] = 1
	}
	e.mu.Unlock()

	e.event("run %s started: graph %q with %d tasks", e.runID, spec.Name, len(spec.Tasks))

	if err := e.schedule(ctx, false); err != nil {
		e.event("run %s failed: %v", e.runID, err)
		return nil, err
	}

	e.mu.Lock()
	answer := e.tasks[OmegaTaskName].Output.Answer
	e.mu.Unlock()

	e.event("run %s completed. final output: %s", e.runID, answer)
	return &RunResult{RunID: e.runID, Answer: answer, Graph: graph}, nil
}

// schedule runs ready tasks until the graph is drained. A task is ready when
// every predecessor is complete. The graph may grow while scheduling.
func (e *Executor) schedule(ctx context.Context, dynamic bool) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)

	completed := map[string]bool{AlphaTaskName: true}
	failed := map[string]bool{}
	running := map[string]bool{}
	var mu sync.Mutex

	done := make(chan string, 64)

	for {
		mu.Lock()
		ready := e.findReady(completed, failed, running)
		for _, name := range ready {
			running[name] = true
		}
		inFlight := len(running)
		remaining := e.remaining(completed, failed)
		mu.Unlock()

		// Launch outside the lock: g.Go blocks when the limit is reached,
		// and the workers need the lock to record completion.
		for _, name := range ready {
			name := name
			g.Go(func() error {
				err := e.runTask(ctx, name, dynamic)
				mu.Lock()
				delete(running, name)
				if err != nil {
					failed[name] = true
				} else {
					completed[name] = true
				}
				mu.Unlock()
				select {
				case done <- name:
				case <-ctx.Done():
				}
				return err
			})
		}

		if inFlight == 0 {
			if remaining == 0 {
				break
			}
			// Remaining tasks are blocked by failed dependencies.
			if err := g.Wait(); err != nil {
				return err
			}
			return fmt.Errorf("%w: %d tasks blocked by failed dependencies", ErrNoProgress, remaining)
		}

		select {
		case <-ctx.Done():
			if err := g.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		case <-done:
		}
	}

	return g.Wait()
}

// findReady returns tasks whose predecessors are all complete. Caller holds
// the scheduling lock.
func (e *Executor) findReady(completed, failed, running map[string]bool) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ready []string
	for _, name := range e.graph.Nodes() {
		if completed[name] || failed[name] || running[name] {
			continue
		}
		ok := true
		for _, pred := range e.graph.Predecessors(name) {
			if !completed[pred] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, name)
		}
	}
	return ready
}

func (e *Executor) remaining(completed, failed map[string]bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for _, name := range e.graph.Nodes() {
		if !completed[name] && !failed[name] {
			count++
		}
	}
	return count
}

// runTask executes a single task: assemble input from predecessors, let the
// actor answer, then (in dynamic runs) let the allocator review the answer
// and possibly expand the graph.
func (e *Executor) runTask(ctx context.Context, name string, dynamic bool) error {
	e.mu.Lock()
	task := e.tasks[name]
	if task.Input == "" {
		task.Input = e.assembleInput(name)
	}
	taskDepth := e.depth[name]
	e.mu.Unlock()

	if task.Kind == TaskKindOmega {
		e.mu.Lock()
		task.Output = &TaskOutput{Kind: TaskKindOmega, Answer: task.Input}
		e.mu.Unlock()
		e.event("%s task completed. it is the final task", name)
		return nil
	}

	e.event("%s task started (depth %d)", name, taskDepth)

	reply, err := e.actor.Run(ctx, agent.ActorInput{
		Name:        task.Name,
		Description: task.Description,
		Input:       task.Input,
	})
	if err != nil {
		e.event("%s task failed: %v", name, err)
		return fmt.Errorf("task %s: actor: %w", name, err)
	}

	if !dynamic || taskDepth >= e.maxDepth {
		e.complete(task, &TaskOutput{Kind: task.Kind, Answer: reply.Answer})
		e.event("%s task completed", name)
		return nil
	}

	decomposition, err := e.allocator.Run(ctx, agent.AllocatorReview{
		Name:   task.Name,
		Input:  task.Input,
		Answer: reply.Answer,
	})
	if err != nil {
		e.event("%s task failed: allocator: %v", name, err)
		return fmt.Errorf("task %s: allocator: %w", name, err)
	}

	if decomposition.Satisfied {
		e.complete(task, &TaskOutput{
			Kind:          task.Kind,
			Answer:        reply.Answer,
			Reasoning:     decomposition.Reasoning,
			Decomposition: decomposition,
		})
		e.event("%s task completed", name)
		return nil
	}

	subNames, err := e.expand(task, decomposition, taskDepth)
	if err != nil {
		return fmt.Errorf("task %s: %w", name, err)
	}
	e.event("%s task decomposed (%s) into: %s", name, decomposition.Mode, strings.Join(subNames, ", "))
	return nil
}

// assembleInput joins the answers of completed predecessors. Caller holds e.mu.
func (e *Executor) assembleInput(name string) string {
	var parts []string
	for _, pred := range e.graph.Predecessors(name) {
		if out := e.tasks[pred].Output; out != nil && out.Answer != "" {
			parts = append(parts, out.Answer)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (e *Executor) complete(task *Task, output *TaskOutput) {
	e.mu.Lock()
	task.Output = output
	e.mu.Unlock()
}

// expand splits a task into the allocator's sub-tasks. Sequential sub-tasks
// are chained; parallel sub-tasks fan out from the decomposed task. Either
// way, the sub-tasks take over the decomposed task's outgoing edges, and the
// decomposed task passes its input through to them.
func (e *Executor) expand(task *Task, decomposition *agent.Decomposition, taskDepth int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	successors := e.graph.Successors(task.Name)

	subNames := make([]string, 0, len(decomposition.SubTasks))
	for _, subTask := range decomposition.SubTasks {
		subName := uniqueName(e.graph, sanitizeTaskName(subTask.Name))
		if err := e.graph.AddNode(subName); err != nil {
			return nil, err
		}
		e.tasks[subName] = &Task{
			Name:        subName,
			Kind:        TaskKindStandard,
			Description: subTask.Description,
			Tools:       task.Tools,
		}
		e.depth[subName] = taskDepth + 1
		subNames = append(subNames, subName)
	}

	for _, successor := range successors {
		if err := e.graph.DeleteEdge(task.Name, successor); err != nil {
			return nil, err
		}
	}

	switch decomposition.Mode {
	case agent.DecompositionModeSequential:
		if err := e.graph.AddEdge(task.Name, subNames[0]); err != nil {
			return nil, err
		}
		for i := 1; i < len(subNames); i++ {
			if err := e.graph.AddEdge(subNames[i-1], subNames[i]); err != nil {
				return nil, err
			}
		}
		for _, successor := range successors {
			if err := e.graph.AddEdge(subNames[len(subNames)-1], successor); err != nil {
				return nil, err
			}
		}
	case agent.DecompositionModeParallel:
		for _, subName := range subNames {
			if err := e.graph.AddEdge(task.Name, subName); err != nil {
				return nil, err
			}
			for _, successor := range successors {
				if err := e.graph.AddEdge(subName, successor); err != nil {
					return nil, err
				}
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown decomposition mode %q", agent.ErrMalformedDecomposition, decomposition.Mode)
	}

	task.Output = &TaskOutput{
		Kind:          task.Kind,
		Answer:        task.Input,
		Reasoning:     decomposition.Reasoning,
		Decomposition: decomposition,
	}
	return subNames, nil
}

// event writes a line to the per-run log and mirrors it to the logger.
func (e *Executor) event(format string, args ...any) {
	fmt.Fprintf(e.runLog, format+"\n", args...)
	e.log.Infof(format, args...)
}
