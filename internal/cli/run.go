package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"datg/internal/agent"
	"datg/internal/config"
	"datg/internal/llm"
	"datg/internal/taskgraph"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	runLogsDirFlag     string
	runGraphFlag       string
	runGraphOutFlag    string
	runMaxParallelFlag int
	runMaxDepthFlag    int
)

var runCmd = &cobra.Command{
	Use:   "run [question]",
	Short: "Answer a question by executing a dynamic task graph",
	Long: `Run the task graph for a question. The question is taken from the
argument, or from stdin when no argument is given.

With --graph, a predefined graph spec file is executed instead of growing
the graph dynamically.`,
	Example: `  # Dynamic run
  datg run "Plan a three-day trip to Kyoto" --logs-dir ./logs

  # Execute a predefined graph
  datg run --graph pipeline.yaml

  # Write the final graph for Graphviz
  datg run "..." --graph-out taskgraph.dot`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runLogsDirFlag, "logs-dir", "", "directory for run logs (default from config)")
	runCmd.Flags().StringVar(&runGraphFlag, "graph", "", "execute a predefined graph spec file")
	runCmd.Flags().StringVarP(&runGraphOutFlag, "graph-out", "o", "", "write the final task graph as Graphviz DOT to this file")
	runCmd.Flags().IntVar(&runMaxParallelFlag, "max-parallel", 0, "maximum concurrent tasks (default from config)")
	runCmd.Flags().IntVar(&runMaxDepthFlag, "max-depth", 0, "maximum decomposition depth (default from config)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return printError(err)
	}
	applyRunFlags(cfg)

	question, err := readQuestion(args)
	if err != nil {
		return printError(err)
	}
	if question == "" && runGraphFlag == "" {
		return printError(fmt.Errorf("a question is required for a dynamic run"))
	}

	executor, runLog, err := buildExecutor(cfg)
	if err != nil {
		return printError(err)
	}
	defer runLog.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Runtime.Timeout())
	defer cancel()

	sp := newRunSpinner()
	result, err := execute(ctx, executor, question)
	stopSpinner(sp)
	if err != nil {
		return printError(err)
	}

	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	fmt.Println(green("Answer:"))
	fmt.Println(result.Answer)
	fmt.Println(dim("run log: " + runLog.Path()))

	if runGraphOutFlag != "" {
		if err := taskgraph.WriteDOT(result.Graph, runGraphOutFlag); err != nil {
			return printError(err)
		}
		fmt.Println(dim("task graph: " + runGraphOutFlag))
	}
	return nil
}

func applyRunFlags(cfg *config.Config) {
	if runLogsDirFlag != "" {
		cfg.Runtime.LogsDir = runLogsDirFlag
	}
	if runMaxParallelFlag > 0 {
		cfg.Runtime.MaxParallel = runMaxParallelFlag
	}
	if runMaxDepthFlag > 0 {
		cfg.Runtime.MaxDepth = runMaxDepthFlag
	}
}

func readQuestion(args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading question from stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// buildExecutor wires agents, the run log and the executor from config.
func buildExecutor(cfg *config.Config) (*taskgraph.Executor, *taskgraph.RunLog, error) {
	llmCfg := llm.LLMConfig{
		Provider:    llm.Provider(cfg.Provider),
		APIKey:      cfg.Kwargs.APIKey,
		Model:       cfg.Kwargs.Model,
		BaseURL:     cfg.Kwargs.BaseURL,
		Temperature: cfg.Kwargs.Temperature,
		MaxTokens:   cfg.Kwargs.MaxTokens,
		Timeout:     cfg.Kwargs.Timeout,
	}

	actor, err := agent.NewActor(llmCfg)
	if err != nil {
		return nil, nil, err
	}
	allocator, err := agent.NewAllocator(llmCfg)
	if err != nil {
		return nil, nil, err
	}
	summarizer, err := agent.NewSummarizer(llmCfg)
	if err != nil {
		return nil, nil, err
	}

	runID := uuid.NewString()
	runLog, err := taskgraph.OpenRunLog(cfg.Runtime.LogsDir, runID)
	if err != nil {
		return nil, nil, err
	}

	executor, err := taskgraph.NewExecutor(
		taskgraph.WithActor(actor),
		taskgraph.WithAllocator(allocator),
		taskgraph.WithSummarizer(summarizer),
		taskgraph.WithMaxParallel(cfg.Runtime.MaxParallel),
		taskgraph.WithMaxDepth(cfg.Runtime.MaxDepth),
		taskgraph.WithRunID(runID),
		taskgraph.WithRunLog(runLog),
	)
	if err != nil {
		runLog.Close()
		return nil, nil, err
	}
	return executor, runLog, nil
}

func execute(ctx context.Context, executor *taskgraph.Executor, question string) (*taskgraph.RunResult, error) {
	if runGraphFlag == "" {
		return executor.RunDynamic(ctx, question)
	}

	spec, err := taskgraph.ParseGraphSpecFile(runGraphFlag)
	if err != nil {
		return nil, err
	}
	if question != "" {
		spec.Input = question
	}
	return executor.RunStatic(ctx, spec)
}

func newRunSpinner() *spinner.Spinner {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil
	}
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	sp.Suffix = " running task graph..."
	sp.Start()
	return sp
}

func stopSpinner(sp *spinner.Spinner) {
	if sp != nil {
		sp.Stop()
	}
}

func printError(err error) error {
	red := color.New(color.FgRed, color.Bold)
	red.Fprint(os.Stderr, "Error: ")
	fmt.Fprintln(os.Stderr, err)
	return err
}
