package cli

import (
	"fmt"
	"os"

	"datg/internal/taskgraph"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Validate and visualize task graph spec files",
}

var graphValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a graph spec file",
	Long: `Parse a graph spec file and check its invariants: unique task names,
known dependencies, and an acyclic dependency graph.

Exit codes:
  0 - Graph spec is valid
  1 - Invalid graph spec`,
	Args: cobra.ExactArgs(1),
	RunE: runGraphValidate,
}

var (
	graphFormatFlag string
	graphOutputFlag string
)

var graphVisualizeCmd = &cobra.Command{
	Use:   "visualize <file>",
	Short: "Render a graph spec as ASCII or Graphviz DOT",
	Example: `  # ASCII rendering to the terminal
  datg graph visualize pipeline.yaml

  # DOT output for Graphviz
  datg graph visualize pipeline.yaml --format dot -o pipeline.dot
  dot -Tpng pipeline.dot -o pipeline.png`,
	Args: cobra.ExactArgs(1),
	RunE: runGraphVisualize,
}

func init() {
	graphVisualizeCmd.Flags().StringVar(&graphFormatFlag, "format", "ascii", "output format: ascii or dot")
	graphVisualizeCmd.Flags().StringVarP(&graphOutputFlag, "output", "o", "", "write output to file instead of stdout")
	graphCmd.AddCommand(graphValidateCmd)
	graphCmd.AddCommand(graphVisualizeCmd)
	rootCmd.AddCommand(graphCmd)
}

func runGraphValidate(cmd *cobra.Command, args []string) error {
	if _, err := taskgraph.ParseGraphSpecFile(args[0]); err != nil {
		return printError(err)
	}
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	fmt.Printf("%s %s is a valid graph spec\n", green("✓"), args[0])
	return nil
}

func runGraphVisualize(cmd *cobra.Command, args []string) error {
	spec, err := taskgraph.ParseGraphSpecFile(args[0])
	if err != nil {
		return printError(err)
	}
	graph, err := spec.BuildGraph()
	if err != nil {
		return printError(err)
	}

	var output string
	switch graphFormatFlag {
	case "ascii":
		output = taskgraph.RenderASCII(graph)
	case "dot":
		output = taskgraph.RenderDOT(graph)
	default:
		return printError(fmt.Errorf("unknown format %q: want ascii or dot", graphFormatFlag))
	}

	if graphOutputFlag == "" {
		fmt.Print(output)
		return nil
	}
	if err := os.WriteFile(graphOutputFlag, []byte(output), 0o644); err != nil {
		return printError(fmt.Errorf("writing %s: %w", graphOutputFlag, err))
	}
	return nil
}
