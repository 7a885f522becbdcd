package cli

import (
	"fmt"

	"datg/internal/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the configuration before running",
	Long: `Verify the configuration surface without calling any backend:
CHAT_COMPLETION_PROVIDER is a non-empty string, CHAT_COMPLETION_KWARGS_JSON
is a valid JSON object, and the logs directory is writable.

Exit codes:
  0 - All checks passed
  1 - One or more checks failed`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()

	failures := 0
	for _, check := range config.RunChecks() {
		if check.Ok() {
			fmt.Printf("%s %s\n", green("✓"), check.Name)
			continue
		}
		failures++
		fmt.Printf("%s %s: %v\n", red("✗"), check.Name, check.Err)
	}

	if failures > 0 {
		return fmt.Errorf("%d configuration checks failed", failures)
	}
	return nil
}
