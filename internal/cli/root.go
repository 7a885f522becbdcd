// Package cli implements the datg command tree.
package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:   "datg",
	Short: "Dynamic multi-agent task graph runner",
	Long: `datg answers a question by growing and executing a directed acyclic
task graph of LLM agent calls: an actor answers each task, and an allocator
reviews the answer and decomposes unsatisfying tasks into sub-tasks.

The chat-completion backend is configured through a .env file:

  CHAT_COMPLETION_PROVIDER=openai
  CHAT_COMPLETION_KWARGS_JSON={"api_key": "sk-...", "model": "gpt-4.1"}`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verboseFlag {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
