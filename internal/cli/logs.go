package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"datg/internal/config"
	"datg/internal/taskgraph"

	"github.com/spf13/cobra"
)

var logsFollowFlag bool

var logsCmd = &cobra.Command{
	Use:   "logs [runID]",
	Short: "Print or follow a run log",
	Long: `Print the log of a run. Without a run ID, the most recent run log in
the logs directory is used. With --follow, new lines are streamed as the run
writes them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollowFlag, "follow", "f", false, "stream new log lines as they are written")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return printError(err)
	}

	var path string
	if len(args) == 1 {
		path = taskgraph.RunLogPath(cfg.Runtime.LogsDir, args[0])
	} else {
		path, err = taskgraph.LatestRunLog(cfg.Runtime.LogsDir)
		if err != nil {
			return printError(err)
		}
	}

	tailer, err := taskgraph.NewLogTailer(path)
	if err != nil {
		return printError(err)
	}
	defer tailer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lines, err := tailer.Tail(ctx, logsFollowFlag)
	if err != nil {
		return printError(err)
	}
	for line := range lines {
		fmt.Println(line)
	}
	return nil
}
