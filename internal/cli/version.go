package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is overridden at build time via -ldflags.
var Version = "0.2.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the datg version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("datg %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
