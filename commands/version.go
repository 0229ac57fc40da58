package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version and BuildTime identify the binary. BuildTime is replaced at
// link time for release builds.
const (
	Version   = "0.1.0"
	BuildTime = "dev"

	appName = "courtstream"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}
