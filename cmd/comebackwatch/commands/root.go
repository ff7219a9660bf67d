package commands

import (
	"context"
	"fmt"
	"os"

	"comebackwatch/lib/telemetry"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "comebackwatch",
	Short: "comebackwatch harvests comeback schedules and reports what changed since the last run.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(globalFlags.verbose)
	},
	SilenceUsage: true,
}

var globalFlags = &flags{}

func init() {
	globalFlags.register(rootCmd)
}

// ExecuteContext runs the cli and returns the process exit code.
func ExecuteContext(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func Exit(code int) {
	os.Exit(code)
}
