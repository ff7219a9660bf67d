package commands

import (
	"log/slog"

	"comebackwatch/internal/components/chrono"
	"comebackwatch/lib/telemetry"

	"github.com/spf13/cobra"
)

var scheduleSpec string

var scheduleCmd = &cobra.Command{
	Use:   "schedule [--cron <spec>]",
	Short: "Run the whole pipeline on a cron schedule until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := setup(ctx, globalFlags)
		if err != nil {
			return err
		}
		defer env.Close()

		spec := scheduleSpec
		if spec == "" {
			spec = env.config.Schedule
		}
		if spec == "" {
			spec = defaultSchedule
		}

		cron := chrono.NewStandardCron(env.tel, env.clock)
		err = cron.Cron(spec, func() {
			summary, err := env.pipeline.Run(ctx)
			if err != nil {
				slog.Error("scheduled run failed", "run_id", summary.RunID, "err", err)
				return
			}
			err = printSummary(summary)
			if err != nil {
				slog.Warn("failed to print summary", "err", err)
			}
		})
		if err != nil {
			return err
		}

		telemetry.InstrumentPerfStats(ctx)
		slog.Info("scheduled pipeline runs", "cron", spec, "timezone", env.clock.Location().String())
		cron.Run(ctx)
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "", "Cron spec of the runs, defaults to the config's schedule.")
	rootCmd.AddCommand(scheduleCmd)
}
