package commands

import (
	"context"

	"comebackwatch/internal/model"
	"comebackwatch/internal/pipeline"

	"github.com/spf13/cobra"
)

type stageCommand struct {
	use     string
	aliases []string
	short   string
	run     func(p pipeline.Pipeline, ctx context.Context) (model.Summary, error)
}

var stageCommands = []stageCommand{
	{
		use:   pipeline.StageDiscover,
		short: "Find the index pages linked from the seeds.",
		run:   pipeline.Pipeline.Discover,
	},
	{
		use:     pipeline.StageEvents,
		aliases: []string{"extract"},
		short:   "Extract events and entities from the discovered index pages.",
		run:     pipeline.Pipeline.Events,
	},
	{
		use:   pipeline.StageEnrich,
		short: "Fetch the detail pages of stale entities.",
		run:   pipeline.Pipeline.Enrich,
	},
	{
		use:   pipeline.StageViews,
		short: "Build the upcoming, recent and undated views.",
		run:   pipeline.Pipeline.Views,
	},
	{
		use:   pipeline.StageDelta,
		short: "Diff against the last snapshot and commit a new one.",
		run:   pipeline.Pipeline.Delta,
	},
	{
		use:   pipeline.StageRun,
		short: "Run every stage in order.",
		run:   pipeline.Pipeline.Run,
	},
}

func (s stageCommand) command() *cobra.Command {
	return &cobra.Command{
		Use:     s.use,
		Aliases: s.aliases,
		Short:   s.short,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), globalFlags)
			if err != nil {
				return err
			}
			defer env.Close()

			summary, err := s.run(env.pipeline, cmd.Context())
			printErr := printSummary(summary)
			if err != nil {
				return err
			}
			return printErr
		},
	}
}

func init() {
	for _, s := range stageCommands {
		rootCmd.AddCommand(s.command())
	}
}
