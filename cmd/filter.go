package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/migrator/pkg/application"
	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/filter"
	"github.com/luxfi/migrator/pkg/stage"
)

// NewFilterCmd creates the filter command
func NewFilterCmd(app *application.Migrator) *cobra.Command {
	var sourceStage, destStage string

	cmd := &cobra.Command{
		Use:   "filter [chain] [category] [call]",
		Short: "Report whether a call is accepted in the current stage",
		Long: `Evaluates the configured filter rules and the default policy for a call.
The stages are read from the stores unless --source-stage is given.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := core.ParseChain(args[0])
			if err != nil {
				return err
			}
			call := filter.Call{Chain: chain, Category: filter.Category(args[1])}
			if len(args) == 3 {
				call.Name = args[2]
			}

			cfg, err := app.Settings()
			if err != nil {
				return err
			}

			report := func(stages filter.StageReader) error {
				f, err := filter.New(app.Log, stages, cfg.Filter)
				if err != nil {
					return err
				}
				verdict := "allowed"
				if !f.IsAllowed(call) {
					verdict = "filtered"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (phase %s)\n", call, verdict, f.Phase(chain))
				return nil
			}

			if sourceStage == "" {
				return withSession(app, func(s *session) error {
					return report(s.net.Pair)
				})
			}
			stages, err := parseStages(sourceStage, destStage)
			if err != nil {
				return err
			}
			return report(stages)
		},
	}

	cmd.Flags().StringVar(&sourceStage, "source-stage", "", "Assume this source stage instead of reading the stores")
	cmd.Flags().StringVar(&destStage, "destination-stage", "", "Assume this destination stage (pending, data_migration_ongoing, migration_done)")

	return cmd
}

func parseStages(source, dest string) (*filter.Stages, error) {
	src, ok := stage.ParseStage(source)
	if !ok {
		return nil, core.ErrInvalidConfigf("unknown stage %q", source)
	}
	stages := &filter.Stages{Source: src}
	switch dest {
	case "", "pending":
		stages.Destination = stage.DestinationPending
	case "data_migration_ongoing":
		stages.Destination = stage.DataMigrationOngoing
	case "migration_done":
		stages.Destination = stage.DestinationDone
	default:
		return nil, core.ErrInvalidConfigf("unknown destination stage %q", dest)
	}
	return stages, nil
}
