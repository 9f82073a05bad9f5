package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/migrator/pkg/application"
	"github.com/luxfi/migrator/pkg/check"
	"github.com/luxfi/migrator/pkg/database"
)

// NewCheckCmd creates the check command with subcommands
func NewCheckCmd(app *application.Migrator) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify migrated state",
		Long:  "Consistency checks over snapshots of both chains",
	}

	cmd.AddCommand(newCheckVerifyCmd(app))
	cmd.AddCommand(newCheckDigestCmd(app))

	return cmd
}

func openAll(paths []string) ([]database.Store, func(), error) {
	stores := make([]database.Store, 0, len(paths))
	closeAll := func() {
		for _, s := range stores {
			s.Close()
		}
	}
	for _, p := range paths {
		db, err := database.Open("", p)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open %s: %w", p, err)
		}
		stores = append(stores, db)
	}
	return stores, closeAll, nil
}

func newCheckVerifyCmd(app *application.Migrator) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [source-before] [destination-before] [source-after] [destination-after]",
		Short: "Run every consistency check against four snapshots",
		Long: `Runs the pre checks against the snapshots taken before the migration and
the post checks against the snapshots taken after it. Account translation
follows the loaded configuration.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Settings()
			if err != nil {
				return err
			}
			tr, err := cfg.Translator()
			if err != nil {
				return err
			}
			conv, err := cfg.Converter()
			if err != nil {
				return err
			}
			stores, closeAll, err := openAll(args)
			if err != nil {
				return err
			}
			defer closeAll()

			runner := check.NewRunner(app.Log, check.Default(tr, conv)...)
			if err := runner.Run(cmd.Context(), stores[0], stores[1], stores[2], stores[3]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "All %d checks passed\n", len(runner.Checks()))
			return nil
		},
	}
}

func newCheckDigestCmd(app *application.Migrator) *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "digest [db-path]",
		Short: "Hash the migratable content of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, closeAll, err := openAll(args)
			if err != nil {
				return err
			}
			defer closeAll()

			hash, n, err := check.Digest(stores[0], []byte(prefix))
			if err != nil {
				return err
			}
			app.Log.Info("Computed digest", "path", args[0], "prefix", prefix, "keys", n)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", hash.Hex(), n)
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Only hash keys with this prefix")

	return cmd
}
