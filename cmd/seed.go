package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/migrator/pkg/application"
	"github.com/luxfi/migrator/pkg/fixture"
)

// NewSeedCmd creates the seed command
func NewSeedCmd(app *application.Migrator) *cobra.Command {
	var (
		accounts      int
		paraIDs       []uint
		preimageBytes int
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the source store with generated state",
		Long:  "Writes accounts and records of every domain to the configured source store, for rehearsals.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Settings()
			if err != nil {
				return err
			}
			src, err := app.OpenChain(cfg.Source)
			if err != nil {
				return err
			}
			defer src.Close()

			ids := make([]uint16, len(paraIDs))
			for i, id := range paraIDs {
				ids[i] = uint16(id)
			}
			n, err := fixture.Populate(src, fixture.Options{Accounts: accounts, ParaIDs: ids, PreimageBytes: preimageBytes})
			if err != nil {
				return fmt.Errorf("failed to seed source: %w", err)
			}
			app.Log.Info("Seeded source store", "chain", cfg.Source.Name, "records", n)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s\n", n, cfg.Source.Name)
			return nil
		},
	}

	cmd.Flags().IntVar(&accounts, "accounts", 100, "Number of accounts to generate")
	cmd.Flags().UintSliceVar(&paraIDs, "para-ids", []uint{1000, 2000}, "Child chains whose sovereign accounts hold state")
	cmd.Flags().IntVar(&preimageBytes, "preimage-bytes", 128*1024, "Size of the generated preimage, 0 for none")

	return cmd
}
