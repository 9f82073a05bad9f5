package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/application"
)

// NewTranslateCmd creates the translate command
func NewTranslateCmd(app *application.Migrator) *cobra.Command {
	var hrp string

	cmd := &cobra.Command{
		Use:   "translate [account...]",
		Short: "Show the destination account of source accounts",
		Long:  "Accounts are 0x-prefixed hex or bech32. Sovereign and derived accounts are rewritten.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Settings()
			if err != nil {
				return err
			}
			tr, err := cfg.Translator()
			if err != nil {
				return err
			}

			for _, arg := range args {
				id, err := account.ParseID(arg)
				if err != nil {
					return err
				}
				to, kind := tr.TranslateWithKind(id)
				out := to.Hex()
				if hrp != "" {
					if out, err = to.Bech32(hrp); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", arg, out, kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&hrp, "hrp", "", "Print destination accounts as bech32 with this human readable part")

	return cmd
}
