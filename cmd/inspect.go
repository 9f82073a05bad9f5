package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/migrator/pkg/account"
	"github.com/luxfi/migrator/pkg/application"
	"github.com/luxfi/migrator/pkg/balance"
	"github.com/luxfi/migrator/pkg/database"
	"github.com/luxfi/migrator/pkg/records"
)

// NewInspectCmd creates the inspect command with subcommands
func NewInspectCmd(app *application.Migrator) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect chain stores",
		Long:  "Read balances and record counts from a chain store",
	}

	cmd.AddCommand(newInspectBalanceCmd(app))
	cmd.AddCommand(newInspectSummaryCmd(app))
	cmd.AddCommand(newInspectKeysCmd(app))

	return cmd
}

func newChecker(app *application.Migrator, path string) (*balance.Checker, error) {
	return balance.NewChecker(balance.Config{DBPath: app.ResolvePath(path)})
}

func newInspectBalanceCmd(app *application.Migrator) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [db-path] [account]",
		Short: "Display the balance of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := account.ParseID(args[1])
			if err != nil {
				return err
			}
			checker, err := newChecker(app, args[0])
			if err != nil {
				return err
			}
			defer checker.Close()

			info, err := checker.GetBalance(who)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Account:  %s\n", info.Who)
			fmt.Fprintf(out, "Free:     %s\n", info.Free.Dec())
			fmt.Fprintf(out, "Reserved: %s\n", info.Reserved.Dec())
			fmt.Fprintf(out, "Frozen:   %s\n", info.Frozen.Dec())
			fmt.Fprintf(out, "Nonce:    %d\n", info.Nonce)
			return nil
		},
	}
}

func newInspectSummaryCmd(app *application.Migrator) *cobra.Command {
	return &cobra.Command{
		Use:   "summary [db-path]",
		Short: "Display the total issuance held by accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checker, err := newChecker(app, args[0])
			if err != nil {
				return err
			}
			defer checker.Close()

			s, err := checker.Summarize()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Accounts: %d\n", s.Accounts)
			fmt.Fprintf(out, "Free:     %s\n", s.Free.Dec())
			fmt.Fprintf(out, "Reserved: %s\n", s.Reserved.Dec())
			fmt.Fprintf(out, "Total:    %s\n", s.Total().Dec())
			return nil
		},
	}
}

var inspectPrefixes = []struct {
	name   string
	prefix []byte
}{
	{"accounts", records.AccountPrefix},
	{"multisigs", records.MultisigPrefix},
	{"proxies", records.ProxyPrefix},
	{"proxy announcements", records.AnnouncementPrefix},
	{"preimages", records.PreimagePrefix},
	{"preimage request status", records.RequestStatusPrefix},
	{"legacy preimage status", records.LegacyStatusPrefix},
	{"referenda", records.ReferendumPrefix},
	{"indices", records.IndexPrefix},
	{"vesting", records.VestingPrefix},
	{"recovery", records.RecoveryPrefix},
	{"fast unstake", records.FastUnstakePrefix},
	{"pool members", records.PoolMemberPrefix},
	{"bonded pools", records.BondedPoolPrefix},
	{"scheduler", records.SchedulerPrefix},
	{"conviction voting", records.VotingPrefix},
	{"bounties", records.BountiesPrefix},
	{"treasury", records.TreasuryPrefix},
	{"staking", records.StakingPrefix},
	{"migration bookkeeping", records.MetaPrefix},
}

func newInspectKeysCmd(app *application.Migrator) *cobra.Command {
	return &cobra.Command{
		Use:   "keys [db-path]",
		Short: "Count the records of every domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open("", app.ResolvePath(args[0]))
			if err != nil {
				return err
			}
			defer db.Close()

			for _, p := range inspectPrefixes {
				n, err := database.Count(db, p.prefix)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d\n", p.name, n)
			}
			return nil
		},
	}
}
