package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/migrator/pkg/application"
	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/stage"
)

// NewStageCmd creates the stage command with subcommands
func NewStageCmd(app *application.Migrator) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Show or change the migration stage",
		Long:  "Operator controls of the source migration controller",
	}

	cmd.AddCommand(newStageShowCmd(app))
	cmd.AddCommand(newStageStartCmd(app))
	cmd.AddCommand(newStageHaltCmd(app))
	cmd.AddCommand(newStageResumeCmd(app))
	cmd.AddCommand(newStageForceCmd(app))

	return cmd
}

// withSession runs fn against a wired migration and closes it afterwards.
func withSession(app *application.Migrator, fn func(*session) error) error {
	s, err := openSession(app, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func newStageShowCmd(app *application.Migrator) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the stage of both chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(app, func(s *session) error {
				st := s.net.Source.State()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Source:      %s\n", st.Stage)
				if len(st.Cursor) > 0 {
					fmt.Fprintf(out, "  cursor:    0x%s\n", hex.EncodeToString(st.Cursor))
				}
				if st.Halted {
					fmt.Fprintln(out, "  halted")
				} else if st.HaltRequested {
					fmt.Fprintln(out, "  halt requested")
				}
				fmt.Fprintf(out, "Destination: %s\n", s.net.DestinationStage())

				queued, err := s.net.Outbox.Len(cmd.Context())
				if err != nil {
					return err
				}
				acks, err := s.net.Acks.Len(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Queued:      %d to destination, %d to source\n", queued, acks)
				return nil
			})
		},
	}
}

func newStageStartCmd(app *application.Migrator) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(app, func(s *session) error {
				if err := s.net.Source.Start(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migration started, source is %s\n", s.net.SourceStage())
				return nil
			})
		},
	}
}

func newStageHaltCmd(app *application.Migrator) *cobra.Command {
	return &cobra.Command{
		Use:   "halt",
		Short: "Halt the migration at the next domain boundary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(app, func(s *session) error {
				if err := s.net.Source.Halt(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Halt requested")
				return nil
			})
		},
	}
}

func newStageResumeCmd(app *application.Migrator) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a halted migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(app, func(s *session) error {
				if err := s.net.Source.Resume(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migration resumed at %s\n", s.net.SourceStage())
				return nil
			})
		},
	}
}

func newStageForceCmd(app *application.Migrator) *cobra.Command {
	return &cobra.Command{
		Use:   "force [stage]",
		Short: "Force the source into a stage",
		Long: `Overwrites the source stage and clears its cursor. This is the only way to
move the migration backwards. Stages are named as 'stage show' prints them,
for example vesting_migrating.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, ok := stage.ParseStage(args[0])
			if !ok {
				return core.ErrInvalidConfigf("unknown stage %q", args[0])
			}
			return withSession(app, func(s *session) error {
				if err := s.net.Source.Force(target); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Source forced to %s\n", target)
				return nil
			})
		},
	}
}
