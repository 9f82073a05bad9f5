package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/luxfi/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luxfi/migrator/pkg/application"
	"github.com/luxfi/migrator/pkg/config"
)

var (
	// Version information (set by ldflags)
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// Global flags
	configFile string
	baseDir    string
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	// commands keep this pointer, Setup fills it before any of them runs
	app := application.New()

	rootCmd := &cobra.Command{
		Use:   "migrator",
		Short: "Live state migration between two chains",
		Long: `Moves ledger state from a source chain to a destination chain in
weight bounded blocks, while both chains keep running.`,
		Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeApp(app)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./migrator.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "base directory for migrator data")

	// Initialize config
	cobra.OnInitialize(initConfig)

	// Add commands
	rootCmd.AddCommand(NewRunCmd(app))
	rootCmd.AddCommand(NewStageCmd(app))
	rootCmd.AddCommand(NewCheckCmd(app))
	rootCmd.AddCommand(NewTranslateCmd(app))
	rootCmd.AddCommand(NewFilterCmd(app))
	rootCmd.AddCommand(NewInspectCmd(app))
	rootCmd.AddCommand(NewSeedCmd(app))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("migrator")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MIGRATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func initializeApp(app *application.Migrator) error {
	// Set up base directory
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		baseDir = filepath.Join(homeDir, ".migrator")
	}

	// Create base directory if it doesn't exist
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create base directory: %w", err)
	}

	logger := log.NewLogger("migrator")
	app.Setup(baseDir, logger, viper.GetViper())
	return nil
}
