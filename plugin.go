package main

import (
	"github.com/spf13/cobra"

	"github.com/luxfi/migrator/cmd"
)

// Plugin exports the migrator for lux-cli
type Plugin struct {
	Name        string
	Version     string
	Description string
	RootCmd     *cobra.Command
}

// GetPlugin returns the migrator plugin for lux-cli integration
func GetPlugin() *Plugin {
	return &Plugin{
		Name:        "migrator",
		Version:     cmd.Version,
		Description: "Live ledger state migration between two chains",
		RootCmd:     cmd.NewRootCmd(),
	}
}
