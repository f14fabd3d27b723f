package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	playerName string
	verbose    bool
)

// NewRootCommand creates the root command for the CLI
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "farmtown",
		Short: "FarmTown CLI - Manage your farm's production slots",
		Long: `FarmTown CLI drives production against the remote ledger: plant and
harvest crops, run factory and armory recipes, manage zoo enclosures.

Mutations go through the durable offline queue, so a command issued
while the ledger is unreachable is stored and replayed on the next
flush instead of being lost.

Examples:
  farmtown farm plant --plot 3 --crop wheat
  farmtown farm harvest --plot 3
  farmtown factory start --slot bakery-1 --recipe bread
  farmtown factory collect --slot bakery-1
  farmtown status
  farmtown queue list
  farmtown queue flush
  farmtown messages --limit 10`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default: ./config.yaml, ~/.farmtown/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&playerName, "player", "",
		"Player name (defaults to the only stored session)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose output")

	// Add command groups
	rootCmd.AddCommand(NewFarmCommand())
	rootCmd.AddCommand(NewFactoryCommand())
	rootCmd.AddCommand(NewArmoryCommand())
	rootCmd.AddCommand(NewZooCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewQueueCommand())
	rootCmd.AddCommand(NewMessagesCommand())
	rootCmd.AddCommand(NewConfigCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
