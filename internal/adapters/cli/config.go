package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/infrastructure/config"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration and session management",
		Long: `Show the resolved configuration and manage the stored session.

Examples:
  farmtown config show
  farmtown config set-player --player alice --token <session-token>`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetPlayerCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			fmt.Println("\nCONFIGURATION")
			fmt.Printf("  Database:   %s", cfg.Database.Type)
			if cfg.Database.Type == "sqlite" {
				fmt.Printf(" (%s)", cfg.Database.Path)
			} else {
				fmt.Printf(" (%s:%d/%s)", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
			}
			fmt.Println()
			fmt.Printf("  Ledger:     %s\n", cfg.API.BaseURL)
			fmt.Printf("  Rate limit: %d req/s (burst %d)\n", cfg.API.RateLimit.Requests, cfg.API.RateLimit.Burst)
			fmt.Printf("  Realtime:   enabled=%t url=%s poll=%s\n",
				cfg.Realtime.Enabled, cfg.Realtime.URL, cfg.Realtime.PollInterval)
			fmt.Printf("  Reconciler: tick=%s\n", cfg.Reconciler.TickInterval)
			fmt.Printf("  Queue:      max attempts=%d backoff=%s\n",
				cfg.Queue.MaxAttempts, cfg.Queue.BackoffBase)
			fmt.Printf("  Daemon:     pidfile=%s\n", cfg.Daemon.PIDFile)
			fmt.Printf("  Logging:    level=%s output=%s\n", cfg.Logging.Level, cfg.Logging.Output)
			fmt.Println()
			return nil
		},
	}
}

func newConfigSetPlayerCommand() *cobra.Command {
	var (
		player string
		token  string
	)

	cmd := &cobra.Command{
		Use:   "set-player",
		Short: "Store the session token for a player",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := cmd.Context()

			session, err := rt.sessions.FindByPlayerName(ctx, player)
			if err != nil {
				return err
			}
			if session == nil {
				session = &common.Session{
					PlayerName: player,
					CreatedAt:  rt.clock.Now(),
				}
			}
			session.Token = token

			if err := rt.sessions.Save(ctx, session); err != nil {
				return fmt.Errorf("failed to store session: %w", err)
			}

			fmt.Printf("Stored session for player %s\n", player)
			return nil
		},
	}

	cmd.Flags().StringVar(&player, "player", "", "Player name [required]")
	cmd.Flags().StringVar(&token, "token", "", "Session token [required]")
	cmd.MarkFlagRequired("player")
	cmd.MarkFlagRequired("token")

	return cmd
}
