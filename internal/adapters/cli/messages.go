package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewMessagesCommand creates the messages command
func NewMessagesCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Show recent user messages",
		Long: `Show the user-message log: abandoned queue actions, rejected
commands, and other events worth surfacing. Newest first.

Examples:
  farmtown messages
  farmtown messages --limit 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			messages, err := rt.messages.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to read messages: %w", err)
			}

			if len(messages) == 0 {
				fmt.Println("No messages")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "Time\tLevel\tMessage")
			fmt.Fprintln(w, "────\t─────\t───────")
			for _, m := range messages {
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					m.Timestamp.Format("2006-01-02 15:04:05"), m.Level, m.Message)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of messages to show")

	return cmd
}
