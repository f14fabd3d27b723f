package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewQueueCommand creates the queue command with subcommands
func NewQueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Offline action queue operations",
		Long: `Inspect and flush the durable offline action queue.

Actions issued while the ledger was unreachable wait here in enqueue
order. Flushing replays them oldest first; entries that keep failing
are abandoned after the retry ceiling and reported under 'messages'.

Examples:
  farmtown queue list
  farmtown queue flush`,
	}

	cmd.AddCommand(newQueueListCommand())
	cmd.AddCommand(newQueueFlushCommand())

	return cmd
}

func newQueueListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending actions in enqueue order",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			pending, err := rt.queue.Pending(cmd.Context())
			if err != nil {
				return err
			}

			if len(pending) == 0 {
				fmt.Println("Queue is empty")
				return nil
			}

			fmt.Printf("\nPENDING ACTIONS (%d)\n", len(pending))

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tAction\tSlot\tAttempts\tEnqueued")
			fmt.Fprintln(w, "──\t──────\t────\t────────\t────────")
			for _, action := range pending {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
					action.ID,
					action.ActionType,
					action.SlotID(),
					action.Attempts,
					action.EnqueuedAt.Format("2006-01-02 15:04:05"),
				)
			}
			w.Flush()
			fmt.Println()
			return nil
		},
	}
}

func newQueueFlushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Replay pending actions against the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := cmd.Context()

			before, err := rt.store.Count(ctx)
			if err != nil {
				return err
			}
			if before == 0 {
				fmt.Println("Queue is empty")
				return nil
			}

			if err := rt.queue.Flush(ctx); err != nil {
				return err
			}

			after, err := rt.store.Count(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Flushed %d action(s); %d remaining\n", before-after, after)
			if after > 0 {
				fmt.Println("Some actions could not be delivered; they will retry on the next flush")
			}
			return nil
		},
	}
}
