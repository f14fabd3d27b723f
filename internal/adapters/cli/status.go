package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andrescamacho/farmtown-go/internal/application/production/queries"
	"github.com/andrescamacho/farmtown-go/internal/domain/production"
)

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show all production slots and their countdowns",
		Long: `Show every production slot with its state and remaining time.

By default the slot set is refreshed from the ledger; when the ledger
is unreachable the last cached snapshot is shown and marked stale.
With --cached the ledger is not contacted at all.

Examples:
  farmtown status
  farmtown status --cached`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := cmd.Context()

			var (
				slots []*production.Slot
				stale bool
			)

			if cached {
				slots, err = rt.cache.FindAll(ctx)
				if err != nil {
					return err
				}
				stale = true
			} else {
				session, err := rt.resolveSession(ctx)
				if err != nil {
					return err
				}

				result, err := rt.mediator.Send(ctx, &queries.RefreshStateQuery{Token: session.Token})
				if err != nil {
					return fmt.Errorf("failed to refresh slot state: %w", err)
				}
				response := result.(*queries.RefreshStateResponse)
				slots = response.Slots
				stale = response.Stale
			}

			displaySlots(rt, slots, stale)
			return nil
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "Show the local snapshot without contacting the ledger")

	return cmd
}

func displaySlots(rt *runtime, slots []*production.Slot, stale bool) {
	if len(slots) == 0 {
		fmt.Println("No production slots")
		return
	}

	header := "PRODUCTION SLOTS"
	if stale {
		header += " (cached; ledger unreachable)"
	}
	fmt.Printf("\n%s\n", header)

	now := rt.clock.Now()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Kind\tSlot\tState\tRemaining")
	fmt.Fprintln(w, "────\t────\t─────\t─────────")

	for _, slot := range slots {
		state := slot.StateAt(now)
		remaining := "-"
		if state == production.StateGrowing {
			remaining = production.FormatRemaining(slot.Remaining(now))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", slot.Kind, slot.ID, state, remaining)
	}

	w.Flush()
	fmt.Println()
}
