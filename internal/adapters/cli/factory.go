package cli

import (
	"github.com/spf13/cobra"

	"github.com/andrescamacho/farmtown-go/internal/domain/production"
)

// NewFactoryCommand creates the factory command with subcommands
func NewFactoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "factory",
		Short: "Factory production slot operations",
		Long: `Start and collect factory recipes.

Starting a recipe occupies a free factory slot until the ledger's
completion timestamp; collect awards the produced goods.

Examples:
  farmtown factory start --slot bakery-1 --recipe bread
  farmtown factory start --slot bakery-1 --recipe bread --quantity 3
  farmtown factory collect --slot bakery-1`,
	}

	cmd.AddCommand(newFactoryStartCommand())
	cmd.AddCommand(newFactoryCollectCommand())

	return cmd
}

func newFactoryStartCommand() *cobra.Command {
	var (
		slot     string
		recipe   string
		quantity int
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a recipe in a free factory slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			extra := map[string]interface{}{"recipe": recipe}
			if quantity > 1 {
				extra["quantity"] = quantity
			}

			return enqueueAndFlush(cmd.Context(), rt,
				mustActionType(production.KindFactoryRecipe, false),
				startParams(slot, extra))
		},
	}

	cmd.Flags().StringVar(&slot, "slot", "", "Factory slot identifier [required]")
	cmd.Flags().StringVar(&recipe, "recipe", "", "Recipe to produce [required]")
	cmd.Flags().IntVar(&quantity, "quantity", 1, "Number of items to queue")
	cmd.MarkFlagRequired("slot")
	cmd.MarkFlagRequired("recipe")

	return cmd
}

func newFactoryCollectCommand() *cobra.Command {
	var slot string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect finished factory output",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			return enqueueAndFlush(cmd.Context(), rt,
				mustActionType(production.KindFactoryRecipe, true),
				collectParams(slot))
		},
	}

	cmd.Flags().StringVar(&slot, "slot", "", "Factory slot identifier [required]")
	cmd.MarkFlagRequired("slot")

	return cmd
}
