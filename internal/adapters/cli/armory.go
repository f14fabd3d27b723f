package cli

import (
	"github.com/spf13/cobra"

	"github.com/andrescamacho/farmtown-go/internal/domain/production"
)

// NewArmoryCommand creates the armory command with subcommands
func NewArmoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "armory",
		Short: "Armory production slot operations",
		Long: `Start and collect armory recipes.

Examples:
  farmtown armory start --slot forge-1 --recipe shield
  farmtown armory collect --slot forge-1`,
	}

	cmd.AddCommand(newArmoryStartCommand())
	cmd.AddCommand(newArmoryCollectCommand())

	return cmd
}

func newArmoryStartCommand() *cobra.Command {
	var (
		slot   string
		recipe string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a recipe in a free armory slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			return enqueueAndFlush(cmd.Context(), rt,
				mustActionType(production.KindArmoryRecipe, false),
				startParams(slot, map[string]interface{}{"recipe": recipe}))
		},
	}

	cmd.Flags().StringVar(&slot, "slot", "", "Armory slot identifier [required]")
	cmd.Flags().StringVar(&recipe, "recipe", "", "Recipe to produce [required]")
	cmd.MarkFlagRequired("slot")
	cmd.MarkFlagRequired("recipe")

	return cmd
}

func newArmoryCollectCommand() *cobra.Command {
	var slot string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect finished armory output",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			return enqueueAndFlush(cmd.Context(), rt,
				mustActionType(production.KindArmoryRecipe, true),
				collectParams(slot))
		},
	}

	cmd.Flags().StringVar(&slot, "slot", "", "Armory slot identifier [required]")
	cmd.MarkFlagRequired("slot")

	return cmd
}
