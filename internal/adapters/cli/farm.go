package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrescamacho/farmtown-go/internal/domain/production"
)

// NewFarmCommand creates the farm command with subcommands
func NewFarmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "farm",
		Short: "Crop plot operations",
		Long: `Plant and harvest crop plots.

Planting occupies an empty plot; the ledger assigns the completion
timestamp. Harvest collects a ready plot and returns it to empty.
A harvest of an already-empty plot (collected from another device)
resolves silently.

Examples:
  farmtown farm plant --plot 3 --crop wheat
  farmtown farm harvest --plot 3`,
	}

	cmd.AddCommand(newFarmPlantCommand())
	cmd.AddCommand(newFarmHarvestCommand())

	return cmd
}

func newFarmPlantCommand() *cobra.Command {
	var (
		plot string
		crop string
	)

	cmd := &cobra.Command{
		Use:   "plant",
		Short: "Plant a crop in an empty plot",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			return enqueueAndFlush(cmd.Context(), rt,
				mustActionType(production.KindCrop, false),
				startParams(plot, map[string]interface{}{"crop": crop}))
		},
	}

	cmd.Flags().StringVar(&plot, "plot", "", "Plot identifier [required]")
	cmd.Flags().StringVar(&crop, "crop", "", "Crop type to plant [required]")
	cmd.MarkFlagRequired("plot")
	cmd.MarkFlagRequired("crop")

	return cmd
}

func newFarmHarvestCommand() *cobra.Command {
	var plot string

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest a ready plot",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			if plot == "" {
				return fmt.Errorf("--plot flag is required")
			}

			return enqueueAndFlush(cmd.Context(), rt,
				mustActionType(production.KindCrop, true),
				collectParams(plot))
		},
	}

	cmd.Flags().StringVar(&plot, "plot", "", "Plot identifier [required]")
	cmd.MarkFlagRequired("plot")

	return cmd
}
