package cli

import (
	"github.com/spf13/cobra"

	"github.com/andrescamacho/farmtown-go/internal/domain/production"
)

// NewZooCommand creates the zoo command with subcommands
func NewZooCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zoo",
		Short: "Zoo enclosure operations",
		Long: `Start and collect zoo production and breeding.

An enclosure runs either ordinary production (feed, goods) or a
breeding cycle; the two are separate slot kinds with separate timers.

Examples:
  farmtown zoo start --enclosure lions-1
  farmtown zoo start --enclosure lions-1 --breeding
  farmtown zoo collect --enclosure lions-1
  farmtown zoo collect --enclosure lions-1 --breeding`,
	}

	cmd.AddCommand(newZooStartCommand())
	cmd.AddCommand(newZooCollectCommand())

	return cmd
}

func zooKind(breeding bool) production.Kind {
	if breeding {
		return production.KindZooBreeding
	}
	return production.KindZooProduction
}

func newZooStartCommand() *cobra.Command {
	var (
		enclosure string
		breeding  bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start production or breeding in an enclosure",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			return enqueueAndFlush(cmd.Context(), rt,
				mustActionType(zooKind(breeding), false),
				startParams(enclosure, nil))
		},
	}

	cmd.Flags().StringVar(&enclosure, "enclosure", "", "Enclosure identifier [required]")
	cmd.Flags().BoolVar(&breeding, "breeding", false, "Start a breeding cycle instead of production")
	cmd.MarkFlagRequired("enclosure")

	return cmd
}

func newZooCollectCommand() *cobra.Command {
	var (
		enclosure string
		breeding  bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect a finished enclosure",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			return enqueueAndFlush(cmd.Context(), rt,
				mustActionType(zooKind(breeding), true),
				collectParams(enclosure))
		},
	}

	cmd.Flags().StringVar(&enclosure, "enclosure", "", "Enclosure identifier [required]")
	cmd.Flags().BoolVar(&breeding, "breeding", false, "Collect the breeding cycle instead of production")
	cmd.MarkFlagRequired("enclosure")

	return cmd
}
