package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"schiene.dev/railplan"
)

var routesCmd = &cobra.Command{
	Use:   "routes <origin> <destination>",
	Short: "Plans journeys between two stations",
	Args:  cobra.ExactArgs(2),
	RunE:  routes,
}

var (
	departure   string
	via         []string
	minTransfer int
)

func init() {
	routesCmd.Flags().StringVarP(&departure, "departure", "d", "", "Earliest departure (HH:MM:SS)")
	routesCmd.Flags().StringSliceVarP(&via, "via", "V", []string{}, "Mandatory via station")
	routesCmd.Flags().IntVarP(&minTransfer, "min-transfer", "m", 0, "Minimum transfer minutes for via journeys")
}

func routes(cmd *cobra.Command, args []string) error {
	p, err := loadPlanner()
	if err != nil {
		return err
	}

	journeys, err := p.FindRoutes(cmd.Context(), args[0], args[1], departure, railplan.SearchOptions{
		Via:                via,
		MinTransferMinutes: minTransfer,
	})
	if err != nil {
		return err
	}

	if len(journeys) == 0 {
		fmt.Println("no journeys found")
		return nil
	}

	for _, j := range journeys {
		fmt.Printf("%s -> %s (%d min, %s)\n",
			j.StartStation.Name, j.EndStation.Name, j.TotalMinutes, j.Description)
		for _, leg := range j.Legs {
			delayNote := ""
			if leg.DelayMinutes > 0 {
				delayNote = fmt.Sprintf(" +%d", leg.DelayMinutes)
			}
			fmt.Printf("  %s %s%s  %s -> %s  Gl. %s\n",
				leg.TrainLabel, leg.Departure, delayNote,
				leg.Origin.Name, leg.Destination.Name, leg.DeparturePlatform)
		}
		if j.Insight != "" {
			fmt.Printf("  %s\n", j.Insight)
		}
	}

	return nil
}
