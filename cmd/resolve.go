package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Resolves a station name to its sibling set",
	Args:  cobra.ExactArgs(1),
	RunE:  resolve,
}

var intermediatesCmd = &cobra.Command{
	Use:   "intermediates <origin> <destination>",
	Short: "Lists candidate transfer stations between two endpoints",
	Args:  cobra.ExactArgs(2),
	RunE:  intermediates,
}

func resolve(cmd *cobra.Command, args []string) error {
	p, err := loadPlanner()
	if err != nil {
		return err
	}

	stations, err := p.ResolveStation(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	for _, st := range stations {
		fmt.Printf("%s %s (%.4f, %.4f)\n", st.ID, st.Name, st.Lat, st.Lon)
	}

	return nil
}

func intermediates(cmd *cobra.Command, args []string) error {
	p, err := loadPlanner()
	if err != nil {
		return err
	}

	names, err := p.IntermediateStations(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	for _, name := range names {
		fmt.Println(name)
	}

	return nil
}
