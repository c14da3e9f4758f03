package main

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"schiene.dev/railplan/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Builds the major-station network and writes the snapshot",
	Args:  cobra.NoArgs,
	RunE:  buildGraph,
}

var graphOut string

func init() {
	graphCmd.Flags().StringVarP(&graphOut, "out", "o", "", "Snapshot path (overrides config)")
}

func buildGraph(cmd *cobra.Command, args []string) error {
	s, err := openStorage()
	if err != nil {
		return err
	}
	reader, err := s.Reader()
	if err != nil {
		return err
	}

	n, err := graph.Build(cmd.Context(), reader, graph.Options{
		Markers:         cfg.Graph.Markers,
		WeightRatio:     cfg.Graph.WeightRatio,
		MaxAlternatives: cfg.Graph.MaxAlternatives,
		Cutoff:          cfg.Graph.Cutoff,
	})
	if err != nil {
		return err
	}

	edges := 0
	for _, targets := range n.Edges {
		edges += len(targets)
	}
	logrus.WithFields(logrus.Fields{
		"nodes": len(n.Nodes),
		"edges": edges,
	}).Info("network built")

	names := []string{}
	for _, node := range n.Nodes {
		names = append(names, node.Name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(name)
	}

	out := graphOut
	if out == "" {
		out = cfg.Graph.CachePath
	}
	if out != "" {
		if err := n.Save(out); err != nil {
			return err
		}
		logrus.WithField("path", out).Info("snapshot written")
	}

	return nil
}
