// Package railplan plans multi-leg rail journeys between named
// stations from a static timetable, augmented with delay signals.
package railplan

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"schiene.dev/railplan/config"
	"schiene.dev/railplan/delay"
	"schiene.dev/railplan/graph"
	"schiene.dev/railplan/insight"
	"schiene.dev/railplan/storage"
)

// Planner is the planning engine. It is safe for concurrent use.
type Planner struct {
	cfg      config.Config
	reader   storage.TimetableReader
	delays   delay.Estimator
	insights insight.Generator

	// Guards the one-time network construction.
	mu      sync.Mutex
	network *graph.Network
}

// NewPlanner creates a planner on top of a timetable store. Delay
// estimation defaults to the simulated estimator and insights to the
// rule-based generator; both can be replaced before serving requests.
func NewPlanner(cfg config.Config, store storage.Storage) (*Planner, error) {
	reader, err := store.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening timetable reader: %w", err)
	}

	return &Planner{
		cfg:      cfg,
		reader:   reader,
		delays:   delay.NewSimulated(reader),
		insights: &insight.RuleBased{},
	}, nil
}

func (p *Planner) SetDelayEstimator(e delay.Estimator) {
	p.delays = e
}

func (p *Planner) SetInsightGenerator(g insight.Generator) {
	p.insights = g
}

func (p *Planner) graphOptions() graph.Options {
	return graph.Options{
		Markers:         p.cfg.Graph.Markers,
		WeightRatio:     p.cfg.Graph.WeightRatio,
		MaxAlternatives: p.cfg.Graph.MaxAlternatives,
		Cutoff:          p.cfg.Graph.Cutoff,
	}
}

// Network returns the major-station graph, loading the snapshot or
// building from the store on first use. Concurrent first requests
// build at most once.
func (p *Planner) Network(ctx context.Context) (*graph.Network, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.network != nil {
		return p.network, nil
	}

	if path := p.cfg.Graph.CachePath; path != "" {
		n, err := graph.Load(path, p.graphOptions())
		if err == nil {
			p.network = n
			return n, nil
		}
		logrus.WithError(err).WithField("path", path).
			Info("graph snapshot unusable, rebuilding")
	}

	n, err := p.buildNetwork(ctx)
	if err != nil {
		return nil, err
	}

	p.network = n
	return n, nil
}

// Rebuild constructs the graph afresh, replacing any loaded snapshot.
func (p *Planner) Rebuild(ctx context.Context) error {
	n, err := p.buildNetwork(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.network = n
	p.mu.Unlock()

	return nil
}

func (p *Planner) buildNetwork(ctx context.Context) (*graph.Network, error) {
	n, err := graph.Build(ctx, p.reader, p.graphOptions())
	if err != nil {
		return nil, err
	}

	if path := p.cfg.Graph.CachePath; path != "" {
		if err := n.Save(path); err != nil {
			// The graph still works, only the next startup pays
			// the rebuild.
			logrus.WithError(err).WithField("path", path).
				Warn("saving graph snapshot failed")
		}
	}

	return n, nil
}

// IntermediateStations proposes transfer stations between two named
// endpoints. Empty means no resolution or no path, a normal outcome.
func (p *Planner) IntermediateStations(ctx context.Context, origin, destination string) ([]string, error) {
	n, err := p.Network(ctx)
	if err != nil {
		return nil, err
	}
	return n.IntermediateStations(origin, destination), nil
}
