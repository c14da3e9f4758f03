package railplan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"schiene.dev/railplan/insight"
	"schiene.dev/railplan/model"
)

const (
	// Transfer station candidates considered per search.
	maxTransferCandidates = 3

	// Fastest first-leg journeys expanded in a via search.
	maxViaFirstLegs = 3

	// Journeys annotated with an insight.
	insightAnnotations = 3

	// Cap for windowed searches.
	maxWindowJourneys = 20
)

// SearchOptions narrow a journey search.
type SearchOptions struct {
	// Mandatory intermediate stations, visited in order.
	Via []string

	// Minimum minutes between arriving and departing when composing
	// via journeys.
	MinTransferMinutes int
}

// FindRoutes plans journeys from origin to destination departing at or
// after minDeparture. Returns at most 10 journeys sorted by total
// travel time, the fastest few annotated with an insight.
func (p *Planner) FindRoutes(ctx context.Context, origin, destination, minDeparture string, opts SearchOptions) ([]*model.Journey, error) {
	journeys, err := p.findRoutes(ctx, origin, destination, minDeparture, opts)
	if err != nil {
		return nil, err
	}

	p.annotateInsights(ctx, journeys)
	return journeys, nil
}

// FindRoutesWindow repeats the search at hourly departure offsets
// between from and to, merging the results into at most 20 journeys.
func (p *Planner) FindRoutesWindow(ctx context.Context, origin, destination, from, to string, opts SearchOptions) ([]*model.Journey, error) {
	fromMin, err := model.ParseClock(from)
	if err != nil {
		return nil, fmt.Errorf("invalid window start: %w", err)
	}
	toMin, err := model.ParseClock(to)
	if err != nil {
		return nil, fmt.Errorf("invalid window end: %w", err)
	}
	if toMin < fromMin {
		return nil, fmt.Errorf("window end %s before start %s", to, from)
	}

	journeys := []*model.Journey{}
	seen := map[string]bool{}
	for t := fromMin; t <= toMin && len(journeys) < maxWindowJourneys; t += 60 {
		batch, err := p.findRoutes(ctx, origin, destination, model.FormatClock(t), opts)
		if err != nil {
			return nil, err
		}
		for _, j := range batch {
			if seen[j.ID] {
				continue
			}
			seen[j.ID] = true
			journeys = append(journeys, j)
		}
	}
	if len(journeys) > maxWindowJourneys {
		journeys = journeys[:maxWindowJourneys]
	}

	// Insights go to the fastest journeys of the whole window, then
	// the list is reordered chronologically for presentation.
	sort.SliceStable(journeys, func(i, j int) bool {
		return journeys[i].TotalMinutes < journeys[j].TotalMinutes
	})
	p.annotateInsights(ctx, journeys)

	sort.SliceStable(journeys, func(i, j int) bool {
		if journeys[i].Legs[0].Departure != journeys[j].Legs[0].Departure {
			return journeys[i].Legs[0].Departure < journeys[j].Legs[0].Departure
		}
		return journeys[i].TotalMinutes < journeys[j].TotalMinutes
	})
	return journeys, nil
}

func (p *Planner) findRoutes(ctx context.Context, origin, destination, minDeparture string, opts SearchOptions) ([]*model.Journey, error) {
	if len(opts.Via) > 0 {
		return p.findViaRoutes(ctx, origin, destination, minDeparture, opts)
	}

	journeys := []*model.Journey{}

	legs, err := p.FindSegment(ctx, origin, destination, minDeparture)
	if err != nil {
		return nil, err
	}
	for _, leg := range legs {
		journeys = append(journeys, p.composeJourney([]model.Leg{leg}))
	}

	transfers, err := p.findTransferRoutes(ctx, origin, destination, minDeparture)
	if err != nil {
		return nil, err
	}
	journeys = append(journeys, transfers...)

	return p.rankJourneys(journeys), nil
}

// findViaRoutes decomposes the search at the first via station: the
// fastest journeys to the via are each extended with journeys onward,
// departing no earlier than arrival plus the transfer minimum.
func (p *Planner) findViaRoutes(ctx context.Context, origin, destination, minDeparture string, opts SearchOptions) ([]*model.Journey, error) {
	via := opts.Via[0]

	first, err := p.findRoutes(ctx, origin, via, minDeparture, SearchOptions{
		MinTransferMinutes: opts.MinTransferMinutes,
	})
	if err != nil {
		return nil, err
	}
	if len(first) > maxViaFirstLegs {
		first = first[:maxViaFirstLegs]
	}

	journeys := []*model.Journey{}
	for _, j1 := range first {
		arrival, err := model.ParseClock(j1.Legs[len(j1.Legs)-1].Arrival)
		if err != nil {
			continue
		}
		onwardDeparture := model.FormatClock(arrival + opts.MinTransferMinutes)

		second, err := p.findRoutes(ctx, via, destination, onwardDeparture, SearchOptions{
			Via:                opts.Via[1:],
			MinTransferMinutes: opts.MinTransferMinutes,
		})
		if err != nil {
			return nil, err
		}

		for _, j2 := range second {
			legs := append(append([]model.Leg{}, j1.Legs...), j2.Legs...)
			journeys = append(journeys, p.composeJourney(legs))
		}
	}

	return p.rankJourneys(journeys), nil
}

// findTransferRoutes searches one-transfer journeys through candidate
// stations proposed by the network graph. Candidates are searched
// concurrently; results are re-sorted afterwards so completion order
// doesn't matter.
func (p *Planner) findTransferRoutes(ctx context.Context, origin, destination, minDeparture string) ([]*model.Journey, error) {
	candidates, err := p.IntermediateStations(ctx, origin, destination)
	if err != nil {
		return nil, err
	}
	if len(candidates) > maxTransferCandidates {
		candidates = candidates[:maxTransferCandidates]
	}

	results := make([][]*model.Journey, len(candidates))
	errs := make([]error, len(candidates))

	wg := sync.WaitGroup{}
	for i, candidate := range candidates {
		wg.Add(1)
		go func(i int, candidate string) {
			defer wg.Done()
			results[i], errs[i] = p.transfersThrough(ctx, origin, candidate, destination, minDeparture)
		}(i, candidate)
	}
	wg.Wait()

	journeys := []*model.Journey{}
	for i := range candidates {
		if errs[i] != nil {
			return nil, errs[i]
		}
		journeys = append(journeys, results[i]...)
	}

	return journeys, nil
}

func (p *Planner) transfersThrough(ctx context.Context, origin, candidate, destination, minDeparture string) ([]*model.Journey, error) {
	buffer := p.cfg.Planner.TransferBufferMinutes

	firstLegs, err := p.FindSegment(ctx, origin, candidate, minDeparture)
	if err != nil {
		return nil, err
	}

	journeys := []*model.Journey{}
	for _, l1 := range firstLegs {
		arrival, err := model.ParseClock(l1.Arrival)
		if err != nil {
			continue
		}

		secondLegs, err := p.FindSegment(ctx, candidate, destination, model.FormatClock(arrival+buffer))
		if err != nil {
			return nil, err
		}

		for _, l2 := range secondLegs {
			departure, err := model.ParseClock(l2.Departure)
			if err != nil {
				continue
			}

			// The schedule admits this transfer; delays may still
			// break it.
			if departure+l2.DelayMinutes < arrival+l1.DelayMinutes+buffer {
				continue
			}

			journeys = append(journeys, p.composeJourney([]model.Leg{l1, l2}))
		}
	}

	return journeys, nil
}

func (p *Planner) composeJourney(legs []model.Leg) *model.Journey {
	first, last := legs[0], legs[len(legs)-1]

	dep, _ := model.ParseClock(first.Departure)
	arr, _ := model.ParseClock(last.Arrival)

	description := "Direct"
	if len(legs) > 1 {
		description = fmt.Sprintf("%d Transfers", len(legs)-1)
	}

	return &model.Journey{
		ID:           journeyKey(legs) + "@" + first.Departure,
		StartStation: first.Origin,
		EndStation:   last.Destination,
		Legs:         legs,
		Transfers:    len(legs) - 1,
		TotalMinutes: model.ClockDiff(dep, arr),
		Description:  description,
	}
}

// journeyKey is the composite of the involved train numbers. The same
// trains found through overlapping candidate stations are duplicates.
func journeyKey(legs []model.Leg) string {
	trains := make([]string, 0, len(legs))
	for _, leg := range legs {
		trains = append(trains, leg.TrainNumber)
	}
	return strings.Join(trains, "+")
}

// rankJourneys deduplicates by train composition, sorts by total time
// and truncates to the configured maximum.
func (p *Planner) rankJourneys(journeys []*model.Journey) []*model.Journey {
	seen := map[string]bool{}
	kept := []*model.Journey{}
	for _, j := range journeys {
		key := journeyKey(j.Legs)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, j)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].TotalMinutes != kept[j].TotalMinutes {
			return kept[i].TotalMinutes < kept[j].TotalMinutes
		}
		return kept[i].Legs[0].Departure < kept[j].Legs[0].Departure
	})

	max := p.cfg.Planner.MaxResults
	if max <= 0 {
		max = 10
	}
	if len(kept) > max {
		kept = kept[:max]
	}

	return kept
}

// annotateInsights attaches insights to the fastest journeys. The
// generator gets its own bounded budget; a failure or timeout degrades
// to a placeholder and never delays the journeys themselves.
func (p *Planner) annotateInsights(ctx context.Context, journeys []*model.Journey) {
	n := insightAnnotations
	if len(journeys) < n {
		n = len(journeys)
	}
	if n == 0 {
		return
	}

	timeout := time.Duration(p.cfg.Planner.InsightTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}

	wg := sync.WaitGroup{}
	for _, j := range journeys[:n] {
		wg.Add(1)
		go func(j *model.Journey) {
			defer wg.Done()

			ictx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			text, err := p.insights.Insight(ictx, summarize(j))
			if err != nil {
				j.Insight = insight.Unavailable
				return
			}
			j.Insight = text
		}(j)
	}
	wg.Wait()
}

func summarize(j *model.Journey) insight.JourneySummary {
	summary := insight.JourneySummary{
		Transfers:    j.Transfers,
		TotalMinutes: j.TotalMinutes,
	}
	for _, leg := range j.Legs {
		if leg.DelayMinutes > summary.MaxDelayMinutes {
			summary.MaxDelayMinutes = leg.DelayMinutes
		}
		summary.TrainLabels = append(summary.TrainLabels, leg.TrainLabel)
	}
	return summary
}
