package railplan_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schiene.dev/railplan"
	"schiene.dev/railplan/config"
	"schiene.dev/railplan/delay"
	"schiene.dev/railplan/insight"
	"schiene.dev/railplan/model"
	"schiene.dev/railplan/storage"
	"schiene.dev/railplan/testutil"
)

func journeyKeys(journeys []*model.Journey) []string {
	keys := []string{}
	for _, j := range journeys {
		trains := []string{}
		for _, leg := range j.Legs {
			trains = append(trains, leg.TrainNumber)
		}
		keys = append(keys, strings.Join(trains, "+"))
	}
	return keys
}

func TestFindRoutesDirectAndTransfer(t *testing.T) {
	p := newTestPlanner(t)

	journeys, err := p.FindRoutes(context.Background(),
		"Frankfurt Hbf", "Stuttgart Hbf", "07:30:00", railplan.SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, journeys)

	// Sorted ascending by total travel time: the three direct runs
	// first, then transfer combinations through Mannheim.
	keys := journeyKeys(journeys)
	assert.Equal(t, []string{"690", "692", "1092", "690+692", "692+1092", "690+1092"}, keys)

	direct := journeys[0]
	assert.Equal(t, 70, direct.TotalMinutes)
	assert.Equal(t, 0, direct.Transfers)
	assert.Equal(t, "Direct", direct.Description)
	assert.Equal(t, "Frankfurt(Main)Hbf Gleis 7", direct.StartStation.Name)
	assert.Equal(t, "Stuttgart Hbf", direct.EndStation.Name)

	transfer := journeys[3]
	assert.Equal(t, 1, transfer.Transfers)
	assert.Equal(t, "1 Transfers", transfer.Description)
	assert.Equal(t, 130, transfer.TotalMinutes)
	assert.Equal(t, "Mannheim Hbf", transfer.Legs[0].Destination.Name)

	// Only the fastest three carry an insight
	for i, j := range journeys {
		if i < 3 {
			assert.True(t, strings.HasPrefix(j.Insight, "Analysis:"), j.Insight)
		} else {
			assert.Empty(t, j.Insight)
		}
	}

	// Total times never decrease
	for i := 1; i < len(journeys); i++ {
		assert.GreaterOrEqual(t, journeys[i].TotalMinutes, journeys[i-1].TotalMinutes)
	}
}

func TestFindRoutesTransferOnly(t *testing.T) {
	s := storage.NewMemoryStorage()
	tt := &testutil.Timetable{
		Stations: []*model.Station{
			{ID: "8000105", Name: "Frankfurt(Main)Hbf", Lat: 50.107, Lon: 8.663},
			{ID: "8000244", Name: "Mannheim Hbf", Lat: 49.479, Lon: 8.469},
			{ID: "8000096", Name: "Stuttgart Hbf", Lat: 48.784, Lon: 9.181},
		},
		Routes: []*model.Route{
			{ID: "r_ice", ShortName: "ICE", Type: model.RouteTypeRail},
		},
		Trips: []*model.Trip{
			{ID: "ice10", RouteID: "r_ice", Headsign: "Mannheim Hbf", ShortName: "10"},
			{ID: "ice20", RouteID: "r_ice", Headsign: "Stuttgart Hbf", ShortName: "20"},
		},
		StopTimes: []*model.StopTime{
			{TripID: "ice10", StationID: "8000105", Sequence: 1, Arrival: "07:58:00", Departure: "08:00:00"},
			{TripID: "ice10", StationID: "8000244", Sequence: 2, Arrival: "08:30:00", Departure: "08:32:00"},
			{TripID: "ice20", StationID: "8000244", Sequence: 1, Arrival: "08:38:00", Departure: "08:40:00"},
			{TripID: "ice20", StationID: "8000096", Sequence: 2, Arrival: "09:20:00", Departure: "09:22:00"},
		},
	}
	tt.Load(t, s)

	p, err := railplan.NewPlanner(config.Default(), s)
	require.NoError(t, err)

	// No trip runs Frankfurt to Stuttgart end to end, so the only
	// result changes trains in Mannheim.
	journeys, err := p.FindRoutes(context.Background(),
		"Frankfurt Hbf", "Stuttgart Hbf", "07:30:00", railplan.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, journeys, 1)

	j := journeys[0]
	assert.Equal(t, []string{"10+20"}, journeyKeys(journeys))
	assert.Equal(t, 1, j.Transfers)
	assert.Equal(t, 80, j.TotalMinutes)
	assert.Equal(t, "Mannheim Hbf", j.Legs[0].Destination.Name)
	assert.Equal(t, "Mannheim Hbf", j.Legs[1].Origin.Name)
	assert.Equal(t, "08:40:00", j.Legs[1].Departure)
}

type failingGenerator struct{}

func (failingGenerator) Insight(ctx context.Context, j insight.JourneySummary) (string, error) {
	return "", errors.New("model offline")
}

func TestFindRoutesCollaboratorsDegrade(t *testing.T) {
	p := newTestPlanner(t)
	p.SetDelayEstimator(&delay.Fixed{Minutes: 0})
	p.SetInsightGenerator(failingGenerator{})

	journeys, err := p.FindRoutes(context.Background(),
		"Frankfurt Hbf", "Stuttgart Hbf", "07:30:00", railplan.SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, journeys)

	for _, leg := range journeys[0].Legs {
		assert.Zero(t, leg.DelayMinutes)
	}
	assert.Equal(t, insight.Unavailable, journeys[0].Insight)
}

func TestFindRoutesMidnightRollover(t *testing.T) {
	p := newTestPlanner(t)

	journeys, err := p.FindRoutes(context.Background(),
		"Frankfurt Hbf", "Stuttgart Hbf", "23:00:00", railplan.SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, journeys)

	// 23:50 -> 25:02 is 72 minutes, not negative
	assert.Equal(t, "1092", journeys[0].Legs[0].TrainNumber)
	assert.Equal(t, 72, journeys[0].TotalMinutes)
}

func TestFindRoutesVia(t *testing.T) {
	p := newTestPlanner(t)

	journeys, err := p.FindRoutes(context.Background(),
		"Frankfurt Hbf", "Stuttgart Hbf", "07:30:00", railplan.SearchOptions{
			Via:                []string{"Heidelberg Hbf"},
			MinTransferMinutes: 10,
		})
	require.NoError(t, err)
	require.Len(t, journeys, 1)

	j := journeys[0]
	assert.Equal(t, []string{"4567+4568"}, journeyKeys(journeys))
	assert.Equal(t, 1, j.Transfers)
	assert.Equal(t, "Heidelberg Hbf", j.Legs[0].Destination.Name)
	assert.Equal(t, 154, j.TotalMinutes)

	// A tighter transfer minimum than the schedule affords kills
	// the connection: RE 4568 leaves Heidelberg 15 minutes after
	// RE 4567 arrives.
	journeys, err = p.FindRoutes(context.Background(),
		"Frankfurt Hbf", "Stuttgart Hbf", "07:30:00", railplan.SearchOptions{
			Via:                []string{"Heidelberg Hbf"},
			MinTransferMinutes: 20,
		})
	require.NoError(t, err)
	assert.Empty(t, journeys)
}

func TestFindRoutesDelayBreaksTransfer(t *testing.T) {
	p := newTestPlanner(t)

	// ICE 690 now runs 65 minutes late: its Mannheim connection to
	// ICE 692 (09:42) is no longer reachable, the late ICE 1092 is.
	estimator := delay.NewSimulated(nil)
	estimator.SetDelays(map[string]int{"690": 65})
	p.SetDelayEstimator(estimator)

	journeys, err := p.FindRoutes(context.Background(),
		"Frankfurt Hbf", "Stuttgart Hbf", "07:30:00", railplan.SearchOptions{})
	require.NoError(t, err)

	keys := journeyKeys(journeys)
	assert.NotContains(t, keys, "690+692")
	assert.Contains(t, keys, "690+1092")

	// The direct run is still reported, delay attached
	assert.Contains(t, keys, "690")
	assert.Equal(t, 65, journeys[0].Legs[0].DelayMinutes)
}

func TestFindRoutesUnknownStation(t *testing.T) {
	p := newTestPlanner(t)

	journeys, err := p.FindRoutes(context.Background(),
		"Atlantis", "Stuttgart Hbf", "07:30:00", railplan.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, journeys)
}

func TestFindRoutesWindow(t *testing.T) {
	p := newTestPlanner(t)

	journeys, err := p.FindRoutesWindow(context.Background(),
		"Frankfurt Hbf", "Stuttgart Hbf", "07:00:00", "10:00:00", railplan.SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, journeys)
	assert.LessOrEqual(t, len(journeys), 20)

	// Journeys found in several hourly slices appear once, ordered
	// by departure.
	keys := journeyKeys(journeys)
	seen := map[string]int{}
	for _, k := range keys {
		seen[k]++
	}
	assert.Equal(t, 1, seen["690"])
	assert.Equal(t, 1, seen["692"])
	for i := 1; i < len(journeys); i++ {
		assert.LessOrEqual(t, journeys[i-1].Legs[0].Departure, journeys[i].Legs[0].Departure)
	}

	// Insights mark the fastest journeys of the whole window, not
	// the earliest departures.
	annotated := []string{}
	for i, j := range journeys {
		if j.Insight != "" {
			annotated = append(annotated, keys[i])
		}
	}
	assert.ElementsMatch(t, []string{"690", "692", "1092"}, annotated)

	// Nonsense windows are rejected
	_, err = p.FindRoutesWindow(context.Background(),
		"Frankfurt Hbf", "Stuttgart Hbf", "10:00:00", "07:00:00", railplan.SearchOptions{})
	assert.Error(t, err)
}

type slowGenerator struct {
	wait time.Duration
}

func (g *slowGenerator) Insight(ctx context.Context, j insight.JourneySummary) (string, error) {
	select {
	case <-time.After(g.wait):
		return "too late", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestFindRoutesInsightTimeout(t *testing.T) {
	s := storage.NewMemoryStorage()
	testutil.GermanCorridor().Load(t, s)

	cfg := config.Default()
	cfg.Planner.InsightTimeoutMS = 20

	p, err := railplan.NewPlanner(cfg, s)
	require.NoError(t, err)
	p.SetInsightGenerator(&slowGenerator{wait: 500 * time.Millisecond})

	start := time.Now()
	journeys, err := p.FindRoutes(context.Background(),
		"Frankfurt Hbf", "Stuttgart Hbf", "07:30:00", railplan.SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, journeys)

	// Journeys arrive despite the stuck generator
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, insight.Unavailable, journeys[0].Insight)
}

func TestIntermediateStations(t *testing.T) {
	p := newTestPlanner(t)

	names, err := p.IntermediateStations(context.Background(), "Frankfurt Hbf", "Stuttgart Hbf")
	require.NoError(t, err)
	assert.Equal(t, []string{"Mannheim Hbf"}, names)
}
