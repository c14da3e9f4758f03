package graph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schiene.dev/railplan/model"
	"schiene.dev/railplan/storage"
)

// Four major stations plus one minor stop. Frankfurt and Stuttgart
// are connected directly and via Mannheim; Würzburg hangs off
// Frankfurt on a late-night trip that crosses midnight.
func fixtureStorage(t *testing.T) storage.Storage {
	s := storage.NewMemoryStorage()
	w, err := s.Writer()
	require.NoError(t, err)

	for _, st := range []*model.Station{
		{ID: "ffm", Name: "Frankfurt(Main)Hbf", Lat: 50.107, Lon: 8.663},
		{ID: "ffm_7", Name: "Frankfurt(Main)Hbf Gleis 7", Lat: 50.107, Lon: 8.663, ParentID: "ffm"},
		{ID: "ma", Name: "Mannheim Hbf", Lat: 49.479, Lon: 8.469},
		{ID: "st", Name: "Stuttgart Hauptbahnhof", Lat: 48.784, Lon: 9.181},
		{ID: "wzb", Name: "Würzburg Hbf", Lat: 49.801, Lon: 9.935},
		{ID: "minor", Name: "Niederrad", Lat: 50.08, Lon: 8.63},
	} {
		require.NoError(t, w.WriteStation(st))
	}

	require.NoError(t, w.WriteRoute(&model.Route{ID: "r", ShortName: "ICE", Type: model.RouteTypeRail}))
	for _, tripID := range []string{"t1", "t2", "t3", "t4"} {
		require.NoError(t, w.WriteTrip(&model.Trip{ID: tripID, RouteID: "r"}))
	}

	require.NoError(t, w.BeginStopTimes())
	for _, st := range []*model.StopTime{
		// t1: Frankfurt -> Mannheim (38) -> Stuttgart (37), with a
		// minor stop in between that must not become a node.
		{TripID: "t1", StationID: "ffm_7", Sequence: 1, Arrival: "08:00:00", Departure: "08:02:00"},
		{TripID: "t1", StationID: "minor", Sequence: 2, Arrival: "08:06:00", Departure: "08:07:00"},
		{TripID: "t1", StationID: "ma", Sequence: 3, Arrival: "08:40:00", Departure: "08:42:00"},
		{TripID: "t1", StationID: "st", Sequence: 4, Arrival: "09:19:00", Departure: "09:21:00"},
		// t2: slower Frankfurt -> Mannheim; the faster t1 edge wins.
		{TripID: "t2", StationID: "ffm", Sequence: 1, Arrival: "10:00:00", Departure: "10:00:00"},
		{TripID: "t2", StationID: "ma", Sequence: 2, Arrival: "10:55:00", Departure: "10:56:00"},
		// t3: direct Frankfurt -> Stuttgart, slightly slower than
		// the two-hop path.
		{TripID: "t3", StationID: "ffm", Sequence: 1, Arrival: "11:00:00", Departure: "11:00:00"},
		{TripID: "t3", StationID: "st", Sequence: 2, Arrival: "12:21:00", Departure: "12:22:00"},
		// t4: Würzburg -> Frankfurt across midnight.
		{TripID: "t4", StationID: "wzb", Sequence: 1, Arrival: "23:40:00", Departure: "23:42:00"},
		{TripID: "t4", StationID: "ffm", Sequence: 2, Arrival: "00:55:00", Departure: "00:57:00"},
	} {
		require.NoError(t, w.WriteStopTime(st))
	}
	require.NoError(t, w.EndStopTimes())
	require.NoError(t, w.Close())

	return s
}

func buildFixture(t *testing.T) *Network {
	s := fixtureStorage(t)
	r, err := s.Reader()
	require.NoError(t, err)

	n, err := Build(context.Background(), r, Options{})
	require.NoError(t, err)
	return n
}

func TestBuildEdges(t *testing.T) {
	n := buildFixture(t)

	// Platform child collapses into the parent node
	require.Len(t, n.Nodes, 4)
	assert.Contains(t, n.Nodes, "ffm")
	assert.NotContains(t, n.Nodes, "ffm_7")
	assert.NotContains(t, n.Nodes, "minor")

	// Minimum weight wins: 08:02 -> 08:40 is 38, t2's 55 loses
	assert.Equal(t, 38, n.Edges["ffm"]["ma"])
	assert.Equal(t, 37, n.Edges["ma"]["st"])
	assert.Equal(t, 81, n.Edges["ffm"]["st"])

	// 23:42 -> 00:55 rolls over midnight
	assert.Equal(t, 73, n.Edges["wzb"]["ffm"])

	// Directed: nothing runs backwards in this fixture
	_, found := n.Edges["ma"]["ffm"]
	assert.False(t, found)
}

func TestBuildNoMajorStations(t *testing.T) {
	s := storage.NewMemoryStorage()
	r, err := s.Reader()
	require.NoError(t, err)

	_, err = Build(context.Background(), r, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnbuildable)
}

func TestResolveNode(t *testing.T) {
	n := buildFixture(t)

	for _, tc := range []struct {
		query    string
		expected string
	}{
		{"Frankfurt(Main)Hbf", "ffm"},
		{"frankfurt hauptbahnhof", "ffm"},
		{"Frankfurt Hbf", "ffm"},
		{"Stuttgart Hbf", "st"},
		{"Stuttgart Hauptbahnhof", "st"},
		{"Mannheim", "ma"},
		{"Würzburg Hbf", "wzb"},
	} {
		id, found := n.ResolveNode(tc.query)
		require.True(t, found, tc.query)
		assert.Equal(t, tc.expected, id, tc.query)
	}

	_, found := n.ResolveNode("Atlantis Hbf")
	assert.False(t, found)
}

func TestShortestPath(t *testing.T) {
	n := buildFixture(t)

	// Two-hop via Mannheim (75) beats the direct edge (81)
	path, weight, found := n.ShortestPath("ffm", "st")
	require.True(t, found)
	assert.Equal(t, []string{"ffm", "ma", "st"}, path)
	assert.Equal(t, 75, weight)

	// No path against edge direction
	_, _, found = n.ShortestPath("st", "wzb")
	assert.False(t, found)
}

func TestIntermediateStations(t *testing.T) {
	n := buildFixture(t)

	// Mannheim from the shortest path. The direct edge (81) is
	// within 20% of 75, but contributes no interior nodes.
	names := n.IntermediateStations("Frankfurt Hbf", "Stuttgart Hbf")
	assert.Equal(t, []string{"Mannheim Hbf"}, names)

	// Unresolvable endpoint is a normal empty result
	assert.Empty(t, n.IntermediateStations("Atlantis", "Stuttgart Hbf"))

	// No path either
	assert.Empty(t, n.IntermediateStations("Stuttgart Hbf", "Würzburg Hbf"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	n := buildFixture(t)

	path := filepath.Join(t.TempDir(), "network.json")
	require.NoError(t, n.Save(path))

	loaded, err := Load(path, Options{})
	require.NoError(t, err)

	require.Len(t, loaded.Nodes, len(n.Nodes))
	for id, node := range n.Nodes {
		assert.Equal(t, node, loaded.Nodes[id])
	}
	assert.Equal(t, n.Edges, loaded.Edges)

	// The loaded graph answers queries identically
	names := loaded.IntermediateStations("Frankfurt Hbf", "Stuttgart Hbf")
	assert.Equal(t, []string{"Mannheim Hbf"}, names)
}

func TestLoadMissingOrCorrupt(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"), Options{})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "garbage.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err = Load(path, Options{})
	assert.Error(t, err)
}
