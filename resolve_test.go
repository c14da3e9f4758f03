package railplan_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schiene.dev/railplan"
	"schiene.dev/railplan/config"
	"schiene.dev/railplan/storage"
	"schiene.dev/railplan/testutil"
)

func newTestPlanner(t *testing.T) *railplan.Planner {
	s := storage.NewMemoryStorage()
	testutil.GermanCorridor().Load(t, s)

	p, err := railplan.NewPlanner(config.Default(), s)
	require.NoError(t, err)
	return p
}

func stationIDs(t *testing.T, p *railplan.Planner, name string) []string {
	stations, err := p.ResolveStation(context.Background(), name)
	require.NoError(t, err)

	ids := []string{}
	for _, st := range stations {
		ids = append(ids, st.ID)
	}
	return ids
}

func TestResolveStationExact(t *testing.T) {
	p := newTestPlanner(t)

	// The canonical station expands to its full sibling set
	assert.ElementsMatch(t,
		[]string{"8000105", "8000105_7"},
		stationIDs(t, p, "Frankfurt(Main)Hbf"))

	// Case-insensitive
	assert.ElementsMatch(t,
		[]string{"8000105", "8000105_7"},
		stationIDs(t, p, "frankfurt(main)hbf"))

	// Resolving via the platform child yields the same set
	assert.ElementsMatch(t,
		[]string{"8000105", "8000105_7"},
		stationIDs(t, p, "Frankfurt(Main)Hbf Gleis 7"))
}

func TestResolveStationPrincipalSubstitution(t *testing.T) {
	p := newTestPlanner(t)

	assert.ElementsMatch(t,
		[]string{"8000105", "8000105_7"},
		stationIDs(t, p, "Frankfurt(Main)Hauptbahnhof"))

	assert.Equal(t, []string{"8000244"}, stationIDs(t, p, "Mannheim Hauptbahnhof"))
}

func TestResolveStationSubstring(t *testing.T) {
	p := newTestPlanner(t)

	// Partial query contained in the stored name
	assert.ElementsMatch(t,
		[]string{"8000105", "8000105_7"},
		stationIDs(t, p, "Frankfurt"))

	// Stored name contained in the query
	assert.Equal(t, []string{"8000244"}, stationIDs(t, p, "Mannheim Hbf Gleis 3"))
}

func TestResolveStationPunctuation(t *testing.T) {
	p := newTestPlanner(t)

	// The stored name carries parentheses the query lacks
	assert.ElementsMatch(t,
		[]string{"8000105", "8000105_7"},
		stationIDs(t, p, "Frankfurt Hbf"))

	assert.ElementsMatch(t,
		[]string{"8000105", "8000105_7"},
		stationIDs(t, p, "Frankfurt Hauptbahnhof"))
}

func TestResolveStationNoMatch(t *testing.T) {
	p := newTestPlanner(t)

	ids := stationIDs(t, p, "Atlantis Hbf")
	assert.Empty(t, ids)
}
