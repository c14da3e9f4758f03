package insight

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleBasedInsight(t *testing.T) {
	g := &RuleBased{}

	for _, tc := range []struct {
		name     string
		summary  JourneySummary
		expected string
	}{
		{
			"punctual_direct_ice",
			JourneySummary{
				Transfers:   0,
				TrainLabels: []string{"ICE 690"},
			},
			"Analysis: Typically very punctual. Direct connection - most relaxed option. High-speed comfort with ICE.",
		},
		{
			"minor_delay_single_transfer",
			JourneySummary{
				Transfers:       1,
				MaxDelayMinutes: 3,
				TrainLabels:     []string{"RE 4567", "RB 123"},
			},
			"Analysis: Usually on time with minor fluctuations. Single transfer required.",
		},
		{
			"moderate_delay",
			JourneySummary{
				Transfers:       2,
				MaxDelayMinutes: 10,
				TrainLabels:     []string{"RE 1", "RE 2", "RE 3"},
			},
			"Analysis: Moderate delays expected on this route.",
		},
		{
			"heavy_delay",
			JourneySummary{
				Transfers:       0,
				MaxDelayMinutes: 20,
				TrainLabels:     []string{"IC 2012"},
			},
			"Analysis: High risk of delay, plan accordingly. Direct connection - most relaxed option.",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := g.Insight(context.Background(), tc.summary)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestRuleBasedInsightCanceled(t *testing.T) {
	g := &RuleBased{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Insight(ctx, JourneySummary{})
	assert.Error(t, err)
}
