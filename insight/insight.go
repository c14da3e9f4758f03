// Package insight produces a short human-readable assessment of a
// journey. Generation runs on a best-effort basis: when it fails or
// times out the journey is still returned, with the insight marked
// unavailable.
package insight

import (
	"context"
	"strings"
)

// Unavailable is substituted when a generator fails or times out.
const Unavailable = "Analysis unavailable."

// JourneySummary carries the journey facts a generator may reason
// about.
type JourneySummary struct {
	Transfers       int
	TotalMinutes    int
	MaxDelayMinutes int
	TrainLabels     []string
}

type Generator interface {
	Insight(ctx context.Context, j JourneySummary) (string, error)
}

// RuleBased assembles the insight from simple punctuality, transfer
// and comfort rules.
type RuleBased struct{}

var _ Generator = (*RuleBased)(nil)

func (g *RuleBased) Insight(ctx context.Context, j JourneySummary) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	reasons := []string{}

	switch {
	case j.MaxDelayMinutes == 0:
		reasons = append(reasons, "Typically very punctual.")
	case j.MaxDelayMinutes < 5:
		reasons = append(reasons, "Usually on time with minor fluctuations.")
	case j.MaxDelayMinutes < 15:
		reasons = append(reasons, "Moderate delays expected on this route.")
	default:
		reasons = append(reasons, "High risk of delay, plan accordingly.")
	}

	switch j.Transfers {
	case 0:
		reasons = append(reasons, "Direct connection - most relaxed option.")
	case 1:
		reasons = append(reasons, "Single transfer required.")
	}

	for _, label := range j.TrainLabels {
		if strings.Contains(label, "ICE") {
			reasons = append(reasons, "High-speed comfort with ICE.")
			break
		}
	}

	return "Analysis: " + strings.Join(reasons, " "), nil
}
