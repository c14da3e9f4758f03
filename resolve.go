package railplan

import (
	"context"
	"sort"
	"strings"

	"schiene.dev/railplan/model"
)

// ResolveStation maps free text ("Frankfurt HBF", "Frankfurt (Main)
// Hbf") to the full sibling set of the best-matching station: the
// station itself, its parent and all stations sharing that parent. An
// empty result means no match and no journeys, never an error.
func (p *Planner) ResolveStation(ctx context.Context, name string) ([]*model.Station, error) {
	canonical, err := p.findCanonicalStation(ctx, name)
	if err != nil {
		return nil, err
	}
	if canonical == nil {
		return []*model.Station{}, nil
	}

	return p.reader.SiblingStations(ctx, canonical.ID)
}

func isPrincipalName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "hbf") || strings.Contains(lower, "hauptbahnhof")
}

// swapPrincipal substitutes "Hbf" for "Hauptbahnhof" or vice versa,
// case-insensitively. Returns "" when the name contains neither.
func swapPrincipal(name string) string {
	lower := strings.ToLower(name)

	if i := strings.Index(lower, "hauptbahnhof"); i >= 0 {
		return name[:i] + "Hbf" + name[i+len("hauptbahnhof"):]
	}
	if i := strings.Index(lower, "hbf"); i >= 0 {
		return name[:i] + "Hauptbahnhof" + name[i+len("hbf"):]
	}
	return ""
}

// nameTokens splits a station name into comparable lowercase tokens.
// Parentheses become separators and "hauptbahnhof" folds into "hbf".
func nameTokens(name string) []string {
	lower := strings.ToLower(name)
	lower = strings.ReplaceAll(lower, "(", " ")
	lower = strings.ReplaceAll(lower, ")", " ")
	lower = strings.ReplaceAll(lower, "hauptbahnhof", "hbf")
	return strings.Fields(lower)
}

// tokensContained reports whether every query token appears in the
// name tokens.
func tokensContained(query, name []string) bool {
	set := map[string]bool{}
	for _, tok := range name {
		set[tok] = true
	}
	for _, tok := range query {
		if !set[tok] {
			return false
		}
	}
	return true
}

func (p *Planner) findCanonicalStation(ctx context.Context, name string) (*model.Station, error) {
	variants := []string{name}
	if alt := swapPrincipal(name); alt != "" {
		variants = append(variants, alt)
	}

	// Exact match first; substring matches are kept as fallback
	// candidates.
	candidates := []*model.Station{}
	for _, variant := range variants {
		matches, err := p.reader.FindStationsByName(ctx, variant)
		if err != nil {
			return nil, err
		}
		for _, st := range matches {
			if strings.EqualFold(st.Name, variant) {
				return st, nil
			}
		}
		candidates = append(candidates, matches...)
	}

	// Looser matching via the first word. Covers queries carrying
	// qualifiers the stored name lacks ("Mannheim Hbf Gleis 3") and
	// stored names with punctuation the query lacks
	// ("Frankfurt(Main)Hbf" for "Frankfurt Hbf").
	if fields := strings.Fields(name); len(fields) > 0 {
		matches, err := p.reader.FindStationsByName(ctx, fields[0])
		if err != nil {
			return nil, err
		}
		lowerQuery := strings.ToLower(name)
		queryTokens := nameTokens(name)
		for _, st := range matches {
			if strings.Contains(lowerQuery, strings.ToLower(st.Name)) ||
				tokensContained(queryTokens, nameTokens(st.Name)) {
				candidates = append(candidates, st)
			}
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	// Principal stations beat other matches, shorter names are more
	// specific, IDs break remaining ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := isPrincipalName(candidates[i].Name), isPrincipalName(candidates[j].Name)
		if pi != pj {
			return pi
		}
		if len(candidates[i].Name) != len(candidates[j].Name) {
			return len(candidates[i].Name) < len(candidates[j].Name)
		}
		return candidates[i].ID < candidates[j].ID
	})

	return candidates[0], nil
}
