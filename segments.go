package railplan

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"

	"schiene.dev/railplan/model"
	"schiene.dev/railplan/storage"
)

// Legs departing within the same bucket under the same train number
// are near-duplicate stop records of one physical train.
const dedupBucketMinutes = 20

// FindSegment finds direct rides between two named stations departing
// at or after minDeparture (HH:MM:SS, blank for any time). Results are
// ordered by departure and deduplicated per train and 20-minute
// departure bucket.
func (p *Planner) FindSegment(ctx context.Context, startName, endName, minDeparture string) ([]model.Leg, error) {
	startSet, err := p.ResolveStation(ctx, startName)
	if err != nil {
		return nil, err
	}
	endSet, err := p.ResolveStation(ctx, endName)
	if err != nil {
		return nil, err
	}
	if len(startSet) == 0 || len(endSet) == 0 {
		return []model.Leg{}, nil
	}

	segments, err := p.reader.Segments(ctx, storage.SegmentFilter{
		OriginIDs:      stationIDs(startSet),
		DestinationIDs: stationIDs(endSet),
		MinDeparture:   minDeparture,
		Limit:          p.cfg.Planner.SegmentLimit,
	})
	if err != nil {
		return nil, err
	}

	legs := []model.Leg{}
	seen := map[string]bool{}
	for _, seg := range segments {
		depMin, err := model.ParseClock(seg.Departure)
		if err != nil {
			continue
		}

		label := trainLabel(seg)
		train := model.TrainNumber(label)

		key := fmt.Sprintf("%s@%d", train, depMin/dedupBucketMinutes)
		if seen[key] {
			continue
		}
		seen[key] = true

		path, err := p.reader.StopsBetween(ctx, seg.TripID, seg.OriginSeq, seg.DestinationSeq)
		if err != nil {
			return nil, err
		}

		leg := model.Leg{
			Origin:            *seg.Origin,
			Destination:       *seg.Destination,
			TrainLabel:        label,
			TrainNumber:       train,
			Headsign:          seg.Headsign,
			Departure:         seg.Departure,
			Arrival:           seg.Arrival,
			DeparturePlatform: seg.OriginPlatform,
			ArrivalPlatform:   pseudoPlatform(seg.Destination.ID),
			DelayMinutes:      p.delays.CurrentDelay(ctx, train),
			WagonLoads:        wagonLoads(train),
		}
		if leg.DeparturePlatform == "" {
			leg.DeparturePlatform = pseudoPlatform(seg.Origin.ID)
		}
		for _, entry := range path {
			leg.Path = append(leg.Path, model.PathStop{
				Station:   *entry.Station,
				Arrival:   entry.Arrival,
				Departure: entry.Departure,
				Platform:  pseudoPlatform(entry.Station.ID),
			})
		}

		legs = append(legs, leg)
	}

	return legs, nil
}

func stationIDs(stations []*model.Station) []string {
	ids := make([]string, 0, len(stations))
	for _, st := range stations {
		ids = append(ids, st.ID)
	}
	return ids
}

// "ICE 690" from route short name and train number, degrading to
// whichever part exists.
func trainLabel(seg *storage.Segment) string {
	switch {
	case seg.RouteShortName != "" && seg.TrainNumber != "":
		return seg.RouteShortName + " " + seg.TrainNumber
	case seg.TrainNumber != "":
		return seg.TrainNumber
	default:
		return seg.RouteShortName
	}
}

func hash32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// pseudoPlatform assigns a stable platform (1-12) when enrichment data
// has none, so demos and tests see reproducible output.
func pseudoPlatform(stationID string) string {
	return strconv.Itoa(int(hash32(stationID)%12) + 1)
}

// wagonLoads simulates per-wagon occupancy percentages (5 to 12
// wagons, 30-80% load), deterministic in the train number.
func wagonLoads(trainNumber string) []int {
	h := hash32(trainNumber)
	count := int(h%8) + 5

	loads := make([]int, count)
	x := h
	for i := range loads {
		x = x*1664525 + 1013904223
		loads[i] = int(x%51) + 30
	}
	return loads
}
