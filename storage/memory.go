package storage

import (
	"context"
	"sort"
	"strings"

	"schiene.dev/railplan/model"
)

// MemoryStorage is a timetable store backed by plain maps. It is
// meant for tests and small demos; it makes no attempt at being
// efficient.
type MemoryStorage struct {
	stations      map[string]*model.Station
	routes        map[string]*model.Route
	trips         map[string]*model.Trip
	stopTimes     []*model.StopTime
	platforms     []*model.Platform
	delayPatterns []*DelayPattern
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		stations: map[string]*model.Station{},
		routes:   map[string]*model.Route{},
		trips:    map[string]*model.Trip{},
	}
}

func (m *MemoryStorage) Reader() (TimetableReader, error) {
	return &memoryReader{m}, nil
}

func (m *MemoryStorage) Writer() (TimetableWriter, error) {
	return &memoryWriter{m}, nil
}

type memoryReader struct {
	s *MemoryStorage
}

type memoryWriter struct {
	s *MemoryStorage
}

func sortStations(stations []*model.Station) {
	sort.Slice(stations, func(i, j int) bool {
		if len(stations[i].Name) != len(stations[j].Name) {
			return len(stations[i].Name) < len(stations[j].Name)
		}
		return stations[i].ID < stations[j].ID
	})
}

func (r *memoryReader) FindStationsByName(ctx context.Context, fragment string) ([]*model.Station, error) {
	needle := strings.ToLower(fragment)
	matches := []*model.Station{}
	for _, st := range r.s.stations {
		if strings.Contains(strings.ToLower(st.Name), needle) {
			copied := *st
			matches = append(matches, &copied)
		}
	}
	sortStations(matches)
	return matches, nil
}

func (r *memoryReader) SiblingStations(ctx context.Context, stationID string) ([]*model.Station, error) {
	st, ok := r.s.stations[stationID]
	if !ok {
		return []*model.Station{}, nil
	}

	parentID := st.ParentID
	if parentID == "" {
		parentID = st.ID
	}

	siblings := []*model.Station{}
	for _, cand := range r.s.stations {
		if cand.ID == parentID || cand.ParentID == parentID || cand.ID == stationID {
			copied := *cand
			siblings = append(siblings, &copied)
		}
	}
	sort.Slice(siblings, func(i, j int) bool { return siblings[i].ID < siblings[j].ID })
	return siblings, nil
}

func (r *memoryReader) StationsMatching(ctx context.Context, markers []string) ([]*model.Station, error) {
	matches := []*model.Station{}
	for _, st := range r.s.stations {
		for _, m := range markers {
			if strings.Contains(st.Name, m) {
				copied := *st
				matches = append(matches, &copied)
				break
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches, nil
}

func (r *memoryReader) TripsVia(ctx context.Context, stationIDs []string) ([]string, error) {
	wanted := map[string]bool{}
	for _, id := range stationIDs {
		wanted[id] = true
	}

	seen := map[string]bool{}
	tripIDs := []string{}
	for _, st := range r.s.stopTimes {
		if wanted[st.StationID] && !seen[st.TripID] {
			seen[st.TripID] = true
			tripIDs = append(tripIDs, st.TripID)
		}
	}
	sort.Strings(tripIDs)
	return tripIDs, nil
}

func (r *memoryReader) StopTimesForTrips(ctx context.Context, tripIDs []string) ([]*model.StopTime, error) {
	wanted := map[string]bool{}
	for _, id := range tripIDs {
		wanted[id] = true
	}

	stopTimes := []*model.StopTime{}
	for _, st := range r.s.stopTimes {
		if wanted[st.TripID] {
			copied := *st
			stopTimes = append(stopTimes, &copied)
		}
	}
	sort.Slice(stopTimes, func(i, j int) bool {
		if stopTimes[i].TripID != stopTimes[j].TripID {
			return stopTimes[i].TripID < stopTimes[j].TripID
		}
		return stopTimes[i].Sequence < stopTimes[j].Sequence
	})
	return stopTimes, nil
}

func (r *memoryReader) Segments(ctx context.Context, filter SegmentFilter) ([]*Segment, error) {
	origins := map[string]bool{}
	for _, id := range filter.OriginIDs {
		origins[id] = true
	}
	dests := map[string]bool{}
	for _, id := range filter.DestinationIDs {
		dests[id] = true
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSegmentLimit
	}

	byTrip := map[string][]*model.StopTime{}
	for _, st := range r.s.stopTimes {
		byTrip[st.TripID] = append(byTrip[st.TripID], st)
	}

	segments := []*Segment{}
	for tripID, stops := range byTrip {
		trip := r.s.trips[tripID]
		if trip == nil {
			continue
		}
		route := r.s.routes[trip.RouteID]
		if route == nil {
			continue
		}

		sort.Slice(stops, func(i, j int) bool { return stops[i].Sequence < stops[j].Sequence })

		for _, st1 := range stops {
			if !origins[st1.StationID] {
				continue
			}
			if filter.MinDeparture != "" && st1.Departure < filter.MinDeparture {
				continue
			}
			for _, st2 := range stops {
				if !dests[st2.StationID] || st2.Sequence <= st1.Sequence {
					continue
				}

				seg := &Segment{
					TripID:         tripID,
					TrainNumber:    trip.ShortName,
					RouteShortName: route.ShortName,
					RouteType:      route.Type,
					Headsign:       trip.Headsign,
					Origin:         copyStation(r.s.stations[st1.StationID]),
					Destination:    copyStation(r.s.stations[st2.StationID]),
					Departure:      st1.Departure,
					Arrival:        st2.Arrival,
					OriginSeq:      st1.Sequence,
					DestinationSeq: st2.Sequence,
				}
				for _, p := range r.s.platforms {
					if p.ParentStationID == st1.StationID {
						seg.OriginPlatform = p.Name
						break
					}
				}
				segments = append(segments, seg)
			}
		}
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Departure < segments[j].Departure
	})

	if len(segments) > limit {
		segments = segments[:limit]
	}

	return segments, nil
}

func copyStation(st *model.Station) *model.Station {
	if st == nil {
		return &model.Station{}
	}
	copied := *st
	return &copied
}

func (r *memoryReader) StopsBetween(ctx context.Context, tripID string, fromSeq, toSeq uint32) ([]*PathEntry, error) {
	// Ordered by sequence, not by clock: arrival strings compare
	// wrong across midnight.
	stops := []*model.StopTime{}
	for _, st := range r.s.stopTimes {
		if st.TripID != tripID || st.Sequence <= fromSeq || st.Sequence >= toSeq {
			continue
		}
		stops = append(stops, st)
	}
	sort.Slice(stops, func(i, j int) bool {
		return stops[i].Sequence < stops[j].Sequence
	})

	entries := []*PathEntry{}
	for _, st := range stops {
		entries = append(entries, &PathEntry{
			Station:   copyStation(r.s.stations[st.StationID]),
			Arrival:   st.Arrival,
			Departure: st.Departure,
		})
	}
	return entries, nil
}

func (r *memoryReader) AverageDelay(ctx context.Context, trainNumber, stationName string, hourOfDay int) (float64, bool, error) {
	if stationName == "" || hourOfDay < 0 {
		sum, n := 0.0, 0
		for _, d := range r.s.delayPatterns {
			if d.TrainNumber == trainNumber {
				sum += d.AvgDelay
				n++
			}
		}
		if n == 0 {
			return 0, false, nil
		}
		return sum / float64(n), true, nil
	}

	for _, d := range r.s.delayPatterns {
		if d.TrainNumber == trainNumber && d.StationName == stationName && d.HourOfDay == hourOfDay {
			return d.AvgDelay, true, nil
		}
	}
	return 0, false, nil
}

func (w *memoryWriter) WriteStation(s *model.Station) error {
	copied := *s
	w.s.stations[s.ID] = &copied
	return nil
}

func (w *memoryWriter) WriteRoute(r *model.Route) error {
	copied := *r
	w.s.routes[r.ID] = &copied
	return nil
}

func (w *memoryWriter) WriteTrip(t *model.Trip) error {
	copied := *t
	w.s.trips[t.ID] = &copied
	return nil
}

func (w *memoryWriter) WritePlatform(p *model.Platform) error {
	copied := *p
	w.s.platforms = append(w.s.platforms, &copied)
	return nil
}

func (w *memoryWriter) WriteDelayPattern(d *DelayPattern) error {
	copied := *d
	w.s.delayPatterns = append(w.s.delayPatterns, &copied)
	return nil
}

func (w *memoryWriter) BeginStopTimes() error { return nil }

func (w *memoryWriter) WriteStopTime(st *model.StopTime) error {
	copied := *st
	w.s.stopTimes = append(w.s.stopTimes, &copied)
	return nil
}

func (w *memoryWriter) EndStopTimes() error { return nil }

func (w *memoryWriter) Close() error { return nil }
