package storage

import (
	"context"
	"errors"

	"schiene.dev/railplan/model"
)

// ErrUnavailable indicates the timetable store itself could not be
// queried. Callers must treat it differently from an empty result:
// empty means "no such data", ErrUnavailable means "try again later".
var ErrUnavailable = errors.New("timetable store unavailable")

type Storage interface {
	// Read-only access to the timetable. The planning engine only
	// ever uses this side.
	Reader() (TimetableReader, error)

	// Write access for the ingest path. The timetable is written
	// once and read many times.
	Writer() (TimetableWriter, error)
}

// TimetableReader serves the planning engine's queries. All methods
// must support concurrent use.
type TimetableReader interface {
	// All stations whose name contains the given fragment,
	// case-insensitively. An empty result is not an error.
	FindStationsByName(ctx context.Context, fragment string) ([]*model.Station, error)

	// The sibling set for a station: the station itself, its
	// parent (if any), and all stations sharing that parent.
	SiblingStations(ctx context.Context, stationID string) ([]*model.Station, error)

	// All stations whose name contains at least one of the given
	// markers ("Hbf", "Hauptbahnhof", ...).
	StationsMatching(ctx context.Context, markers []string) ([]*model.Station, error)

	// Distinct IDs of trips that stop at any of the given stations.
	TripsVia(ctx context.Context, stationIDs []string) ([]string, error)

	// Stop times for the given trips, ordered by (trip_id, sequence).
	StopTimesForTrips(ctx context.Context, tripIDs []string) ([]*model.StopTime, error)

	// Scheduled rides matching the filter, ordered by departure
	// time, at most filter.Limit rows.
	Segments(ctx context.Context, filter SegmentFilter) ([]*Segment, error)

	// Stops of a trip with sequence strictly between fromSeq and
	// toSeq, ordered by sequence, with station data attached.
	StopsBetween(ctx context.Context, tripID string, fromSeq, toSeq uint32) ([]*PathEntry, error)

	// Historical average delay for a train number, optionally
	// narrowed to a station and hour of day (pass "" and -1 to
	// aggregate over all). The bool is false when no data exists,
	// which is a normal outcome.
	AverageDelay(ctx context.Context, trainNumber, stationName string, hourOfDay int) (float64, bool, error)
}

type TimetableWriter interface {
	WriteStation(s *model.Station) error
	WriteRoute(r *model.Route) error
	WriteTrip(t *model.Trip) error
	WritePlatform(p *model.Platform) error
	WriteDelayPattern(d *DelayPattern) error
	BeginStopTimes() error
	WriteStopTime(st *model.StopTime) error
	EndStopTimes() error
	Close() error
}

// Filter for Segments().
type SegmentFilter struct {
	// Candidate boarding and alighting stations (sibling sets).
	OriginIDs      []string
	DestinationIDs []string

	// Only include segments departing at or after this HH:MM:SS
	// clock time. Blank means no lower bound.
	MinDeparture string

	// Maximum number of rows returned. Zero means the
	// implementation default.
	Limit int
}

// One scheduled ride between two stops of the same trip, with trip,
// route and platform data joined in. OriginSeq < DestinationSeq always
// holds.
type Segment struct {
	TripID         string
	TrainNumber    string
	RouteShortName string
	RouteType      model.RouteType
	Headsign       string
	Origin         *model.Station
	Destination    *model.Station
	Departure      string
	Arrival        string
	OriginSeq      uint32
	DestinationSeq uint32
	// Platform name from enrichment data, blank when absent.
	OriginPlatform string
}

// One intermediate stop of a trip, as returned by StopsBetween.
type PathEntry struct {
	Station   *model.Station
	Arrival   string
	Departure string
}

// A historical delay aggregate for a train at a station and hour.
type DelayPattern struct {
	TrainNumber string
	StationName string
	HourOfDay   int
	AvgDelay    float64
}
