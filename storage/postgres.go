package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"schiene.dev/railplan/model"
)

const psqlStopTimeBatchSize = 5000

type PSQLStorage struct {
	db *sql.DB
}

type PSQLReader struct {
	db *sql.DB
}

type PSQLWriter struct {
	db          *sql.DB
	stopTimeBuf []model.StopTime
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, all timetable tables are dropped and recreated
// on startup. You probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: pinging db: %v", ErrUnavailable, err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS stations;
DROP TABLE IF EXISTS routes;
DROP TABLE IF EXISTS trips;
DROP TABLE IF EXISTS stop_times;
DROP TABLE IF EXISTS platforms;
DROP TABLE IF EXISTS delay_patterns;
`)
		if err != nil {
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS stations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    parent_id TEXT,
    wheelchair SMALLINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS stations_parent_id ON stations (parent_id);
CREATE INDEX IF NOT EXISTS stations_name ON stations (name);

CREATE TABLE IF NOT EXISTS routes (
    id TEXT PRIMARY KEY,
    short_name TEXT,
    type INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trips (
    id TEXT PRIMARY KEY,
    route_id TEXT NOT NULL,
    headsign TEXT,
    short_name TEXT
);
CREATE INDEX IF NOT EXISTS trips_route_id ON trips (route_id);

CREATE TABLE IF NOT EXISTS stop_times (
    trip_id TEXT NOT NULL,
    station_id TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    arrival TEXT NOT NULL,
    departure TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS stop_times_trip_id ON stop_times (trip_id, sequence);
CREATE INDEX IF NOT EXISTS stop_times_station_id ON stop_times (station_id);
CREATE INDEX IF NOT EXISTS stop_times_departure ON stop_times (departure);

CREATE TABLE IF NOT EXISTS platforms (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    height INTEGER,
    length INTEGER,
    parent_station_id TEXT
);
CREATE INDEX IF NOT EXISTS platforms_parent ON platforms (parent_station_id);

CREATE TABLE IF NOT EXISTS delay_patterns (
    train_number TEXT NOT NULL,
    station_name TEXT NOT NULL,
    hour_of_day INTEGER NOT NULL,
    avg_delay DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS delay_patterns_train ON delay_patterns (train_number);
`)
	if err != nil {
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{db: db}, nil
}

func (s *PSQLStorage) Reader() (TimetableReader, error) {
	return &PSQLReader{db: s.db}, nil
}

func (s *PSQLStorage) Writer() (TimetableWriter, error) {
	return &PSQLWriter{db: s.db}, nil
}

// Builds "$start, $start+1, ..." for n parameters.
func psqlPlaceholders(start, n int) string {
	ph := make([]string, n)
	for i := 0; i < n; i++ {
		ph[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(ph, ", ")
}

func (r *PSQLReader) FindStationsByName(ctx context.Context, fragment string) ([]*model.Station, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, lat, lon, parent_id, wheelchair
FROM stations
WHERE name ILIKE $1
ORDER BY LENGTH(name), id`,
		"%"+fragment+"%")
	if err != nil {
		return nil, fmt.Errorf("%w: querying stations by name: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	return scanStations(rows)
}

func (r *PSQLReader) SiblingStations(ctx context.Context, stationID string) ([]*model.Station, error) {
	var parent sql.NullString
	err := r.db.QueryRowContext(ctx, `
SELECT parent_id FROM stations WHERE id = $1`, stationID).Scan(&parent)
	if err == sql.ErrNoRows {
		return []*model.Station{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying station parent: %v", ErrUnavailable, err)
	}

	parentID := parent.String
	if parentID == "" {
		parentID = stationID
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, lat, lon, parent_id, wheelchair
FROM stations
WHERE id = $1 OR parent_id = $1 OR id = $2
ORDER BY id`,
		parentID, stationID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying sibling stations: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	return scanStations(rows)
}

func (r *PSQLReader) StationsMatching(ctx context.Context, markers []string) ([]*model.Station, error) {
	if len(markers) == 0 {
		return []*model.Station{}, nil
	}

	conditions := []string{}
	params := []interface{}{}
	for i, m := range markers {
		conditions = append(conditions, fmt.Sprintf("name LIKE $%d", i+1))
		params = append(params, "%"+m+"%")
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, lat, lon, parent_id, wheelchair
FROM stations
WHERE `+strings.Join(conditions, " OR "), params...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying stations by marker: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	return scanStations(rows)
}

func (r *PSQLReader) TripsVia(ctx context.Context, stationIDs []string) ([]string, error) {
	if len(stationIDs) == 0 {
		return []string{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT trip_id
FROM stop_times
WHERE station_id = ANY($1)`,
		pq.Array(stationIDs))
	if err != nil {
		return nil, fmt.Errorf("%w: querying trips via stations: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	tripIDs := []string{}
	for rows.Next() {
		var tripID string
		if err := rows.Scan(&tripID); err != nil {
			return nil, fmt.Errorf("scanning trip id: %w", err)
		}
		tripIDs = append(tripIDs, tripID)
	}

	return tripIDs, rows.Err()
}

func (r *PSQLReader) StopTimesForTrips(ctx context.Context, tripIDs []string) ([]*model.StopTime, error) {
	if len(tripIDs) == 0 {
		return []*model.StopTime{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT trip_id, station_id, sequence, arrival, departure
FROM stop_times
WHERE trip_id = ANY($1)
ORDER BY trip_id, sequence`,
		pq.Array(tripIDs))
	if err != nil {
		return nil, fmt.Errorf("%w: querying stop times: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	stopTimes := []*model.StopTime{}
	for rows.Next() {
		st := &model.StopTime{}
		err := rows.Scan(&st.TripID, &st.StationID, &st.Sequence, &st.Arrival, &st.Departure)
		if err != nil {
			return nil, fmt.Errorf("scanning stop time: %w", err)
		}
		stopTimes = append(stopTimes, st)
	}

	return stopTimes, rows.Err()
}

func (r *PSQLReader) Segments(ctx context.Context, filter SegmentFilter) ([]*Segment, error) {
	if len(filter.OriginIDs) == 0 || len(filter.DestinationIDs) == 0 {
		return []*Segment{}, nil
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSegmentLimit
	}

	query := `
SELECT
    t.id,
    t.short_name,
    t.headsign,
    r.short_name,
    r.type,
    s1.id, s1.name, s1.lat, s1.lon, s1.parent_id, s1.wheelchair,
    s2.id, s2.name, s2.lat, s2.lon, s2.parent_id, s2.wheelchair,
    st1.departure,
    st2.arrival,
    st1.sequence,
    st2.sequence,
    p.name
FROM trips t
INNER JOIN routes r ON t.route_id = r.id
INNER JOIN stop_times st1 ON st1.trip_id = t.id
INNER JOIN stop_times st2 ON st2.trip_id = t.id
INNER JOIN stations s1 ON st1.station_id = s1.id
INNER JOIN stations s2 ON st2.station_id = s2.id
LEFT JOIN platforms p ON p.parent_station_id = st1.station_id
WHERE st1.station_id = ANY($1)
  AND st2.station_id = ANY($2)
  AND st1.sequence < st2.sequence`

	params := []interface{}{pq.Array(filter.OriginIDs), pq.Array(filter.DestinationIDs)}

	if filter.MinDeparture != "" {
		query += fmt.Sprintf(" AND st1.departure >= $%d", len(params)+1)
		params = append(params, filter.MinDeparture)
	}

	query += fmt.Sprintf(" ORDER BY st1.departure LIMIT $%d", len(params)+1)
	params = append(params, limit)

	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying segments: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	segments := []*Segment{}
	for rows.Next() {
		seg := &Segment{
			Origin:      &model.Station{},
			Destination: &model.Station{},
		}
		var tripShortName, headsign, routeShortName sql.NullString
		var originParent, destParent, platform sql.NullString
		err := rows.Scan(
			&seg.TripID,
			&tripShortName,
			&headsign,
			&routeShortName,
			&seg.RouteType,
			&seg.Origin.ID, &seg.Origin.Name, &seg.Origin.Lat, &seg.Origin.Lon, &originParent, &seg.Origin.Wheelchair,
			&seg.Destination.ID, &seg.Destination.Name, &seg.Destination.Lat, &seg.Destination.Lon, &destParent, &seg.Destination.Wheelchair,
			&seg.Departure,
			&seg.Arrival,
			&seg.OriginSeq,
			&seg.DestinationSeq,
			&platform,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning segment: %w", err)
		}
		seg.TrainNumber = tripShortName.String
		seg.Headsign = headsign.String
		seg.RouteShortName = routeShortName.String
		seg.Origin.ParentID = originParent.String
		seg.Destination.ParentID = destParent.String
		seg.OriginPlatform = platform.String
		segments = append(segments, seg)
	}

	return segments, rows.Err()
}

func (r *PSQLReader) StopsBetween(ctx context.Context, tripID string, fromSeq, toSeq uint32) ([]*PathEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT s.id, s.name, s.lat, s.lon, s.parent_id, s.wheelchair, st.arrival, st.departure
FROM stop_times st
INNER JOIN stations s ON st.station_id = s.id
WHERE st.trip_id = $1 AND st.sequence > $2 AND st.sequence < $3
ORDER BY st.sequence`,
		tripID, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("%w: querying stops between: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	entries := []*PathEntry{}
	for rows.Next() {
		entry := &PathEntry{Station: &model.Station{}}
		var parent sql.NullString
		err := rows.Scan(
			&entry.Station.ID,
			&entry.Station.Name,
			&entry.Station.Lat,
			&entry.Station.Lon,
			&parent,
			&entry.Station.Wheelchair,
			&entry.Arrival,
			&entry.Departure,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning path entry: %w", err)
		}
		entry.Station.ParentID = parent.String
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (r *PSQLReader) AverageDelay(ctx context.Context, trainNumber, stationName string, hourOfDay int) (float64, bool, error) {
	var row *sql.Row
	if stationName == "" || hourOfDay < 0 {
		row = r.db.QueryRowContext(ctx, `
SELECT AVG(avg_delay) FROM delay_patterns WHERE train_number = $1`, trainNumber)
	} else {
		row = r.db.QueryRowContext(ctx, `
SELECT avg_delay FROM delay_patterns
WHERE train_number = $1 AND station_name = $2 AND hour_of_day = $3`,
			trainNumber, stationName, hourOfDay)
	}

	var avg sql.NullFloat64
	err := row.Scan(&avg)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: querying delay patterns: %v", ErrUnavailable, err)
	}
	if !avg.Valid {
		return 0, false, nil
	}

	return avg.Float64, true, nil
}

func (w *PSQLWriter) WriteStation(s *model.Station) error {
	_, err := w.db.Exec(`
INSERT INTO stations (id, name, lat, lon, parent_id, wheelchair)
VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Name, s.Lat, s.Lon, s.ParentID, s.Wheelchair)
	if err != nil {
		return fmt.Errorf("inserting station: %w", err)
	}
	return nil
}

func (w *PSQLWriter) WriteRoute(r *model.Route) error {
	_, err := w.db.Exec(`
INSERT INTO routes (id, short_name, type)
VALUES ($1, $2, $3)`,
		r.ID, r.ShortName, r.Type)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

func (w *PSQLWriter) WriteTrip(t *model.Trip) error {
	_, err := w.db.Exec(`
INSERT INTO trips (id, route_id, headsign, short_name)
VALUES ($1, $2, $3, $4)`,
		t.ID, t.RouteID, t.Headsign, t.ShortName)
	if err != nil {
		return fmt.Errorf("inserting trip: %w", err)
	}
	return nil
}

func (w *PSQLWriter) WritePlatform(p *model.Platform) error {
	_, err := w.db.Exec(`
INSERT INTO platforms (id, name, height, length, parent_station_id)
VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.Height, p.Length, p.ParentStationID)
	if err != nil {
		return fmt.Errorf("inserting platform: %w", err)
	}
	return nil
}

func (w *PSQLWriter) WriteDelayPattern(d *DelayPattern) error {
	_, err := w.db.Exec(`
INSERT INTO delay_patterns (train_number, station_name, hour_of_day, avg_delay)
VALUES ($1, $2, $3, $4)`,
		d.TrainNumber, d.StationName, d.HourOfDay, d.AvgDelay)
	if err != nil {
		return fmt.Errorf("inserting delay pattern: %w", err)
	}
	return nil
}

func (w *PSQLWriter) BeginStopTimes() error {
	w.stopTimeBuf = w.stopTimeBuf[:0]
	return nil
}

func (w *PSQLWriter) WriteStopTime(st *model.StopTime) error {
	w.stopTimeBuf = append(w.stopTimeBuf, *st)
	if len(w.stopTimeBuf) >= psqlStopTimeBatchSize {
		return w.flushStopTimes()
	}
	return nil
}

func (w *PSQLWriter) EndStopTimes() error {
	return w.flushStopTimes()
}

func (w *PSQLWriter) flushStopTimes() error {
	if len(w.stopTimeBuf) == 0 {
		return nil
	}

	params := []interface{}{}
	values := []string{}
	for i, st := range w.stopTimeBuf {
		values = append(values, "("+psqlPlaceholders(i*5+1, 5)+")")
		params = append(params, st.TripID, st.StationID, st.Sequence, st.Arrival, st.Departure)
	}

	_, err := w.db.Exec(`
INSERT INTO stop_times (trip_id, station_id, sequence, arrival, departure)
VALUES `+strings.Join(values, ", "), params...)
	if err != nil {
		return fmt.Errorf("inserting stop_times: %w", err)
	}

	w.stopTimeBuf = w.stopTimeBuf[:0]
	return nil
}

func (w *PSQLWriter) Close() error {
	return w.flushStopTimes()
}
