package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"schiene.dev/railplan/model"
)

const defaultSegmentLimit = 10

// Stations are chunked into IN clauses of this size to stay clear of
// SQLite's bound-variable limit.
const sqliteChunkSize = 500

// Sequence for naming in-memory databases, one per store.
var memdbSeq int64

type SQLiteConfig struct {
	// Path of the database file. Blank means in-memory.
	Path string
}

type SQLiteStorage struct {
	SQLiteConfig

	db *sql.DB
}

type SQLiteReader struct {
	db *sql.DB
}

type SQLiteWriter struct {
	db                 *sql.DB
	stopTimeInsertStmt *sql.Stmt
	stopTimeInsertTx   *sql.Tx
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	path := ""
	if len(cfg) > 0 {
		path = cfg[0].Path
	}

	// Every connection in the pool must see the same database. A
	// plain ":memory:" source gives each new connection its own
	// empty database, so concurrent readers would find no tables.
	// The name must be unique per store, or every blank-path store
	// in the process would share one database.
	sourceName := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", atomic.AddInt64(&memdbSeq, 1))
	if path != "" {
		sourceName = path
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == "" {
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{Path: path},
		db:           db,
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStorage) createTables() error {
	for name, query := range map[string]string{
		"stations": `
CREATE TABLE IF NOT EXISTS stations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL,
    parent_id TEXT,
    wheelchair INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS stations_parent_id ON stations (parent_id);
CREATE INDEX IF NOT EXISTS stations_name ON stations (name);
`,
		"routes": `
CREATE TABLE IF NOT EXISTS routes (
    id TEXT PRIMARY KEY,
    short_name TEXT,
    type INTEGER NOT NULL
);`,
		"trips": `
CREATE TABLE IF NOT EXISTS trips (
    id TEXT PRIMARY KEY,
    route_id TEXT NOT NULL,
    headsign TEXT,
    short_name TEXT
);
CREATE INDEX IF NOT EXISTS trips_route_id ON trips (route_id);
`,
		"stop_times": `
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
`,
		"platforms": `
CREATE TABLE IF NOT EXISTS platforms (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    height INTEGER,
    length INTEGER,
    parent_station_id TEXT
);
CREATE INDEX IF NOT EXISTS platforms_parent ON platforms (parent_station_id);
`,
		"delay_patterns": `
CREATE TABLE IF NOT EXISTS delay_patterns (
    train_number TEXT NOT NULL,
    station_name TEXT NOT NULL,
    hour_of_day INTEGER NOT NULL,
    avg_delay REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS delay_patterns_train ON delay_patterns (train_number);
`,
	} {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("creating %s table: %w", name, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) Reader() (TimetableReader, error) {
	if s.Path != "" {
		if _, err := os.Stat(s.Path); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no database at %s", ErrUnavailable, s.Path)
		}
	}
	return &SQLiteReader{db: s.db}, nil
}

func (s *SQLiteStorage) Writer() (TimetableWriter, error) {
	return &SQLiteWriter{db: s.db}, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAny(ids []string) []interface{} {
	vals := make([]interface{}, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	return vals
}

func scanStations(rows *sql.Rows) ([]*model.Station, error) {
	stations := []*model.Station{}
	for rows.Next() {
		st := &model.Station{}
		var parent sql.NullString
		err := rows.Scan(&st.ID, &st.Name, &st.Lat, &st.Lon, &parent, &st.Wheelchair)
		if err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}
		st.ParentID = parent.String
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

func (r *SQLiteReader) FindStationsByName(ctx context.Context, fragment string) ([]*model.Station, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, lat, lon, parent_id, wheelchair
FROM stations
WHERE LOWER(name) LIKE LOWER(?)
ORDER BY LENGTH(name), id`,
		"%"+fragment+"%")
	if err != nil {
		return nil, fmt.Errorf("%w: querying stations by name: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	return scanStations(rows)
}

func (r *SQLiteReader) SiblingStations(ctx context.Context, stationID string) ([]*model.Station, error) {
	var parent sql.NullString
	err := r.db.QueryRowContext(ctx, `
SELECT parent_id FROM stations WHERE id = ?`, stationID).Scan(&parent)
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
WHERE id = ? OR parent_id = ? OR id = ?
ORDER BY id`,
		parentID, parentID, stationID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying sibling stations: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	return scanStations(rows)
}

func (r *SQLiteReader) StationsMatching(ctx context.Context, markers []string) ([]*model.Station, error) {
	if len(markers) == 0 {
		return []*model.Station{}, nil
	}

	conditions := []string{}
	params := []interface{}{}
	for _, m := range markers {
		conditions = append(conditions, "name LIKE ?")
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

func (r *SQLiteReader) TripsVia(ctx context.Context, stationIDs []string) ([]string, error) {
	seen := map[string]bool{}
	tripIDs := []string{}

	for start := 0; start < len(stationIDs); start += sqliteChunkSize {
		end := start + sqliteChunkSize
		if end > len(stationIDs) {
			end = len(stationIDs)
		}
		chunk := stationIDs[start:end]

		rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT trip_id
FROM stop_times
WHERE station_id IN (`+placeholders(len(chunk))+`)`,
			toAny(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("%w: querying trips via stations: %v", ErrUnavailable, err)
		}

		for rows.Next() {
			var tripID string
			if err := rows.Scan(&tripID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning trip id: %w", err)
			}
			if !seen[tripID] {
				seen[tripID] = true
				tripIDs = append(tripIDs, tripID)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning trips via stations: %w", err)
		}
		rows.Close()
	}

	return tripIDs, nil
}

func (r *SQLiteReader) StopTimesForTrips(ctx context.Context, tripIDs []string) ([]*model.StopTime, error) {
	stopTimes := []*model.StopTime{}

	for start := 0; start < len(tripIDs); start += sqliteChunkSize {
		end := start + sqliteChunkSize
		if end > len(tripIDs) {
			end = len(tripIDs)
		}
		chunk := tripIDs[start:end]

		rows, err := r.db.QueryContext(ctx, `
SELECT trip_id, station_id, sequence, arrival, departure
FROM stop_times
WHERE trip_id IN (`+placeholders(len(chunk))+`)
ORDER BY trip_id, sequence`,
			toAny(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("%w: querying stop times: %v", ErrUnavailable, err)
		}

		for rows.Next() {
			st := &model.StopTime{}
			err := rows.Scan(&st.TripID, &st.StationID, &st.Sequence, &st.Arrival, &st.Departure)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning stop time: %w", err)
			}
			stopTimes = append(stopTimes, st)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning stop times: %w", err)
		}
		rows.Close()
	}

	return stopTimes, nil
}

func (r *SQLiteReader) Segments(ctx context.Context, filter SegmentFilter) ([]*Segment, error) {
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
WHERE st1.station_id IN (` + placeholders(len(filter.OriginIDs)) + `)
  AND st2.station_id IN (` + placeholders(len(filter.DestinationIDs)) + `)
  AND st1.sequence < st2.sequence`

	params := append(toAny(filter.OriginIDs), toAny(filter.DestinationIDs)...)

	if filter.MinDeparture != "" {
		query += " AND st1.departure >= ?"
		params = append(params, filter.MinDeparture)
	}

	query += " ORDER BY st1.departure LIMIT ?"
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

func (r *SQLiteReader) StopsBetween(ctx context.Context, tripID string, fromSeq, toSeq uint32) ([]*PathEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT s.id, s.name, s.lat, s.lon, s.parent_id, s.wheelchair, st.arrival, st.departure
FROM stop_times st
INNER JOIN stations s ON st.station_id = s.id
WHERE st.trip_id = ? AND st.sequence > ? AND st.sequence < ?
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

func (r *SQLiteReader) AverageDelay(ctx context.Context, trainNumber, stationName string, hourOfDay int) (float64, bool, error) {
	var row *sql.Row
	if stationName == "" || hourOfDay < 0 {
		row = r.db.QueryRowContext(ctx, `
SELECT AVG(avg_delay) FROM delay_patterns WHERE train_number = ?`, trainNumber)
	} else {
		row = r.db.QueryRowContext(ctx, `
SELECT avg_delay FROM delay_patterns
WHERE train_number = ? AND station_name = ? AND hour_of_day = ?`,
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

func (w *SQLiteWriter) WriteStation(s *model.Station) error {
	_, err := w.db.Exec(`
INSERT INTO stations (id, name, lat, lon, parent_id, wheelchair)
VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Lat, s.Lon, s.ParentID, s.Wheelchair)
	if err != nil {
		return fmt.Errorf("inserting station: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) WriteRoute(r *model.Route) error {
	_, err := w.db.Exec(`
INSERT INTO routes (id, short_name, type)
VALUES (?, ?, ?)`,
		r.ID, r.ShortName, r.Type)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) WriteTrip(t *model.Trip) error {
	_, err := w.db.Exec(`
INSERT INTO trips (id, route_id, headsign, short_name)
VALUES (?, ?, ?, ?)`,
		t.ID, t.RouteID, t.Headsign, t.ShortName)
	if err != nil {
		return fmt.Errorf("inserting trip: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) WritePlatform(p *model.Platform) error {
	_, err := w.db.Exec(`
INSERT INTO platforms (id, name, height, length, parent_station_id)
VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Height, p.Length, p.ParentStationID)
	if err != nil {
		return fmt.Errorf("inserting platform: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) WriteDelayPattern(d *DelayPattern) error {
	_, err := w.db.Exec(`
INSERT INTO delay_patterns (train_number, station_name, hour_of_day, avg_delay)
VALUES (?, ?, ?, ?)`,
		d.TrainNumber, d.StationName, d.HourOfDay, d.AvgDelay)
	if err != nil {
		return fmt.Errorf("inserting delay pattern: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) BeginStopTimes() error {
	// stop_times is by far the largest table, so inserts go
	// through a prepared statement in a single transaction.
	var err error
	w.stopTimeInsertTx, err = w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning stop_time insert transaction: %w", err)
	}

	w.stopTimeInsertStmt, err = w.stopTimeInsertTx.Prepare(`
INSERT INTO stop_times (trip_id, station_id, sequence, arrival, departure)
VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		w.stopTimeInsertTx.Rollback()
		w.stopTimeInsertTx = nil
		return fmt.Errorf("preparing stop_time insert: %w", err)
	}

	return nil
}

func (w *SQLiteWriter) WriteStopTime(st *model.StopTime) error {
	_, err := w.stopTimeInsertStmt.Exec(
		st.TripID, st.StationID, st.Sequence, st.Arrival, st.Departure)
	if err != nil {
		w.stopTimeInsertStmt.Close()
		w.stopTimeInsertTx.Rollback()
		w.stopTimeInsertTx = nil
		w.stopTimeInsertStmt = nil
		return fmt.Errorf("inserting stop_time: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) EndStopTimes() error {
	w.stopTimeInsertStmt.Close()
	err := w.stopTimeInsertTx.Commit()
	if err != nil {
		return fmt.Errorf("committing stop_time insert transaction: %w", err)
	}
	w.stopTimeInsertTx = nil
	w.stopTimeInsertStmt = nil
	return nil
}

func (w *SQLiteWriter) Close() error {
	_, err := w.db.Exec(`ANALYZE;`)
	if err != nil {
		return fmt.Errorf("analyzing database: %w", err)
	}
	return nil
}
