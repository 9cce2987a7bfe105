// Package sqlite provides a file-backed station store built on mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	// Registers the "sqlite3" database/sql driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
)

const driverName = "sqlite3"

const schema = `
CREATE TABLE IF NOT EXISTS weather_stations (
  id        TEXT PRIMARY KEY,
  name      TEXT NOT NULL,
  country   TEXT NOT NULL,
  latitude  REAL NOT NULL,
  longitude REAL NOT NULL,
  UNIQUE (name, country)
);

CREATE TABLE IF NOT EXISTS weather_measurements (
  station_id TEXT    NOT NULL,
  tstamp     INTEGER NOT NULL,
  attr       TEXT    NOT NULL,
  PRIMARY KEY (station_id, tstamp),
  FOREIGN KEY (station_id) REFERENCES weather_stations(id) ON DELETE CASCADE
);
`

// StationStore implements crawler.Store on a SQLite database. A single
// connection is used and every operation holds the store mutex.
type StationStore struct {
	mu  sync.Mutex
	db  *sql.DB
	ids crawler.IDGenerator
}

var _ crawler.Store = (*StationStore)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string, ids crawler.IDGenerator) (*StationStore, error) {
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite open: %w", crawler.ErrStore, err)
	}
	// :memory: databases are per-connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: sqlite ping: %w", crawler.ErrStore, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: apply schema: %w", crawler.ErrStore, err)
	}
	return &StationStore{db: db, ids: ids}, nil
}

func buildDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite path is required")
	}
	if path == ":memory:" {
		return path, nil
	}
	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

// Close closes the database handle.
func (s *StationStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// FindStation looks up a station by (name, country).
func (s *StationStore) FindStation(ctx context.Context, name, country string) (crawler.Station, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st crawler.Station
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, country, latitude, longitude
FROM weather_stations
WHERE name = ? AND country = ?`, name, country).
		Scan(&st.ID, &st.Name, &st.Country, &st.Latitude, &st.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.Station{}, false, nil
	}
	if err != nil {
		return crawler.Station{}, false, fmt.Errorf("%w: find station %s,%s: %w", crawler.ErrStore, name, country, err)
	}
	return st, true, nil
}

// InsertStationIfAbsent inserts the station unless (name, country) already exists.
func (s *StationStore) InsertStationIfAbsent(
	ctx context.Context,
	name, country string,
	lat, lon float64,
) error {
	id, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("%w: assign station id: %w", crawler.ErrStore, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO weather_stations (id, name, country, latitude, longitude)
VALUES (?, ?, ?, ?, ?)`, id, name, country, lat, lon)
	if err != nil {
		return fmt.Errorf("%w: insert station %s,%s: %w", crawler.ErrStore, name, country, err)
	}
	return nil
}

// InsertMeasurement stores a measurement keyed by its unix-second timestamp.
func (s *StationStore) InsertMeasurement(
	ctx context.Context,
	stationID string,
	ts time.Time,
	payload json.RawMessage,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO weather_measurements (station_id, tstamp, attr)
VALUES (?, ?, ?)`, stationID, ts.Unix(), string(payload))
	if err != nil {
		return fmt.Errorf("%w: insert measurement: %w", crawler.ErrStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: insert measurement: %w", crawler.ErrStore, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: station %s at %s", crawler.ErrDuplicateMeasurement, stationID, ts.UTC().Format(time.RFC3339))
	}
	return nil
}

// LatestMeasurement returns the newest measurement for the station.
func (s *StationStore) LatestMeasurement(ctx context.Context, stationID string) (crawler.Measurement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		unix    int64
		payload string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT tstamp, attr
FROM weather_measurements
WHERE station_id = ?
ORDER BY tstamp DESC
LIMIT 1`, stationID).Scan(&unix, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.Measurement{}, false, nil
	}
	if err != nil {
		return crawler.Measurement{}, false, fmt.Errorf("%w: latest measurement: %w", crawler.ErrStore, err)
	}
	return crawler.Measurement{
		StationID: stationID,
		Timestamp: time.Unix(unix, 0).UTC(),
		Payload:   json.RawMessage(payload),
	}, true, nil
}

// ListStations returns every station ordered by country then name.
func (s *StationStore) ListStations(ctx context.Context) ([]crawler.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, country, latitude, longitude
FROM weather_stations
ORDER BY country, name`)
	if err != nil {
		return nil, fmt.Errorf("%w: list stations: %w", crawler.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	var out []crawler.Station
	for rows.Next() {
		var st crawler.Station
		if err := rows.Scan(&st.ID, &st.Name, &st.Country, &st.Latitude, &st.Longitude); err != nil {
			return nil, fmt.Errorf("%w: scan station: %w", crawler.ErrStore, err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list stations: %w", crawler.ErrStore, err)
	}
	return out, nil
}
