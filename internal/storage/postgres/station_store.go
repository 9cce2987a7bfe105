// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	defaultStationTable     = "weather_stations"
	defaultMeasurementTable = "weather_measurements"
)

// StationStoreConfig controls the Postgres connection pool backing station rows.
type StationStoreConfig struct {
	DSN              string
	StationTable     string
	MeasurementTable string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// StationStore persists stations and measurements in Postgres.
type StationStore struct {
	pool         pool
	stations     string
	measurements string
}

var _ crawler.Store = (*StationStore)(nil)

// NewStationStore connects to Postgres using the provided config.
func NewStationStore(ctx context.Context, cfg StationStoreConfig) (*StationStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewStationStoreWithPool(p, cfg.StationTable, cfg.MeasurementTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewStationStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStationStoreWithPool(p pool, stationTable, measurementTable string) (*StationStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if stationTable == "" {
		stationTable = defaultStationTable
	}
	if measurementTable == "" {
		measurementTable = defaultMeasurementTable
	}
	for _, table := range []string{stationTable, measurementTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &StationStore{pool: p, stations: stationTable, measurements: measurementTable}, nil
}

// EnsureSchema creates the station and measurement tables when missing.
func (s *StationStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	country TEXT NOT NULL,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	UNIQUE (name, country)
)`, s.stations),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	station_id UUID NOT NULL REFERENCES %s (id),
	tstamp TIMESTAMPTZ NOT NULL,
	attr JSONB NOT NULL,
	PRIMARY KEY (station_id, tstamp)
)`, s.measurements, s.stations),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensure schema: %w", crawler.ErrStore, err)
		}
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *StationStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// FindStation looks up a station by its (name, country) key.
func (s *StationStore) FindStation(ctx context.Context, name, country string) (crawler.Station, bool, error) {
	query := fmt.Sprintf(`
SELECT id::text, name, country, latitude, longitude
FROM %s
WHERE name = $1 AND country = $2`, s.stations)

	var st crawler.Station
	err := s.pool.QueryRow(ctx, query, name, country).
		Scan(&st.ID, &st.Name, &st.Country, &st.Latitude, &st.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Station{}, false, nil
	}
	if err != nil {
		return crawler.Station{}, false, fmt.Errorf("%w: find station %s,%s: %w", crawler.ErrStore, name, country, err)
	}
	return st, true, nil
}

// InsertStationIfAbsent relies on the (name, country) unique constraint to stay idempotent.
func (s *StationStore) InsertStationIfAbsent(
	ctx context.Context,
	name, country string,
	lat, lon float64,
) error {
	query := fmt.Sprintf(`
INSERT INTO %s (name, country, latitude, longitude)
VALUES ($1, $2, $3, $4)
ON CONFLICT (name, country) DO NOTHING`, s.stations)

	if _, err := s.pool.Exec(ctx, query, name, country, lat, lon); err != nil {
		return fmt.Errorf("%w: insert station %s,%s: %w", crawler.ErrStore, name, country, err)
	}
	return nil
}

// InsertMeasurement writes one measurement row. A conflicting (station, timestamp)
// pair is reported as crawler.ErrDuplicateMeasurement.
func (s *StationStore) InsertMeasurement(
	ctx context.Context,
	stationID string,
	ts time.Time,
	payload json.RawMessage,
) error {
	query := fmt.Sprintf(`
INSERT INTO %s (station_id, tstamp, attr)
VALUES ($1, $2, $3)
ON CONFLICT (station_id, tstamp) DO NOTHING`, s.measurements)

	tag, err := s.pool.Exec(ctx, query, stationID, ts.UTC(), []byte(payload))
	if err != nil {
		return fmt.Errorf("%w: insert measurement: %w", crawler.ErrStore, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: station %s at %s", crawler.ErrDuplicateMeasurement, stationID, ts.UTC().Format(time.RFC3339))
	}
	return nil
}

// LatestMeasurement returns the newest measurement stored for the station.
func (s *StationStore) LatestMeasurement(ctx context.Context, stationID string) (crawler.Measurement, bool, error) {
	query := fmt.Sprintf(`
SELECT station_id::text, tstamp, attr
FROM %s
WHERE station_id = $1
ORDER BY tstamp DESC
LIMIT 1`, s.measurements)

	var (
		m       crawler.Measurement
		payload []byte
	)
	err := s.pool.QueryRow(ctx, query, stationID).Scan(&m.StationID, &m.Timestamp, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Measurement{}, false, nil
	}
	if err != nil {
		return crawler.Measurement{}, false, fmt.Errorf("%w: latest measurement: %w", crawler.ErrStore, err)
	}
	m.Timestamp = m.Timestamp.UTC()
	m.Payload = json.RawMessage(payload)
	return m, true, nil
}

// ListStations returns every known station ordered by country and name.
func (s *StationStore) ListStations(ctx context.Context) ([]crawler.Station, error) {
	query := fmt.Sprintf(`
SELECT id::text, name, country, latitude, longitude
FROM %s
ORDER BY country, name`, s.stations)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list stations: %w", crawler.ErrStore, err)
	}
	defer rows.Close()

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
