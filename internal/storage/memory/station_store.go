// Package memory provides an in-memory station store for development/testing.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
)

type stationKey struct {
	name    string
	country string
}

// StationStore implements crawler.Store in memory. Every operation takes the
// single mutex for its whole duration.
type StationStore struct {
	mu           sync.Mutex
	ids          crawler.IDGenerator
	stations     map[stationKey]crawler.Station
	measurements map[string]map[int64]crawler.Measurement
	latest       map[string]crawler.Measurement
}

// NewStationStore constructs a StationStore that assigns IDs from ids.
func NewStationStore(ids crawler.IDGenerator) *StationStore {
	return &StationStore{
		ids:          ids,
		stations:     make(map[stationKey]crawler.Station),
		measurements: make(map[string]map[int64]crawler.Measurement),
		latest:       make(map[string]crawler.Measurement),
	}
}

// FindStation returns the station stored under (name, country).
func (s *StationStore) FindStation(_ context.Context, name, country string) (crawler.Station, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stations[stationKey{name: name, country: country}]
	return st, ok, nil
}

// InsertStationIfAbsent creates the station unless the key is already taken.
func (s *StationStore) InsertStationIfAbsent(_ context.Context, name, country string, lat, lon float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stationKey{name: name, country: country}
	if _, exists := s.stations[key]; exists {
		return nil
	}
	id, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("%w: assign station id: %w", crawler.ErrStore, err)
	}
	s.stations[key] = crawler.Station{
		ID:        id,
		Name:      name,
		Country:   country,
		Latitude:  lat,
		Longitude: lon,
	}
	return nil
}

// InsertMeasurement appends a measurement, rejecting a repeated timestamp.
func (s *StationStore) InsertMeasurement(
	_ context.Context,
	stationID string,
	ts time.Time,
	payload json.RawMessage,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTS, ok := s.measurements[stationID]
	if !ok {
		byTS = make(map[int64]crawler.Measurement)
		s.measurements[stationID] = byTS
	}
	key := ts.Unix()
	if _, dup := byTS[key]; dup {
		return fmt.Errorf("%w: station %s at %s", crawler.ErrDuplicateMeasurement, stationID, ts.UTC().Format(time.RFC3339))
	}
	m := crawler.Measurement{
		StationID: stationID,
		Timestamp: time.Unix(key, 0).UTC(),
		Payload:   append(json.RawMessage(nil), payload...),
	}
	byTS[key] = m
	if cur, ok := s.latest[stationID]; !ok || m.Timestamp.After(cur.Timestamp) {
		s.latest[stationID] = m
	}
	return nil
}

// LatestMeasurement returns the newest measurement for stationID.
func (s *StationStore) LatestMeasurement(_ context.Context, stationID string) (crawler.Measurement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.latest[stationID]
	return m, ok, nil
}

// ListStations returns a copy of all stations ordered by country, then name.
func (s *StationStore) ListStations(_ context.Context) ([]crawler.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]crawler.Station, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Country != out[j].Country {
			return out[i].Country < out[j].Country
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Measurements returns the stored measurements for stationID in timestamp order.
func (s *StationStore) Measurements(stationID string) []crawler.Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]crawler.Measurement, 0, len(s.measurements[stationID]))
	for _, m := range s.measurements[stationID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Close is a no-op.
func (s *StationStore) Close() error { return nil }
