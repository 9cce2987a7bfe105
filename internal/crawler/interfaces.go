package crawler

import (
	"context"
	"encoding/json"
	"time"
)

// Store persists stations and measurements. Implementations must be safe for
// concurrent use by the supervisor and every worker.
type Store interface {
	// FindStation looks up a station by exact (name, country). ok is false when absent.
	FindStation(ctx context.Context, name, country string) (station Station, ok bool, err error)
	// InsertStationIfAbsent creates the station unless one with the same key exists.
	InsertStationIfAbsent(ctx context.Context, name, country string, lat, lon float64) error
	// InsertMeasurement appends a measurement. A repeated (stationID, ts) yields ErrDuplicateMeasurement.
	InsertMeasurement(ctx context.Context, stationID string, ts time.Time, payload json.RawMessage) error
	// LatestMeasurement returns the measurement with the greatest timestamp. ok is false when none exist.
	LatestMeasurement(ctx context.Context, stationID string) (m Measurement, ok bool, err error)
	// ListStations returns every persisted station ordered by country, then name.
	ListStations(ctx context.Context) ([]Station, error)
	Close() error
}

// WeatherClient talks to the weather provider.
type WeatherClient interface {
	Geocode(ctx context.Context, city, country string) (GeoResolution, error)
	CurrentWeather(ctx context.Context, lat, lon float64) (WeatherReport, error)
}

// MetricsSink records latency and liveness observations. Calls never fail.
type MetricsSink interface {
	ObserveLatency(histogram string, d time.Duration)
	SetGauge(gauge, label string, value float64)
}

// MetricsEndpoint exposes the sink over HTTP. Start is idempotent.
type MetricsEndpoint interface {
	Start(ctx context.Context) error
}

// Publisher pushes measurement events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time and suspends the caller (useful for testing).
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces station IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Metric names shared by the worker and the Prometheus sink.
const (
	MetricAPILatency    = "api_response_time_last"
	MetricCycleDuration = "owmc_proc_duration"
	GaugeLastCall       = "api_last_call"
	GaugeNewData        = "owmc_new_data_from_api_tstamp"
)
