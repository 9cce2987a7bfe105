package crawler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StatusOK is the provider status code for a successful lookup.
const StatusOK = http.StatusOK

// StatusUnauthorized is returned by the provider when the API key is rejected.
const StatusUnauthorized = http.StatusUnauthorized

// Station is a named geographic point being monitored. Rows are created once
// during bootstrap and never mutated afterwards.
type Station struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String renders the station as "name,country" for logs.
func (s Station) String() string {
	return fmt.Sprintf("%s,%s", s.Name, s.Country)
}

// Measurement is a single provider observation for a station. At most one
// measurement exists per (StationID, Timestamp).
type Measurement struct {
	StationID string          `json:"station_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// StationRef is a configured (city, country) pair awaiting bootstrap.
type StationRef struct {
	City    string `json:"city" mapstructure:"city"`
	Country string `json:"country" mapstructure:"country"`
}

// String renders the reference as "city,country".
func (r StationRef) String() string {
	return fmt.Sprintf("%s,%s", r.City, r.Country)
}

// GeoResolution is the transient result of a geocoding lookup.
type GeoResolution struct {
	StatusCode int
	Name       string
	Latitude   float64
	Longitude  float64
}

// WeatherReport is the result of a current-weather lookup. StationName,
// Timestamp and Payload are only meaningful when StatusCode is StatusOK.
type WeatherReport struct {
	StatusCode  int
	StationName string
	Timestamp   time.Time
	Payload     json.RawMessage
}

// MeasurementEvent is published for every newly persisted measurement.
type MeasurementEvent struct {
	StationID string          `json:"station_id"`
	Station   string          `json:"station"`
	Country   string          `json:"country"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}
