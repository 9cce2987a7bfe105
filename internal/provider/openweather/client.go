// Package openweather implements crawler.WeatherClient against the OpenWeatherMap HTTP API.
package openweather

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
)

const (
	defaultBaseURL     = "https://api.openweathermap.org"
	defaultGeoPath     = "/geo/1.0/direct"
	defaultWeatherPath = "/data/2.5/weather"
	defaultUnits       = "metric"

	maxBodyBytes = 1 << 20
)

// Config describes how to reach the provider.
type Config struct {
	APIKey      string
	BaseURL     string
	GeoPath     string
	WeatherPath string
	Units       string
	// Timeout bounds each request. Zero leaves requests unbounded.
	Timeout time.Duration
}

// Client issues geocoding and current-weather requests.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ crawler.WeatherClient = (*Client)(nil)

// New builds a Client. A nil httpClient gets a fresh client honouring cfg.Timeout.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider.api_key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.GeoPath == "" {
		cfg.GeoPath = defaultGeoPath
	}
	if cfg.WeatherPath == "" {
		cfg.WeatherPath = defaultWeatherPath
	}
	if cfg.Units == "" {
		cfg.Units = defaultUnits
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

// Geocode resolves "city,country" to the provider's canonical name and coordinates.
func (c *Client) Geocode(ctx context.Context, city, country string) (crawler.GeoResolution, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("%s,%s", city, country))
	q.Set("limit", "1")
	q.Set("appid", c.cfg.APIKey)

	body, err := c.get(ctx, c.cfg.GeoPath, q)
	if err != nil {
		return crawler.GeoResolution{}, err
	}

	switch firstByte(body) {
	case '[':
		var items []struct {
			Name *string  `json:"name"`
			Lat  *float64 `json:"lat"`
			Lon  *float64 `json:"lon"`
		}
		if err := json.Unmarshal(body, &items); err != nil {
			return crawler.GeoResolution{}, fmt.Errorf("%w: geocode %s,%s: %w", crawler.ErrMalformedResponse, city, country, err)
		}
		if len(items) == 0 {
			return crawler.GeoResolution{}, fmt.Errorf("%w: geocode %s,%s: no results", crawler.ErrMalformedResponse, city, country)
		}
		item := items[0]
		if item.Name == nil || item.Lat == nil || item.Lon == nil {
			return crawler.GeoResolution{}, fmt.Errorf("%w: geocode %s,%s: incomplete result", crawler.ErrMalformedResponse, city, country)
		}
		return crawler.GeoResolution{
			StatusCode: crawler.StatusOK,
			Name:       *item.Name,
			Latitude:   *item.Lat,
			Longitude:  *item.Lon,
		}, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return crawler.GeoResolution{}, fmt.Errorf("%w: geocode %s,%s: %w", crawler.ErrMalformedResponse, city, country, err)
		}
		raw, ok := obj["cod"]
		if !ok {
			return crawler.GeoResolution{}, fmt.Errorf("%w: geocode %s,%s: object without cod", crawler.ErrMalformedResponse, city, country)
		}
		code, err := parseCod(raw)
		if err != nil {
			return crawler.GeoResolution{}, fmt.Errorf("%w: geocode %s,%s: %w", crawler.ErrMalformedResponse, city, country, err)
		}
		return crawler.GeoResolution{StatusCode: code}, nil
	default:
		return crawler.GeoResolution{}, fmt.Errorf("%w: geocode %s,%s: unexpected body", crawler.ErrMalformedResponse, city, country)
	}
}

// CurrentWeather fetches the current observation at the given coordinates.
// The raw response body becomes the measurement payload.
func (c *Client) CurrentWeather(ctx context.Context, lat, lon float64) (crawler.WeatherReport, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("appid", c.cfg.APIKey)
	q.Set("units", c.cfg.Units)

	body, err := c.get(ctx, c.cfg.WeatherPath, q)
	if err != nil {
		return crawler.WeatherReport{}, err
	}
	if firstByte(body) != '{' {
		return crawler.WeatherReport{}, fmt.Errorf("%w: weather: expected object", crawler.ErrMalformedResponse)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return crawler.WeatherReport{}, fmt.Errorf("%w: weather: %w", crawler.ErrMalformedResponse, err)
	}
	if raw, ok := obj["cod"]; ok {
		code, err := parseCod(raw)
		if err != nil {
			return crawler.WeatherReport{}, fmt.Errorf("%w: weather: %w", crawler.ErrMalformedResponse, err)
		}
		if code != crawler.StatusOK {
			return crawler.WeatherReport{StatusCode: code}, nil
		}
	}

	var fields struct {
		Name *string `json:"name"`
		Dt   *int64  `json:"dt"`
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		return crawler.WeatherReport{}, fmt.Errorf("%w: weather: %w", crawler.ErrMalformedResponse, err)
	}
	if fields.Name == nil || fields.Dt == nil {
		return crawler.WeatherReport{}, fmt.Errorf("%w: weather: missing name or dt", crawler.ErrMalformedResponse)
	}

	return crawler.WeatherReport{
		StatusCode:  crawler.StatusOK,
		StationName: *fields.Name,
		Timestamp:   time.Unix(*fields.Dt, 0).UTC(),
		Payload:     json.RawMessage(body),
	}, nil
}

// get returns the response body regardless of HTTP status; the provider
// reports errors through the "cod" field.
func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s%s?%s", c.cfg.BaseURL, path, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", crawler.ErrTransport, err)
	}
	return bytes.TrimSpace(body), nil
}

func firstByte(b []byte) byte {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// parseCod accepts both numeric and string status codes.
func parseCod(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("cod %s is neither number nor string", string(raw))
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("cod %q is not numeric: %w", s, err)
	}
	return n, nil
}
