// Package crawlertest provides in-memory fakes of the crawler collaborators for tests.
package crawlertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
)

// Clock is a manual clock. Sleep returns immediately, records the requested
// duration and advances Now by it.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	// OnSleep, when set, runs after each recorded sleep with the 1-based sleep count.
	OnSleep func(n int)
}

var _ crawler.Clock = (*Clock)(nil)

// NewClock returns a Clock starting at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep records d. It fails only when ctx is already done.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	n := len(c.sleeps)
	hook := c.OnSleep
	c.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

// Sleeps returns a copy of every recorded sleep.
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Client is a scripted WeatherClient. Calls are numbered from 1.
type Client struct {
	mu           sync.Mutex
	geoCalls     int
	weatherCalls int

	GeoFunc     func(call int, city, country string) (crawler.GeoResolution, error)
	WeatherFunc func(call int, lat, lon float64) (crawler.WeatherReport, error)
}

var _ crawler.WeatherClient = (*Client)(nil)

// Geocode dispatches to GeoFunc.
func (c *Client) Geocode(_ context.Context, city, country string) (crawler.GeoResolution, error) {
	c.mu.Lock()
	c.geoCalls++
	n := c.geoCalls
	fn := c.GeoFunc
	c.mu.Unlock()
	if fn == nil {
		return crawler.GeoResolution{StatusCode: crawler.StatusOK, Name: city}, nil
	}
	return fn(n, city, country)
}

// CurrentWeather dispatches to WeatherFunc. A done ctx fails the call with
// ErrTransport, as a real HTTP client would.
func (c *Client) CurrentWeather(ctx context.Context, lat, lon float64) (crawler.WeatherReport, error) {
	if err := ctx.Err(); err != nil {
		return crawler.WeatherReport{}, fmt.Errorf("%w: %w", crawler.ErrTransport, err)
	}
	c.mu.Lock()
	c.weatherCalls++
	n := c.weatherCalls
	fn := c.WeatherFunc
	c.mu.Unlock()
	if fn == nil {
		return crawler.WeatherReport{StatusCode: crawler.StatusOK}, nil
	}
	return fn(n, lat, lon)
}

// GeoCalls reports how many geocoding calls were made.
func (c *Client) GeoCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.geoCalls
}

// WeatherCalls reports how many weather calls were made.
func (c *Client) WeatherCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weatherCalls
}

// Sink records metric observations.
type Sink struct {
	mu        sync.Mutex
	latencies map[string][]time.Duration
	gauges    map[string]float64
}

var _ crawler.MetricsSink = (*Sink)(nil)

// NewSink returns an empty Sink.
func NewSink() *Sink {
	return &Sink{
		latencies: make(map[string][]time.Duration),
		gauges:    make(map[string]float64),
	}
}

// ObserveLatency records d under name.
func (s *Sink) ObserveLatency(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies[name] = append(s.latencies[name], d)
}

// SetGauge records the latest value for (name, label).
func (s *Sink) SetGauge(name, label string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[name+"/"+label] = v
}

// Observations returns how many latencies were recorded under name.
func (s *Sink) Observations(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latencies[name])
}

// Gauge returns the last value set for (name, label).
func (s *Sink) Gauge(name, label string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.gauges[name+"/"+label]
	return v, ok
}

// Publisher records published payloads.
type Publisher struct {
	mu       sync.Mutex
	Messages []any
	Err      error
}

var _ crawler.Publisher = (*Publisher)(nil)

// Publish appends payload unless Err is set.
func (p *Publisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	p.Messages = append(p.Messages, payload)
	return "msg", nil
}

// Count returns the number of published messages.
func (p *Publisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Messages)
}
