// Package bootstrap resolves configured stations to persisted, geocoded stations.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
	"github.com/JakeFAU/weather-station-crawler/internal/telemetry"
)

var tracer = telemetry.Tracer("bootstrap")

const (
	defaultMaxRetries          = 3
	defaultRetryDelayIncrement = 2 * time.Minute
)

// Config bounds the geocoding retry loop.
type Config struct {
	MaxRetries          int
	RetryDelayIncrement time.Duration
}

// Resolver geocodes stations and records them in the store.
type Resolver struct {
	store  crawler.Store
	client crawler.WeatherClient
	clock  crawler.Clock
	cfg    Config
	logger *zap.Logger
}

// New constructs a Resolver.
func New(
	store crawler.Store,
	client crawler.WeatherClient,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Resolver {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelayIncrement <= 0 {
		cfg.RetryDelayIncrement = defaultRetryDelayIncrement
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:  store,
		client: client,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Resolve returns the persisted station for (city, country), geocoding it
// first when the store does not know it yet.
//
// Non-success provider statuses and transport errors consume an attempt and
// wait RetryDelayIncrement times the attempt number before the next one. A
// malformed response fails immediately.
func (r *Resolver) Resolve(ctx context.Context, city, country string) (_ crawler.Station, err error) {
	ctx, span := tracer.Start(ctx, "bootstrap.resolve",
		trace.WithAttributes(attribute.String("city", city), attribute.String("country", country)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := r.logger.With(zap.String("city", city), zap.String("country", country))

	st, ok, err := r.store.FindStation(ctx, city, country)
	if err != nil {
		return crawler.Station{}, fmt.Errorf("lookup station %s,%s: %w", city, country, err)
	}
	if ok {
		logger.Debug("station already known", zap.String("station_id", st.ID))
		return st, nil
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		geo, err := r.client.Geocode(ctx, city, country)
		switch {
		case errors.Is(err, crawler.ErrMalformedResponse):
			logger.Error("geocoding response malformed", zap.Error(err))
			return crawler.Station{}, fmt.Errorf("geocode %s,%s: %w", city, country, err)
		case err != nil:
			lastErr = err
		case geo.StatusCode == crawler.StatusOK:
			return r.persist(ctx, logger, city, country, geo)
		default:
			lastErr = crawler.StatusError(geo.StatusCode)
		}

		if attempt == r.cfg.MaxRetries {
			break
		}
		delay := r.cfg.RetryDelayIncrement * time.Duration(attempt)
		logger.Warn("geocoding failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		if err := r.clock.Sleep(ctx, delay); err != nil {
			return crawler.Station{}, fmt.Errorf("geocode %s,%s: %w", city, country, err)
		}
	}

	logger.Error("geocoding retries exhausted", zap.Int("attempts", r.cfg.MaxRetries), zap.Error(lastErr))
	return crawler.Station{}, fmt.Errorf("geocode %s,%s: %w", city, country, errors.Join(crawler.ErrRetriesExhausted, lastErr))
}

func (r *Resolver) persist(
	ctx context.Context,
	logger *zap.Logger,
	city, country string,
	geo crawler.GeoResolution,
) (crawler.Station, error) {
	if err := r.store.InsertStationIfAbsent(ctx, city, country, geo.Latitude, geo.Longitude); err != nil {
		return crawler.Station{}, fmt.Errorf("insert station %s,%s: %w", city, country, err)
	}
	st, ok, err := r.store.FindStation(ctx, city, country)
	if err != nil {
		return crawler.Station{}, fmt.Errorf("reload station %s,%s: %w", city, country, err)
	}
	if !ok {
		return crawler.Station{}, fmt.Errorf("%w: station %s,%s missing after insert", crawler.ErrStore, city, country)
	}
	logger.Info("station bootstrapped",
		zap.String("station_id", st.ID),
		zap.String("provider_name", geo.Name),
		zap.Float64("lat", st.Latitude),
		zap.Float64("lon", st.Longitude),
	)
	return st, nil
}

// ResolveAll resolves refs in order and stops at the first failure.
func (r *Resolver) ResolveAll(ctx context.Context, refs []crawler.StationRef) ([]crawler.Station, error) {
	stations := make([]crawler.Station, 0, len(refs))
	for _, ref := range refs {
		st, err := r.Resolve(ctx, ref.City, ref.Country)
		if err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, nil
}
