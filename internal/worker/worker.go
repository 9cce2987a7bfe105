// Package worker implements the per-station polling loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
	"github.com/JakeFAU/weather-station-crawler/internal/logging"
	"github.com/JakeFAU/weather-station-crawler/internal/telemetry"
)

var tracer = telemetry.Tracer("worker")

// Config controls Worker behavior.
type Config struct {
	Policy Policy
	// Topic receives a MeasurementEvent per persisted measurement. Empty disables publishing.
	Topic string
}

// Worker polls the provider for one station and persists new measurements.
type Worker struct {
	station   crawler.Station
	store     crawler.Store
	client    crawler.WeatherClient
	sink      crawler.MetricsSink
	clock     crawler.Clock
	publisher crawler.Publisher
	cfg       Config
	logger    *zap.Logger

	cancelled atomic.Bool

	mu        sync.Mutex
	state     State
	watermark time.Time
}

// New constructs a Worker bound to station. publisher may be nil.
func New(
	station crawler.Station,
	store crawler.Store,
	client crawler.WeatherClient,
	sink crawler.MetricsSink,
	clock crawler.Clock,
	publisher crawler.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	cfg.Policy = cfg.Policy.withDefaults()
	return &Worker{
		station:   station,
		store:     store,
		client:    client,
		sink:      sink,
		clock:     clock,
		publisher: publisher,
		cfg:       cfg,
		logger:    logging.ForStation(logger, station),
		state:     cfg.Policy.Initial(),
	}
}

// Station returns the station this worker polls.
func (w *Worker) Station() crawler.Station {
	return w.station
}

// Cancel asks the worker to stop. It takes effect at the next loop boundary;
// an in-flight provider call is allowed to finish.
func (w *Worker) Cancel() {
	w.cancelled.Store(true)
}

// Cancelled reports whether the worker has been cancelled or hit a fatal error.
func (w *Worker) Cancelled() bool {
	return w.cancelled.Load()
}

// State returns a snapshot of the retry state and the watermark.
func (w *Worker) State() (State, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.watermark
}

// Run seeds the watermark from the store and polls until cancelled, ctx is
// done, a 401 is received, or the store fails. Cancellation and ctx shutdown
// return nil. ctx is only observed between cycles and while sleeping: a cycle
// that has started runs to completion, including its store write.
func (w *Worker) Run(ctx context.Context) error {
	latest, ok, err := w.store.LatestMeasurement(ctx, w.station.ID)
	if err != nil {
		return fmt.Errorf("seed watermark for %s: %w", w.station, err)
	}
	if ok {
		w.setWatermark(latest.Timestamp)
	}
	_, wm := w.State()
	w.logger.Info("worker started", zap.Time("watermark", wm))

	for {
		if w.cancelled.Load() || ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}
		delay, err := w.cycle(context.WithoutCancel(ctx))
		if err != nil {
			return err
		}
		if err := w.clock.Sleep(ctx, delay); err != nil {
			w.logger.Info("worker stopped")
			return nil
		}
	}
}

// cycle performs one fetch-and-store iteration and returns the delay before the next one.
func (w *Worker) cycle(ctx context.Context) (_ time.Duration, err error) {
	ctx, span := tracer.Start(ctx, "worker.cycle",
		trace.WithAttributes(attribute.String("station", w.station.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := w.clock.Now()
	report, callErr := w.client.CurrentWeather(ctx, w.station.Latitude, w.station.Longitude)
	w.sink.ObserveLatency(crawler.MetricAPILatency, w.clock.Now().Sub(start))

	outcome := classify(report, callErr)
	span.SetAttributes(
		attribute.String("outcome", outcome.String()),
		attribute.Int("status_code", report.StatusCode),
	)
	w.mu.Lock()
	w.state = w.cfg.Policy.Next(w.state, outcome)
	state := w.state
	w.mu.Unlock()

	switch outcome {
	case OutcomeUnauthorized:
		w.cancelled.Store(true)
		w.logger.Error("provider rejected credentials, stopping worker")
		return 0, fmt.Errorf("station %s: %w", w.station, crawler.ErrUnauthorized)
	case OutcomeFailure:
		if callErr == nil {
			callErr = crawler.StatusError(report.StatusCode)
		}
		w.logger.Warn("weather call failed",
			zap.String("phase", state.Phase.String()),
			zap.Int("retry_count", state.RetryCount),
			zap.Duration("next_delay", state.Delay),
			zap.Error(callErr),
		)
	case OutcomeSuccess:
		w.sink.SetGauge(crawler.GaugeLastCall, w.station.String(), float64(w.clock.Now().Unix()))
		if err := w.persist(ctx, report); err != nil {
			return 0, err
		}
	}

	w.sink.ObserveLatency(crawler.MetricCycleDuration, w.clock.Now().Sub(start))
	return state.Delay, nil
}

func classify(report crawler.WeatherReport, err error) Outcome {
	switch {
	case err != nil:
		return OutcomeFailure
	case report.StatusCode == crawler.StatusOK:
		return OutcomeSuccess
	case report.StatusCode == crawler.StatusUnauthorized:
		return OutcomeUnauthorized
	default:
		return OutcomeFailure
	}
}

// persist stores report when it is newer than the watermark.
func (w *Worker) persist(ctx context.Context, report crawler.WeatherReport) error {
	ts := report.Timestamp.UTC()
	_, wm := w.State()
	if !ts.After(wm) {
		w.logger.Debug("no new data", zap.Time("timestamp", ts), zap.Time("watermark", wm))
		return nil
	}

	err := w.store.InsertMeasurement(ctx, w.station.ID, ts, report.Payload)
	switch {
	case errors.Is(err, crawler.ErrDuplicateMeasurement):
		w.logger.Warn("measurement already stored", zap.Time("timestamp", ts), zap.Error(err))
		w.setWatermark(ts)
		return nil
	case err != nil:
		w.logger.Error("store measurement failed", zap.Time("timestamp", ts), zap.Error(err))
		return fmt.Errorf("station %s: %w", w.station, err)
	}

	w.setWatermark(ts)
	w.sink.SetGauge(crawler.GaugeNewData, w.station.String(), float64(w.clock.Now().Unix()))
	w.logger.Info("measurement stored", zap.Time("timestamp", ts))
	w.publish(ctx, ts, report)
	return nil
}

func (w *Worker) setWatermark(ts time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ts.After(w.watermark) {
		w.watermark = ts
	}
}

// publish announces a stored measurement. Failures are logged only.
func (w *Worker) publish(ctx context.Context, ts time.Time, report crawler.WeatherReport) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	event := crawler.MeasurementEvent{
		StationID: w.station.ID,
		Station:   w.station.Name,
		Country:   w.station.Country,
		Timestamp: ts,
		Payload:   report.Payload,
	}
	msgID, err := w.publisher.Publish(ctx, w.cfg.Topic, event)
	if err != nil {
		w.logger.Warn("publish measurement failed", zap.Error(err))
		return
	}
	w.logger.Debug("measurement published", zap.String("message_id", msgID))
}
