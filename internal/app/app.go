// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"strconv"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/weather-station-crawler/internal/bootstrap"
	"github.com/JakeFAU/weather-station-crawler/internal/clock/system"
	"github.com/JakeFAU/weather-station-crawler/internal/config"
	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
	"github.com/JakeFAU/weather-station-crawler/internal/id/uuid"
	"github.com/JakeFAU/weather-station-crawler/internal/logging"
	"github.com/JakeFAU/weather-station-crawler/internal/metrics"
	"github.com/JakeFAU/weather-station-crawler/internal/provider/openweather"
	"github.com/JakeFAU/weather-station-crawler/internal/publisher/memory"
	"github.com/JakeFAU/weather-station-crawler/internal/publisher/pubsub"
	memstore "github.com/JakeFAU/weather-station-crawler/internal/storage/memory"
	"github.com/JakeFAU/weather-station-crawler/internal/storage/postgres"
	"github.com/JakeFAU/weather-station-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/weather-station-crawler/internal/supervisor"
	"github.com/JakeFAU/weather-station-crawler/internal/telemetry"
	"github.com/JakeFAU/weather-station-crawler/internal/worker"
)

// Version is stamped into trace resources.
var Version = "dev"

// App holds the shared, long-lived services for the crawler. It is built once
// at startup and closed when the command finishes.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	tracer    *sdktrace.TracerProvider
	store     crawler.Store
	client    crawler.WeatherClient
	sink      crawler.MetricsSink
	endpoint  crawler.MetricsEndpoint
	publisher crawler.Publisher
	clock     crawler.Clock
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetStore exposes the configured station store.
func (a *App) GetStore() crawler.Store {
	return a.store
}

// GetPublisher returns the measurement publisher, or nil when publishing is disabled.
func (a *App) GetPublisher() crawler.Publisher {
	return a.publisher
}

// GetEndpoint returns the metrics endpoint, or nil when metrics are disabled.
func (a *App) GetEndpoint() crawler.MetricsEndpoint {
	return a.endpoint
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// NewApp builds every service from cfg. It fails fast when a required service
// cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Info("initializing application services")

	a := &App{cfg: cfg, logger: logger, clock: system.New()}

	a.tracer, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: "stationcrawler",
		Version:     Version,
		Exporter:    cfg.Tracing.Exporter,
		ProjectID:   cfg.TraceProjectID(),
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	logger.Info("tracing initialized", zap.String("exporter", cfg.Tracing.Exporter))

	a.store, err = newStore(ctx, cfg.Store, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.client, err = openweather.New(openweather.Config{
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		GeoPath:     cfg.Provider.GeoPath,
		WeatherPath: cfg.Provider.WeatherPath,
		Units:       cfg.Provider.Units,
		Timeout:     cfg.Provider.Timeout,
	}, nil)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init provider client: %w", err)
	}

	a.sink = metrics.NewSink()
	if cfg.Metrics.Enabled {
		addr := ":" + strconv.Itoa(cfg.Metrics.Port)
		a.endpoint = metrics.NewEndpoint(addr, logger.Named("metrics"))
	}

	a.publisher, err = newPublisher(ctx, cfg.PubSub, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Int("stations", len(cfg.Stations)),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Bool("publishing", a.publisher != nil),
	)
	return a, nil
}

func newStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (crawler.Store, error) {
	switch cfg.Driver {
	case config.StoreDriverMemory:
		logger.Info("using in-memory store; measurements are discarded on exit")
		return memstore.NewStationStore(uuid.New()), nil
	case config.StoreDriverSQLite:
		logger.Info("opening sqlite store", zap.String("path", cfg.SQLitePath))
		store, err := sqlite.Open(cfg.SQLitePath, uuid.New())
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return store, nil
	case config.StoreDriverPostgres:
		logger.Info("connecting to postgres")
		store, err := postgres.NewStationStore(ctx, postgres.StationStoreConfig{
			DSN:      cfg.DSN,
			MaxConns: cfg.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

func newPublisher(ctx context.Context, cfg config.PubSubConfig, logger *zap.Logger) (crawler.Publisher, error) {
	switch {
	case cfg.TopicName == "":
		return nil, nil
	case cfg.ProjectID == "":
		logger.Info("pubsub project not set, keeping measurement events in memory", zap.String("topic", cfg.TopicName))
		return memory.New(0, logger.Named("publisher")), nil
	default:
		logger.Info("connecting to GCP Pub/Sub", zap.String("topic", cfg.TopicName))
		pub, err := pubsub.NewFromProject(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		return pub, nil
	}
}

// Supervisor wires a supervisor over the App's services.
func (a *App) Supervisor() *supervisor.Supervisor {
	logger := a.logger.Named("crawler")
	resolver := bootstrap.New(a.store, a.client, a.clock, bootstrap.Config{
		MaxRetries:          a.cfg.Bootstrap.MaxRetries,
		RetryDelayIncrement: a.cfg.Bootstrap.RetryDelayIncrement,
	}, logger.Named("bootstrap"))

	return supervisor.New(resolver, supervisor.Deps{
		Store:     a.store,
		Client:    a.client,
		Sink:      a.sink,
		Clock:     a.clock,
		Publisher: a.publisher,
		Endpoint:  a.endpoint,
		Worker: worker.Config{
			Policy: worker.Policy{
				MonitoringInterval:  a.cfg.Polling.MonitoringInterval,
				BasicRetryDelay:     a.cfg.Polling.BasicRetryDelay,
				RetryDelayIncrement: a.cfg.Polling.RetryDelayIncrement,
				MaxRetries:          a.cfg.Polling.MaxRetries,
			},
			Topic: a.cfg.PubSub.TopicName,
		},
	}, logger)
}

type closer interface {
	Close() error
}

// Close shuts down all services in the App container.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("error closing store", zap.Error(err))
		}
	}
	if c, ok := a.publisher.(closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("error closing publisher", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			a.logger.Warn("error shutting down tracer provider", zap.Error(err))
		}
	}
	// Sync fails on terminals (ENOTTY); nothing useful can be done with it.
	_ = a.logger.Sync()
}
