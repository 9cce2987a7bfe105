// Package config loads and validates crawler configuration via Viper.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
)

// Store drivers accepted by store.driver.
const (
	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

// Span exporters accepted by tracing.exporter.
const (
	TraceExporterNone       = "none"
	TraceExporterStdout     = "stdout"
	TraceExporterCloudTrace = "cloudtrace"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Provider     ProviderConfig       `mapstructure:"provider"`
	Stations     []crawler.StationRef `mapstructure:"stations"`
	StationsFile string               `mapstructure:"stations_file"`
	Store        StoreConfig          `mapstructure:"store"`
	Polling      PollingConfig        `mapstructure:"polling"`
	Bootstrap    BootstrapConfig      `mapstructure:"bootstrap"`
	Metrics      MetricsConfig        `mapstructure:"metrics"`
	PubSub       PubSubConfig         `mapstructure:"pubsub"`
	Logging      LoggingConfig        `mapstructure:"logging"`
	Tracing      TracingConfig        `mapstructure:"tracing"`
}

// ProviderConfig points at the OpenWeatherMap API.
type ProviderConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	GeoPath     string        `mapstructure:"geo_path"`
	WeatherPath string        `mapstructure:"weather_path"`
	Units       string        `mapstructure:"units"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
	DSN        string `mapstructure:"dsn"`
	MaxConns   int32  `mapstructure:"max_conns"`
}

// PollingConfig shapes each worker's backoff state machine.
type PollingConfig struct {
	MonitoringInterval  time.Duration `mapstructure:"monitoring_interval"`
	BasicRetryDelay     time.Duration `mapstructure:"basic_retry_delay"`
	RetryDelayIncrement time.Duration `mapstructure:"retry_delay_increment"`
	MaxRetries          int           `mapstructure:"max_retries"`
}

// BootstrapConfig controls geocoding retries at startup.
type BootstrapConfig struct {
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelayIncrement time.Duration `mapstructure:"retry_delay_increment"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// PubSubConfig holds metadata for measurement notifications. A topic without
// a project keeps events in process.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig selects where spans are exported.
type TracingConfig struct {
	Exporter  string `mapstructure:"exporter"`
	ProjectID string `mapstructure:"project_id"`
}

// TraceProjectID returns the Cloud Trace project, falling back to the Pub/Sub one.
func (c Config) TraceProjectID() string {
	if c.Tracing.ProjectID != "" {
		return c.Tracing.ProjectID
	}
	return c.PubSub.ProjectID
}

// Load builds a Config from disk/environment. A .env file in the working
// directory is applied to the process environment first when present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.StationsFile != "" {
		refs, err := LoadStationsFile(cfg.StationsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Stations = append(cfg.Stations, refs...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Registered so AutomaticEnv can populate them during Unmarshal.
	v.SetDefault("provider.api_key", "")
	v.SetDefault("stations_file", "")
	v.SetDefault("store.dsn", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("tracing.project_id", "")
	v.SetDefault("tracing.exporter", TraceExporterNone)
	v.SetDefault("provider.base_url", "https://api.openweathermap.org")
	v.SetDefault("provider.geo_path", "/geo/1.0/direct")
	v.SetDefault("provider.weather_path", "/data/2.5/weather")
	v.SetDefault("provider.units", "metric")
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("store.driver", StoreDriverSQLite)
	v.SetDefault("store.sqlite_path", "data/weather.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("polling.monitoring_interval", 10*time.Minute)
	v.SetDefault("polling.basic_retry_delay", time.Minute)
	v.SetDefault("polling.retry_delay_increment", 2*time.Minute)
	v.SetDefault("polling.max_retries", 3)
	v.SetDefault("bootstrap.max_retries", 3)
	v.SetDefault("bootstrap.retry_delay_increment", 2*time.Minute)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// stationsFileEntry matches the stations.json layout of earlier deployments.
type stationsFileEntry struct {
	City     string `json:"city"`
	Location string `json:"location"`
}

// LoadStationsFile reads a JSON array of {"city", "location"} objects.
func LoadStationsFile(path string) ([]crawler.StationRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stations file: %w", err)
	}
	var entries []stationsFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode stations file: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("stations file %s lists no stations", path)
	}
	refs := make([]crawler.StationRef, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, crawler.StationRef{City: e.City, Country: e.Location})
	}
	return refs, nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Provider.Timeout < 0 {
		return fmt.Errorf("provider.timeout must be >= 0")
	}
	if len(c.Stations) == 0 {
		return fmt.Errorf("at least one station must be configured")
	}
	for i, s := range c.Stations {
		if strings.TrimSpace(s.City) == "" || strings.TrimSpace(s.Country) == "" {
			return fmt.Errorf("stations[%d] needs both city and country", i)
		}
	}
	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case StoreDriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Polling.MonitoringInterval <= 0 {
		return fmt.Errorf("polling.monitoring_interval must be > 0")
	}
	if c.Polling.BasicRetryDelay <= 0 || c.Polling.RetryDelayIncrement <= 0 {
		return fmt.Errorf("polling retry delays must be > 0")
	}
	if c.Polling.MaxRetries <= 0 || c.Bootstrap.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be > 0")
	}
	if c.Bootstrap.RetryDelayIncrement <= 0 {
		return fmt.Errorf("bootstrap.retry_delay_increment must be > 0")
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be > 0 when metrics are enabled")
	}
	switch c.Tracing.Exporter {
	case "", TraceExporterNone, TraceExporterStdout:
	case TraceExporterCloudTrace:
		if c.TraceProjectID() == "" {
			return fmt.Errorf("tracing.project_id or pubsub.project_id is required for the cloudtrace exporter")
		}
	default:
		return fmt.Errorf("unknown tracing.exporter %q", c.Tracing.Exporter)
	}
	return nil
}
