package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
provider:
  api_key: secret
  base_url: http://localhost:9999
  timeout: 5s
stations:
  - city: Berlin
    country: DE
  - city: Hamburg
    country: DE
store:
  driver: postgres
  dsn: postgres://localhost/weather
  max_conns: 8
polling:
  monitoring_interval: 15m
  basic_retry_delay: 30s
  retry_delay_increment: 90s
  max_retries: 5
bootstrap:
  max_retries: 2
  retry_delay_increment: 1m
metrics:
  port: 9100
pubsub:
  project_id: proj
  topic_name: measurements
logging:
  development: false
  level: warn
tracing:
  exporter: cloudtrace
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Provider.APIKey != "secret" || cfg.Provider.Timeout != 5*time.Second {
		t.Fatalf("expected provider overrides to apply: %+v", cfg.Provider)
	}
	if cfg.Provider.GeoPath != "/geo/1.0/direct" {
		t.Fatalf("expected default geo path, got %q", cfg.Provider.GeoPath)
	}
	want := []crawler.StationRef{{City: "Berlin", Country: "DE"}, {City: "Hamburg", Country: "DE"}}
	if len(cfg.Stations) != 2 || cfg.Stations[0] != want[0] || cfg.Stations[1] != want[1] {
		t.Fatalf("unexpected stations: %+v", cfg.Stations)
	}
	if cfg.Store.Driver != StoreDriverPostgres || cfg.Store.MaxConns != 8 {
		t.Fatalf("expected store overrides to apply: %+v", cfg.Store)
	}
	if cfg.Polling.MonitoringInterval != 15*time.Minute || cfg.Polling.BasicRetryDelay != 30*time.Second ||
		cfg.Polling.RetryDelayIncrement != 90*time.Second || cfg.Polling.MaxRetries != 5 {
		t.Fatalf("expected polling overrides to apply: %+v", cfg.Polling)
	}
	if cfg.Bootstrap.MaxRetries != 2 || cfg.Bootstrap.RetryDelayIncrement != time.Minute {
		t.Fatalf("expected bootstrap overrides to apply: %+v", cfg.Bootstrap)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Port != 9100 {
		t.Fatalf("expected metrics enabled on 9100: %+v", cfg.Metrics)
	}
	if cfg.PubSub.TopicName != "measurements" || cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("expected pubsub and logging overrides: %+v %+v", cfg.PubSub, cfg.Logging)
	}
	if cfg.Tracing.Exporter != TraceExporterCloudTrace || cfg.TraceProjectID() != "proj" {
		t.Fatalf("expected cloudtrace to reuse the pubsub project: %+v", cfg.Tracing)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
provider:
  api_key: secret
stations:
  - city: Munich
    country: de
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Driver != StoreDriverSQLite || cfg.Store.SQLitePath != "data/weather.db" {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Polling.MonitoringInterval != 10*time.Minute || cfg.Polling.BasicRetryDelay != time.Minute ||
		cfg.Polling.RetryDelayIncrement != 2*time.Minute || cfg.Polling.MaxRetries != 3 {
		t.Fatalf("unexpected polling defaults: %+v", cfg.Polling)
	}
	if cfg.Bootstrap.MaxRetries != 3 || cfg.Bootstrap.RetryDelayIncrement != 2*time.Minute {
		t.Fatalf("unexpected bootstrap defaults: %+v", cfg.Bootstrap)
	}
	if cfg.Tracing.Exporter != TraceExporterNone {
		t.Fatalf("unexpected tracing default: %+v", cfg.Tracing)
	}
	if cfg.Metrics.Port != 8080 || cfg.Provider.BaseURL != "https://api.openweathermap.org" {
		t.Fatalf("unexpected metrics/provider defaults: %+v %+v", cfg.Metrics, cfg.Provider)
	}
}

func TestLoadAppendsStationsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stationsPath := filepath.Join(dir, "stations.json")
	stationsJSON := `[{"city": "Leipzig", "location": "de"}, {"city": "Dresden", "location": "de"}]`
	if err := os.WriteFile(stationsPath, []byte(stationsJSON), 0o600); err != nil {
		t.Fatalf("failed to write stations: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	configYAML := "provider:\n  api_key: secret\nstations_file: " + stationsPath + "\n"
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Stations) != 2 || cfg.Stations[1].City != "Dresden" || cfg.Stations[1].Country != "de" {
		t.Fatalf("unexpected stations from file: %+v", cfg.Stations)
	}
}

func TestLoadStationsFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := LoadStationsFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte("[]"), 0o600); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if _, err := LoadStationsFile(empty); err == nil || !strings.Contains(err.Error(), "lists no stations") {
		t.Fatalf("expected empty file error, got %v", err)
	}

	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte("{"), 0o600); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if _, err := LoadStationsFile(broken); err == nil || !strings.Contains(err.Error(), "decode stations file") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Provider: ProviderConfig{APIKey: "k", BaseURL: "http://x"},
		Stations: []crawler.StationRef{{City: "Berlin", Country: "DE"}},
		Store:    StoreConfig{Driver: StoreDriverMemory},
		Polling: PollingConfig{
			MonitoringInterval:  10 * time.Minute,
			BasicRetryDelay:     time.Minute,
			RetryDelayIncrement: 2 * time.Minute,
			MaxRetries:          3,
		},
		Bootstrap: BootstrapConfig{MaxRetries: 3, RetryDelayIncrement: 2 * time.Minute},
		Metrics:   MetricsConfig{Enabled: true, Port: 8080},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing api key", func(c *Config) { c.Provider.APIKey = "" }, "provider.api_key"},
		{"no stations", func(c *Config) { c.Stations = nil }, "at least one station"},
		{"blank country", func(c *Config) { c.Stations[0].Country = " " }, "stations[0]"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "unknown store.driver"},
		{"sqlite without path", func(c *Config) { c.Store.Driver = StoreDriverSQLite }, "store.sqlite_path"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = StoreDriverPostgres }, "store.dsn"},
		{"zero interval", func(c *Config) { c.Polling.MonitoringInterval = 0 }, "monitoring_interval"},
		{"zero retries", func(c *Config) { c.Polling.MaxRetries = 0 }, "max_retries"},
		{"metrics port", func(c *Config) { c.Metrics.Port = 0 }, "metrics.port"},
		{"zero bootstrap increment", func(c *Config) { c.Bootstrap.RetryDelayIncrement = 0 }, "bootstrap.retry_delay_increment"},
		{"unknown exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }, "unknown tracing.exporter"},
		{"cloudtrace without project", func(c *Config) { c.Tracing.Exporter = TraceExporterCloudTrace }, "cloudtrace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Stations = append([]crawler.StationRef(nil), base.Stations...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestLoadTopicWithoutProject(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
provider:
  api_key: secret
stations:
  - city: Oslo
    country: NO
store:
  driver: memory
pubsub:
  topic_name: measurements
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PubSub.TopicName != "measurements" || cfg.PubSub.ProjectID != "" {
		t.Fatalf("unexpected pubsub config: %+v", cfg.PubSub)
	}
}

func TestTraceProjectIDFallsBackToPubSub(t *testing.T) {
	t.Parallel()

	cfg := Config{PubSub: PubSubConfig{ProjectID: "events"}}
	if got := cfg.TraceProjectID(); got != "events" {
		t.Fatalf("TraceProjectID() = %q, want events", got)
	}
	cfg.Tracing.ProjectID = "traces"
	if got := cfg.TraceProjectID(); got != "traces" {
		t.Fatalf("TraceProjectID() = %q, want traces", got)
	}
}
