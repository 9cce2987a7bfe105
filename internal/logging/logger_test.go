package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
)

func TestNewLoggerFlavours(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		opts  Options
		debug bool
	}{
		{"development", Options{Development: true}, true},
		{"production", Options{}, false},
		{"production at debug", Options{Level: "debug"}, true},
		{"development at warn", Options{Development: true, Level: "warn"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, err := New(tt.opts)
			require.NoError(t, err)
			defer logger.Sync() //nolint:errcheck // best-effort flush
			require.Equal(t, tt.debug, logger.Core().Enabled(zapcore.DebugLevel))
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Level: "chatty"})
	require.ErrorContains(t, err, "parse log level")
}

func TestOrNop(t *testing.T) {
	t.Parallel()

	require.NotNil(t, OrNop(nil))
	core, logs := observer.New(zap.InfoLevel)
	OrNop(zap.New(core)).Info("kept")
	require.Equal(t, 1, logs.Len())
}

func TestForStation(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	st := crawler.Station{ID: "id-1", Name: "Berlin", Country: "DE"}
	ForStation(zap.New(core), st).Info("polled")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	require.Equal(t, "Berlin,DE", fields["station"])
	require.Equal(t, "id-1", fields["station_id"])

	require.NotNil(t, ForStation(nil, st))
}
