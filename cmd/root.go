// Package cmd defines and implements the CLI commands for the stationcrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/weather-station-crawler/internal/app"
	"github.com/JakeFAU/weather-station-crawler/internal/config"
	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
	"github.com/JakeFAU/weather-station-crawler/internal/supervisor"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
// Tests inject a fake through newApp.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetStore() crawler.Store
	Config() config.Config
	Supervisor() *supervisor.Supervisor
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.NewApp(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "stationcrawler",
		Short: "Polls OpenWeatherMap for a fixed set of weather stations.",
		Long: `stationcrawler resolves each configured (city, country) pair to a
weather station once, then polls the current weather for every station in
parallel and stores each new measurement exactly once.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStationsCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp adapts fn to a RunE that closes the App however fn returns.
// PersistentPostRun hooks are skipped when RunE fails, so closing happens here.
func withApp(fn func(cmd *cobra.Command, appInstance App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()
		return fn(cmd, appInstance)
	}
}

// Execute runs the root command until it finishes or the process receives
// SIGINT/SIGTERM, and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
