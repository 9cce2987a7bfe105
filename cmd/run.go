package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Bootstraps every station and polls until interrupted",
		Long: `Resolves every configured station (aborting if any cannot be resolved),
then starts one polling worker per station. The command returns when every
worker has stopped: on SIGINT/SIGTERM, or when workers end with errors such
as rejected credentials.`,
		RunE: withApp(runCrawler),
	}
}

func runCrawler(cmd *cobra.Command, appInstance App) error {
	logger := appInstance.GetLogger()
	stations := appInstance.Config().Stations

	logger.Info("crawler starting", zap.Int("stations", len(stations)))
	err := appInstance.Supervisor().Run(cmd.Context(), stations)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawler: %w", err)
	}
	logger.Info("crawler finished")
	return nil
}
