// Package supervisor bootstraps the configured stations and fans out one worker per station.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
	"github.com/JakeFAU/weather-station-crawler/internal/logging"
	"github.com/JakeFAU/weather-station-crawler/internal/worker"
)

// ErrBootstrap marks a startup failure; no worker was started.
var ErrBootstrap = errors.New("station bootstrap failed")

// Resolver turns configured station references into persisted stations.
type Resolver interface {
	ResolveAll(ctx context.Context, refs []crawler.StationRef) ([]crawler.Station, error)
}

// Deps are the collaborators shared by every worker.
type Deps struct {
	Store     crawler.Store
	Client    crawler.WeatherClient
	Sink      crawler.MetricsSink
	Clock     crawler.Clock
	Publisher crawler.Publisher
	Endpoint  crawler.MetricsEndpoint
	Worker    worker.Config
}

// Supervisor owns the worker fleet.
type Supervisor struct {
	resolver Resolver
	deps     Deps
	logger   *zap.Logger
}

// New creates a Supervisor.
func New(resolver Resolver, deps Deps, logger *zap.Logger) *Supervisor {
	return &Supervisor{resolver: resolver, deps: deps, logger: logging.OrNop(logger)}
}

// Run bootstraps every station, then runs one worker per station until all of
// them stop. Any bootstrap failure aborts before polling starts. Cancelling ctx
// cancels every worker. Worker errors are joined into the result.
func (s *Supervisor) Run(ctx context.Context, refs []crawler.StationRef) error {
	stations, err := s.resolver.ResolveAll(ctx, refs)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBootstrap, err)
	}
	if len(stations) == 0 {
		s.logger.Warn("no stations configured, nothing to poll")
		return nil
	}

	workers := make([]*worker.Worker, 0, len(stations))
	for _, st := range stations {
		workers = append(workers, worker.New(
			st,
			s.deps.Store,
			s.deps.Client,
			s.deps.Sink,
			s.deps.Clock,
			s.deps.Publisher,
			s.deps.Worker,
			s.logger,
		))
	}

	if s.deps.Endpoint != nil {
		if err := s.deps.Endpoint.Start(ctx); err != nil {
			s.logger.Error("metrics endpoint unavailable", zap.Error(err))
		}
	}

	return s.runWorkers(ctx, workers)
}

func (s *Supervisor) runWorkers(ctx context.Context, workers []*worker.Worker) error {
	s.logger.Info("starting workers", zap.Int("count", len(workers)))

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			for _, w := range workers {
				w.Cancel()
			}
		case <-done:
		}
	}()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, w := range workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			if err := wk.Run(ctx); err != nil {
				logging.ForStation(s.logger, wk.Station()).Error("worker terminated", zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	close(done)

	s.logger.Info("all workers stopped", zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}
