package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/weather-station-crawler/internal/logging"
)

// Endpoint serves /metrics and /healthz. It is started at most once per
// process no matter how many workers ask for it.
type Endpoint struct {
	addr   string
	logger *zap.Logger

	once     sync.Once
	startErr error
	mu       sync.RWMutex
	listener net.Listener
}

// NewEndpoint creates an Endpoint that will listen on addr once started.
func NewEndpoint(addr string, logger *zap.Logger) *Endpoint {
	Init()
	return &Endpoint{addr: addr, logger: logging.OrNop(logger)}
}

// Handler returns the router exposing Prometheus metrics.
func (e *Endpoint) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(instrument)
	r.Get(routeHealth, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle(routeMetrics, promhttp.Handler())
	return r
}

// Start binds the listener and serves in the background until ctx is done.
// Later calls return the outcome of the first one.
func (e *Endpoint) Start(ctx context.Context) error {
	e.once.Do(func() {
		ln, err := net.Listen("tcp", e.addr)
		if err != nil {
			e.startErr = fmt.Errorf("listen metrics endpoint: %w", err)
			return
		}
		e.mu.Lock()
		e.listener = ln
		e.mu.Unlock()

		srv := &http.Server{
			Handler:           e.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			e.logger.Info("metrics endpoint started", zap.String("addr", ln.Addr().String()))
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				e.logger.Warn("metrics endpoint shutdown", zap.Error(err))
			}
		}()
	})
	return e.startErr
}

// Addr reports the bound address, or "" before a successful Start.
func (e *Endpoint) Addr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}
