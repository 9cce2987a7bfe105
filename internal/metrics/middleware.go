package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Routes served by Endpoint. Any other path is labelled routeOther to keep the
// label set fixed.
const (
	routeMetrics = "/metrics"
	routeHealth  = "/healthz"
	routeOther   = "other"
)

// instrument records every request to the metrics endpoint by route and status.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		observeEndpointRequest(routeLabel(r), rec.status, time.Since(start))
	})
}

func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return routeOther
	}
	switch p := rctx.RoutePattern(); p {
	case routeMetrics, routeHealth:
		return p
	default:
		return routeOther
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
