package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEndpointHandlerServesMetricsAndHealth(t *testing.T) {
	e := NewEndpoint("127.0.0.1:0", zap.NewNop())
	ts := httptest.NewServer(e.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), "crawler_endpoint_requests_total"))

	before := testutil.ToFloat64(endpointRequestsTotal.WithLabelValues(routeOther, "404"))
	for _, path := range []string{"/missing", "/wp-admin", "/metrics/extra"} {
		resp, err = http.Get(ts.URL + path)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	}

	require.Equal(t, before+3, testutil.ToFloat64(endpointRequestsTotal.WithLabelValues(routeOther, "404")))
	require.GreaterOrEqual(t, testutil.ToFloat64(endpointRequestsTotal.WithLabelValues(routeHealth, "200")), 1.0)
}

func TestEndpointStartIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := NewEndpoint("127.0.0.1:0", zap.NewNop())
	require.Empty(t, e.Addr())

	require.NoError(t, e.Start(ctx))
	addr := e.Addr()
	require.NotEmpty(t, addr)

	require.NoError(t, e.Start(ctx))
	require.Equal(t, addr, e.Addr())

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEndpointStartReportsListenError(t *testing.T) {
	e := NewEndpoint("invalid-address", zap.NewNop())
	err := e.Start(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, e.Start(context.Background()), "listen metrics endpoint")
}
