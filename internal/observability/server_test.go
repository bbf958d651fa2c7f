// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, checks ...Check) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", checks...)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server := startServer(t)
	server.Metrics().RecordAuthOutcome("signup", "success")

	status, body := get(t, "http://"+server.Addr()+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `contactbook_auth_outcomes_total{operation="signup",outcome="success"} 1`)
}

func TestServer_Liveness(t *testing.T) {
	server := startServer(t, Check{Name: "store", Ping: func(context.Context) error { return errors.New("down") }})

	status, body := get(t, "http://"+server.Addr()+"/healthz/liveness")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok\n", body)
}

func TestServer_Readiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checks     []Check
		wantStatus int
		wantBody   string
	}{
		{"no checks", nil, http.StatusOK, "ok\n"},
		{"all healthy", []Check{{"store", ok}, {"redis", ok}}, http.StatusOK, "ok\n"},
		{"one failing", []Check{{"store", ok}, {"redis", down}}, http.StatusServiceUnavailable, "not ready: redis\n"},
		{"all failing", []Check{{"store", down}, {"redis", down}}, http.StatusServiceUnavailable, "not ready: store, redis\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer("127.0.0.1:0", tt.checks...)
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestServer_ReadinessChecksHaveDeadline(t *testing.T) {
	var hadDeadline bool
	server := NewServer("127.0.0.1:0", Check{Name: "store", Ping: func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))
	assert.True(t, hadDeadline)
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t)
	_, err := server.Start()
	require.Error(t, err)
}

func TestServer_StartOnBusyPortFails(t *testing.T) {
	first := startServer(t)
	second := NewServer(first.Addr())
	_, err := second.Start()
	require.Error(t, err)
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0")
	require.NoError(t, server.Stop(context.Background()))
	assert.Empty(t, server.Addr())
}

func TestServer_ErrorChannelClosesOnShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0")
	errCh, err := server.Start()
	require.NoError(t, err)

	require.NoError(t, server.Stop(context.Background()))

	select {
	case err, open := <-errCh:
		assert.False(t, open)
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("error channel not closed after shutdown")
	}
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAuthOutcome("login", "success")
	m.RecordAuthOutcome("login", "rate_limited")
	m.RecordAuthOutcome("login", "rate_limited")
	m.RecordAuthOutcome("signup", "rate_limited")

	assert.InDelta(t, 1, testutil.ToFloat64(m.AuthOutcomes.WithLabelValues("login", "success")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.AuthOutcomes.WithLabelValues("login", "rate_limited")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.LimiterRejections), 0)

	m.ObserveHTTPRequest("/users/login", http.MethodPost, http.StatusTooManyRequests, 30*time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/users/login", "POST", "429")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPDuration))
}
