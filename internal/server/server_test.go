package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgate/docgate/internal/core/ratelimit"
	"github.com/docgate/docgate/internal/core/submitter"
	"github.com/docgate/docgate/internal/core/transport"
	apperrors "github.com/docgate/docgate/internal/errors"
	"github.com/docgate/docgate/internal/server/handlers"
)

func newRelayServer(t *testing.T) (*Server, *ratelimit.FixedWindow) {
	t.Helper()

	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	t.Cleanup(registry.Close)

	limiter, err := ratelimit.NewFixedWindow(2, time.Hour)
	require.NoError(t, err)
	t.Cleanup(limiter.Shutdown)

	relay := handlers.NewDocumentsHandler(&submitter.Submitter{
		Limiter:   limiter,
		Transport: &transport.HTTP{Client: registry.Client()},
		Target:    registry.URL,
		Signature: submitter.SignaturePolicy{Mode: submitter.SignatureNone},
	}, limiter)

	return New(Options{Host: "127.0.0.1", Port: 0, Relay: relay}), limiter
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/version", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerWithoutRelayHasNoDocumentRoutes(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader("{}")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerRelaysDocuments(t *testing.T) {
	srv, limiter := newRelayServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader(`{"document":{"doc_id":"doc-1"}}`))
	req.Header.Set("X-Request-ID", "relay-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "relay-1", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"status_code":200`)
	assert.Equal(t, 1, limiter.Stats().Available)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/limiter", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats ratelimit.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 2, stats.Capacity)
	assert.Equal(t, uint64(1), stats.Admitted)
}

func TestServerServeAndShutdown(t *testing.T) {
	srv, _ := newRelayServer(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(listener) }()

	url := "http://" + listener.Addr().String() + "/version"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-done)
}
