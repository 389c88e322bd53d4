package handlers

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

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/ratelimit"
	"github.com/docgate/docgate/internal/core/submitter"
	"github.com/docgate/docgate/internal/core/transport"
)

const documentBody = `{
  "document": {
    "doc_id": "doc-1",
    "doc_type": "LP_INTRODUCE_GOODS",
    "owner_inn": "7700000000",
    "products": [{"tnved_code": "6401100000", "uit_code": "uit-1"}]
  },
  "signature": "sig"
}`

func newRelay(t *testing.T, registry http.HandlerFunc) (*DocumentsHandler, *ratelimit.FixedWindow) {
	t.Helper()

	server := httptest.NewServer(registry)
	t.Cleanup(server.Close)

	limiter, err := ratelimit.NewFixedWindow(1, time.Hour)
	require.NoError(t, err)
	t.Cleanup(limiter.Shutdown)

	sub := &submitter.Submitter{
		Limiter:   limiter,
		Transport: &transport.HTTP{Client: server.Client()},
		Target:    server.URL,
	}
	return NewDocumentsHandler(sub, limiter), limiter
}

func post(handler http.HandlerFunc, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestSubmitRelaysAcceptedDocument(t *testing.T) {
	relay, limiter := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sig", r.Header.Get("Signature"))
		_, _ = w.Write([]byte(`{"value":"registered"}`))
	})

	rec := post(relay.Submit, documentBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var receipt core.Receipt
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&receipt))
	assert.Equal(t, `{"value":"registered"}`, receipt.Body)
	assert.Equal(t, http.StatusOK, receipt.StatusCode)
	assert.NotEmpty(t, receipt.SubmissionID)
	assert.Equal(t, 0, limiter.Stats().Available)
}

func TestSubmitTakesSignatureFromHeader(t *testing.T) {
	relay, _ := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "detached", r.Header.Get("Signature"))
	})

	body := strings.Replace(documentBody, `"signature": "sig"`, `"signature": ""`, 1)
	rec := post(relay.Submit, body, map[string]string{SignatureHeader: "detached"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitRejectsMalformedRequests(t *testing.T) {
	relay, limiter := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("registry must not be called")
	})

	for name, body := range map[string]string{
		"empty":         "",
		"not json":      "{",
		"no document":   `{"signature":"sig"}`,
		"unknown field": `{"document":{},"extra":1}`,
		"no signature":  strings.Replace(documentBody, `"signature": "sig"`, `"signature": ""`, 1),
	} {
		t.Run(name, func(t *testing.T) {
			rec := post(relay.Submit, body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Error.Code)
		})
	}
	assert.Equal(t, 1, limiter.Stats().Available)
}

func TestSubmitMapsRegistryRejection(t *testing.T) {
	relay, _ := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("bad inn"))
	})

	rec := post(relay.Submit, documentBody, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", body.Error.Code)
	assert.EqualValues(t, http.StatusUnprocessableEntity, body.Error.Details["status_code"])
	assert.Equal(t, "bad inn", body.Error.Details["registry_response"])
}

func TestSubmitMapsTransportFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	limiter, err := ratelimit.NewFixedWindow(1, time.Hour)
	require.NoError(t, err)
	t.Cleanup(limiter.Shutdown)

	relay := NewDocumentsHandler(&submitter.Submitter{
		Limiter:   limiter,
		Transport: &transport.HTTP{Client: &http.Client{Timeout: time.Second}},
		Target:    "http://" + addr,
	}, limiter)

	rec := post(relay.Submit, documentBody, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", decodeError(t, rec).Error.Code)
}

func TestSubmitMapsLimiterClosed(t *testing.T) {
	relay, limiter := newRelay(t, func(w http.ResponseWriter, r *http.Request) {})
	limiter.Shutdown()

	rec := post(relay.Submit, documentBody, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, rec).Error.Code)
	assert.ErrorIs(t, relay.CheckHealth(context.Background()), ratelimit.ErrLimiterClosed)
}

func TestSubmitMapsCancelledWait(t *testing.T) {
	relay, _ := newRelay(t, func(w http.ResponseWriter, r *http.Request) {})
	require.Equal(t, http.StatusOK, post(relay.Submit, documentBody, nil).Code)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader(documentBody)).WithContext(ctx)
	rec := httptest.NewRecorder()
	relay.Submit(rec, req)

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "TIMEOUT", decodeError(t, rec).Error.Code)
}

func TestLimiterStatsEndpoint(t *testing.T) {
	relay, _ := newRelay(t, func(w http.ResponseWriter, r *http.Request) {})
	require.NoError(t, relay.CheckHealth(context.Background()))

	rec := httptest.NewRecorder()
	relay.LimiterStats(rec, httptest.NewRequest(http.MethodGet, "/v1/limiter", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats ratelimit.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, ratelimit.PolicyFixedWindow, stats.Policy)
	assert.Equal(t, 1, stats.Capacity)
	assert.Equal(t, time.Hour, stats.Interval)
	assert.False(t, stats.Closed)

	unconfigured := NewDocumentsHandler(nil, nil)
	rec = httptest.NewRecorder()
	unconfigured.LimiterStats(rec, httptest.NewRequest(http.MethodGet, "/v1/limiter", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Error(t, unconfigured.CheckHealth(context.Background()))
}

func TestSubmitUsesInstalledErrorResponder(t *testing.T) {
	relay, _ := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("registry must not be called")
	})

	var handled error
	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		handled = err
		w.WriteHeader(http.StatusTeapot)
	})
	t.Cleanup(ResetHTTPErrorResponder)

	rec := post(relay.Submit, "{", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.Error(t, handled)

	ResetHTTPErrorResponder()
	rec = post(relay.Submit, "{", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Error.Code)
}
