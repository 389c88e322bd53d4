package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPostsPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "sig", r.Header.Get("Signature"))
		assert.Equal(t, "docgate/test", r.Header.Get("User-Agent"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"doc_id":"1"}`, string(body))
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer server.Close()

	tr := &HTTP{Client: server.Client(), UserAgent: "docgate/test"}
	resp, err := tr.Do(context.Background(), &Request{
		URL:     server.URL,
		Headers: map[string]string{"Signature": "sig"},
		Body:    []byte(`{"doc_id":"1"}`),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, `{"value":"ok"}`, resp.Body)
}

func TestHTTPReturnsResponseForErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer server.Close()

	tr := &HTTP{Client: server.Client()}
	resp, err := tr.Do(context.Background(), &Request{URL: server.URL, Body: []byte(`{}`)})
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "slow down", resp.Body)
	require.Equal(t, 7*time.Second, resp.RetryAfter)
}

func TestHTTPConnectionFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	tr := &HTTP{Client: &http.Client{Timeout: time.Second}}
	resp, err := tr.Do(context.Background(), &Request{URL: "http://" + addr, Body: []byte(`{}`)})
	require.Error(t, err)
	require.Nil(t, resp)
}

func TestHTTPRequiresTarget(t *testing.T) {
	_, err := (&HTTP{}).Do(context.Background(), &Request{})
	require.Error(t, err)
}
