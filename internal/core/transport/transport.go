package transport

import (
	"context"
	"net/http"
	"time"
)

// Request is a single outbound registry call.
type Request struct {
	URL         string
	ContentType string
	Headers     map[string]string
	Body        []byte
}

// Response is what the registry answered. Every HTTP status yields a
// Response; only network failures produce an error.
type Response struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
	Header     http.Header
}

// Transport performs one synchronous network call.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}
