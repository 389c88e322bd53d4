package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/ratelimit"
	"github.com/docgate/docgate/internal/core/submitter"
	apperrors "github.com/docgate/docgate/internal/errors"
	"github.com/docgate/docgate/internal/metrics"
	"github.com/docgate/docgate/internal/observability"
)

// SignatureHeader carries a detached signature when the body omits it.
const SignatureHeader = "X-Document-Signature"

const maxRequestBody = 10 << 20

// DocumentSubmitter is the part of submitter.Submitter the relay uses.
type DocumentSubmitter interface {
	Submit(ctx context.Context, doc *core.Document, signature string) (*core.Receipt, error)
}

// SubmitRequest is the body of POST /v1/documents.
type SubmitRequest struct {
	Document  *core.Document `json:"document"`
	Signature string         `json:"signature,omitempty"`
}

// DocumentsHandler relays documents to the registry through the shared limiter.
type DocumentsHandler struct {
	submitter DocumentSubmitter
	limiter   ratelimit.Limiter
}

// NewDocumentsHandler wires the relay endpoints. limiter may be nil, in which
// case GET /v1/limiter reports the service as unavailable.
func NewDocumentsHandler(sub DocumentSubmitter, limiter ratelimit.Limiter) *DocumentsHandler {
	return &DocumentsHandler{submitter: sub, limiter: limiter}
}

// Submit handles POST /v1/documents. The request context bounds the wait for
// a rate-limit slot, so a client that disconnects leaves the queue.
func (h *DocumentsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.submitter == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("document relay is not configured"))
		return
	}

	req, err := decodeSubmitRequest(r)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid submission request"))
		return
	}

	started := time.Now()
	receipt, err := h.submitter.Submit(r.Context(), req.Document, req.Signature)
	outcome := submitter.Classify(err)
	metrics.RecordSubmission(string(outcome), time.Since(started))
	h.publishLimiterState()

	if err != nil {
		if logger := observability.ServerLogger; logger != nil {
			logger.Debug("Submission failed",
				zap.String("doc_id", req.Document.DocID),
				zap.String("outcome", string(outcome)),
				zap.Error(err))
		}
		respondWithError(w, r, apperrors.FromSubmission(r.Context(), err))
		return
	}

	h.recordWait(receipt)
	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Document accepted",
			zap.String("submission_id", receipt.SubmissionID),
			zap.String("doc_id", req.Document.DocID),
			zap.Uint64("window", receipt.Window),
			zap.Duration("waited", receipt.Waited()))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(receipt)
}

// LimiterStats handles GET /v1/limiter.
func (h *DocumentsHandler) LimiterStats(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.limiter == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("rate limiter is not configured"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(h.limiter.Stats())
}

// CheckHealth makes the limiter a health dependency: once it is shut down no
// submission can succeed.
func (h *DocumentsHandler) CheckHealth(ctx context.Context) error {
	if h == nil || h.limiter == nil {
		return errors.New("rate limiter is not configured")
	}
	if h.limiter.Stats().Closed {
		return ratelimit.ErrLimiterClosed
	}
	return nil
}

func (h *DocumentsHandler) publishLimiterState() {
	if h.limiter == nil {
		return
	}
	snapshot := h.limiter.Stats()
	metrics.SetLimiterState(snapshot.Available, snapshot.Waiting)
}

func (h *DocumentsHandler) recordWait(receipt *core.Receipt) {
	policy := string(ratelimit.PolicyFixedWindow)
	if h.limiter != nil {
		policy = string(h.limiter.Stats().Policy)
	}
	metrics.RecordAcquireWait(policy, receipt.Waited())
}

func decodeSubmitRequest(r *http.Request) (*SubmitRequest, error) {
	if r.Body == nil {
		return nil, errors.New("request body is required")
	}

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()

	var req SubmitRequest
	if err := decoder.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("request body is required")
		}
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if req.Document == nil {
		return nil, errors.New("document is required")
	}

	if strings.TrimSpace(req.Signature) == "" {
		req.Signature = strings.TrimSpace(r.Header.Get(SignatureHeader))
	}
	return &req, nil
}
