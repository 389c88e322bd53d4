// Package submitter sends documents to the registry through a shared rate limiter.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/codec"
	"github.com/docgate/docgate/internal/core/ratelimit"
	"github.com/docgate/docgate/internal/core/stats"
	"github.com/docgate/docgate/internal/core/transport"
)

// Submitter performs rate-limited document submissions. One Submitter and
// its Limiter are shared by every caller targeting the same registry.
type Submitter struct {
	Limiter     ratelimit.Limiter
	Transport   transport.Transport
	Serializer  codec.Serializer
	Target      string
	Signature   SignaturePolicy
	Stats       stats.Recorder
	ToolVersion string
	Clock       func() time.Time
}

// Submit waits for a rate-limit slot, then makes exactly one registry call.
// A 200 response yields a receipt; any other status is a RemoteRejectedError
// and a failed call is a TransportFailureError. Limiter errors are returned
// unchanged. Nothing is retried.
func (s *Submitter) Submit(ctx context.Context, doc *core.Document, signature string) (*core.Receipt, error) {
	if s == nil || s.Limiter == nil || s.Transport == nil {
		return nil, errors.New("submitter is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is required", ErrInvalidDocument)
	}
	target := strings.TrimSpace(s.Target)
	if target == "" {
		return nil, errors.New("submission target is required")
	}

	policy := s.Signature.normalized()
	if policy.Mode != SignatureNone && strings.TrimSpace(signature) == "" {
		return nil, fmt.Errorf("%w: signature is required in %s mode", ErrInvalidDocument, policy.Mode)
	}

	requestedAt := s.now()
	permit, err := s.Limiter.Acquire(ctx)
	if err != nil {
		s.record(ctx, Classify(err), 0, requestedAt, requestedAt)
		return nil, err
	}
	admittedAt := s.now()

	serializer := s.serializer()
	serialized, err := serializer.Marshal(doc)
	if err != nil {
		s.record(ctx, core.OutcomeInvalid, 0, requestedAt, admittedAt)
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	body, headers, err := buildPayload(policy, doc, serialized, signature)
	if err != nil {
		s.record(ctx, core.OutcomeInvalid, 0, requestedAt, admittedAt)
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	resp, err := s.Transport.Do(ctx, &transport.Request{
		URL:         target,
		ContentType: serializer.ContentType(),
		Headers:     headers,
		Body:        body,
	})
	if err != nil {
		s.record(ctx, core.OutcomeTransportError, 0, requestedAt, admittedAt)
		return nil, &TransportFailureError{Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		s.record(ctx, core.OutcomeRejected, resp.StatusCode, requestedAt, admittedAt)
		return nil, &RemoteRejectedError{
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			RetryAfter: resp.RetryAfter,
		}
	}

	s.record(ctx, core.OutcomeAccepted, resp.StatusCode, requestedAt, admittedAt)
	return &core.Receipt{
		SubmissionID: uuid.New().String(),
		Target:       target,
		StatusCode:   resp.StatusCode,
		Body:         resp.Body,
		Window:       permit.Window,
		RequestedAt:  requestedAt,
		AdmittedAt:   admittedAt,
		CompletedAt:  s.now(),
		ToolVersion:  s.ToolVersion,
	}, nil
}

// Outcome summarises a Submit result for reporting.
func (s *Submitter) Outcome(source string, doc *core.Document, receipt *core.Receipt, err error) core.Outcome {
	outcome := core.Outcome{
		Source:      source,
		Status:      Classify(err),
		StatusCode:  StatusCode(receipt, err),
		Receipt:     receipt,
		CompletedAt: s.now(),
	}
	if doc != nil {
		outcome.DocID = doc.DocID
	}
	if err != nil {
		outcome.Err = err
		outcome.Message = err.Error()
		var rejected *RemoteRejectedError
		if errors.As(err, &rejected) && strings.TrimSpace(rejected.Body) != "" {
			outcome.Message = fmt.Sprintf("%s: %s", err.Error(), strings.TrimSpace(rejected.Body))
		}
	}
	return outcome
}

func (s *Submitter) record(ctx context.Context, outcome core.OutcomeStatus, statusCode int, requestedAt, admittedAt time.Time) {
	if s.Stats == nil {
		return
	}
	// Best effort: a stats failure never fails the submission.
	_ = s.Stats.Record(context.WithoutCancel(ctx), stats.Event{
		Outcome:    outcome,
		StatusCode: statusCode,
		Waited:     admittedAt.Sub(requestedAt),
		At:         s.now(),
	})
}

func (s *Submitter) serializer() codec.Serializer {
	if s.Serializer != nil {
		return s.Serializer
	}
	return codec.JSON{}
}

func (s *Submitter) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}
