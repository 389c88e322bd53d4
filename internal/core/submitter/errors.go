package submitter

import (
	"errors"
	"fmt"
	"time"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/ratelimit"
)

var (
	// ErrRemoteRejected matches any RemoteRejectedError.
	ErrRemoteRejected = errors.New("remote rejected submission")
	// ErrTransportFailure matches any TransportFailureError.
	ErrTransportFailure = errors.New("transport failure")
	// ErrInvalidDocument covers input that cannot be submitted at all.
	ErrInvalidDocument = errors.New("invalid document")
)

// RemoteRejectedError reports a non-200 registry response.
type RemoteRejectedError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("remote rejected submission: status %d", e.StatusCode)
}

func (e *RemoteRejectedError) Is(target error) bool {
	return target == ErrRemoteRejected
}

// TransportFailureError reports that the call did not complete.
type TransportFailureError struct {
	Cause error
}

func (e *TransportFailureError) Error() string {
	if e.Cause == nil {
		return ErrTransportFailure.Error()
	}
	return fmt.Sprintf("%s: %v", ErrTransportFailure, e.Cause)
}

func (e *TransportFailureError) Unwrap() error {
	return e.Cause
}

func (e *TransportFailureError) Is(target error) bool {
	return target == ErrTransportFailure
}

// Classify maps a Submit error to an outcome status.
func Classify(err error) core.OutcomeStatus {
	switch {
	case err == nil:
		return core.OutcomeAccepted
	case errors.Is(err, ErrRemoteRejected):
		return core.OutcomeRejected
	case errors.Is(err, ErrTransportFailure):
		return core.OutcomeTransportError
	case errors.Is(err, ratelimit.ErrLimiterClosed):
		return core.OutcomeLimiterClosed
	case errors.Is(err, ratelimit.ErrAcquireCancelled):
		return core.OutcomeCancelled
	default:
		return core.OutcomeInvalid
	}
}

// StatusCode extracts the registry status from a result, if any.
func StatusCode(receipt *core.Receipt, err error) int {
	if receipt != nil {
		return receipt.StatusCode
	}
	var rejected *RemoteRejectedError
	if errors.As(err, &rejected) {
		return rejected.StatusCode
	}
	return 0
}
