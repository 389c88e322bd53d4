package core

import "time"

// OutcomeStatus classifies how a single submission ended.
type OutcomeStatus string

const (
	OutcomeAccepted       OutcomeStatus = "accepted"
	OutcomeRejected       OutcomeStatus = "rejected"
	OutcomeTransportError OutcomeStatus = "transport_error"
	OutcomeCancelled      OutcomeStatus = "cancelled"
	OutcomeLimiterClosed  OutcomeStatus = "limiter_closed"
	OutcomeInvalid        OutcomeStatus = "invalid"
)

// Receipt captures a successful registry response and how it was obtained.
type Receipt struct {
	SubmissionID string    `json:"submission_id"`
	Target       string    `json:"target"`
	StatusCode   int       `json:"status_code"`
	Body         string    `json:"body"`
	Window       uint64    `json:"window"`
	RequestedAt  time.Time `json:"requested_at"`
	AdmittedAt   time.Time `json:"admitted_at"`
	CompletedAt  time.Time `json:"completed_at"`
	ToolVersion  string    `json:"tool_version,omitempty"`
}

// Waited reports how long the submission was held by the rate limiter.
func (r *Receipt) Waited() time.Duration {
	if r == nil || r.AdmittedAt.IsZero() || r.RequestedAt.IsZero() {
		return 0
	}
	return r.AdmittedAt.Sub(r.RequestedAt)
}

// Outcome is the reportable result of one submission attempt.
type Outcome struct {
	Source      string        `json:"source"`
	DocID       string        `json:"doc_id,omitempty"`
	Status      OutcomeStatus `json:"status"`
	StatusCode  int           `json:"status_code,omitempty"`
	Message     string        `json:"message,omitempty"`
	Receipt     *Receipt      `json:"receipt,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`

	// Err is the failure behind a non-accepted outcome.
	Err error `json:"-"`
}

// Succeeded reports whether the registry accepted the document.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Status == OutcomeAccepted
}
