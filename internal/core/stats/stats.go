// Package stats keeps best-effort counters of submission outcomes.
package stats

import (
	"context"
	"time"

	"github.com/docgate/docgate/internal/core"
)

// Event records how one submission ended.
type Event struct {
	Outcome    core.OutcomeStatus
	StatusCode int
	Waited     time.Duration
	At         time.Time
}

// Recorder stores submission events. Callers treat errors as non-fatal.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Reader exposes aggregated counters.
type Reader interface {
	Summary(ctx context.Context) (Summary, error)
}

// Store records and summarises events.
type Store interface {
	Recorder
	Reader
}

// Summary aggregates counters since the store was created (memory) or since
// the prefix was first written (redis).
type Summary struct {
	Total     int64            `json:"total"`
	ByOutcome map[string]int64 `json:"by_outcome"`
	ByStatus  map[string]int64 `json:"by_status,omitempty"`
}

func outcomeField(ev Event) string {
	if ev.Outcome == "" {
		return "unknown"
	}
	return string(ev.Outcome)
}
