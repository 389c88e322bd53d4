package stats

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	total     int64
	byOutcome map[string]int64
	byStatus  map[string]int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byOutcome: make(map[string]int64),
		byStatus:  make(map[string]int64),
	}
}

func (s *MemoryStore) Record(_ context.Context, ev Event) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.byOutcome[outcomeField(ev)]++
	if ev.StatusCode > 0 {
		s.byStatus[strconv.Itoa(ev.StatusCode)]++
	}
	return nil
}

func (s *MemoryStore) Summary(_ context.Context) (Summary, error) {
	if s == nil {
		return Summary{ByOutcome: map[string]int64{}}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{
		Total:     s.total,
		ByOutcome: make(map[string]int64, len(s.byOutcome)),
		ByStatus:  make(map[string]int64, len(s.byStatus)),
	}
	for key, value := range s.byOutcome {
		summary.ByOutcome[key] = value
	}
	for key, value := range s.byStatus {
		summary.ByStatus[key] = value
	}
	return summary, nil
}
