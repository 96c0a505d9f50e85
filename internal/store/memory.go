// Package store provides the run record store substrates backing the
// bisection engine: an in-memory store for tests and examples, a
// directory-of-json-files store matching the layout used by CI side branches,
// and an embedded badger database for long histories.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/driftwatch/driftwatch/pkg/driftwatch"
)

// A Memory store keeps run records in memory. It is primarily useful for
// tests and examples.
type Memory struct {
	mu      sync.Mutex
	records []driftwatch.RunRecord
}

func NewMemory() *Memory {
	return &Memory{}
}

func (s *Memory) Append(record driftwatch.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
	sort.Slice(s.records, func(i, j int) bool {
		return s.records[i].Timestamp.Before(s.records[j].Timestamp)
	})
	return nil
}

func (s *Memory) ListBefore(t time.Time, limit int) ([]driftwatch.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []driftwatch.RunRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if !s.records[i].Timestamp.Before(t) {
			continue
		}
		result = append(result, s.records[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}
