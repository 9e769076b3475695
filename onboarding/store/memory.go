package store

import (
	"context"
	"sort"
	"sync"

	"github.com/m3rciful/onboardbot/onboarding"
)

// Memory keeps records in process memory. It is used in tests and for
// ephemeral development runs.
type Memory struct {
	mu      sync.RWMutex
	records map[int64]onboarding.Record
	clock   Clock
}

// NewMemory constructs an empty in-memory store.
func NewMemory(clock Clock) *Memory {
	return &Memory{records: make(map[int64]onboarding.Record), clock: clock}
}

// Get returns the record for a user if it exists, otherwise a default record.
func (m *Memory) Get(_ context.Context, userID int64) (onboarding.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.records[userID]; ok {
		return rec, nil
	}
	return onboarding.NewRecord(userID), nil
}

// Upsert merges p into the user's record, creating it if necessary.
func (m *Memory) Upsert(_ context.Context, userID int64, p onboarding.Patch) (onboarding.Record, error) {
	if err := p.Validate(); err != nil {
		return onboarding.Record{}, persistErr("upsert", userID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[userID]
	if !ok {
		rec = onboarding.NewRecord(userID)
	}
	rec = p.Apply(rec)
	rec.UpdatedAt = m.clock.now()
	m.records[userID] = rec
	return rec, nil
}

// ListByState returns the records in st ordered by user id.
func (m *Memory) ListByState(_ context.Context, st onboarding.State) ([]onboarding.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []onboarding.Record
	for _, rec := range m.records {
		if rec.State == st {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Len reports how many users have been persisted.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

var _ Store = (*Memory)(nil)
