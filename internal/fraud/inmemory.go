package fraud

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryMonitor struct {
	mu     sync.RWMutex
	events []Event
}

// NewInMemory creates a concurrency-safe in-memory fraud monitor for
// development and tests.
func NewInMemory() Monitor {
	return &inMemoryMonitor{}
}

func (m *inMemoryMonitor) Record(_ context.Context, kind Kind, voterID, boothID, details string) (Event, error) {
	event := Event{
		ID:        uuid.NewString(),
		VoterID:   voterID,
		BoothID:   boothID,
		Kind:      kind,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return event, nil
}

func (m *inMemoryMonitor) ListByVoter(_ context.Context, voterID string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, event := range m.events {
		if event.VoterID == voterID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (m *inMemoryMonitor) ListRecent(_ context.Context, window time.Duration) ([]Event, error) {
	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().UTC().Add(-window)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, event := range m.events {
		if !event.Timestamp.Before(cutoff) {
			out = append(out, event)
		}
	}
	return out, nil
}

func (m *inMemoryMonitor) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events), nil
}
