package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

type chain struct {
	mu      sync.Mutex
	entries []Entry
}

type inMemoryLedger struct {
	mu     sync.RWMutex
	chains map[string]*chain
}

// NewInMemory creates a concurrency-safe in-memory ledger. Each voter's
// chain carries its own lock so appends for unrelated voters never contend.
func NewInMemory() Ledger {
	return &inMemoryLedger{chains: make(map[string]*chain)}
}

func (l *inMemoryLedger) chainFor(voterUUID string) *chain {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.chains[voterUUID]
	if !ok {
		c = &chain{}
		l.chains[voterUUID] = c
	}
	return c
}

func (l *inMemoryLedger) Append(_ context.Context, entry Entry) (Entry, error) {
	if !entry.Step.Valid() {
		return Entry{}, ErrUnknownStep
	}

	c := l.chainFor(entry.VoterUUID)
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := RootHash
	if n := len(c.entries); n > 0 {
		last := c.entries[n-1]
		if last.Step == StepVoteCast && entry.Step == StepVoteCast {
			return Entry{}, ErrDuplicateVoteCast
		}
		previous = last.PayloadHash
	}

	entry.Sequence = len(c.entries) + 1
	entry.Timestamp = normalizeTimestamp(entry.Timestamp)
	entry.PreviousHash = previous
	entry.PayloadHash = entry.ComputeHash()

	c.entries = append(c.entries, entry)
	return entry, nil
}

func (l *inMemoryLedger) Entries(_ context.Context, voterUUID string) ([]Entry, error) {
	l.mu.RLock()
	c, ok := l.chains[voterUUID]
	l.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out, nil
}

func (l *inMemoryLedger) All(ctx context.Context) ([]Entry, error) {
	l.mu.RLock()
	uuids := make([]string, 0, len(l.chains))
	for uuid := range l.chains {
		uuids = append(uuids, uuid)
	}
	l.mu.RUnlock()
	sort.Strings(uuids)

	var all []Entry
	for _, uuid := range uuids {
		entries, err := l.Entries(ctx, uuid)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

func (l *inMemoryLedger) VerifyIntegrity(ctx context.Context, voterUUID string) (IntegrityReport, error) {
	entries, err := l.Entries(ctx, voterUUID)
	if err != nil {
		return IntegrityReport{}, err
	}
	return verifyChain(voterUUID, entries), nil
}

func (l *inMemoryLedger) CountSteps(ctx context.Context, boothID string, step Step, since time.Time) (int, error) {
	all, err := l.All(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, entry := range all {
		if entry.BoothID != boothID || entry.Step != step {
			continue
		}
		if !since.IsZero() && entry.Timestamp.Before(since) {
			continue
		}
		count++
	}
	return count, nil
}
