package fraud

import (
	"context"
	"time"
)

// Kind classifies a detected policy violation.
type Kind string

const (
	KindDuplicateVote    Kind = "duplicate_vote"
	KindIdentityMismatch Kind = "identity_mismatch"
	KindOutOfOrderStep   Kind = "out_of_order_step"
	KindBoothMismatch    Kind = "booth_mismatch"
)

// Event is an immutable record of a policy violation, kept independently of
// the verification ledger.
type Event struct {
	ID        string    `json:"id"`
	VoterID   string    `json:"voter_id"`
	BoothID   string    `json:"booth_id"`
	Kind      Kind      `json:"kind"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// Monitor records and serves fraud events. Record is append-only and fails
// only on storage unavailability; that failure is surfaced, never swallowed.
type Monitor interface {
	Record(ctx context.Context, kind Kind, voterID, boothID, details string) (Event, error)
	ListByVoter(ctx context.Context, voterID string) ([]Event, error)
	// ListRecent returns events within the window; a non-positive window
	// returns everything.
	ListRecent(ctx context.Context, window time.Duration) ([]Event, error)
	Count(ctx context.Context) (int, error)
}
