package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrUnknownStep indicates an append with a step outside the defined set.
	ErrUnknownStep = errors.New("unknown verification step")
	// ErrDuplicateVoteCast indicates a second vote_cast append for the same
	// voter. A voter's chain holds at most one terminal entry.
	ErrDuplicateVoteCast = errors.New("vote already recorded for voter")
)

// RootHash is the previous-hash sentinel for the first entry of a voter's chain.
var RootHash = strings.Repeat("0", 64)

// Step identifies one ordered stage of voter verification.
type Step string

const (
	StepIDVerified   Step = "id_verified"
	StepFaceVerified Step = "face_verified"
	StepIrisVerified Step = "iris_verified"
	StepVoteCast     Step = "vote_cast"
)

// Valid reports whether the step is one of the defined stages.
func (s Step) Valid() bool {
	switch s {
	case StepIDVerified, StepFaceVerified, StepIrisVerified, StepVoteCast:
		return true
	}
	return false
}

// Entry is one hash-chained, append-only record of a verification step.
// PayloadHash is the SHA-256 digest of the entry's canonicalized fields
// excluding both hash fields; PreviousHash is the PayloadHash of the prior
// entry in the same voter's chain, or RootHash for the first.
type Entry struct {
	Sequence     int       `json:"sequence"`
	VoterUUID    string    `json:"voter_uuid"`
	VoterID      string    `json:"voter_id"`
	BoothID      string    `json:"booth_id"`
	Step         Step      `json:"step"`
	Timestamp    time.Time `json:"timestamp"`
	PayloadHash  string    `json:"payload_hash"`
	PreviousHash string    `json:"previous_hash"`
}

// entryPayload fixes the serialized field order so hashing is deterministic.
// Struct fields marshal in declaration order, so no key sorting is needed.
type entryPayload struct {
	Sequence  int    `json:"sequence"`
	VoterUUID string `json:"voter_uuid"`
	VoterID   string `json:"voter_id"`
	BoothID   string `json:"booth_id"`
	Step      Step   `json:"step"`
	Timestamp string `json:"timestamp"`
}

// ComputeHash returns the canonical SHA-256 digest of the entry, excluding
// the hash fields themselves. Recomputing it over a stored entry must
// reproduce the stored PayloadHash; any mismatch means tampering.
func (e Entry) ComputeHash() string {
	payload := entryPayload{
		Sequence:  e.Sequence,
		VoterUUID: e.VoterUUID,
		VoterID:   e.VoterID,
		BoothID:   e.BoothID,
		Step:      e.Step,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// IntegrityReport is the outcome of replaying a voter's chain.
type IntegrityReport struct {
	VoterUUID      string `json:"voter_uuid"`
	Entries        int    `json:"entries"`
	Valid          bool   `json:"valid"`
	BrokenSequence int    `json:"broken_sequence,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Ledger is the append-only, hash-chained audit log of verification steps.
// Entries for the same voter are appended strictly in sequence order;
// appends for different voters proceed independently.
type Ledger interface {
	// Append assigns the next sequence number for the voter's chain,
	// computes the hash links and stores the completed entry.
	Append(ctx context.Context, entry Entry) (Entry, error)
	// Entries returns a voter's chain in sequence order.
	Entries(ctx context.Context, voterUUID string) ([]Entry, error)
	// All returns every entry across voters, ordered by voter then sequence.
	All(ctx context.Context) ([]Entry, error)
	// VerifyIntegrity recomputes every payload hash and checks chain
	// continuity, identifying the first broken entry.
	VerifyIntegrity(ctx context.Context, voterUUID string) (IntegrityReport, error)
	// CountSteps counts entries of the given step for a booth recorded at or
	// after the given time. A zero time counts the whole chain set.
	CountSteps(ctx context.Context, boothID string, step Step, since time.Time) (int, error)
}

// normalizeTimestamp forces UTC and microsecond precision before hashing.
// timestamptz keeps only microseconds, so hashing finer precision would
// break recomputation after a storage round trip.
func normalizeTimestamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Microsecond)
}

func verifyChain(voterUUID string, entries []Entry) IntegrityReport {
	report := IntegrityReport{VoterUUID: voterUUID, Entries: len(entries), Valid: true}
	previous := RootHash
	for i, entry := range entries {
		if entry.Sequence != i+1 {
			return broken(report, entry.Sequence, "sequence out of order")
		}
		if entry.PayloadHash != entry.ComputeHash() {
			return broken(report, entry.Sequence, "payload hash mismatch")
		}
		if entry.PreviousHash != previous {
			return broken(report, entry.Sequence, "chain link broken")
		}
		previous = entry.PayloadHash
	}
	return report
}

func broken(report IntegrityReport, sequence int, reason string) IntegrityReport {
	report.Valid = false
	report.BrokenSequence = sequence
	report.Reason = reason
	return report
}
