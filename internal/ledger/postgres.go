package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists hash-chained entries in PostgreSQL. Per-voter
// append ordering is enforced with a transaction-scoped advisory lock on the
// voter's chain, so unrelated voters append concurrently.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

const entryColumns = `sequence, voter_uuid, voter_id, booth_id, step, timestamp, payload_hash, previous_hash`

// Append assigns the next sequence for the voter's chain inside its own
// transaction.
func (l *PostgresLedger) Append(ctx context.Context, entry Entry) (Entry, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	out, err := l.AppendTx(ctx, tx, entry)
	if err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return out, nil
}

// AppendTx appends inside a caller-managed transaction, so the terminal vote
// step can land the ledger insert, the voter flag and the session upsert as
// one unit.
func (l *PostgresLedger) AppendTx(ctx context.Context, tx pgx.Tx, entry Entry) (Entry, error) {
	if !entry.Step.Valid() {
		return Entry{}, ErrUnknownStep
	}

	// Serialize appends for this voter only.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, entry.VoterUUID); err != nil {
		return Entry{}, err
	}

	var (
		lastSeq  int
		lastHash string
		lastStep Step
	)
	row := tx.QueryRow(ctx, `SELECT sequence, payload_hash, step FROM ledger_entries
        WHERE voter_uuid = $1 ORDER BY sequence DESC LIMIT 1`, entry.VoterUUID)
	switch err := row.Scan(&lastSeq, &lastHash, &lastStep); {
	case errors.Is(err, pgx.ErrNoRows):
		lastHash = RootHash
	case err != nil:
		return Entry{}, err
	case lastStep == StepVoteCast && entry.Step == StepVoteCast:
		return Entry{}, ErrDuplicateVoteCast
	}

	entry.Sequence = lastSeq + 1
	entry.Timestamp = normalizeTimestamp(entry.Timestamp)
	entry.PreviousHash = lastHash
	entry.PayloadHash = entry.ComputeHash()

	if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries (`+entryColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.Sequence, entry.VoterUUID, entry.VoterID, entry.BoothID,
		entry.Step, entry.Timestamp, entry.PayloadHash, entry.PreviousHash); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Entries returns a voter's chain in sequence order.
func (l *PostgresLedger) Entries(ctx context.Context, voterUUID string) ([]Entry, error) {
	rows, err := l.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
        WHERE voter_uuid = $1 ORDER BY sequence`, voterUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// All returns every entry ordered by voter then sequence.
func (l *PostgresLedger) All(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
        ORDER BY voter_uuid, sequence`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// VerifyIntegrity replays the voter's chain against the stored hashes.
func (l *PostgresLedger) VerifyIntegrity(ctx context.Context, voterUUID string) (IntegrityReport, error) {
	entries, err := l.Entries(ctx, voterUUID)
	if err != nil {
		return IntegrityReport{}, err
	}
	return verifyChain(voterUUID, entries), nil
}

// CountSteps counts booth entries of a step recorded at or after since.
func (l *PostgresLedger) CountSteps(ctx context.Context, boothID string, step Step, since time.Time) (int, error) {
	var count int
	err := l.db.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries
        WHERE booth_id = $1 AND step = $2 AND ($3::timestamptz IS NULL OR timestamp >= $3)`,
		boothID, step, nullableTime(since)).Scan(&count)
	return count, err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.Sequence, &entry.VoterUUID, &entry.VoterID, &entry.BoothID,
			&entry.Step, &entry.Timestamp, &entry.PayloadHash, &entry.PreviousHash); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
