package verification

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/votegate/votegate/internal/directory"
	"github.com/votegate/votegate/internal/ledger"
)

// VoteCommitter applies the terminal step's three writes as one unit: the
// vote_cast ledger entry, the voter's hasVoted flag and the session record.
// A partial commit would leave a vote_cast entry for a voter still marked
// unvoted, and a retry would then trip the ledger's duplicate guard before
// the flag could ever be set.
type VoteCommitter interface {
	CommitVote(ctx context.Context, entry ledger.Entry, session Session) (ledger.Entry, error)
}

// PostgresVoteCommitter runs the terminal writes in a single transaction.
// The ledger append takes the per-voter advisory lock first, so the voter
// update and session upsert ride under the same serialization.
type PostgresVoteCommitter struct {
	db       *pgxpool.Pool
	ledger   *ledger.PostgresLedger
	voters   *directory.PostgresRepository
	sessions *PostgresSessionStore
}

// NewPostgresVoteCommitter wires the transactional terminal-step committer.
func NewPostgresVoteCommitter(db *pgxpool.Pool, led *ledger.PostgresLedger, voters *directory.PostgresRepository, sessions *PostgresSessionStore) *PostgresVoteCommitter {
	return &PostgresVoteCommitter{db: db, ledger: led, voters: voters, sessions: sessions}
}

// CommitVote appends the vote_cast entry, marks the voter voted and saves
// the terminal session, all in one transaction.
func (c *PostgresVoteCommitter) CommitVote(ctx context.Context, entry ledger.Entry, session Session) (ledger.Entry, error) {
	tx, err := c.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ledger.Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	out, err := c.ledger.AppendTx(ctx, tx, entry)
	if err != nil {
		return ledger.Entry{}, err
	}
	if err := c.voters.MarkVotedTx(ctx, tx, entry.VoterUUID, out.Timestamp); err != nil {
		return ledger.Entry{}, err
	}
	if err := c.sessions.SaveTx(ctx, tx, session); err != nil {
		return ledger.Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Entry{}, err
	}
	return out, nil
}
