package verification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/votegate/votegate/internal/ledger"
)

// ErrSessionNotFound indicates no verification session exists for the voter.
var ErrSessionNotFound = errors.New("verification session not found")

// Session is the per-voter verification state machine record. Flags are
// monotonic: once a step passes its flag is never reset. A session becomes
// terminal when VoteCast is set and is never deleted afterwards.
type Session struct {
	VoterUUID string
	VoterID   string
	BoothID   string

	IDVerified   bool
	FaceVerified bool
	IrisVerified bool
	VoteCast     bool

	StartedAt   time.Time
	CompletedAt *time.Time
	VoteCastAt  *time.Time
}

// NextStep returns the only step the session will currently accept. ok is
// false once the session is terminal.
func (s Session) NextStep() (ledger.Step, bool) {
	switch {
	case s.VoteCast:
		return "", false
	case s.IrisVerified:
		return ledger.StepVoteCast, true
	case s.FaceVerified:
		return ledger.StepIrisVerified, true
	case s.IDVerified:
		return ledger.StepFaceVerified, true
	default:
		return ledger.StepIDVerified, true
	}
}

// SessionStore persists verification sessions keyed by voter UUID.
type SessionStore interface {
	Get(ctx context.Context, voterUUID string) (Session, error)
	Save(ctx context.Context, session Session) error
}

type memorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemorySessionStore builds an in-memory session store for development and tests.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{sessions: make(map[string]Session)}
}

func (s *memorySessionStore) Get(_ context.Context, voterUUID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[voterUUID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *memorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.VoterUUID] = session
	return nil
}

// PostgresSessionStore persists sessions in PostgreSQL.
type PostgresSessionStore struct {
	db *pgxpool.Pool
}

// NewPostgresSessionStore builds a Postgres-backed session store.
func NewPostgresSessionStore(db *pgxpool.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

// Get fetches the session for a voter.
func (s *PostgresSessionStore) Get(ctx context.Context, voterUUID string) (Session, error) {
	row := s.db.QueryRow(ctx, `SELECT voter_uuid, voter_id, booth_id,
        id_verified, face_verified, iris_verified, vote_cast,
        started_at, completed_at, vote_cast_at
        FROM verification_sessions WHERE voter_uuid = $1`, voterUUID)

	var session Session
	err := row.Scan(&session.VoterUUID, &session.VoterID, &session.BoothID,
		&session.IDVerified, &session.FaceVerified, &session.IrisVerified, &session.VoteCast,
		&session.StartedAt, &session.CompletedAt, &session.VoteCastAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return session, nil
}

const saveSessionSQL = `INSERT INTO verification_sessions
        (voter_uuid, voter_id, booth_id, id_verified, face_verified, iris_verified, vote_cast, started_at, completed_at, vote_cast_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (voter_uuid) DO UPDATE SET
            id_verified = EXCLUDED.id_verified,
            face_verified = EXCLUDED.face_verified,
            iris_verified = EXCLUDED.iris_verified,
            vote_cast = EXCLUDED.vote_cast,
            completed_at = EXCLUDED.completed_at,
            vote_cast_at = EXCLUDED.vote_cast_at`

// Save upserts the session row.
func (s *PostgresSessionStore) Save(ctx context.Context, session Session) error {
	_, err := s.db.Exec(ctx, saveSessionSQL, sessionArgs(session)...)
	return err
}

// SaveTx upserts inside a caller-managed transaction, for the terminal vote
// commit.
func (s *PostgresSessionStore) SaveTx(ctx context.Context, tx pgx.Tx, session Session) error {
	_, err := tx.Exec(ctx, saveSessionSQL, sessionArgs(session)...)
	return err
}

func sessionArgs(session Session) []any {
	return []any{
		session.VoterUUID, session.VoterID, session.BoothID,
		session.IDVerified, session.FaceVerified, session.IrisVerified, session.VoteCast,
		session.StartedAt.UTC(), session.CompletedAt, session.VoteCastAt,
	}
}
