package directory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrVoterNotFound indicates no voter matches the given identifier.
	ErrVoterNotFound = errors.New("voter not found")
	// ErrBoothNotFound indicates no booth matches the given identifier.
	ErrBoothNotFound = errors.New("booth not found")
	// ErrVoterExists indicates a voter with the same voter ID is already enrolled.
	ErrVoterExists = errors.New("voter already exists")
	// ErrAlreadyVoted indicates the hasVoted flag was already set. The flag
	// is monotonic; it is never cleared once set.
	ErrAlreadyVoted = errors.New("voter has already voted")
)

// Repository persists voter and booth master records.
type Repository interface {
	CreateBooth(ctx context.Context, booth Booth) error
	CreateVoter(ctx context.Context, voter Voter) error
	FindVoter(ctx context.Context, voterID string) (Voter, error)
	FindVoterByUUID(ctx context.Context, uuid string) (Voter, error)
	FindBooth(ctx context.Context, boothID string) (Booth, error)
	ListBooths(ctx context.Context) ([]Booth, error)
	ListVotersByBooth(ctx context.Context, boothID string) ([]Voter, error)
	MarkVoted(ctx context.Context, uuid string, at time.Time) error
	StoreFaceTemplate(ctx context.Context, uuid string, template []byte) error
	StoreIrisTemplate(ctx context.Context, uuid string, template []byte) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed directory repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateBooth inserts a polling booth.
func (r *PostgresRepository) CreateBooth(ctx context.Context, booth Booth) error {
	_, err := r.db.Exec(ctx, `INSERT INTO polling_booths (id, location, capacity, created_at)
        VALUES ($1, $2, $3, $4)`, booth.ID, booth.Location, booth.Capacity, booth.CreatedAt.UTC())
	return err
}

// CreateVoter inserts a voter record.
func (r *PostgresRepository) CreateVoter(ctx context.Context, voter Voter) error {
	_, err := r.db.Exec(ctx, `INSERT INTO voters
        (voter_id, uuid, name, age, address, phone, booth_id, face_template, iris_template, has_voted, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10)`,
		voter.VoterID, voter.UUID, voter.Name, voter.Age, voter.Address, voter.Phone,
		voter.BoothID, voter.FaceTemplate, voter.IrisTemplate, voter.CreatedAt.UTC())
	return err
}

const voterColumns = `voter_id, uuid, name, age, address, phone, booth_id,
    face_template, iris_template, has_voted, voted_at, created_at`

// FindVoter fetches a voter by voter ID.
func (r *PostgresRepository) FindVoter(ctx context.Context, voterID string) (Voter, error) {
	row := r.db.QueryRow(ctx, `SELECT `+voterColumns+` FROM voters WHERE voter_id = $1`, voterID)
	return scanVoter(row)
}

// FindVoterByUUID fetches a voter by session UUID.
func (r *PostgresRepository) FindVoterByUUID(ctx context.Context, uuid string) (Voter, error) {
	row := r.db.QueryRow(ctx, `SELECT `+voterColumns+` FROM voters WHERE uuid = $1`, uuid)
	return scanVoter(row)
}

// FindBooth fetches a booth by identifier.
func (r *PostgresRepository) FindBooth(ctx context.Context, boothID string) (Booth, error) {
	row := r.db.QueryRow(ctx, `SELECT id, location, capacity, created_at FROM polling_booths WHERE id = $1`, boothID)
	var booth Booth
	if err := row.Scan(&booth.ID, &booth.Location, &booth.Capacity, &booth.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booth{}, ErrBoothNotFound
		}
		return Booth{}, err
	}
	return booth, nil
}

// ListBooths returns all polling booths.
func (r *PostgresRepository) ListBooths(ctx context.Context) ([]Booth, error) {
	rows, err := r.db.Query(ctx, `SELECT id, location, capacity, created_at FROM polling_booths ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var booths []Booth
	for rows.Next() {
		var booth Booth
		if err := rows.Scan(&booth.ID, &booth.Location, &booth.Capacity, &booth.CreatedAt); err != nil {
			return nil, err
		}
		booths = append(booths, booth)
	}
	return booths, rows.Err()
}

// ListVotersByBooth returns the voters assigned to a booth.
func (r *PostgresRepository) ListVotersByBooth(ctx context.Context, boothID string) ([]Voter, error) {
	rows, err := r.db.Query(ctx, `SELECT `+voterColumns+` FROM voters WHERE booth_id = $1 ORDER BY voter_id`, boothID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var voters []Voter
	for rows.Next() {
		voter, err := scanVoter(rows)
		if err != nil {
			return nil, err
		}
		voters = append(voters, voter)
	}
	return voters, rows.Err()
}

const markVotedSQL = `UPDATE voters SET has_voted = true, voted_at = $1
        WHERE uuid = $2 AND has_voted = false`

// MarkVoted flips the hasVoted flag. The WHERE clause keeps the flag
// monotonic even under concurrent casts.
func (r *PostgresRepository) MarkVoted(ctx context.Context, uuid string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, markVotedSQL, at.UTC(), uuid)
	if err != nil {
		return err
	}
	return r.checkMarkVoted(ctx, cmd, uuid)
}

// MarkVotedTx is MarkVoted inside a caller-managed transaction, for the
// terminal vote commit.
func (r *PostgresRepository) MarkVotedTx(ctx context.Context, tx pgx.Tx, uuid string, at time.Time) error {
	cmd, err := tx.Exec(ctx, markVotedSQL, at.UTC(), uuid)
	if err != nil {
		return err
	}
	return r.checkMarkVoted(ctx, cmd, uuid)
}

func (r *PostgresRepository) checkMarkVoted(ctx context.Context, cmd pgconn.CommandTag, uuid string) error {
	if cmd.RowsAffected() == 0 {
		if _, err := r.FindVoterByUUID(ctx, uuid); err != nil {
			return err
		}
		return ErrAlreadyVoted
	}
	return nil
}

// StoreFaceTemplate saves the first captured face template for a voter.
func (r *PostgresRepository) StoreFaceTemplate(ctx context.Context, uuid string, template []byte) error {
	cmd, err := r.db.Exec(ctx, `UPDATE voters SET face_template = $1
        WHERE uuid = $2 AND face_template IS NULL`, template, uuid)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.FindVoterByUUID(ctx, uuid); err != nil {
			return err
		}
	}
	return nil
}

// StoreIrisTemplate saves the first captured iris template for a voter.
func (r *PostgresRepository) StoreIrisTemplate(ctx context.Context, uuid string, template []byte) error {
	cmd, err := r.db.Exec(ctx, `UPDATE voters SET iris_template = $1
        WHERE uuid = $2 AND iris_template IS NULL`, template, uuid)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.FindVoterByUUID(ctx, uuid); err != nil {
			return err
		}
	}
	return nil
}

func scanVoter(row pgx.Row) (Voter, error) {
	var voter Voter
	err := row.Scan(&voter.VoterID, &voter.UUID, &voter.Name, &voter.Age, &voter.Address,
		&voter.Phone, &voter.BoothID, &voter.FaceTemplate, &voter.IrisTemplate,
		&voter.HasVoted, &voter.VotedAt, &voter.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voter{}, ErrVoterNotFound
		}
		return Voter{}, err
	}
	return voter, nil
}
