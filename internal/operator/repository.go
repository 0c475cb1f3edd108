package operator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrOperatorNotFound = errors.New("operator not found")
	ErrOperatorExists   = errors.New("operator already exists")
)

// Operator is a booth official allowed to use the administrative endpoints.
type Operator struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository persists operator accounts.
type Repository interface {
	Create(ctx context.Context, op Operator) error
	FindByUsername(ctx context.Context, username string) (Operator, error)
	List(ctx context.Context) ([]Operator, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, op Operator) error {
	_, err := r.db.Exec(ctx, `INSERT INTO operators (id, username, password_hash, role, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		op.ID, op.Username, op.PasswordHash, op.Role, op.CreatedAt.UTC())
	return err
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (Operator, error) {
	row := r.db.QueryRow(ctx, `SELECT id, username, password_hash, role, created_at
        FROM operators WHERE username = $1`, username)
	var op Operator
	if err := row.Scan(&op.ID, &op.Username, &op.PasswordHash, &op.Role, &op.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Operator{}, ErrOperatorNotFound
		}
		return Operator{}, err
	}
	return op, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Operator, error) {
	rows, err := r.db.Query(ctx, `SELECT id, username, password_hash, role, created_at FROM operators ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Operator
	for rows.Next() {
		var op Operator
		if err := rows.Scan(&op.ID, &op.Username, &op.PasswordHash, &op.Role, &op.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

type memoryRepository struct {
	mu        sync.RWMutex
	operators map[string]Operator
}

// NewMemoryRepository builds an in-memory operator store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{operators: make(map[string]Operator)}
}

func (r *memoryRepository) Create(_ context.Context, op Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.operators[op.Username]; ok {
		return ErrOperatorExists
	}
	r.operators[op.Username] = op
	return nil
}

func (r *memoryRepository) FindByUsername(_ context.Context, username string) (Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.operators[username]
	if !ok {
		return Operator{}, ErrOperatorNotFound
	}
	return op, nil
}

func (r *memoryRepository) List(_ context.Context) ([]Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Operator, 0, len(r.operators))
	for _, op := range r.operators {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
