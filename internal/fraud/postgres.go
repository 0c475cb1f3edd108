package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMonitor persists fraud events in PostgreSQL.
type PostgresMonitor struct {
	db *pgxpool.Pool
}

// NewPostgresMonitor constructs a Postgres-backed fraud monitor.
func NewPostgresMonitor(db *pgxpool.Pool) *PostgresMonitor {
	return &PostgresMonitor{db: db}
}

// Record appends a fraud event. Events are never updated or deleted.
func (m *PostgresMonitor) Record(ctx context.Context, kind Kind, voterID, boothID, details string) (Event, error) {
	event := Event{
		ID:        uuid.NewString(),
		VoterID:   voterID,
		BoothID:   boothID,
		Kind:      kind,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	_, err := m.db.Exec(ctx, `INSERT INTO fraud_events (id, voter_id, booth_id, kind, details, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.VoterID, event.BoothID, event.Kind, event.Details, event.Timestamp)
	if err != nil {
		return Event{}, err
	}
	return event, nil
}

// ListByVoter returns all events for the given voter ID, oldest first.
func (m *PostgresMonitor) ListByVoter(ctx context.Context, voterID string) ([]Event, error) {
	rows, err := m.db.Query(ctx, `SELECT id, voter_id, booth_id, kind, details, timestamp
        FROM fraud_events WHERE voter_id = $1 ORDER BY timestamp`, voterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		if err := rows.Scan(&event.ID, &event.VoterID, &event.BoothID, &event.Kind, &event.Details, &event.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// ListRecent returns events recorded within the window, oldest first.
func (m *PostgresMonitor) ListRecent(ctx context.Context, window time.Duration) ([]Event, error) {
	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().UTC().Add(-window)
	}
	rows, err := m.db.Query(ctx, `SELECT id, voter_id, booth_id, kind, details, timestamp
        FROM fraud_events WHERE timestamp >= $1 ORDER BY timestamp`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		if err := rows.Scan(&event.ID, &event.VoterID, &event.BoothID, &event.Kind, &event.Details, &event.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Count returns the total number of recorded events.
func (m *PostgresMonitor) Count(ctx context.Context) (int, error) {
	var count int
	err := m.db.QueryRow(ctx, `SELECT COUNT(*) FROM fraud_events`).Scan(&count)
	return count, err
}
