package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

const outboxColumns = `id, topic, event_type, aggregate_id, payload, status,
	attempts, last_error, created_at, dispatched_at`

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *sql.Tx, e *domain.OutboxEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox_events (id, topic, event_type, aggregate_id, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Topic, e.EventType, e.AggregateID, []byte(e.Payload), e.Status, e.Attempts, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// GetPending claims up to limit pending rows for the life of tx. Rows held by
// another relay are skipped.
func (r *OutboxRepository) GetPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.OutboxEvent, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox_events
		WHERE status = $1 ORDER BY created_at LIMIT $2 FOR UPDATE SKIP LOCKED`,
		domain.OutboxStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("GetPending: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		var payload []byte
		if err := rows.Scan(
			&e.ID, &e.Topic, &e.EventType, &e.AggregateID, &payload, &e.Status,
			&e.Attempts, &e.LastError, &e.CreatedAt, &e.DispatchedAt,
		); err != nil {
			return nil, fmt.Errorf("GetPending: scan: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetPending: rows: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkDispatched(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE outbox_events SET status = $1, attempts = attempts + 1, dispatched_at = $2, last_error = NULL
		WHERE id = $3`,
		domain.OutboxStatusDispatched, at, id,
	)
	if err != nil {
		return fmt.Errorf("MarkDispatched: %w", err)
	}
	return nil
}

// MarkAttemptFailed records a publish failure. The row stays pending until
// maxAttempts is reached.
func (r *OutboxRepository) MarkAttemptFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, cause string, maxAttempts int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE outbox_events SET
			attempts = attempts + 1,
			last_error = $1,
			status = CASE WHEN attempts + 1 >= $2 THEN $3 ELSE status END
		WHERE id = $4`,
		cause, maxAttempts, domain.OutboxStatusFailed, id,
	)
	if err != nil {
		return fmt.Errorf("MarkAttemptFailed: %w", err)
	}
	return nil
}

func (r *OutboxRepository) CountByStatus(ctx context.Context, status domain.OutboxStatus) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE status = $1`, status,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountByStatus: %w", err)
	}
	return n, nil
}
