package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

const webhookEventColumns = `id, idempotency_key, event_type, payload, status,
	attempts, last_error, last_attempt, created_at`

type WebhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Create stores an inbound event. It reports false, with no error, when an
// event with the same provider id was already stored.
func (r *WebhookEventRepository) Create(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_events (
			id, idempotency_key, event_type, payload, status, attempts, last_attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		event.ID, event.IdempotencyKey, event.EventType, []byte(event.Payload),
		event.Status, event.Attempts, event.LastAttempt, event.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("Create: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Create: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *WebhookEventRepository) CountByStatus(ctx context.Context, status domain.WebhookEventStatus) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM webhook_events WHERE status = $1`, status,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountByStatus: %w", err)
	}
	return n, nil
}

// GetPending claims pending events for the life of tx. FOR UPDATE SKIP LOCKED
// keeps concurrent processors off the same rows.
func (r *WebhookEventRepository) GetPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.WebhookEvent, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events
		WHERE status = $1 ORDER BY created_at LIMIT $2 FOR UPDATE SKIP LOCKED`,
		domain.WebhookEventStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("GetPending: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("GetPending: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetPending: rows: %w", err)
	}
	return events, nil
}

func (r *WebhookEventRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.WebhookEventStatus, lastError *string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE webhook_events SET status = $1, attempts = attempts + 1, last_attempt = now(), last_error = $2
		WHERE id = $3`,
		status, lastError, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func scanWebhookEvent(s scanner) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	var payload []byte
	err := s.Scan(
		&e.ID, &e.IdempotencyKey, &e.EventType, &payload,
		&e.Status, &e.Attempts, &e.LastError, &e.LastAttempt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}
