package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

const withdrawalEventColumns = `id, withdrawal_id, event_type, from_status, to_status, actor, payload, source_event_id, created_at`

type WithdrawalEventRepository struct {
	db *sql.DB
}

func NewWithdrawalEventRepository(db *sql.DB) *WithdrawalEventRepository {
	return &WithdrawalEventRepository{db: db}
}

func (r *WithdrawalEventRepository) Create(ctx context.Context, tx *sql.Tx, event *domain.WithdrawalEvent) error {
	var payload any
	if len(event.Payload) > 0 {
		payload = []byte(event.Payload)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO withdrawal_events (id, withdrawal_id, event_type, from_status, to_status, actor, payload, source_event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.WithdrawalID, event.EventType, event.FromStatus, event.ToStatus,
		event.Actor, payload, event.SourceEventID, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// HasSourceEvent reports whether an inbound event already produced a
// transition.
func (r *WithdrawalEventRepository) HasSourceEvent(ctx context.Context, tx *sql.Tx, sourceEventID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM withdrawal_events WHERE source_event_id = $1)`, sourceEventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("HasSourceEvent: %w", err)
	}
	return exists, nil
}

func (r *WithdrawalEventRepository) GetByWithdrawalID(ctx context.Context, withdrawalID uuid.UUID) ([]domain.WithdrawalEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+withdrawalEventColumns+` FROM withdrawal_events
		WHERE withdrawal_id = $1 ORDER BY created_at, id`, withdrawalID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByWithdrawalID: %w", err)
	}
	defer rows.Close()

	var events []domain.WithdrawalEvent
	for rows.Next() {
		e, err := scanWithdrawalEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByWithdrawalID: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByWithdrawalID: rows: %w", err)
	}
	return events, nil
}

func scanWithdrawalEvent(s scanner) (*domain.WithdrawalEvent, error) {
	var e domain.WithdrawalEvent
	var payload []byte
	err := s.Scan(
		&e.ID, &e.WithdrawalID, &e.EventType, &e.FromStatus, &e.ToStatus,
		&e.Actor, &payload, &e.SourceEventID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}
