package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

const ledgerColumns = `id, merchant_id, entry_type, amount, currency, withdrawal_id,
	source_transaction_id, available_after, pending_after, withdrawn_after,
	collected_after, created_at`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (
			id, merchant_id, entry_type, amount, currency, withdrawal_id,
			source_transaction_id, available_after, pending_after, withdrawn_after,
			collected_after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID, entry.MerchantID, entry.EntryType, entry.Amount, entry.Currency, entry.WithdrawalID,
		entry.SourceTransactionID, entry.AvailableAfter, entry.PendingAfter, entry.WithdrawnAfter,
		entry.CollectedAfter, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetByMerchantID(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE merchant_id = $1`, merchantID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByMerchantID: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE merchant_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		merchantID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByMerchantID: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("GetByMerchantID: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("GetByMerchantID: rows: %w", err)
	}
	return entries, total, nil
}

func (r *LedgerRepository) GetByWithdrawalID(ctx context.Context, withdrawalID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE withdrawal_id = $1 ORDER BY created_at`, withdrawalID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByWithdrawalID: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByWithdrawalID: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByWithdrawalID: rows: %w", err)
	}
	return entries, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var withdrawalID uuid.NullUUID
	err := s.Scan(
		&e.ID, &e.MerchantID, &e.EntryType, &e.Amount, &e.Currency, &withdrawalID,
		&e.SourceTransactionID, &e.AvailableAfter, &e.PendingAfter, &e.WithdrawnAfter,
		&e.CollectedAfter, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if withdrawalID.Valid {
		e.WithdrawalID = &withdrawalID.UUID
	}
	return &e, nil
}
