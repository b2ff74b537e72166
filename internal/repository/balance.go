package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

const balanceColumns = `merchant_id, currency, available_balance, total_collected,
	total_withdrawn, pending_withdrawals_total, version, updated_at`

type BalanceRepository struct {
	db *sql.DB
}

func NewBalanceRepository(db *sql.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) Create(ctx context.Context, tx *sql.Tx, b *domain.Balance) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO merchant_balances (
			merchant_id, currency, available_balance, total_collected,
			total_withdrawn, pending_withdrawals_total, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.MerchantID, b.Currency, b.AvailableBalance, b.TotalCollected,
		b.TotalWithdrawn, b.PendingWithdrawalsTotal, b.Version, b.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("Create: %w", domain.ErrConflict)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// GetByMerchantID reads the four counters from one row.
func (r *BalanceRepository) GetByMerchantID(ctx context.Context, merchantID uuid.UUID) (*domain.Balance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM merchant_balances WHERE merchant_id = $1`, merchantID,
	)
	b, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByMerchantID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByMerchantID: %w", err)
	}
	return b, nil
}

func (r *BalanceRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID) (*domain.Balance, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM merchant_balances WHERE merchant_id = $1 FOR UPDATE`, merchantID,
	)
	b, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return b, nil
}

// Update writes b if the stored version is b.Version-1.
func (r *BalanceRepository) Update(ctx context.Context, tx *sql.Tx, b *domain.Balance) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE merchant_balances SET
			available_balance = $1, total_collected = $2, total_withdrawn = $3,
			pending_withdrawals_total = $4, version = $5, updated_at = $6
		WHERE merchant_id = $7 AND version = $8`,
		b.AvailableBalance, b.TotalCollected, b.TotalWithdrawn,
		b.PendingWithdrawalsTotal, b.Version, b.UpdatedAt,
		b.MerchantID, b.Version-1,
	)
	if err != nil {
		if IsCheckViolation(err) {
			return fmt.Errorf("Update: %w", domain.ErrLedgerIntegrity)
		}
		return fmt.Errorf("Update: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Update: %w", domain.ErrVersionConflict)
	}
	return nil
}

func scanBalance(s scanner) (*domain.Balance, error) {
	var b domain.Balance
	err := s.Scan(
		&b.MerchantID, &b.Currency, &b.AvailableBalance, &b.TotalCollected,
		&b.TotalWithdrawn, &b.PendingWithdrawalsTotal, &b.Version, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
