package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

type BalanceCreditRepository struct {
	db *sql.DB
}

func NewBalanceCreditRepository(db *sql.DB) *BalanceCreditRepository {
	return &BalanceCreditRepository{db: db}
}

// Insert records the credit and reports whether it was new. A replay of an
// existing (merchant, source transaction) pair inserts nothing.
func (r *BalanceCreditRepository) Insert(ctx context.Context, tx *sql.Tx, c *domain.BalanceCredit) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO balance_credits (merchant_id, source_transaction_id, amount, collected_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (merchant_id, source_transaction_id) DO NOTHING`,
		c.MerchantID, c.SourceTransactionID, c.Amount, c.CollectedAt, c.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("Insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Insert: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *BalanceCreditRepository) Get(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID, sourceTransactionID string) (*domain.BalanceCredit, error) {
	var c domain.BalanceCredit
	err := tx.QueryRowContext(ctx,
		`SELECT merchant_id, source_transaction_id, amount, collected_at, created_at
		FROM balance_credits WHERE merchant_id = $1 AND source_transaction_id = $2`,
		merchantID, sourceTransactionID,
	).Scan(&c.MerchantID, &c.SourceTransactionID, &c.Amount, &c.CollectedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &c, nil
}
