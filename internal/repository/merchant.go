package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

const merchantColumns = `id, name, currency, status, created_at`

type MerchantRepository struct {
	db *sql.DB
}

func NewMerchantRepository(db *sql.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

func (r *MerchantRepository) Create(ctx context.Context, tx *sql.Tx, m *domain.Merchant) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO merchants (id, name, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Name, m.Currency, m.Status, m.CreatedAt,
	)
	if err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("Create: %w", domain.ErrMerchantExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *MerchantRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, id,
	)
	m, err := scanMerchant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return m, nil
}

// LockForUpdate takes the per-merchant row lock every writing transaction
// starts with.
func (r *MerchantRepository) LockForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Merchant, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+merchantColumns+` FROM merchants WHERE id = $1 FOR UPDATE`, id,
	)
	m, err := scanMerchant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("LockForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("LockForUpdate: %w", err)
	}
	return m, nil
}

func scanMerchant(s scanner) (*domain.Merchant, error) {
	var m domain.Merchant
	if err := s.Scan(&m.ID, &m.Name, &m.Currency, &m.Status, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
