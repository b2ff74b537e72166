package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

const feePolicyColumns = `version, percentage, previous_percentage, updated_by, note, updated_at`

type FeePolicyRepository struct {
	db *sql.DB
}

func NewFeePolicyRepository(db *sql.DB) *FeePolicyRepository {
	return &FeePolicyRepository{db: db}
}

func (r *FeePolicyRepository) Current(ctx context.Context) (*domain.FeePolicy, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+feePolicyColumns+` FROM fee_policies ORDER BY version DESC LIMIT 1`,
	)
	p, err := scanFeePolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Current: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Current: %w", err)
	}
	return p, nil
}

// CurrentForUpdate locks the current version so concurrent updates serialise.
func (r *FeePolicyRepository) CurrentForUpdate(ctx context.Context, tx *sql.Tx) (*domain.FeePolicy, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+feePolicyColumns+` FROM fee_policies ORDER BY version DESC LIMIT 1 FOR UPDATE`,
	)
	p, err := scanFeePolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("CurrentForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("CurrentForUpdate: %w", err)
	}
	return p, nil
}

func (r *FeePolicyRepository) Create(ctx context.Context, tx *sql.Tx, p *domain.FeePolicy) error {
	var prev decimal.NullDecimal
	if p.PreviousPercentage != nil {
		prev = decimal.NewNullDecimal(*p.PreviousPercentage)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO fee_policies (version, percentage, previous_percentage, updated_by, note, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.Version, p.Percentage, prev, p.UpdatedBy, p.Note, p.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKey(err) {
			return fmt.Errorf("Create: %w", domain.ErrVersionConflict)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *FeePolicyRepository) History(ctx context.Context, limit int) ([]domain.FeePolicy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+feePolicyColumns+` FROM fee_policies ORDER BY version DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	defer rows.Close()

	var policies []domain.FeePolicy
	for rows.Next() {
		p, err := scanFeePolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("History: scan: %w", err)
		}
		policies = append(policies, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("History: rows: %w", err)
	}
	return policies, nil
}

func scanFeePolicy(s scanner) (*domain.FeePolicy, error) {
	var p domain.FeePolicy
	var prev decimal.NullDecimal
	if err := s.Scan(&p.Version, &p.Percentage, &prev, &p.UpdatedBy, &p.Note, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if prev.Valid {
		p.PreviousPercentage = &prev.Decimal
	}
	return &p, nil
}
