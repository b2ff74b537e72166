package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

const paymentMethodColumns = `id, merchant_id, type, account_name, account_number,
	provider, bank_name, is_default, is_verified, verified_at, created_at, deleted_at`

type PaymentMethodRepository struct {
	db *sql.DB
}

func NewPaymentMethodRepository(db *sql.DB) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

func (r *PaymentMethodRepository) Create(ctx context.Context, tx *sql.Tx, pm *domain.PaymentMethod) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payment_methods (
			id, merchant_id, type, account_name, account_number,
			provider, bank_name, is_default, is_verified, verified_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		pm.ID, pm.MerchantID, pm.Type, pm.AccountName, pm.AccountNumber,
		pm.Provider, pm.BankName, pm.IsDefault, pm.IsVerified, pm.VerifiedAt, pm.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// GetByID returns a live method belonging to merchantID.
func (r *PaymentMethodRepository) GetByID(ctx context.Context, merchantID, id uuid.UUID) (*domain.PaymentMethod, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods
		WHERE id = $1 AND merchant_id = $2 AND deleted_at IS NULL`, id, merchantID,
	)
	pm, err := scanPaymentMethod(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return pm, nil
}

// GetAnyByID looks a method up without a merchant scope, including removed ones.
func (r *PaymentMethodRepository) GetAnyByID(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods WHERE id = $1`, id,
	)
	pm, err := scanPaymentMethod(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetAnyByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetAnyByID: %w", err)
	}
	return pm, nil
}

func (r *PaymentMethodRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, merchantID, id uuid.UUID) (*domain.PaymentMethod, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods
		WHERE id = $1 AND merchant_id = $2 AND deleted_at IS NULL FOR UPDATE`, id, merchantID,
	)
	pm, err := scanPaymentMethod(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return pm, nil
}

func (r *PaymentMethodRepository) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods
		WHERE merchant_id = $1 AND deleted_at IS NULL
		ORDER BY is_default DESC, created_at DESC`, merchantID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByMerchant: %w", err)
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByMerchant: scan: %w", err)
		}
		methods = append(methods, *pm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByMerchant: rows: %w", err)
	}
	return methods, nil
}

func (r *PaymentMethodRepository) CountActive(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_methods WHERE merchant_id = $1 AND deleted_at IS NULL`, merchantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountActive: %w", err)
	}
	return n, nil
}

// SetDefault clears the merchant's current default and marks id in one
// statement pair. Callers hold the merchant lock.
func (r *PaymentMethodRepository) SetDefault(ctx context.Context, tx *sql.Tx, merchantID, id uuid.UUID) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE payment_methods SET is_default = false
		WHERE merchant_id = $1 AND is_default AND id <> $2`, merchantID, id,
	); err != nil {
		return fmt.Errorf("SetDefault: clear: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE payment_methods SET is_default = true
		WHERE id = $1 AND merchant_id = $2 AND deleted_at IS NULL`, id, merchantID,
	)
	if err != nil {
		return fmt.Errorf("SetDefault: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetDefault: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SetDefault: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *PaymentMethodRepository) SoftDelete(ctx context.Context, tx *sql.Tx, merchantID, id uuid.UUID, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_methods SET deleted_at = $1, is_default = false
		WHERE id = $2 AND merchant_id = $3 AND deleted_at IS NULL`, at, id, merchantID,
	)
	if err != nil {
		return fmt.Errorf("SoftDelete: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SoftDelete: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SoftDelete: %w", domain.ErrNotFound)
	}
	return nil
}

// PromoteLatest makes the most recently created live method the default and
// returns its id, or nil when the merchant has none left.
func (r *PaymentMethodRepository) PromoteLatest(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID) (*uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx,
		`UPDATE payment_methods SET is_default = true
		WHERE id = (
			SELECT id FROM payment_methods
			WHERE merchant_id = $1 AND deleted_at IS NULL
			ORDER BY created_at DESC, id DESC LIMIT 1
		)
		RETURNING id`, merchantID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("PromoteLatest: %w", err)
	}
	return &id, nil
}

func (r *PaymentMethodRepository) SetVerified(ctx context.Context, tx *sql.Tx, id uuid.UUID, verified bool, at *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_methods SET is_verified = $1, verified_at = $2 WHERE id = $3`,
		verified, at, id,
	)
	if err != nil {
		return fmt.Errorf("SetVerified: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetVerified: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SetVerified: %w", domain.ErrNotFound)
	}
	return nil
}

func scanPaymentMethod(s scanner) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := s.Scan(
		&pm.ID, &pm.MerchantID, &pm.Type, &pm.AccountName, &pm.AccountNumber,
		&pm.Provider, &pm.BankName, &pm.IsDefault, &pm.IsVerified, &pm.VerifiedAt,
		&pm.CreatedAt, &pm.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pm, nil
}
