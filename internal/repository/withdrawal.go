package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/lib/pq"
)

const withdrawalColumns = `id, merchant_id, payment_method_id, currency, amount,
	fee_percentage, fee_policy_version, fee, total_amount, status, reason,
	approval_notes, rejection_reason, failure_reason, transaction_reference,
	retry_count, requested_by, requested_at, processed_at, processed_by,
	updated_at, version`

type WithdrawalRepository struct {
	db *sql.DB
}

func NewWithdrawalRepository(db *sql.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO withdrawals (
			id, merchant_id, payment_method_id, currency, amount,
			fee_percentage, fee_policy_version, fee, total_amount, status, reason,
			approval_notes, rejection_reason, failure_reason, transaction_reference,
			retry_count, requested_by, requested_at, processed_at, processed_by,
			updated_at, version
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)`,
		w.ID, w.MerchantID, w.PaymentMethodID, w.Currency, w.Amount,
		w.FeePercentage, w.FeePolicyVersion, w.Fee, w.TotalAmount, w.Status, w.Reason,
		w.ApprovalNotes, w.RejectionReason, w.FailureReason, w.TransactionReference,
		w.RetryCount, w.RequestedBy, w.RequestedAt, w.ProcessedAt, w.ProcessedBy,
		w.UpdatedAt, w.Version,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id,
	)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return w, nil
}

func (r *WithdrawalRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Withdrawal, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id,
	)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return w, nil
}

// Update persists the mutable lifecycle fields if the stored version is
// w.Version-1.
func (r *WithdrawalRepository) Update(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE withdrawals SET
			status = $1, approval_notes = $2, rejection_reason = $3, failure_reason = $4,
			transaction_reference = $5, retry_count = $6, processed_at = $7, processed_by = $8,
			updated_at = $9, version = $10
		WHERE id = $11 AND version = $12`,
		w.Status, w.ApprovalNotes, w.RejectionReason, w.FailureReason,
		w.TransactionReference, w.RetryCount, w.ProcessedAt, w.ProcessedBy,
		w.UpdatedAt, w.Version,
		w.ID, w.Version-1,
	)
	if err != nil {
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

// HasInFlightForMethod reports whether any pending, approved or processing
// withdrawal references the payment method.
func (r *WithdrawalRepository) HasInFlightForMethod(ctx context.Context, tx *sql.Tx, paymentMethodID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM withdrawals WHERE payment_method_id = $1 AND status = ANY($2)
		)`,
		paymentMethodID, pq.Array(statusStrings(domain.InFlightWithdrawalStatuses)),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("HasInFlightForMethod: %w", err)
	}
	return exists, nil
}

func (r *WithdrawalRepository) List(ctx context.Context, f domain.WithdrawalFilter) ([]domain.Withdrawal, int, error) {
	var (
		where []string
		args  []any
	)
	if f.MerchantID != nil {
		args = append(args, *f.MerchantID)
		where = append(where, "merchant_id = $"+strconv.Itoa(len(args)))
	}
	if len(f.Statuses) > 0 {
		args = append(args, pq.Array(statusStrings(f.Statuses)))
		where = append(where, "status = ANY($"+strconv.Itoa(len(args))+")")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM withdrawals`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("List: count: %w", err)
	}

	// Merchant listings are newest first; the admin queue is oldest first.
	order := " ORDER BY requested_at DESC, id"
	if f.MerchantID == nil {
		order = " ORDER BY requested_at ASC, id"
	}
	args = append(args, f.Limit, f.Offset)
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals` + clause + order +
		" LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var out []domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("List: scan: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("List: rows: %w", err)
	}
	return out, total, nil
}

func (r *WithdrawalRepository) Stats(ctx context.Context, merchantID uuid.UUID, since time.Time) ([]domain.WithdrawalStatusStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status,
			COUNT(*), COALESCE(SUM(amount), 0), COALESCE(SUM(fee), 0),
			COUNT(*) FILTER (WHERE requested_at >= $2),
			COALESCE(SUM(amount) FILTER (WHERE requested_at >= $2), 0),
			COALESCE(SUM(fee) FILTER (WHERE requested_at >= $2), 0)
		FROM withdrawals WHERE merchant_id = $1 GROUP BY status`,
		merchantID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}
	defer rows.Close()

	var out []domain.WithdrawalStatusStats
	for rows.Next() {
		var s domain.WithdrawalStatusStats
		if err := rows.Scan(
			&s.Status,
			&s.AllTime.Count, &s.AllTime.Amount, &s.AllTime.Fee,
			&s.Today.Count, &s.Today.Amount, &s.Today.Fee,
		); err != nil {
			return nil, fmt.Errorf("Stats: scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Stats: rows: %w", err)
	}
	return out, nil
}

func statusStrings(statuses []domain.WithdrawalStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func scanWithdrawal(s scanner) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	err := s.Scan(
		&w.ID, &w.MerchantID, &w.PaymentMethodID, &w.Currency, &w.Amount,
		&w.FeePercentage, &w.FeePolicyVersion, &w.Fee, &w.TotalAmount, &w.Status, &w.Reason,
		&w.ApprovalNotes, &w.RejectionReason, &w.FailureReason, &w.TransactionReference,
		&w.RetryCount, &w.RequestedBy, &w.RequestedAt, &w.ProcessedAt, &w.ProcessedBy,
		&w.UpdatedAt, &w.Version,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
