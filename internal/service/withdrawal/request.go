package withdrawal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/fee"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
)

// RequestWithdrawal snapshots the current fee policy, reserves the full
// amount and records a pending request. On insufficient funds nothing is
// written.
func (s *Service) RequestWithdrawal(ctx context.Context, in RequestInput) (*domain.Withdrawal, error) {
	log := logging.FromContext(ctx)

	if !in.Actor.CanAccessMerchant(in.MerchantID) {
		return nil, fmt.Errorf("RequestWithdrawal: %w", domain.ErrForbidden)
	}
	if in.Amount <= 0 {
		return nil, fmt.Errorf("RequestWithdrawal: %w", domain.ErrInvalidAmount)
	}

	pm, err := s.methods.GetByID(ctx, in.MerchantID, in.PaymentMethodID)
	if err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: payment method: %w", err)
	}
	if !pm.IsVerified {
		log.Warn("withdrawal requested to unverified payment method",
			"merchant_id", in.MerchantID,
			"payment_method_id", pm.ID,
		)
	}

	policy, err := s.fees.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: fee policy: %w", err)
	}
	breakdown, err := fee.Compute(in.Amount, *policy)
	if err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: begin tx: %w", err)
	}
	defer tx.Rollback()

	merchant, err := s.merchants.LockForUpdate(ctx, tx, in.MerchantID)
	if err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: %w", err)
	}
	if merchant.Status == domain.MerchantStatusSuspended {
		return nil, fmt.Errorf("RequestWithdrawal: %w", domain.ErrMerchantSuspended)
	}

	// Remove takes the same merchant lock, so the method read above may be
	// stale by now.
	pm, err = s.methods.GetForUpdate(ctx, tx, merchant.ID, pm.ID)
	if err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: payment method: %w", err)
	}

	now := s.now()
	w, err := domain.NewWithdrawal(merchant.ID, pm.ID, merchant.Currency, breakdown, in.Reason, in.Actor.ID, now)
	if err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: %w", err)
	}

	// The row goes in before the reservation so the ledger entry can
	// reference it; a failed reservation rolls both back.
	if err := s.withdrawals.Create(ctx, tx, w); err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: %w", err)
	}
	if _, err := s.ledger.Reserve(ctx, tx, merchant.ID, w.Amount, w.ID); err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"amount":             w.Amount,
		"fee":                w.Fee,
		"total_amount":       w.TotalAmount,
		"fee_percentage":     w.FeePercentage.String(),
		"fee_policy_version": w.FeePolicyVersion,
		"payment_method_id":  w.PaymentMethodID,
	})
	if err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: marshal payload: %w", err)
	}
	if err := s.events.Create(ctx, tx, &domain.WithdrawalEvent{
		ID:           uuid.New(),
		WithdrawalID: w.ID,
		EventType:    domain.WithdrawalEventCreate,
		ToStatus:     w.Status,
		Actor:        in.Actor.String(),
		Payload:      payload,
		CreatedAt:    now,
	}); err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: audit event: %w", err)
	}
	if err := s.publish(ctx, tx, "withdrawal.created", w, now); err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: commit: %w", err)
	}

	s.metrics.WithdrawalRequested(string(w.Currency), w.Amount)
	s.metrics.Transition(string(domain.WithdrawalEventCreate), string(w.Status))
	log.Info("withdrawal requested",
		"withdrawal_id", w.ID,
		"merchant_id", w.MerchantID,
		"amount", w.Amount,
		"fee", w.Fee,
		"fee_policy_version", w.FeePolicyVersion,
		"to", w.Status,
	)
	return w, nil
}
