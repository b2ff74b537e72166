package withdrawal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
)

func (s *Service) Approve(ctx context.Context, actor domain.Actor, id uuid.UUID, notes string) (*domain.Withdrawal, error) {
	return s.transition(ctx, id, domain.Transition{Event: domain.WithdrawalEventApprove, Actor: actor, Notes: notes})
}

func (s *Service) Reject(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (*domain.Withdrawal, error) {
	return s.transition(ctx, id, domain.Transition{Event: domain.WithdrawalEventReject, Actor: actor, Reason: reason})
}

func (s *Service) MarkProcessing(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Withdrawal, error) {
	return s.transition(ctx, id, domain.Transition{Event: domain.WithdrawalEventMarkProcessing, Actor: actor})
}

// Complete settles the reservation. Repeating it with the same reference
// returns the stored request unchanged.
func (s *Service) Complete(ctx context.Context, actor domain.Actor, id uuid.UUID, txRef string) (*domain.Withdrawal, error) {
	return s.transition(ctx, id, domain.Transition{Event: domain.WithdrawalEventComplete, Actor: actor, TxRef: txRef})
}

func (s *Service) Fail(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (*domain.Withdrawal, error) {
	return s.transition(ctx, id, domain.Transition{Event: domain.WithdrawalEventFail, Actor: actor, Reason: reason})
}

// RecordRetry notes a transient rail failure without leaving processing.
func (s *Service) RecordRetry(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (*domain.Withdrawal, error) {
	return s.transition(ctx, id, domain.Transition{Event: domain.WithdrawalEventRecordRetry, Actor: actor, Reason: reason})
}

// RecordRetryFromEvent is RecordRetry driven by a stored inbound event. An
// event that already produced a retry is not counted again.
func (s *Service) RecordRetryFromEvent(ctx context.Context, eventID, id uuid.UUID, reason string) (*domain.Withdrawal, error) {
	return s.transition(ctx, id, domain.Transition{
		Event:         domain.WithdrawalEventRecordRetry,
		Actor:         domain.SystemActor,
		Reason:        reason,
		SourceEventID: &eventID,
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, t domain.Transition) (*domain.Withdrawal, error) {
	log := logging.FromContext(ctx)
	op := eventOp(t.Event)

	if !t.Actor.IsAdmin() && t.Actor.Role != domain.RoleSystem {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrForbidden)
	}

	// Resolve the merchant first so its row can be locked ahead of the
	// withdrawal. merchant_id never changes, so the unlocked read is safe.
	current, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback()

	if _, err := s.merchants.LockForUpdate(ctx, tx, current.MerchantID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	w, err := s.withdrawals.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	replay, err := w.IsReplay(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !replay && t.SourceEventID != nil {
		replay, err = s.events.HasSourceEvent(ctx, tx, *t.SourceEventID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if replay {
		log.Info("withdrawal transition replayed",
			"withdrawal_id", w.ID,
			"merchant_id", w.MerchantID,
			"event", t.Event,
			"status", w.Status,
		)
		return w, nil
	}

	now := s.now()
	t.At = now
	next, effect, err := w.Apply(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.applyEffect(ctx, tx, effect, next); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	next.Version = w.Version + 1
	if err := s.withdrawals.Update(ctx, tx, next); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	from := w.Status
	payload, err := transitionPayload(t)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal payload: %w", op, err)
	}
	if err := s.events.Create(ctx, tx, &domain.WithdrawalEvent{
		ID:            uuid.New(),
		WithdrawalID:  next.ID,
		EventType:     t.Event,
		FromStatus:    &from,
		ToStatus:      next.Status,
		Actor:         t.Actor.String(),
		Payload:       payload,
		SourceEventID: t.SourceEventID,
		CreatedAt:     now,
	}); err != nil {
		return nil, fmt.Errorf("%s: audit event: %w", op, err)
	}
	if err := s.publish(ctx, tx, "withdrawal."+string(t.Event), next, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	s.metrics.Transition(string(t.Event), string(next.Status))
	log.Info("withdrawal transitioned",
		"withdrawal_id", next.ID,
		"merchant_id", next.MerchantID,
		"event", t.Event,
		"from", from,
		"to", next.Status,
		"actor", t.Actor.String(),
		"retry_count", next.RetryCount,
	)
	return next, nil
}

func (s *Service) applyEffect(ctx context.Context, tx *sql.Tx, effect domain.LedgerEffect, w *domain.Withdrawal) error {
	var err error
	switch effect {
	case domain.LedgerEffectNone:
	case domain.LedgerEffectRelease:
		_, err = s.ledger.Release(ctx, tx, w.MerchantID, w.Amount, w.ID)
	case domain.LedgerEffectSettle:
		_, err = s.ledger.Settle(ctx, tx, w.MerchantID, w.Amount, w.ID)
	case domain.LedgerEffectReserve:
		_, err = s.ledger.Reserve(ctx, tx, w.MerchantID, w.Amount, w.ID)
	default:
		err = fmt.Errorf("unknown ledger effect %q", effect)
	}
	return err
}

func transitionPayload(t domain.Transition) (json.RawMessage, error) {
	body := map[string]string{}
	if t.Notes != "" {
		body["notes"] = t.Notes
	}
	if t.Reason != "" {
		body["reason"] = t.Reason
	}
	if t.TxRef != "" {
		body["transaction_reference"] = t.TxRef
	}
	if len(body) == 0 {
		return nil, nil
	}
	return json.Marshal(body)
}

func eventOp(e domain.WithdrawalEventType) string {
	switch e {
	case domain.WithdrawalEventApprove:
		return "Approve"
	case domain.WithdrawalEventReject:
		return "Reject"
	case domain.WithdrawalEventMarkProcessing:
		return "MarkProcessing"
	case domain.WithdrawalEventComplete:
		return "Complete"
	case domain.WithdrawalEventFail:
		return "Fail"
	case domain.WithdrawalEventRecordRetry:
		return "RecordRetry"
	default:
		return string(e)
	}
}

type withdrawalMessage struct {
	WithdrawalID         uuid.UUID  `json:"withdrawal_id"`
	MerchantID           uuid.UUID  `json:"merchant_id"`
	PaymentMethodID      uuid.UUID  `json:"payment_method_id"`
	Status               string     `json:"status"`
	Currency             string     `json:"currency"`
	Amount               int64      `json:"amount"`
	Fee                  int64      `json:"fee"`
	TotalAmount          int64      `json:"total_amount"`
	FeePolicyVersion     int64      `json:"fee_policy_version"`
	RetryCount           int        `json:"retry_count"`
	TransactionReference *string    `json:"transaction_reference,omitempty"`
	FailureReason        *string    `json:"failure_reason,omitempty"`
	RejectionReason      *string    `json:"rejection_reason,omitempty"`
	ProcessedAt          *time.Time `json:"processed_at,omitempty"`
	OccurredAt           time.Time  `json:"occurred_at"`
}

func (s *Service) publish(ctx context.Context, tx *sql.Tx, eventType string, w *domain.Withdrawal, now time.Time) error {
	ev, err := domain.NewOutboxEvent(domain.OutboxTopicWithdrawal, eventType, w.MerchantID, withdrawalMessage{
		WithdrawalID:         w.ID,
		MerchantID:           w.MerchantID,
		PaymentMethodID:      w.PaymentMethodID,
		Status:               string(w.Status),
		Currency:             string(w.Currency),
		Amount:               w.Amount,
		Fee:                  w.Fee,
		TotalAmount:          w.TotalAmount,
		FeePolicyVersion:     w.FeePolicyVersion,
		RetryCount:           w.RetryCount,
		TransactionReference: w.TransactionReference,
		FailureReason:        w.FailureReason,
		RejectionReason:      w.RejectionReason,
		ProcessedAt:          w.ProcessedAt,
		OccurredAt:           now,
	}, now)
	if err != nil {
		return err
	}
	if err := s.outbox.Create(ctx, tx, ev); err != nil {
		return fmt.Errorf("outbox: %w", err)
	}
	return nil
}
