package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/fee"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
	"github.com/shopspring/decimal"
)

const (
	defaultFeeHistoryLimit = 50
	maxFeeHistoryLimit     = 500
)

// FeePolicyService appends fee versions. Existing withdrawals keep the
// version they were priced with.
type FeePolicyService struct {
	policies feePolicyRepository
	outbox   outboxRepository
	db       txBeginner
}

func NewFeePolicyService(policies feePolicyRepository, outbox outboxRepository, db txBeginner) *FeePolicyService {
	return &FeePolicyService{policies: policies, outbox: outbox, db: db}
}

func (s *FeePolicyService) Current(ctx context.Context) (*domain.FeePolicy, error) {
	p, err := s.policies.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("Current: %w", err)
	}
	return p, nil
}

type feePolicyChanged struct {
	Version            int64     `json:"version"`
	Percentage         string    `json:"percentage"`
	PreviousPercentage string    `json:"previous_percentage"`
	UpdatedBy          string    `json:"updated_by"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (s *FeePolicyService) Update(ctx context.Context, actor domain.Actor, pct decimal.Decimal, note string) (*domain.FeePolicy, error) {
	log := logging.FromContext(ctx)

	if !actor.IsAdmin() {
		return nil, fmt.Errorf("Update: %w", domain.ErrForbidden)
	}
	if err := fee.ValidatePercentage(pct); err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Update: begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := s.policies.CurrentForUpdate(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	prev := current.Percentage
	next := &domain.FeePolicy{
		Version:            current.Version + 1,
		Percentage:         pct,
		PreviousPercentage: &prev,
		UpdatedBy:          actor.String(),
		UpdatedAt:          time.Now().UTC(),
	}
	if n := strings.TrimSpace(note); n != "" {
		next.Note = &n
	}
	if err := s.policies.Create(ctx, tx, next); err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	ev, err := domain.NewOutboxEvent(domain.OutboxTopicFeePolicy, "fee_policy.updated", uuid.Nil, feePolicyChanged{
		Version:            next.Version,
		Percentage:         next.Percentage.String(),
		PreviousPercentage: prev.String(),
		UpdatedBy:          next.UpdatedBy,
		UpdatedAt:          next.UpdatedAt,
	}, next.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}
	if err := s.outbox.Create(ctx, tx, ev); err != nil {
		return nil, fmt.Errorf("Update: outbox: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Update: commit: %w", err)
	}

	log.Info("fee policy updated",
		"version", next.Version,
		"percentage", next.Percentage.String(),
		"previous_percentage", prev.String(),
		"updated_by", next.UpdatedBy,
	)
	return next, nil
}

func (s *FeePolicyService) History(ctx context.Context, limit int) ([]domain.FeePolicy, error) {
	if limit <= 0 {
		limit = defaultFeeHistoryLimit
	}
	if limit > maxFeeHistoryLimit {
		limit = maxFeeHistoryLimit
	}
	history, err := s.policies.History(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return history, nil
}
