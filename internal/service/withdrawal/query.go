package withdrawal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

// Get returns the request if actor owns its merchant or is an admin. Other
// merchants' requests read as not found.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Withdrawal, error) {
	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	if !actor.CanAccessMerchant(w.MerchantID) {
		return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
	}
	return w, nil
}

func (s *Service) ListForMerchant(ctx context.Context, merchantID uuid.UUID, f ListFilter) (*Page, error) {
	p, err := s.list(ctx, &merchantID, f)
	if err != nil {
		return nil, fmt.Errorf("ListForMerchant: %w", err)
	}
	return p, nil
}

// ListAll is the admin review queue, oldest first. With no status filter it
// shows pending requests.
func (s *Service) ListAll(ctx context.Context, f ListFilter) (*Page, error) {
	if f.Status == nil {
		pending := domain.WithdrawalStatusPending
		f.Status = &pending
	}
	p, err := s.list(ctx, nil, f)
	if err != nil {
		return nil, fmt.Errorf("ListAll: %w", err)
	}
	return p, nil
}

func (s *Service) list(ctx context.Context, merchantID *uuid.UUID, f ListFilter) (*Page, error) {
	limit, offset, err := f.normalize()
	if err != nil {
		return nil, err
	}
	filter := domain.WithdrawalFilter{MerchantID: merchantID, Limit: limit, Offset: offset}
	if f.Status != nil {
		filter.Statuses = []domain.WithdrawalStatus{*f.Status}
	}
	items, total, err := s.withdrawals.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Withdrawal{}
	}
	return &Page{Items: items, Total: total, Page: offset/limit + 1, PageSize: limit}, nil
}

// Stats reports count, amount and fee per status, all time and for the UTC
// day containing now.
func (s *Service) Stats(ctx context.Context, merchantID uuid.UUID, now time.Time) (*domain.WithdrawalStats, error) {
	u := now.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := s.withdrawals.Stats(ctx, merchantID, day)
	if err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}
	stats := domain.NewWithdrawalStats(merchantID, day, rows)
	return &stats, nil
}

// Events returns the audit trail in the order it was written.
func (s *Service) Events(ctx context.Context, actor domain.Actor, id uuid.UUID) ([]domain.WithdrawalEvent, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, fmt.Errorf("Events: %w", err)
	}
	events, err := s.events.GetByWithdrawalID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Events: %w", err)
	}
	return events, nil
}
