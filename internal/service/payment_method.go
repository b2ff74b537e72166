package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
)

// PaymentMethodService keeps each merchant's payout destinations. A merchant
// with at least one live method always has exactly one default.
type PaymentMethodService struct {
	methods     paymentMethodRepository
	merchants   merchantRepository
	withdrawals inFlightChecker
	db          txBeginner
}

func NewPaymentMethodService(methods paymentMethodRepository, merchants merchantRepository, withdrawals inFlightChecker, db txBeginner) *PaymentMethodService {
	return &PaymentMethodService{methods: methods, merchants: merchants, withdrawals: withdrawals, db: db}
}

// Add stores a new method. The merchant's first method becomes its default.
func (s *PaymentMethodService) Add(ctx context.Context, actor domain.Actor, merchantID uuid.UUID, in domain.NewPaymentMethod) (*domain.PaymentMethod, error) {
	log := logging.FromContext(ctx)

	if !actor.CanAccessMerchant(merchantID) {
		return nil, fmt.Errorf("Add: %w", domain.ErrForbidden)
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("Add: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Add: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.merchants.LockForUpdate(ctx, tx, merchantID); err != nil {
		return nil, fmt.Errorf("Add: %w", err)
	}
	count, err := s.methods.CountActive(ctx, tx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("Add: %w", err)
	}

	pm := in.Build(merchantID, count == 0, time.Now().UTC())
	if err := s.methods.Create(ctx, tx, pm); err != nil {
		return nil, fmt.Errorf("Add: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Add: commit: %w", err)
	}

	log.Info("payment method added",
		"merchant_id", merchantID,
		"payment_method_id", pm.ID,
		"type", pm.Type,
		"is_default", pm.IsDefault,
	)
	return pm, nil
}

func (s *PaymentMethodService) SetDefault(ctx context.Context, actor domain.Actor, merchantID, methodID uuid.UUID) (*domain.PaymentMethod, error) {
	log := logging.FromContext(ctx)

	if !actor.CanAccessMerchant(merchantID) {
		return nil, fmt.Errorf("SetDefault: %w", domain.ErrForbidden)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("SetDefault: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.merchants.LockForUpdate(ctx, tx, merchantID); err != nil {
		return nil, fmt.Errorf("SetDefault: %w", err)
	}
	pm, err := s.methods.GetForUpdate(ctx, tx, merchantID, methodID)
	if err != nil {
		return nil, fmt.Errorf("SetDefault: %w", err)
	}
	if !pm.IsDefault {
		if err := s.methods.SetDefault(ctx, tx, merchantID, methodID); err != nil {
			return nil, fmt.Errorf("SetDefault: %w", err)
		}
		pm.IsDefault = true
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("SetDefault: commit: %w", err)
	}

	log.Info("default payment method changed", "merchant_id", merchantID, "payment_method_id", methodID)
	return pm, nil
}

// Remove soft-deletes a method that no in-flight withdrawal references. If it
// was the default, the newest remaining method takes over.
func (s *PaymentMethodService) Remove(ctx context.Context, actor domain.Actor, merchantID, methodID uuid.UUID) error {
	log := logging.FromContext(ctx)

	if !actor.CanAccessMerchant(merchantID) {
		return fmt.Errorf("Remove: %w", domain.ErrForbidden)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Remove: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.merchants.LockForUpdate(ctx, tx, merchantID); err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	pm, err := s.methods.GetForUpdate(ctx, tx, merchantID, methodID)
	if err != nil {
		return fmt.Errorf("Remove: %w", err)
	}

	inFlight, err := s.withdrawals.HasInFlightForMethod(ctx, tx, methodID)
	if err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	if inFlight {
		return fmt.Errorf("Remove: %w", domain.ErrPaymentMethodInUse)
	}

	if err := s.methods.SoftDelete(ctx, tx, merchantID, methodID, time.Now().UTC()); err != nil {
		return fmt.Errorf("Remove: %w", err)
	}

	var promoted *uuid.UUID
	if pm.IsDefault {
		promoted, err = s.methods.PromoteLatest(ctx, tx, merchantID)
		if err != nil {
			return fmt.Errorf("Remove: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Remove: commit: %w", err)
	}

	args := []any{"merchant_id", merchantID, "payment_method_id", methodID}
	if promoted != nil {
		args = append(args, "new_default_id", *promoted)
	}
	log.Info("payment method removed", args...)
	return nil
}

func (s *PaymentMethodService) Get(ctx context.Context, merchantID, methodID uuid.UUID) (*domain.PaymentMethod, error) {
	pm, err := s.methods.GetByID(ctx, merchantID, methodID)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return pm, nil
}

func (s *PaymentMethodService) List(ctx context.Context, merchantID uuid.UUID) ([]domain.PaymentMethod, error) {
	methods, err := s.methods.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	if methods == nil {
		methods = []domain.PaymentMethod{}
	}
	return methods, nil
}

// MarkVerified applies an external verification verdict.
func (s *PaymentMethodService) MarkVerified(ctx context.Context, methodID uuid.UUID, verified bool) (*domain.PaymentMethod, error) {
	log := logging.FromContext(ctx)

	pm, err := s.methods.GetAnyByID(ctx, methodID)
	if err != nil {
		return nil, fmt.Errorf("MarkVerified: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("MarkVerified: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.merchants.LockForUpdate(ctx, tx, pm.MerchantID); err != nil {
		return nil, fmt.Errorf("MarkVerified: %w", err)
	}

	var at *time.Time
	if verified {
		now := time.Now().UTC()
		at = &now
	}
	if err := s.methods.SetVerified(ctx, tx, methodID, verified, at); err != nil {
		return nil, fmt.Errorf("MarkVerified: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("MarkVerified: commit: %w", err)
	}

	pm.IsVerified = verified
	pm.VerifiedAt = at
	log.Info("payment method verification recorded",
		"merchant_id", pm.MerchantID,
		"payment_method_id", pm.ID,
		"verified", verified,
	)
	return pm, nil
}
