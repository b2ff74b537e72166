package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
	"golang.org/x/crypto/bcrypt"
)

type MerchantService struct {
	merchants merchantRepository
	users     userRepository
	ledger    ledgerOpener
	db        txBeginner
}

func NewMerchantService(merchants merchantRepository, users userRepository, ledger ledgerOpener, db txBeginner) *MerchantService {
	return &MerchantService{merchants: merchants, users: users, ledger: ledger, db: db}
}

type RegisterMerchantInput struct {
	Name          string
	Currency      domain.Currency
	OwnerEmail    string
	OwnerName     string
	OwnerPassword string
}

func (in RegisterMerchantInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("name required: %w", domain.ErrInvalidRequest)
	case !in.Currency.IsValid():
		return domain.ErrInvalidCurrency
	case strings.TrimSpace(in.OwnerName) == "":
		return fmt.Errorf("owner_name required: %w", domain.ErrInvalidRequest)
	case len(in.OwnerPassword) < 8:
		return fmt.Errorf("owner_password must be at least 8 characters: %w", domain.ErrInvalidRequest)
	}
	if _, err := mail.ParseAddress(in.OwnerEmail); err != nil {
		return fmt.Errorf("owner_email invalid: %w", domain.ErrInvalidRequest)
	}
	return nil
}

// Register creates a merchant, opens its zeroed balance and provisions the
// owner login. Admin only.
func (s *MerchantService) Register(ctx context.Context, actor domain.Actor, in RegisterMerchantInput) (*domain.Merchant, *domain.User, error) {
	log := logging.FromContext(ctx)

	if !actor.IsAdmin() {
		return nil, nil, fmt.Errorf("Register: %w", domain.ErrForbidden)
	}
	if err := in.validate(); err != nil {
		return nil, nil, fmt.Errorf("Register: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.OwnerPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("Register: hash password: %w", err)
	}

	now := time.Now().UTC()
	merchant := &domain.Merchant{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(in.Name),
		Currency:  in.Currency,
		Status:    domain.MerchantStatusActive,
		CreatedAt: now,
	}
	owner := &domain.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(in.OwnerEmail)),
		Name:         strings.TrimSpace(in.OwnerName),
		PasswordHash: string(hash),
		Role:         domain.RoleMerchantOwner,
		MerchantID:   &merchant.ID,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("Register: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.merchants.Create(ctx, tx, merchant); err != nil {
		return nil, nil, fmt.Errorf("Register: %w", err)
	}
	if _, err := s.ledger.Open(ctx, tx, merchant.ID, merchant.Currency); err != nil {
		return nil, nil, fmt.Errorf("Register: %w", err)
	}
	if err := s.users.Create(ctx, tx, owner); err != nil {
		return nil, nil, fmt.Errorf("Register: owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("Register: commit: %w", err)
	}

	log.Info("merchant registered",
		"merchant_id", merchant.ID,
		"owner_id", owner.ID,
		"currency", merchant.Currency,
	)
	return merchant, owner, nil
}

func (s *MerchantService) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Merchant, error) {
	if !actor.CanAccessMerchant(id) {
		return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
	}
	m, err := s.merchants.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return m, nil
}
