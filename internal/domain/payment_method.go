package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PaymentMethodType string

const (
	PaymentMethodMobileMoney PaymentMethodType = "mobile_money"
	PaymentMethodBank        PaymentMethodType = "bank"
)

func (t PaymentMethodType) IsValid() bool {
	return t == PaymentMethodMobileMoney || t == PaymentMethodBank
}

type PaymentMethod struct {
	ID            uuid.UUID
	MerchantID    uuid.UUID
	Type          PaymentMethodType
	AccountName   string
	AccountNumber string
	Provider      *string
	BankName      *string
	IsDefault     bool
	IsVerified    bool
	VerifiedAt    *time.Time
	CreatedAt     time.Time
	DeletedAt     *time.Time
}

// NewPaymentMethod is the merchant-supplied shape of a payout destination.
type NewPaymentMethod struct {
	Type          PaymentMethodType
	AccountName   string
	AccountNumber string
	Provider      string
	BankName      string
}

// Validate enforces the per-type required fields: bank needs a bank name,
// mobile money needs a provider.
func (n NewPaymentMethod) Validate() error {
	if !n.Type.IsValid() {
		return fmt.Errorf("type %q: %w", n.Type, ErrInvalidPaymentMethod)
	}
	if strings.TrimSpace(n.AccountName) == "" {
		return fmt.Errorf("account_name required: %w", ErrInvalidPaymentMethod)
	}
	if strings.TrimSpace(n.AccountNumber) == "" {
		return fmt.Errorf("account_number required: %w", ErrInvalidPaymentMethod)
	}
	switch n.Type {
	case PaymentMethodBank:
		if strings.TrimSpace(n.BankName) == "" {
			return fmt.Errorf("bank_name required for bank: %w", ErrInvalidPaymentMethod)
		}
	case PaymentMethodMobileMoney:
		if strings.TrimSpace(n.Provider) == "" {
			return fmt.Errorf("provider required for mobile_money: %w", ErrInvalidPaymentMethod)
		}
	}
	return nil
}

// Build returns the record to persist. Only the field relevant to the type is kept.
func (n NewPaymentMethod) Build(merchantID uuid.UUID, isDefault bool, now time.Time) *PaymentMethod {
	pm := &PaymentMethod{
		ID:            uuid.New(),
		MerchantID:    merchantID,
		Type:          n.Type,
		AccountName:   strings.TrimSpace(n.AccountName),
		AccountNumber: strings.TrimSpace(n.AccountNumber),
		IsDefault:     isDefault,
		CreatedAt:     now,
	}
	switch n.Type {
	case PaymentMethodBank:
		bank := strings.TrimSpace(n.BankName)
		pm.BankName = &bank
	case PaymentMethodMobileMoney:
		provider := strings.TrimSpace(n.Provider)
		pm.Provider = &provider
	}
	return pm
}
