package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrConflict               = errors.New("conflict")
	ErrLedgerIntegrity        = errors.New("ledger integrity violation")
	ErrForbidden              = errors.New("forbidden")
)

var (
	ErrInvalidAmount        = fmt.Errorf("amount must be greater than zero: %w", ErrValidation)
	ErrInvalidCurrency      = fmt.Errorf("invalid currency: %w", ErrValidation)
	ErrInvalidFeePercentage = fmt.Errorf("fee percentage must be between 0 and 100 with at most 4 decimal places: %w", ErrValidation)
	ErrFeeExceedsAmount     = fmt.Errorf("fee must be less than amount: %w", ErrValidation)
	ErrReasonRequired       = fmt.Errorf("reason required: %w", ErrValidation)
	ErrTxRefRequired        = fmt.Errorf("transaction reference required: %w", ErrValidation)
	ErrInvalidPaymentMethod = fmt.Errorf("invalid payment method: %w", ErrValidation)
	ErrInvalidRequest       = fmt.Errorf("invalid request: %w", ErrValidation)

	ErrPaymentMethodInUse = fmt.Errorf("payment method referenced by an in-flight withdrawal: %w", ErrConflict)
	ErrCreditMismatch     = fmt.Errorf("source transaction already credited with a different amount: %w", ErrConflict)
	ErrVersionConflict    = fmt.Errorf("optimistic lock conflict: %w", ErrConflict)
	ErrTxRefMismatch      = fmt.Errorf("withdrawal already completed with a different transaction reference: %w", ErrConflict)
	ErrMerchantExists     = fmt.Errorf("merchant already exists: %w", ErrConflict)

	ErrMerchantSuspended = fmt.Errorf("merchant suspended: %w", ErrForbidden)
)

// TransitionError records the rejected (state, event) pair.
type TransitionError struct {
	From  WithdrawalStatus
	Event WithdrawalEventType
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s withdrawal", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// IntegrityError carries the balance that failed validation and the rule it broke.
type IntegrityError struct {
	MerchantID string
	Rule       string
	Balance    Balance
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("merchant %s: %s (available=%d pending=%d withdrawn=%d collected=%d)",
		e.MerchantID, e.Rule,
		e.Balance.AvailableBalance, e.Balance.PendingWithdrawalsTotal,
		e.Balance.TotalWithdrawn, e.Balance.TotalCollected,
	)
}

func (e *IntegrityError) Unwrap() error { return ErrLedgerIntegrity }
