package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Balance is a merchant's ledger row. All amounts are minor units.
type Balance struct {
	MerchantID              uuid.UUID
	Currency                Currency
	AvailableBalance        int64
	TotalCollected          int64
	TotalWithdrawn          int64
	PendingWithdrawalsTotal int64
	Version                 int64
	UpdatedAt               time.Time
}

// Validate checks the ledger invariants:
// every counter is non-negative and available+pending+withdrawn <= collected.
func (b Balance) Validate() error {
	fail := func(rule string) error {
		return &IntegrityError{MerchantID: b.MerchantID.String(), Rule: rule, Balance: b}
	}
	switch {
	case b.AvailableBalance < 0:
		return fail("available balance negative")
	case b.PendingWithdrawalsTotal < 0:
		return fail("pending withdrawals negative")
	case b.TotalWithdrawn < 0:
		return fail("total withdrawn negative")
	case b.TotalCollected < 0:
		return fail("total collected negative")
	}
	committed, ok := addNoOverflow(b.AvailableBalance, b.PendingWithdrawalsTotal, b.TotalWithdrawn)
	if !ok {
		return fail("counter overflow")
	}
	if committed > b.TotalCollected {
		return fail("available+pending+withdrawn exceeds collected")
	}
	return nil
}

// Reserve moves amount from available to pending.
func (b Balance) Reserve(amount int64) (Balance, error) {
	if amount <= 0 {
		return b, fmt.Errorf("Reserve: %w", ErrInvalidAmount)
	}
	if b.AvailableBalance < amount {
		return b, fmt.Errorf("Reserve: %w", ErrInsufficientFunds)
	}
	next := b
	next.AvailableBalance -= amount
	next.PendingWithdrawalsTotal += amount
	return next, checked("Reserve", next)
}

// Release returns a reservation from pending to available.
func (b Balance) Release(amount int64) (Balance, error) {
	if amount <= 0 {
		return b, fmt.Errorf("Release: %w", ErrInvalidAmount)
	}
	next := b
	next.PendingWithdrawalsTotal -= amount
	next.AvailableBalance += amount
	return next, checked("Release", next)
}

// Settle turns a reservation into a permanent debit.
func (b Balance) Settle(amount int64) (Balance, error) {
	if amount <= 0 {
		return b, fmt.Errorf("Settle: %w", ErrInvalidAmount)
	}
	next := b
	next.PendingWithdrawalsTotal -= amount
	next.TotalWithdrawn += amount
	return next, checked("Settle", next)
}

// Credit records newly collected funds.
func (b Balance) Credit(amount int64) (Balance, error) {
	if amount <= 0 {
		return b, fmt.Errorf("Credit: %w", ErrInvalidAmount)
	}
	if b.TotalCollected > math.MaxInt64-amount {
		return b, fmt.Errorf("Credit: %w", &IntegrityError{MerchantID: b.MerchantID.String(), Rule: "counter overflow", Balance: b})
	}
	next := b
	next.TotalCollected += amount
	next.AvailableBalance += amount
	return next, checked("Credit", next)
}

func checked(op string, b Balance) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func addNoOverflow(vals ...int64) (int64, bool) {
	var sum int64
	for _, v := range vals {
		if v > 0 && sum > math.MaxInt64-v {
			return 0, false
		}
		sum += v
	}
	return sum, true
}
