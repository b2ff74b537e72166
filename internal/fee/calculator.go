package fee

import (
	"fmt"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

const MaxPercentageScale = 4

var hundred = decimal.NewFromInt(100)

// ValidatePercentage accepts values in [0, 100] with at most four decimal places.
func ValidatePercentage(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return fmt.Errorf("ValidatePercentage: %s: %w", p, domain.ErrInvalidFeePercentage)
	}
	if !p.Equal(p.Truncate(MaxPercentageScale)) {
		return fmt.Errorf("ValidatePercentage: %s: %w", p, domain.ErrInvalidFeePercentage)
	}
	return nil
}

// Compute applies policy to amount. Amounts are minor units so the fee is
// rounded half up to a whole unit. A fee that would consume the whole amount
// is rejected.
func Compute(amount int64, policy domain.FeePolicy) (domain.FeeBreakdown, error) {
	if amount <= 0 {
		return domain.FeeBreakdown{}, fmt.Errorf("Compute: %w", domain.ErrInvalidAmount)
	}
	if err := ValidatePercentage(policy.Percentage); err != nil {
		return domain.FeeBreakdown{}, fmt.Errorf("Compute: %w", err)
	}

	// decimal.Round rounds half away from zero, which is half up for
	// non-negative values.
	fee := decimal.NewFromInt(amount).Mul(policy.Percentage).Div(hundred).Round(0).IntPart()
	if fee >= amount {
		return domain.FeeBreakdown{}, fmt.Errorf("Compute: fee %d on amount %d: %w", fee, amount, domain.ErrFeeExceedsAmount)
	}

	return domain.FeeBreakdown{
		Amount:        amount,
		Percentage:    policy.Percentage,
		PolicyVersion: policy.Version,
		Fee:           fee,
		Total:         amount - fee,
	}, nil
}
