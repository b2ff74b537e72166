package fee

import (
	"errors"
	"testing"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func policy(pct string) domain.FeePolicy {
	return domain.FeePolicy{Version: 3, Percentage: decimal.RequireFromString(pct)}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name      string
		amount    int64
		pct       string
		wantFee   int64
		wantTotal int64
		wantErr   error
	}{
		{name: "one and a half percent", amount: 5000, pct: "1.5", wantFee: 75, wantTotal: 4925},
		{name: "zero percent", amount: 5000, pct: "0", wantFee: 0, wantTotal: 5000},
		{name: "rounds half up", amount: 50, pct: "1", wantFee: 1, wantTotal: 49},
		{name: "rounds down below half", amount: 149, pct: "1", wantFee: 1, wantTotal: 148},
		{name: "exactly half", amount: 150, pct: "1", wantFee: 2, wantTotal: 148},
		{name: "four decimal places", amount: 1000000, pct: "2.1234", wantFee: 21234, wantTotal: 978766},
		{name: "small amount tiny fee", amount: 1, pct: "10", wantFee: 0, wantTotal: 1},
		{name: "hundred percent rejected", amount: 5000, pct: "100", wantErr: domain.ErrFeeExceedsAmount},
		{name: "fee rounds up to amount", amount: 1, pct: "50", wantErr: domain.ErrFeeExceedsAmount},
		{name: "zero amount", amount: 0, pct: "1", wantErr: domain.ErrInvalidAmount},
		{name: "negative amount", amount: -10, pct: "1", wantErr: domain.ErrInvalidAmount},
		{name: "percentage above range", amount: 100, pct: "100.1", wantErr: domain.ErrInvalidFeePercentage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compute(tc.amount, policy(tc.pct))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.amount, got.Amount)
			assert.Equal(t, tc.wantFee, got.Fee)
			assert.Equal(t, tc.wantTotal, got.Total)
			assert.Equal(t, int64(3), got.PolicyVersion)
			assert.True(t, got.Percentage.Equal(decimal.RequireFromString(tc.pct)))
		})
	}
}

func TestValidatePercentage(t *testing.T) {
	tests := []struct {
		pct   string
		valid bool
	}{
		{"0", true},
		{"100", true},
		{"1.5", true},
		{"99.9999", true},
		{"0.00001", false},
		{"-0.5", false},
		{"100.0001", false},
	}
	for _, tc := range tests {
		t.Run(tc.pct, func(t *testing.T) {
			err := ValidatePercentage(decimal.RequireFromString(tc.pct))
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidFeePercentage)
			}
		})
	}
}

func TestCompute_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		amount := rapid.Int64Range(1, 1_000_000_000_000).Draw(t, "amount")
		bps := rapid.Int64Range(0, 9999).Draw(t, "basis_points")
		pct := decimal.New(bps, -2)

		got, err := Compute(amount, domain.FeePolicy{Version: 1, Percentage: pct})
		if err != nil {
			if !errors.Is(err, domain.ErrFeeExceedsAmount) {
				t.Fatalf("unexpected error: %v", err)
			}
			return
		}
		if got.Fee < 0 || got.Fee >= amount {
			t.Fatalf("fee %d out of range for amount %d", got.Fee, amount)
		}
		if got.Fee+got.Total != amount {
			t.Fatalf("fee %d + total %d != amount %d", got.Fee, got.Total, amount)
		}
		exact := decimal.NewFromInt(amount).Mul(pct).Div(decimal.NewFromInt(100))
		diff := exact.Sub(decimal.NewFromInt(got.Fee)).Abs()
		if diff.GreaterThan(decimal.RequireFromString("0.5")) {
			t.Fatalf("fee %d differs from exact %s by more than half a unit", got.Fee, exact)
		}
	})
}
