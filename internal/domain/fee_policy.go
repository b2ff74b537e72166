package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeePolicy is one version of the platform-wide withdrawal fee. Rows are
// append-only; the highest version is current.
type FeePolicy struct {
	Version            int64
	Percentage         decimal.Decimal
	PreviousPercentage *decimal.Decimal
	UpdatedBy          string
	Note               *string
	UpdatedAt          time.Time
}
