package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntryType string

const (
	EntryTypeCredit  EntryType = "credit"
	EntryTypeReserve EntryType = "reserve"
	EntryTypeRelease EntryType = "release"
	EntryTypeSettle  EntryType = "settle"
)

// LedgerEntry is one movement on a merchant balance with the counters as
// they stood after it.
type LedgerEntry struct {
	ID                  uuid.UUID
	MerchantID          uuid.UUID
	EntryType           EntryType
	Amount              int64
	Currency            Currency
	WithdrawalID        *uuid.UUID
	SourceTransactionID *string
	AvailableAfter      int64
	PendingAfter        int64
	WithdrawnAfter      int64
	CollectedAfter      int64
	CreatedAt           time.Time
}

// BalanceCredit is the dedupe record for an externally collected amount.
type BalanceCredit struct {
	MerchantID          uuid.UUID
	SourceTransactionID string
	Amount              int64
	CollectedAt         time.Time
	CreatedAt           time.Time
}

// CreditEvent is what donation/income recording sends when funds arrive.
type CreditEvent struct {
	MerchantID          uuid.UUID
	Amount              int64
	Currency            Currency
	SourceTransactionID string
	CollectedAt         time.Time
}
