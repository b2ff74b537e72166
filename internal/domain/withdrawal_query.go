package domain

import (
	"time"

	"github.com/google/uuid"
)

type WithdrawalFilter struct {
	MerchantID *uuid.UUID
	Statuses   []WithdrawalStatus
	Limit      int
	Offset     int
}

type WithdrawalTotals struct {
	Count  int64
	Amount int64
	Fee    int64
}

func (t WithdrawalTotals) Add(o WithdrawalTotals) WithdrawalTotals {
	return WithdrawalTotals{Count: t.Count + o.Count, Amount: t.Amount + o.Amount, Fee: t.Fee + o.Fee}
}

type WithdrawalStatusStats struct {
	Status  WithdrawalStatus
	AllTime WithdrawalTotals
	Today   WithdrawalTotals
}

// WithdrawalStats aggregates a merchant's withdrawals per status. Today is
// the UTC day starting at Day.
type WithdrawalStats struct {
	MerchantID uuid.UUID
	Day        time.Time
	ByStatus   []WithdrawalStatusStats
	AllTime    WithdrawalTotals
	Today      WithdrawalTotals
}

// NewWithdrawalStats folds per-status rows into a complete report with an
// entry for every status.
func NewWithdrawalStats(merchantID uuid.UUID, day time.Time, rows []WithdrawalStatusStats) WithdrawalStats {
	byStatus := make(map[WithdrawalStatus]WithdrawalStatusStats, len(rows))
	for _, r := range rows {
		byStatus[r.Status] = r
	}
	s := WithdrawalStats{MerchantID: merchantID, Day: day}
	for _, status := range WithdrawalStatuses {
		r, ok := byStatus[status]
		if !ok {
			r = WithdrawalStatusStats{Status: status}
		}
		s.ByStatus = append(s.ByStatus, r)
		s.AllTime = s.AllTime.Add(r.AllTime)
		s.Today = s.Today.Add(r.Today)
	}
	return s
}
