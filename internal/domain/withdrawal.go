package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusApproved   WithdrawalStatus = "approved"
	WithdrawalStatusRejected   WithdrawalStatus = "rejected"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
)

var WithdrawalStatuses = []WithdrawalStatus{
	WithdrawalStatusPending,
	WithdrawalStatusApproved,
	WithdrawalStatusRejected,
	WithdrawalStatusProcessing,
	WithdrawalStatusCompleted,
	WithdrawalStatusFailed,
}

func (s WithdrawalStatus) IsValid() bool {
	for _, v := range WithdrawalStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s WithdrawalStatus) IsTerminal() bool {
	switch s {
	case WithdrawalStatusRejected, WithdrawalStatusCompleted, WithdrawalStatusFailed:
		return true
	default:
		return false
	}
}

// InFlightWithdrawalStatuses hold a reservation against the ledger.
var InFlightWithdrawalStatuses = []WithdrawalStatus{
	WithdrawalStatusPending,
	WithdrawalStatusApproved,
	WithdrawalStatusProcessing,
}

type WithdrawalEventType string

const (
	WithdrawalEventCreate         WithdrawalEventType = "create"
	WithdrawalEventApprove        WithdrawalEventType = "approve"
	WithdrawalEventReject         WithdrawalEventType = "reject"
	WithdrawalEventMarkProcessing WithdrawalEventType = "mark_processing"
	WithdrawalEventComplete       WithdrawalEventType = "complete"
	WithdrawalEventFail           WithdrawalEventType = "fail"
	WithdrawalEventRecordRetry    WithdrawalEventType = "record_retry"
)

var WithdrawalEvents = []WithdrawalEventType{
	WithdrawalEventApprove,
	WithdrawalEventReject,
	WithdrawalEventMarkProcessing,
	WithdrawalEventComplete,
	WithdrawalEventFail,
	WithdrawalEventRecordRetry,
}

// LedgerEffect is the balance movement a transition requires.
type LedgerEffect string

const (
	LedgerEffectNone    LedgerEffect = "none"
	LedgerEffectReserve LedgerEffect = "reserve"
	LedgerEffectRelease LedgerEffect = "release"
	LedgerEffectSettle  LedgerEffect = "settle"
)

type Withdrawal struct {
	ID                   uuid.UUID
	MerchantID           uuid.UUID
	PaymentMethodID      uuid.UUID
	Currency             Currency
	Amount               int64
	FeePercentage        decimal.Decimal
	FeePolicyVersion     int64
	Fee                  int64
	TotalAmount          int64
	Status               WithdrawalStatus
	Reason               *string
	ApprovalNotes        *string
	RejectionReason      *string
	FailureReason        *string
	TransactionReference *string
	RetryCount           int
	RequestedBy          uuid.UUID
	RequestedAt          time.Time
	ProcessedAt          *time.Time
	ProcessedBy          *string
	UpdatedAt            time.Time
	Version              int64
}

// FeeBreakdown is the fee computed for an amount under one policy version.
type FeeBreakdown struct {
	Amount        int64
	Percentage    decimal.Decimal
	PolicyVersion int64
	Fee           int64
	Total         int64
}

// NewWithdrawal builds a pending request. The fee snapshot is fixed here and
// never recomputed.
func NewWithdrawal(merchantID, paymentMethodID uuid.UUID, currency Currency, fee FeeBreakdown, reason string, requestedBy uuid.UUID, now time.Time) (*Withdrawal, error) {
	if fee.Amount <= 0 {
		return nil, fmt.Errorf("NewWithdrawal: %w", ErrInvalidAmount)
	}
	if fee.Fee >= fee.Amount || fee.Total != fee.Amount-fee.Fee {
		return nil, fmt.Errorf("NewWithdrawal: %w", ErrFeeExceedsAmount)
	}
	w := &Withdrawal{
		ID:               uuid.New(),
		MerchantID:       merchantID,
		PaymentMethodID:  paymentMethodID,
		Currency:         currency,
		Amount:           fee.Amount,
		FeePercentage:    fee.Percentage,
		FeePolicyVersion: fee.PolicyVersion,
		Fee:              fee.Fee,
		TotalAmount:      fee.Total,
		Status:           WithdrawalStatusPending,
		RequestedBy:      requestedBy,
		RequestedAt:      now,
		UpdatedAt:        now,
		Version:          1,
	}
	if r := strings.TrimSpace(reason); r != "" {
		w.Reason = &r
	}
	return w, nil
}

// Transition is a request to move a withdrawal along the state machine.
type Transition struct {
	Event  WithdrawalEventType
	Actor  Actor
	Notes  string
	Reason string
	TxRef  string
	At     time.Time

	// SourceEventID is the inbound event that caused the transition, when
	// there is one.
	SourceEventID *uuid.UUID
}

type transitionRule struct {
	to          WithdrawalStatus
	effect      LedgerEffect
	allowSystem bool
}

var withdrawalTransitions = map[WithdrawalStatus]map[WithdrawalEventType]transitionRule{
	WithdrawalStatusPending: {
		WithdrawalEventApprove: {to: WithdrawalStatusApproved, effect: LedgerEffectNone},
		WithdrawalEventReject:  {to: WithdrawalStatusRejected, effect: LedgerEffectRelease},
	},
	WithdrawalStatusApproved: {
		WithdrawalEventMarkProcessing: {to: WithdrawalStatusProcessing, effect: LedgerEffectNone},
	},
	WithdrawalStatusProcessing: {
		WithdrawalEventComplete:    {to: WithdrawalStatusCompleted, effect: LedgerEffectSettle, allowSystem: true},
		WithdrawalEventFail:        {to: WithdrawalStatusFailed, effect: LedgerEffectRelease, allowSystem: true},
		WithdrawalEventRecordRetry: {to: WithdrawalStatusProcessing, effect: LedgerEffectNone, allowSystem: true},
	},
	WithdrawalStatusRejected:  {},
	WithdrawalStatusCompleted: {},
	WithdrawalStatusFailed:    {},
}

// CanApply reports whether the (status, event) pair is in the transition table.
func CanApply(from WithdrawalStatus, event WithdrawalEventType) bool {
	_, ok := withdrawalTransitions[from][event]
	return ok
}

// Apply validates t against the transition table and returns the updated copy
// and the ledger effect to perform. w itself is never modified.
func (w *Withdrawal) Apply(t Transition) (*Withdrawal, LedgerEffect, error) {
	rule, ok := withdrawalTransitions[w.Status][t.Event]
	if !ok {
		return nil, LedgerEffectNone, &TransitionError{From: w.Status, Event: t.Event}
	}

	switch t.Actor.Role {
	case RoleAdmin:
	case RoleSystem:
		if !rule.allowSystem {
			return nil, LedgerEffectNone, fmt.Errorf("Apply: %s requires admin: %w", t.Event, ErrForbidden)
		}
	default:
		return nil, LedgerEffectNone, fmt.Errorf("Apply: %s requires admin: %w", t.Event, ErrForbidden)
	}

	reason := strings.TrimSpace(t.Reason)
	txRef := strings.TrimSpace(t.TxRef)

	next := *w
	switch t.Event {
	case WithdrawalEventApprove:
		if notes := strings.TrimSpace(t.Notes); notes != "" {
			next.ApprovalNotes = &notes
		}
	case WithdrawalEventReject:
		if reason == "" {
			return nil, LedgerEffectNone, fmt.Errorf("Apply: %w", ErrReasonRequired)
		}
		next.RejectionReason = &reason
	case WithdrawalEventComplete:
		if txRef == "" {
			return nil, LedgerEffectNone, fmt.Errorf("Apply: %w", ErrTxRefRequired)
		}
		next.TransactionReference = &txRef
	case WithdrawalEventFail:
		if reason != "" {
			next.FailureReason = &reason
		}
		next.RetryCount++
	case WithdrawalEventRecordRetry:
		if reason != "" {
			next.FailureReason = &reason
		}
		next.RetryCount++
	}

	at := t.At
	by := t.Actor.String()
	next.Status = rule.to
	next.UpdatedAt = at
	if t.Event != WithdrawalEventRecordRetry {
		next.ProcessedAt = &at
		next.ProcessedBy = &by
	}
	return &next, rule.effect, nil
}

// IsReplay reports whether t repeats the transition that already made w
// terminal. Completing twice with a different reference is a conflict rather
// than a replay.
func (w *Withdrawal) IsReplay(t Transition) (bool, error) {
	switch {
	case t.Event == WithdrawalEventComplete && w.Status == WithdrawalStatusCompleted:
		if w.TransactionReference != nil && strings.TrimSpace(t.TxRef) != *w.TransactionReference {
			return false, fmt.Errorf("IsReplay: %w", ErrTxRefMismatch)
		}
		return true, nil
	case t.Event == WithdrawalEventFail && w.Status == WithdrawalStatusFailed:
		return true, nil
	default:
		return false, nil
	}
}
