package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin  = Actor{ID: uuid.New(), Role: RoleAdmin}
	system = SystemActor
)

func newTestWithdrawal(t *testing.T, status WithdrawalStatus) *Withdrawal {
	t.Helper()
	w, err := NewWithdrawal(uuid.New(), uuid.New(), CurrencyGHS, FeeBreakdown{
		Amount:        5000,
		Percentage:    decimal.RequireFromString("1.5"),
		PolicyVersion: 2,
		Fee:           75,
		Total:         4925,
	}, "  payroll ", uuid.New(), time.Now().UTC())
	require.NoError(t, err)
	w.Status = status
	return w
}

func validTransition(event WithdrawalEventType) Transition {
	return Transition{
		Event:  event,
		Actor:  admin,
		Notes:  "looks good",
		Reason: "requested by merchant",
		TxRef:  "ABC123",
		At:     time.Now().UTC(),
	}
}

func TestNewWithdrawal(t *testing.T) {
	w := newTestWithdrawal(t, WithdrawalStatusPending)
	assert.Equal(t, WithdrawalStatusPending, w.Status)
	assert.Equal(t, int64(5000), w.Amount)
	assert.Equal(t, int64(75), w.Fee)
	assert.Equal(t, int64(4925), w.TotalAmount)
	assert.Equal(t, int64(2), w.FeePolicyVersion)
	require.NotNil(t, w.Reason)
	assert.Equal(t, "payroll", *w.Reason)

	_, err := NewWithdrawal(uuid.New(), uuid.New(), CurrencyGHS, FeeBreakdown{Amount: 0}, "", uuid.New(), time.Now())
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NewWithdrawal(uuid.New(), uuid.New(), CurrencyGHS, FeeBreakdown{Amount: 10, Fee: 10, Total: 0}, "", uuid.New(), time.Now())
	assert.ErrorIs(t, err, ErrFeeExceedsAmount)
}

// Every (status, event) pair is either in the table or rejected without
// touching the withdrawal.
func TestApply_TransitionTableIsComplete(t *testing.T) {
	want := map[WithdrawalStatus]map[WithdrawalEventType]struct {
		to     WithdrawalStatus
		effect LedgerEffect
	}{
		WithdrawalStatusPending: {
			WithdrawalEventApprove: {WithdrawalStatusApproved, LedgerEffectNone},
			WithdrawalEventReject:  {WithdrawalStatusRejected, LedgerEffectRelease},
		},
		WithdrawalStatusApproved: {
			WithdrawalEventMarkProcessing: {WithdrawalStatusProcessing, LedgerEffectNone},
		},
		WithdrawalStatusProcessing: {
			WithdrawalEventComplete:    {WithdrawalStatusCompleted, LedgerEffectSettle},
			WithdrawalEventFail:        {WithdrawalStatusFailed, LedgerEffectRelease},
			WithdrawalEventRecordRetry: {WithdrawalStatusProcessing, LedgerEffectNone},
		},
	}

	for _, status := range WithdrawalStatuses {
		for _, event := range WithdrawalEvents {
			t.Run(string(status)+"/"+string(event), func(t *testing.T) {
				w := newTestWithdrawal(t, status)
				before := *w

				next, effect, err := w.Apply(validTransition(event))
				assert.Equal(t, before, *w, "Apply must not mutate the receiver")

				exp, allowed := want[status][event]
				assert.Equal(t, allowed, CanApply(status, event))
				if !allowed {
					require.ErrorIs(t, err, ErrInvalidStateTransition)
					var te *TransitionError
					require.ErrorAs(t, err, &te)
					assert.Equal(t, status, te.From)
					assert.Equal(t, event, te.Event)
					assert.Nil(t, next)
					assert.Equal(t, LedgerEffectNone, effect)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, exp.to, next.Status)
				assert.Equal(t, exp.effect, effect)
			})
		}
	}
}

func TestApply_Guards(t *testing.T) {
	owner := Actor{ID: uuid.New(), Role: RoleMerchantOwner}

	tests := []struct {
		name    string
		status  WithdrawalStatus
		tr      Transition
		wantErr error
	}{
		{"owner cannot approve", WithdrawalStatusPending, Transition{Event: WithdrawalEventApprove, Actor: owner}, ErrForbidden},
		{"system cannot approve", WithdrawalStatusPending, Transition{Event: WithdrawalEventApprove, Actor: system}, ErrForbidden},
		{"system cannot reject", WithdrawalStatusPending, Transition{Event: WithdrawalEventReject, Actor: system, Reason: "x"}, ErrForbidden},
		{"system cannot mark processing", WithdrawalStatusApproved, Transition{Event: WithdrawalEventMarkProcessing, Actor: system}, ErrForbidden},
		{"owner cannot complete", WithdrawalStatusProcessing, Transition{Event: WithdrawalEventComplete, Actor: owner, TxRef: "x"}, ErrForbidden},
		{"reject needs reason", WithdrawalStatusPending, Transition{Event: WithdrawalEventReject, Actor: admin, Reason: "   "}, ErrReasonRequired},
		{"complete needs tx ref", WithdrawalStatusProcessing, Transition{Event: WithdrawalEventComplete, Actor: system}, ErrTxRefRequired},
		{"state checked before actor", WithdrawalStatusRejected, Transition{Event: WithdrawalEventApprove, Actor: owner}, ErrInvalidStateTransition},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := newTestWithdrawal(t, tc.status)
			_, _, err := w.Apply(tc.tr)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestApply_RecordsFields(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	w := newTestWithdrawal(t, WithdrawalStatusPending)
	approved, _, err := w.Apply(Transition{Event: WithdrawalEventApprove, Actor: admin, Notes: " ok ", At: at})
	require.NoError(t, err)
	assert.Equal(t, "ok", *approved.ApprovalNotes)
	assert.Equal(t, at, *approved.ProcessedAt)
	assert.Equal(t, admin.String(), *approved.ProcessedBy)

	processing, _, err := approved.Apply(Transition{Event: WithdrawalEventMarkProcessing, Actor: admin, At: at})
	require.NoError(t, err)

	retried, _, err := processing.Apply(Transition{Event: WithdrawalEventRecordRetry, Actor: system, Reason: "timeout", At: at.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Equal(t, "timeout", *retried.FailureReason)
	assert.Equal(t, at, *retried.ProcessedAt, "retry does not move processed_at")

	completed, effect, err := retried.Apply(Transition{Event: WithdrawalEventComplete, Actor: system, TxRef: "ABC123", At: at.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, LedgerEffectSettle, effect)
	assert.Equal(t, "ABC123", *completed.TransactionReference)
	assert.Equal(t, system.String(), *completed.ProcessedBy)

	failed, effect, err := processing.Apply(Transition{Event: WithdrawalEventFail, Actor: admin, Reason: "account closed", At: at})
	require.NoError(t, err)
	assert.Equal(t, LedgerEffectRelease, effect)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Equal(t, "account closed", *failed.FailureReason)

	rejected, effect, err := w.Apply(Transition{Event: WithdrawalEventReject, Actor: admin, Reason: "suspicious", At: at})
	require.NoError(t, err)
	assert.Equal(t, LedgerEffectRelease, effect)
	assert.Equal(t, "suspicious", *rejected.RejectionReason)
	assert.Equal(t, WithdrawalStatusPending, w.Status)
}

func TestIsReplay(t *testing.T) {
	ref := "ABC123"
	completed := newTestWithdrawal(t, WithdrawalStatusCompleted)
	completed.TransactionReference = &ref
	failed := newTestWithdrawal(t, WithdrawalStatusFailed)
	processing := newTestWithdrawal(t, WithdrawalStatusProcessing)

	ok, err := completed.IsReplay(Transition{Event: WithdrawalEventComplete, TxRef: "ABC123"})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = completed.IsReplay(Transition{Event: WithdrawalEventComplete, TxRef: "OTHER"})
	require.ErrorIs(t, err, ErrTxRefMismatch)
	assert.True(t, errors.Is(err, ErrConflict))

	ok, err = failed.IsReplay(Transition{Event: WithdrawalEventFail})
	require.NoError(t, err)
	assert.True(t, ok)

	for _, w := range []*Withdrawal{completed, processing} {
		ok, err = w.IsReplay(Transition{Event: WithdrawalEventFail})
		require.NoError(t, err)
		assert.False(t, ok)
	}
	ok, err = failed.IsReplay(Transition{Event: WithdrawalEventComplete, TxRef: "x"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithdrawalStatus(t *testing.T) {
	for _, s := range WithdrawalStatuses {
		assert.True(t, s.IsValid())
	}
	assert.False(t, WithdrawalStatus("cancelled").IsValid())

	terminal := map[WithdrawalStatus]bool{
		WithdrawalStatusRejected:  true,
		WithdrawalStatusCompleted: true,
		WithdrawalStatusFailed:    true,
	}
	for _, s := range WithdrawalStatuses {
		assert.Equal(t, terminal[s], s.IsTerminal(), s)
		if s.IsTerminal() {
			for _, e := range WithdrawalEvents {
				assert.False(t, CanApply(s, e), "%s is terminal but accepts %s", s, e)
			}
		}
	}
}
