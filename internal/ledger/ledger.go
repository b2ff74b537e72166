// Package ledger owns the per-merchant balance counters. Every movement is
// validated against the balance invariants, recorded as a ledger entry and
// announced on the outbox inside the caller's transaction.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
	"github.com/josh-kwaku/payout-ledger/internal/metrics"
)

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type merchantLocker interface {
	LockForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Merchant, error)
}

type balanceRepo interface {
	Create(ctx context.Context, tx *sql.Tx, b *domain.Balance) error
	GetByMerchantID(ctx context.Context, merchantID uuid.UUID) (*domain.Balance, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID) (*domain.Balance, error)
	Update(ctx context.Context, tx *sql.Tx, b *domain.Balance) error
}

type entryRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
	GetByMerchantID(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
}

type creditRepo interface {
	Insert(ctx context.Context, tx *sql.Tx, c *domain.BalanceCredit) (bool, error)
	Get(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID, sourceTransactionID string) (*domain.BalanceCredit, error)
}

type outboxRepo interface {
	Create(ctx context.Context, tx *sql.Tx, e *domain.OutboxEvent) error
}

type Deps struct {
	DB        txBeginner
	Merchants merchantLocker
	Balances  balanceRepo
	Entries   entryRepo
	Credits   creditRepo
	Outbox    outboxRepo
	Metrics   *metrics.Metrics
}

type Ledger struct {
	db        txBeginner
	merchants merchantLocker
	balances  balanceRepo
	entries   entryRepo
	credits   creditRepo
	outbox    outboxRepo
	metrics   *metrics.Metrics
	now       func() time.Time
}

func New(d Deps) *Ledger {
	return &Ledger{
		db:        d.DB,
		merchants: d.Merchants,
		balances:  d.Balances,
		entries:   d.Entries,
		credits:   d.Credits,
		outbox:    d.Outbox,
		metrics:   d.Metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Open creates the zeroed balance row for a new merchant.
func (l *Ledger) Open(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID, currency domain.Currency) (*domain.Balance, error) {
	if !currency.IsValid() {
		return nil, fmt.Errorf("Open: %w", domain.ErrInvalidCurrency)
	}
	b := &domain.Balance{MerchantID: merchantID, Currency: currency, UpdatedAt: l.now()}
	if err := l.balances.Create(ctx, tx, b); err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	return b, nil
}

// Snapshot reads the four counters from a single row.
func (l *Ledger) Snapshot(ctx context.Context, merchantID uuid.UUID) (*domain.Balance, error) {
	b, err := l.balances.GetByMerchantID(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("Snapshot: %w", err)
	}
	return b, nil
}

func (l *Ledger) History(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	entries, total, err := l.entries.GetByMerchantID(ctx, merchantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("History: %w", err)
	}
	return entries, total, nil
}

// Reserve moves amount from available to pending. It fails with
// domain.ErrInsufficientFunds and changes nothing when available < amount.
func (l *Ledger) Reserve(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID, amount int64, withdrawalID uuid.UUID) (*domain.Balance, error) {
	b, err := l.apply(ctx, tx, movement{
		merchantID:   merchantID,
		entryType:    domain.EntryTypeReserve,
		amount:       amount,
		withdrawalID: &withdrawalID,
		fn:           func(b domain.Balance) (domain.Balance, error) { return b.Reserve(amount) },
	})
	if err != nil {
		return nil, fmt.Errorf("Reserve: %w", err)
	}
	return b, nil
}

func (l *Ledger) Release(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID, amount int64, withdrawalID uuid.UUID) (*domain.Balance, error) {
	b, err := l.apply(ctx, tx, movement{
		merchantID:   merchantID,
		entryType:    domain.EntryTypeRelease,
		amount:       amount,
		withdrawalID: &withdrawalID,
		fn:           func(b domain.Balance) (domain.Balance, error) { return b.Release(amount) },
	})
	if err != nil {
		return nil, fmt.Errorf("Release: %w", err)
	}
	return b, nil
}

func (l *Ledger) Settle(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID, amount int64, withdrawalID uuid.UUID) (*domain.Balance, error) {
	b, err := l.apply(ctx, tx, movement{
		merchantID:   merchantID,
		entryType:    domain.EntryTypeSettle,
		amount:       amount,
		withdrawalID: &withdrawalID,
		fn:           func(b domain.Balance) (domain.Balance, error) { return b.Settle(amount) },
	})
	if err != nil {
		return nil, fmt.Errorf("Settle: %w", err)
	}
	return b, nil
}

// Credit records an externally collected amount in its own transaction. A
// replay of the same (merchant, source transaction) is a no-op returning the
// current balance with applied=false; a replay with a different amount is a
// conflict.
func (l *Ledger) Credit(ctx context.Context, ev domain.CreditEvent) (balance *domain.Balance, applied bool, err error) {
	ev.SourceTransactionID = strings.TrimSpace(ev.SourceTransactionID)
	if ev.Amount <= 0 {
		return nil, false, fmt.Errorf("Credit: %w", domain.ErrInvalidAmount)
	}
	if ev.SourceTransactionID == "" {
		return nil, false, fmt.Errorf("Credit: source_transaction_id required: %w", domain.ErrInvalidRequest)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("Credit: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := l.merchants.LockForUpdate(ctx, tx, ev.MerchantID); err != nil {
		return nil, false, fmt.Errorf("Credit: %w", err)
	}

	current, err := l.balances.GetForUpdate(ctx, tx, ev.MerchantID)
	if err != nil {
		return nil, false, fmt.Errorf("Credit: %w", err)
	}
	if ev.Currency != "" && ev.Currency != current.Currency {
		return nil, false, fmt.Errorf("Credit: %s credit on %s balance: %w", ev.Currency, current.Currency, domain.ErrInvalidCurrency)
	}

	collectedAt := ev.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = l.now()
	}
	inserted, err := l.credits.Insert(ctx, tx, &domain.BalanceCredit{
		MerchantID:          ev.MerchantID,
		SourceTransactionID: ev.SourceTransactionID,
		Amount:              ev.Amount,
		CollectedAt:         collectedAt,
		CreatedAt:           l.now(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("Credit: %w", err)
	}
	if !inserted {
		prior, err := l.credits.Get(ctx, tx, ev.MerchantID, ev.SourceTransactionID)
		if err != nil {
			return nil, false, fmt.Errorf("Credit: %w", err)
		}
		if prior.Amount != ev.Amount {
			return nil, false, fmt.Errorf("Credit: %s recorded as %d, replayed as %d: %w",
				ev.SourceTransactionID, prior.Amount, ev.Amount, domain.ErrCreditMismatch)
		}
		logging.FromContext(ctx).Info("duplicate balance credit ignored",
			"merchant_id", ev.MerchantID,
			"source_transaction_id", ev.SourceTransactionID,
		)
		return current, false, nil
	}

	src := ev.SourceTransactionID
	next, err := l.applyTo(ctx, tx, *current, movement{
		merchantID:          ev.MerchantID,
		entryType:           domain.EntryTypeCredit,
		amount:              ev.Amount,
		sourceTransactionID: &src,
		fn:                  func(b domain.Balance) (domain.Balance, error) { return b.Credit(ev.Amount) },
	})
	if err != nil {
		return nil, false, fmt.Errorf("Credit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("Credit: commit: %w", err)
	}
	return next, true, nil
}

type movement struct {
	merchantID          uuid.UUID
	entryType           domain.EntryType
	amount              int64
	withdrawalID        *uuid.UUID
	sourceTransactionID *string
	fn                  func(domain.Balance) (domain.Balance, error)
}

func (l *Ledger) apply(ctx context.Context, tx *sql.Tx, m movement) (*domain.Balance, error) {
	current, err := l.balances.GetForUpdate(ctx, tx, m.merchantID)
	if err != nil {
		return nil, err
	}
	return l.applyTo(ctx, tx, *current, m)
}

func (l *Ledger) applyTo(ctx context.Context, tx *sql.Tx, current domain.Balance, m movement) (*domain.Balance, error) {
	next, err := m.fn(current)
	if err != nil {
		l.checkIntegrity(ctx, err, m)
		return nil, err
	}

	now := l.now()
	next.Version = current.Version + 1
	next.UpdatedAt = now
	if err := l.balances.Update(ctx, tx, &next); err != nil {
		l.checkIntegrity(ctx, err, m)
		return nil, err
	}

	entry := &domain.LedgerEntry{
		ID:                  uuid.New(),
		MerchantID:          m.merchantID,
		EntryType:           m.entryType,
		Amount:              m.amount,
		Currency:            next.Currency,
		WithdrawalID:        m.withdrawalID,
		SourceTransactionID: m.sourceTransactionID,
		AvailableAfter:      next.AvailableBalance,
		PendingAfter:        next.PendingWithdrawalsTotal,
		WithdrawnAfter:      next.TotalWithdrawn,
		CollectedAfter:      next.TotalCollected,
		CreatedAt:           now,
	}
	if err := l.entries.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("ledger entry: %w", err)
	}

	ev, err := domain.NewOutboxEvent(domain.OutboxTopicBalance, "balance."+string(m.entryType), m.merchantID, newBalanceEvent(entry), now)
	if err != nil {
		return nil, err
	}
	if err := l.outbox.Create(ctx, tx, ev); err != nil {
		return nil, fmt.Errorf("outbox: %w", err)
	}

	l.metrics.LedgerMovement(string(m.entryType))
	return &next, nil
}

func (l *Ledger) checkIntegrity(ctx context.Context, err error, m movement) {
	if !errors.Is(err, domain.ErrLedgerIntegrity) {
		return
	}
	l.metrics.IntegrityViolation()
	args := []any{
		"merchant_id", m.merchantID,
		"entry_type", m.entryType,
		"amount", m.amount,
		"error", err,
	}
	if m.withdrawalID != nil {
		args = append(args, "withdrawal_id", *m.withdrawalID)
	}
	logging.Alert(ctx, "ledger integrity violation", args...)
}

type balanceEvent struct {
	MerchantID              uuid.UUID  `json:"merchant_id"`
	EntryID                 uuid.UUID  `json:"entry_id"`
	EntryType               string     `json:"entry_type"`
	Amount                  int64      `json:"amount"`
	Currency                string     `json:"currency"`
	WithdrawalID            *uuid.UUID `json:"withdrawal_id,omitempty"`
	SourceTransactionID     *string    `json:"source_transaction_id,omitempty"`
	AvailableBalance        int64      `json:"available_balance"`
	PendingWithdrawalsTotal int64      `json:"pending_withdrawals_total"`
	TotalWithdrawn          int64      `json:"total_withdrawn"`
	TotalCollected          int64      `json:"total_collected"`
	OccurredAt              time.Time  `json:"occurred_at"`
}

func newBalanceEvent(e *domain.LedgerEntry) balanceEvent {
	return balanceEvent{
		MerchantID:              e.MerchantID,
		EntryID:                 e.ID,
		EntryType:               string(e.EntryType),
		Amount:                  e.Amount,
		Currency:                string(e.Currency),
		WithdrawalID:            e.WithdrawalID,
		SourceTransactionID:     e.SourceTransactionID,
		AvailableBalance:        e.AvailableAfter,
		PendingWithdrawalsTotal: e.PendingAfter,
		TotalWithdrawn:          e.WithdrawnAfter,
		TotalCollected:          e.CollectedAfter,
		OccurredAt:              e.CreatedAt,
	}
}
