// Package withdrawal runs the payout request lifecycle: fee snapshot,
// reservation, admin review, rail outcome. Every write holds the merchant
// row lock for its whole transaction.
package withdrawal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/metrics"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type merchantRepository interface {
	LockForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Merchant, error)
}

type paymentMethodRepository interface {
	GetByID(ctx context.Context, merchantID, id uuid.UUID) (*domain.PaymentMethod, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, merchantID, id uuid.UUID) (*domain.PaymentMethod, error)
}

type withdrawalRepository interface {
	Create(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Withdrawal, error)
	Update(ctx context.Context, tx *sql.Tx, w *domain.Withdrawal) error
	List(ctx context.Context, f domain.WithdrawalFilter) ([]domain.Withdrawal, int, error)
	Stats(ctx context.Context, merchantID uuid.UUID, since time.Time) ([]domain.WithdrawalStatusStats, error)
}

type eventRepository interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.WithdrawalEvent) error
	HasSourceEvent(ctx context.Context, tx *sql.Tx, sourceEventID uuid.UUID) (bool, error)
	GetByWithdrawalID(ctx context.Context, withdrawalID uuid.UUID) ([]domain.WithdrawalEvent, error)
}

type outboxRepository interface {
	Create(ctx context.Context, tx *sql.Tx, e *domain.OutboxEvent) error
}

type feePolicySource interface {
	Current(ctx context.Context) (*domain.FeePolicy, error)
}

type balanceLedger interface {
	Reserve(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID, amount int64, withdrawalID uuid.UUID) (*domain.Balance, error)
	Release(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID, amount int64, withdrawalID uuid.UUID) (*domain.Balance, error)
	Settle(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID, amount int64, withdrawalID uuid.UUID) (*domain.Balance, error)
}

type Deps struct {
	DB             txBeginner
	Merchants      merchantRepository
	PaymentMethods paymentMethodRepository
	Withdrawals    withdrawalRepository
	Events         eventRepository
	Outbox         outboxRepository
	Fees           feePolicySource
	Ledger         balanceLedger
	Metrics        *metrics.Metrics
}

type Service struct {
	db          txBeginner
	merchants   merchantRepository
	methods     paymentMethodRepository
	withdrawals withdrawalRepository
	events      eventRepository
	outbox      outboxRepository
	fees        feePolicySource
	ledger      balanceLedger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		db:          d.DB,
		merchants:   d.Merchants,
		methods:     d.PaymentMethods,
		withdrawals: d.Withdrawals,
		events:      d.Events,
		outbox:      d.Outbox,
		fees:        d.Fees,
		ledger:      d.Ledger,
		metrics:     d.Metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type RequestInput struct {
	Actor           domain.Actor
	MerchantID      uuid.UUID
	PaymentMethodID uuid.UUID
	Amount          int64
	Reason          string
}

// ListFilter is the paged query shape shared by the merchant listing and the
// admin queue. Page is 1-based.
type ListFilter struct {
	Status   *domain.WithdrawalStatus
	Page     int
	PageSize int
}

func (f ListFilter) normalize() (limit, offset int, err error) {
	if f.Status != nil && !f.Status.IsValid() {
		return 0, 0, fmt.Errorf("status %q: %w", *f.Status, domain.ErrInvalidRequest)
	}
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return size, (page - 1) * size, nil
}

type Page struct {
	Items    []domain.Withdrawal
	Total    int
	Page     int
	PageSize int
}
