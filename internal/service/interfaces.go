package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type merchantRepository interface {
	Create(ctx context.Context, tx *sql.Tx, m *domain.Merchant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
	LockForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Merchant, error)
}

type userRepository interface {
	Create(ctx context.Context, tx *sql.Tx, u *domain.User) error
}

type paymentMethodRepository interface {
	Create(ctx context.Context, tx *sql.Tx, pm *domain.PaymentMethod) error
	GetByID(ctx context.Context, merchantID, id uuid.UUID) (*domain.PaymentMethod, error)
	GetAnyByID(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, merchantID, id uuid.UUID) (*domain.PaymentMethod, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.PaymentMethod, error)
	CountActive(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID) (int, error)
	SetDefault(ctx context.Context, tx *sql.Tx, merchantID, id uuid.UUID) error
	SoftDelete(ctx context.Context, tx *sql.Tx, merchantID, id uuid.UUID, at time.Time) error
	PromoteLatest(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID) (*uuid.UUID, error)
	SetVerified(ctx context.Context, tx *sql.Tx, id uuid.UUID, verified bool, at *time.Time) error
}

type inFlightChecker interface {
	HasInFlightForMethod(ctx context.Context, tx *sql.Tx, paymentMethodID uuid.UUID) (bool, error)
}

type feePolicyRepository interface {
	Current(ctx context.Context) (*domain.FeePolicy, error)
	CurrentForUpdate(ctx context.Context, tx *sql.Tx) (*domain.FeePolicy, error)
	Create(ctx context.Context, tx *sql.Tx, p *domain.FeePolicy) error
	History(ctx context.Context, limit int) ([]domain.FeePolicy, error)
}

type outboxRepository interface {
	Create(ctx context.Context, tx *sql.Tx, e *domain.OutboxEvent) error
}

type webhookEventRepository interface {
	GetPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.WebhookEvent, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.WebhookEventStatus, lastError *string) error
}

type ledgerOpener interface {
	Open(ctx context.Context, tx *sql.Tx, merchantID uuid.UUID, currency domain.Currency) (*domain.Balance, error)
}

type balanceCreditor interface {
	Credit(ctx context.Context, ev domain.CreditEvent) (*domain.Balance, bool, error)
}

type payoutTransitioner interface {
	Complete(ctx context.Context, actor domain.Actor, id uuid.UUID, txRef string) (*domain.Withdrawal, error)
	Fail(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (*domain.Withdrawal, error)
	RecordRetryFromEvent(ctx context.Context, eventID, id uuid.UUID, reason string) (*domain.Withdrawal, error)
}

type verificationRecorder interface {
	MarkVerified(ctx context.Context, methodID uuid.UUID, verified bool) (*domain.PaymentMethod, error)
}
