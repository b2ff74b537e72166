package service_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/ledger"
	"github.com/josh-kwaku/payout-ledger/internal/repository"
	"github.com/josh-kwaku/payout-ledger/internal/service"
	"github.com/josh-kwaku/payout-ledger/internal/service/withdrawal"
	"github.com/josh-kwaku/payout-ledger/internal/testutil"
)

var admin = domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin}

type services struct {
	db          *sql.DB
	ledger      *ledger.Ledger
	merchants   *service.MerchantService
	methods     *service.PaymentMethodService
	fees        *service.FeePolicyService
	withdrawals *withdrawal.Service
	processor   *service.EventProcessor
	webhooks    *repository.WebhookEventRepository
}

func setupServices(t *testing.T) *services {
	t.Helper()
	db := testutil.SetupTestDB(t)

	merchantRepo := repository.NewMerchantRepository(db)
	methodRepo := repository.NewPaymentMethodRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	feeRepo := repository.NewFeePolicyRepository(db)
	webhookRepo := repository.NewWebhookEventRepository(db)

	l := ledger.New(ledger.Deps{
		DB:        db,
		Merchants: merchantRepo,
		Balances:  repository.NewBalanceRepository(db),
		Entries:   repository.NewLedgerRepository(db),
		Credits:   repository.NewBalanceCreditRepository(db),
		Outbox:    outboxRepo,
	})
	methods := service.NewPaymentMethodService(methodRepo, merchantRepo, withdrawalRepo, db)
	ws := withdrawal.NewService(withdrawal.Deps{
		DB:             db,
		Merchants:      merchantRepo,
		PaymentMethods: methodRepo,
		Withdrawals:    withdrawalRepo,
		Events:         repository.NewWithdrawalEventRepository(db),
		Outbox:         outboxRepo,
		Fees:           feeRepo,
		Ledger:         l,
	})

	return &services{
		db:          db,
		ledger:      l,
		merchants:   service.NewMerchantService(merchantRepo, repository.NewUserRepository(db), l, db),
		methods:     methods,
		fees:        service.NewFeePolicyService(feeRepo, outboxRepo, db),
		withdrawals: ws,
		processor:   service.NewEventProcessor(webhookRepo, l, ws, methods, db, nil, slog.Default(), time.Second),
		webhooks:    webhookRepo,
	}
}

func (s *services) storeEvent(t *testing.T, eventType domain.WebhookEventType, payload any) uuid.UUID {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	ev := &domain.WebhookEvent{
		ID:             uuid.New(),
		IdempotencyKey: uuid.NewString(),
		EventType:      eventType,
		Payload:        raw,
		Status:         domain.WebhookEventStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	created, err := s.webhooks.Create(context.Background(), ev)
	require.NoError(t, err)
	require.True(t, created)
	return ev.ID
}

func (s *services) eventStatus(t *testing.T, id uuid.UUID) (domain.WebhookEventStatus, int) {
	t.Helper()
	var status domain.WebhookEventStatus
	var attempts int
	require.NoError(t, s.db.QueryRow(`SELECT status, attempts FROM webhook_events WHERE id = $1`, id).Scan(&status, &attempts))
	return status, attempts
}

func TestMerchantService_RegisterOpensLedger(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	m, owner, err := s.merchants.Register(ctx, admin, service.RegisterMerchantInput{
		Name:          "Kofi's Shop",
		Currency:      domain.CurrencyGHS,
		OwnerEmail:    "Kofi@Example.com",
		OwnerName:     "Kofi",
		OwnerPassword: "supersecret",
	})
	require.NoError(t, err)
	assert.Equal(t, "kofi@example.com", owner.Email)
	require.NotNil(t, owner.MerchantID)
	assert.Equal(t, m.ID, *owner.MerchantID)

	b, err := s.ledger.Snapshot(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CurrencyGHS, b.Currency)
	assert.Zero(t, b.AvailableBalance)

	_, _, err = s.merchants.Register(ctx, admin, service.RegisterMerchantInput{
		Name: "Dup", Currency: domain.CurrencyGHS, OwnerEmail: "kofi@example.com", OwnerName: "K", OwnerPassword: "supersecret",
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	owned := domain.Actor{ID: owner.ID, Role: domain.RoleMerchantOwner, MerchantID: owner.MerchantID}
	_, _, err = s.merchants.Register(ctx, owned, service.RegisterMerchantInput{})
	require.ErrorIs(t, err, domain.ErrForbidden)

	got, err := s.merchants.Get(ctx, owned, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Name, got.Name)
}

func TestPaymentMethodService_DefaultLifecycle(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	m, owner := testutil.SeedMerchant(t, s.db, "Shop", domain.CurrencyGHS)
	actor := domain.Actor{ID: owner.ID, Role: owner.Role, MerchantID: owner.MerchantID}

	first, err := s.methods.Add(ctx, actor, m.ID, domain.NewPaymentMethod{
		Type: domain.PaymentMethodMobileMoney, AccountName: "Kofi", AccountNumber: "0241234567", Provider: "MTN",
	})
	require.NoError(t, err)
	assert.True(t, first.IsDefault)
	assert.Nil(t, first.BankName)

	second, err := s.methods.Add(ctx, actor, m.ID, domain.NewPaymentMethod{
		Type: domain.PaymentMethodBank, AccountName: "Kofi", AccountNumber: "1234", BankName: "GCB",
	})
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	_, err = s.methods.Add(ctx, actor, m.ID, domain.NewPaymentMethod{Type: domain.PaymentMethodBank, AccountName: "x", AccountNumber: "1"})
	require.ErrorIs(t, err, domain.ErrInvalidPaymentMethod)

	_, err = s.methods.SetDefault(ctx, actor, m.ID, second.ID)
	require.NoError(t, err)

	list, err := s.methods.List(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.True(t, list[0].IsDefault)
	assert.False(t, list[1].IsDefault)

	require.NoError(t, s.methods.Remove(ctx, actor, m.ID, second.ID))
	promoted, err := s.methods.Get(ctx, m.ID, first.ID)
	require.NoError(t, err)
	assert.True(t, promoted.IsDefault)

	_, err = s.methods.Get(ctx, m.ID, second.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	other, _ := testutil.SeedMerchant(t, s.db, "Other", domain.CurrencyGHS)
	_, err = s.methods.SetDefault(ctx, admin, other.ID, first.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPaymentMethodService_RemoveInUse(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	m, owner := testutil.SeedMerchant(t, s.db, "Shop", domain.CurrencyGHS)
	actor := domain.Actor{ID: owner.ID, Role: owner.Role, MerchantID: owner.MerchantID}
	pm := testutil.SeedPaymentMethod(t, s.db, m.ID, true, true)
	testutil.CreditBalance(t, s.db, m.ID, 1_000)

	w, err := s.withdrawals.RequestWithdrawal(ctx, withdrawal.RequestInput{
		Actor: actor, MerchantID: m.ID, PaymentMethodID: pm.ID, Amount: 500,
	})
	require.NoError(t, err)

	err = s.methods.Remove(ctx, actor, m.ID, pm.ID)
	require.ErrorIs(t, err, domain.ErrPaymentMethodInUse)
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = s.withdrawals.Reject(ctx, admin, w.ID, "test")
	require.NoError(t, err)
	require.NoError(t, s.methods.Remove(ctx, actor, m.ID, pm.ID))
}

// removeAfterLookup deletes the method right after the withdrawal service's
// unlocked read, before it takes the merchant lock.
type removeAfterLookup struct {
	*repository.PaymentMethodRepository
	remove func()
}

func (r *removeAfterLookup) GetByID(ctx context.Context, merchantID, id uuid.UUID) (*domain.PaymentMethod, error) {
	pm, err := r.PaymentMethodRepository.GetByID(ctx, merchantID, id)
	if err == nil && r.remove != nil {
		r.remove()
		r.remove = nil
	}
	return pm, err
}

func orphanedWithdrawals(t *testing.T, db *sql.DB, merchantID uuid.UUID) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM withdrawals w JOIN payment_methods pm ON pm.id = w.payment_method_id
		WHERE w.merchant_id = $1 AND w.status IN ('pending', 'approved', 'processing') AND pm.deleted_at IS NOT NULL`,
		merchantID,
	).Scan(&n))
	return n
}

func TestRequestWithdrawal_MethodRemovedBeforeLock(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	m, owner := testutil.SeedMerchant(t, s.db, "Shop", domain.CurrencyGHS)
	actor := domain.Actor{ID: owner.ID, Role: owner.Role, MerchantID: owner.MerchantID}
	pm := testutil.SeedPaymentMethod(t, s.db, m.ID, true, true)
	testutil.CreditBalance(t, s.db, m.ID, 1_000)

	methods := &removeAfterLookup{PaymentMethodRepository: repository.NewPaymentMethodRepository(s.db)}
	methods.remove = func() {
		require.NoError(t, s.methods.Remove(ctx, actor, m.ID, pm.ID))
	}
	ws := withdrawal.NewService(withdrawal.Deps{
		DB:             s.db,
		Merchants:      repository.NewMerchantRepository(s.db),
		PaymentMethods: methods,
		Withdrawals:    repository.NewWithdrawalRepository(s.db),
		Events:         repository.NewWithdrawalEventRepository(s.db),
		Outbox:         repository.NewOutboxRepository(s.db),
		Fees:           repository.NewFeePolicyRepository(s.db),
		Ledger:         s.ledger,
	})

	_, err := ws.RequestWithdrawal(ctx, withdrawal.RequestInput{
		Actor: actor, MerchantID: m.ID, PaymentMethodID: pm.ID, Amount: 500,
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	assert.Zero(t, orphanedWithdrawals(t, s.db, m.ID))
	b, err := s.ledger.Snapshot(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), b.AvailableBalance)
	assert.Zero(t, b.PendingWithdrawalsTotal)
}

func TestRequestWithdrawal_RacesRemove(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	m, owner := testutil.SeedMerchant(t, s.db, "Shop", domain.CurrencyGHS)
	actor := domain.Actor{ID: owner.ID, Role: owner.Role, MerchantID: owner.MerchantID}
	testutil.CreditBalance(t, s.db, m.ID, 10_000)

	for range 10 {
		pm := testutil.SeedPaymentMethod(t, s.db, m.ID, false, true)

		var wg sync.WaitGroup
		var requestErr, removeErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, requestErr = s.withdrawals.RequestWithdrawal(ctx, withdrawal.RequestInput{
				Actor: actor, MerchantID: m.ID, PaymentMethodID: pm.ID, Amount: 100,
			})
		}()
		go func() {
			defer wg.Done()
			removeErr = s.methods.Remove(ctx, actor, m.ID, pm.ID)
		}()
		wg.Wait()

		switch {
		case requestErr == nil:
			require.ErrorIs(t, removeErr, domain.ErrPaymentMethodInUse)
		case removeErr == nil:
			require.True(t, errors.Is(requestErr, domain.ErrNotFound), "request error: %v", requestErr)
		default:
			t.Fatalf("both failed: request=%v remove=%v", requestErr, removeErr)
		}
	}

	assert.Zero(t, orphanedWithdrawals(t, s.db, m.ID))
}

func TestFeePolicyService_Update(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	current, err := s.fees.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current.Version)
	assert.True(t, current.Percentage.IsZero())

	updated, err := s.fees.Update(ctx, admin, decimal.RequireFromString("1.25"), "launch pricing")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	require.NotNil(t, updated.PreviousPercentage)
	assert.True(t, updated.PreviousPercentage.IsZero())

	for _, bad := range []string{"-1", "100.5", "1.23456"} {
		_, err := s.fees.Update(ctx, admin, decimal.RequireFromString(bad), "")
		require.ErrorIs(t, err, domain.ErrInvalidFeePercentage, bad)
	}

	owner := uuid.New()
	_, err = s.fees.Update(ctx, domain.Actor{ID: uuid.New(), Role: domain.RoleMerchantOwner, MerchantID: &owner}, decimal.NewFromInt(2), "")
	require.ErrorIs(t, err, domain.ErrForbidden)

	history, err := s.fees.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(2), history[0].Version)
	assert.Equal(t, "1.25", history[0].Percentage.String())
	assert.Equal(t, 1, testutil.CountOutbox(t, s.db, "fee_policy.updated"))
}

func TestEventProcessor_CollectionAndPayoutCallbacks(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	m, owner := testutil.SeedMerchant(t, s.db, "Shop", domain.CurrencyGHS)
	actor := domain.Actor{ID: owner.ID, Role: owner.Role, MerchantID: owner.MerchantID}
	pm := testutil.SeedPaymentMethod(t, s.db, m.ID, true, false)

	credit := domain.CollectionRecordedPayload{
		MerchantID: m.ID, Amount: 8_000, Currency: domain.CurrencyGHS,
		SourceTransactionID: "don-42", CollectedAt: time.Now().UTC(),
	}
	first := s.storeEvent(t, domain.WebhookEventCollectionRecorded, credit)
	replay := s.storeEvent(t, domain.WebhookEventCollectionRecorded, credit)
	verified := s.storeEvent(t, domain.WebhookEventPaymentMethodVerified, domain.VerificationPayload{PaymentMethodID: pm.ID})

	n, err := s.processor.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, id := range []uuid.UUID{first, replay, verified} {
		status, attempts := s.eventStatus(t, id)
		assert.Equal(t, domain.WebhookEventStatusDispatched, status)
		assert.Equal(t, 1, attempts)
	}
	b := testutil.GetBalance(t, s.db, m.ID)
	assert.Equal(t, int64(8_000), b.AvailableBalance)
	assert.Equal(t, int64(8_000), b.TotalCollected)

	got, err := s.methods.Get(ctx, m.ID, pm.ID)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	assert.NotNil(t, got.VerifiedAt)

	w, err := s.withdrawals.RequestWithdrawal(ctx, withdrawal.RequestInput{
		Actor: actor, MerchantID: m.ID, PaymentMethodID: pm.ID, Amount: 3_000,
	})
	require.NoError(t, err)
	_, err = s.withdrawals.Approve(ctx, admin, w.ID, "")
	require.NoError(t, err)
	_, err = s.withdrawals.MarkProcessing(ctx, admin, w.ID)
	require.NoError(t, err)

	retrying := s.storeEvent(t, domain.WebhookEventPayoutRetrying, domain.PayoutPayload{WithdrawalID: w.ID, Reason: "timeout"})
	_, err = s.processor.Poll(ctx)
	require.NoError(t, err)
	status, _ := s.eventStatus(t, retrying)
	assert.Equal(t, domain.WebhookEventStatusDispatched, status)

	completed := s.storeEvent(t, domain.WebhookEventPayoutCompleted, domain.PayoutPayload{WithdrawalID: w.ID, TransactionReference: "MOMO-9"})
	_, err = s.processor.Poll(ctx)
	require.NoError(t, err)
	status, _ = s.eventStatus(t, completed)
	assert.Equal(t, domain.WebhookEventStatusDispatched, status)

	done, err := s.withdrawals.Get(ctx, admin, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusCompleted, done.Status)
	assert.Equal(t, 1, done.RetryCount)
	assert.Equal(t, "system:"+domain.SystemActor.ID.String(), *done.ProcessedBy)

	b = testutil.GetBalance(t, s.db, m.ID)
	assert.Equal(t, int64(5_000), b.AvailableBalance)
	assert.Equal(t, int64(3_000), b.TotalWithdrawn)
	assert.Zero(t, b.PendingWithdrawalsTotal)
}

func TestEventProcessor_ReprocessedRetryCountsOnce(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	m, owner := testutil.SeedMerchant(t, s.db, "Shop", domain.CurrencyGHS)
	actor := domain.Actor{ID: owner.ID, Role: owner.Role, MerchantID: owner.MerchantID}
	pm := testutil.SeedPaymentMethod(t, s.db, m.ID, true, true)
	testutil.CreditBalance(t, s.db, m.ID, 1_000)

	w, err := s.withdrawals.RequestWithdrawal(ctx, withdrawal.RequestInput{
		Actor: actor, MerchantID: m.ID, PaymentMethodID: pm.ID, Amount: 500,
	})
	require.NoError(t, err)
	_, err = s.withdrawals.Approve(ctx, admin, w.ID, "")
	require.NoError(t, err)
	_, err = s.withdrawals.MarkProcessing(ctx, admin, w.ID)
	require.NoError(t, err)

	retrying := s.storeEvent(t, domain.WebhookEventPayoutRetrying, domain.PayoutPayload{WithdrawalID: w.ID, Reason: "timeout"})
	_, err = s.processor.Poll(ctx)
	require.NoError(t, err)

	// The retry committed but the event's status update was lost.
	_, err = s.db.Exec(`UPDATE webhook_events SET status = 'pending' WHERE id = $1`, retrying)
	require.NoError(t, err)
	_, err = s.processor.Poll(ctx)
	require.NoError(t, err)
	status, _ := s.eventStatus(t, retrying)
	assert.Equal(t, domain.WebhookEventStatusDispatched, status)

	got, err := s.withdrawals.Get(ctx, admin, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)

	s.storeEvent(t, domain.WebhookEventPayoutRetrying, domain.PayoutPayload{WithdrawalID: w.ID, Reason: "timeout again"})
	_, err = s.processor.Poll(ctx)
	require.NoError(t, err)

	got, err = s.withdrawals.Get(ctx, admin, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)

	events, err := s.withdrawals.Events(ctx, admin, w.ID)
	require.NoError(t, err)
	var retries int
	for _, e := range events {
		if e.EventType == domain.WithdrawalEventRecordRetry {
			retries++
			require.NotNil(t, e.SourceEventID)
		}
	}
	assert.Equal(t, 2, retries)
}

func TestEventProcessor_RejectsBadEvents(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()
	m, _ := testutil.SeedMerchant(t, s.db, "Shop", domain.CurrencyGHS)

	unknownWithdrawal := s.storeEvent(t, domain.WebhookEventPayoutFailed, domain.PayoutPayload{WithdrawalID: uuid.New(), Reason: "x"})
	malformed := s.storeEvent(t, domain.WebhookEventCollectionRecorded, map[string]any{"merchant_id": m.ID, "amount": -1})

	s.storeEvent(t, domain.WebhookEventCollectionRecorded, domain.CollectionRecordedPayload{
		MerchantID: m.ID, Amount: 100, Currency: domain.CurrencyGHS, SourceTransactionID: "don-1", CollectedAt: time.Now().UTC(),
	})
	mismatch := s.storeEvent(t, domain.WebhookEventCollectionRecorded, domain.CollectionRecordedPayload{
		MerchantID: m.ID, Amount: 200, Currency: domain.CurrencyGHS, SourceTransactionID: "don-1", CollectedAt: time.Now().UTC(),
	})

	_, err := s.processor.Poll(ctx)
	require.NoError(t, err)

	for _, id := range []uuid.UUID{unknownWithdrawal, malformed, mismatch} {
		status, _ := s.eventStatus(t, id)
		assert.Equal(t, domain.WebhookEventStatusFailed, status)
	}
	b := testutil.GetBalance(t, s.db, m.ID)
	assert.Equal(t, int64(100), b.TotalCollected)
}
