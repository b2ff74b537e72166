package repository_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/repository"
	"github.com/josh-kwaku/payout-ledger/internal/testutil"
	"github.com/josh-kwaku/payout-ledger/migrations"
)

func TestMigrate_SkipsApplied(t *testing.T) {
	db := testutil.SetupTestDB(t)

	applied, err := repository.Migrate(context.Background(), db, migrations.FS)
	require.NoError(t, err)
	assert.Empty(t, applied, "the template database is already migrated")

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 4, n)
}

func TestIdempotencyRepository_Reservation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewIdempotencyRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	entry := &repository.IdempotencyCacheEntry{
		Key: "wd-1", UserID: userID, RequestHash: "h1", CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}
	won, err := repo.Reserve(ctx, entry)
	require.NoError(t, err)
	require.True(t, won)

	won, err = repo.Reserve(ctx, entry)
	require.NoError(t, err)
	assert.False(t, won)

	got, err := repo.Get(ctx, "wd-1", userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.InFlight())

	entry.StatusCode = 201
	entry.ResponseBody = []byte(`{"success":true}`)
	entry.ExpiresAt = now.Add(24 * time.Hour)
	require.NoError(t, repo.Complete(ctx, entry))
	require.NoError(t, repo.Release(ctx, "wd-1", userID), "completed entries are not released")

	got, err = repo.Get(ctx, "wd-1", userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 201, got.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(got.ResponseBody))
}

func TestIdempotencyRepository_ExpiredRowIsTakenOver(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewIdempotencyRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	stale := &repository.IdempotencyCacheEntry{Key: "k", UserID: userID, RequestHash: "old", CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)}
	_, err := repo.Reserve(ctx, stale)
	require.NoError(t, err)

	got, err := repo.Get(ctx, "k", userID)
	require.NoError(t, err)
	assert.Nil(t, got, "expired rows are invisible")

	fresh := &repository.IdempotencyCacheEntry{Key: "k", UserID: userID, RequestHash: "new", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	won, err := repo.Reserve(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, won)

	n, err := repo.CleanExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWebhookEventRepository_CreateDeduplicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewWebhookEventRepository(db)
	ctx := context.Background()

	event := func() *domain.WebhookEvent {
		return &domain.WebhookEvent{
			ID:             uuid.New(),
			IdempotencyKey: "evt_123",
			EventType:      domain.WebhookEventPayoutRetrying,
			Payload:        json.RawMessage(`{"withdrawal_id":"` + uuid.NewString() + `"}`),
			Status:         domain.WebhookEventStatusPending,
			CreatedAt:      time.Now().UTC(),
		}
	}

	created, err := repo.Create(ctx, event())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Create(ctx, event())
	require.NoError(t, err)
	assert.False(t, created)

	pending, err := repo.CountByStatus(ctx, domain.WebhookEventStatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestOutboxRepository_AttemptBudget(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewOutboxRepository(db)
	ctx := context.Background()

	ev, err := domain.NewOutboxEvent(domain.OutboxTopicBalance, "balance.credited", uuid.New(), map[string]int{"amount": 1}, time.Now().UTC())
	require.NoError(t, err)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tx, ev))
	require.NoError(t, repo.MarkAttemptFailed(ctx, tx, ev.ID, "broker down", 2))
	require.NoError(t, tx.Commit())

	pending, err := repo.CountByStatus(ctx, domain.OutboxStatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "one failure is below the budget")

	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.MarkAttemptFailed(ctx, tx, ev.ID, "broker down", 2))
	require.NoError(t, tx.Commit())

	failed, err := repo.CountByStatus(ctx, domain.OutboxStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
}
