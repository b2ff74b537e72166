package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/metrics"
)

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type outboxRepository interface {
	GetPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error
	MarkAttemptFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, cause string, maxAttempts int) error
}

type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// Relay publishes pending outbox rows in creation order. Rows are claimed
// with SKIP LOCKED, so several relays can run against one database.
type Relay struct {
	db        txBeginner
	outbox    outboxRepository
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       RelayConfig
	now       func() time.Time
}

func NewRelay(db txBeginner, outbox outboxRepository, publisher Publisher, m *metrics.Metrics, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Relay{
		db:        db,
		outbox:    outbox,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("outbox relay started", "interval", r.cfg.Interval, "batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Poll(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox poll failed", "error", err)
			}
		}
	}
}

// Poll publishes one batch and returns how many rows were dispatched. A
// failed publish stops the batch so later events for the same merchant are
// not sent ahead of it.
func (r *Relay) Poll(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("Poll: begin tx: %w", err)
	}
	defer tx.Rollback()

	pending, err := r.outbox.GetPending(ctx, tx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("Poll: %w", err)
	}

	dispatched := 0
	for _, e := range pending {
		if err := r.publisher.Publish(ctx, e); err != nil {
			r.metrics.OutboxPublished(false)
			r.logger.Warn("outbox publish failed",
				"event_id", e.ID,
				"event_type", e.EventType,
				"attempt", e.Attempts+1,
				"error", err,
			)
			if err := r.outbox.MarkAttemptFailed(ctx, tx, e.ID, err.Error(), r.cfg.MaxAttempts); err != nil {
				return dispatched, fmt.Errorf("Poll: %w", err)
			}
			break
		}
		if err := r.outbox.MarkDispatched(ctx, tx, e.ID, r.now()); err != nil {
			return dispatched, fmt.Errorf("Poll: %w", err)
		}
		r.metrics.OutboxPublished(true)
		dispatched++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("Poll: commit: %w", err)
	}
	if dispatched > 0 {
		r.logger.Debug("outbox batch dispatched", "count", dispatched)
	}
	return dispatched, nil
}
