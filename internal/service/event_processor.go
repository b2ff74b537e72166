package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
	"github.com/josh-kwaku/payout-ledger/internal/metrics"
)

const defaultEventBatchSize = 10

// EventProcessor drains stored inbound events: collection credits,
// verification verdicts and payout rail callbacks.
type EventProcessor struct {
	webhooks      webhookEventRepository
	credits       balanceCreditor
	payouts       payoutTransitioner
	verifications verificationRecorder
	db            txBeginner
	metrics       *metrics.Metrics
	logger        *slog.Logger
	interval      time.Duration
	batchSize     int
}

func NewEventProcessor(
	webhooks webhookEventRepository,
	credits balanceCreditor,
	payouts payoutTransitioner,
	verifications verificationRecorder,
	db txBeginner,
	m *metrics.Metrics,
	logger *slog.Logger,
	interval time.Duration,
) *EventProcessor {
	return &EventProcessor{
		webhooks:      webhooks,
		credits:       credits,
		payouts:       payouts,
		verifications: verifications,
		db:            db,
		metrics:       m,
		logger:        logger,
		interval:      interval,
		batchSize:     defaultEventBatchSize,
	}
}

// Start polls until ctx is cancelled. It returns nil on shutdown so it can
// run under an errgroup.
func (p *EventProcessor) Start(ctx context.Context) error {
	p.logger.Info("event processor started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("event processor stopped")
			return nil
		case <-ticker.C:
			if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("event poll failed", "error", err)
			}
		}
	}
}

// Poll claims one batch of pending events and processes them. The claim is
// held until every outcome in the batch is recorded.
func (p *EventProcessor) Poll(ctx context.Context) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("Poll: begin tx: %w", err)
	}
	defer tx.Rollback()

	events, err := p.webhooks.GetPending(ctx, tx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("Poll: %w", err)
	}

	for _, event := range events {
		status, lastErr := p.outcome(event, p.process(ctx, event))
		if err := p.webhooks.UpdateStatus(ctx, tx, event.ID, status, lastErr); err != nil {
			return 0, fmt.Errorf("Poll: %w", err)
		}
		p.metrics.WebhookProcessed(string(event.EventType), status == domain.WebhookEventStatusDispatched)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("Poll: commit: %w", err)
	}
	return len(events), nil
}

func (p *EventProcessor) process(ctx context.Context, event domain.WebhookEvent) error {
	ctx = logging.WithLogger(ctx, p.logger.With(
		"webhook_event_id", event.ID,
		"event_type", event.EventType,
	))

	payload, err := domain.DecodeWebhookPayload(event.EventType, event.Payload)
	if err != nil {
		return err
	}

	switch pl := payload.(type) {
	case domain.CollectionRecordedPayload:
		_, _, err = p.credits.Credit(ctx, pl.CreditEvent())
	case domain.VerificationPayload:
		_, err = p.verifications.MarkVerified(ctx, pl.PaymentMethodID, event.EventType == domain.WebhookEventPaymentMethodVerified)
	case domain.PayoutPayload:
		switch event.EventType {
		case domain.WebhookEventPayoutCompleted:
			_, err = p.payouts.Complete(ctx, domain.SystemActor, pl.WithdrawalID, pl.TransactionReference)
		case domain.WebhookEventPayoutFailed:
			_, err = p.payouts.Fail(ctx, domain.SystemActor, pl.WithdrawalID, pl.Reason)
		case domain.WebhookEventPayoutRetrying:
			_, err = p.payouts.RecordRetryFromEvent(ctx, event.ID, pl.WithdrawalID, pl.Reason)
		}
	}
	return err
}

// outcome maps a processing result to the stored status. Domain rejections
// are final; anything else is retried until the attempt budget runs out.
func (p *EventProcessor) outcome(event domain.WebhookEvent, err error) (domain.WebhookEventStatus, *string) {
	if err == nil {
		return domain.WebhookEventStatusDispatched, nil
	}
	msg := err.Error()
	log := p.logger.With("webhook_event_id", event.ID, "event_type", event.EventType, "attempt", event.Attempts+1)

	if isPermanent(err) {
		log.Warn("inbound event rejected", "error", err)
		return domain.WebhookEventStatusFailed, &msg
	}
	if errors.Is(err, domain.ErrLedgerIntegrity) || event.Attempts+1 >= domain.MaxWebhookAttempts {
		log.Error("inbound event failed permanently", "error", err)
		return domain.WebhookEventStatusFailed, &msg
	}
	log.Warn("inbound event will be retried", "error", err)
	return domain.WebhookEventStatusPending, &msg
}

func isPermanent(err error) bool {
	for _, target := range []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrInvalidStateTransition,
		domain.ErrForbidden,
		domain.ErrCreditMismatch,
		domain.ErrTxRefMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
