package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/metrics"
	"github.com/josh-kwaku/payout-ledger/internal/repository"
)

const backlogInterval = 30 * time.Second

// reportBacklog samples the outbox and inbound event tables into the
// queue_depth gauge. A growing failed count means events need an operator.
func reportBacklog(ctx context.Context, outbox *repository.OutboxRepository, inbound *repository.WebhookEventRepository, m *metrics.Metrics, logger *slog.Logger) error {
	ticker := time.NewTicker(backlogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for _, status := range []domain.OutboxStatus{domain.OutboxStatusPending, domain.OutboxStatusFailed} {
			n, err := outbox.CountByStatus(ctx, status)
			if err != nil {
				logger.Warn("outbox backlog sample failed", "status", status, "error", err)
				continue
			}
			m.QueueDepth("outbox", string(status), n)
		}
		for _, status := range []domain.WebhookEventStatus{domain.WebhookEventStatusPending, domain.WebhookEventStatusFailed} {
			n, err := inbound.CountByStatus(ctx, status)
			if err != nil {
				logger.Warn("inbound backlog sample failed", "status", status, "error", err)
				continue
			}
			m.QueueDepth("inbound", string(status), n)
		}
	}
}
