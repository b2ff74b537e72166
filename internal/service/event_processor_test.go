package service

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

func TestEventProcessor_Outcome(t *testing.T) {
	p := &EventProcessor{logger: slog.Default()}
	transient := errors.New("connection reset")

	tests := []struct {
		name       string
		attempts   int
		err        error
		wantStatus domain.WebhookEventStatus
		wantError  bool
	}{
		{name: "success", err: nil, wantStatus: domain.WebhookEventStatusDispatched},
		{name: "validation is final", err: fmt.Errorf("x: %w", domain.ErrInvalidAmount), wantStatus: domain.WebhookEventStatusFailed, wantError: true},
		{name: "unknown withdrawal is final", err: fmt.Errorf("x: %w", domain.ErrNotFound), wantStatus: domain.WebhookEventStatusFailed, wantError: true},
		{name: "wrong state is final", err: &domain.TransitionError{From: domain.WithdrawalStatusPending, Event: domain.WithdrawalEventComplete}, wantStatus: domain.WebhookEventStatusFailed, wantError: true},
		{name: "credit mismatch is final", err: domain.ErrCreditMismatch, wantStatus: domain.WebhookEventStatusFailed, wantError: true},
		{name: "integrity violation is final", err: &domain.IntegrityError{Rule: "r"}, wantStatus: domain.WebhookEventStatusFailed, wantError: true},
		{name: "version conflict retries", err: domain.ErrVersionConflict, wantStatus: domain.WebhookEventStatusPending, wantError: true},
		{name: "transient retries", attempts: 0, err: transient, wantStatus: domain.WebhookEventStatusPending, wantError: true},
		{name: "transient on last attempt fails", attempts: domain.MaxWebhookAttempts - 1, err: transient, wantStatus: domain.WebhookEventStatusFailed, wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := domain.WebhookEvent{ID: uuid.New(), EventType: domain.WebhookEventPayoutCompleted, Attempts: tt.attempts}
			status, lastErr := p.outcome(event, tt.err)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantError {
				require.NotNil(t, lastErr)
				assert.Equal(t, tt.err.Error(), *lastErr)
			} else {
				assert.Nil(t, lastErr)
			}
		})
	}
}

func TestDecodeWebhookPayload(t *testing.T) {
	wid := uuid.New()
	tests := []struct {
		name    string
		typ     domain.WebhookEventType
		raw     string
		wantErr error
	}{
		{name: "collection", typ: domain.WebhookEventCollectionRecorded, raw: `{"merchant_id":"` + wid.String() + `","amount":10,"currency":"GHS","source_transaction_id":"d1","collected_at":"2026-01-02T00:00:00Z"}`},
		{name: "collection without source", typ: domain.WebhookEventCollectionRecorded, raw: `{"merchant_id":"` + wid.String() + `","amount":10,"currency":"GHS"}`, wantErr: domain.ErrInvalidRequest},
		{name: "collection bad currency", typ: domain.WebhookEventCollectionRecorded, raw: `{"merchant_id":"` + wid.String() + `","amount":10,"currency":"XXX","source_transaction_id":"d1"}`, wantErr: domain.ErrInvalidCurrency},
		{name: "verification", typ: domain.WebhookEventPaymentMethodUnverified, raw: `{"payment_method_id":"` + wid.String() + `"}`},
		{name: "verification missing id", typ: domain.WebhookEventPaymentMethodVerified, raw: `{}`, wantErr: domain.ErrInvalidRequest},
		{name: "completed", typ: domain.WebhookEventPayoutCompleted, raw: `{"withdrawal_id":"` + wid.String() + `","transaction_reference":"R1"}`},
		{name: "completed without ref", typ: domain.WebhookEventPayoutCompleted, raw: `{"withdrawal_id":"` + wid.String() + `"}`, wantErr: domain.ErrTxRefRequired},
		{name: "failed", typ: domain.WebhookEventPayoutFailed, raw: `{"withdrawal_id":"` + wid.String() + `","reason":"closed"}`},
		{name: "not json", typ: domain.WebhookEventPayoutRetrying, raw: `nope`, wantErr: domain.ErrValidation},
		{name: "unknown type", typ: "payout.lost", raw: `{}`, wantErr: domain.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.DecodeWebhookPayload(tt.typ, []byte(tt.raw))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
