package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookEventStatus string

const (
	WebhookEventStatusPending    WebhookEventStatus = "pending"
	WebhookEventStatusDispatched WebhookEventStatus = "dispatched"
	WebhookEventStatusFailed     WebhookEventStatus = "failed"
)

type WebhookEventType string

const (
	WebhookEventCollectionRecorded      WebhookEventType = "collection.recorded"
	WebhookEventPaymentMethodVerified   WebhookEventType = "payment_method.verified"
	WebhookEventPaymentMethodUnverified WebhookEventType = "payment_method.unverified"
	WebhookEventPayoutCompleted         WebhookEventType = "payout.completed"
	WebhookEventPayoutFailed            WebhookEventType = "payout.failed"
	WebhookEventPayoutRetrying          WebhookEventType = "payout.retrying"
)

func (t WebhookEventType) IsValid() bool {
	switch t {
	case WebhookEventCollectionRecorded,
		WebhookEventPaymentMethodVerified,
		WebhookEventPaymentMethodUnverified,
		WebhookEventPayoutCompleted,
		WebhookEventPayoutFailed,
		WebhookEventPayoutRetrying:
		return true
	default:
		return false
	}
}

// WebhookEvent is an inbound event stored for asynchronous processing.
type WebhookEvent struct {
	ID             uuid.UUID
	IdempotencyKey string
	EventType      WebhookEventType
	Payload        json.RawMessage
	Status         WebhookEventStatus
	Attempts       int
	LastError      *string
	LastAttempt    *time.Time
	CreatedAt      time.Time
}

const MaxWebhookAttempts = 5
