package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type CollectionRecordedPayload struct {
	MerchantID          uuid.UUID `json:"merchant_id"`
	Amount              int64     `json:"amount"`
	Currency            Currency  `json:"currency"`
	SourceTransactionID string    `json:"source_transaction_id"`
	CollectedAt         time.Time `json:"collected_at"`
}

func (p CollectionRecordedPayload) CreditEvent() CreditEvent {
	return CreditEvent{
		MerchantID:          p.MerchantID,
		Amount:              p.Amount,
		Currency:            p.Currency,
		SourceTransactionID: p.SourceTransactionID,
		CollectedAt:         p.CollectedAt,
	}
}

type VerificationPayload struct {
	PaymentMethodID uuid.UUID `json:"payment_method_id"`
}

type PayoutPayload struct {
	WithdrawalID         uuid.UUID `json:"withdrawal_id"`
	TransactionReference string    `json:"transaction_reference,omitempty"`
	Reason               string    `json:"reason,omitempty"`
}

// DecodeWebhookPayload parses raw into the payload type for t and checks
// its required fields. The result is one of CollectionRecordedPayload,
// VerificationPayload or PayoutPayload.
func DecodeWebhookPayload(t WebhookEventType, raw json.RawMessage) (any, error) {
	switch t {
	case WebhookEventCollectionRecorded:
		var p CollectionRecordedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("DecodeWebhookPayload: %v: %w", err, ErrInvalidRequest)
		}
		switch {
		case p.MerchantID == uuid.Nil:
			return nil, fmt.Errorf("DecodeWebhookPayload: merchant_id required: %w", ErrInvalidRequest)
		case p.Amount <= 0:
			return nil, fmt.Errorf("DecodeWebhookPayload: %w", ErrInvalidAmount)
		case !p.Currency.IsValid():
			return nil, fmt.Errorf("DecodeWebhookPayload: %w", ErrInvalidCurrency)
		case strings.TrimSpace(p.SourceTransactionID) == "":
			return nil, fmt.Errorf("DecodeWebhookPayload: source_transaction_id required: %w", ErrInvalidRequest)
		}
		return p, nil

	case WebhookEventPaymentMethodVerified, WebhookEventPaymentMethodUnverified:
		var p VerificationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("DecodeWebhookPayload: %v: %w", err, ErrInvalidRequest)
		}
		if p.PaymentMethodID == uuid.Nil {
			return nil, fmt.Errorf("DecodeWebhookPayload: payment_method_id required: %w", ErrInvalidRequest)
		}
		return p, nil

	case WebhookEventPayoutCompleted, WebhookEventPayoutFailed, WebhookEventPayoutRetrying:
		var p PayoutPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("DecodeWebhookPayload: %v: %w", err, ErrInvalidRequest)
		}
		if p.WithdrawalID == uuid.Nil {
			return nil, fmt.Errorf("DecodeWebhookPayload: withdrawal_id required: %w", ErrInvalidRequest)
		}
		if t == WebhookEventPayoutCompleted && strings.TrimSpace(p.TransactionReference) == "" {
			return nil, fmt.Errorf("DecodeWebhookPayload: %w", ErrTxRefRequired)
		}
		return p, nil
	}
	return nil, fmt.Errorf("DecodeWebhookPayload: event type %q: %w", t, ErrInvalidRequest)
}
