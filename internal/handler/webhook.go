package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
)

type webhookEventRepository interface {
	Create(ctx context.Context, event *domain.WebhookEvent) (bool, error)
}

// WebhookHandler accepts signed inbound events and stores them for the
// event processor. Nothing is applied inline.
type WebhookHandler struct {
	webhooks webhookEventRepository
	secret   string
}

func NewWebhookHandler(webhooks webhookEventRepository, secret string) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, secret: secret}
}

type webhookEnvelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

func (p webhookEnvelope) validate() []FieldError {
	var errs []FieldError

	if strings.TrimSpace(p.EventID) == "" {
		errs = append(errs, FieldError{Field: "event_id", Message: "required"})
	}

	if p.EventType == "" {
		errs = append(errs, FieldError{Field: "event_type", Message: "required"})
	} else if !domain.WebhookEventType(p.EventType).IsValid() {
		errs = append(errs, FieldError{Field: "event_type", Message: "unknown event type"})
	}

	if len(p.Data) == 0 {
		errs = append(errs, FieldError{Field: "data", Message: "required"})
	}

	return errs
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	sig := r.Header.Get("X-Webhook-Signature")
	if !verifyHMAC(body, sig, h.secret) {
		log.Warn("webhook signature verification failed")
		RespondAppError(w, ErrInvalidSignature, nil)
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		log.Warn("failed to parse webhook payload", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := env.validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	eventType := domain.WebhookEventType(env.EventType)
	if _, err := domain.DecodeWebhookPayload(eventType, env.Data); err != nil {
		RespondValidationError(w, []FieldError{{Field: "data", Message: err.Error()}})
		return
	}

	event := &domain.WebhookEvent{
		ID:             uuid.New(),
		IdempotencyKey: env.EventID,
		EventType:      eventType,
		Payload:        env.Data,
		Status:         domain.WebhookEventStatusPending,
		CreatedAt:      time.Now().UTC(),
	}

	created, err := h.webhooks.Create(r.Context(), event)
	if err != nil {
		log.Error("failed to store webhook event", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}
	if !created {
		log.Info("duplicate webhook received", "event_id", env.EventID, "event_type", eventType)
		RespondSuccess(w, http.StatusOK, map[string]string{"status": "already_received"})
		return
	}

	log.Info("webhook event stored",
		"webhook_event_id", event.ID,
		"source_event_id", env.EventID,
		"event_type", eventType,
	)

	RespondSuccess(w, http.StatusAccepted, map[string]string{"status": "received"})
}

func verifyHMAC(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
