package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

const testWebhookSecret = "test-secret-key"

type mockWebhookRepo struct {
	created   *domain.WebhookEvent
	duplicate bool
	err       error
}

func (m *mockWebhookRepo) Create(_ context.Context, event *domain.WebhookEvent) (bool, error) {
	m.created = event
	if m.err != nil {
		return false, m.err
	}
	return !m.duplicate, nil
}

func signPayload(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody(eventType string, data any) string {
	raw, _ := json.Marshal(data)
	b, _ := json.Marshal(webhookEnvelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Data:      raw,
	})
	return string(b)
}

func validWebhookBody() string {
	return webhookBody("payout.completed", map[string]string{
		"withdrawal_id":         uuid.NewString(),
		"transaction_reference": "MTN-778812",
	})
}

func TestVerifyHMAC(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		signature string
		secret    string
		want      bool
	}{
		{
			name:      "valid signature",
			body:      `{"event_id":"abc"}`,
			signature: signPayload(`{"event_id":"abc"}`, testWebhookSecret),
			secret:    testWebhookSecret,
			want:      true,
		},
		{
			name:      "wrong signature",
			body:      `{"event_id":"abc"}`,
			signature: "deadbeef",
			secret:    testWebhookSecret,
			want:      false,
		},
		{
			name:      "empty signature",
			body:      `{"event_id":"abc"}`,
			signature: "",
			secret:    testWebhookSecret,
			want:      false,
		},
		{
			name:      "wrong secret",
			body:      `{"event_id":"abc"}`,
			signature: signPayload(`{"event_id":"abc"}`, "other-secret"),
			secret:    testWebhookSecret,
			want:      false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := verifyHMAC([]byte(tc.body), tc.signature, tc.secret)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReceiveWebhook(t *testing.T) {
	sign := func(body string) string { return signPayload(body, testWebhookSecret) }

	tests := []struct {
		name       string
		body       string
		setupSig   func(body string) string
		repoErr    error
		duplicate  bool
		wantStatus int
		wantCode   string
	}{
		{
			name:       "valid signed webhook",
			body:       validWebhookBody(),
			setupSig:   sign,
			wantStatus: http.StatusAccepted,
		},
		{
			name: "collection credit",
			body: webhookBody("collection.recorded", map[string]any{
				"merchant_id":           uuid.NewString(),
				"amount":                25_000,
				"currency":              "GHS",
				"source_transaction_id": "col-1",
			}),
			setupSig:   sign,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "missing signature header",
			body:       validWebhookBody(),
			setupSig:   nil,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_SIGNATURE",
		},
		{
			name:       "invalid HMAC signature",
			body:       validWebhookBody(),
			setupSig:   func(_ string) string { return "deadbeefdeadbeef" },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_SIGNATURE",
		},
		{
			name:       "empty body",
			body:       "",
			setupSig:   sign,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "invalid JSON body",
			body:       "not-json",
			setupSig:   sign,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "unknown event type",
			body:       webhookBody("payout.vanished", map[string]string{}),
			setupSig:   sign,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "completion without transaction reference",
			body:       webhookBody("payout.completed", map[string]string{"withdrawal_id": uuid.NewString()}),
			setupSig:   sign,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "duplicate webhook returns OK",
			body:       validWebhookBody(),
			setupSig:   sign,
			duplicate:  true,
			wantStatus: http.StatusOK,
		},
		{
			name:       "repository error returns 500",
			body:       validWebhookBody(),
			setupSig:   sign,
			repoErr:    fmt.Errorf("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockWebhookRepo{err: tc.repoErr, duplicate: tc.duplicate}
			h := NewWebhookHandler(repo, testWebhookSecret)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/events", strings.NewReader(tc.body))
			if tc.setupSig != nil {
				req.Header.Set("X-Webhook-Signature", tc.setupSig(tc.body))
			}
			rr := httptest.NewRecorder()

			h.Receive(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)

			var resp APIResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

			if tc.wantCode == "" {
				assert.True(t, resp.Success)
			} else {
				assert.False(t, resp.Success)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestReceiveWebhook_StoresDataPayload(t *testing.T) {
	repo := &mockWebhookRepo{}
	h := NewWebhookHandler(repo, testWebhookSecret)

	wid := uuid.New()
	body := webhookBody("payout.failed", map[string]string{"withdrawal_id": wid.String(), "reason": "account closed"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/events", strings.NewReader(body))
	req.Header.Set("X-Webhook-Signature", signPayload(body, testWebhookSecret))
	rr := httptest.NewRecorder()

	h.Receive(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.NotNil(t, repo.created)
	assert.Equal(t, domain.WebhookEventStatusPending, repo.created.Status)
	assert.Equal(t, domain.WebhookEventPayoutFailed, repo.created.EventType)
	assert.NotEqual(t, uuid.Nil, repo.created.ID)

	var env webhookEnvelope
	require.NoError(t, json.Unmarshal([]byte(body), &env))
	assert.Equal(t, env.EventID, repo.created.IdempotencyKey)
	assert.JSONEq(t, `{"withdrawal_id":"`+wid.String()+`","reason":"account closed"}`, string(repo.created.Payload))
}
