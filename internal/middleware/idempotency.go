package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/auth"
	"github.com/josh-kwaku/payout-ledger/internal/handler"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
	"github.com/josh-kwaku/payout-ledger/internal/repository"
)

// IdempotencyStore is satisfied by the Postgres repository and the Redis
// store. Reserve must be first-writer-wins.
type IdempotencyStore interface {
	Get(ctx context.Context, key string, userID uuid.UUID) (*repository.IdempotencyCacheEntry, error)
	Reserve(ctx context.Context, entry *repository.IdempotencyCacheEntry) (bool, error)
	Complete(ctx context.Context, entry *repository.IdempotencyCacheEntry) error
	Release(ctx context.Context, key string, userID uuid.UUID) error
}

const (
	idempotencyTTL = 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can hold its key.
	inFlightTTL = time.Minute

	maxIdempotencyKeyBytes = 255
)

// Idempotency replays the stored response for a repeated key. The key is
// reserved before the handler runs, so a concurrent duplicate gets
// REQUEST_IN_PROGRESS instead of a second execution. 5xx responses, version
// conflicts and panics release the key and the client may retry.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			log := logging.FromContext(ctx)

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			}
			if len(key) > maxIdempotencyKeyBytes {
				handler.RespondValidationError(w, []handler.FieldError{{Field: "Idempotency-Key", Message: "must be at most 255 bytes"}})
				return
			}

			userID, ok := auth.UserIDFromContext(ctx)
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			reqHash := computeHash(r.Method, r.URL.Path, body)

			cached, err := store.Get(ctx, key, userID)
			if err != nil {
				log.Error("idempotency cache lookup failed", "error", err, "idempotency_key", key)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}
			if cached != nil {
				replay(ctx, w, cached, reqHash)
				return
			}

			now := time.Now().UTC()
			entry := &repository.IdempotencyCacheEntry{
				Key:         key,
				UserID:      userID,
				RequestHash: reqHash,
				CreatedAt:   now,
				ExpiresAt:   now.Add(inFlightTTL),
			}
			won, err := store.Reserve(ctx, entry)
			if err != nil {
				log.Error("idempotency reservation failed", "error", err, "idempotency_key", key)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}
			if !won {
				handler.RespondAppError(w, handler.ErrRequestInProgress, nil)
				return
			}

			settled := false
			defer func() {
				if settled {
					return
				}
				if err := store.Release(context.WithoutCancel(ctx), key, userID); err != nil {
					log.Error("idempotency release failed", "error", err, "idempotency_key", key)
				}
			}()

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError || retryable(rec) {
				return
			}

			// From here the key stays taken even if Complete fails, which
			// turns retries away until inFlightTTL instead of running twice.
			settled = true
			entry.StatusCode = rec.statusCode
			entry.ResponseBody = rec.body.Bytes()
			entry.ExpiresAt = time.Now().UTC().Add(idempotencyTTL)
			if err := store.Complete(context.WithoutCancel(ctx), entry); err != nil {
				log.Error("idempotency cache store failed", "error", err, "idempotency_key", key)
			}
		})
	}
}

func replay(ctx context.Context, w http.ResponseWriter, cached *repository.IdempotencyCacheEntry, reqHash string) {
	switch {
	case cached.RequestHash != reqHash:
		handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
	case cached.InFlight():
		handler.RespondAppError(w, handler.ErrRequestInProgress, nil)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Idempotent-Replayed", "true")
		w.WriteHeader(cached.StatusCode)
		if _, err := w.Write(cached.ResponseBody); err != nil {
			logging.FromContext(ctx).Error("failed to write idempotent replay", "error", err, "idempotency_key", cached.Key)
		}
	}
}

// retryable reports a response that tells the client to send the same
// request again.
func retryable(rec *responseRecorder) bool {
	if rec.statusCode != handler.ErrVersionConflict.Status {
		return false
	}
	var resp handler.APIResponse
	if err := json.Unmarshal(rec.body.Bytes(), &resp); err != nil || resp.Error == nil {
		return false
	}
	return resp.Error.Code == handler.ErrVersionConflict.Code
}

func computeHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return fmt.Sprintf("%x", h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
