package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdempotencyCacheEntry is a stored response keyed by (Idempotency-Key, user).
// A zero StatusCode marks a reservation whose request is still running.
type IdempotencyCacheEntry struct {
	Key          string    `json:"key"`
	UserID       uuid.UUID `json:"user_id"`
	RequestHash  string    `json:"request_hash"`
	StatusCode   int       `json:"status_code"`
	ResponseBody []byte    `json:"response_body"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (e *IdempotencyCacheEntry) InFlight() bool { return e.StatusCode == 0 }

type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string, userID uuid.UUID) (*IdempotencyCacheEntry, error) {
	var e IdempotencyCacheEntry
	err := r.db.QueryRowContext(ctx,
		`SELECT idempotency_key, user_id, request_hash, status_code, response_body, created_at, expires_at
		FROM idempotency_cache
		WHERE idempotency_key = $1 AND user_id = $2 AND expires_at > now()`,
		key, userID,
	).Scan(&e.Key, &e.UserID, &e.RequestHash, &e.StatusCode, &e.ResponseBody, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &e, nil
}

// Reserve claims the key as in flight until entry.ExpiresAt. It reports
// false when a live entry already holds the key. An expired row left behind
// by cleanup lag is taken over.
func (r *IdempotencyRepository) Reserve(ctx context.Context, entry *IdempotencyCacheEntry) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO idempotency_cache (idempotency_key, user_id, request_hash, status_code, response_body, created_at, expires_at)
		VALUES ($1, $2, $3, 0, ''::bytea, $4, $5)
		ON CONFLICT (idempotency_key, user_id) DO UPDATE SET
			request_hash = EXCLUDED.request_hash,
			status_code = 0,
			response_body = ''::bytea,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_cache.expires_at <= now()`,
		entry.Key, entry.UserID, entry.RequestHash, entry.CreatedAt, entry.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("Reserve: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Reserve: rows affected: %w", err)
	}
	return n == 1, nil
}

// Complete stores the response on a reservation made with the same hash.
func (r *IdempotencyRepository) Complete(ctx context.Context, entry *IdempotencyCacheEntry) error {
	body := entry.ResponseBody
	if body == nil {
		body = []byte{}
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE idempotency_cache SET status_code = $1, response_body = $2, expires_at = $3
		WHERE idempotency_key = $4 AND user_id = $5 AND request_hash = $6`,
		entry.StatusCode, body, entry.ExpiresAt, entry.Key, entry.UserID, entry.RequestHash,
	)
	if err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	return nil
}

// Release drops an in-flight reservation so the client can retry.
func (r *IdempotencyRepository) Release(ctx context.Context, key string, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_cache WHERE idempotency_key = $1 AND user_id = $2 AND status_code = 0`,
		key, userID,
	)
	if err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) CleanExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_cache WHERE expires_at < now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: rows affected: %w", err)
	}
	return n, nil
}
