package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusDispatched OutboxStatus = "dispatched"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Topics published by the relay.
const (
	OutboxTopicWithdrawal = "withdrawal"
	OutboxTopicBalance    = "balance"
	OutboxTopicFeePolicy  = "fee_policy"
)

// OutboxEvent is a notification queued in the same transaction as the
// change it announces. AggregateID is the owning merchant and doubles as the
// partition key, so one merchant's events stay ordered.
type OutboxEvent struct {
	ID           uuid.UUID
	Topic        string
	EventType    string
	AggregateID  uuid.UUID
	Payload      json.RawMessage
	Status       OutboxStatus
	Attempts     int
	LastError    *string
	CreatedAt    time.Time
	DispatchedAt *time.Time
}

func NewOutboxEvent(topic, eventType string, aggregateID uuid.UUID, payload any, now time.Time) (*OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("NewOutboxEvent: %w", err)
	}
	return &OutboxEvent{
		ID:          uuid.New(),
		Topic:       topic,
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     raw,
		Status:      OutboxStatusPending,
		CreatedAt:   now,
	}, nil
}
