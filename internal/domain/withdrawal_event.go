package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WithdrawalEvent is one row of a withdrawal's audit trail. Rows are
// written in the same transaction as the state change they describe.
type WithdrawalEvent struct {
	ID           uuid.UUID
	WithdrawalID uuid.UUID
	EventType    WithdrawalEventType
	FromStatus   *WithdrawalStatus
	ToStatus     WithdrawalStatus
	Actor        string
	Payload      json.RawMessage

	// SourceEventID links the row to the inbound webhook event that caused it.
	SourceEventID *uuid.UUID
	CreatedAt     time.Time
}
