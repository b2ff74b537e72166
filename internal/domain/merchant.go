package domain

import (
	"time"

	"github.com/google/uuid"
)

type MerchantStatus string

const (
	MerchantStatusActive    MerchantStatus = "active"
	MerchantStatusSuspended MerchantStatus = "suspended"
)

type Merchant struct {
	ID        uuid.UUID
	Name      string
	Currency  Currency
	Status    MerchantStatus
	CreatedAt time.Time
}
