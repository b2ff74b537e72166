package domain

import (
	"time"

	"github.com/google/uuid"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusClosed    UserStatus = "closed"
)

type Role string

const (
	RoleMerchantOwner Role = "merchant-owner"
	RoleAdmin         Role = "admin"
	RoleSystem        Role = "system"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleMerchantOwner, RoleAdmin, RoleSystem:
		return true
	default:
		return false
	}
}

type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	MerchantID   *uuid.UUID
	Status       UserStatus
	CreatedAt    time.Time
}

// Actor is the authenticated identity behind a mutating call.
type Actor struct {
	ID         uuid.UUID
	Role       Role
	MerchantID *uuid.UUID
}

var SystemActor = Actor{
	ID:   uuid.MustParse("00000000-0000-0000-0000-000000000001"),
	Role: RoleSystem,
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Owns reports whether the actor is the owner of merchantID.
func (a Actor) Owns(merchantID uuid.UUID) bool {
	return a.Role == RoleMerchantOwner && a.MerchantID != nil && *a.MerchantID == merchantID
}

// CanAccessMerchant is true for admins and for the merchant's owner.
func (a Actor) CanAccessMerchant(merchantID uuid.UUID) bool {
	return a.IsAdmin() || a.Owns(merchantID)
}

func (a Actor) String() string {
	return string(a.Role) + ":" + a.ID.String()
}
