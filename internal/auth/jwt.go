package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

type Claims struct {
	UserID     uuid.UUID
	Email      string
	Role       domain.Role
	MerchantID *uuid.UUID
}

func (c *Claims) Actor() domain.Actor {
	return domain.Actor{ID: c.UserID, Role: c.Role, MerchantID: c.MerchantID}
}

type tokenClaims struct {
	jwt.RegisteredClaims
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	MerchantID string `json:"merchant_id,omitempty"`
}

func GenerateToken(c Claims, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: c.UserID.String(),
		Email:  c.Email,
		Role:   string(c.Role),
	}
	if c.MerchantID != nil {
		claims.MerchantID = c.MerchantID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("GenerateToken: %w", err)
	}
	return signed, nil
}

func ValidateToken(tokenString string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: %w", err)
	}

	tc, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("ValidateToken: invalid token claims")
	}

	userID, err := uuid.Parse(tc.UserID)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: invalid user_id in token: %w", err)
	}

	role := domain.Role(tc.Role)
	if !role.IsValid() || role == domain.RoleSystem {
		return nil, fmt.Errorf("ValidateToken: role %q not allowed", tc.Role)
	}

	claims := &Claims{UserID: userID, Email: tc.Email, Role: role}
	if tc.MerchantID != "" {
		mid, err := uuid.Parse(tc.MerchantID)
		if err != nil {
			return nil, fmt.Errorf("ValidateToken: invalid merchant_id in token: %w", err)
		}
		claims.MerchantID = &mid
	}
	if role == domain.RoleMerchantOwner && claims.MerchantID == nil {
		return nil, fmt.Errorf("ValidateToken: merchant-owner token without merchant_id")
	}

	return claims, nil
}
