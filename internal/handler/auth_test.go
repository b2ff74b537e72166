package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/payout-ledger/internal/auth"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

const testJWTSecret = "handler-test-jwt"

type fakeUsers struct {
	users map[string]*domain.User
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func TestAuthHandler_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	merchantID := uuid.New()
	owner := &domain.User{
		ID: uuid.New(), Email: "owner@shop.example", Name: "Ama", PasswordHash: string(hash),
		Role: domain.RoleMerchantOwner, MerchantID: &merchantID, Status: domain.UserStatusActive,
	}
	suspended := &domain.User{
		ID: uuid.New(), Email: "gone@shop.example", PasswordHash: string(hash),
		Role: domain.RoleAdmin, Status: domain.UserStatusSuspended,
	}
	users := &fakeUsers{users: map[string]*domain.User{owner.Email: owner, suspended.Email: suspended}}
	h := NewAuthHandler(users, testJWTSecret, time.Hour)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "valid", body: `{"email":"Owner@Shop.example","password":"s3cret-pass"}`, wantStatus: http.StatusOK},
		{name: "wrong password", body: `{"email":"owner@shop.example","password":"nope"}`, wantStatus: http.StatusUnauthorized, wantCode: "INVALID_CREDENTIALS"},
		{name: "unknown user", body: `{"email":"who@shop.example","password":"s3cret-pass"}`, wantStatus: http.StatusUnauthorized, wantCode: "INVALID_CREDENTIALS"},
		{name: "suspended user", body: `{"email":"gone@shop.example","password":"s3cret-pass"}`, wantStatus: http.StatusUnauthorized, wantCode: "INVALID_CREDENTIALS"},
		{name: "missing fields", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, rr.Code)
			resp := decode(t, rr)
			if tt.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantCode, resp.Error.Code)
				return
			}

			data := resp.Data.(map[string]any)
			claims, err := auth.ValidateToken(data["token"].(string), testJWTSecret)
			require.NoError(t, err)
			assert.Equal(t, owner.ID, claims.UserID)
			assert.Equal(t, domain.RoleMerchantOwner, claims.Role)
			require.NotNil(t, claims.MerchantID)
			assert.Equal(t, merchantID, *claims.MerchantID)
		})
	}
}

type fakeFees struct {
	updated *decimal.Decimal
	err     error
}

func (f *fakeFees) Current(context.Context) (*domain.FeePolicy, error) {
	return &domain.FeePolicy{Version: 1, Percentage: decimal.Zero}, nil
}

func (f *fakeFees) Update(_ context.Context, a domain.Actor, pct decimal.Decimal, _ string) (*domain.FeePolicy, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.updated = &pct
	prev := decimal.Zero
	return &domain.FeePolicy{Version: 2, Percentage: pct, PreviousPercentage: &prev, UpdatedBy: a.String()}, nil
}

func (f *fakeFees) History(context.Context, int) ([]domain.FeePolicy, error) { return nil, nil }

func TestFeePolicyHandler_Update(t *testing.T) {
	admin := domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin}
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantPct    string
	}{
		{name: "decimal string", body: `{"percentage":"2.5"}`, wantStatus: http.StatusOK, wantPct: "2.5"},
		{name: "missing", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "not a number", body: `{"percentage":"abc"}`, wantStatus: http.StatusBadRequest},
		{name: "out of range", body: `{"percentage":"101"}`, svcErr: domain.ErrInvalidFeePercentage, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeFees{err: tt.svcErr}
			h := NewFeePolicyHandler(svc)

			req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/fee-policy", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.Update(rr, withActor(req, admin))

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantPct != "" {
				require.NotNil(t, svc.updated)
				assert.Equal(t, tt.wantPct, svc.updated.String())
				data := decode(t, rr).Data.(map[string]any)
				assert.Equal(t, "0", data["previous_percentage"])
			}
		})
	}
}
