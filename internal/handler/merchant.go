package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
	"github.com/josh-kwaku/payout-ledger/internal/service"
)

type merchantService interface {
	Register(ctx context.Context, actor domain.Actor, in service.RegisterMerchantInput) (*domain.Merchant, *domain.User, error)
}

type MerchantHandler struct {
	merchants merchantService
}

func NewMerchantHandler(merchants merchantService) *MerchantHandler {
	return &MerchantHandler{merchants: merchants}
}

type registerMerchantRequest struct {
	Name          string `json:"name"`
	Currency      string `json:"currency"`
	OwnerEmail    string `json:"owner_email"`
	OwnerName     string `json:"owner_name"`
	OwnerPassword string `json:"owner_password"`
}

func (r registerMerchantRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "required"})
	}
	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be GHS, NGN, KES, UGX or USD"})
	}
	if r.OwnerEmail == "" {
		errs = append(errs, FieldError{Field: "owner_email", Message: "required"})
	}
	if r.OwnerName == "" {
		errs = append(errs, FieldError{Field: "owner_name", Message: "required"})
	}
	if len(r.OwnerPassword) < 8 {
		errs = append(errs, FieldError{Field: "owner_password", Message: "must be at least 8 characters"})
	}

	return errs
}

type merchantDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type ownerDTO struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  string    `json:"role"`
}

type registerMerchantResponse struct {
	Merchant merchantDTO `json:"merchant"`
	Owner    ownerDTO    `json:"owner"`
}

func (h *MerchantHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	actor, appErr := actorFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req registerMerchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	m, owner, err := h.merchants.Register(r.Context(), actor, service.RegisterMerchantInput{
		Name:          req.Name,
		Currency:      domain.Currency(req.Currency),
		OwnerEmail:    req.OwnerEmail,
		OwnerName:     req.OwnerName,
		OwnerPassword: req.OwnerPassword,
	})
	if err != nil {
		log.Warn("merchant registration failed", "name", req.Name, "error", err)
		RespondDomainError(r.Context(), w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/merchants/%s/balance", m.ID))
	RespondSuccess(w, http.StatusCreated, registerMerchantResponse{
		Merchant: merchantDTO{
			ID:        m.ID,
			Name:      m.Name,
			Currency:  string(m.Currency),
			Status:    string(m.Status),
			CreatedAt: m.CreatedAt,
		},
		Owner: ownerDTO{
			ID:    owner.ID,
			Email: owner.Email,
			Name:  owner.Name,
			Role:  string(owner.Role),
		},
	})
}
