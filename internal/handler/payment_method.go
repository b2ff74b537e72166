package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
)

type paymentMethodService interface {
	Add(ctx context.Context, actor domain.Actor, merchantID uuid.UUID, in domain.NewPaymentMethod) (*domain.PaymentMethod, error)
	SetDefault(ctx context.Context, actor domain.Actor, merchantID, methodID uuid.UUID) (*domain.PaymentMethod, error)
	Remove(ctx context.Context, actor domain.Actor, merchantID, methodID uuid.UUID) error
	List(ctx context.Context, merchantID uuid.UUID) ([]domain.PaymentMethod, error)
}

type PaymentMethodHandler struct {
	methods paymentMethodService
}

func NewPaymentMethodHandler(methods paymentMethodService) *PaymentMethodHandler {
	return &PaymentMethodHandler{methods: methods}
}

type addPaymentMethodRequest struct {
	Type          string `json:"type"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	Provider      string `json:"provider"`
	BankName      string `json:"bank_name"`
}

func (r addPaymentMethodRequest) Validate() []FieldError {
	var errs []FieldError

	t := domain.PaymentMethodType(r.Type)
	if r.Type == "" {
		errs = append(errs, FieldError{Field: "type", Message: "required"})
	} else if !t.IsValid() {
		errs = append(errs, FieldError{Field: "type", Message: "must be mobile_money or bank"})
	}

	if strings.TrimSpace(r.AccountName) == "" {
		errs = append(errs, FieldError{Field: "account_name", Message: "required"})
	}
	if strings.TrimSpace(r.AccountNumber) == "" {
		errs = append(errs, FieldError{Field: "account_number", Message: "required"})
	}

	switch t {
	case domain.PaymentMethodMobileMoney:
		if strings.TrimSpace(r.Provider) == "" {
			errs = append(errs, FieldError{Field: "provider", Message: "required for mobile_money"})
		}
	case domain.PaymentMethodBank:
		if strings.TrimSpace(r.BankName) == "" {
			errs = append(errs, FieldError{Field: "bank_name", Message: "required for bank"})
		}
	}

	return errs
}

type updatePaymentMethodRequest struct {
	IsDefault *bool `json:"is_default"`
}

type paymentMethodDTO struct {
	ID            uuid.UUID  `json:"id"`
	MerchantID    uuid.UUID  `json:"merchant_id"`
	Type          string     `json:"type"`
	AccountName   string     `json:"account_name"`
	AccountNumber string     `json:"account_number"`
	Provider      *string    `json:"provider,omitempty"`
	BankName      *string    `json:"bank_name,omitempty"`
	IsDefault     bool       `json:"is_default"`
	IsVerified    bool       `json:"is_verified"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toPaymentMethodDTO(m *domain.PaymentMethod) paymentMethodDTO {
	return paymentMethodDTO{
		ID:            m.ID,
		MerchantID:    m.MerchantID,
		Type:          string(m.Type),
		AccountName:   m.AccountName,
		AccountNumber: m.AccountNumber,
		Provider:      m.Provider,
		BankName:      m.BankName,
		IsDefault:     m.IsDefault,
		IsVerified:    m.IsVerified,
		VerifiedAt:    m.VerifiedAt,
		CreatedAt:     m.CreatedAt,
	}
}

func (h *PaymentMethodHandler) List(w http.ResponseWriter, r *http.Request) {
	merchantID, _, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	methods, err := h.methods.List(r.Context(), merchantID)
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}

	items := make([]paymentMethodDTO, 0, len(methods))
	for i := range methods {
		items = append(items, toPaymentMethodDTO(&methods[i]))
	}
	RespondSuccess(w, http.StatusOK, items)
}

func (h *PaymentMethodHandler) Add(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	merchantID, actor, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req addPaymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	m, err := h.methods.Add(r.Context(), actor, merchantID, domain.NewPaymentMethod{
		Type:          domain.PaymentMethodType(req.Type),
		AccountName:   req.AccountName,
		AccountNumber: req.AccountNumber,
		Provider:      req.Provider,
		BankName:      req.BankName,
	})
	if err != nil {
		log.Warn("add payment method failed", "merchant_id", merchantID, "error", err)
		RespondDomainError(r.Context(), w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/merchants/%s/payment-methods/%s", merchantID, m.ID))
	RespondSuccess(w, http.StatusCreated, toPaymentMethodDTO(m))
}

// Update only supports promoting a method to default.
func (h *PaymentMethodHandler) Update(w http.ResponseWriter, r *http.Request) {
	merchantID, actor, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	methodID, appErr := pathUUID(r, "methodID")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req updatePaymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.IsDefault == nil || !*req.IsDefault {
		RespondValidationError(w, []FieldError{{Field: "is_default", Message: "must be true"}})
		return
	}

	m, err := h.methods.SetDefault(r.Context(), actor, merchantID, methodID)
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentMethodDTO(m))
}

func (h *PaymentMethodHandler) Remove(w http.ResponseWriter, r *http.Request) {
	merchantID, actor, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	methodID, appErr := pathUUID(r, "methodID")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if err := h.methods.Remove(r.Context(), actor, merchantID, methodID); err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]string{"status": "removed"})
}
