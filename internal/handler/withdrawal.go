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
	"github.com/josh-kwaku/payout-ledger/internal/service/withdrawal"
)

type withdrawalService interface {
	RequestWithdrawal(ctx context.Context, in withdrawal.RequestInput) (*domain.Withdrawal, error)
	Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Withdrawal, error)
	ListForMerchant(ctx context.Context, merchantID uuid.UUID, f withdrawal.ListFilter) (*withdrawal.Page, error)
	Stats(ctx context.Context, merchantID uuid.UUID, now time.Time) (*domain.WithdrawalStats, error)
	Events(ctx context.Context, actor domain.Actor, id uuid.UUID) ([]domain.WithdrawalEvent, error)
}

type WithdrawalHandler struct {
	withdrawals withdrawalService
	now         func() time.Time
}

func NewWithdrawalHandler(withdrawals withdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals, now: time.Now}
}

type createWithdrawalRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
	Amount          int64  `json:"amount"`
	Reason          string `json:"reason"`
}

func (r createWithdrawalRequest) Validate() []FieldError {
	var errs []FieldError

	if r.PaymentMethodID == "" {
		errs = append(errs, FieldError{Field: "payment_method_id", Message: "required"})
	} else if _, err := uuid.Parse(r.PaymentMethodID); err != nil {
		errs = append(errs, FieldError{Field: "payment_method_id", Message: "must be a valid UUID"})
	}

	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	if len(r.Reason) > 500 {
		errs = append(errs, FieldError{Field: "reason", Message: "must be at most 500 characters"})
	}

	return errs
}

type withdrawalDTO struct {
	ID                   uuid.UUID  `json:"id"`
	MerchantID           uuid.UUID  `json:"merchant_id"`
	PaymentMethodID      uuid.UUID  `json:"payment_method_id"`
	Currency             string     `json:"currency"`
	Amount               int64      `json:"amount"`
	FeePercentage        string     `json:"fee_percentage"`
	FeePolicyVersion     int64      `json:"fee_policy_version"`
	Fee                  int64      `json:"fee"`
	TotalAmount          int64      `json:"total_amount"`
	Status               string     `json:"status"`
	Reason               *string    `json:"reason,omitempty"`
	ApprovalNotes        *string    `json:"approval_notes,omitempty"`
	RejectionReason      *string    `json:"rejection_reason,omitempty"`
	FailureReason        *string    `json:"failure_reason,omitempty"`
	TransactionReference *string    `json:"transaction_reference,omitempty"`
	RetryCount           int        `json:"retry_count"`
	RequestedBy          uuid.UUID  `json:"requested_by"`
	RequestedAt          time.Time  `json:"requested_at"`
	ProcessedAt          *time.Time `json:"processed_at,omitempty"`
	ProcessedBy          *string    `json:"processed_by,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func toWithdrawalDTO(w *domain.Withdrawal) withdrawalDTO {
	return withdrawalDTO{
		ID:                   w.ID,
		MerchantID:           w.MerchantID,
		PaymentMethodID:      w.PaymentMethodID,
		Currency:             string(w.Currency),
		Amount:               w.Amount,
		FeePercentage:        w.FeePercentage.String(),
		FeePolicyVersion:     w.FeePolicyVersion,
		Fee:                  w.Fee,
		TotalAmount:          w.TotalAmount,
		Status:               string(w.Status),
		Reason:               w.Reason,
		ApprovalNotes:        w.ApprovalNotes,
		RejectionReason:      w.RejectionReason,
		FailureReason:        w.FailureReason,
		TransactionReference: w.TransactionReference,
		RetryCount:           w.RetryCount,
		RequestedBy:          w.RequestedBy,
		RequestedAt:          w.RequestedAt,
		ProcessedAt:          w.ProcessedAt,
		ProcessedBy:          w.ProcessedBy,
		UpdatedAt:            w.UpdatedAt,
	}
}

func toWithdrawalPage(p *withdrawal.Page) pageDTO[withdrawalDTO] {
	items := make([]withdrawalDTO, 0, len(p.Items))
	for i := range p.Items {
		items = append(items, toWithdrawalDTO(&p.Items[i]))
	}
	return pageDTO[withdrawalDTO]{Items: items, Total: p.Total, Page: p.Page, PageSize: p.PageSize}
}

type withdrawalEventDTO struct {
	ID            uuid.UUID       `json:"id"`
	EventType     string          `json:"event_type"`
	FromStatus    *string         `json:"from_status"`
	ToStatus      string          `json:"to_status"`
	Actor         string          `json:"actor"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	SourceEventID *uuid.UUID      `json:"source_event_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toWithdrawalEventDTO(e domain.WithdrawalEvent) withdrawalEventDTO {
	dto := withdrawalEventDTO{
		ID:            e.ID,
		EventType:     string(e.EventType),
		ToStatus:      string(e.ToStatus),
		Actor:         e.Actor,
		Payload:       e.Payload,
		SourceEventID: e.SourceEventID,
		CreatedAt:     e.CreatedAt,
	}
	if e.FromStatus != nil {
		s := string(*e.FromStatus)
		dto.FromStatus = &s
	}
	return dto
}

type totalsDTO struct {
	Count  int64 `json:"count"`
	Amount int64 `json:"amount"`
	Fee    int64 `json:"fee"`
}

type statusStatsDTO struct {
	Status  string    `json:"status"`
	AllTime totalsDTO `json:"all_time"`
	Today   totalsDTO `json:"today"`
}

type withdrawalStatsDTO struct {
	MerchantID uuid.UUID        `json:"merchant_id"`
	Day        string           `json:"day"`
	AllTime    totalsDTO        `json:"all_time"`
	Today      totalsDTO        `json:"today"`
	ByStatus   []statusStatsDTO `json:"by_status"`
}

func toTotalsDTO(t domain.WithdrawalTotals) totalsDTO {
	return totalsDTO{Count: t.Count, Amount: t.Amount, Fee: t.Fee}
}

func toWithdrawalStatsDTO(s *domain.WithdrawalStats) withdrawalStatsDTO {
	dto := withdrawalStatsDTO{
		MerchantID: s.MerchantID,
		Day:        s.Day.Format(time.DateOnly),
		AllTime:    toTotalsDTO(s.AllTime),
		Today:      toTotalsDTO(s.Today),
		ByStatus:   make([]statusStatsDTO, 0, len(s.ByStatus)),
	}
	for _, st := range s.ByStatus {
		dto.ByStatus = append(dto.ByStatus, statusStatsDTO{
			Status:  string(st.Status),
			AllTime: toTotalsDTO(st.AllTime),
			Today:   toTotalsDTO(st.Today),
		})
	}
	return dto
}

func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	merchantID, actor, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	wd, err := h.withdrawals.RequestWithdrawal(r.Context(), withdrawal.RequestInput{
		Actor:           actor,
		MerchantID:      merchantID,
		PaymentMethodID: uuid.MustParse(req.PaymentMethodID),
		Amount:          req.Amount,
		Reason:          req.Reason,
	})
	if err != nil {
		log.Warn("withdrawal request failed", "merchant_id", merchantID, "error", err)
		RespondDomainError(r.Context(), w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/merchants/%s/withdrawals/%s", merchantID, wd.ID))
	RespondSuccess(w, http.StatusCreated, toWithdrawalDTO(wd))
}

func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	merchantID, _, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	page, fields := parsePage(r)
	status, statusFields := parseStatus(r)
	if fields = append(fields, statusFields...); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	result, err := h.withdrawals.ListForMerchant(r.Context(), merchantID, withdrawal.ListFilter{
		Status:   status,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalPage(result))
}

func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	merchantID, actor, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	id, appErr := pathUUID(r, "wid")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	wd, err := h.withdrawals.Get(r.Context(), actor, id)
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}
	if wd.MerchantID != merchantID {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wd))
}

func (h *WithdrawalHandler) Events(w http.ResponseWriter, r *http.Request) {
	merchantID, actor, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	id, appErr := pathUUID(r, "wid")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	wd, err := h.withdrawals.Get(r.Context(), actor, id)
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}
	if wd.MerchantID != merchantID {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	events, err := h.withdrawals.Events(r.Context(), actor, id)
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}

	items := make([]withdrawalEventDTO, 0, len(events))
	for _, e := range events {
		items = append(items, toWithdrawalEventDTO(e))
	}
	RespondSuccess(w, http.StatusOK, items)
}

func (h *WithdrawalHandler) Stats(w http.ResponseWriter, r *http.Request) {
	merchantID, _, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	stats, err := h.withdrawals.Stats(r.Context(), merchantID, h.now())
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalStatsDTO(stats))
}
