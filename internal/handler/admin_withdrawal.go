package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
	"github.com/josh-kwaku/payout-ledger/internal/service/withdrawal"
)

type withdrawalOperator interface {
	ListAll(ctx context.Context, f withdrawal.ListFilter) (*withdrawal.Page, error)
	Approve(ctx context.Context, actor domain.Actor, id uuid.UUID, notes string) (*domain.Withdrawal, error)
	Reject(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (*domain.Withdrawal, error)
	MarkProcessing(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Withdrawal, error)
	Complete(ctx context.Context, actor domain.Actor, id uuid.UUID, txRef string) (*domain.Withdrawal, error)
	Fail(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (*domain.Withdrawal, error)
	RecordRetry(ctx context.Context, actor domain.Actor, id uuid.UUID, reason string) (*domain.Withdrawal, error)
}

// AdminWithdrawalHandler serves the operator queue and the named transition
// endpoints. Routes sit behind RequireAdmin.
type AdminWithdrawalHandler struct {
	withdrawals withdrawalOperator
}

func NewAdminWithdrawalHandler(withdrawals withdrawalOperator) *AdminWithdrawalHandler {
	return &AdminWithdrawalHandler{withdrawals: withdrawals}
}

type transitionRequest struct {
	Notes                string `json:"notes"`
	Reason               string `json:"reason"`
	TransactionReference string `json:"transaction_reference"`
}

func (h *AdminWithdrawalHandler) Queue(w http.ResponseWriter, r *http.Request) {
	page, fields := parsePage(r)
	status, statusFields := parseStatus(r)
	if fields = append(fields, statusFields...); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	result, err := h.withdrawals.ListAll(r.Context(), withdrawal.ListFilter{
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

func (h *AdminWithdrawalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.WithdrawalEventApprove, nil, func(ctx context.Context, a domain.Actor, id uuid.UUID, req transitionRequest) (*domain.Withdrawal, error) {
		return h.withdrawals.Approve(ctx, a, id, req.Notes)
	})
}

func (h *AdminWithdrawalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.WithdrawalEventReject, requireReason, func(ctx context.Context, a domain.Actor, id uuid.UUID, req transitionRequest) (*domain.Withdrawal, error) {
		return h.withdrawals.Reject(ctx, a, id, req.Reason)
	})
}

func (h *AdminWithdrawalHandler) MarkProcessing(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.WithdrawalEventMarkProcessing, nil, func(ctx context.Context, a domain.Actor, id uuid.UUID, _ transitionRequest) (*domain.Withdrawal, error) {
		return h.withdrawals.MarkProcessing(ctx, a, id)
	})
}

func (h *AdminWithdrawalHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.WithdrawalEventComplete, requireTxRef, func(ctx context.Context, a domain.Actor, id uuid.UUID, req transitionRequest) (*domain.Withdrawal, error) {
		return h.withdrawals.Complete(ctx, a, id, req.TransactionReference)
	})
}

func (h *AdminWithdrawalHandler) Fail(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.WithdrawalEventFail, requireReason, func(ctx context.Context, a domain.Actor, id uuid.UUID, req transitionRequest) (*domain.Withdrawal, error) {
		return h.withdrawals.Fail(ctx, a, id, req.Reason)
	})
}

func (h *AdminWithdrawalHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.WithdrawalEventRecordRetry, nil, func(ctx context.Context, a domain.Actor, id uuid.UUID, req transitionRequest) (*domain.Withdrawal, error) {
		return h.withdrawals.RecordRetry(ctx, a, id, req.Reason)
	})
}

type transitionFunc func(ctx context.Context, actor domain.Actor, id uuid.UUID, req transitionRequest) (*domain.Withdrawal, error)

func requireReason(req transitionRequest) []FieldError {
	if strings.TrimSpace(req.Reason) == "" {
		return []FieldError{{Field: "reason", Message: "required"}}
	}
	return nil
}

func requireTxRef(req transitionRequest) []FieldError {
	if strings.TrimSpace(req.TransactionReference) == "" {
		return []FieldError{{Field: "transaction_reference", Message: "required"}}
	}
	return nil
}

func (h *AdminWithdrawalHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	event domain.WithdrawalEventType,
	validate func(transitionRequest) []FieldError,
	apply transitionFunc,
) {
	log := logging.FromContext(r.Context())

	actor, appErr := actorFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	id, appErr := pathUUID(r, "wid")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	// Bodies are optional for approve and processing.
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if validate != nil {
		if fields := validate(req); len(fields) > 0 {
			RespondValidationError(w, fields)
			return
		}
	}

	wd, err := apply(r.Context(), actor, id, req)
	if err != nil {
		log.Warn("withdrawal transition failed", "withdrawal_id", id, "event", event, "error", err)
		RespondDomainError(r.Context(), w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalDTO(wd))
}
