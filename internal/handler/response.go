package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// RespondDomainError maps a service error onto the envelope. Specific
// sentinels are checked before the kinds they wrap.
func RespondDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logging.FromContext(ctx)

	var transition *domain.TransitionError
	var appErr *AppError
	var details any

	switch {
	case errors.Is(err, domain.ErrLedgerIntegrity):
		log.Error("ledger integrity violation surfaced to handler", "error", err)
		appErr = ErrInternalError
	case errors.As(err, &transition):
		appErr = ErrInvalidStateTransition
		details = map[string]string{"status": string(transition.From), "event": string(transition.Event)}
	case errors.Is(err, domain.ErrInvalidStateTransition):
		appErr = ErrInvalidStateTransition
	case errors.Is(err, domain.ErrInsufficientFunds):
		appErr = ErrInsufficientFunds
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrMerchantSuspended):
		appErr = ErrMerchantSuspended
	case errors.Is(err, domain.ErrForbidden):
		appErr = ErrForbidden

	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidCurrency):
		appErr = ErrInvalidCurrency
	case errors.Is(err, domain.ErrInvalidFeePercentage):
		appErr = ErrInvalidFeePercentage
	case errors.Is(err, domain.ErrFeeExceedsAmount):
		appErr = ErrFeeExceedsAmount
	case errors.Is(err, domain.ErrReasonRequired):
		appErr = ErrReasonRequired
	case errors.Is(err, domain.ErrTxRefRequired):
		appErr = ErrTxRefRequired
	case errors.Is(err, domain.ErrInvalidPaymentMethod):
		appErr = ErrInvalidPaymentMethod
	case errors.Is(err, domain.ErrValidation):
		appErr = ErrInvalidRequest
		details = err.Error()

	case errors.Is(err, domain.ErrPaymentMethodInUse):
		appErr = ErrPaymentMethodInUse
	case errors.Is(err, domain.ErrTxRefMismatch):
		appErr = ErrTxRefMismatch
	case errors.Is(err, domain.ErrMerchantExists):
		appErr = ErrMerchantExists
	case errors.Is(err, domain.ErrVersionConflict):
		appErr = ErrVersionConflict
	case errors.Is(err, domain.ErrConflict):
		appErr = ErrConflict
	default:
		log.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, details)
}
