package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrInvalidSignature   = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature is invalid"}
	ErrForbidden          = &AppError{http.StatusForbidden, "FORBIDDEN", "Not allowed to perform this action"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount        = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrInvalidCurrency      = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrInvalidFeePercentage = &AppError{http.StatusBadRequest, "INVALID_FEE_PERCENTAGE", "Fee percentage must be between 0 and 100 with at most 4 decimal places"}
	ErrFeeExceedsAmount     = &AppError{http.StatusBadRequest, "FEE_EXCEEDS_AMOUNT", "Fee must be less than the withdrawal amount"}
	ErrReasonRequired       = &AppError{http.StatusBadRequest, "REASON_REQUIRED", "A reason is required"}
	ErrTxRefRequired        = &AppError{http.StatusBadRequest, "TRANSACTION_REFERENCE_REQUIRED", "A transaction reference is required"}
	ErrInvalidPaymentMethod = &AppError{http.StatusBadRequest, "INVALID_PAYMENT_METHOD", "Payment method is not usable for this merchant"}

	ErrInsufficientFunds      = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient available balance"}
	ErrMerchantSuspended      = &AppError{http.StatusForbidden, "MERCHANT_SUSPENDED", "Merchant is suspended"}
	ErrInvalidStateTransition = &AppError{http.StatusConflict, "INVALID_STATE_TRANSITION", "Withdrawal cannot make this transition from its current status"}
	ErrConflict               = &AppError{http.StatusConflict, "CONFLICT", "Request conflicts with the current state"}
	ErrPaymentMethodInUse     = &AppError{http.StatusConflict, "PAYMENT_METHOD_IN_USE", "Payment method is referenced by an in-flight withdrawal"}
	ErrTxRefMismatch          = &AppError{http.StatusConflict, "TRANSACTION_REFERENCE_MISMATCH", "Withdrawal was completed with a different transaction reference"}
	ErrMerchantExists         = &AppError{http.StatusConflict, "MERCHANT_EXISTS", "Merchant or owner email already exists"}
	ErrVersionConflict        = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrMissingIdempotencyKey  = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict    = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrRequestInProgress      = &AppError{http.StatusConflict, "REQUEST_IN_PROGRESS", "A request with this Idempotency-Key is still being processed"}
)
