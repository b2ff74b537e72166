package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

type balanceReader interface {
	Snapshot(ctx context.Context, merchantID uuid.UUID) (*domain.Balance, error)
	History(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
}

type BalanceHandler struct {
	ledger balanceReader
}

func NewBalanceHandler(ledger balanceReader) *BalanceHandler {
	return &BalanceHandler{ledger: ledger}
}

type balanceDTO struct {
	MerchantID              uuid.UUID `json:"merchant_id"`
	Currency                string    `json:"currency"`
	AvailableBalance        int64     `json:"available_balance"`
	PendingWithdrawalsTotal int64     `json:"pending_withdrawals_total"`
	TotalWithdrawn          int64     `json:"total_withdrawn"`
	TotalCollected          int64     `json:"total_collected"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func toBalanceDTO(b *domain.Balance) balanceDTO {
	return balanceDTO{
		MerchantID:              b.MerchantID,
		Currency:                string(b.Currency),
		AvailableBalance:        b.AvailableBalance,
		PendingWithdrawalsTotal: b.PendingWithdrawalsTotal,
		TotalWithdrawn:          b.TotalWithdrawn,
		TotalCollected:          b.TotalCollected,
		UpdatedAt:               b.UpdatedAt,
	}
}

type ledgerEntryDTO struct {
	ID                  uuid.UUID  `json:"id"`
	EntryType           string     `json:"entry_type"`
	Amount              int64      `json:"amount"`
	Currency            string     `json:"currency"`
	WithdrawalID        *uuid.UUID `json:"withdrawal_id,omitempty"`
	SourceTransactionID *string    `json:"source_transaction_id,omitempty"`
	AvailableAfter      int64      `json:"available_after"`
	PendingAfter        int64      `json:"pending_after"`
	WithdrawnAfter      int64      `json:"withdrawn_after"`
	CollectedAfter      int64      `json:"collected_after"`
	CreatedAt           time.Time  `json:"created_at"`
}

func toLedgerEntryDTO(e domain.LedgerEntry) ledgerEntryDTO {
	return ledgerEntryDTO{
		ID:                  e.ID,
		EntryType:           string(e.EntryType),
		Amount:              e.Amount,
		Currency:            string(e.Currency),
		WithdrawalID:        e.WithdrawalID,
		SourceTransactionID: e.SourceTransactionID,
		AvailableAfter:      e.AvailableAfter,
		PendingAfter:        e.PendingAfter,
		WithdrawnAfter:      e.WithdrawnAfter,
		CollectedAfter:      e.CollectedAfter,
		CreatedAt:           e.CreatedAt,
	}
}

func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	merchantID, _, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	b, err := h.ledger.Snapshot(r.Context(), merchantID)
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toBalanceDTO(b))
}

func (h *BalanceHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	merchantID, _, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	page, fields := parsePage(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entries, total, err := h.ledger.History(r.Context(), merchantID, page.PageSize, (page.Page-1)*page.PageSize)
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}

	items := make([]ledgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		items = append(items, toLedgerEntryDTO(e))
	}
	RespondSuccess(w, http.StatusOK, pageDTO[ledgerEntryDTO]{
		Items:    items,
		Total:    total,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}
