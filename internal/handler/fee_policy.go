package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
)

type feePolicyService interface {
	Current(ctx context.Context) (*domain.FeePolicy, error)
	Update(ctx context.Context, actor domain.Actor, pct decimal.Decimal, note string) (*domain.FeePolicy, error)
	History(ctx context.Context, limit int) ([]domain.FeePolicy, error)
}

type FeePolicyHandler struct {
	policies feePolicyService
}

func NewFeePolicyHandler(policies feePolicyService) *FeePolicyHandler {
	return &FeePolicyHandler{policies: policies}
}

// Percentage is a JSON string so decimals like "2.5" survive untouched.
type updateFeePolicyRequest struct {
	Percentage string `json:"percentage"`
	Note       string `json:"note"`
}

func (r updateFeePolicyRequest) parse() (decimal.Decimal, []FieldError) {
	if r.Percentage == "" {
		return decimal.Zero, []FieldError{{Field: "percentage", Message: "required"}}
	}
	pct, err := decimal.NewFromString(r.Percentage)
	if err != nil {
		return decimal.Zero, []FieldError{{Field: "percentage", Message: "must be a decimal number"}}
	}
	return pct, nil
}

type feePolicyDTO struct {
	Version            int64     `json:"version"`
	Percentage         string    `json:"percentage"`
	PreviousPercentage *string   `json:"previous_percentage"`
	UpdatedBy          string    `json:"updated_by"`
	Note               *string   `json:"note,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toFeePolicyDTO(p *domain.FeePolicy) feePolicyDTO {
	dto := feePolicyDTO{
		Version:    p.Version,
		Percentage: p.Percentage.String(),
		UpdatedBy:  p.UpdatedBy,
		Note:       p.Note,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.PreviousPercentage != nil {
		prev := p.PreviousPercentage.String()
		dto.PreviousPercentage = &prev
	}
	return dto
}

func (h *FeePolicyHandler) Current(w http.ResponseWriter, r *http.Request) {
	p, err := h.policies.Current(r.Context())
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toFeePolicyDTO(p))
}

func (h *FeePolicyHandler) Update(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	actor, appErr := actorFrom(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req updateFeePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	pct, fields := req.parse()
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	p, err := h.policies.Update(r.Context(), actor, pct, req.Note)
	if err != nil {
		log.Warn("fee policy update failed", "percentage", req.Percentage, "error", err)
		RespondDomainError(r.Context(), w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toFeePolicyDTO(p))
}

func (h *FeePolicyHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			RespondValidationError(w, []FieldError{{Field: "limit", Message: "must be a positive integer"}})
			return
		}
		limit = n
	}

	history, err := h.policies.History(r.Context(), limit)
	if err != nil {
		RespondDomainError(r.Context(), w, err)
		return
	}

	items := make([]feePolicyDTO, 0, len(history))
	for i := range history {
		items = append(items, toFeePolicyDTO(&history[i]))
	}
	RespondSuccess(w, http.StatusOK, items)
}
