package handler

import (
	"net/http"
	"strconv"

	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

type pageParams struct {
	Page     int
	PageSize int
}

func parsePage(r *http.Request) (pageParams, []FieldError) {
	var errs []FieldError
	p := pageParams{Page: 1, PageSize: 20}

	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs = append(errs, FieldError{Field: "page", Message: "must be a positive integer"})
		} else {
			p.Page = n
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			errs = append(errs, FieldError{Field: "page_size", Message: "must be between 1 and 100"})
		} else {
			p.PageSize = n
		}
	}
	return p, errs
}

func parseStatus(r *http.Request) (*domain.WithdrawalStatus, []FieldError) {
	v := r.URL.Query().Get("status")
	if v == "" {
		return nil, nil
	}
	s := domain.WithdrawalStatus(v)
	if !s.IsValid() {
		return nil, []FieldError{{Field: "status", Message: "unknown status"}}
	}
	return &s, nil
}

type pageDTO[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}
