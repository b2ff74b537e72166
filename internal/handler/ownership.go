package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/auth"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

// merchantFromPath resolves {id} and checks the caller may see it. Other
// merchants' resources read as not found.
func merchantFromPath(r *http.Request) (uuid.UUID, domain.Actor, *AppError) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		return uuid.Nil, domain.Actor{}, ErrMissingToken
	}

	merchantID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, actor, ErrResourceNotFound
	}

	if !actor.CanAccessMerchant(merchantID) {
		return uuid.Nil, actor, ErrResourceNotFound
	}

	return merchantID, actor, nil
}

func actorFrom(r *http.Request) (domain.Actor, *AppError) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		return domain.Actor{}, ErrMissingToken
	}
	return actor, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, *AppError) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}
	return id, nil
}
