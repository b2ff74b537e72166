package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/josh-kwaku/payout-ledger/internal/domain"
)

type actorKey struct{}

func ContextWithActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(domain.Actor)
	return a, ok
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	a, ok := ActorFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return a.ID, true
}
