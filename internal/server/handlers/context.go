package handlers

import (
	"context"

	"github.com/iudanet/fieldsync/internal/models"
)

type contextKey string

// ActorKey holds the authenticated models.Actor in a request context.
const ActorKey contextKey = "actor"

// WithActor stores actor in ctx. Used by AuthMiddleware.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// GetActor extracts the authenticated actor from the request context
func GetActor(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(models.Actor)
	return actor, ok
}
