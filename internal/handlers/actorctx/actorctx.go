// Package actorctx carries the authenticated actor through the request
// context.
package actorctx

import (
	"context"

	"github.com/ndmitriev/payhub/internal/models"
)

type ctxKey string

const actorKey ctxKey = "actor"

func NewContext(ctx context.Context, a models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func FromContext(ctx context.Context) (models.Actor, bool) {
	a, ok := ctx.Value(actorKey).(models.Actor)
	return a, ok
}
