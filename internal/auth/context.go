package auth

import (
	"context"
	"strings"
)

type contextKey string

const actorKey contextKey = "actor"

// DefaultActor is stamped on writes when neither the request body nor the
// request headers name who is making the change.
const DefaultActor = "system"

// ContextWithActor returns a new context that carries the acting user.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the acting user from the context, if any.
func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value := ctx.Value(actorKey)
	if value == nil {
		return "", false
	}
	actor, ok := value.(string)
	if !ok || strings.TrimSpace(actor) == "" {
		return "", false
	}
	return actor, true
}

// ResolveActor picks the actor to stamp on a write: an explicit request value
// wins, then the request-scoped actor, then DefaultActor.
func ResolveActor(ctx context.Context, requested string) string {
	if trimmed := strings.TrimSpace(requested); trimmed != "" {
		return trimmed
	}
	if actor, ok := ActorFromContext(ctx); ok {
		return actor
	}
	return DefaultActor
}
