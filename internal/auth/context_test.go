package auth

import (
	"context"
	"testing"
)

func TestActorRoundTrip(t *testing.T) {
	ctx := ContextWithActor(context.Background(), "gm")

	actor, ok := ActorFromContext(ctx)
	if !ok || actor != "gm" {
		t.Fatalf("expected gm, got %q (ok=%v)", actor, ok)
	}

	if _, ok := ActorFromContext(context.Background()); ok {
		t.Error("expected no actor on a bare context")
	}
	if _, ok := ActorFromContext(ContextWithActor(context.Background(), "  ")); ok {
		t.Error("expected blank actor to be treated as absent")
	}
}

func TestResolveActor(t *testing.T) {
	ctx := ContextWithActor(context.Background(), "gm")

	if got := ResolveActor(ctx, "player-2"); got != "player-2" {
		t.Errorf("expected explicit value to win, got %q", got)
	}
	if got := ResolveActor(ctx, " "); got != "gm" {
		t.Errorf("expected context actor, got %q", got)
	}
	if got := ResolveActor(context.Background(), ""); got != DefaultActor {
		t.Errorf("expected default actor, got %q", got)
	}
}
