package shared

import "context"

type contextKey string

const actorKey contextKey = "actor"

// Actor identifies the authenticated principal performing a request. The
// transport layer resolves it; the engine only records it on mutations.
type Actor struct {
	ID   int64
	Name string
}

// ContextWithActor stores the actor in the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}
