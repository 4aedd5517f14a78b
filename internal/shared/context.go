package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated employee id in context. The
// auth middleware (outside this core) populates it after verifying the
// session.
func ContextWithActor(ctx context.Context, employeeID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, employeeID)
}

// ActorFromContext extracts the acting employee id, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
