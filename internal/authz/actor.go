package authz

import (
	"context"

	"github.com/meshgate/meshgate/internal/rbac"
)

// Actor is the verified identity a request executes as. It is constructed by
// the middleware after the authorization decision passes and exposed to the
// wrapped handler through the request context.
type Actor struct {
	UserID  int64
	Subject string
	Email   string
	Name    string
	Roles   []rbac.RoleName
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The second return is
// false for requests that never passed the middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
