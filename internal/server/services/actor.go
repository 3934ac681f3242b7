package services

import (
	"context"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// Actor is the account a service call is made on behalf of, with its role
// as currently stored.
type Actor struct {
	AccountID string
	Role      models.Role
}

func (a Actor) Can(c models.Capability) bool {
	return a.Role.Can(c)
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// systemActor runs first-administrator bootstrap from the command line.
var systemActor = Actor{Role: models.NewRole(0, models.RoleNameAdmin, true)}

// requireAdministrator fails with ErrForbidden unless ctx carries an actor
// with administrator rights. A missing actor is refused.
func requireAdministrator(ctx context.Context) error {
	a, ok := ActorFrom(ctx)
	if !ok || !a.Can(models.CapAdministrator) {
		return common.ErrForbidden
	}
	return nil
}
