package simplesite

import (
	"context"

	"github.com/google/uuid"
)

// Scope is the organisation an admin request acts on and the caller's role in it.
type Scope struct {
	Organisation *Organisation
	UserID       uuid.UUID
	Role         Role
}

// OrganisationID returns the scoped organisation's id.
func (s Scope) OrganisationID() uuid.UUID {
	if s.Organisation == nil {
		return uuid.Nil
	}
	return s.Organisation.ID
}

// Owner returns the scoped organisation as a credential owner.
func (s Scope) Owner() Owner {
	return OrganisationOwner(s.OrganisationID())
}

// Require fails with a *ForbiddenError unless the caller's role is at least min.
func (s Scope) Require(op string, min Role) error {
	if s.Organisation == nil || !s.Role.AtLeast(min) {
		return &ForbiddenError{Op: op, Required: min, Actual: s.Role}
	}
	return nil
}

type scopeContextKey struct{}

// WithScope returns a context carrying scope.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext returns the scope stored by WithScope.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok
}
