package domain

import "context"

const (
	RoleAdmin     = "admin"
	RoleLogistics = "logistics"
)

type Principal struct {
	Subject string
	Role    string
}

type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (Principal, error)
}

// Authorizer decides whether a principal may perform an action
// (e.g. "document:approve"). Implementations return ErrForbidden on deny.
type Authorizer interface {
	Require(ctx context.Context, principal Principal, action string) error
}
