package authz

import (
	"context"
	"errors"
	"fmt"

	"seald/internal/domain"

	"github.com/open-policy-agent/opa/rego"
)

const defaultQuery = "data.seald.authz.allow"

// defaultPolicy is the built-in role policy: admins may do everything,
// logistics actors handle shipments and draft invoices, and nobody else
// changes state. Operators can replace it wholesale via POLICY_BUNDLE_PATH.
const defaultPolicy = `package seald.authz

import rego.v1

default allow := false

allow if input.role == "admin"

allow if {
	input.role == "logistics"
	input.action in logistics_actions
}

logistics_actions := {
	"shipment:create",
	"shipment:dispatch",
	"shipment:deliver",
	"document:draft",
}
`

type Authorizer struct {
	query rego.PreparedEvalQuery
}

func NewAuthorizer(ctx context.Context) (*Authorizer, error) {
	r := rego.New(
		rego.Query(defaultQuery),
		rego.Module("authz.rego", defaultPolicy),
		rego.StrictBuiltinErrors(true),
	)
	return prepare(ctx, r)
}

func NewAuthorizerFromBundlePath(ctx context.Context, bundlePath string) (*Authorizer, error) {
	if bundlePath == "" {
		return NewAuthorizer(ctx)
	}
	r := rego.New(
		rego.Query(defaultQuery),
		rego.Load([]string{bundlePath}, nil),
		rego.StrictBuiltinErrors(true),
	)
	return prepare(ctx, r)
}

func prepare(ctx context.Context, r *rego.Rego) (*Authorizer, error) {
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare authz policy: %w", err)
	}
	return &Authorizer{query: prepared}, nil
}

func (a *Authorizer) Require(ctx context.Context, principal domain.Principal, action string) error {
	if a == nil {
		return errors.New("authorizer is nil")
	}
	if principal.Subject == "" {
		return domain.ErrUnauthorized
	}
	if action == "" {
		return nil
	}
	input := map[string]any{
		"subject": principal.Subject,
		"role":    principal.Role,
		"action":  action,
	}
	results, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("evaluate authz policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return fmt.Errorf("empty authz result: %w", domain.ErrForbidden)
	}
	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok || !allowed {
		return fmt.Errorf("role %q may not %s: %w", principal.Role, action, domain.ErrForbidden)
	}
	return nil
}
