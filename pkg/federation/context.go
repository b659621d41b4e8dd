package federation

import "context"

// Principal is a caller authenticated via federation. UserID may be empty;
// federated principals need not be backed by a stored user record.
type Principal struct {
	UserID   string
	GroupIDs []string
}

// AssertionContext carries the attributes extracted from an already-verified
// federated assertion. Keys are attribute names; values preserve the order
// the protocol frontend produced. The bridge treats it as opaque and passes
// it to the token pipeline unchanged.
type AssertionContext map[string][]string

type principalKey struct{}
type assertionKey struct{}

// WithPrincipal attaches a federated principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the federated principal on the context, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// WithAssertion attaches an assertion context.
func WithAssertion(ctx context.Context, a AssertionContext) context.Context {
	return context.WithValue(ctx, assertionKey{}, a)
}

// AssertionFrom returns the assertion context, or nil when absent.
func AssertionFrom(ctx context.Context) AssertionContext {
	a, _ := ctx.Value(assertionKey{}).(AssertionContext)
	return a
}
