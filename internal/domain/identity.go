package domain

import "context"

// Identity is an opaque, comparable participant key.
type Identity string

type callerKey struct{}

// WithCaller returns a context carrying the verified identity of the caller.
func WithCaller(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, callerKey{}, id)
}

// CallerFromContext resolves the caller for the current operation.
// Returns ErrNoCaller when the context carries no identity.
func CallerFromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(callerKey{}).(Identity)
	if !ok || id == "" {
		return "", ErrNoCaller
	}
	return id, nil
}
