// Package runid carries the identifier of the current sync run in a context.
package runid

import (
	"context"

	"github.com/google/uuid"
)

// key is an unexported type to avoid collisions in context values.
type key struct{}

// New returns a fresh run identifier.
func New() string { return uuid.NewString() }

// With returns a new context with the provided run ID attached.
func With(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key{}, id)
}

// From extracts the run ID from the context, if present.
func From(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v := ctx.Value(key{})
	if v == nil {
		return "", false
	}
	if s, ok := v.(string); ok && s != "" {
		return s, true
	}
	return "", false
}
