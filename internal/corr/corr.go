// Package corr carries the correlation identity of one logical request.
//
// The context is an explicit value (no thread-local magic): the gateway
// mints it at the start of a call, threads it through the governor via
// context.Context, and the sources client hands it to the subprocess as
// an explicit corr_set handshake so that audit events on both sides of
// the process boundary can be joined.
package corr

import (
	"context"

	"github.com/google/uuid"
)

// Context identifies one logical request across process boundaries.
type Context struct {
	CorrID    string `json:"corr_id"`
	RequestID string `json:"request_id,omitempty"`
}

// New mints a fresh correlation context with random identifiers.
func New() Context {
	return Context{
		CorrID:    uuid.NewString(),
		RequestID: uuid.NewString(),
	}
}

// IsZero reports whether no correlation identity has been assigned.
func (c Context) IsZero() bool {
	return c.CorrID == "" && c.RequestID == ""
}

type ctxKey struct{}

// Into returns a context.Context carrying c.
func Into(ctx context.Context, c Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// From extracts the correlation context, or the zero value if absent.
func From(ctx context.Context) Context {
	if c, ok := ctx.Value(ctxKey{}).(Context); ok {
		return c
	}
	return Context{}
}

// Ensure returns a context guaranteed to carry a correlation identity,
// minting one if the incoming context has none.
func Ensure(ctx context.Context) (context.Context, Context) {
	if c := From(ctx); !c.IsZero() {
		return ctx, c
	}
	c := New()
	return Into(ctx, c), c
}
