// Package cancel provides the ownership token a pipeline run holds while it
// is generating. A token is cancelled once and stays cancelled.
package cancel

import (
	"context"

	"github.com/google/uuid"
)

// Token identifies one generation run and carries its cancellation signal.
// Tokens are compared by pointer identity.
type Token struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a token whose context derives from parent.
func New(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	return &Token{
		id:     uuid.New(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID returns the token's unique identifier, or uuid.Nil for a nil token.
func (t *Token) ID() uuid.UUID {
	if t == nil {
		return uuid.Nil
	}
	return t.id
}

// Context returns a context cancelled when the token is cancelled
// or its parent is done.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Cancel signals cancellation. Repeated calls and calls on a nil token are no-ops.
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	t.cancel()
}

// Cancelled reports whether the token has been cancelled.
// A nil token is never cancelled.
func (t *Token) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.ctx.Err() != nil
}
