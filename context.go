package connpool

import "context"

type ctxKey int

const ctxKeyPool ctxKey = iota

// NewContext embeds p in ctx for layers that borrow connections further down.
func NewContext(ctx context.Context, p Pool) context.Context {
	return context.WithValue(ctx, ctxKeyPool, p)
}

// FromContext returns the Pool embedded in ctx, or nil.
func FromContext(ctx context.Context) Pool {
	v := ctx.Value(ctxKeyPool)
	if v == nil {
		return nil
	}
	return v.(Pool)
}
