package session

import "context"

type controllerKey struct{}

// NewContext returns a context carrying c
func NewContext(ctx context.Context, c *Controller) context.Context {
	return context.WithValue(ctx, controllerKey{}, c)
}

// FromContext returns the controller carried by ctx
func FromContext(ctx context.Context) (*Controller, bool) {
	c, ok := ctx.Value(controllerKey{}).(*Controller)
	return c, ok && c != nil
}

// MustFromContext is FromContext for code that cannot run without a session
func MustFromContext(ctx context.Context) *Controller {
	c, ok := FromContext(ctx)
	if !ok {
		panic("session: no controller in context")
	}
	return c
}
