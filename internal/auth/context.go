package auth

import (
	"context"

	"github.com/hongminglow/cdms-be/internal/models"
)

type contextKey struct{}

// WithResolution stores the resolved caller on the context.
func WithResolution(ctx context.Context, res Resolution) context.Context {
	return context.WithValue(ctx, contextKey{}, res)
}

// FromContext returns the resolved caller, if any.
func FromContext(ctx context.Context) (Resolution, bool) {
	res, ok := ctx.Value(contextKey{}).(Resolution)
	return res, ok
}

// UserFromContext returns the resolved user, if any.
func UserFromContext(ctx context.Context) (models.User, bool) {
	res, ok := FromContext(ctx)
	return res.User, ok
}
