package handler

import (
	"context"

	"github.com/yndnr/geoattend-go/internal/core/domain"
)

type contextKey string

const contextKeyAPIKey contextKey = "api_key"

// WithAPIKey returns a context carrying the authenticated API key.
func WithAPIKey(ctx context.Context, key *domain.APIKey) context.Context {
	return context.WithValue(ctx, contextKeyAPIKey, key)
}

// APIKeyFromContext returns the authenticated API key, or nil.
func APIKeyFromContext(ctx context.Context) *domain.APIKey {
	if key, ok := ctx.Value(contextKeyAPIKey).(*domain.APIKey); ok {
		return key
	}
	return nil
}
