package logging

import (
	"context"
)

// ModelID identifies the embedding or judge model attached to a context.
type ModelID string

type modelIDKeyType struct{}
type tokenInfoKeyType struct{}

var (
	modelIDKey   = modelIDKeyType{}
	tokenInfoKey = tokenInfoKeyType{}
)

// WithModelID attaches a model identifier to the context so log entries
// emitted during provider calls carry it.
func WithModelID(ctx context.Context, id ModelID) context.Context {
	return context.WithValue(ctx, modelIDKey, id)
}

// GetModelID retrieves the model identifier from context.
func GetModelID(ctx context.Context) (ModelID, bool) {
	id, ok := ctx.Value(modelIDKey).(ModelID)
	return id, ok
}

// WithTokenInfo attaches token usage to the context.
func WithTokenInfo(ctx context.Context, info *TokenInfo) context.Context {
	return context.WithValue(ctx, tokenInfoKey, info)
}

// GetTokenInfo retrieves token usage from context.
func GetTokenInfo(ctx context.Context) (*TokenInfo, bool) {
	info, ok := ctx.Value(tokenInfoKey).(*TokenInfo)
	return info, ok
}
