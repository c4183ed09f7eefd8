package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	runIDKey  ctxKey = "run_id"
	sourceKey ctxKey = "source"
)

// WithRunID stores the sync run ID in the context.
func WithRunID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromCtx extracts the sync run ID from the context.
// Returns uuid.Nil and false if the value is missing, nil UUID, or wrong type.
func RunIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(runIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// WithSource stores the name of the source being synchronized.
func WithSource(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, sourceKey, name)
}

// SourceFromCtx extracts the source name from the context.
// Returns an empty string if absent.
func SourceFromCtx(ctx context.Context) string {
	name, _ := ctx.Value(sourceKey).(string)
	return name
}
