package usecase

import "context"

type runIDKey struct{}

// WithRunID tags ctx with the id of the invocation it belongs to. The id is
// attached to log records and audit records produced by the orchestrator.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
