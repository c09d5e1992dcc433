package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	runIDKey     contextKey = "run_id"
	taskKindKey  contextKey = "task_kind"
	identityKey  contextKey = "paper_identity"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithRun adds task run ID and kind to the context.
func WithRun(ctx context.Context, runID, kind string) context.Context {
	ctx = context.WithValue(ctx, runIDKey, runID)
	ctx = context.WithValue(ctx, taskKindKey, kind)
	return ctx
}

// RunFromContext retrieves task run ID and kind from context.
// Returns empty strings if not present.
func RunFromContext(ctx context.Context) (runID, kind string) {
	if v := ctx.Value(runIDKey); v != nil {
		if id, ok := v.(string); ok {
			runID = id
		}
	}
	if v := ctx.Value(taskKindKey); v != nil {
		if k, ok := v.(string); ok {
			kind = k
		}
	}
	return runID, kind
}

// WithPaperIdentity adds the paper identity being processed to the context.
func WithPaperIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// PaperIdentityFromContext retrieves the paper identity from context.
// Returns empty string if not present.
func PaperIdentityFromContext(ctx context.Context) string {
	if v := ctx.Value(identityKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// RunContext contains all the correlation data for one orchestrator run.
type RunContext struct {
	RequestID     string
	RunID         string
	TaskKind      string
	PaperIdentity string
}

// WithRunContextFull adds all run correlation data to the context.
func WithRunContextFull(ctx context.Context, rc RunContext) context.Context {
	if rc.RequestID != "" {
		ctx = WithRequestID(ctx, rc.RequestID)
	}
	if rc.RunID != "" || rc.TaskKind != "" {
		ctx = WithRun(ctx, rc.RunID, rc.TaskKind)
	}
	if rc.PaperIdentity != "" {
		ctx = WithPaperIdentity(ctx, rc.PaperIdentity)
	}
	return ctx
}

// RunContextFromContext extracts all run correlation data from the context.
func RunContextFromContext(ctx context.Context) RunContext {
	runID, kind := RunFromContext(ctx)

	return RunContext{
		RequestID:     RequestIDFromContext(ctx),
		RunID:         runID,
		TaskKind:      kind,
		PaperIdentity: PaperIdentityFromContext(ctx),
	}
}
