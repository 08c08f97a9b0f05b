package services

import "context"

type contextKey string

const (
	accountIDKey contextKey = "account_id"
	runIDKey     contextKey = "run_id"
	stepKey      contextKey = "step"
	requestIDKey contextKey = "request_id"
)

// WithAccountID stamps the account identifier onto the context so log records
// emitted below can carry it.
func WithAccountID(ctx context.Context, accountID int64) context.Context {
	return context.WithValue(ctx, accountIDKey, accountID)
}

// AccountIDFromContext reports the account identifier stamped by WithAccountID.
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(accountIDKey).(int64)
	return id, ok
}

// WithRunID stamps the run identifier onto the context.
func WithRunID(ctx context.Context, runID int64) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext reports the run identifier stamped by WithRunID.
func RunIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(runIDKey).(int64)
	return id, ok
}

// WithStep stamps the workflow step name onto the context.
func WithStep(ctx context.Context, step string) context.Context {
	return context.WithValue(ctx, stepKey, step)
}

// StepFromContext reports the step name stamped by WithStep.
func StepFromContext(ctx context.Context) (string, bool) {
	step, ok := ctx.Value(stepKey).(string)
	return step, ok
}

// WithRequestID stamps a correlation identifier onto the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext reports the correlation identifier stamped by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}
