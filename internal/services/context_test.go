package services

import (
	"context"
	"testing"
)

func TestContextRoundTrips(t *testing.T) {
	ctx := context.Background()

	if _, ok := AccountIDFromContext(ctx); ok {
		t.Fatal("expected empty context to carry no account id")
	}

	ctx = WithAccountID(ctx, 7)
	ctx = WithRunID(ctx, 42)
	ctx = WithStep(ctx, "describe")
	ctx = WithRequestID(ctx, "req-123")

	if id, ok := AccountIDFromContext(ctx); !ok || id != 7 {
		t.Fatalf("account id = %d, %v", id, ok)
	}
	if id, ok := RunIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("run id = %d, %v", id, ok)
	}
	if step, ok := StepFromContext(ctx); !ok || step != "describe" {
		t.Fatalf("step = %q, %v", step, ok)
	}
	if reqID, ok := RequestIDFromContext(ctx); !ok || reqID != "req-123" {
		t.Fatalf("request id = %q, %v", reqID, ok)
	}
}

func TestContextWrongTypeIgnored(t *testing.T) {
	ctx := context.WithValue(context.Background(), accountIDKey, "not an int")
	if _, ok := AccountIDFromContext(ctx); ok {
		t.Fatal("expected mistyped value to be ignored")
	}
}
