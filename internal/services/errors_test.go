package services

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := Wrap(ErrExternalService, "scrape", "fetch_items", "source @atelier_daily", cause)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("expected error to match ErrExternalService, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected error to wrap cause, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"scrape", "fetch_items", "source @atelier_daily", "connection refused"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected message to contain %q, got %q", want, msg)
		}
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := Wrap(ErrConfiguration, "generate", "load_reference", "reference image not configured", nil)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected error to match ErrConfiguration, got %v", err)
	}
	if errors.Unwrap(errors.Unwrap(err)) != nil {
		t.Fatalf("expected no further cause, got %v", err)
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := Wrap(nil, "", "", "something odd", errors.New("boom"))
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected nil marker to default to ErrTransient, got %v", err)
	}
}

func TestWrapEmptyDetail(t *testing.T) {
	err := Wrap(ErrTransient, "", "", "", nil)
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}
