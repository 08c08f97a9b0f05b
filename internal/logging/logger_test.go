package logging_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"atelier/internal/logging"
	"atelier/internal/services"
)

func TestConsoleFormatIncludesAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("run started", logging.Int64("run_id", 7), logging.String("trigger", "manual run"))

	line := buf.String()
	if !strings.Contains(line, "run started") {
		t.Fatalf("missing message in %q", line)
	}
	if !strings.Contains(line, "run_id=7") {
		t.Fatalf("missing run_id attr in %q", line)
	}
	if !strings.Contains(line, `trigger="manual run"`) {
		t.Fatalf("expected quoted attr value in %q", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("should be dropped")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Fatalf("info line leaked: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestUnsupportedFormatRejected(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextStampsFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := services.WithAccountID(context.Background(), 3)
	ctx = services.WithRunID(ctx, 17)
	ctx = services.WithStep(ctx, "scrape")

	logging.WithContext(ctx, logger).Info("step started")

	line := buf.String()
	for _, want := range []string{"account_id=3", "run_id=17", "step=scrape"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
}
