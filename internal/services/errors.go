package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks failures caused by missing credentials or
	// missing account assets; never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation marks rejected input or state that needs operator action.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups for records that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks attempts to create a run while another is active.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState marks operations applied to a run in the wrong status.
	ErrInvalidState = errors.New("invalid state")
	// ErrExternalService marks provider failures (rate limits, 5xx, timeouts).
	ErrExternalService = errors.New("external service error")
	// ErrTransient marks everything else that may succeed on a fresh run.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes step context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
