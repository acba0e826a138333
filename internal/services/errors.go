package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnrecognized marks input that matched no known fragment kind. Logged
	// and dropped, never retried.
	ErrUnrecognized = errors.New("unrecognized input")
	// ErrValidation marks malformed fragment content.
	ErrValidation = errors.New("validation error")
	// ErrTimeout marks a stage that exceeded its budget.
	ErrTimeout = errors.New("timeout")
	// ErrPersistence marks a failed durable write. This is the one class that
	// escalates instead of being dropped per session.
	ErrPersistence = errors.New("persistence error")
	// ErrTransient marks everything else.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
