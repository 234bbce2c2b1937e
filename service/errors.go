package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNonRetryable marks job failures that redelivery cannot fix, usually
// because the job already released its local inputs.
var ErrNonRetryable = errors.New("non-retryable error")

var (
	ErrClientInput  = errors.New("invalid input")
	ErrIntegrity    = errors.New("data integrity error")
	ErrExternalTool = errors.New("external tool error")
	ErrUpstream     = errors.New("upstream service error")
	ErrBusy         = errors.New("session busy")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrServerIO     = errors.New("server i/o error")
)

// Wrap builds an error message with stage context and tags it with marker
// so callers can classify it with errors.Is.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrServerIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{stage, operation, message} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
