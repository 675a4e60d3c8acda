package domain

import (
	"errors"
	"fmt"
)

// ConfigError reports a malformed initiating call or misconfiguration:
// an unknown database or organism name, an empty gene set, an invalid
// filter expression. Never retried.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string {
	return "configuration: " + e.Detail
}

// ConfigErrorf builds a ConfigError from a format string.
func ConfigErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Detail: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// TransportError reports a network-level failure that persisted through
// every retry attempt. It wraps the last underlying failure.
type TransportError struct {
	Database Database
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s failed after %d attempts: %v", e.Database, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RequestError reports a non-retryable client error (4xx) from an upstream
// database. Body holds a truncated snippet of the response for diagnostics.
type RequestError struct {
	Database Database
	Status   int
	Body     string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request: %s returned status %d", e.Database, e.Status)
}
