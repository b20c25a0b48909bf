package interfaces

import (
	"context"
	"errors"
	"fmt"
)

// ConfigurationError reports a missing or malformed credential. It is
// terminal for the process: every request fails until redeployment.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ValidationError reports a request with missing or unusable fields.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// MethodError reports a request made with an unsupported HTTP verb.
type MethodError struct {
	Method  string
	Allowed string
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("method %s not allowed, use %s", e.Method, e.Allowed)
}

// UpstreamError wraps a failed call to the document store or push gateway.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the upstream call ran out of time.
func (e *UpstreamError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
