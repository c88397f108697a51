// Package apperr defines the error kinds surfaced by the client: connection
// failures, non-2xx server replies, undecodable payloads and failed
// validation. Local storage errors are never returned to callers; the
// LocalStoreError type exists so they can be logged consistently.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ConnectionError means the server could not be reached or timed out.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ServerError is a non-2xx reply. Message is the best human-readable text
// that could be extracted from the body.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// NotFound reports a 404 reply.
func (e *ServerError) NotFound() bool { return e.Code == http.StatusNotFound }

// ParseError means a reply body (or a field inside it) could not be decoded.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "invalid " + e.What
	}
	return fmt.Sprintf("invalid %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError is raised before any network call when input is rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// LocalStoreError wraps a local persistence failure for logging.
type LocalStoreError struct {
	Op  string
	Err error
}

func (e *LocalStoreError) Error() string {
	return fmt.Sprintf("local store %s: %v", e.Op, e.Err)
}

func (e *LocalStoreError) Unwrap() error { return e.Err }

// Validation builds a ValidationError.
func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Connection wraps a transport failure.
func Connection(op string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Err: err}
}

// IsConnection reports whether err is (or wraps) a ConnectionError.
func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StatusCode returns the HTTP status of a wrapped ServerError, or 0.
func StatusCode(err error) int {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// UserMessage turns err into a short notification-style message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		ve *ValidationError
		se *ServerError
		ce *ConnectionError
		pe *ParseError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &se):
		if se.Message != "" {
			return se.Message
		}
		return fmt.Sprintf("server error (HTTP %d)", se.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return "the server took too long to respond"
	case errors.As(err, &ce):
		return "cannot reach the server, check your connection"
	case errors.As(err, &pe):
		return "the server sent a response that could not be read"
	default:
		return err.Error()
	}
}
