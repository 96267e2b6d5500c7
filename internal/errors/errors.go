// Package errors provides standardized error codes for the host application.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (auth, token, server, storage)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by mobile clients for programmatic
// error handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
// These are stable identifiers that mobile clients can rely on for error handling.
const (
	// Auth domain - pairing and connection authentication
	CodeAuthRequired     = "auth.required"      // Authentication required before other messages
	CodeAuthInvalidToken = "auth.invalid_token" // Token unknown, expired, or already consumed
	CodeAuthRateLimited  = "auth.rate_limited"  // Too many authentication attempts
	CodeAuthBadPayload   = "auth.bad_payload"   // Auth message payload could not be parsed

	// Token domain - pairing credential issuance
	CodeTokenNotRunning = "token.server_not_running" // Credential requested while server stopped
	CodeTokenIssue      = "token.issue_failed"       // Token generation failed

	// Server domain - WebSocket and network errors
	CodeServerBindFailed     = "server.bind_failed"     // Listener could not be created
	CodeServerUpgradeFailed  = "server.upgrade_failed"  // WebSocket upgrade failed
	CodeServerInvalidMessage = "server.invalid_message" // Malformed or invalid message
	CodeServerSendFailed     = "server.send_failed"     // Failed to send message
	CodeServerConnectionLost = "server.connection_lost" // Connection unexpectedly closed
	CodeServerNotRunning     = "server.not_running"     // Operation requires a running server

	// Storage domain - device history persistence
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Failed to save data
	CodeStorageNotFound    = "storage.not_found"    // Device or resource not found

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "server.bind_failed")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to client responses.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// BindFailed creates a "server.bind_failed" error.
func BindFailed(addr string, cause error) *CodedError {
	return Wrap(CodeServerBindFailed, fmt.Sprintf("failed to listen on %s", addr), cause)
}

// NotRunning creates a "server.not_running" error.
func NotRunning(operation string) *CodedError {
	return New(CodeServerNotRunning, fmt.Sprintf("%s requires a running server", operation))
}

// InvalidMessage creates a "server.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeServerInvalidMessage, reason)
}

// NotFound creates a "storage.not_found" error.
func NotFound(resource string) *CodedError {
	return New(CodeStorageNotFound, fmt.Sprintf("%s not found", resource))
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
