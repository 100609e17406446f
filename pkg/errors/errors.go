// Package errors defines custom error types and error handling utilities for the modelfarm client.
// This package provides structured error types with stable codes so callers can decide
// between retrying, falling through to another strategy, or aborting.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// Code is a stable, machine-readable error identifier
type Code string

const (
	CodeConfiguration          Code = "configuration_error"
	CodeMissingEnvironment     Code = "missing_environment_variable"
	CodeTokenAcquisitionFailed Code = "token_acquisition_failed"
	CodeMalformedToken         Code = "malformed_token"
	CodeInvalidSignature       Code = "invalid_signature"
	CodeUnknownKeyID           Code = "unknown_key_id"
	CodeAudienceMismatch       Code = "audience_mismatch"
	CodeTokenExpired           Code = "token_expired"
	CodeMalformedStream        Code = "malformed_stream"
	CodeInvalidResponse        Code = "invalid_response"
	CodeBadRequest             Code = "bad_request"
	CodePaymentRequired        Code = "payment_required"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// ClientError represents a structured error with additional metadata
type ClientError interface {
	error

	// Code returns the stable error code
	Code() Code

	// Description returns a human-readable description of the error class
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) ClientError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) ClientError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	code        Code
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *baseError) Code() Code {
	return e.code
}

func (e *baseError) Description() string {
	return e.description
}

func (e *baseError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a ClientError carrying the same code, so that
// errors.Is works against values built by the constructors below.
func (e *baseError) Is(target error) bool {
	t, ok := target.(*baseError)
	return ok && t.code == e.code
}

func (e *baseError) WithCause(cause error) ClientError {
	e.cause = cause
	return e
}

func (e *baseError) WithMetadata(key string, value interface{}) ClientError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// NewError creates a new ClientError with the specified parameters
func NewError(code Code, description string, message string) ClientError {
	return &baseError{
		code:        code,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Identity Errors
// ================================================================================

// ErrConfiguration reports missing or malformed key material detected at construction.
func ErrConfiguration(message string) ClientError {
	return NewError(CodeConfiguration,
		"Identity material is malformed or inconsistent.",
		message,
	)
}

// ErrMissingEnvironmentVariable reports that a strategy's required variable is unset.
// The token manager treats it as "try the next strategy".
func ErrMissingEnvironmentVariable(name string) ClientError {
	return NewError(CodeMissingEnvironment,
		"A required environment variable is not set.",
		fmt.Sprintf("did not find the environment variable: %s", name),
	).WithMetadata("variable", name)
}

// ErrTokenAcquisitionFailed reports that every strategy failed. Instructions, when
// non-empty, are appended verbatim so the caller sees the required manual step.
func ErrTokenAcquisitionFailed(causes []error, instructions string) ClientError {
	var b strings.Builder
	b.WriteString("no token acquisition strategy succeeded")
	if instructions != "" {
		b.WriteString("\n\n")
		b.WriteString(instructions)
	}
	return NewError(CodeTokenAcquisitionFailed,
		"All token acquisition strategies were exhausted.",
		b.String(),
	).WithCause(stderrors.Join(causes...)).
		WithMetadata("attempts", len(causes))
}

// ErrPaymentRequired reports an L402 challenge that has not been paid yet.
func ErrPaymentRequired(instructions string) ClientError {
	return NewError(CodePaymentRequired,
		"The L402 invoice has not been paid.",
		instructions,
	)
}

// ================================================================================
// Verification Errors
// ================================================================================

// ErrMalformedToken reports a token that does not follow the versioned format.
func ErrMalformedToken(reason string) ClientError {
	return NewError(CodeMalformedToken,
		"The token is not a well-formed versioned signed token.",
		fmt.Sprintf("token is malformed: %s", reason),
	).WithMetadata("reason", reason)
}

// ErrInvalidSignature reports a signature that does not verify.
func ErrInvalidSignature(reason string) ClientError {
	return NewError(CodeInvalidSignature,
		"Token signature verification failed.",
		fmt.Sprintf("invalid signature: %s", reason),
	)
}

// ErrUnknownKeyID reports a key identifier absent from the registry.
func ErrUnknownKeyID(keyID string) ClientError {
	return NewError(CodeUnknownKeyID,
		"The token's key identifier is not in the public key registry.",
		fmt.Sprintf("unknown key id %q", keyID),
	).WithMetadata("key_id", keyID)
}

// ErrAudienceMismatch reports a token issued for a different audience.
func ErrAudienceMismatch(expected string, actual []string) ClientError {
	return NewError(CodeAudienceMismatch,
		"The token was issued for a different audience.",
		fmt.Sprintf("audience mismatch: expected %q, got %q", expected, actual),
	).WithMetadata("expected", expected).
		WithMetadata("actual", actual)
}

// ErrTokenExpired reports a token outside its validity window.
func ErrTokenExpired(expiresAt time.Time) ClientError {
	msg := "token has expired"
	if !expiresAt.IsZero() {
		msg = fmt.Sprintf("token expired at %s", expiresAt.UTC().Format(time.RFC3339))
	}
	return NewError(CodeTokenExpired,
		"The token is outside its validity window.",
		msg,
	).WithMetadata("expires_at", expiresAt)
}

// ================================================================================
// Stream and Response Errors
// ================================================================================

// ErrMalformedStream reports bytes that cannot be decoded as JSON. Offset is the
// absolute stream position of the first undecodable byte.
func ErrMalformedStream(offset int64, excerpt string) ClientError {
	return NewError(CodeMalformedStream,
		"The response stream contains undecodable bytes.",
		fmt.Sprintf("malformed stream at byte offset %d: %q", offset, excerpt),
	).WithMetadata("offset", offset).
		WithMetadata("excerpt", excerpt)
}

// ErrInvalidResponse reports a non-200 response or a body that is not JSON.
func ErrInvalidResponse(status int, detail string) ClientError {
	return NewError(CodeInvalidResponse,
		"The server returned an invalid response.",
		fmt.Sprintf("invalid response (status %d): %s", status, detail),
	).WithMetadata("status", status)
}

// ErrBadRequest reports a 400 response.
func ErrBadRequest(detail string) ClientError {
	return NewError(CodeBadRequest,
		"The server rejected the request.",
		detail,
	).WithMetadata("status", 400)
}

// ================================================================================
// Error Classification Utilities
// ================================================================================

// AsClientError finds the first ClientError in err's chain
func AsClientError(err error) (ClientError, bool) {
	var ce ClientError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// HasCode reports whether any error in err's chain carries code
func HasCode(err error, code Code) bool {
	return stderrors.Is(err, &baseError{code: code})
}

// IsRetryable reports whether the caller should re-acquire a token and retry once
func IsRetryable(err error) bool {
	return HasCode(err, CodeTokenExpired)
}

// IsFallthrough reports whether a strategy failure should move on to the next strategy
func IsFallthrough(err error) bool {
	ce, ok := AsClientError(err)
	return ok && ce.Code() == CodeMissingEnvironment
}

// IsFatal reports whether err must abort the strategy chain
func IsFatal(err error) bool {
	ce, ok := AsClientError(err)
	return ok && ce.Code() == CodeConfiguration
}

// Is and As are re-exported so importers of this package do not also need the standard one.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// New is a passthrough of the standard constructor.
func New(text string) error { return stderrors.New(text) }
