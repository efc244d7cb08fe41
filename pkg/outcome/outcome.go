// Package outcome defines the tagged error kinds shared by the song-request
// core and the ok/error envelope rendered at the HTTP boundary. Operations
// inside the application return ordinary Go errors; the stable tags carried by
// *Error let calling layers branch on the failure kind without string
// matching, and the envelope serializes those tags for API clients.
package outcome

import (
	"errors"
	"fmt"
)

// Tags identifying each failure kind surfaced to callers. These values are
// part of the API contract and must remain stable.
const (
	TagTokenParse          = "TokenParseError"
	TagStreamOfflineNoTok  = "StreamOfflineNoTokenError"
	TagNoRefreshToken      = "NoRefreshTokenError"
	TagTokenRefreshNetwork = "TokenRefreshNetworkError"
	TagTokenRefreshParse   = "TokenRefreshParseError"
	TagSongRequestNotFound = "SongRequestNotFoundError"
	TagInvalidRequest      = "InvalidRequestError"
	TagInternal            = "InternalError"
)

// Error is a failure carrying a stable machine-readable tag alongside a
// human-readable message. It satisfies the error interface and supports
// errors.As for tag extraction.
type Error struct {
	Tag     string
	Message string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tag, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Message)
}

// Unwrap exposes the underlying cause, if any, for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// New returns a tagged error with the given message.
func New(tag, message string) *Error {
	return &Error{Tag: tag, Message: message}
}

// Errorf returns a tagged error with a formatted message.
func Errorf(tag, format string, args ...any) *Error {
	return &Error{Tag: tag, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a tagged error that records cause for unwrapping while
// presenting the provided message to callers.
func Wrap(tag, message string, cause error) *Error {
	return &Error{Tag: tag, Message: message, cause: cause}
}

// TagOf extracts the tag from err. Untagged errors report TagInternal so the
// boundary never leaks raw error strings as tags.
func TagOf(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Tag
	}
	return TagInternal
}

// Is reports whether err carries the given tag anywhere in its chain.
func Is(err error, tag string) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Tag == tag
	}
	return false
}

// Envelope is the wire form of an operation result: {"status":"ok","value":v}
// on success or {"status":"error","error":{"tag","message"}} on failure.
type Envelope struct {
	Status string    `json:"status"`
	Value  any       `json:"value,omitempty"`
	Err    *ErrorDoc `json:"error,omitempty"`
}

// ErrorDoc is the serialized error half of an Envelope.
type ErrorDoc struct {
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// OK wraps a successful value for serialization.
func OK(v any) Envelope {
	return Envelope{Status: "ok", Value: v}
}

// Fail wraps err into an error envelope. The message comes from the tagged
// error when available; untagged errors are reported generically to avoid
// leaking internals.
func Fail(err error) Envelope {
	var te *Error
	if errors.As(err, &te) {
		return Envelope{Status: "error", Err: &ErrorDoc{Tag: te.Tag, Message: te.Message}}
	}
	return Envelope{Status: "error", Err: &ErrorDoc{Tag: TagInternal, Message: "internal error"}}
}
