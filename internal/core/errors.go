package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeNotConnected          = "not_connected"
	ErrCodeNotAMember            = "not_a_member"
	ErrCodeNotJoined             = "not_joined"
	ErrCodeTimeout               = "timeout"
	ErrCodeRejected              = "rejected"
	ErrCodeConnectivityExhausted = "connectivity_exhausted"
	ErrCodeBadRequest            = "bad_request"
	ErrCodeUnauthorized          = "unauthorized"
	ErrCodeUnsupportedVersion    = "unsupported_version"
)

var (
	ErrNotConnected          = coreError(ErrCodeNotConnected, "not connected")
	ErrNotAMember            = coreError(ErrCodeNotAMember, "not a member of room")
	ErrNotJoined             = coreError(ErrCodeNotJoined, "session is not joined")
	ErrTimeout               = coreError(ErrCodeTimeout, "request timed out")
	ErrRejected              = coreError(ErrCodeRejected, "rejected")
	ErrConnectivityExhausted = coreError(ErrCodeConnectivityExhausted, "reconnect attempts exhausted")
	ErrBadRequest            = coreError(ErrCodeBadRequest, "bad request")
	ErrUnauthorized          = coreError(ErrCodeUnauthorized, "unauthorized")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// Is reports whether target carries the same code, so errors decoded from
// the wire still match the package sentinels.
func (e *CoreError) Is(target error) bool {
	var other *CoreError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Rejected builds a rejected error carrying the backend's reason.
func Rejected(reason string) *CoreError {
	return coreError(ErrCodeRejected, reason)
}

// BadRequest builds a bad_request error with a specific message.
func BadRequest(msg string) *CoreError {
	return coreError(ErrCodeBadRequest, msg)
}

// AsCoreError converts any error into a CoreError, defaulting to rejected.
func AsCoreError(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return Rejected(err.Error())
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
