// Package coreerr defines the stable error codes the session runtime
// returns at its public boundaries. Every code is wire-visible, so the
// strings are part of the contract and must not change once shipped.
package coreerr

import (
	"errors"
	"fmt"
)

// Code is a stable, wire-visible error identifier.
type Code string

const (
	AgentNotInstalled      Code = "AGENT_NOT_INSTALLED"
	UnknownAgentType       Code = "UNKNOWN_AGENT_TYPE"
	SessionNotFound        Code = "SESSION_NOT_FOUND"
	PTYWriteError          Code = "PTY_WRITE_ERROR"
	PTYResizeError         Code = "PTY_RESIZE_ERROR"
	OutputLagged           Code = "OUTPUT_LAGGED"
	InvalidCommand         Code = "INVALID_COMMAND"
	InvalidBinaryFrame     Code = "INVALID_BINARY_FRAME"
	RemoteNotActive        Code = "REMOTE_NOT_ACTIVE"
	InvalidToken           Code = "INVALID_TOKEN"
	PinRequired            Code = "PIN_REQUIRED"
	InvalidPin             Code = "INVALID_PIN"
	PinLocked              Code = "PIN_LOCKED"
	InvalidTrustedDevice   Code = "INVALID_TRUSTED_DEVICE"
	RemoteProviderUnavail  Code = "REMOTE_PROVIDER_UNAVAILABLE"
	InviteUsed             Code = "INVITE_USED"
	InviteExpired          Code = "INVITE_EXPIRED"
	InviteNotFound         Code = "INVITE_NOT_FOUND"
)

// retryable records whether a client may retry the operation that
// produced this code without changing anything else first.
var retryable = map[Code]bool{
	SessionNotFound:    true,
	PTYWriteError:      true,
	PTYResizeError:     true,
	OutputLagged:       true,
	InvalidCommand:     false,
	InvalidBinaryFrame: false,
}

// Error is the structured error every component returns at its public
// boundary instead of a bare error, carrying the stable code and
// whether the caller may retry.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error, deriving Retryable from the code's default; a
// call site that needs a different value sets Retryable on the result.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Retryable: retryable[code]}
}

// Wrap attaches a code to an existing error, preserving it for Unwrap.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Retryable: retryable[code], Err: err}
}

// As reports whether err is (or wraps) a *Error, returning it.
func As(err error) (*Error, bool) {
	var ce *Error
	ok := errors.As(err, &ce)
	return ce, ok
}
