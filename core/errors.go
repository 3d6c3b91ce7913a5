package core

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures surfaced by the administrative control plane.
type ErrorCode int

const (
	// General covers delegated and internal failures.
	General ErrorCode = iota
	// InvalidArguments marks missing or malformed identifiers and fields.
	InvalidArguments
	// PermissionDenied marks operations the requester may not perform.
	PermissionDenied
	// ItemNotFound marks unknown settings keys and account ids.
	ItemNotFound
)

// String returns the wire name of the code.
func (c ErrorCode) String() string {
	switch c {
	case InvalidArguments:
		return "BAD_REQUEST_PARAMS"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case ItemNotFound:
		return "ITEM_NOT_FOUND"
	default:
		return "GENERAL"
	}
}

// BrokerError is the typed error returned by services.
// Cause is optional and is kept for errors.Is/As traversal.
type BrokerError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *BrokerError) Error() string {
	return e.Message
}

func (e *BrokerError) Unwrap() error {
	return e.Cause
}

// NewInvalidParameterError builds an InvalidArguments error.
func NewInvalidParameterError(format string, args ...interface{}) *BrokerError {
	return &BrokerError{Code: InvalidArguments, Message: fmt.Sprintf(format, args...)}
}

// NewPermissionDeniedError builds a PermissionDenied error with a fixed message.
func NewPermissionDeniedError(message string) *BrokerError {
	return &BrokerError{Code: PermissionDenied, Message: message}
}

// NewNotFoundError builds an ItemNotFound error.
func NewNotFoundError(format string, args ...interface{}) *BrokerError {
	return &BrokerError{Code: ItemNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewDelegatedFailureError wraps a failure reported by an external collaborator
// (mail transport, notification publisher).
func NewDelegatedFailureError(message string, cause error) *BrokerError {
	return &BrokerError{Code: General, Message: message, Cause: cause}
}

// WithMessage returns a copy of err carrying a different message but the same code and cause.
func (e *BrokerError) WithMessage(message string) *BrokerError {
	return &BrokerError{Code: e.Code, Message: message, Cause: e.Cause}
}

// ErrorCodeOf returns the code of the first BrokerError in err's chain, or General.
func ErrorCodeOf(err error) ErrorCode {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.Code
	}
	return General
}

// IsNotFound reports whether err carries the ItemNotFound code.
func IsNotFound(err error) bool {
	return err != nil && ErrorCodeOf(err) == ItemNotFound
}
