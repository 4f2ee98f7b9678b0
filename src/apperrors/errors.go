package apperrors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind groups errors by how callers are expected to react to them.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindNotFound              Kind = "not_found"
	KindConflict              Kind = "conflict"
	KindInsufficientResource  Kind = "insufficient_resource"
	KindDependencyUnavailable Kind = "dependency_unavailable"
	KindInternal              Kind = "internal"
)

// Machine readable codes shared across packages.
const (
	CodeInvalidInput                  = "INVALID_INPUT"
	CodeWalletNotFound                = "WALLET_NOT_FOUND"
	CodeAgentNotFound                 = "AGENT_NOT_FOUND"
	CodeConfigNotFound                = "CONFIG_NOT_FOUND"
	CodePositionNotFound              = "POSITION_NOT_FOUND"
	CodePositionExists                = "POSITION_ALREADY_OPEN"
	CodeBalanceNotFound               = "BALANCE_NOT_FOUND"
	CodeBalanceExists                 = "BALANCE_ALREADY_EXISTS"
	CodeDuplicateExecution            = "DUPLICATE_EXECUTION"
	CodeInsufficientBalance           = "INSUFFICIENT_BALANCE"
	CodeBelowMinimumThreshold         = "BELOW_MINIMUM_THRESHOLD"
	CodeInsufficientBalanceForMinimum = "INSUFFICIENT_BALANCE_FOR_MINIMUM"
	CodeDependencyUnavailable         = "DEPENDENCY_UNAVAILABLE"
	CodeLockNotAcquired               = "LOCK_NOT_ACQUIRED"
	CodeTransactionFailed             = "TRANSACTION_FAILED"
	CodeExecutionNotPending           = "EXECUTION_NOT_PENDING"
	CodePriceUnavailable              = "PRICE_UNAVAILABLE"
	CodeInternal                      = "INTERNAL_ERROR"
)

// Error is the code-bearing error type returned by the engine.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New returns an *Error with a captured stack trace.
func New(kind Kind, code, message string) error {
	return pkgerrors.WithStack(&Error{Kind: kind, Code: code, Message: message})
}

// Wrap attaches kind and code to cause. Returns nil when cause is nil.
func Wrap(cause error, kind Kind, code, message string) error {
	if cause == nil {
		return nil
	}
	return pkgerrors.WithStack(&Error{Kind: kind, Code: code, Message: message, cause: cause})
}

// Retryable marks an internal failure the caller may safely retry.
func Retryable(cause error, code, message string) error {
	if cause == nil {
		return nil
	}
	return pkgerrors.WithStack(&Error{
		Kind:      KindInternal,
		Code:      code,
		Message:   message,
		Retryable: true,
		cause:     cause,
	})
}

func Validation(message string) error {
	return New(KindValidation, CodeInvalidInput, message)
}

func NotFound(code, message string) error {
	return New(KindNotFound, code, message)
}

func Conflict(code, message string) error {
	return New(KindConflict, code, message)
}

func InsufficientResource(code, message string) error {
	return New(KindInsufficientResource, code, message)
}

func DependencyUnavailable(cause error, message string) error {
	return Wrap(cause, KindDependencyUnavailable, CodeDependencyUnavailable, message)
}

// As extracts the first *Error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns KindInternal for errors that carry no kind.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns "" for errors that carry no code.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}

// IsBusinessOutcome reports errors that are expected during normal trading
// and should be logged below error level.
func IsBusinessOutcome(err error) bool {
	switch CodeOf(err) {
	case CodeInsufficientBalance, CodeBelowMinimumThreshold, CodeInsufficientBalanceForMinimum, CodePositionExists:
		return true
	}
	return false
}

// StackTrace renders the stack captured by New/Wrap, if any.
func StackTrace(err error) string {
	return fmt.Sprintf("%+v", err)
}
