package kernel

import (
	"errors"
	"fmt"
)

// ErrorCode is the taxonomy Center/Execution attach to a failed or
// denied Response (§7): distinct from the wire-level ResponseStatus,
// it tells the caller (and the metrics it feeds) *why*.
type ErrorCode uint32

const (
	ErrNone ErrorCode = iota
	ErrInvalidEvent
	ErrRoutingTableFull
	ErrPermissionDenied
	ErrResourceNotFound
	ErrResourceExhausted
	ErrTaskLimitReached
	ErrStorageCorrupt
	ErrTimeout
	ErrInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNone:
		return "none"
	case ErrInvalidEvent:
		return "invalid_event"
	case ErrRoutingTableFull:
		return "routing_table_full"
	case ErrPermissionDenied:
		return "permission_denied"
	case ErrResourceNotFound:
		return "resource_not_found"
	case ErrResourceExhausted:
		return "resource_exhausted"
	case ErrTaskLimitReached:
		return "task_limit_reached"
	case ErrStorageCorrupt:
		return "storage_corrupt"
	case ErrTimeout:
		return "timeout"
	case ErrInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the structured error kernel components return internally,
// ahead of being folded into a Response's status/error_code on the wire.
// Op names the component ("center.route", "storage.open", ...); Code
// classifies it for metrics and caller branching; Inner optionally wraps
// the underlying cause.
type Error struct {
	Op    string
	Code  ErrorCode
	Inner error
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("kernel: %s: %s: %v", e.Op, e.Code, e.Inner)
	}
	return fmt.Sprintf("kernel: %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Inner }

// Is makes errors.Is(err, kernel.ErrInvalidEvent-shaped sentinel) work
// by comparing codes when the target is also a *Error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError builds a kernel.Error for op/code, optionally wrapping cause.
func NewError(op string, code ErrorCode, cause error) *Error {
	return &Error{Op: op, Code: code, Inner: cause}
}

// sentinelError is a plain comparable error for package-level sentinels
// (ErrRoutingFull, ErrRoutingMissing) that don't need the Op/Code
// structure — they're control-flow signals within package kernel, not
// values that cross the wire.
type sentinelError struct{ msg string }

func (e *sentinelError) Error() string { return e.msg }

func newSentinelError(msg string) error { return &sentinelError{msg: msg} }

// ErrUnknownSignal is returned when a proc_signal payload's op byte
// doesn't match any known SignalOp.
var ErrUnknownSignal = newSentinelError("kernel: unknown signal op")
