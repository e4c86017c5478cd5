package partition

import (
	"errors"
	"fmt"

	"github.com/roach88/partd/internal/types"
)

// ErrStopped is returned by Propose once the processor has stopped.
var ErrStopped = errors.New("partition processor stopped")

// ErrNotLeader is wrapped by PARTITION_KEY_MISMATCH errors raised because the
// local node does not currently lead the partition.
var ErrNotLeader = errors.New("partition leader required")

// Error represents a rejected partition command.
//
// Error includes structured fields for diagnostics: the caller decides
// whether to retry, re-resolve ownership, or surface the failure.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Invocation identifies the affected invocation, if any.
	Invocation string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes partition errors.
type ErrorCode string

const (
	// ErrCodeInvalidStatusTransition indicates a transition that would break
	// the single active invocation per service instance.
	ErrCodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"

	// ErrCodeUnknownInvocation indicates a command for an invocation that is
	// not active on this partition.
	ErrCodeUnknownInvocation ErrorCode = "UNKNOWN_INVOCATION"

	// ErrCodePartitionKeyMismatch indicates a command for a key this
	// partition does not own.
	ErrCodePartitionKeyMismatch ErrorCode = "PARTITION_KEY_MISMATCH"

	// ErrCodeInvalidCommand indicates a command that can never be applied:
	// a missing payload, an empty service name or an undecodable entry.
	ErrCodeInvalidCommand ErrorCode = "INVALID_COMMAND"

	// ErrCodeStorageUnavailable indicates the storage transaction failed. No
	// part of the command was applied.
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Invocation != "" {
		msg = fmt.Sprintf("%s (invocation=%s)", msg, e.Invocation)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsInvalidStatusTransition returns true if err is an INVALID_STATUS_TRANSITION error.
// Uses errors.As to handle wrapped errors.
func IsInvalidStatusTransition(err error) bool {
	return hasCode(err, ErrCodeInvalidStatusTransition)
}

// IsUnknownInvocation returns true if err is an UNKNOWN_INVOCATION error.
func IsUnknownInvocation(err error) bool {
	return hasCode(err, ErrCodeUnknownInvocation)
}

// IsPartitionKeyMismatch returns true if err is a PARTITION_KEY_MISMATCH error.
func IsPartitionKeyMismatch(err error) bool {
	return hasCode(err, ErrCodePartitionKeyMismatch)
}

// IsInvalidCommand returns true if err is an INVALID_COMMAND error.
func IsInvalidCommand(err error) bool {
	return hasCode(err, ErrCodeInvalidCommand)
}

// IsStorageUnavailable returns true if err is a STORAGE_UNAVAILABLE error.
func IsStorageUnavailable(err error) bool {
	return hasCode(err, ErrCodeStorageUnavailable)
}

// NewInvalidStatusTransitionError creates an Error for a rejected start.
func NewInvalidStatusTransitionError(id types.ServiceInvocationID, current types.InvocationStatus) *Error {
	return &Error{
		Code:       ErrCodeInvalidStatusTransition,
		Message:    fmt.Sprintf("cannot start invocation while service instance is %s", current.Kind),
		Invocation: id.String(),
	}
}

// NewUnknownInvocationError creates an Error for a command addressing an
// inactive invocation.
func NewUnknownInvocationError(id types.ServiceInvocationID) *Error {
	return &Error{
		Code:       ErrCodeUnknownInvocation,
		Message:    "invocation is not active on this partition",
		Invocation: id.String(),
	}
}

// NewPartitionKeyMismatchError creates an Error for a key outside the
// partition's range.
func NewPartitionKeyMismatchError(pid types.PartitionID, pk types.PartitionKey, keys types.KeyRange) *Error {
	return &Error{
		Code:    ErrCodePartitionKeyMismatch,
		Message: fmt.Sprintf("partition key %d outside range [%d, %d] of partition %d", pk, keys.Start, keys.End, pid),
	}
}

// NewNotLeaderError creates a PARTITION_KEY_MISMATCH Error wrapping ErrNotLeader.
func NewNotLeaderError(pid types.PartitionID, node string) *Error {
	return &Error{
		Code:    ErrCodePartitionKeyMismatch,
		Message: fmt.Sprintf("node %q does not lead partition %d", node, pid),
		Err:     ErrNotLeader,
	}
}

// NewInvalidCommandError creates an Error for a malformed command. err is
// the decode failure, if any.
func NewInvalidCommandError(message string, err error) *Error {
	return &Error{
		Code:    ErrCodeInvalidCommand,
		Message: message,
		Err:     err,
	}
}

// NewStorageUnavailableError wraps a failed storage transaction.
func NewStorageUnavailableError(err error) *Error {
	return &Error{
		Code:    ErrCodeStorageUnavailable,
		Message: "storage transaction failed",
		Err:     err,
	}
}
