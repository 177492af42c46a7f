package boundary

import (
	"errors"
	"fmt"
)

// ErrFreed is returned when an allocation handle is used after release.
var ErrFreed = errors.New("allocation already released")

// ErrDoubleFree is reported by Tracker when a pointer is freed twice or was
// never allocated.
var ErrDoubleFree = errors.New("pointer freed twice or never allocated")

// NotReadyError occurs when an operation is invoked before the module has
// finished initialization, or after it was closed.
type NotReadyError struct {
	Module string
	State  string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("module '%s' is not ready (state: %s)", e.Module, e.State)
}

func (e *NotReadyError) Kind() ErrorKind { return KindNotReady }

// OutOfMemoryError occurs when the module allocator cannot satisfy a request
// because its region cannot grow any further.
type OutOfMemoryError struct {
	Module    string
	Requested uint32
	Err       error
}

func (e *OutOfMemoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("module '%s' out of memory allocating %d bytes: %v", e.Module, e.Requested, e.Err)
	}
	return fmt.Sprintf("module '%s' out of memory allocating %d bytes", e.Module, e.Requested)
}

func (e *OutOfMemoryError) Unwrap() error {
	return e.Err
}

func (e *OutOfMemoryError) Kind() ErrorKind { return KindOutOfMemory }

// ValidationError occurs when module image bytes are not a well-formed image.
// It is fatal to the boundary instance that tried to load them.
type ValidationError struct {
	Module string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid module image '%s': %v", e.Module, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// LinkError occurs when a required import is missing or has the wrong shape.
type LinkError struct {
	Module string
	Import string // "module.name"
	Reason string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("failed to link module '%s': import '%s' %s", e.Module, e.Import, e.Reason)
}

func (e *LinkError) Kind() ErrorKind { return KindLink }

// ModuleTrapError occurs when an operation aborts mid-execution. Fatal is set
// when the module's state can no longer be trusted (for example the instance
// was closed by the trap); otherwise only the current call is lost.
type ModuleTrapError struct {
	Module string
	Op     string
	Fatal  bool
	Err    error
}

func (e *ModuleTrapError) Error() string {
	return fmt.Sprintf("module '%s' trapped in '%s': %v", e.Module, e.Op, e.Err)
}

func (e *ModuleTrapError) Unwrap() error {
	return e.Err
}

func (e *ModuleTrapError) Kind() ErrorKind { return KindTrap }

// OperationError carries a non-zero status returned by a completed operation.
// The code is only meaningful to that operation.
type OperationError struct {
	Op      string
	Code    int32
	Message string
}

func (e *OperationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("operation '%s' failed with status %d: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("operation '%s' failed with status %d", e.Op, e.Code)
}

func (e *OperationError) Kind() ErrorKind { return KindOperation }

// ExportNotFoundError occurs when a named operation is not exported.
type ExportNotFoundError struct {
	Module string
	Name   string
}

func (e *ExportNotFoundError) Error() string {
	return fmt.Sprintf("function '%s' not found in module '%s'", e.Name, e.Module)
}

func (e *ExportNotFoundError) Kind() ErrorKind { return KindLink }
