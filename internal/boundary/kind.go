package boundary

import (
	"errors"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/memory"
)

// ErrorKind is a stable, renderable classification of a failure.
type ErrorKind string

const (
	KindBounds      ErrorKind = "bounds"
	KindCapacity    ErrorKind = "capacity"
	KindOutOfMemory ErrorKind = "out_of_memory"
	KindNotReady    ErrorKind = "not_ready"
	KindValidation  ErrorKind = "validation"
	KindLink        ErrorKind = "link"
	KindTrap        ErrorKind = "trap"
	KindOperation   ErrorKind = "operation"
	KindNoWorker    ErrorKind = "no_worker"
	KindInternal    ErrorKind = "internal"
)

// Kinded is implemented by errors that classify themselves. Packages that
// cannot be imported here (the worker pool) use it to join the taxonomy.
type Kinded interface {
	error
	Kind() ErrorKind
}

// KindOf returns the kind of the first classified error in err's chain, or
// KindInternal. A nil error has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var kinded Kinded
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}

	var boundsErr *memory.BoundsError
	if errors.As(err, &boundsErr) {
		return KindBounds
	}
	var capErr *memory.CapacityError
	if errors.As(err, &capErr) {
		return KindCapacity
	}
	if errors.Is(err, memory.ErrStaleView) {
		return KindBounds
	}

	return KindInternal
}
