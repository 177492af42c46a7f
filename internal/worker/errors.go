package worker

import (
	"fmt"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/pkg/protocol"
)

// NoWorkerAvailableError is returned when no worker is Ready. The request
// never reaches a worker.
type NoWorkerAvailableError struct {
	Tag     protocol.Tag
	Workers int
}

func (e *NoWorkerAvailableError) Error() string {
	return fmt.Sprintf("no worker available for '%s' (0 of %d ready)", e.Tag, e.Workers)
}

func (e *NoWorkerAvailableError) Kind() boundary.ErrorKind { return boundary.KindNoWorker }

// UnknownTagError is returned by a worker asked to run a tag nobody
// registered a handler for.
type UnknownTagError struct {
	Tag protocol.Tag
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("no handler registered for '%s'", e.Tag)
}

// PoolClosedError is returned by Submit after Close.
type PoolClosedError struct{}

func (e *PoolClosedError) Error() string {
	return "worker pool is closed"
}
