package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/binding"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/pkg/protocol"
)

// Env is what a handler sees of the worker running it.
type Env struct {
	WorkerID string
	Module   boundary.Module
	Crypto   *binding.Crypto
	Logger   *zap.Logger
}

// Handler runs one request inside a worker. Tag, Success and Worker of the
// returned response are filled in by the worker; a non-nil error becomes a
// failure response.
type Handler func(ctx context.Context, env *Env, req *protocol.Request) (*protocol.Response, error)

// Listener observes responses as they are posted back, keyed by tag.
type Listener func(resp *protocol.Response)

// Router maps operation tags to request handlers on the worker side and to
// response listeners on the caller side.
type Router struct {
	mu        sync.RWMutex
	handlers  map[protocol.Tag]Handler
	listeners map[protocol.Tag][]Listener
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{
		handlers:  make(map[protocol.Tag]Handler),
		listeners: make(map[protocol.Tag][]Listener),
	}
}

// Handle registers the handler for tag, replacing any previous one.
func (r *Router) Handle(tag protocol.Tag, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[tag] = h
}

// OnResponse registers a listener for responses carrying tag.
func (r *Router) OnResponse(tag protocol.Tag, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[tag] = append(r.listeners[tag], l)
}

// Route returns the handler for tag.
func (r *Router) Route(tag protocol.Tag) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[tag]
	return h, ok
}

// Tags returns the tags that have a handler.
func (r *Router) Tags() []protocol.Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]protocol.Tag, 0, len(r.handlers))
	for _, tag := range protocol.Tags {
		if _, ok := r.handlers[tag]; ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (r *Router) hasListeners() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners) > 0
}

func (r *Router) notify(resp *protocol.Response) {
	r.mu.RLock()
	ls := r.listeners[resp.Tag]
	r.mu.RUnlock()
	for _, l := range ls {
		l(resp)
	}
}
