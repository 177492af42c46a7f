package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/binding"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/pkg/protocol"
)

// envelope is one request in a worker's mailbox. The request travels as
// CBOR bytes so the worker decodes its own copy.
type envelope struct {
	data  []byte
	reply chan *protocol.Response
}

// Worker owns one module instance and serves its mailbox one request at a
// time, in arrival order.
type Worker struct {
	id     string
	index  int
	pool   *Pool
	logger *zap.Logger

	state atomic.Int32
	inbox chan envelope

	mu      sync.Mutex
	mod     boundary.Module
	env     *Env
	initErr error
}

func newWorker(p *Pool, index int, id string) *Worker {
	return &Worker{
		id:     id,
		index:  index,
		pool:   p,
		inbox:  make(chan envelope, p.config.Mailbox),
		logger: p.logger.With(zap.String("worker_id", id), zap.Int("worker", index)),
	}
}

// ID returns the worker's identifier.
func (w *Worker) ID() string {
	return w.id
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Err returns the initialization failure of a Failed worker.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.initErr
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// run initializes the module, then serves the mailbox until it is closed.
func (w *Worker) run(ctx context.Context) {
	w.initialize(ctx)
	for e := range w.inbox {
		w.post(e.reply, w.serve(ctx, e.data))
	}
}

func (w *Worker) initialize(ctx context.Context) {
	w.setState(Initializing)

	mod, err := w.pool.factory(ctx)
	if err == nil {
		err = mod.Init(ctx)
	}

	w.mu.Lock()
	w.mod = mod
	if err != nil {
		w.initErr = err
	} else {
		w.env = &Env{
			WorkerID: w.id,
			Module:   mod,
			Crypto:   binding.NewCrypto(mod, w.logger, w.pool.config.Binding...),
			Logger:   w.logger,
		}
	}
	w.mu.Unlock()

	resp := &protocol.Response{Tag: protocol.TagInitialize, Success: true, Worker: w.id}
	if err != nil {
		resp = protocol.Failure(protocol.TagInitialize, string(boundary.KindOf(err)), err)
		resp.Worker = w.id
	}
	w.pool.initialized(w, resp, err)
}

// serve decodes and runs one request. Every outcome is a response.
func (w *Worker) serve(ctx context.Context, data []byte) *protocol.Response {
	req, err := protocol.UnmarshalRequest(data)
	if err != nil {
		return w.failure("", err)
	}
	if s := w.State(); s != Ready {
		return w.failure(req.Tag, &boundary.NotReadyError{Module: w.id, State: s.String()})
	}
	h, ok := w.pool.router.Route(req.Tag)
	if !ok {
		return w.failure(req.Tag, &UnknownTagError{Tag: req.Tag})
	}

	var resp *protocol.Response
	var pc panics.Catcher
	pc.Try(func() {
		resp, err = h(ctx, w.env, req)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	if err != nil {
		if w.corrupt(err) {
			w.fail(err)
		}
		w.logger.Warn("Request failed",
			zap.String("operation", string(req.Tag)),
			zap.Error(err),
		)
		return w.failure(req.Tag, err)
	}

	if resp == nil {
		resp = &protocol.Response{}
	}
	resp.Tag = req.Tag
	resp.Success = true
	resp.Error = ""
	resp.Kind = ""
	resp.Worker = w.id
	return resp
}

// corrupt reports whether err leaves the module unusable: a fatal trap, or
// a module that no longer reports itself ready.
func (w *Worker) corrupt(err error) bool {
	var trap *boundary.ModuleTrapError
	if errors.As(err, &trap) && trap.Fatal {
		return true
	}
	return !w.mod.Ready()
}

func (w *Worker) fail(err error) {
	w.setState(Failed)
	w.logger.Error("Worker failed, excluding it from selection", zap.Error(err))
}

func (w *Worker) failure(tag protocol.Tag, err error) *protocol.Response {
	resp := protocol.Failure(tag, string(boundary.KindOf(err)), err)
	resp.Worker = w.id
	return resp
}

// post copies resp through its wire form and hands the copy to the caller
// and to any listeners.
func (w *Worker) post(reply chan<- *protocol.Response, resp *protocol.Response) {
	out, err := copyResponse(resp)
	if err != nil {
		out = w.failure(resp.Tag, err)
	}
	reply <- out
	w.pool.emit(out)
}

func copyResponse(resp *protocol.Response) (*protocol.Response, error) {
	data, err := protocol.MarshalResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode '%s' response: %w", resp.Tag, err)
	}
	return protocol.UnmarshalResponse(data)
}

// close releases the worker's module.
func (w *Worker) close(ctx context.Context) error {
	w.setState(Closed)
	w.mu.Lock()
	mod := w.mod
	w.mod = nil
	w.mu.Unlock()
	if mod == nil {
		return nil
	}
	return mod.Close(ctx)
}
