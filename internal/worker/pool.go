// Package worker runs tagged requests on a fixed set of workers, each owning
// one module instance. Requests and responses cross the worker boundary as
// encoded copies; no memory is shared between a caller and a worker.
package worker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/binding"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/pkg/protocol"
)

// DefaultMailbox is the per-worker inbox capacity used when Config.Mailbox
// is zero.
const DefaultMailbox = 16

// Config sizes a pool.
type Config struct {
	Workers int
	Mailbox int

	// Seed seeds the worker selector. Zero picks a time-based seed.
	Seed uint64

	// Binding configures the crypto binding handed to handlers.
	Binding []binding.Option
}

// Pool dispatches requests to Ready workers.
//
// Selection is uniform-random among the workers that are Ready when the
// request is submitted. A pool with no Ready worker rejects the request
// immediately; it never queues on the caller's behalf.
type Pool struct {
	factory boundary.Factory
	router  *Router
	config  Config
	logger  *zap.Logger

	workers []*Worker

	rngMu sync.Mutex
	rng   *rand.Rand

	// sendMu orders mailbox sends against Close.
	sendMu  sync.RWMutex
	started bool
	closed  bool

	initMu   sync.Mutex
	pending  int
	initDone chan struct{}

	events   chan *protocol.Response
	wg       conc.WaitGroup
	eventsWG conc.WaitGroup
}

// NewPool creates a pool whose workers obtain their module from factory.
// Workers stay Uninitialized until Start.
func NewPool(factory boundary.Factory, router *Router, config Config, logger *zap.Logger) (*Pool, error) {
	if config.Workers < 1 {
		return nil, fmt.Errorf("pool needs at least one worker, got %d", config.Workers)
	}
	if config.Mailbox == 0 {
		config.Mailbox = DefaultMailbox
	}
	if config.Mailbox < 0 {
		return nil, fmt.Errorf("mailbox capacity must be positive, got %d", config.Mailbox)
	}
	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	p := &Pool{
		factory:  factory,
		router:   router,
		config:   config,
		logger:   logger.With(zap.String("component", "worker-pool")),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		pending:  config.Workers,
		initDone: make(chan struct{}),
		events:   make(chan *protocol.Response, config.Workers*config.Mailbox),
	}
	for i := 0; i < config.Workers; i++ {
		p.workers = append(p.workers, newWorker(p, i, uuid.NewString()))
	}
	return p, nil
}

// Start launches every worker. Each initializes its module concurrently
// and posts an INITIALIZE response when done. Start does not wait; use
// WaitReady.
func (p *Pool) Start(ctx context.Context) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if p.closed {
		return &PoolClosedError{}
	}
	if p.started {
		return nil
	}
	p.started = true

	p.logger.Info("Starting worker pool",
		zap.Int("workers", len(p.workers)),
		zap.Int("mailbox", p.config.Mailbox),
	)

	// Requests run to completion; cancelling the start context only stops
	// new initializations from waiting on it.
	runCtx := context.WithoutCancel(ctx)

	p.eventsWG.Go(func() {
		for resp := range p.events {
			p.router.notify(resp)
		}
	})
	for _, w := range p.workers {
		p.wg.Go(func() {
			w.run(runCtx)
		})
	}
	return nil
}

// initialized records the outcome of a worker's initialization. The worker
// becomes Ready only after its INITIALIZE response has been logged.
func (p *Pool) initialized(w *Worker, resp *protocol.Response, err error) {
	if err != nil {
		p.logger.Error("Worker failed to initialize",
			zap.String("worker_id", w.id),
			zap.String("kind", resp.Kind),
			zap.Error(err),
		)
		w.setState(Failed)
	} else {
		p.logger.Info("Worker initialized", zap.String("worker_id", w.id))
		w.setState(Ready)
	}

	if out, copyErr := copyResponse(resp); copyErr == nil {
		p.emit(out)
	}

	p.initMu.Lock()
	p.pending--
	if p.pending == 0 {
		close(p.initDone)
	}
	p.initMu.Unlock()
}

func (p *Pool) emit(resp *protocol.Response) {
	if p.router.hasListeners() {
		p.events <- resp
	}
}

// WaitReady blocks until every worker has finished initializing. It fails
// with NoWorkerAvailableError when none of them became Ready.
func (p *Pool) WaitReady(ctx context.Context) error {
	select {
	case <-p.initDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	if p.Ready() == 0 {
		return &NoWorkerAvailableError{Tag: protocol.TagInitialize, Workers: len(p.workers)}
	}
	return nil
}

// Submit hands req to a randomly chosen Ready worker and returns a channel
// that receives exactly one response. It blocks only while that worker's
// mailbox is full.
func (p *Pool) Submit(ctx context.Context, req *protocol.Request) (<-chan *protocol.Response, error) {
	w := p.pick()
	if w == nil {
		return nil, &NoWorkerAvailableError{Tag: req.Tag, Workers: len(p.workers)}
	}
	return p.send(ctx, w, req)
}

// SubmitTo hands req to the worker at index. A worker that is not Ready
// rejects the request with NotReadyError.
func (p *Pool) SubmitTo(ctx context.Context, index int, req *protocol.Request) (<-chan *protocol.Response, error) {
	if index < 0 || index >= len(p.workers) {
		return nil, fmt.Errorf("worker index %d out of range [0, %d)", index, len(p.workers))
	}
	w := p.workers[index]
	if s := w.State(); s != Ready {
		return nil, &boundary.NotReadyError{Module: w.id, State: s.String()}
	}
	return p.send(ctx, w, req)
}

// Do submits req and waits for its response. Failures inside the worker
// come back as an unsuccessful response; the error is reserved for requests
// that could not be dispatched.
func (p *Pool) Do(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	ch, err := p.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) send(ctx context.Context, w *Worker, req *protocol.Request) (<-chan *protocol.Response, error) {
	data, err := protocol.MarshalRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode '%s' request: %w", req.Tag, err)
	}

	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if p.closed {
		return nil, &PoolClosedError{}
	}

	reply := make(chan *protocol.Response, 1)
	select {
	case w.inbox <- envelope{data: data, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.logger.Debug("Request dispatched",
		zap.String("operation", string(req.Tag)),
		zap.String("worker_id", w.id),
	)
	return reply, nil
}

// pick chooses uniformly among the Ready workers.
func (p *Pool) pick() *Worker {
	ready := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		if w.State() == Ready {
			ready = append(ready, w)
		}
	}
	if len(ready) == 0 {
		return nil
	}
	p.rngMu.Lock()
	i := p.rng.IntN(len(ready))
	p.rngMu.Unlock()
	return ready[i]
}

// Ready returns the number of Ready workers.
func (p *Pool) Ready() int {
	n := 0
	for _, w := range p.workers {
		if w.State() == Ready {
			n++
		}
	}
	return n
}

// States returns every worker's state, by index.
func (p *Pool) States() []State {
	states := make([]State, len(p.workers))
	for i, w := range p.workers {
		states[i] = w.State()
	}
	return states
}

// Workers returns the pool's workers, by index.
func (p *Pool) Workers() []*Worker {
	return append([]*Worker(nil), p.workers...)
}

// Close stops accepting requests, lets every worker drain its mailbox, and
// closes their modules. Calling it again is a no-op.
func (p *Pool) Close(ctx context.Context) error {
	p.sendMu.Lock()
	if p.closed {
		p.sendMu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	for _, w := range p.workers {
		close(w.inbox)
	}
	p.sendMu.Unlock()

	p.logger.Info("Shutting down worker pool")

	if started {
		p.wg.Wait()
		close(p.events)
		p.eventsWG.Wait()
	}

	var err error
	for _, w := range p.workers {
		err = multierr.Append(err, w.close(ctx))
	}
	if err != nil {
		p.logger.Error("Failed to close worker modules", zap.Error(err))
		return err
	}
	p.logger.Info("Worker pool shutdown complete")
	return nil
}
