// Package service is the composition root: it turns a configuration into an
// engine, a module factory, a worker pool and the handlers that serve each
// operation tag.
package service

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/binding"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/config"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/cryptoabi"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/image"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/worker"
	"github.com/BotecoDaFerramenta/desmistificando-webassembly/pkg/protocol"
)

type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	images *image.Manager // wazero engine only
	router *worker.Router
	pool   *worker.Pool
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "service")),
		router: worker.NewRouter(),
	}

	shape, err := binding.ParseShape(cfg.CallShape)
	if err != nil {
		return nil, err
	}

	factory, err := s.engine(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s engine: %w", cfg.Engine, err)
	}

	s.register()

	pool, err := worker.NewPool(factory, s.router, worker.Config{
		Workers: cfg.Pool.Workers,
		Mailbox: cfg.Pool.Mailbox,
		Seed:    uint64(cfg.Pool.Seed),
		Binding: []binding.Option{
			binding.WithShape(shape),
			binding.WithArgon2(s.kdf()),
		},
	}, logger)
	if err != nil {
		return nil, multierr.Append(err, s.shutdownEngine(ctx))
	}
	s.pool = pool

	s.logger.Info("Service initialized",
		zap.String("engine", cfg.Engine),
		zap.String("image", cfg.Image),
		zap.Stringer("call_shape", shape),
		zap.Int("workers", cfg.Pool.Workers),
	)
	return s, nil
}

// Start launches the workers and waits until every one has initialized.
// It fails only when no worker became Ready.
func (s *Service) Start(ctx context.Context) error {
	if err := s.pool.Start(ctx); err != nil {
		return err
	}
	return s.pool.WaitReady(ctx)
}

// Do runs one request on the pool.
func (s *Service) Do(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return s.pool.Do(ctx, req)
}

// OnResponse registers a listener for responses carrying tag.
func (s *Service) OnResponse(tag protocol.Tag, l worker.Listener) {
	s.router.OnResponse(tag, l)
}

// Pool returns the worker pool.
func (s *Service) Pool() *worker.Pool {
	return s.pool
}

// Images returns the image catalog, or nil when the engine does not use one.
func (s *Service) Images() *image.Manager {
	return s.images
}

// Close gracefully shuts down the pool and the engine.
func (s *Service) Close(ctx context.Context) error {
	s.logger.Info("Shutting down service")

	err := s.pool.Close(ctx)
	err = multierr.Append(err, s.shutdownEngine(ctx))
	if err != nil {
		s.logger.Error("Failed to shutdown cleanly", zap.Error(err))
		return err
	}

	s.logger.Info("Service shutdown complete")
	return nil
}

func (s *Service) kdf() cryptoabi.Argon2Params {
	return cryptoabi.Argon2Params{
		Time:        s.cfg.KDF.TimeCost,
		Memory:      s.cfg.KDF.MemoryCost,
		Parallelism: s.cfg.KDF.Parallelism,
	}
}

func (s *Service) shutdownEngine(ctx context.Context) error {
	if s.images == nil {
		return nil
	}
	return s.images.Shutdown(ctx)
}

// Factory exposes the configured engine's module factory without a pool,
// for one-off inspection.
func Factory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (boundary.Factory, func(context.Context) error, error) {
	s := &Service{cfg: cfg, logger: logger.With(zap.String("component", "service"))}
	factory, err := s.engine(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	return factory, s.shutdownEngine, nil
}
