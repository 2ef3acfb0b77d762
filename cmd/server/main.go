// Package main runs the adjustment engine as a service:
// - HTTP API (gin): recompute trigger, per-stock adjustments, health, metrics
// - Scheduled recompute (cron) over the configured year range
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"dividend-screener/internal/api"
	"dividend-screener/internal/app"
	"dividend-screener/internal/config"
	"dividend-screener/internal/logging"
)

const shutdownTimeout = 30 * time.Second

// Server holds all components of the service.
type Server struct {
	app    *app.App
	runner *api.Runner
	http   *http.Server
	cron   *cron.Cron
	logger *zap.Logger
}

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = "server"
	cliApp.Usage = "Serve dividend adjustments over HTTP and recompute on a schedule"
	cliApp.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "TOML config file", EnvVar: "SCREENER_CONFIG"},
		cli.StringFlag{Name: "addr", Usage: "HTTP listen address (overrides SCREENER_HTTP_ADDR)"},
		cli.StringFlag{Name: "storage", Usage: "storage backend: memory, postgres or mysql"},
		cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
	}
	cliApp.Action = run

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(config.Overrides{
		Addr:     c.String("addr"),
		Backend:  c.String("storage"),
		LogLevel: c.String("log-level"),
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return fmt.Errorf("wire engine: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()

	s := newServer(ctx, a, logger)

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Error("received second signal, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(shutdownTimeout):
			logger.Error("graceful shutdown timed out, forcing exit", zap.Duration("timeout", shutdownTimeout))
			os.Exit(1)
		case <-done:
		}
	}()

	err = s.Run(ctx)
	close(done)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func newServer(ctx context.Context, a *app.App, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	runner := api.NewRunner(a.Orchestrator)
	handlers := api.NewServer(api.Options{
		Runner:        runner,
		StockStore:    a.Stores.Stocks,
		DividendStore: a.Stores.Dividends,
		FactorStore:   a.Stores.Factors,
		DefaultYears:  a.Years(),
		Logger:        logger,
		BaseContext:   ctx,
	})

	return &Server{
		app:    a,
		runner: runner,
		http: &http.Server{
			Addr:              a.Config.Server.Addr,
			Handler:           handlers.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("server"),
	}
}

// Run serves HTTP and the schedule until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.startScheduler(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	return runErr
}

func (s *Server) startScheduler(ctx context.Context) error {
	spec := s.app.Config.Server.Schedule
	if spec == "" {
		s.logger.Info("scheduled recompute disabled")
		return nil
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(spec, func() { s.scheduledRun(ctx) })
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduled recompute enabled", zap.String("schedule", spec))
	return nil
}

func (s *Server) scheduledRun(ctx context.Context) {
	years := s.app.Years()
	res, err := s.runner.Run(ctx, nil, years)
	switch {
	case errors.Is(err, api.ErrRunInProgress):
		s.logger.Info("scheduled recompute skipped, previous run still active")
	case err != nil:
		s.logger.Error("scheduled recompute failed", zap.Error(err))
	default:
		s.logger.Info("scheduled recompute finished",
			zap.String("run_id", res.RunID),
			zap.Int("succeeded", res.Succeeded),
			zap.Int("failed", res.Failed),
		)
	}
}
