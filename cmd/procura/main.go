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

	"go.uber.org/zap"

	handler "github.com/neomorfeo/procura/internal/adapter/http"
	oteladapter "github.com/neomorfeo/procura/internal/adapter/otel"
	"github.com/neomorfeo/procura/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "procura: %v\n", err)
		os.Exit(1)
	}
}

// run serves the API until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// --- Observability ---
	providers, err := oteladapter.Setup(ctx, cfg.OTel, logger)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("otel shutdown", zap.Error(err))
		}
	}()

	// --- Adapters (out) and application ---
	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close(logger)

	if c.river != nil {
		if err := c.river.Start(ctx); err != nil {
			return fmt.Errorf("starting effect queue: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := c.river.Stop(stopCtx); err != nil {
				logger.Warn("effect queue shutdown", zap.Error(err))
			}
		}()
	}

	// --- Adapters (in) ---
	router := handler.NewRouter(c.services, logger, handler.RouterConfig{
		ServiceName: cfg.OTel.ServiceName,
		Version:     cfg.OTel.ServiceVersion,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("procura listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("backend", string(cfg.Database.Backend)),
			zap.String("effects", string(cfg.Effects.Mode)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("stopped")
	return nil
}
