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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpadapter "orgwatch/internal/adapters/http"
	"orgwatch/internal/app"
	"orgwatch/internal/config"
	"orgwatch/internal/logger"
	"orgwatch/internal/workers/scanrunner"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadEnvFiles(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.Env == "development"})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", logger.Error(err))
		return err
	}
	defer a.Close()

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	workersDone := scanrunner.Run(workerCtx, a.DB, a.Scanner, scanrunner.Options{
		Concurrency:  cfg.ScanWorkers,
		PollInterval: 500 * time.Millisecond,
		Log:          log.With(logger.String("component", "scanrunner")),
		Tracker:      a.Metrics,
	})

	srv := httpadapter.New(a.Scanner, a.Gate, a.Duplicates, a.DB, a.Scanner,
		promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}), log.With(logger.String("component", "http")))
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	log.Info("listening", logger.String("addr", cfg.ListenAddr), logger.String("config", a.Describe()))

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		log.Error("server error", logger.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", logger.Error(err))
	}
	cancelWorkers()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		log.Warn("scan workers did not stop in time")
	}
	return serveErr
}
