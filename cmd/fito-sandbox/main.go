package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/OpenNSW/fito/internal/config"
	"github.com/OpenNSW/fito/internal/logging"
	"github.com/OpenNSW/fito/internal/middleware"
	"github.com/OpenNSW/fito/internal/sandbox"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	cfg, err := config.LoadSandbox()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	slog.SetDefault(logging.New(cfg.Log, os.Stdout))

	fixtures := sandbox.DefaultFixtures()
	if cfg.FixturesFile != "" {
		fixtures, err = sandbox.LoadFixtures(cfg.FixturesFile)
		if err != nil {
			log.Fatalf("failed to load fixtures: %v", err)
		}
	}
	slog.Info("fixtures loaded",
		"shipments", len(fixtures.Shipments),
		"products", len(fixtures.Products),
		"ports", len(fixtures.Ports))

	store, err := sandbox.OpenJobStore(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open job store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close job store", "error", err)
		}
	}()

	runner := sandbox.NewRunner(store, cfg.StepInterval)
	runCtx, stopRunner := context.WithCancel(context.Background())
	defer stopRunner()
	go runner.Run(runCtx)

	mux := http.NewServeMux()
	sandbox.NewHandler(fixtures, runner, cfg.Token).Register(mux, cfg.BasePath)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           middleware.Chain(mux, middleware.RequestID, middleware.Logging, middleware.Recoverer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("starting fito sandbox", "port", cfg.Port, "basePath", cfg.BasePath, "stepInterval", cfg.StepInterval)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	slog.Info("shutting down fito sandbox...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	stopRunner()
	slog.Info("fito sandbox stopped")
}
