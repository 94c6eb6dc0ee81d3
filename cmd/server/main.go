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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/OpenNSW/fito/internal/archive"
	"github.com/OpenNSW/fito/internal/cache"
	"github.com/OpenNSW/fito/internal/catalog"
	"github.com/OpenNSW/fito/internal/config"
	"github.com/OpenNSW/fito/internal/database"
	"github.com/OpenNSW/fito/internal/fito/router"
	"github.com/OpenNSW/fito/internal/fito/service"
	"github.com/OpenNSW/fito/internal/fito/wizard"
	"github.com/OpenNSW/fito/internal/history"
	"github.com/OpenNSW/fito/internal/logging"
	"github.com/OpenNSW/fito/internal/metrics"
	"github.com/OpenNSW/fito/internal/middleware"
)

const janitorInterval = time.Minute

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	slog.SetDefault(logging.New(cfg.Log, os.Stdout))

	slog.Info("configuration loaded successfully",
		"db_driver", cfg.Database.Driver,
		"db_host", cfg.Database.Host,
		"db_name", cfg.Database.Name,
		"catalog_url", cfg.Catalog.BaseURL,
		"cache_type", cfg.Cache.Type,
		"storage_type", cfg.Storage.Type,
		"archive_enabled", cfg.Fito.ArchiveEnabled,
	)

	slog.Info("CORS configuration",
		"allowed_origins", cfg.CORS.AllowedOrigins,
		"allowed_methods", cfg.CORS.AllowedMethods,
		"allow_credentials", cfg.CORS.AllowCredentials,
	)

	ctx := context.Background()

	// Initialize database connection
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.HealthCheck(db); err != nil {
		log.Fatalf("database health check failed: %v", err)
	}

	store := history.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate history store: %v", err)
	}

	lookupCache, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		log.Fatalf("failed to initialize catalog cache: %v", err)
	}

	client := catalog.NewClient(cfg.Catalog, lookupCache)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	fitoMetrics := metrics.NewFitoMetrics(registry)

	var aliases map[string]string
	if cfg.Fito.DestinationAliasesFile != "" {
		aliases, err = service.LoadDestinationAliases(cfg.Fito.DestinationAliasesFile)
		if err != nil {
			log.Fatalf("failed to load destination aliases: %v", err)
		}
		slog.Info("destination aliases loaded", "file", cfg.Fito.DestinationAliasesFile, "count", len(aliases))
	}

	var (
		archiver      history.CertificateArchiver
		archiveReader router.ArchiveReader
	)
	if cfg.Fito.ArchiveEnabled {
		driver, err := archive.NewStorageFromConfig(ctx, cfg.Storage)
		if err != nil {
			log.Fatalf("failed to initialize certificate storage: %v", err)
		}
		// local files without their own public server are served by the archive route
		var linkBase string
		if cfg.Storage.Type == "local" && cfg.Storage.LocalPublicURL == "" {
			linkBase = router.APIPrefix + "/archive"
		}
		a := archive.NewArchiver(client, driver, linkBase)
		archiver = a
		archiveReader = a
	}

	sessions := wizard.NewManager(wizard.Deps{
		Catalog:          client,
		Resolver:         service.NewDestinationResolver(client, aliases),
		Recorder:         history.NewRecorder(store, archiver),
		Metrics:          fitoMetrics,
		PollInterval:     cfg.Fito.PollInterval,
		MatchConcurrency: cfg.Fito.MatchConcurrency,
	}, cfg.Fito.SessionTTL)
	sessions.Start(janitorInterval)

	health := func(ctx context.Context) error {
		return database.HealthCheck(db)
	}

	// Set up HTTP routes
	mux := http.NewServeMux()
	router.NewFitoRouter(sessions, client, store, archiveReader, health).Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	handler := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Logging,
		middleware.Recoverer,
		middleware.CORS(&cfg.CORS),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("http server: %w", err))
	}

	// stops the janitor and every poll loop
	sessions.Stop()

	shutdownErr = multierr.Append(shutdownErr, lookupCache.Close())
	shutdownErr = multierr.Append(shutdownErr, database.Close(db))

	if shutdownErr != nil {
		slog.Error("server stopped with errors", "error", shutdownErr)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
