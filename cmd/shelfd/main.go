package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/shelf/pkg/api"
	"github.com/platinummonkey/shelf/pkg/blob"
	"github.com/platinummonkey/shelf/pkg/config"
	"github.com/platinummonkey/shelf/pkg/manifest"
	"github.com/platinummonkey/shelf/pkg/observability"
	"github.com/platinummonkey/shelf/pkg/registry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	if cfg.DB.Driver == "sqlite3" {
		// sqlite serializes writers; a single connection avoids lock errors.
		db.SetMaxOpenConns(1)
	}

	store, err := registry.NewSQLStore(ctx, db, registry.Dialect(cfg.DB.Driver))
	if err != nil {
		logger.WithError(err).Error("failed to initialize store")
		os.Exit(1)
	}
	logger.WithField("driver", cfg.DB.Driver).Info("store initialized")

	publisher, err := blob.NewS3Publisher(ctx, cfg.Blob)
	if err != nil {
		logger.WithError(err).Error("failed to initialize blob store")
		os.Exit(1)
	}
	logger.WithField("bucket", cfg.Blob.Bucket).Info("blob store initialized")

	var cache *registry.PublishedCache
	if cfg.Cache.RedisURL != "" {
		cache, err = registry.NewPublishedCache(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			logger.WithError(err).Error("failed to connect to redis")
			os.Exit(1)
		}
		defer cache.Close()
		logger.Info("published cache enabled")
	}

	extractor, err := manifest.NewExtractor(cfg.Paths.LogoDir)
	if err != nil {
		logger.WithError(err).Error("failed to initialize extractor")
		os.Exit(1)
	}

	service, err := registry.NewService(registry.Options{
		Store:       store,
		Blob:        publisher,
		Extractor:   extractor,
		Cache:       cache,
		Logger:      logger,
		Metrics:     metrics,
		UploadDir:   cfg.Paths.UploadDir,
		ScratchRoot: cfg.Paths.ScratchRoot,
		KeyPrefix:   cfg.Blob.KeyPrefix,
	})
	if err != nil {
		logger.WithError(err).Error("failed to initialize service")
		os.Exit(1)
	}

	router := api.NewRouter(api.ServerOptions{
		Service:        service,
		Logger:         logger,
		Metrics:        metrics,
		LogoDir:        cfg.Paths.LogoDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("server listening")
		if cfg.Server.TLSCertFile != "" && cfg.Server.TLSKeyFile != "" {
			errCh <- server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			errCh <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("graceful shutdown failed")
		}
	}
}
