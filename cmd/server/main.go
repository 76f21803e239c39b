package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hunabku/shorturl/internal/cache"
	"github.com/hunabku/shorturl/internal/config"
	"github.com/hunabku/shorturl/internal/handler"
	"github.com/hunabku/shorturl/internal/logger"
	"github.com/hunabku/shorturl/internal/middleware"
	"github.com/hunabku/shorturl/internal/repository"
	"github.com/hunabku/shorturl/internal/service"
	"github.com/hunabku/shorturl/internal/validator"
)

func main() {
	// ============================================================
	// LOAD CONFIGURATION
	// ============================================================
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	// ============================================================
	// Initialize logger
	// ============================================================
	log := logger.New(cfg.Log)

	log.Info("starting shorturl",
		"level", cfg.Log.Level,
		"format", cfg.Log.Format,
		"environment", cfg.App.Environment,
		"store", cfg.Store.Driver,
	)
	if cfg.Auth.APIKey == "" {
		log.Warn("API_KEY is empty, short link creation is unauthenticated")
	}

	// ============================================================
	// INITIALIZE STORE
	// ============================================================
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	store, err := repository.Open(ctx, cfg)
	if err != nil {
		cancel()
		log.Error("failed to initialize store", "driver", cfg.Store.Driver, "error", err.Error())
		os.Exit(1)
	}

	// ============================================================
	// INITIALIZE REDIS CACHE
	// ============================================================
	if cfg.Cache.Enabled {
		log.Info("connecting to Redis cache...", "addr", cfg.Redis.Addr)
	}
	store, err = cache.Open(ctx, store, cfg, log)
	if err != nil {
		cancel()
		log.Error("failed to connect to Redis", "error", err.Error())
		os.Exit(1)
	}
	if cfg.Cache.Enabled {
		log.Info("resolution cache enabled", "ttl", cfg.Cache.TTL)
	}
	cancel()

	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close store", "error", err.Error())
		}
	}()

	svc := service.NewShortLinkService(store, service.Options{
		BaseURL:      cfg.App.BaseURL,
		MaxAttempts:  cfg.Allocator.MaxAttempts,
		StoreTimeout: cfg.Store.Timeout,
	}, log)

	h := handler.NewShortLinkHandler(svc, validator.New(cfg.Validator), store, cfg.Auth.APIKey, log)
	router := h.SetupRoutes()

	// ============================================================
	// BUILD MIDDLEWARE CHAIN
	// ============================================================
	wrappedRouter := middleware.Chain(router,
		middleware.RequestID,
		middleware.RecoveryWithLogger(log),
		middleware.LoggingWithLogger(log),
	)

	// ============================================================
	// CREATE SERVER WITH CONFIG TIMEOUTS
	// ============================================================
	addr := ":" + cfg.Server.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      wrappedRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel to track server errors
	serverErr := make(chan error, 1)

	go func() {
		log.Info("server starting",
			"addr", addr,
			"base_url", cfg.App.BaseURL,
			"routes", "GET|POST /shorturl_create, GET|POST /shorturl/{code}, GET /health",
		)
		serverErr <- server.ListenAndServe()
	}()

	// ============================================================
	// WAIT FOR SHUTDOWN OR ERROR
	// ============================================================
	select {
	case err := <-serverErr:
		log.Error("server error", "error", err.Error())
		store.Close()
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "error", err.Error())
			// force close if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Error("forced shutdown failed", "error", err.Error())
			}
		}

		log.Info("server stopped")
	}
}
