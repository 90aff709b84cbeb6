package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/config"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/logging"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/server"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/server/monitor"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 35 * time.Second
	shutdownTimeout    = 30 * time.Second
	taskStopTimeout    = 5 * time.Second
)

func main() {
	cfg, err := server.LoadConfig()
	logger := logging.New(cfg.Env, cfg.Debug)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	cfg.LogWarnings(logger)
	logger.Info("Starting Better Analytics server",
		zap.String("version", server.Version),
		zap.String("backend", cfg.Backend),
		zap.String("port", cfg.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := server.InitializeStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	lookup, closeGeo, err := server.InitializeGeo(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize geolocation", zap.Error(err))
	}
	defer closeGeo()

	storageMonitor := server.InitializeStorageMonitor(cfg)
	ingestHandler, queryHandler, hub := server.InitializeHandlers(store, cfg, lookup, storageMonitor, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	var retentionMonitor *monitor.TaskMonitor
	if maxAge := cfg.Retention(); maxAge > 0 {
		retentionMonitor = monitor.NewTaskMonitor("retention", 2*config.RetentionInterval)
		retention := &server.Retention{
			Store:    store,
			MaxAge:   maxAge,
			Interval: config.RetentionInterval,
			Monitor:  retentionMonitor,
			Logger:   logger.Named("retention"),
		}
		wg.Add(1)
		go retention.Run(ctx, &wg)
	} else {
		logger.Warn("RETENTION_DAYS is 0, records are kept forever")
	}

	wg.Add(1)
	go server.RunBadgerGC(ctx, store, logger.Named("gc"), &wg)

	router := mux.NewRouter()
	server.SetupRoutes(router, server.Routes{
		Ingest:         ingestHandler,
		Query:          queryHandler,
		StorageMonitor: storageMonitor,
		Retention:      retentionMonitor,
		Backend:        cfg.Backend,
		AllowedOrigins: cfg.AllowedOrigins,
		Port:           cfg.Port,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	go func() {
		logger.Info("Server ready to accept requests",
			zap.String("addr", srv.Addr),
			zap.Strings("endpoints", []string{
				"POST /v1/ingest", "POST /v1/log",
				"GET /v1/errors", "GET /v1/logs",
				"GET /v1/summary/errors", "GET /v1/summary/users",
				"GET /v1/trend", "GET /v1/stats", "GET /v1/ws",
			}))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received")

	// Cancel before wg.Wait so hub.Run and the schedulers return
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown warning", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("All background tasks stopped cleanly")
	case <-time.After(taskStopTimeout):
		logger.Warn("Some background tasks did not stop in time")
	}

	logger.Info("Server exited")
}
