// Command example is a small web shop instrumented with the SDK. It reports
// 5xx responses and panics through the middleware, forwards warn+ zap logs
// and sends a few manual reports.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/config"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/logging"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/httpx"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

const listenAddr = ":3000"

var startTime = time.Now()

func main() {
	base := logging.New("development", false)
	defer func() { _ = base.Sync() }()

	client := sdk.New(sdk.Config{
		APIURL:         envOr("BA_API_URL", config.DefaultAPIURL),
		ClientID:       envOr("BA_CLIENT_ID", "demo-client"),
		AccessToken:    os.Getenv("BA_ACCESS_TOKEN"),
		Environment:    "development",
		Source:         "example-shop",
		ServiceName:    "example-shop",
		ServiceVersion: "0.1.0",
		AutoCapture:    true,
		LogLevel:       record.LevelWarn,
		Debug:          os.Getenv("BA_DEBUG") != "",
	})
	if client.Disabled() {
		base.Warn("SDK disabled, check BA_CLIENT_ID and BA_API_URL")
	}

	// Warn and error logs are also sent as log records
	logger := zap.New(client.WrapCore(base.Core()))
	client.SetUser("demo-user")
	client.AddTags("demo")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mux := http.NewServeMux()
	setupHandlers(mux, client, logger)

	server := &http.Server{
		Addr:    listenAddr,
		Handler: httpx.Middleware(client)(mux),
	}

	go func() {
		logger.Info("Starting example shop", zap.String("addr", listenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	go startTrafficSimulator(ctx, logger)

	// Background jobs report their own failures and panics
	client.Go(func() error {
		return reconcileInventory(ctx)
	})

	if res := client.ReportLog(ctx, "example shop started", sdk.LogData{
		Level:   record.LevelInfo,
		Context: map[string]any{"addr": listenAddr, "pid": os.Getpid()},
	}); !res.Success {
		logger.Info("Startup log not delivered", zap.String("reason", res.Message))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down example shop")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown warning", zap.Error(err))
	}
	if err := client.Close(shutdownCtx); err != nil {
		logger.Warn("Pending reports dropped", zap.Error(err))
	}
}

// reconcileInventory fails after a while so the captured error shows up on
// the dashboard.
func reconcileInventory(ctx context.Context) error {
	select {
	case <-time.After(30 * time.Second):
		return errors.New("inventory reconciliation: warehouse feed timed out")
	case <-ctx.Done():
		return nil
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
