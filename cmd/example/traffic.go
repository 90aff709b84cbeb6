package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// startTrafficSimulator requests each endpoint in turn so the dashboard has
// something to show.
func startTrafficSimulator(ctx context.Context, logger *zap.Logger) {
	time.Sleep(500 * time.Millisecond)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	endpoints := []string{"/api/products", "/api/orders", "/api/checkout", "/api/orders", "/api/crash"}
	logger.Info("Traffic simulator started")

	reqCount := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("Traffic simulator stopped")
			return
		case <-ticker.C:
			endpoint := endpoints[reqCount%len(endpoints)]
			reqCount++

			go func(ep string, n int) {
				resp, err := http.Get("http://localhost" + listenAddr + ep)
				if err != nil {
					logger.Debug("Simulated request failed", zap.String("endpoint", ep), zap.Error(err))
					return
				}
				defer resp.Body.Close()
				logger.Debug("Simulated request", zap.Int("n", n), zap.String("endpoint", ep), zap.Int("status", resp.StatusCode))
			}(endpoint, reqCount)
		}
	}
}
