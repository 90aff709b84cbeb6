package main

import (
	"errors"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

var errPaymentDeclined = errors.New("payment declined by issuer")

// setupHandlers configures all HTTP handlers
func setupHandlers(mux *http.ServeMux, client *sdk.Client, logger *zap.Logger) {
	mux.HandleFunc("/api/products", handleProducts())
	mux.HandleFunc("/api/orders", handleOrders(logger))
	mux.HandleFunc("/api/checkout", handleCheckout(client))
	mux.HandleFunc("/api/crash", handleCrash())
	mux.HandleFunc("/health", handleHealth())
}

// handleProducts always succeeds
func handleProducts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(30+rand.Intn(30)) * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"products": [{"id": 1, "name": "Widget"}, {"id": 2, "name": "Gadget"}]}`))
	}
}

// handleOrders is slow now and then, which the zap hook reports as a warn log
func handleOrders(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latency := time.Duration(80+rand.Intn(400)) * time.Millisecond
		time.Sleep(latency)
		if latency > 400*time.Millisecond {
			logger.Warn("slow order lookup", zap.Duration("latency", latency), zap.String("path", r.URL.Path))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"orders": [{"id": 1, "total": 99.99}, {"id": 2, "total": 149.99}]}`))
	}
}

// handleCheckout declines some payments and reports them manually with
// business context. The middleware reports the 502 on its own as well.
func handleCheckout(client *sdk.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rand.Float32() < 0.2 {
			client.CaptureHTTPError(r.Context(), errPaymentDeclined, r, http.StatusBadGateway, sdk.ErrorData{
				ErrorRecord: record.ErrorRecord{
					ErrorType: record.ErrorTypeBusiness,
					ErrorCode: "PAYMENT_DECLINED",
					Tags:      []string{"checkout"},
				},
				Custom: map[string]any{"cart_items": 1 + rand.Intn(5)},
			})
			http.Error(w, "payment failed", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "paid"}`))
	}
}

// handleCrash panics; the middleware reports it as critical and answers 500
func handleCrash() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cart map[string]int
		cart["widget"]++
	}
}

// handleHealth handles /health endpoint
func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "healthy", "uptime": "` + time.Since(startTime).Round(time.Second).String() + `"}`))
	}
}
