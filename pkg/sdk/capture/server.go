package capture

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// ServerHooks is the server-side counterpart of the browser hooks. Go has
// no process-wide uncaught handler, so panics are captured where the host
// defers sdk.Client.Recover, which hands them to CapturePanic, and goroutine
// errors where the host starts work with Go.
type ServerHooks struct {
	sink      Sink
	logger    *zap.Logger
	installed atomic.Bool
}

// NewServerHooks returns server hooks reporting to sink.
func NewServerHooks(sink Sink, logger *zap.Logger) *ServerHooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServerHooks{sink: sink, logger: logger}
}

func (h *ServerHooks) Name() string { return "server" }

// Install enables capture in CapturePanic and Go.
func (h *ServerHooks) Install() error {
	h.installed.Store(true)
	return nil
}

// Uninstall disables capture.
func (h *ServerHooks) Uninstall() {
	h.installed.Store(false)
}

// Go runs fn on a new goroutine. A returned error is reported as an
// unhandled error and a panic as a critical uncaught one; neither reaches
// the rest of the process.
func (h *ServerHooks) Go(fn func() error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.CapturePanic(r, debug.Stack())
			}
		}()

		err := fn()
		if err == nil || !h.installed.Load() {
			return
		}
		h.sink.CaptureError(context.Background(), err, record.ErrorRecord{
			ErrorType:  record.ErrorTypeServer,
			Severity:   record.SeverityHigh,
			ErrorName:  Name(err),
			Message:    err.Error(),
			StackTrace: Stack(err),
			Tags:       []string{"unhandled-error"},
		})
	}()
}

// CapturePanic reports a recovered panic value. It is for callers that run
// their own deferred recover, since recover only works in the deferred
// function itself.
func (h *ServerHooks) CapturePanic(r any, stack []byte) {
	if !h.installed.Load() {
		return
	}

	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", r)
	}
	h.logger.Debug("captured panic", zap.Error(err))

	h.sink.CaptureError(context.Background(), err, record.ErrorRecord{
		ErrorType:  record.ErrorTypeServer,
		Severity:   record.SeverityCritical,
		ErrorName:  Name(err),
		Message:    err.Error(),
		StackTrace: string(stack),
		Tags:       []string{"uncaught-exception"},
	})
}
