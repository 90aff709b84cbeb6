package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// Browser event names.
const (
	EventError              = "error"
	EventUnhandledRejection = "unhandledrejection"
)

// ErrorEvent is the payload of a window "error" event.
type ErrorEvent struct {
	Message  string
	Filename string
	Lineno   int
	Colno    int
	Err      error
}

// RejectionEvent is the payload of a window "unhandledrejection" event.
type RejectionEvent struct {
	Reason any
}

// EventTarget is the subset of the window API the hooks attach to.
type EventTarget interface {
	AddEventListener(event string, handler func(event any)) (remove func(), err error)
}

// BrowserHooks forwards uncaught errors and unhandled rejections.
type BrowserHooks struct {
	target EventTarget
	sink   Sink
	logger *zap.Logger

	mu      sync.Mutex
	removes []func()
}

// NewBrowserHooks returns hooks attaching to target.
func NewBrowserHooks(target EventTarget, sink Sink, logger *zap.Logger) *BrowserHooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserHooks{target: target, sink: sink, logger: logger}
}

func (h *BrowserHooks) Name() string { return "browser" }

// Install attaches both listeners. A listener that fails to attach is
// skipped; the other is still installed.
func (h *BrowserHooks) Install() error {
	if h.target == nil {
		return errors.New("no event target")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for name, handler := range map[string]func(any){
		EventError:              h.onError,
		EventUnhandledRejection: h.onRejection,
	} {
		remove, err := h.target.AddEventListener(name, handler)
		if err != nil {
			h.logger.Debug("skipping browser hook", zap.String("event", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s listener: %w", name, err))
			continue
		}
		if remove != nil {
			h.removes = append(h.removes, remove)
		}
	}
	return errors.Join(errs...)
}

// Uninstall detaches the listeners.
func (h *BrowserHooks) Uninstall() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, remove := range h.removes {
		remove()
	}
	h.removes = nil
}

func (h *BrowserHooks) onError(event any) {
	var ev ErrorEvent
	switch e := event.(type) {
	case ErrorEvent:
		ev = e
	case *ErrorEvent:
		if e == nil {
			return
		}
		ev = *e
	default:
		return
	}

	rec := record.ErrorRecord{
		ErrorType: record.ErrorTypeClient,
		Severity:  record.SeverityHigh,
		Message:   ev.Message,
	}
	if ev.Err != nil {
		rec.ErrorName = Name(ev.Err)
		rec.StackTrace = Stack(ev.Err)
		if rec.Message == "" {
			rec.Message = ev.Err.Error()
		}
	}
	if rec.Message == "" {
		rec.Message = "Uncaught error"
	}
	if ev.Filename != "" {
		rec.CustomData, _ = record.Serialize(map[string]any{
			"filename": ev.Filename,
			"lineno":   ev.Lineno,
			"colno":    ev.Colno,
		})
	}

	h.sink.CaptureError(context.Background(), ev.Err, rec)
}

func (h *BrowserHooks) onRejection(event any) {
	var reason any
	switch e := event.(type) {
	case RejectionEvent:
		reason = e.Reason
	case *RejectionEvent:
		if e == nil {
			return
		}
		reason = e.Reason
	default:
		return
	}

	rec := record.ErrorRecord{
		ErrorType: record.ErrorTypeClient,
		Severity:  record.SeverityHigh,
		Tags:      []string{"unhandled-rejection"},
	}
	err, _ := reason.(error)
	if err != nil {
		rec.ErrorName = Name(err)
		rec.Message = err.Error()
		rec.StackTrace = Stack(err)
	} else {
		rec.ErrorName = "UnhandledRejection"
		rec.Message = fmt.Sprintf("Unhandled promise rejection: %v", reason)
	}

	h.sink.CaptureError(context.Background(), err, rec)
}
