package capture

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// Console is a leveled print API in the shape of the JavaScript console.
type Console interface {
	Trace(args ...any)
	Debug(args ...any)
	Info(args ...any)
	Log(args ...any)
	Warn(args ...any)
	Error(args ...any)
}

// WriterConsole prints each call as one line prefixed with its level.
type WriterConsole struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterConsole returns a console writing to w.
func NewWriterConsole(w io.Writer) *WriterConsole {
	return &WriterConsole{w: w}
}

func (c *WriterConsole) Trace(args ...any) { c.print(record.LevelTrace, args) }
func (c *WriterConsole) Debug(args ...any) { c.print(record.LevelDebug, args) }
func (c *WriterConsole) Info(args ...any)  { c.print(record.LevelInfo, args) }
func (c *WriterConsole) Log(args ...any)   { c.print(record.LevelLog, args) }
func (c *WriterConsole) Warn(args ...any)  { c.print(record.LevelWarn, args) }
func (c *WriterConsole) Error(args ...any) { c.print(record.LevelError, args) }

func (c *WriterConsole) print(level record.Level, args []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "[%s] %s\n", level, join(args))
}

// Interceptor wraps a console so that calls at or above a threshold are
// also forwarded to a Sink as log records. The original method always runs,
// after forwarding.
//
// The forwarding flag is held while the sink runs. A call arriving while it
// is held, such as one made by the sink itself, goes to the original console
// only, which rules out forwarding loops. The flag is shared by all
// goroutines, so a call racing another forward is skipped the same way;
// every skipped call is counted in Dropped.
type Interceptor struct {
	original Console
	sink     Sink
	min      record.Level

	forwarding atomic.Bool
	dropped    atomic.Uint64
}

// Intercept wraps original.
func Intercept(original Console, sink Sink, min record.Level) *Interceptor {
	return &Interceptor{original: original, sink: sink, min: min}
}

// Original returns the wrapped console.
func (i *Interceptor) Original() Console { return i.original }

// Dropped returns the number of calls at or above the threshold that were
// written to the original console but not forwarded.
func (i *Interceptor) Dropped() uint64 { return i.dropped.Load() }

func (i *Interceptor) Trace(args ...any) { i.emit(record.LevelTrace, args, i.original.Trace) }
func (i *Interceptor) Debug(args ...any) { i.emit(record.LevelDebug, args, i.original.Debug) }
func (i *Interceptor) Info(args ...any)  { i.emit(record.LevelInfo, args, i.original.Info) }
func (i *Interceptor) Log(args ...any)   { i.emit(record.LevelLog, args, i.original.Log) }
func (i *Interceptor) Warn(args ...any)  { i.emit(record.LevelWarn, args, i.original.Warn) }
func (i *Interceptor) Error(args ...any) { i.emit(record.LevelError, args, i.original.Error) }

func (i *Interceptor) emit(level record.Level, args []any, original func(...any)) {
	if level.AtLeast(i.min) {
		i.forward(level, join(args), nil)
	}
	original(args...)
}

func (i *Interceptor) forward(level record.Level, message string, logContext any) {
	if !i.forwarding.CompareAndSwap(false, true) {
		i.dropped.Add(1)
		return
	}
	defer i.forwarding.Store(false)
	i.sink.CaptureLog(context.Background(), level, message, logContext)
}

// join formats args the way console methods do: space separated.
func join(args []any) string {
	return strings.TrimSuffix(fmt.Sprintln(args...), "\n")
}
