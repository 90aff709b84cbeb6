// Package capture hooks runtime error and log channels and forwards what
// they see to a Sink as ordinary error and log records.
package capture

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// Sink receives captured events. CaptureError may block until delivery
// finishes; CaptureLog must return without waiting on the network.
type Sink interface {
	CaptureError(ctx context.Context, err error, rec record.ErrorRecord)
	CaptureLog(ctx context.Context, level record.Level, message string, logContext any)
}

// Hook is one installable auto-capture channel.
type Hook interface {
	Name() string
	// Install attaches the hook. On error the hook is left uninstalled and
	// the caller carries on without it.
	Install() error
	Uninstall()
}

// stackCarrier matches errors that format a stack trace with %+v, such as
// those created by github.com/pkg/errors.
type stackCarrier interface {
	error
	fmt.Formatter
}

// Stack returns the best stack trace available for err: the error's own
// trace when it carries one, else the current goroutine's stack.
func Stack(err error) string {
	if sc, ok := err.(stackCarrier); ok {
		if s := fmt.Sprintf("%+v", sc); s != sc.Error() {
			return s
		}
	}
	return string(debug.Stack())
}

// Name returns a short type name for err, preferring an explicit Name
// method.
func Name(err error) string {
	if err == nil {
		return ""
	}
	if n, ok := err.(interface{ Name() string }); ok {
		return n.Name()
	}
	name := fmt.Sprintf("%T", err)
	if len(name) > 0 && name[0] == '*' {
		name = name[1:]
	}
	return name
}
