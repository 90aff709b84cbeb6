package capture

import (
	"go.uber.org/zap/zapcore"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// WrapCore returns a core that forwards entries at or above min to sink
// and then writes them to core. Use it with zap.WrapCore to capture a host
// application's zap logger.
func WrapCore(core zapcore.Core, sink Sink, min record.Level) zapcore.Core {
	return &interceptCore{
		Core: core,
		fwd:  Intercept(nopConsole{}, sink, min),
	}
}

type interceptCore struct {
	zapcore.Core
	fwd    *Interceptor
	fields []zapcore.Field
}

func (c *interceptCore) Enabled(lvl zapcore.Level) bool {
	return c.Core.Enabled(lvl) || levelOf(lvl).AtLeast(c.fwd.min)
}

func (c *interceptCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &interceptCore{Core: c.Core.With(fields), fwd: c.fwd, fields: merged}
}

func (c *interceptCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *interceptCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	level := levelOf(ent.Level)
	if level.AtLeast(c.fwd.min) {
		c.fwd.forward(level, ent.Message, c.contextOf(fields))
	}
	if c.Core.Enabled(ent.Level) {
		return c.Core.Write(ent, fields)
	}
	return nil
}

// contextOf encodes the logger and entry fields into a map, or nil.
func (c *interceptCore) contextOf(fields []zapcore.Field) any {
	if len(c.fields) == 0 && len(fields) == 0 {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	return enc.Fields
}

func levelOf(lvl zapcore.Level) record.Level {
	switch {
	case lvl <= zapcore.DebugLevel:
		return record.LevelDebug
	case lvl == zapcore.InfoLevel:
		return record.LevelInfo
	case lvl == zapcore.WarnLevel:
		return record.LevelWarn
	default:
		return record.LevelError
	}
}

type nopConsole struct{}

func (nopConsole) Trace(...any) {}
func (nopConsole) Debug(...any) {}
func (nopConsole) Info(...any)  {}
func (nopConsole) Log(...any)   {}
func (nopConsole) Warn(...any)  {}
func (nopConsole) Error(...any) {}
