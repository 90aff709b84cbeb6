package sdk

import (
	"context"
	"errors"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/config"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/logging"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/capture"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/dispatch"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/enrich"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/session"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/transport"
)

// Runtime selects the enricher and auto-capture hooks a client uses.
type Runtime int

const (
	RuntimeServer Runtime = iota
	RuntimeBrowser
)

// Result is the outcome of one report. The public methods never return an
// error; a failure is a Result with Success false and a Message.
type Result = transport.Result

// Config holds configuration for the client. It is copied by New and
// never changed afterwards.
type Config struct {
	APIURL      string `json:"api_url"`
	ClientID    string `json:"client_id"`
	AccessToken string `json:"access_token"`
	Environment string `json:"environment"`
	Source      string `json:"source"`

	Debug       bool         `json:"debug"`
	AutoCapture bool         `json:"auto_capture"`
	AutoLog     bool         `json:"auto_log"`
	LogLevel    record.Level `json:"log_level"`

	// MaxRetries defaults to 3. A negative value disables retries.
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
	Timeout    time.Duration `json:"timeout"`

	Runtime        Runtime `json:"runtime"`
	ServerName     string  `json:"server_name"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`

	// Browser runtime collaborators.
	Browser enrich.BrowserEnv   `json:"-"`
	Events  capture.EventTarget `json:"-"`

	// Console is the console AutoLog wraps. Defaults to stdout.
	Console capture.Console `json:"-"`
	// Logger receives the client's own diagnostics. It is never
	// intercepted. Defaults to a no-op logger, or a development logger
	// when Debug is set.
	Logger     *zap.Logger  `json:"-"`
	HTTPClient *http.Client `json:"-"`

	// MaxInFlight bounds concurrent auto-captured log sends.
	MaxInFlight int `json:"max_in_flight"`
}

// ErrorData is the caller-supplied part of an error report. Its fields take
// precedence over enriched values. Custom, when set, is serialized once into
// custom_data and replaces CustomData.
type ErrorData struct {
	record.ErrorRecord
	Custom any
}

// LogData is the caller-supplied part of a log report. Context is
// serialized once.
type LogData struct {
	Level   record.Level
	Context any
	Source  string
	Tags    []string
	UserID  string
}

// Client reports errors and logs. A client built without a client id is
// disabled for its whole lifetime: every report returns a failure Result
// and nothing is sent.
type Client struct {
	cfg      Config
	disabled bool
	minLevel record.Level

	transport transport.Transport
	enricher  enrich.Enricher
	session   *session.Tracker
	dispatch  *dispatch.Dispatcher
	logger    *zap.Logger

	console capture.Console
	server  *capture.ServerHooks
	hooks   []capture.Hook
}

// New creates a client. It never fails; invalid configuration leaves the
// client disabled.
func New(cfg Config) *Client {
	if cfg.Environment == "" {
		cfg.Environment = config.DefaultEnvironment
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = config.DefaultLogLevel
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = config.DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = config.DefaultRetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultSendTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = config.DefaultMaxInFlight
	}
	if cfg.APIURL == "" {
		cfg.APIURL = config.DefaultAPIURL
	}
	if cfg.Console == nil {
		cfg.Console = capture.NewWriterConsole(os.Stdout)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.SDK(cfg.Debug)
	}

	c := &Client{
		cfg:      cfg,
		session:  session.New(),
		dispatch: dispatch.New(cfg.MaxInFlight),
		logger:   cfg.Logger,
		console:  cfg.Console,
	}

	minLevel, err := record.ParseLevel(string(cfg.LogLevel))
	if err != nil {
		c.logger.Debug("unknown log level, using info", zap.String("log_level", string(cfg.LogLevel)))
		minLevel = record.LevelInfo
	}
	c.minLevel = minLevel

	if cfg.Runtime == RuntimeBrowser {
		c.enricher = enrich.NewBrowser(cfg.Browser, cfg.Environment, cfg.Source)
	} else {
		c.enricher = enrich.NewServer(enrich.ServerOptions{
			ServerName:     cfg.ServerName,
			ServiceName:    cfg.ServiceName,
			ServiceVersion: cfg.ServiceVersion,
			Environment:    cfg.Environment,
			Source:         cfg.Source,
		})
	}
	c.server = capture.NewServerHooks(sink{c}, c.logger)

	if cfg.ClientID == "" {
		c.disabled = true
		c.logger.Debug("no client id configured, SDK disabled")
		return c
	}

	t, err := transport.NewHTTP(transport.Config{
		APIURL:      cfg.APIURL,
		ClientID:    cfg.ClientID,
		AccessToken: cfg.AccessToken,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		Timeout:     cfg.Timeout,
		HTTPClient:  cfg.HTTPClient,
		Logger:      c.logger,
	})
	if err != nil {
		c.disabled = true
		c.logger.Debug("SDK disabled", zap.Error(err))
		return c
	}
	c.transport = t

	if cfg.AutoLog {
		c.console = capture.Intercept(cfg.Console, sink{c}, c.minLevel)
	}
	if cfg.AutoCapture {
		c.installHooks()
	}
	return c
}

func (c *Client) installHooks() {
	var hook capture.Hook = c.server
	if c.cfg.Runtime == RuntimeBrowser {
		hook = capture.NewBrowserHooks(c.cfg.Events, sink{c}, c.logger)
	}
	if err := hook.Install(); err != nil {
		c.logger.Debug("auto-capture hook not fully installed",
			zap.String("hook", hook.Name()), zap.Error(err))
	}
	c.hooks = append(c.hooks, hook)
}

// Disabled reports whether the client is permanently disabled.
func (c *Client) Disabled() bool {
	return c.disabled
}

// SessionID returns the id attached to every record of this client.
func (c *Client) SessionID() string {
	return c.session.SessionID()
}

// SetUser sets the user id attached to later records.
func (c *Client) SetUser(id string) {
	c.session.SetUser(id)
}

// AddTags adds global tags attached to later records.
func (c *Client) AddTags(tags ...string) {
	c.session.AddTags(tags...)
}

// Console returns the console to log through. With AutoLog it forwards
// calls at or above LogLevel as log records.
func (c *Client) Console() capture.Console {
	return c.console
}

// WrapCore wraps a host zap core so that entries at or above LogLevel are
// also reported. Without AutoLog, or on a disabled client, core is returned
// unchanged. Use it as zap.WrapCore(client.WrapCore).
func (c *Client) WrapCore(core zapcore.Core) zapcore.Core {
	if c.disabled || !c.cfg.AutoLog {
		return core
	}
	return capture.WrapCore(core, sink{c}, c.minLevel)
}

// Recover reports a panic as a critical uncaught error and re-panics. It is
// the only deferred recover the SDK provides, and it must be deferred
// directly:
//
//	defer client.Recover()
func (c *Client) Recover() {
	r := recover()
	if r == nil {
		return
	}
	c.server.CapturePanic(r, debug.Stack())
	panic(r)
}

// Go runs fn on a new goroutine and reports its error or panic.
func (c *Client) Go(fn func() error) {
	c.server.Go(fn)
}

// Flush waits for pending asynchronous sends without closing the client.
func (c *Client) Flush(ctx context.Context) error {
	return c.dispatch.Wait(ctx)
}

// Close removes installed hooks and waits for pending auto-captured sends.
func (c *Client) Close(ctx context.Context) error {
	for _, h := range c.hooks {
		h.Uninstall()
	}
	c.hooks = nil
	return c.dispatch.Close(ctx)
}

// ReportError enriches data and sends it to the ingest endpoint.
func (c *Client) ReportError(ctx context.Context, data ErrorData, sc *enrich.ServerContext) Result {
	if c.disabled {
		return transport.DisabledResult
	}

	custom := data.CustomData
	if data.Custom != nil {
		s, err := record.Serialize(data.Custom)
		if err != nil {
			return c.fail("custom_data", err)
		}
		custom = s
	}

	base := c.enricher.Enrich(sc)
	if base.UserID == "" {
		base.UserID = c.session.UserID()
	}
	base.SessionID = c.session.SessionID()
	base.Tags = c.session.Tags()

	rec := record.MergeError(base, data.ErrorRecord)
	rec.ClientID = c.cfg.ClientID
	rec.CustomData = custom
	rec.Truncate()
	if err := rec.Validate(); err != nil {
		return c.fail("error record", err)
	}

	return c.send(ctx, transport.EndpointIngest, rec)
}

// CaptureException reports err. The error's name, message and stack are
// used unless data sets them; severity defaults to high.
func (c *Client) CaptureException(ctx context.Context, err error, data ErrorData, sc *enrich.ServerContext) Result {
	if c.disabled {
		return transport.DisabledResult
	}
	if err == nil {
		err = errors.New("unknown error")
	}
	if data.ErrorName == "" {
		data.ErrorName = capture.Name(err)
	}
	if data.Message == "" {
		data.Message = err.Error()
	}
	if data.StackTrace == "" {
		data.StackTrace = capture.Stack(err)
	}
	if data.Severity == "" {
		data.Severity = record.SeverityHigh
	}
	return c.ReportError(ctx, data, sc)
}

// CaptureExceptionAsync is CaptureException sent through the client's
// dispatcher. Name, message and stack are taken from err before it returns;
// the send outlives ctx's cancellation but keeps its values. It reports
// false when the client is disabled or the report was dropped.
func (c *Client) CaptureExceptionAsync(ctx context.Context, err error, data ErrorData, sc *enrich.ServerContext) bool {
	if c.disabled {
		return false
	}
	if err == nil {
		err = errors.New("unknown error")
	}
	if data.ErrorName == "" {
		data.ErrorName = capture.Name(err)
	}
	if data.Message == "" {
		data.Message = err.Error()
	}
	if data.StackTrace == "" {
		data.StackTrace = capture.Stack(err)
	}
	ctx = context.WithoutCancel(ctx)
	if !c.dispatch.Go(func() { c.CaptureException(ctx, err, data, sc) }) {
		c.logger.Debug("dropped error report", zap.Uint64("dropped", c.dispatch.Dropped()))
		return false
	}
	return true
}

// CaptureHTTPError reports err raised while serving req. req and res are
// read defensively; see RequestContext and StatusOf for the accepted
// shapes. Severity is high for a 5xx status and medium otherwise unless data
// sets it.
func (c *Client) CaptureHTTPError(ctx context.Context, err error, req, res any, data ErrorData) Result {
	if c.disabled {
		return transport.DisabledResult
	}
	sc := RequestContext(req)
	sc.StatusCode = StatusOf(res)
	if data.Severity == "" {
		data.Severity = SeverityForStatus(sc.StatusCode)
	}
	return c.CaptureException(ctx, err, data, sc)
}

// SeverityForStatus maps an HTTP status to a severity: high for 5xx,
// medium for everything else.
func SeverityForStatus(code int) record.Severity {
	if code >= http.StatusInternalServerError {
		return record.SeverityHigh
	}
	return record.SeverityMedium
}

// ReportLog sends one log line to the log endpoint. Level defaults to log.
func (c *Client) ReportLog(ctx context.Context, message string, data LogData) Result {
	if c.disabled {
		return transport.DisabledResult
	}

	logContext, err := record.Serialize(data.Context)
	if err != nil {
		return c.fail("context", err)
	}

	rec := record.LogRecord{
		ClientID:    c.cfg.ClientID,
		Level:       data.Level,
		Message:     message,
		Context:     logContext,
		Source:      data.Source,
		Environment: c.cfg.Environment,
		UserID:      data.UserID,
		SessionID:   c.session.SessionID(),
		Tags:        record.MergeTags(c.session.Tags(), data.Tags),
	}
	if rec.Level == "" {
		rec.Level = record.LevelLog
	}
	if rec.Source == "" {
		rec.Source = c.cfg.Source
	}
	if rec.UserID == "" {
		rec.UserID = c.session.UserID()
	}
	rec.Truncate()
	if err := rec.Validate(); err != nil {
		return c.fail("log record", err)
	}

	return c.send(ctx, transport.EndpointLog, rec)
}

func (c *Client) send(ctx context.Context, endpoint transport.Endpoint, payload any) Result {
	res, err := c.transport.Send(ctx, endpoint, payload)
	if err != nil {
		c.logger.Debug("delivery failed", zap.String("endpoint", string(endpoint)), zap.Error(err))
		return Result{Success: false, Message: err.Error()}
	}
	return res
}

func (c *Client) fail(what string, err error) Result {
	c.logger.Debug("invalid "+what, zap.Error(err))
	return Result{Success: false, Message: err.Error()}
}

// sink routes auto-captured events back through the public API. Errors are
// sent synchronously so a panic is delivered before the process dies; logs
// go through the dispatcher so a console call never waits on the network.
type sink struct {
	c *Client
}

func (s sink) CaptureError(ctx context.Context, err error, rec record.ErrorRecord) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.c.ReportError(ctx, ErrorData{ErrorRecord: rec}, nil)
}

func (s sink) CaptureLog(_ context.Context, level record.Level, message string, logContext any) {
	if s.c.disabled {
		return
	}
	if !s.c.dispatch.Go(func() {
		s.c.ReportLog(context.Background(), message, LogData{Level: level, Context: logContext})
	}) {
		s.c.logger.Debug("dropped auto-captured log", zap.Uint64("dropped", s.c.dispatch.Dropped()))
	}
}
