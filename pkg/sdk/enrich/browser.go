package enrich

import (
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// Viewport is the inner window size in CSS pixels.
type Viewport struct {
	Width  int32
	Height int32
}

// Connection mirrors the Network Information API.
type Connection struct {
	Type          string
	EffectiveType string
	Downlink      float64
	RTT           int32
}

// BrowserEnv exposes the browser globals the enricher reads. Every accessor
// is optional: return ErrUnavailable (or any error) when the runtime does not
// provide the value.
type BrowserEnv interface {
	UserAgent() (string, error)
	Viewport() (Viewport, error)
	PageURL() (string, error)
	PageTitle() (string, error)
	Referrer() (string, error)
	Connection() (Connection, error)
	DeviceMemory() (float64, error)
	HardwareConcurrency() (int32, error)
}

// Browser enriches records with browser metadata.
type Browser struct {
	env         BrowserEnv
	environment string
	source      string
}

// NewBrowser returns a browser enricher reading from env. A nil env is
// allowed and yields records with no browser fields.
func NewBrowser(env BrowserEnv, environment, source string) *Browser {
	return &Browser{env: env, environment: environment, source: source}
}

// Enrich implements Enricher. sc is ignored in the browser runtime.
func (b *Browser) Enrich(_ *ServerContext) record.ErrorRecord {
	rec := record.ErrorRecord{
		ErrorType:   record.ErrorTypeClient,
		Environment: b.environment,
		Source:      b.source,
	}
	if b.env == nil {
		return rec
	}
	env := b.env

	if ua, ok := get(env.UserAgent); ok && ua != "" {
		agent := ParseUserAgent(ua)
		rec.UserAgent = ua
		rec.BrowserName = agent.BrowserName
		rec.BrowserVersion = agent.BrowserVersion
		rec.OSName = agent.OSName
		rec.OSVersion = agent.OSVersion
		rec.DeviceType = agent.DeviceType
	}

	if vp, ok := get(env.Viewport); ok {
		rec.ViewportWidth = record.Int32(vp.Width)
		rec.ViewportHeight = record.Int32(vp.Height)
	}

	rec.URL, _ = get(env.PageURL)
	rec.PageTitle, _ = get(env.PageTitle)
	rec.Referrer, _ = get(env.Referrer)

	if conn, ok := get(env.Connection); ok {
		rec.ConnectionType = conn.Type
		rec.ConnectionEffectiveType = conn.EffectiveType
		if conn.Downlink > 0 {
			rec.ConnectionDownlink = record.Float64(conn.Downlink)
		}
		if conn.RTT > 0 {
			rec.ConnectionRTT = record.Int32(conn.RTT)
		}
	}
	rec.DeviceMemory = getPtr(env.DeviceMemory)
	rec.DeviceCPUCores = getPtr(env.HardwareConcurrency)

	return rec
}

// StaticBrowser is a BrowserEnv backed by fixed values. Nil fields are
// reported as unavailable. Hosts that render on the server, or bridge the
// real globals through syscall/js, fill it once per page.
type StaticBrowser struct {
	UA     string
	View   *Viewport
	URL    *string
	Title  *string
	Ref    *string
	Conn   *Connection
	Memory *float64
	Cores  *int32
}

func (s *StaticBrowser) UserAgent() (string, error) {
	if s.UA == "" {
		return "", ErrUnavailable
	}
	return s.UA, nil
}

func (s *StaticBrowser) Viewport() (Viewport, error) {
	if s.View == nil {
		return Viewport{}, ErrUnavailable
	}
	return *s.View, nil
}

func (s *StaticBrowser) PageURL() (string, error)   { return deref(s.URL) }
func (s *StaticBrowser) PageTitle() (string, error) { return deref(s.Title) }
func (s *StaticBrowser) Referrer() (string, error)  { return deref(s.Ref) }

func (s *StaticBrowser) Connection() (Connection, error) {
	if s.Conn == nil {
		return Connection{}, ErrUnavailable
	}
	return *s.Conn, nil
}

func (s *StaticBrowser) DeviceMemory() (float64, error) { return deref(s.Memory) }

func (s *StaticBrowser) HardwareConcurrency() (int32, error) { return deref(s.Cores) }

func deref[T any](p *T) (T, error) {
	if p == nil {
		var zero T
		return zero, ErrUnavailable
	}
	return *p, nil
}
