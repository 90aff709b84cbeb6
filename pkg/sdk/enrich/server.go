package enrich

import (
	"math"
	"net/url"
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// ServerOptions describes the service a server enricher runs in.
type ServerOptions struct {
	ServerName     string
	ServiceName    string
	ServiceVersion string
	Environment    string
	Source         string
}

// Process is the static process metadata read once at construction.
type Process struct {
	PID       int
	Hostname  string
	GoVersion string
}

// Server enriches records with process and request metadata.
type Server struct {
	opts    ServerOptions
	process Process

	procOnce sync.Once
	proc     *process.Process
}

// NewServer returns a server enricher.
func NewServer(opts ServerOptions) *Server {
	host, _ := os.Hostname()
	if opts.ServerName == "" {
		opts.ServerName = host
	}
	return &Server{
		opts: opts,
		process: Process{
			PID:       os.Getpid(),
			Hostname:  host,
			GoVersion: runtime.Version(),
		},
	}
}

// Process returns the process metadata.
func (s *Server) Process() Process {
	return s.process
}

// Enrich implements Enricher.
func (s *Server) Enrich(sc *ServerContext) record.ErrorRecord {
	rec := record.ErrorRecord{
		ErrorType:       record.ErrorTypeServer,
		Environment:     s.opts.Environment,
		Source:          s.opts.Source,
		ServerName:      s.opts.ServerName,
		ServiceName:     s.opts.ServiceName,
		ServiceVersion:  s.opts.ServiceVersion,
		MemoryUsageMB:   record.Float64(HeapMB()),
		CPUUsagePercent: getPtr(s.cpuPercent),
	}
	if sc == nil {
		return rec
	}

	rec.HTTPMethod = sc.Method
	rec.Endpoint = endpointOf(sc.URL)
	rec.RequestID = sc.RequestID
	rec.UserID = sc.UserID
	rec.ResponseTimeMs = sc.ResponseTimeMs
	if sc.StatusCode > 0 {
		rec.HTTPStatusCode = record.Int32(int32(sc.StatusCode))
	}
	if sc.UserAgent != "" {
		agent := ParseUserAgent(sc.UserAgent)
		rec.UserAgent = sc.UserAgent
		rec.BrowserName = agent.BrowserName
		rec.BrowserVersion = agent.BrowserVersion
		rec.OSName = agent.OSName
		rec.OSVersion = agent.OSVersion
		rec.DeviceType = agent.DeviceType
	}
	return rec
}

func (s *Server) cpuPercent() (float64, error) {
	s.procOnce.Do(func() {
		p, err := process.NewProcess(int32(s.process.PID))
		if err == nil {
			s.proc = p
		}
	})
	if s.proc == nil {
		return 0, ErrUnavailable
	}
	pct, err := s.proc.CPUPercent()
	if err != nil {
		return 0, err
	}
	return round2(pct), nil
}

// HeapMB returns the current heap allocation in MB rounded to 2 decimals.
func HeapMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return round2(float64(m.HeapAlloc) / 1024 / 1024)
}

// endpointOf strips scheme, host and query from raw, keeping the path.
func endpointOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	return u.Path
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
