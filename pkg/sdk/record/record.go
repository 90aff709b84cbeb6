// Package record defines the error and log records shipped by the SDK and
// persisted by the ingestion endpoint.
package record

import "time"

// ErrorRecord is one reported error occurrence. Every call produces a row;
// grouping happens at query time.
//
// Nullable strings use "" for null. Nullable numbers are pointers.
type ErrorRecord struct {
	ID       string `json:"id,omitempty"`
	ClientID string `json:"client_id"`

	ErrorType  ErrorType `json:"error_type,omitempty"`
	Severity   Severity  `json:"severity,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	ErrorName  string    `json:"error_name,omitempty"`
	Message    string    `json:"message"`
	StackTrace string    `json:"stack_trace,omitempty"`

	Source      string `json:"source,omitempty"`
	Environment string `json:"environment,omitempty"`

	// Browser runtime
	UserAgent      string `json:"user_agent,omitempty"`
	BrowserName    string `json:"browser_name,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OSName         string `json:"os_name,omitempty"`
	OSVersion      string `json:"os_version,omitempty"`
	DeviceType     string `json:"device_type,omitempty"`
	ViewportWidth  *int32 `json:"viewport_width,omitempty"`
	ViewportHeight *int32 `json:"viewport_height,omitempty"`

	// Network Information API, best-effort
	ConnectionType          string   `json:"connection_type,omitempty"`
	ConnectionEffectiveType string   `json:"connection_effective_type,omitempty"`
	ConnectionDownlink      *float64 `json:"connection_downlink,omitempty"`
	ConnectionRTT           *int32   `json:"connection_rtt,omitempty"`
	DeviceMemory            *float64 `json:"device_memory,omitempty"`
	DeviceCPUCores          *int32   `json:"device_cpu_cores,omitempty"`

	// Page
	URL       string `json:"url,omitempty"`
	PageTitle string `json:"page_title,omitempty"`
	Referrer  string `json:"referrer,omitempty"`

	// Server runtime
	ServerName     string `json:"server_name,omitempty"`
	ServiceName    string `json:"service_name,omitempty"`
	ServiceVersion string `json:"service_version,omitempty"`
	Endpoint       string `json:"endpoint,omitempty"`
	HTTPMethod     string `json:"http_method,omitempty"`
	HTTPStatusCode *int32 `json:"http_status_code,omitempty"`
	RequestID      string `json:"request_id,omitempty"`

	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// Geo, filled by the ingestion endpoint. IPAddress holds the anonymized
	// token once stored.
	IPAddress string `json:"ip_address,omitempty"`
	Country   string `json:"country,omitempty"`
	Region    string `json:"region,omitempty"`
	City      string `json:"city,omitempty"`
	Org       string `json:"org,omitempty"`
	Postal    string `json:"postal,omitempty"`
	Loc       string `json:"loc,omitempty"`

	ResponseTimeMs  *float64 `json:"response_time_ms,omitempty"`
	MemoryUsageMB   *float64 `json:"memory_usage_mb,omitempty"`
	CPUUsagePercent *float64 `json:"cpu_usage_percent,omitempty"`

	FirstOccurrence time.Time  `json:"first_occurrence,omitzero"`
	LastOccurrence  time.Time  `json:"last_occurrence,omitzero"`
	OccurrenceCount uint32     `json:"occurrence_count,omitempty"`
	Status          Status     `json:"status,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`

	// CustomData is already serialized. Use Serialize to produce it.
	CustomData string   `json:"custom_data,omitempty"`
	Tags       []string `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// LogRecord is one log line.
type LogRecord struct {
	ID          string    `json:"id,omitempty"`
	ClientID    string    `json:"client_id"`
	Level       Level     `json:"level"`
	Message     string    `json:"message"`
	Context     string    `json:"context,omitempty"`
	Source      string    `json:"source,omitempty"`
	Environment string    `json:"environment,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// Int32 returns a pointer to v.
func Int32(v int32) *int32 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
