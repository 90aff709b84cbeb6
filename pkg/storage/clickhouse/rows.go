package clickhouse

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/rollup"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// errorRow mirrors the errors table. Nullable columns are pointers.
type errorRow struct {
	ID          uuid.UUID `ch:"id"`
	ClientID    string    `ch:"client_id"`
	ErrorType   *string   `ch:"error_type"`
	Severity    *string   `ch:"severity"`
	ErrorCode   *string   `ch:"error_code"`
	ErrorName   *string   `ch:"error_name"`
	Message     string    `ch:"message"`
	StackTrace  string    `ch:"stack_trace"`
	Source      *string   `ch:"source"`
	Environment *string   `ch:"environment"`

	UserAgent      *string `ch:"user_agent"`
	BrowserName    *string `ch:"browser_name"`
	BrowserVersion *string `ch:"browser_version"`
	OSName         *string `ch:"os_name"`
	OSVersion      *string `ch:"os_version"`
	DeviceType     *string `ch:"device_type"`
	ViewportWidth  *int32  `ch:"viewport_width"`
	ViewportHeight *int32  `ch:"viewport_height"`

	ConnectionType          *string  `ch:"connection_type"`
	ConnectionEffectiveType *string  `ch:"connection_effective_type"`
	ConnectionDownlink      *float64 `ch:"connection_downlink"`
	ConnectionRTT           *int32   `ch:"connection_rtt"`
	DeviceMemory            *float64 `ch:"device_memory"`
	DeviceCPUCores          *int32   `ch:"device_cpu_cores"`

	URL       *string `ch:"url"`
	PageTitle *string `ch:"page_title"`
	Referrer  *string `ch:"referrer"`

	ServerName     *string `ch:"server_name"`
	ServiceName    *string `ch:"service_name"`
	ServiceVersion *string `ch:"service_version"`
	Endpoint       *string `ch:"endpoint"`
	HTTPMethod     *string `ch:"http_method"`
	HTTPStatusCode *int32  `ch:"http_status_code"`
	RequestID      *string `ch:"request_id"`

	UserID    *string `ch:"user_id"`
	SessionID *string `ch:"session_id"`

	IPAddress *string `ch:"ip_address"`
	Country   *string `ch:"country"`
	Region    *string `ch:"region"`
	City      *string `ch:"city"`
	Org       *string `ch:"org"`
	Postal    *string `ch:"postal"`
	Loc       *string `ch:"loc"`

	ResponseTimeMs  *float64 `ch:"response_time_ms"`
	MemoryUsageMB   *float64 `ch:"memory_usage_mb"`
	CPUUsagePercent *float64 `ch:"cpu_usage_percent"`

	FirstOccurrence time.Time  `ch:"first_occurrence"`
	LastOccurrence  time.Time  `ch:"last_occurrence"`
	OccurrenceCount uint32     `ch:"occurrence_count"`
	Status          *string    `ch:"status"`
	ResolvedAt      *time.Time `ch:"resolved_at"`
	ResolvedBy      *string    `ch:"resolved_by"`
	ResolutionNotes *string    `ch:"resolution_notes"`

	CustomData *string  `ch:"custom_data"`
	Tags       []string `ch:"tags"`

	CreatedAt time.Time `ch:"created_at"`
	UpdatedAt time.Time `ch:"updated_at"`
}

type logRow struct {
	ID          uuid.UUID `ch:"id"`
	ClientID    string    `ch:"client_id"`
	Level       string    `ch:"level"`
	Message     string    `ch:"message"`
	Context     *string   `ch:"context"`
	Source      *string   `ch:"source"`
	Environment *string   `ch:"environment"`
	UserID      *string   `ch:"user_id"`
	SessionID   *string   `ch:"session_id"`
	Tags        []string  `ch:"tags"`
	CreatedAt   time.Time `ch:"created_at"`
}

type summaryRow struct {
	ClientID         string    `ch:"client_id"`
	ErrorType        string    `ch:"error_type"`
	Severity         string    `ch:"severity"`
	ErrorCode        string    `ch:"error_code"`
	ErrorName        string    `ch:"error_name"`
	Source           string    `ch:"source"`
	Environment      string    `ch:"environment"`
	TotalOccurrences uint64    `ch:"total_occurrences"`
	FirstOccurrence  time.Time `ch:"first_occurrence"`
	LastOccurrence   time.Time `ch:"last_occurrence"`
	ResolvedCount    uint64    `ch:"resolved_count"`
	NewErrors        uint64    `ch:"new_errors"`
	Last24h          uint64    `ch:"last_24h"`
	Last7d           uint64    `ch:"last_7d"`
	Last30d          uint64    `ch:"last_30d"`
}

type userRow struct {
	ClientID   string    `ch:"client_id"`
	UserID     string    `ch:"user_id"`
	ErrorTypes []string  `ch:"types"`
	Severities []string  `ch:"sevs"`
	LastAt     time.Time `ch:"last_at"`
	Total      uint64    `ch:"n"`
}

type bucketRow struct {
	Bucket time.Time `ch:"bucket"`
	Group  string    `ch:"grp"`
	Count  uint64    `ch:"n"`
}

// null maps "" to NULL.
func null(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func parseID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("record id %q is not a uuid: %w", id, err)
	}
	return u, nil
}

func toErrorRow(r record.ErrorRecord) (errorRow, error) {
	id, err := parseID(r.ID)
	if err != nil {
		return errorRow{}, err
	}
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := r.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	first, last := r.FirstOccurrence, r.LastOccurrence
	if first.IsZero() {
		first = created
	}
	if last.IsZero() {
		last = created
	}
	count := r.OccurrenceCount
	if count == 0 {
		count = 1
	}

	return errorRow{
		ID:          id,
		ClientID:    r.ClientID,
		ErrorType:   null(string(r.ErrorType)),
		Severity:    null(string(r.Severity)),
		ErrorCode:   null(r.ErrorCode),
		ErrorName:   null(r.ErrorName),
		Message:     r.Message,
		StackTrace:  r.StackTrace,
		Source:      null(r.Source),
		Environment: null(r.Environment),

		UserAgent:      null(r.UserAgent),
		BrowserName:    null(r.BrowserName),
		BrowserVersion: null(r.BrowserVersion),
		OSName:         null(r.OSName),
		OSVersion:      null(r.OSVersion),
		DeviceType:     null(r.DeviceType),
		ViewportWidth:  r.ViewportWidth,
		ViewportHeight: r.ViewportHeight,

		ConnectionType:          null(r.ConnectionType),
		ConnectionEffectiveType: null(r.ConnectionEffectiveType),
		ConnectionDownlink:      r.ConnectionDownlink,
		ConnectionRTT:           r.ConnectionRTT,
		DeviceMemory:            r.DeviceMemory,
		DeviceCPUCores:          r.DeviceCPUCores,

		URL:       null(r.URL),
		PageTitle: null(r.PageTitle),
		Referrer:  null(r.Referrer),

		ServerName:     null(r.ServerName),
		ServiceName:    null(r.ServiceName),
		ServiceVersion: null(r.ServiceVersion),
		Endpoint:       null(r.Endpoint),
		HTTPMethod:     null(r.HTTPMethod),
		HTTPStatusCode: r.HTTPStatusCode,
		RequestID:      null(r.RequestID),

		UserID:    null(r.UserID),
		SessionID: null(r.SessionID),

		IPAddress: null(r.IPAddress),
		Country:   null(r.Country),
		Region:    null(r.Region),
		City:      null(r.City),
		Org:       null(r.Org),
		Postal:    null(r.Postal),
		Loc:       null(r.Loc),

		ResponseTimeMs:  r.ResponseTimeMs,
		MemoryUsageMB:   r.MemoryUsageMB,
		CPUUsagePercent: r.CPUUsagePercent,

		FirstOccurrence: first,
		LastOccurrence:  last,
		OccurrenceCount: count,
		Status:          null(string(r.Status)),
		ResolvedAt:      r.ResolvedAt,
		ResolvedBy:      null(r.ResolvedBy),
		ResolutionNotes: null(r.ResolutionNotes),

		CustomData: null(r.CustomData),
		Tags:       tags,

		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

func (row errorRow) record() record.ErrorRecord {
	return record.ErrorRecord{
		ID:          row.ID.String(),
		ClientID:    row.ClientID,
		ErrorType:   record.ErrorType(str(row.ErrorType)),
		Severity:    record.Severity(str(row.Severity)),
		ErrorCode:   str(row.ErrorCode),
		ErrorName:   str(row.ErrorName),
		Message:     row.Message,
		StackTrace:  row.StackTrace,
		Source:      str(row.Source),
		Environment: str(row.Environment),

		UserAgent:      str(row.UserAgent),
		BrowserName:    str(row.BrowserName),
		BrowserVersion: str(row.BrowserVersion),
		OSName:         str(row.OSName),
		OSVersion:      str(row.OSVersion),
		DeviceType:     str(row.DeviceType),
		ViewportWidth:  row.ViewportWidth,
		ViewportHeight: row.ViewportHeight,

		ConnectionType:          str(row.ConnectionType),
		ConnectionEffectiveType: str(row.ConnectionEffectiveType),
		ConnectionDownlink:      row.ConnectionDownlink,
		ConnectionRTT:           row.ConnectionRTT,
		DeviceMemory:            row.DeviceMemory,
		DeviceCPUCores:          row.DeviceCPUCores,

		URL:       str(row.URL),
		PageTitle: str(row.PageTitle),
		Referrer:  str(row.Referrer),

		ServerName:     str(row.ServerName),
		ServiceName:    str(row.ServiceName),
		ServiceVersion: str(row.ServiceVersion),
		Endpoint:       str(row.Endpoint),
		HTTPMethod:     str(row.HTTPMethod),
		HTTPStatusCode: row.HTTPStatusCode,
		RequestID:      str(row.RequestID),

		UserID:    str(row.UserID),
		SessionID: str(row.SessionID),

		IPAddress: str(row.IPAddress),
		Country:   str(row.Country),
		Region:    str(row.Region),
		City:      str(row.City),
		Org:       str(row.Org),
		Postal:    str(row.Postal),
		Loc:       str(row.Loc),

		ResponseTimeMs:  row.ResponseTimeMs,
		MemoryUsageMB:   row.MemoryUsageMB,
		CPUUsagePercent: row.CPUUsagePercent,

		FirstOccurrence: row.FirstOccurrence,
		LastOccurrence:  row.LastOccurrence,
		OccurrenceCount: row.OccurrenceCount,
		Status:          record.Status(str(row.Status)),
		ResolvedAt:      row.ResolvedAt,
		ResolvedBy:      str(row.ResolvedBy),
		ResolutionNotes: str(row.ResolutionNotes),

		CustomData: str(row.CustomData),
		Tags:       row.Tags,

		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toLogRow(r record.LogRecord) (logRow, error) {
	id, err := parseID(r.ID)
	if err != nil {
		return logRow{}, err
	}
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return logRow{
		ID:          id,
		ClientID:    r.ClientID,
		Level:       string(r.Level),
		Message:     r.Message,
		Context:     null(r.Context),
		Source:      null(r.Source),
		Environment: null(r.Environment),
		UserID:      null(r.UserID),
		SessionID:   null(r.SessionID),
		Tags:        tags,
		CreatedAt:   created,
	}, nil
}

func (row logRow) record() record.LogRecord {
	return record.LogRecord{
		ID:          row.ID.String(),
		ClientID:    row.ClientID,
		Level:       record.Level(row.Level),
		Message:     row.Message,
		Context:     str(row.Context),
		Source:      str(row.Source),
		Environment: str(row.Environment),
		UserID:      str(row.UserID),
		SessionID:   str(row.SessionID),
		Tags:        row.Tags,
		CreatedAt:   row.CreatedAt,
	}
}

func (row summaryRow) summary() rollup.ErrorSummary {
	return rollup.ErrorSummary{
		ErrorKey: rollup.ErrorKey{
			ClientID:    row.ClientID,
			ErrorType:   record.ErrorType(row.ErrorType),
			Severity:    record.Severity(row.Severity),
			ErrorCode:   row.ErrorCode,
			ErrorName:   row.ErrorName,
			Source:      row.Source,
			Environment: row.Environment,
		},
		TotalOccurrences: row.TotalOccurrences,
		FirstOccurrence:  row.FirstOccurrence,
		LastOccurrence:   row.LastOccurrence,
		ResolvedCount:    row.ResolvedCount,
		NewErrors:        row.NewErrors,
		Last24h:          row.Last24h,
		Last7d:           row.Last7d,
		Last30d:          row.Last30d,
	}
}

func (row userRow) summary() rollup.UserSummary {
	s := rollup.UserSummary{
		ClientID:    row.ClientID,
		UserID:      row.UserID,
		TotalErrors: row.Total,
		LastErrorAt: row.LastAt,
	}
	for _, t := range row.ErrorTypes {
		if t != "" {
			s.ErrorTypes = append(s.ErrorTypes, record.ErrorType(t))
		}
	}
	for _, sev := range row.Severities {
		if sev != "" {
			s.Severities = append(s.Severities, record.Severity(sev))
		}
	}
	sort.Slice(s.ErrorTypes, func(i, j int) bool { return s.ErrorTypes[i] < s.ErrorTypes[j] })
	sort.Slice(s.Severities, func(i, j int) bool { return s.Severities[i] < s.Severities[j] })
	return s
}
