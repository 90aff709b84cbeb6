package config

import "time"

// Server defaults
const (
	DefaultPort          = "8080"
	DefaultMaxMemoryMB   = 48
	DefaultDataDir       = "./data/better-analytics"
	DefaultRetentionDays = 90
	DefaultMaxStorageGB  = 1
	DefaultBackend       = "badger"
)

// SDK defaults
const (
	DefaultAPIURL       = "http://localhost:8080/v1"
	DefaultEnvironment  = "production"
	DefaultLogLevel     = "info"
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 1 * time.Second
	DefaultSendTimeout  = 10 * time.Second
	DefaultMaxInFlight  = 64
	DefaultCloseTimeout = 5 * time.Second
)

// Field caps shared by the SDK (truncation) and the ingest endpoint (rejection)
const (
	MaxMessageLength    = 2000
	MaxStackTraceLength = 5000
	MaxCustomDataLength = 2000
	MaxContextLength    = 2000
	MaxTagsPerRecord    = 50
	MaxTagLength        = 100
	MaxFieldLength      = 1024
	MaxRequestBodyBytes = 1 << 20
)

// Ingest timeouts
const (
	IngestTimeout    = 5 * time.Second
	GeoLookupTimeout = 3 * time.Second
)

// Query timeouts and defaults
const (
	QueryTimeout       = 30 * time.Second
	QueryDefaultWindow = 24 * time.Hour
	QueryMaxWindow     = 90 * 24 * time.Hour
	QueryDefaultLimit  = 100
	QueryMaxLimit      = 1000
	QueryDefaultStep   = 1 * time.Hour
	QueryMinStep       = 1 * time.Minute
)

// Geolocation cache
const (
	GeoCacheTTL         = 24 * time.Hour
	GeoNegativeCacheTTL = 10 * time.Minute
	GeoCacheMaxEntries  = 100000
)

// Background tasks
const (
	RetentionInterval = 6 * time.Hour
	BadgerGCInterval  = 10 * time.Minute
	BadgerGCDiscard   = 0.5
	RetentionRetries  = 3
	RetentionBaseWait = 30 * time.Second
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)
