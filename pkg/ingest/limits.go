package ingest

import (
	"errors"
	"fmt"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/config"
)

var (
	// ErrUnauthorized is returned when an ingest token is configured and the
	// request does not carry it
	ErrUnauthorized = errors.New("invalid or missing access token")

	// ErrBodyTooLarge is returned when the request body exceeds the cap
	ErrBodyTooLarge = fmt.Errorf("request body too large (max %d bytes)", config.MaxRequestBodyBytes)

	// ErrInvalidJSON is returned when the body is not a JSON object
	ErrInvalidJSON = errors.New("invalid JSON body")

	// ErrStorageFull is returned when the data directory is over its limit
	ErrStorageFull = errors.New("storage limit exceeded")

	// ErrMissingClientID is returned when a subscription names no tenant
	ErrMissingClientID = errors.New("client_id is required")
)

// StorageChecker reports disk usage against a limit. monitor.StorageMonitor
// implements it.
type StorageChecker interface {
	GetUsage() (int64, error)
	GetLimit() int64
}

// checkStorage fails once usage reaches the limit. A checker that can't
// measure usage doesn't block ingestion.
func checkStorage(c StorageChecker) error {
	if c == nil || c.GetLimit() <= 0 {
		return nil
	}
	used, err := c.GetUsage()
	if err != nil {
		return nil
	}
	if used >= c.GetLimit() {
		return fmt.Errorf("%w: %d of %d bytes used", ErrStorageFull, used, c.GetLimit())
	}
	return nil
}
