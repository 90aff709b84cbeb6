package monitor

import (
	"io/fs"
	"path/filepath"
	"sync"
	"time"
)

const usageCacheDuration = 10 * time.Second

// StorageUsage is a point-in-time view of disk usage against the limit.
type StorageUsage struct {
	UsedBytes   int64   `json:"used_bytes"`
	MaxBytes    int64   `json:"max_bytes"`
	PercentUsed float64 `json:"percent_used"`
}

// StorageMonitor measures the data directory of an embedded backend. It
// satisfies ingest.StorageChecker.
type StorageMonitor struct {
	dataDir       string
	maxBytes      int64
	cacheDuration time.Duration

	mu          sync.Mutex
	cachedUsage int64
	lastCheck   time.Time
}

// NewStorageMonitor creates a new storage monitor. maxBytes <= 0 disables
// the limit.
func NewStorageMonitor(dataDir string, maxBytes int64) *StorageMonitor {
	return &StorageMonitor{
		dataDir:       dataDir,
		maxBytes:      maxBytes,
		cacheDuration: usageCacheDuration,
	}
}

// GetUsage returns current storage usage in bytes. Directory walks are
// cached for 10 seconds so the ingest path stays cheap.
func (sm *StorageMonitor) GetUsage() (int64, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.lastCheck.IsZero() && time.Since(sm.lastCheck) < sm.cacheDuration {
		return sm.cachedUsage, nil
	}

	usage, err := dirSize(sm.dataDir)
	if err != nil {
		return 0, err
	}
	sm.cachedUsage = usage
	sm.lastCheck = time.Now()
	return usage, nil
}

// GetLimit returns the configured storage limit in bytes.
func (sm *StorageMonitor) GetLimit() int64 {
	return sm.maxBytes
}

// Usage returns used and maximum bytes for the storage endpoint.
func (sm *StorageMonitor) Usage() (StorageUsage, error) {
	used, err := sm.GetUsage()
	if err != nil {
		return StorageUsage{}, err
	}
	u := StorageUsage{UsedBytes: used, MaxBytes: sm.maxBytes}
	if sm.maxBytes > 0 {
		u.PercentUsed = float64(used) / float64(sm.maxBytes) * 100
	}
	return u, nil
}

// dirSize sums the allocated size of every file under path.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// Removed mid-walk (badger compaction)
			return nil
		}
		n, err := diskUsage(p, info)
		if err != nil {
			n = info.Size()
		}
		size += n
		return nil
	})
	return size, err
}
