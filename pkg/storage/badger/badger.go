package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/rollup"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/storage"
)

// Key kinds. Every key is
//
//	[kind][len(client_id) (2 bytes)][client_id][unix nanos (8 bytes)][xxhash(id) (8 bytes)]
//
// so a tenant's records of one kind are a contiguous, time-ordered range.
// The length prefix keeps one tenant's prefix from matching another's keys.
const (
	kindError byte = 'e'
	kindLog   byte = 'l'
)

const (
	suffixLen = 16
	headerLen = 3

	// MaxClientIDLen is the longest client id that fits the key layout.
	MaxClientIDLen = 1<<16 - 1
)

// ErrClientIDTooLong is returned when a client id cannot be encoded in a key.
var ErrClientIDTooLong = fmt.Errorf("client id longer than %d bytes", MaxClientIDLen)

// Storage implements storage.Storage using BadgerDB (LSM tree)
type Storage struct {
	db *badger.DB
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = use defaults based on environment)
	// Recommended: 64-128 MB for local dev, 256-512 MB for production
	MaxMemoryMB int64
}

// New creates a BadgerDB storage backend
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// BadgerDB defaults: 64 MB memtable, 5 x 64 MB = 320 MB total.
	// 16 MB memtable is the floor; below that flushes get excessive.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3 // ~33% for memtable
	}

	// Block and index caches are unbounded unless set
	blockCacheSize := memTableSize / 2
	indexCacheSize := memTableSize / 4

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024). // stack traces and custom data go to the vlog
		WithNumCompactors(1).
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Storage{db: db}, nil
}

// WriteErrors stores error records
func (s *Storage) WriteErrors(ctx context.Context, records []record.ErrorRecord) error {
	for _, r := range records {
		if len(r.ClientID) > MaxClientIDLen {
			return ErrClientIDTooLong
		}
	}
	return s.write(ctx, len(records), func(i int) ([]byte, any) {
		r := records[i]
		return makeKey(kindError, r.ClientID, r.CreatedAt, r.ID), r
	})
}

// WriteLogs stores log records
func (s *Storage) WriteLogs(ctx context.Context, records []record.LogRecord) error {
	for _, r := range records {
		if len(r.ClientID) > MaxClientIDLen {
			return ErrClientIDTooLong
		}
	}
	return s.write(ctx, len(records), func(i int) ([]byte, any) {
		r := records[i]
		return makeKey(kindLog, r.ClientID, r.CreatedAt, r.ID), r
	})
}

// write runs one update transaction. Enforces context timeout/cancellation
// so a stalled LSM cannot block the ingest handler indefinitely.
func (s *Storage) write(ctx context.Context, n int, item func(i int) ([]byte, any)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Update(func(txn *badger.Txn) error {
			for i := 0; i < n; i++ {
				// Check context periodically (every 100 records)
				if i%100 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				key, v := item(i)
				value, err := json.Marshal(v)
				if err != nil {
					return fmt.Errorf("failed to encode record: %w", err)
				}
				if err := txn.Set(key, value); err != nil {
					return fmt.Errorf("failed to write record: %w", err)
				}
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("write operation cancelled: %w", ctx.Err())
	}
}

// QueryErrors retrieves a tenant's error records, newest first
func (s *Storage) QueryErrors(ctx context.Context, q storage.ErrorQuery) ([]record.ErrorRecord, error) {
	if q.ClientID == "" {
		return nil, storage.ErrMissingClientID
	}
	var results []record.ErrorRecord
	err := scan(ctx, s.db, kindError, q.ClientID, q.Start, q.End, func(r record.ErrorRecord) bool {
		if storage.MatchError(r, q) {
			results = append(results, r)
		}
		return q.Limit <= 0 || len(results) < q.Limit
	})
	return results, err
}

// QueryLogs retrieves a tenant's log records, newest first
func (s *Storage) QueryLogs(ctx context.Context, q storage.LogQuery) ([]record.LogRecord, error) {
	if q.ClientID == "" {
		return nil, storage.ErrMissingClientID
	}
	var results []record.LogRecord
	err := scan(ctx, s.db, kindLog, q.ClientID, q.Start, q.End, func(r record.LogRecord) bool {
		if storage.MatchLog(r, q) {
			results = append(results, r)
		}
		return q.Limit <= 0 || len(results) < q.Limit
	})
	return results, err
}

// ErrorSummary computes per-group rollups over the tenant's stored errors
func (s *Storage) ErrorSummary(ctx context.Context, q storage.SummaryQuery) ([]rollup.ErrorSummary, error) {
	tenant, err := s.tenantErrors(ctx, q.ClientID, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	out := rollup.Errors(tenant, q.At())
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// UserSummary computes per-user rollups over the tenant's stored errors
func (s *Storage) UserSummary(ctx context.Context, q storage.SummaryQuery) ([]rollup.UserSummary, error) {
	tenant, err := s.tenantErrors(ctx, q.ClientID, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	out := rollup.Users(tenant)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// ErrorTrend buckets the tenant's errors in [Start, End)
func (s *Storage) ErrorTrend(ctx context.Context, q storage.TrendQuery) ([]rollup.Bucket, error) {
	tenant, err := s.tenantErrors(ctx, q.ClientID, q.Start, q.End)
	if err != nil {
		return nil, err
	}
	return rollup.Trend(tenant, q.Start, q.End, q.Step, q.GroupBy), nil
}

func (s *Storage) tenantErrors(ctx context.Context, clientID string, start, end time.Time) ([]record.ErrorRecord, error) {
	if clientID == "" {
		return nil, storage.ErrMissingClientID
	}
	var out []record.ErrorRecord
	err := scan(ctx, s.db, kindError, clientID, start, end, func(r record.ErrorRecord) bool {
		if r.ClientID == clientID {
			out = append(out, r)
		}
		return true
	})
	return out, err
}

// scan walks one tenant's records of a kind from newest to oldest, bounded
// by [start, end] when set. fn returns false to stop early.
func scan[T any](ctx context.Context, db *badger.DB, kind byte, clientID string, start, end time.Time, fn func(T) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- db.View(func(txn *badger.Txn) error {
			prefix := makePrefix(kind, clientID)

			opts := badger.DefaultIteratorOptions
			opts.PrefetchSize = 100
			opts.Reverse = true
			opts.Prefix = prefix

			it := txn.NewIterator(opts)
			defer it.Close()

			// Reverse iteration seeks to the largest key <= seek
			seek := make([]byte, len(prefix), len(prefix)+suffixLen)
			copy(seek, prefix)
			if end.IsZero() {
				seek = append(seek, 0xff)
			} else {
				seek = binary.BigEndian.AppendUint64(seek, uint64(end.UnixNano()))
				seek = binary.BigEndian.AppendUint64(seek, ^uint64(0))
			}

			var iterCount int
			for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
				iterCount++

				// Check for context cancellation every 1000 iterations
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				item := it.Item()
				if !start.IsZero() && keyTime(item.Key()).Before(start) {
					break
				}

				var v T
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &v)
				}); err != nil {
					return fmt.Errorf("failed to decode record: %w", err)
				}
				if !fn(v) {
					break
				}
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("query operation cancelled: %w", ctx.Err())
	}
}

// Delete removes records of every tenant created before the cutoff
func (s *Storage) Delete(ctx context.Context, before time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		// Collect keys in a read txn, then delete in a WriteBatch so large
		// retention sweeps don't hit ErrTxnTooBig.
		var keysToDelete [][]byte
		err := s.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.PrefetchValues = false

			it := txn.NewIterator(iterOpts)
			defer it.Close()

			var iterCount int
			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				key := it.Item().Key()
				if len(key) < headerLen+suffixLen || !keyTime(key).Before(before) {
					continue
				}
				keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
			}
			return nil
		})
		if err != nil {
			done <- err
			return
		}

		wb := s.db.NewWriteBatch()
		defer wb.Cancel()
		for _, key := range keysToDelete {
			if err := wb.Delete(key); err != nil {
				done <- err
				return
			}
		}
		done <- wb.Flush()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("delete operation cancelled: %w", ctx.Err())
	}
}

// Close shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection
// This reclaims disk space from deleted values
// discardRatio: run GC if this fraction of file can be discarded (0.5 = 50%)
// Returns badger.ErrNoRewrite when there was nothing to collect
func (s *Storage) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type statsResult struct {
		stats *storage.Stats
		err   error
	}
	done := make(chan statsResult, 1)

	go func() {
		var res statsResult
		stats := &storage.Stats{}

		res.err = s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			defer it.Close()

			var iterCount int
			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				key := it.Item().Key()
				if len(key) < headerLen+suffixLen {
					continue
				}
				switch key[0] {
				case kindError:
					stats.TotalErrors++
				case kindLog:
					stats.TotalLogs++
				default:
					continue
				}

				ts := keyTime(key)
				if stats.Oldest.IsZero() || ts.Before(stats.Oldest) {
					stats.Oldest = ts
				}
				if ts.After(stats.Newest) {
					stats.Newest = ts
				}
			}
			return nil
		})

		if res.err == nil {
			lsmSize, vlogSize := s.db.Size()
			stats.SizeBytes = uint64(lsmSize + vlogSize)
		}

		res.stats = stats
		done <- res
	}()

	select {
	case res := <-done:
		return res.stats, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("stats operation cancelled: %w", ctx.Err())
	}
}

func makePrefix(kind byte, clientID string) []byte {
	prefix := make([]byte, 0, headerLen+len(clientID)+suffixLen)
	prefix = append(prefix, kind)
	prefix = binary.BigEndian.AppendUint16(prefix, uint16(len(clientID)))
	return append(prefix, clientID...)
}

// makeKey creates a sortable key. The id hash keeps records that share a
// timestamp from overwriting each other.
func makeKey(kind byte, clientID string, ts time.Time, id string) []byte {
	key := makePrefix(kind, clientID)
	key = binary.BigEndian.AppendUint64(key, uint64(ts.UnixNano()))
	return binary.BigEndian.AppendUint64(key, xxhash.Sum64String(id))
}

// keyTime extracts the timestamp from a storage key
func keyTime(key []byte) time.Time {
	n := len(key)
	return time.Unix(0, int64(binary.BigEndian.Uint64(key[n-suffixLen:n-8])))
}
