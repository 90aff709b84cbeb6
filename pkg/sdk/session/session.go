// Package session holds the identity state of one SDK instance.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/sdk/record"
)

// Tracker holds the session id, the current user and global tags. The
// session id is fixed for the tracker's lifetime; tags only grow and the
// user id is only replaced. Safe for concurrent use.
type Tracker struct {
	sessionID string

	mu     sync.RWMutex
	userID string
	tags   []string
}

// New returns a tracker with a fresh random session id.
func New() *Tracker {
	return &Tracker{sessionID: uuid.NewString()}
}

// SessionID returns the session id.
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// UserID returns the current user id, or "".
func (t *Tracker) UserID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.userID
}

// SetUser replaces the current user id.
func (t *Tracker) SetUser(id string) {
	t.mu.Lock()
	t.userID = id
	t.mu.Unlock()
}

// AddTags appends tags not already present.
func (t *Tracker) AddTags(tags ...string) {
	t.mu.Lock()
	t.tags = record.MergeTags(t.tags, tags)
	t.mu.Unlock()
}

// Tags returns a copy of the global tags.
func (t *Tracker) Tags() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.tags) == 0 {
		return nil
	}
	out := make([]string, len(t.tags))
	copy(out, t.tags)
	return out
}
