// Package unread tracks per-view unread flags.
package unread

import (
	"sync"

	"github.com/tOgg1/fedistream/internal/models"
)

// Tracker is a level-triggered "something arrived" flag per view. It is not
// a counter.
type Tracker struct {
	mu    sync.RWMutex
	flags map[models.View]bool
}

// NewTracker creates a tracker with every view read.
func NewTracker() *Tracker {
	return &Tracker{flags: make(map[models.View]bool)}
}

// MarkUnread sets the flag for view. Repeated calls are harmless.
func (t *Tracker) MarkUnread(view models.View) {
	t.mu.Lock()
	t.flags[view] = true
	t.mu.Unlock()
}

// MarkRead clears the flag for view.
func (t *Tracker) MarkRead(view models.View) {
	t.mu.Lock()
	delete(t.flags, view)
	t.mu.Unlock()
}

// IsUnread reports the flag for view.
func (t *Tracker) IsUnread(view models.View) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.flags[view]
}

// ClearAll marks every view read.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	clear(t.flags)
	t.mu.Unlock()
}

// Snapshot returns the flag of every view.
func (t *Tracker) Snapshot() map[models.View]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[models.View]bool, len(models.AllViews()))
	for _, view := range models.AllViews() {
		out[view] = t.flags[view]
	}
	return out
}
