// Package timeline holds the per-view timeline buffers.
package timeline

import (
	"sync"

	"github.com/tOgg1/fedistream/internal/models"
)

// DefaultCapacity is the soft limit used when none is configured.
const DefaultCapacity = 40

// Buffer is an ordered, newest-first collection of entries for one view.
//
// Buffers lock internally so readers on other goroutines can snapshot them,
// but mutation order is owned by the fanout: callers must not interleave
// multi-buffer operations from several goroutines.
type Buffer struct {
	view     models.View
	capacity int
	policy   TrimPolicy

	mu      sync.RWMutex
	entries []models.Entry
	heading bool
}

// NewBuffer creates a buffer for view.
func NewBuffer(view models.View, capacity int, policy TrimPolicy) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if policy == nil {
		policy = NewProbabilisticTrim(0.2, capacity/2)
	}
	return &Buffer{
		view:     view,
		capacity: capacity,
		policy:   policy,
	}
}

// View returns the view this buffer feeds.
func (b *Buffer) View() models.View {
	return b.view
}

// Capacity returns the soft capacity.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Append inserts entry at the head. An entry with the same id is replaced in
// place instead. When the buffer is not heading, the trim policy may drop the
// overflow from the tail. It returns the number of evicted entries.
func (b *Buffer) Append(entry models.Entry) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.entries {
		if b.entries[i].ID == entry.ID && b.entries[i].Kind == entry.Kind {
			b.entries[i] = entry
			return 0
		}
	}

	b.entries = append(b.entries, models.Entry{})
	copy(b.entries[1:], b.entries)
	b.entries[0] = entry

	if b.heading {
		return 0
	}
	overflow := len(b.entries) - b.capacity
	if overflow <= 0 || !b.policy.ShouldTrim(overflow) {
		return 0
	}
	return b.truncateLocked()
}

// Archive drops everything beyond capacity regardless of policy. It is a
// no-op while heading.
func (b *Buffer) Archive() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.heading {
		return 0
	}
	return b.truncateLocked()
}

func (b *Buffer) truncateLocked() int {
	if len(b.entries) <= b.capacity {
		return 0
	}
	evicted := len(b.entries) - b.capacity
	clear(b.entries[b.capacity:])
	b.entries = b.entries[:b.capacity]
	return evicted
}

// DeleteByID removes every entry matching id and returns how many were removed.
func (b *Buffer) DeleteByID(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.entries[:0]
	removed := 0
	for _, e := range b.entries {
		if e.Matches(id) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(b.entries[len(kept):])
	b.entries = kept
	return removed
}

// ReplaceByID swaps status into every entry holding it and returns how many
// entries changed.
func (b *Buffer) ReplaceByID(status models.Entry) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	replaced := 0
	for i, e := range b.entries {
		if next, ok := e.ReplaceStatus(status); ok {
			b.entries[i] = next
			replaced++
		}
	}
	return replaced
}

// Reset replaces the contents, e.g. after a backfill fetch. entries must be
// newest first.
func (b *Buffer) Reset(entries []models.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append([]models.Entry(nil), entries...)
}

// Clear removes all entries.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}

// SetHeading records whether the user is scrolled to the newest entry.
// While heading, nothing is evicted.
func (b *Buffer) SetHeading(heading bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.heading = heading
}

// Heading reports the heading flag.
func (b *Buffer) Heading() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.heading
}

// Len returns the number of entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Entries returns a copy of the entries, newest first.
func (b *Buffer) Entries() []models.Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.Entry(nil), b.entries...)
}

// Contains reports whether any entry matches id.
func (b *Buffer) Contains(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.entries {
		if e.Matches(id) {
			return true
		}
	}
	return false
}
