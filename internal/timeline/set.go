package timeline

import (
	"github.com/tOgg1/fedistream/internal/models"
)

// Options configures every buffer in a Set.
type Options struct {
	Capacity int
	// Policy builds the trim policy for a view. Nil uses
	// NewProbabilisticTrim(0.2, capacity/2).
	Policy func(view models.View) TrimPolicy
}

// Set is the registry of named buffers, one per view. Buffers are created
// once and live for the whole process; account switches clear them.
type Set struct {
	buffers map[models.View]*Buffer
}

// NewSet creates one buffer per view in models.AllViews.
func NewSet(opts Options) *Set {
	s := &Set{buffers: make(map[models.View]*Buffer)}
	for _, view := range models.AllViews() {
		var policy TrimPolicy
		if opts.Policy != nil {
			policy = opts.Policy(view)
		}
		s.buffers[view] = NewBuffer(view, opts.Capacity, policy)
	}
	return s
}

// Get returns the buffer for view, or nil for an unknown view.
func (s *Set) Get(view models.View) *Buffer {
	return s.buffers[view]
}

// Views lists the views in display order.
func (s *Set) Views() []models.View {
	return models.AllViews()
}

// DeleteEverywhere removes id from each listed view and returns the number of
// entries removed in total.
func (s *Set) DeleteEverywhere(id string, views ...models.View) int {
	removed := 0
	for _, view := range views {
		if b := s.buffers[view]; b != nil {
			removed += b.DeleteByID(id)
		}
	}
	return removed
}

// ReplaceEverywhere swaps status into each listed view.
func (s *Set) ReplaceEverywhere(status models.Entry, views ...models.View) int {
	replaced := 0
	for _, view := range views {
		if b := s.buffers[view]; b != nil {
			replaced += b.ReplaceByID(status)
		}
	}
	return replaced
}

// ClearAll empties every buffer.
func (s *Set) ClearAll() {
	for _, b := range s.buffers {
		b.Clear()
	}
}

// Stats returns the entry count per view.
func (s *Set) Stats() map[models.View]int {
	out := make(map[models.View]int, len(s.buffers))
	for view, b := range s.buffers {
		out[view] = b.Len()
	}
	return out
}
