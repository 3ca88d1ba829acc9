// Package fanout applies streaming events to the timeline buffers and the
// unread tracker from a single owner goroutine.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tOgg1/fedistream/internal/logging"
	"github.com/tOgg1/fedistream/internal/models"
	"github.com/tOgg1/fedistream/internal/streaming"
	"github.com/tOgg1/fedistream/internal/timeline"
	"github.com/tOgg1/fedistream/internal/unread"
)

// Fanout errors.
var (
	ErrAlreadyRunning = errors.New("fanout already running")
	ErrNotRunning     = errors.New("fanout not running")
	ErrStaleEvent     = errors.New("event from a released binding")
	ErrUnknownKind    = errors.New("unknown event kind")
)

// Bindings is the registry view the fanout needs.
type Bindings interface {
	// Live reports whether an envelope still belongs to an open binding.
	Live(accountID string, channel models.Channel, epoch uint64) bool

	// IsBound reports whether channel is bound for the current account.
	IsBound(channel models.Channel) bool
}

// Config configures a Fanout.
type Config struct {
	// QueueSize bounds the number of envelopes waiting for the owner
	// goroutine. Default: 256
	QueueSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{QueueSize: 256}
}

// Stats are cumulative counters.
type Stats struct {
	Dispatched uint64 `json:"dispatched"`
	Dropped    uint64 `json:"dropped"`
	Failed     uint64 `json:"failed"`
}

type item struct {
	env  streaming.Envelope
	fn   func()
	done chan struct{}
}

// Fanout is the serialization point between transports and buffers. Every
// buffer and unread mutation runs on the goroutine executing Run, either as
// an enqueued envelope or as a closure passed to Do.
type Fanout struct {
	config   Config
	buffers  *timeline.Set
	unread   *unread.Tracker
	bindings Bindings
	logger   zerolog.Logger

	queue chan item

	mu      sync.Mutex
	running bool
	started chan struct{}
	once    sync.Once
	stopped chan struct{}

	dispatched atomic.Uint64
	dropped    atomic.Uint64
	failed     atomic.Uint64
}

// New creates a Fanout over buffers and tracker. bindings may be nil, in
// which case no event is treated as stale and only core views receive
// broadcasts.
func New(config Config, buffers *timeline.Set, tracker *unread.Tracker, bindings Bindings) *Fanout {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	return &Fanout{
		config:   config,
		buffers:  buffers,
		unread:   tracker,
		bindings: bindings,
		logger:   logging.Component("timeline-fanout"),
		queue:    make(chan item, config.QueueSize),
		started:  make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// SetBindings installs the registry consulted for staleness and broadcast
// targets. It must be called before Run.
func (f *Fanout) SetBindings(bindings Bindings) {
	f.bindings = bindings
}

// Run consumes the queue until ctx is done. Only one Run may be active.
func (f *Fanout) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return ErrAlreadyRunning
	}
	f.running = true
	stopped := f.stopped
	f.once.Do(func() { close(f.started) })
	f.mu.Unlock()

	f.logger.Debug().Int("queue_size", f.config.QueueSize).Msg("fanout started")
	defer func() {
		f.mu.Lock()
		f.running = false
		f.stopped = make(chan struct{})
		f.mu.Unlock()
		close(stopped)
		f.drain()
		f.logger.Debug().Msg("fanout stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it := <-f.queue:
			f.process(it)
		}
	}
}

func (f *Fanout) process(it item) {
	if it.fn != nil {
		defer close(it.done)
		f.runClosure(it.fn)
		return
	}
	if err := f.Dispatch(it.env); err != nil && !errors.Is(err, ErrStaleEvent) {
		f.logger.Warn().Err(err).Str("event", it.env.Event.String()).Msg("event dropped")
	}
}

// drain releases callers still blocked in Do after Run exits.
func (f *Fanout) drain() {
	for {
		select {
		case it := <-f.queue:
			if it.fn != nil {
				close(it.done)
			} else {
				f.dropped.Add(1)
			}
		default:
			return
		}
	}
}

func (f *Fanout) runClosure(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			f.failed.Add(1)
			f.logger.Error().Interface("panic", r).Msg("fanout task panicked")
		}
	}()
	fn()
}

// Sink returns the handler installed in the binding registry. It blocks when
// the queue is full and drops the envelope when the fanout is not running.
func (f *Fanout) Sink() streaming.Sink {
	return func(env streaming.Envelope) {
		f.Submit(env)
	}
}

// Submit enqueues env for the owner goroutine. It reports false when the
// envelope was dropped because the fanout is not running.
func (f *Fanout) Submit(env streaming.Envelope) bool {
	f.mu.Lock()
	running, stopped := f.running, f.stopped
	f.mu.Unlock()
	if !running {
		f.dropped.Add(1)
		return false
	}
	select {
	case f.queue <- item{env: env}:
		return true
	case <-stopped:
		f.dropped.Add(1)
		return false
	}
}

// Do runs fn on the owner goroutine and waits for it to finish. Before the
// first Run it waits for Run to start; once a Run has exited it fails with
// ErrNotRunning.
func (f *Fanout) Do(ctx context.Context, fn func()) error {
	select {
	case <-f.started:
	case <-ctx.Done():
		return ctx.Err()
	}

	f.mu.Lock()
	running, stopped := f.running, f.stopped
	f.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	done := make(chan struct{})
	select {
	case f.queue <- item{fn: fn, done: done}:
	case <-stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch applies env immediately on the calling goroutine. Callers must be
// the owner goroutine, a closure passed to Do, or code running while the
// fanout is not started.
func (f *Fanout) Dispatch(env streaming.Envelope) (err error) {
	ev := env.Event
	if f.bindings != nil && !f.bindings.Live(ev.AccountID, ev.Channel, env.Epoch) {
		f.dropped.Add(1)
		f.logger.Debug().Str("event", ev.String()).Uint64("epoch", env.Epoch).Msg("stale event dropped")
		return ErrStaleEvent
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handling %s: panic: %v", ev, r)
		}
		if err != nil {
			f.failed.Add(1)
			return
		}
		f.dispatched.Add(1)
	}()

	return f.apply(ev)
}

func (f *Fanout) apply(ev models.StreamEvent) error {
	switch ev.Kind {
	case models.EventUpdate:
		entry, err := models.DecodeStatus(ev.Payload)
		if err != nil {
			return err
		}
		f.append(ev.Channel.View(), entry)

	case models.EventNotification:
		entry, err := models.DecodeNotification(ev.Payload)
		if err != nil {
			return err
		}
		f.append(models.ViewNotifications, entry)

	case models.EventMention:
		entry, err := models.DecodeNotification(ev.Payload)
		if err != nil {
			return err
		}
		f.append(models.ViewMentions, entry)

	case models.EventDelete:
		id, err := models.DecodeDeletedID(ev.Payload)
		if err != nil {
			return err
		}
		removed := f.buffers.DeleteEverywhere(id, f.BroadcastViews()...)
		f.logger.Debug().Str("id", id).Int("removed", removed).Msg("entry deleted")

	case models.EventStatusUpdate:
		entry, err := models.DecodeStatus(ev.Payload)
		if err != nil {
			return err
		}
		f.buffers.ReplaceEverywhere(entry, f.BroadcastViews()...)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
	}
	return nil
}

func (f *Fanout) append(view models.View, entry models.Entry) {
	buf := f.buffers.Get(view)
	if buf == nil {
		return
	}
	if evicted := buf.Append(entry); evicted > 0 {
		f.logger.Debug().Str("view", string(view)).Int("evicted", evicted).Msg("buffer trimmed")
	}
	f.unread.MarkUnread(view)
}

// BroadcastViews lists the views that receive deletes and replacements: the
// core views plus every specialty view whose channel is bound.
func (f *Fanout) BroadcastViews() []models.View {
	views := models.CoreViews()
	if f.bindings == nil {
		return views
	}
	for _, channel := range models.SpecialtyChannels() {
		if f.bindings.IsBound(channel) {
			views = append(views, channel.View())
		}
	}
	return views
}

// Stats returns a snapshot of the counters.
func (f *Fanout) Stats() Stats {
	return Stats{
		Dispatched: f.dispatched.Load(),
		Dropped:    f.dropped.Load(),
		Failed:     f.failed.Load(),
	}
}
