package streaming

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tOgg1/fedistream/internal/events"
	"github.com/tOgg1/fedistream/internal/models"
)

var errStillOpen = errors.New("subscription still draining")

// fakeSubscriber wraps a real bus and can reject subscriptions or hold
// releases open.
type fakeSubscriber struct {
	*events.InMemoryBus

	mu      sync.Mutex
	reject  map[models.Channel]error
	holding atomic.Bool
	holds   atomic.Int32
}

func newFakeSubscriber() *fakeSubscriber {
	f := &fakeSubscriber{reject: make(map[models.Channel]error)}
	f.InMemoryBus = events.NewInMemoryBus(events.WithAdmission(func(k events.Key) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.reject[k.Channel]
	}))
	return f
}

func (f *fakeSubscriber) rejectChannel(c models.Channel, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reject[c] = err
}

func (f *fakeSubscriber) Unsubscribe(id events.SubscriptionID) error {
	if f.holding.Load() {
		f.holds.Add(1)
		return errStillOpen
	}
	return f.InMemoryBus.Unsubscribe(id)
}

func account(id string) *models.Account {
	return &models.Account{ID: id, BaseURL: "https://" + id + ".example", Domain: id + ".example"}
}

type envelopeLog struct {
	mu   sync.Mutex
	envs []Envelope
}

func (l *envelopeLog) sink(env Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.envs = append(l.envs, env)
}

func (l *envelopeLog) all() []Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Envelope(nil), l.envs...)
}
