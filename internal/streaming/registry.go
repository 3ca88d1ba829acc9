// Package streaming binds accounts to channel subscriptions and sequences
// rebinds across account switches.
package streaming

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/fedistream/internal/events"
	"github.com/tOgg1/fedistream/internal/logging"
	"github.com/tOgg1/fedistream/internal/models"
)

// Subscriber is the transport side of a binding.
type Subscriber interface {
	Subscribe(key events.Key, handler events.Handler) (events.SubscriptionID, error)
	Unsubscribe(id events.SubscriptionID) error
}

// Envelope is an event tagged with the epoch of the binding that received it.
type Envelope struct {
	Event models.StreamEvent
	Epoch uint64
}

// Sink receives every event from bound channels. It runs on the transport's
// goroutine and must not block for long.
type Sink func(Envelope)

// BindResult describes the outcome of a Bind.
type BindResult struct {
	AccountID string
	Bound     []models.Channel
	// Failed holds specialty channels the transport rejected. The session
	// runs without those views.
	Failed map[models.Channel]error
}

// Degraded reports whether any channel failed to bind.
func (r BindResult) Degraded() bool {
	return len(r.Failed) > 0
}

type handle struct {
	id    events.SubscriptionID
	epoch uint64
}

// Registry tracks which channels are bound for which account and owns the
// subscription handles.
type Registry struct {
	subscriber Subscriber
	sink       Sink
	logger     zerolog.Logger

	mu      sync.RWMutex
	handles map[events.Key]handle
	current string
	epoch   uint64
}

// NewRegistry creates a registry delivering events to sink.
func NewRegistry(subscriber Subscriber, sink Sink) *Registry {
	return &Registry{
		subscriber: subscriber,
		sink:       sink,
		logger:     logging.Component("binding-registry"),
		handles:    make(map[events.Key]handle),
	}
}

// Bind subscribes each channel not already bound for account. The user
// channel is bound first; its failure aborts the bind. Failures on other
// channels are collected in the result.
func (r *Registry) Bind(ctx context.Context, account *models.Account, channels []models.Channel) (BindResult, error) {
	if account.IsBlank() {
		return BindResult{}, models.ErrAccountNotActive
	}
	result := BindResult{AccountID: account.ID}

	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.handles {
		if key.AccountID != account.ID {
			return result, ErrBindingBusy
		}
	}

	for _, channel := range orderChannels(channels) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		key := events.Key{AccountID: account.ID, Channel: channel}
		if _, ok := r.handles[key]; ok {
			result.Bound = append(result.Bound, channel)
			continue
		}

		r.epoch++
		epoch := r.epoch
		id, err := r.subscriber.Subscribe(key, func(ev models.StreamEvent) {
			r.sink(Envelope{Event: ev, Epoch: epoch})
		})
		if err != nil {
			bindErr := &ChannelBindError{AccountID: account.ID, Channel: channel, Err: err}
			if channel == models.ChannelUser {
				return result, bindErr
			}
			if result.Failed == nil {
				result.Failed = make(map[models.Channel]error)
			}
			result.Failed[channel] = bindErr
			r.logger.Warn().Err(err).Str("account_id", account.ID).Str("channel", string(channel)).Msg("channel bind failed")
			continue
		}

		r.handles[key] = handle{id: id, epoch: epoch}
		r.current = account.ID
		result.Bound = append(result.Bound, channel)
		r.logger.Debug().Str("account_id", account.ID).Str("channel", string(channel)).Uint64("epoch", epoch).Msg("channel bound")
	}

	return result, nil
}

// orderChannels puts the user channel first and drops duplicates.
func orderChannels(channels []models.Channel) []models.Channel {
	out := make([]models.Channel, 0, len(channels))
	if slices.Contains(channels, models.ChannelUser) {
		out = append(out, models.ChannelUser)
	}
	for _, c := range channels {
		if c != models.ChannelUser && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// Unbind releases every handle of accountID. Calling it without a live
// binding is a no-op. Handles whose release fails stay recorded, so the
// binding remains live, and the errors are returned.
func (r *Registry) Unbind(ctx context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, h := range r.handles {
		if key.AccountID != accountID {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.release(key, h); err != nil {
			errs = append(errs, err)
		}
	}
	r.resetCurrentLocked()
	return errors.Join(errs...)
}

// UnbindChannel releases one channel of accountID.
func (r *Registry) UnbindChannel(ctx context.Context, accountID string, channel models.Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := events.Key{AccountID: accountID, Channel: channel}
	h, ok := r.handles[key]
	if !ok {
		return nil
	}
	err := r.release(key, h)
	r.resetCurrentLocked()
	return err
}

func (r *Registry) release(key events.Key, h handle) error {
	err := r.subscriber.Unsubscribe(h.id)
	if err != nil && !errors.Is(err, events.ErrSubscriptionNotFound) {
		r.logger.Warn().Err(err).Str("key", key.String()).Msg("channel release failed")
		return err
	}
	delete(r.handles, key)
	r.logger.Debug().Str("key", key.String()).Msg("channel released")
	return nil
}

func (r *Registry) resetCurrentLocked() {
	for key := range r.handles {
		if key.AccountID == r.current {
			return
		}
	}
	r.current = ""
}

// IsBound reports whether channel is bound for the current account.
func (r *Registry) IsBound(channel models.Channel) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == "" {
		return false
	}
	_, ok := r.handles[events.Key{AccountID: r.current, Channel: channel}]
	return ok
}

// Live reports whether an event received under epoch for accountID/channel
// still belongs to an open binding. Events failing this check are stale.
func (r *Registry) Live(accountID string, channel models.Channel, epoch uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[events.Key{AccountID: accountID, Channel: channel}]
	return ok && h.epoch == epoch
}

// Current returns the account of the current binding.
func (r *Registry) Current() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.current != ""
}

// LiveAccounts lists every account that still holds a handle.
func (r *Registry) LiveAccounts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for key := range r.handles {
		if !slices.Contains(out, key.AccountID) {
			out = append(out, key.AccountID)
		}
	}
	slices.Sort(out)
	return out
}

// BoundChannels lists the channels bound for accountID.
func (r *Registry) BoundChannels(accountID string) []models.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Channel
	for _, c := range append([]models.Channel{models.ChannelUser}, models.SpecialtyChannels()...) {
		if _, ok := r.handles[events.Key{AccountID: accountID, Channel: c}]; ok {
			out = append(out, c)
		}
	}
	return out
}

// BindChannel binds a single channel, typically one that failed earlier.
func (r *Registry) BindChannel(ctx context.Context, account *models.Account, channel models.Channel) error {
	result, err := r.Bind(ctx, account, []models.Channel{channel})
	if err != nil {
		return err
	}
	return result.Failed[channel]
}

// HasLiveUser reports whether any account still holds a user channel handle.
func (r *Registry) HasLiveUser() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key := range r.handles {
		if key.Channel == models.ChannelUser {
			return true
		}
	}
	return false
}
