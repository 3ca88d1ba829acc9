// Package space is the root state of the streaming engine: the active
// account, its metadata, the timeline buffers and the channel bindings that
// feed them.
package space

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/fedistream/internal/config"
	"github.com/tOgg1/fedistream/internal/fanout"
	"github.com/tOgg1/fedistream/internal/logging"
	"github.com/tOgg1/fedistream/internal/models"
	"github.com/tOgg1/fedistream/internal/rpc"
	"github.com/tOgg1/fedistream/internal/streaming"
	"github.com/tOgg1/fedistream/internal/timeline"
	"github.com/tOgg1/fedistream/internal/unread"
)

// API is the part of the server HTTP API the space fetches from.
type API interface {
	Instance(ctx context.Context, baseURL string) (*models.Instance, error)
	CustomEmojis(ctx context.Context, baseURL string) ([]models.Emoji, error)
	Timeline(ctx context.Context, account *models.Account, view models.View, limit int) ([]models.Entry, error)
}

// Config configures a Space.
type Config struct {
	Timeline      timeline.Options
	BackfillLimit int
	Coordinator   streaming.CoordinatorConfig
	Fanout        fanout.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeline:      timeline.Options{Capacity: timeline.DefaultCapacity},
		BackfillLimit: 40,
		Coordinator:   streaming.DefaultCoordinatorConfig(),
		Fanout:        fanout.DefaultConfig(),
	}
}

// FromConfig maps the application config onto a space Config.
func FromConfig(cfg *config.Config) Config {
	trim := cfg.Timeline
	return Config{
		Timeline: timeline.Options{
			Capacity: trim.Capacity,
			Policy: func(models.View) timeline.TrimPolicy {
				return timeline.NewProbabilisticTrim(trim.TrimProbability, trim.TrimSlack)
			},
		},
		BackfillLimit: trim.BackfillLimit,
		Coordinator: streaming.CoordinatorConfig{
			Interval:    cfg.Streaming.RebindInterval,
			MaxAttempts: cfg.Streaming.RebindMaxAttempts,
		},
		Fanout: fanout.Config{QueueSize: cfg.Streaming.QueueSize},
	}
}

// Space owns the active account session.
type Space struct {
	config      Config
	backend     rpc.Backend
	api         API
	buffers     *timeline.Set
	unread      *unread.Tracker
	registry    *streaming.Registry
	coordinator *streaming.Coordinator
	fanout      *fanout.Fanout
	logger      zerolog.Logger

	mu       sync.RWMutex
	session  context.Context
	account  models.Account
	loading  bool
	emojis   []models.Emoji
	tootMax  int
	settings models.UnreadSettings
	pleroma  bool
	degraded map[models.Channel]error

	activateMu     sync.Mutex
	activateCancel context.CancelFunc
	activateGen    uint64
	activateTurn   chan struct{}
}

// New creates a space. subscriber is the event bus the transport publishes
// to; backend serves account and stream requests.
func New(cfg Config, backend rpc.Backend, api API, subscriber streaming.Subscriber) *Space {
	if cfg.BackfillLimit <= 0 {
		cfg.BackfillLimit = DefaultConfig().BackfillLimit
	}

	buffers := timeline.NewSet(cfg.Timeline)
	tracker := unread.NewTracker()
	fan := fanout.New(cfg.Fanout, buffers, tracker, nil)
	registry := streaming.NewRegistry(subscriber, fan.Sink())
	fan.SetBindings(registry)

	return &Space{
		config:       cfg,
		backend:      backend,
		api:          api,
		buffers:      buffers,
		unread:       tracker,
		registry:     registry,
		coordinator:  streaming.NewCoordinator(cfg.Coordinator, registry),
		fanout:       fan,
		logger:       logging.Component("timeline-space"),
		tootMax:      models.DefaultTootMax,
		settings:     models.DefaultUnreadSettings(),
		degraded:     make(map[models.Channel]error),
		activateTurn: make(chan struct{}, 1),
	}
}

// Run processes streamed events until ctx is done. Buffer operations on the
// space wait for Run to start. Streams opened by the space live until ctx is
// done or they are stopped.
func (s *Space) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.session == nil || s.session.Err() != nil {
		s.session = ctx
	}
	s.mu.Unlock()
	return s.fanout.Run(ctx)
}

// streamContext returns the context transports are started with. Streams
// belong to the session, not to the call that opened them.
func (s *Space) streamContext(ctx context.Context) context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session != nil {
		return s.session
	}
	return context.WithoutCancel(ctx)
}

// Activate switches the session to accountID. Concurrent calls are
// last-writer-wins: an older call returns ErrActivationSuperseded.
func (s *Space) Activate(ctx context.Context, accountID string) (*models.Account, error) {
	ctx, gen, done := s.beginActivation(ctx)
	defer done()

	select {
	case s.activateTurn <- struct{}{}:
	case <-ctx.Done():
		return nil, s.activationCause(ctx, gen)
	}
	defer func() { <-s.activateTurn }()

	logger := logging.WithAccount(s.logger, accountID)
	logger.Info().Msg("activating account")

	if err := s.StopStreamings(ctx); err != nil {
		logger.Warn().Err(err).Msg("stopping previous streams failed")
	}
	if err := s.UnbindStreamings(ctx); err != nil {
		logger.Debug().Err(err).Msg("previous binding still releasing")
	}
	if err := s.ClearContentsTimelines(ctx); err != nil {
		return nil, s.activationErr(ctx, gen, err)
	}
	if err := s.ClearUnread(ctx); err != nil {
		return nil, s.activationErr(ctx, gen, err)
	}

	account, err := s.InitLoad(ctx, accountID)
	if err != nil {
		return account, s.activationErr(ctx, gen, err)
	}
	if _, err := s.PrepareSpace(ctx); err != nil {
		return account, s.activationErr(ctx, gen, err)
	}

	logger.Info().Str("username", account.Username).Msg("account active")
	return account, nil
}

func (s *Space) beginActivation(parent context.Context) (context.Context, uint64, func()) {
	s.activateMu.Lock()
	defer s.activateMu.Unlock()

	if s.activateCancel != nil {
		s.activateCancel()
	}
	s.activateGen++
	gen := s.activateGen
	ctx, cancel := context.WithCancel(parent)
	s.activateCancel = cancel

	return ctx, gen, func() {
		s.activateMu.Lock()
		if s.activateGen == gen {
			s.activateCancel = nil
		}
		s.activateMu.Unlock()
		cancel()
	}
}

func (s *Space) activationCause(ctx context.Context, gen uint64) error {
	s.activateMu.Lock()
	superseded := s.activateGen != gen
	s.activateMu.Unlock()
	if superseded {
		return ErrActivationSuperseded
	}
	return ctx.Err()
}

func (s *Space) activationErr(ctx context.Context, gen uint64, err error) error {
	if ctx.Err() != nil || errors.Is(err, streaming.ErrRebindSuperseded) {
		if cause := s.activationCause(ctx, gen); cause != nil {
			return cause
		}
	}
	return err
}

// InitLoad loads the account, its server flavor and unread settings, then
// backfills the timelines. Account failures return *AccountLoadError and
// backfill failures *TimelineFetchError; in the latter case the account is
// already active and returned.
func (s *Space) InitLoad(ctx context.Context, accountID string) (*models.Account, error) {
	s.setLoading(true)

	account, err := s.localAccount(ctx, accountID)
	if err != nil {
		s.setLoading(false)
		return nil, &AccountLoadError{AccountID: accountID, Err: err}
	}

	if err := s.DetectPleroma(ctx); err != nil {
		logger := logging.WithAccount(s.logger, accountID)
		logger.Warn().Err(err).Msg("instance detection failed")
	}
	s.LoadUnreadSettings(ctx, accountID)
	s.setLoading(false)

	if err := s.FetchContentsTimelines(ctx); err != nil {
		return account, err
	}
	return account, nil
}

func (s *Space) localAccount(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.backend.GetLocalAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.NeedsProfile() {
		account, err = s.backend.UpdateAccount(ctx, account)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.account = *account
	s.mu.Unlock()
	return account, nil
}

// DetectPleroma records whether the account's server is Pleroma.
func (s *Space) DetectPleroma(ctx context.Context) error {
	account := s.Account()
	instance, err := s.api.Instance(ctx, account.BaseURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pleroma = instance.IsPleroma()
	s.mu.Unlock()
	return nil
}

// LoadUnreadSettings loads the streaming toggles of accountID, falling back
// to the defaults when the backend fails.
func (s *Space) LoadUnreadSettings(ctx context.Context, accountID string) models.UnreadSettings {
	settings, err := s.backend.GetUnreadSettings(ctx, accountID)
	if err != nil {
		logger := logging.WithAccount(s.logger, accountID)
		logger.Warn().Err(err).Msg("unread settings unavailable, using defaults")
		settings = models.DefaultUnreadSettings()
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return settings
}

// PrepareSpace binds and starts the streams, then fetches emojis and
// instance metadata. Only a user channel bind failure is returned; metadata
// failures keep the defaults.
func (s *Space) PrepareSpace(ctx context.Context) (streaming.BindResult, error) {
	result, err := s.BindStreamings(ctx)
	if err != nil {
		return result, err
	}
	if err := s.StartStreamings(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("some streams did not start")
	}

	account := s.Account()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.FetchEmojis(gctx, &account)
		return err
	})
	g.Go(func() error {
		return s.FetchInstance(gctx, &account)
	})
	if err := g.Wait(); err != nil {
		logger := logging.WithAccount(s.logger, account.ID)
		logger.Warn().Err(err).Msg("instance metadata unavailable")
	}
	return result, nil
}

// FetchEmojis loads the custom emojis of the account's server.
func (s *Space) FetchEmojis(ctx context.Context, account *models.Account) ([]models.Emoji, error) {
	emojis, err := s.api.CustomEmojis(ctx, account.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch emojis: %w", err)
	}
	s.mu.Lock()
	s.emojis = emojis
	s.mu.Unlock()
	return emojis, nil
}

// FetchInstance loads the post length limit of the account's server.
func (s *Space) FetchInstance(ctx context.Context, account *models.Account) error {
	instance, err := s.api.Instance(ctx, account.BaseURL)
	if err != nil {
		return fmt.Errorf("fetch instance: %w", err)
	}
	s.mu.Lock()
	s.tootMax = instance.TootMax()
	s.mu.Unlock()
	return nil
}

// BindStreamings binds the user channel and every enabled specialty channel
// for the active account, waiting for any previous binding to release.
func (s *Space) BindStreamings(ctx context.Context) (streaming.BindResult, error) {
	account := s.Account()
	if account.IsBlank() {
		return streaming.BindResult{}, models.ErrAccountNotActive
	}

	result, err := s.coordinator.Rebind(ctx, &account, s.UnreadSettings().Channels())
	if err != nil {
		return result, err
	}

	s.mu.Lock()
	s.degraded = make(map[models.Channel]error)
	for channel, failure := range result.Failed {
		s.degraded[channel] = failure
	}
	s.mu.Unlock()
	return result, nil
}

// StartStreamings asks the backend to open every enabled specialty channel.
// The streams stay open after ctx ends; StopStreamings or the end of Run
// closes them. Failures degrade the session and are returned joined.
func (s *Space) StartStreamings(ctx context.Context) error {
	account := s.Account()
	if account.IsBlank() {
		return models.ErrAccountNotActive
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	settings := s.UnreadSettings()
	streamCtx := s.streamContext(ctx)

	var errs []error
	for _, channel := range models.SpecialtyChannels() {
		if !settings.Enabled(channel) {
			continue
		}
		if err := s.backend.StartChannel(streamCtx, channel, &account); err != nil {
			s.markDegraded(channel, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopStreamings stops every specialty channel.
func (s *Space) StopStreamings(ctx context.Context) error {
	var errs []error
	for _, channel := range models.SpecialtyChannels() {
		if err := s.backend.StopChannel(ctx, channel); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UnbindStreamings releases every live binding.
func (s *Space) UnbindStreamings(ctx context.Context) error {
	var errs []error
	for _, accountID := range s.registry.LiveAccounts() {
		if err := s.registry.Unbind(ctx, accountID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RebindChannel retries one channel of the active account.
func (s *Space) RebindChannel(ctx context.Context, channel models.Channel) error {
	if !channel.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidChannel, channel)
	}
	if channel == models.ChannelUser {
		_, err := s.BindStreamings(ctx)
		return err
	}

	account := s.Account()
	if account.IsBlank() {
		return models.ErrAccountNotActive
	}
	if err := s.registry.BindChannel(ctx, &account, channel); err != nil {
		s.markDegraded(channel, err)
		return err
	}
	if err := s.backend.StartChannel(s.streamContext(ctx), channel, &account); err != nil {
		s.markDegraded(channel, err)
		return err
	}

	s.mu.Lock()
	delete(s.degraded, channel)
	s.mu.Unlock()
	return nil
}

func (s *Space) markDegraded(channel models.Channel, err error) {
	s.mu.Lock()
	s.degraded[channel] = err
	s.mu.Unlock()
	s.logger.Warn().Err(err).Str("channel", string(channel)).Msg("channel degraded")
}

// ClearAccount installs the blank account.
func (s *Space) ClearAccount() {
	s.mu.Lock()
	s.account = models.Blank()
	s.mu.Unlock()
}

// Logout tears the session down: streams stop, bindings release, buffers
// and unread state clear and the account is reset.
func (s *Space) Logout(ctx context.Context) error {
	s.coordinator.Cancel()
	errs := []error{
		s.StopStreamings(ctx),
		s.UnbindStreamings(ctx),
		s.ClearContentsTimelines(ctx),
		s.ClearUnread(ctx),
	}
	s.ClearAccount()
	return errors.Join(errs...)
}

// ClearContentsTimelines empties every buffer.
func (s *Space) ClearContentsTimelines(ctx context.Context) error {
	return s.fanout.Do(ctx, s.buffers.ClearAll)
}

// activeViews lists the core views plus the specialty views enabled by the
// unread settings.
func (s *Space) activeViews() []models.View {
	views := models.CoreViews()
	settings := s.UnreadSettings()
	for _, channel := range models.SpecialtyChannels() {
		if settings.Enabled(channel) {
			views = append(views, channel.View())
		}
	}
	return views
}

// FetchContentsTimelines backfills the active views from the server.
func (s *Space) FetchContentsTimelines(ctx context.Context) error {
	account := s.Account()
	if account.IsBlank() {
		return models.ErrAccountNotActive
	}

	views := s.activeViews()
	fetched := make([][]models.Entry, len(views))
	g, gctx := errgroup.WithContext(ctx)
	for i, view := range views {
		g.Go(func() error {
			entries, err := s.api.Timeline(gctx, &account, view, s.config.BackfillLimit)
			if err != nil {
				return &TimelineFetchError{View: view, Err: err}
			}
			fetched[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return s.fanout.Do(ctx, func() {
		for i, view := range views {
			s.buffers.Get(view).Reset(fetched[i])
		}
	})
}

// UpdateEntryForAllTimelines replaces entry in every active view.
func (s *Space) UpdateEntryForAllTimelines(ctx context.Context, entry models.Entry) error {
	views := s.activeViews()
	return s.fanout.Do(ctx, func() {
		s.buffers.ReplaceEverywhere(entry, views...)
	})
}

// MarkRead clears the unread flag of view.
func (s *Space) MarkRead(ctx context.Context, view models.View) error {
	return s.fanout.Do(ctx, func() { s.unread.MarkRead(view) })
}

// ClearUnread clears every unread flag.
func (s *Space) ClearUnread(ctx context.Context) error {
	return s.fanout.Do(ctx, s.unread.ClearAll)
}

// SetHeading records whether the user is at the top of view.
func (s *Space) SetHeading(ctx context.Context, view models.View, heading bool) error {
	buf := s.buffers.Get(view)
	if buf == nil {
		return fmt.Errorf("%w: %q", models.ErrInvalidView, view)
	}
	return s.fanout.Do(ctx, func() { buf.SetHeading(heading) })
}

func (s *Space) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

// Account returns the active account; blank when none.
func (s *Space) Account() models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Loading reports whether InitLoad is loading the account.
func (s *Space) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Emojis returns the server's custom emojis.
func (s *Space) Emojis() []models.Emoji {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.emojis)
}

// TootMax returns the post length limit.
func (s *Space) TootMax() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tootMax
}

// UnreadSettings returns the streaming toggles in effect.
func (s *Space) UnreadSettings() models.UnreadSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Pleroma reports whether the server is Pleroma.
func (s *Space) Pleroma() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pleroma
}

// Degraded returns the channels that failed to bind or start.
func (s *Space) Degraded() map[models.Channel]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.degraded)
}

// BindingAccount returns the account the registry is bound to.
func (s *Space) BindingAccount() (string, bool) {
	return s.registry.Current()
}

// Unread returns the unread flag of every view.
func (s *Space) Unread() map[models.View]bool {
	return s.unread.Snapshot()
}

// Buffer returns the buffer of view.
func (s *Space) Buffer(view models.View) *timeline.Buffer {
	return s.buffers.Get(view)
}

// Stats returns the fanout counters.
func (s *Space) Stats() fanout.Stats {
	return s.fanout.Stats()
}
