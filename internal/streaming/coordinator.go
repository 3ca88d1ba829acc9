package streaming

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/fedistream/internal/logging"
	"github.com/tOgg1/fedistream/internal/models"
)

// CoordinatorConfig bounds the release wait.
type CoordinatorConfig struct {
	// Interval is the pause between liveness checks. Default: 500ms
	Interval time.Duration

	// MaxAttempts is the number of checks before giving up. Default: 20
	MaxAttempts int
}

// DefaultCoordinatorConfig returns sensible defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Interval:    500 * time.Millisecond,
		MaxAttempts: 20,
	}
}

// binder is the part of Registry the coordinator drives.
type binder interface {
	Bind(ctx context.Context, account *models.Account, channels []models.Channel) (BindResult, error)
	Unbind(ctx context.Context, accountID string) error
	LiveAccounts() []string
}

// Coordinator tears down the live binding before binding a new account.
// Concurrent rebinds are last-writer-wins: each request cancels the one in
// flight, and rebinds run one at a time so only the newest account ends up
// bound.
type Coordinator struct {
	config   CoordinatorConfig
	registry binder
	logger   zerolog.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc

	// turn admits one rebind at a time; a channel so waiting honors ctx.
	turn chan struct{}
}

// NewCoordinator creates a coordinator over registry.
func NewCoordinator(config CoordinatorConfig, registry binder) *Coordinator {
	if config.Interval <= 0 {
		config.Interval = DefaultCoordinatorConfig().Interval
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultCoordinatorConfig().MaxAttempts
	}
	return &Coordinator{
		config:   config,
		registry: registry,
		logger:   logging.Component("rebind-coordinator"),
		turn:     make(chan struct{}, 1),
	}
}

// Rebind waits for every live binding to release, then binds account to
// channels. It returns ErrRebindSuperseded when a newer Rebind cancelled it
// and ErrRebindTimeout when the previous binding never released.
func (c *Coordinator) Rebind(ctx context.Context, account *models.Account, channels []models.Channel) (BindResult, error) {
	if account.IsBlank() {
		return BindResult{}, models.ErrAccountNotActive
	}

	ctx, gen, done := c.begin(ctx)
	defer done()

	select {
	case c.turn <- struct{}{}:
	case <-ctx.Done():
		return BindResult{}, c.cause(ctx, gen)
	}
	defer func() { <-c.turn }()

	logger := logging.WithAccount(c.logger, account.ID)

	for attempt := 1; ; attempt++ {
		if !c.isCurrent(gen) {
			return BindResult{}, ErrRebindSuperseded
		}

		live := c.registry.LiveAccounts()
		if len(live) == 0 {
			result, err := c.registry.Bind(ctx, account, channels)
			if err != nil {
				if ctx.Err() != nil {
					return result, c.cause(ctx, gen)
				}
				return result, err
			}
			logger.Info().Int("attempts", attempt).Interface("channels", result.Bound).Msg("account bound")
			return result, nil
		}

		for _, accountID := range live {
			if err := c.registry.Unbind(ctx, accountID); err != nil {
				logger.Debug().Err(err).Str("previous_account", accountID).Msg("unbind pending")
			}
		}
		if len(c.registry.LiveAccounts()) == 0 {
			continue
		}

		if attempt >= c.config.MaxAttempts {
			logger.Warn().Int("attempts", attempt).Strs("live", live).Msg("previous binding did not release")
			return BindResult{}, ErrRebindTimeout
		}
		if err := sleepWithContext(ctx, c.config.Interval); err != nil {
			return BindResult{}, c.cause(ctx, gen)
		}
	}
}

// Cancel aborts any rebind in flight.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Coordinator) begin(parent context.Context) (context.Context, uint64, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel

	return ctx, gen, func() {
		c.mu.Lock()
		if c.gen == gen {
			c.cancel = nil
		}
		c.mu.Unlock()
		cancel()
	}
}

func (c *Coordinator) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// cause maps a finished ctx to ErrRebindSuperseded when a newer rebind
// cancelled it, and to the ctx error otherwise.
func (c *Coordinator) cause(ctx context.Context, gen uint64) error {
	if !c.isCurrent(gen) {
		return ErrRebindSuperseded
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("rebind aborted")
}

func sleepWithContext(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
