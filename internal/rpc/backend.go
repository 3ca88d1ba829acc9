// Package rpc is the request/response boundary between the timeline space
// and the process that owns storage and network connections.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tOgg1/fedistream/internal/db"
	"github.com/tOgg1/fedistream/internal/logging"
	"github.com/tOgg1/fedistream/internal/mastodon"
	"github.com/tOgg1/fedistream/internal/models"
)

// Backend answers the requests the timeline space issues.
type Backend interface {
	// GetLocalAccount loads a stored account.
	GetLocalAccount(ctx context.Context, id string) (*models.Account, error)

	// UpdateAccount refreshes the account profile from its server and
	// stores the result.
	UpdateAccount(ctx context.Context, account *models.Account) (*models.Account, error)

	// GetUnreadSettings returns the streaming toggles of an account.
	GetUnreadSettings(ctx context.Context, accountID string) (models.UnreadSettings, error)

	// StartChannel opens the transport for channel on account.
	StartChannel(ctx context.Context, channel models.Channel, account *models.Account) error

	// StopChannel closes the transport for channel.
	StopChannel(ctx context.Context, channel models.Channel) error
}

// AccountStore is the account persistence Local needs.
type AccountStore interface {
	Get(ctx context.Context, id string) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
}

// SettingsStore is the unread settings persistence Local needs.
type SettingsStore interface {
	Get(ctx context.Context, accountID string) (models.UnreadSettings, error)
}

// ProfileSource fetches the profile behind an access token.
type ProfileSource interface {
	VerifyCredentials(ctx context.Context, account *models.Account) (*mastodon.Profile, error)
}

// Transport opens and closes streaming connections.
type Transport interface {
	Start(ctx context.Context, channel models.Channel, account *models.Account) error
	Stop(channel models.Channel)
}

// Local serves Backend requests in-process.
type Local struct {
	accounts AccountStore
	settings SettingsStore
	profiles ProfileSource
	streams  Transport
	logger   zerolog.Logger
}

// NewLocal creates a Local backend.
func NewLocal(accounts AccountStore, settings SettingsStore, profiles ProfileSource, streams Transport) *Local {
	return &Local{
		accounts: accounts,
		settings: settings,
		profiles: profiles,
		streams:  streams,
		logger:   logging.Component("rpc"),
	}
}

// GetLocalAccount implements Backend.
func (l *Local) GetLocalAccount(ctx context.Context, id string) (*models.Account, error) {
	if id == "" {
		return nil, models.ErrInvalidAccountID
	}
	account, err := l.accounts.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get local account %s: %w", id, err)
	}
	return account, nil
}

// UpdateAccount implements Backend.
func (l *Local) UpdateAccount(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account.IsBlank() {
		return nil, models.ErrAccountNotActive
	}
	profile, err := l.profiles.VerifyCredentials(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}

	updated := *account
	updated.Username = profile.Username
	if profile.ID != "" {
		updated.AccountID = &profile.ID
	}
	if profile.Avatar != "" {
		updated.Avatar = &profile.Avatar
	}
	if err := l.accounts.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("store account profile: %w", err)
	}

	l.logger.Debug().Str("account_id", updated.ID).Str("username", updated.Username).Msg("account profile refreshed")
	return &updated, nil
}

// GetUnreadSettings implements Backend. Accounts without stored settings get
// the defaults.
func (l *Local) GetUnreadSettings(ctx context.Context, accountID string) (models.UnreadSettings, error) {
	settings, err := l.settings.Get(ctx, accountID)
	if errors.Is(err, db.ErrSettingsNotFound) {
		return models.DefaultUnreadSettings(), nil
	}
	if err != nil {
		return models.UnreadSettings{}, fmt.Errorf("get unread settings: %w", err)
	}
	return settings, nil
}

// StartChannel implements Backend.
func (l *Local) StartChannel(ctx context.Context, channel models.Channel, account *models.Account) error {
	if err := l.streams.Start(ctx, channel, account); err != nil {
		return fmt.Errorf("start %s stream: %w", channel, err)
	}
	return nil
}

// StopChannel implements Backend.
func (l *Local) StopChannel(ctx context.Context, channel models.Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.streams.Stop(channel)
	return nil
}

// StartUserStreams opens the user channel of every stored account with a
// token, so notifications arrive for accounts that are not active.
func (l *Local) StartUserStreams(ctx context.Context) error {
	accounts, err := l.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	var errs []error
	started := 0
	for _, account := range accounts {
		if account.Token() == "" {
			l.logger.Debug().Str("account_id", account.ID).Msg("skipping account without token")
			continue
		}
		if err := l.streams.Start(ctx, models.ChannelUser, account); err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", account.ID, err))
			continue
		}
		started++
	}
	l.logger.Info().Int("started", started).Int("failed", len(errs)).Msg("user streams started")
	return errors.Join(errs...)
}

var _ Backend = (*Local)(nil)
