package rpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/fedistream/internal/db"
	"github.com/tOgg1/fedistream/internal/mastodon"
	"github.com/tOgg1/fedistream/internal/models"
	"github.com/tOgg1/fedistream/internal/testutil"
)

type fakeTransport struct {
	mu      sync.Mutex
	started map[string][]models.Channel
	stopped []models.Channel
	fail    error
}

func (f *fakeTransport) Start(_ context.Context, channel models.Channel, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	if f.started == nil {
		f.started = make(map[string][]models.Channel)
	}
	f.started[account.ID] = append(f.started[account.ID], channel)
	return nil
}

func (f *fakeTransport) Stop(channel models.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, channel)
}

type fixture struct {
	backend   *Local
	accounts  *db.AccountRepository
	settings  *db.UnreadSettingsRepository
	transport *fakeTransport
	server    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	testutil.SkipIfNoNetwork(t)

	database, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	_, err = database.MigrateUp(context.Background())
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"4242","username":"dana","acct":"dana","avatar":"https://x/d.png"}`))
	}))
	t.Cleanup(server.Close)

	f := &fixture{
		accounts:  db.NewAccountRepository(database),
		settings:  db.NewUnreadSettingsRepository(database),
		transport: &fakeTransport{},
		server:    server,
	}
	f.backend = NewLocal(f.accounts, f.settings, mastodon.NewClient(mastodon.ClientConfig{}), f.transport)
	return f
}

func (f *fixture) addAccount(t *testing.T, token string) *models.Account {
	t.Helper()
	account := &models.Account{BaseURL: f.server.URL}
	if token != "" {
		account.AccessToken = &token
	}
	require.NoError(t, f.accounts.Create(context.Background(), account))
	return account
}

func TestGetLocalAccount(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "good")

	got, err := f.backend.GetLocalAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, account.ID, got.ID)

	_, err = f.backend.GetLocalAccount(context.Background(), "missing")
	require.ErrorIs(t, err, db.ErrAccountNotFound)
	_, err = f.backend.GetLocalAccount(context.Background(), "")
	require.ErrorIs(t, err, models.ErrInvalidAccountID)
}

func TestUpdateAccountFillsProfile(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "good")
	require.True(t, account.NeedsProfile())

	updated, err := f.backend.UpdateAccount(context.Background(), account)
	require.NoError(t, err)
	require.Equal(t, "dana", updated.Username)
	require.Equal(t, "4242", *updated.AccountID)

	stored, err := f.accounts.Get(context.Background(), account.ID)
	require.NoError(t, err)
	require.False(t, stored.NeedsProfile())
	require.Equal(t, "https://x/d.png", *stored.Avatar)
}

func TestUpdateAccountRejectedToken(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "revoked")

	_, err := f.backend.UpdateAccount(context.Background(), account)
	require.True(t, mastodon.IsUnauthorized(err))
}

func TestGetUnreadSettingsDefaults(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "good")
	ctx := context.Background()

	settings, err := f.backend.GetUnreadSettings(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, models.DefaultUnreadSettings(), settings)

	stored := models.UnreadSettings{Direct: true, Public: true}
	require.NoError(t, f.settings.Upsert(ctx, account.ID, stored))
	settings, err = f.backend.GetUnreadSettings(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, stored, settings)
}

func TestStartAndStopChannel(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "good")
	ctx := context.Background()

	require.NoError(t, f.backend.StartChannel(ctx, models.ChannelLocal, account))
	require.NoError(t, f.backend.StopChannel(ctx, models.ChannelLocal))
	require.Equal(t, []models.Channel{models.ChannelLocal}, f.transport.started[account.ID])
	require.Equal(t, []models.Channel{models.ChannelLocal}, f.transport.stopped)

	f.transport.fail = errors.New("refused")
	require.ErrorContains(t, f.backend.StartChannel(ctx, models.ChannelPublic, account), "refused")
}

func TestStartUserStreams(t *testing.T) {
	f := newFixture(t)
	withToken := f.addAccount(t, "good")
	f.addAccount(t, "")

	require.NoError(t, f.backend.StartUserStreams(context.Background()))
	require.Len(t, f.transport.started, 1)
	require.Equal(t, []models.Channel{models.ChannelUser}, f.transport.started[withToken.ID])
}
