package streaming

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/fedistream/internal/models"
)

func fastCoordinator(reg *Registry, attempts int) *Coordinator {
	return NewCoordinator(CoordinatorConfig{Interval: 5 * time.Millisecond, MaxAttempts: attempts}, reg)
}

func TestCoordinatorRebindReplacesPreviousAccount(t *testing.T) {
	sub := newFakeSubscriber()
	reg := NewRegistry(sub, func(Envelope) {})
	coord := fastCoordinator(reg, 10)
	ctx := context.Background()

	_, err := coord.Rebind(ctx, account("x"), []models.Channel{models.ChannelUser, models.ChannelLocal})
	require.NoError(t, err)

	result, err := coord.Rebind(ctx, account("y"), []models.Channel{models.ChannelUser})
	require.NoError(t, err)
	require.Equal(t, "y", result.AccountID)
	require.Equal(t, []string{"y"}, reg.LiveAccounts())
	require.Equal(t, 1, sub.SubscriberCount())
}

func TestCoordinatorWaitsForRelease(t *testing.T) {
	sub := newFakeSubscriber()
	reg := NewRegistry(sub, func(Envelope) {})
	coord := fastCoordinator(reg, 1000)
	ctx := context.Background()

	_, err := reg.Bind(ctx, account("x"), []models.Channel{models.ChannelUser})
	require.NoError(t, err)
	sub.holding.Store(true)

	done := make(chan error, 1)
	go func() {
		_, err := coord.Rebind(ctx, account("y"), []models.Channel{models.ChannelUser})
		done <- err
	}()

	require.Eventually(t, func() bool { return sub.holds.Load() >= 3 }, time.Second, time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("rebind finished while previous binding was open: %v", err)
	default:
	}

	sub.holding.Store(false)
	require.NoError(t, <-done)
	require.Equal(t, []string{"y"}, reg.LiveAccounts())
}

func TestCoordinatorTimesOut(t *testing.T) {
	sub := newFakeSubscriber()
	reg := NewRegistry(sub, func(Envelope) {})
	coord := fastCoordinator(reg, 3)
	ctx := context.Background()

	_, err := reg.Bind(ctx, account("x"), []models.Channel{models.ChannelUser})
	require.NoError(t, err)
	sub.holding.Store(true)

	_, err = coord.Rebind(ctx, account("y"), []models.Channel{models.ChannelUser})
	require.ErrorIs(t, err, ErrRebindTimeout)
	require.Equal(t, int32(3), sub.holds.Load())
	require.Equal(t, []string{"x"}, reg.LiveAccounts())
}

func TestCoordinatorNewerRebindSupersedes(t *testing.T) {
	sub := newFakeSubscriber()
	reg := NewRegistry(sub, func(Envelope) {})
	coord := fastCoordinator(reg, 10000)
	ctx := context.Background()

	_, err := reg.Bind(ctx, account("p"), []models.Channel{models.ChannelUser})
	require.NoError(t, err)
	sub.holding.Store(true)

	var wg sync.WaitGroup
	errA := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := coord.Rebind(ctx, account("a"), []models.Channel{models.ChannelUser})
		errA <- err
	}()
	require.Eventually(t, func() bool { return sub.holds.Load() >= 2 }, time.Second, time.Millisecond)

	errB := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := coord.Rebind(ctx, account("b"), []models.Channel{models.ChannelUser})
		errB <- err
	}()

	select {
	case err := <-errA:
		require.ErrorIs(t, err, ErrRebindSuperseded)
	case <-time.After(time.Second):
		t.Fatal("superseded rebind kept waiting")
	}

	sub.holding.Store(false)
	wg.Wait()
	require.NoError(t, <-errB)
	require.Equal(t, []string{"b"}, reg.LiveAccounts())
	require.True(t, reg.IsBound(models.ChannelUser))
}

func TestCoordinatorRapidSwitchesLastWins(t *testing.T) {
	sub := newFakeSubscriber()
	reg := NewRegistry(sub, func(Envelope) {})
	coord := fastCoordinator(reg, 100)
	ctx := context.Background()

	ids := []string{"a", "b", "c", "d", "e"}
	results := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, results[i] = coord.Rebind(ctx, account(id), []models.Channel{models.ChannelUser})
		}(i, id)
		time.Sleep(2 * time.Millisecond)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			require.ErrorIs(t, err, ErrRebindSuperseded, "rebind %s", ids[i])
		}
	}
	require.NoError(t, results[len(ids)-1])
	require.Equal(t, []string{"e"}, reg.LiveAccounts())
}

func TestCoordinatorCallerCancel(t *testing.T) {
	sub := newFakeSubscriber()
	reg := NewRegistry(sub, func(Envelope) {})
	coord := fastCoordinator(reg, 10000)

	_, err := reg.Bind(context.Background(), account("x"), []models.Channel{models.ChannelUser})
	require.NoError(t, err)
	sub.holding.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = coord.Rebind(ctx, account("y"), []models.Channel{models.ChannelUser})
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestCoordinatorRejectsBlankAccount(t *testing.T) {
	coord := fastCoordinator(NewRegistry(newFakeSubscriber(), func(Envelope) {}), 1)
	_, err := coord.Rebind(context.Background(), &models.Account{}, []models.Channel{models.ChannelUser})
	require.ErrorIs(t, err, models.ErrAccountNotActive)
}
