package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/fedistream/internal/db"
	"github.com/tOgg1/fedistream/internal/events"
	"github.com/tOgg1/fedistream/internal/logging"
	"github.com/tOgg1/fedistream/internal/mastodon"
	"github.com/tOgg1/fedistream/internal/models"
	"github.com/tOgg1/fedistream/internal/rpc"
	"github.com/tOgg1/fedistream/internal/space"
)

var (
	streamSwitchTo    string
	streamSwitchAfter time.Duration
	streamReport      time.Duration
	streamDuration    time.Duration
)

func init() {
	rootCmd.AddCommand(streamCmd)

	streamCmd.Flags().StringVar(&streamSwitchTo, "switch-to", "", "switch to this account after --switch-after")
	streamCmd.Flags().DurationVar(&streamSwitchAfter, "switch-after", 30*time.Second, "delay before --switch-to takes effect")
	streamCmd.Flags().DurationVar(&streamReport, "report", 15*time.Second, "interval between status reports (0 disables)")
	streamCmd.Flags().DurationVar(&streamDuration, "duration", 0, "stop after this long (0 runs until interrupted)")
}

var streamCmd = &cobra.Command{
	Use:   "stream [account]",
	Short: "Stream an account's timelines",
	Long: `Activate an account, backfill its timelines and keep them current from
the streaming API until interrupted. The user channel of every stored account
is opened; the local, public and direct channels follow the account settings.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStream,
}

func runStream(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if streamDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, streamDuration)
		defer cancel()
	}
	logger := logging.Component("stream")

	database, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	accounts := db.NewAccountRepository(database)
	first, err := resolveAccount(ctx, accounts, contextStore(), firstArg(args))
	if err != nil {
		return err
	}
	var next *models.Account
	if streamSwitchTo != "" {
		if next, err = findAccount(ctx, accounts, streamSwitchTo); err != nil {
			return err
		}
	}

	bus := events.NewInMemoryBus()
	client := mastodon.NewClient(clientConfig())
	streamer := mastodon.NewStreamer(mastodon.StreamerConfig{
		ReconnectInterval: appConfig.Streaming.ReconnectInterval,
		ReconnectMax:      appConfig.Streaming.ReconnectMax,
	}, bus)
	defer streamer.Close()

	backend := rpc.NewLocal(accounts, db.NewUnreadSettingsRepository(database), client, streamer)
	sp := space.New(space.FromConfig(appConfig), backend, client, bus)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sp.Run(gctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := backend.StartUserStreams(gctx); err != nil {
			logger.Warn().Err(err).Msg("some user streams did not start")
		}
		if err := activate(gctx, sp, first); err != nil {
			return err
		}
		if next != nil {
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(streamSwitchAfter):
			}
			if err := activate(gctx, sp, next); err != nil {
				return err
			}
		}
		return reportLoop(gctx, sp)
	})

	err = g.Wait()
	printErr := printStreamSummary(cmd.OutOrStdout(), sp)

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sp.StopStreamings(shutdown); err != nil {
		logger.Debug().Err(err).Msg("stopping streams")
	}
	if err := sp.UnbindStreamings(shutdown); err != nil {
		logger.Debug().Err(err).Msg("releasing bindings")
	}
	return errors.Join(err, printErr)
}

func activate(ctx context.Context, sp *space.Space, acct *models.Account) error {
	logger := logging.WithAccount(logging.Component("stream"), acct.ID)

	active, err := sp.Activate(ctx, acct.ID)
	var fetchErr *space.TimelineFetchError
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil
	case errors.As(err, &fetchErr):
		logger.Warn().Err(err).Str("view", string(fetchErr.View)).Msg("backfill incomplete, streaming anyway")
		if _, prepErr := sp.PrepareSpace(ctx); prepErr != nil {
			return fmt.Errorf("bind streams for %s: %w", accountLabel(acct), prepErr)
		}
	default:
		return fmt.Errorf("activate %s: %w", accountLabel(acct), err)
	}
	if active == nil {
		active = acct
	}

	for channel, failure := range sp.Degraded() {
		logger.Warn().Err(failure).Str("channel", string(channel)).Msg("channel unavailable")
	}
	logger.Info().
		Str("account", accountLabel(active)).
		Int("toot_max", sp.TootMax()).
		Bool("pleroma", sp.Pleroma()).
		Msg("streaming")
	return nil
}

func reportLoop(ctx context.Context, sp *space.Space) error {
	if streamReport <= 0 {
		<-ctx.Done()
		return nil
	}
	logger := logging.Component("stream")
	ticker := time.NewTicker(streamReport)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := sp.Stats()
			event := logger.Info().
				Uint64("dispatched", stats.Dispatched).
				Uint64("dropped", stats.Dropped).
				Uint64("failed", stats.Failed)
			for _, view := range models.AllViews() {
				event = event.Int(string(view), sp.Buffer(view).Len())
			}
			event.Msg("timeline status")
		}
	}
}

type viewSummary struct {
	View    models.View `json:"view"`
	Entries int         `json:"entries"`
	Unread  bool        `json:"unread"`
	Heading bool        `json:"heading"`
}

func printStreamSummary(out io.Writer, sp *space.Space) error {
	unread := sp.Unread()
	summary := make([]viewSummary, 0, len(models.AllViews()))
	for _, view := range models.AllViews() {
		buf := sp.Buffer(view)
		summary = append(summary, viewSummary{View: view, Entries: buf.Len(), Unread: unread[view], Heading: buf.Heading()})
	}

	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(out, summary)
	}
	rows := make([][]string, 0, len(summary))
	for _, s := range summary {
		rows = append(rows, []string{string(s.View), strconv.Itoa(s.Entries), formatYesNo(s.Unread)})
	}
	stats := sp.Stats()
	if err := writeTable(out, []string{"VIEW", "ENTRIES", "UNREAD"}, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "events: %d dispatched, %d dropped, %d failed\n", stats.Dispatched, stats.Dropped, stats.Failed)
	return err
}
