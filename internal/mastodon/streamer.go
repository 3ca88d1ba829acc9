package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tOgg1/fedistream/internal/logging"
	"github.com/tOgg1/fedistream/internal/models"
)

// Publisher receives the events decoded from a stream.
type Publisher interface {
	Publish(ctx context.Context, event models.StreamEvent)
}

// StreamerConfig configures the websocket transport.
type StreamerConfig struct {
	// ReconnectInterval is the first pause after a dropped connection.
	// Default: 2s
	ReconnectInterval time.Duration

	// ReconnectMax caps the exponential backoff. Default: 1m
	ReconnectMax time.Duration

	// HandshakeTimeout bounds the websocket upgrade. Default: 15s
	HandshakeTimeout time.Duration
}

// DefaultStreamerConfig returns sensible defaults.
func DefaultStreamerConfig() StreamerConfig {
	return StreamerConfig{
		ReconnectInterval: 2 * time.Second,
		ReconnectMax:      time.Minute,
		HandshakeTimeout:  15 * time.Second,
	}
}

// Backoff returns the pause before reconnect attempt n (0-based), doubling
// from interval and capped at limit.
func Backoff(interval, limit time.Duration, attempt int) time.Duration {
	backoff := interval
	for i := 0; i < attempt && backoff < limit; i++ {
		backoff *= 2
	}
	return min(backoff, limit)
}

type streamKey struct {
	accountID string
	channel   models.Channel
}

type stream struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Streamer keeps one websocket per (account, channel) open and publishes its
// events until stopped.
type Streamer struct {
	config    StreamerConfig
	publisher Publisher
	dialer    *websocket.Dialer
	logger    zerolog.Logger

	mu      sync.Mutex
	streams map[streamKey]*stream
}

// NewStreamer creates a streamer publishing to publisher.
func NewStreamer(config StreamerConfig, publisher Publisher) *Streamer {
	defaults := DefaultStreamerConfig()
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = defaults.ReconnectInterval
	}
	if config.ReconnectMax < config.ReconnectInterval {
		config.ReconnectMax = max(defaults.ReconnectMax, config.ReconnectInterval)
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaults.HandshakeTimeout
	}
	return &Streamer{
		config:    config,
		publisher: publisher,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		logger:  logging.Component("streamer"),
		streams: make(map[streamKey]*stream),
	}
}

// Start opens channel for account in the background. Starting a running
// stream is a no-op. The stream outlives ctx only through its own context:
// cancelling ctx stops it like Stop does.
func (s *Streamer) Start(ctx context.Context, channel models.Channel, account *models.Account) error {
	if account.IsBlank() {
		return models.ErrAccountNotActive
	}
	if !channel.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidChannel, channel)
	}
	if account.Token() == "" {
		return models.ErrMissingAccessToken
	}
	endpoint, err := StreamURL(account.BaseURL, channel, account.Token())
	if err != nil {
		return err
	}

	key := streamKey{accountID: account.ID, channel: channel}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[key]; ok {
		return nil
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st := &stream{cancel: cancel, done: make(chan struct{})}
	s.streams[key] = st

	logger := logging.WithAccount(s.logger, account.ID).With().Str("channel", string(channel)).Logger()
	go func() {
		defer close(st.done)
		s.run(streamCtx, key, endpoint, logger)
	}()
	go func() {
		select {
		case <-ctx.Done():
			s.stopStream(key, st)
		case <-st.done:
		}
	}()
	return nil
}

// Stop closes every stream on channel and waits for them to exit.
func (s *Streamer) Stop(channel models.Channel) {
	s.stopMatching(func(k streamKey) bool { return k.channel == channel })
}

// StopAccount closes every stream of accountID.
func (s *Streamer) StopAccount(accountID string) {
	s.stopMatching(func(k streamKey) bool { return k.accountID == accountID })
}

// Close stops all streams.
func (s *Streamer) Close() {
	s.stopMatching(func(streamKey) bool { return true })
}

// Active reports whether a stream is running for accountID on channel.
func (s *Streamer) Active(accountID string, channel models.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.streams[streamKey{accountID: accountID, channel: channel}]
	return ok
}

func (s *Streamer) stopStream(key streamKey, st *stream) {
	s.mu.Lock()
	if s.streams[key] == st {
		delete(s.streams, key)
	}
	s.mu.Unlock()
	st.cancel()
	<-st.done
}

func (s *Streamer) stopMatching(match func(streamKey) bool) {
	s.mu.Lock()
	var stopping []*stream
	for key, st := range s.streams {
		if match(key) {
			st.cancel()
			stopping = append(stopping, st)
			delete(s.streams, key)
		}
	}
	s.mu.Unlock()

	for _, st := range stopping {
		<-st.done
	}
}

func (s *Streamer) run(ctx context.Context, key streamKey, endpoint string, logger zerolog.Logger) {
	for attempt := 0; ; attempt++ {
		connected, err := s.connect(ctx, key, endpoint, logger)
		if ctx.Err() != nil {
			logger.Debug().Msg("stream stopped")
			return
		}
		if connected {
			attempt = 0
		}

		wait := Backoff(s.config.ReconnectInterval, s.config.ReconnectMax, attempt)
		logger.Warn().Err(err).Dur("retry_in", wait).Msg("stream disconnected")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connect dials once and reads until the connection fails. It reports
// whether the handshake succeeded.
func (s *Streamer) connect(ctx context.Context, key streamKey, endpoint string, logger zerolog.Logger) (bool, error) {
	header := http.Header{}
	header.Set("User-Agent", userAgent)

	conn, resp, err := s.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dial %s: status %d: %w", logging.Redact(endpoint), resp.StatusCode, err)
		}
		return false, fmt.Errorf("dial %s: %w", logging.Redact(endpoint), err)
	}
	logger.Info().Msg("stream connected")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
	}()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		events, err := frame.Events(key.accountID, key.channel)
		if errors.Is(err, ErrUnsupportedFrame) {
			logger.Debug().Str("event", frame.Event).Msg("frame ignored")
			continue
		}
		if err != nil {
			logger.Warn().Err(err).Str("event", frame.Event).Msg("frame dropped")
			continue
		}
		for _, ev := range events {
			s.publisher.Publish(ctx, ev)
		}
	}
}

// StreamURL builds the websocket url for channel on baseURL.
func StreamURL(baseURL string, channel models.Channel, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidBaseURL, baseURL)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("%w: %q", models.ErrInvalidBaseURL, baseURL)
	}

	var name string
	switch channel {
	case models.ChannelUser:
		name = "user"
	case models.ChannelLocal:
		name = "public:local"
	case models.ChannelPublic:
		name = "public"
	case models.ChannelDirect:
		name = "direct"
	default:
		return "", fmt.Errorf("%w: %q", models.ErrInvalidChannel, channel)
	}

	u.Path += "/api/v1/streaming"
	q := url.Values{}
	q.Set("stream", name)
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Frame is one message of the streaming API. Payload is a JSON document
// encoded as a string, or the bare id for deletes.
type Frame struct {
	Stream  []string `json:"stream,omitempty"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
}

// ErrUnsupportedFrame marks frames the engine does not consume.
var ErrUnsupportedFrame = errors.New("unsupported stream event")

// Events converts the frame into stream events for accountID/channel.
func (f Frame) Events(accountID string, channel models.Channel) ([]models.StreamEvent, error) {
	now := time.Now().UTC()
	event := func(kind models.EventKind, payload json.RawMessage) models.StreamEvent {
		return models.StreamEvent{
			AccountID:  accountID,
			Channel:    channel,
			Kind:       kind,
			Payload:    payload,
			ReceivedAt: now,
		}
	}

	switch f.Event {
	case "update":
		return []models.StreamEvent{event(models.EventUpdate, json.RawMessage(f.Payload))}, nil

	case "status.update":
		return []models.StreamEvent{event(models.EventStatusUpdate, json.RawMessage(f.Payload))}, nil

	case "notification":
		payload := json.RawMessage(f.Payload)
		out := []models.StreamEvent{event(models.EventNotification, payload)}
		if models.NotificationType(payload) == "mention" {
			out = append(out, event(models.EventMention, payload))
		}
		return out, nil

	case "conversation":
		var conversation struct {
			LastStatus json.RawMessage `json:"last_status"`
		}
		if err := json.Unmarshal([]byte(f.Payload), &conversation); err != nil {
			return nil, fmt.Errorf("%w: conversation: %v", models.ErrMalformedPayload, err)
		}
		if len(conversation.LastStatus) == 0 || string(conversation.LastStatus) == "null" {
			return nil, nil
		}
		return []models.StreamEvent{event(models.EventUpdate, conversation.LastStatus)}, nil

	case "delete":
		id := strings.TrimSpace(f.Payload)
		if id == "" {
			return nil, fmt.Errorf("%w: delete: %v", models.ErrMalformedPayload, models.ErrMissingEntryID)
		}
		payload, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		return []models.StreamEvent{event(models.EventDelete, payload)}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFrame, f.Event)
}
