// Package mastodon talks to Mastodon-compatible servers: the REST endpoints
// the timeline space needs and the websocket streaming API.
package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tOgg1/fedistream/internal/logging"
	"github.com/tOgg1/fedistream/internal/models"
)

const userAgent = "fedistream/1.0"

// ClientConfig configures the REST client.
type ClientConfig struct {
	// Timeout bounds a whole request. Default: 30s
	Timeout time.Duration

	// RequestsPerSecond and Burst shape the shared rate limiter.
	RequestsPerSecond float64
	Burst             int
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             10,
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status int
	URL    string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s: %s", logging.Redact(e.URL), e.Status, http.StatusText(e.Status), e.Body)
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Profile is the subset of a verify_credentials response stored locally.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
	Avatar   string `json:"avatar"`
}

// Client is a rate limited REST client shared by every account.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient creates a client.
func NewClient(cfg ClientConfig) *Client {
	defaults := DefaultClientConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}

	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &Client{
		http:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logging.Component("mastodon"),
	}
}

// Instance fetches the server description.
func (c *Client) Instance(ctx context.Context, baseURL string) (*models.Instance, error) {
	var instance models.Instance
	if err := c.get(ctx, baseURL, "/api/v1/instance", nil, "", &instance); err != nil {
		return nil, err
	}
	return &instance, nil
}

// CustomEmojis lists the server's custom emojis.
func (c *Client) CustomEmojis(ctx context.Context, baseURL string) ([]models.Emoji, error) {
	var emojis []models.Emoji
	if err := c.get(ctx, baseURL, "/api/v1/custom_emojis", nil, "", &emojis); err != nil {
		return nil, err
	}
	return emojis, nil
}

// VerifyCredentials returns the profile of the account's token owner.
func (c *Client) VerifyCredentials(ctx context.Context, account *models.Account) (*Profile, error) {
	token := account.Token()
	if token == "" {
		return nil, models.ErrMissingAccessToken
	}
	var profile Profile
	if err := c.get(ctx, account.BaseURL, "/api/v1/accounts/verify_credentials", nil, token, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

type timelineEndpoint struct {
	path   string
	query  url.Values
	decode func(json.RawMessage) (models.Entry, error)
}

func endpointFor(view models.View) (timelineEndpoint, error) {
	switch view {
	case models.ViewHome:
		return timelineEndpoint{path: "/api/v1/timelines/home", decode: models.DecodeStatus}, nil
	case models.ViewNotifications:
		return timelineEndpoint{path: "/api/v1/notifications", decode: models.DecodeNotification}, nil
	case models.ViewMentions:
		return timelineEndpoint{
			path:   "/api/v1/notifications",
			query:  url.Values{"types[]": {"mention"}},
			decode: models.DecodeNotification,
		}, nil
	case models.ViewDirect:
		return timelineEndpoint{path: "/api/v1/conversations", decode: decodeConversation}, nil
	case models.ViewLocal:
		return timelineEndpoint{
			path:   "/api/v1/timelines/public",
			query:  url.Values{"local": {"true"}},
			decode: models.DecodeStatus,
		}, nil
	case models.ViewPublic:
		return timelineEndpoint{path: "/api/v1/timelines/public", decode: models.DecodeStatus}, nil
	}
	return timelineEndpoint{}, fmt.Errorf("%w: %q", models.ErrInvalidView, view)
}

// Timeline fetches the newest entries of view, newest first.
func (c *Client) Timeline(ctx context.Context, account *models.Account, view models.View, limit int) ([]models.Entry, error) {
	endpoint, err := endpointFor(view)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	for k, v := range endpoint.query {
		query[k] = v
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var raw []json.RawMessage
	if err := c.get(ctx, account.BaseURL, endpoint.path, query, account.Token(), &raw); err != nil {
		return nil, err
	}

	entries := make([]models.Entry, 0, len(raw))
	for _, item := range raw {
		entry, err := endpoint.decode(item)
		if err != nil {
			if errors.Is(err, errNoLastStatus) {
				continue
			}
			return nil, fmt.Errorf("%s timeline: %w", view, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var errNoLastStatus = errors.New("conversation has no last status")

func decodeConversation(raw json.RawMessage) (models.Entry, error) {
	var conversation struct {
		LastStatus json.RawMessage `json:"last_status"`
	}
	if err := json.Unmarshal(raw, &conversation); err != nil {
		return models.Entry{}, fmt.Errorf("%w: conversation: %v", models.ErrMalformedPayload, err)
	}
	if len(conversation.LastStatus) == 0 || string(conversation.LastStatus) == "null" {
		return models.Entry{}, errNoLastStatus
	}
	return models.DecodeStatus(conversation.LastStatus)
}

func (c *Client) get(ctx context.Context, baseURL, path string, query url.Values, token string, out any) error {
	endpoint, err := resolve(baseURL, path, query)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", logging.Redact(endpoint), err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("url", logging.Redact(endpoint)).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, URL: endpoint, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func resolve(baseURL, path string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidBaseURL, baseURL)
	}
	u.Path += path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}
