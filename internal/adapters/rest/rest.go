// Package rest implements the HTTP fallback transport of the remote store:
// a single-endpoint read/write pair plus a peer-scoped read variant.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/UnderPressurePH7/platoon-widget/internal/syncer/wire"
	"github.com/UnderPressurePH7/platoon-widget/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// Client talks to the fallback endpoint. The access key addresses the data
// set; the caller's current player id travels as request metadata.
type Client struct {
	baseURL  string
	key      string
	playerID func() string
	http     *http.Client
	log      logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithTimeout bounds individual requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client, for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New constructs a fallback client. playerID is consulted per request so the
// header always carries the current identity.
func New(baseURL, key string, playerID func() string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		key:      key,
		playerID: playerID,
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Named("rest")
	}
	return c
}

// Save posts the full save body under the access key.
func (c *Client) Save(ctx context.Context, body wire.SaveBody) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode save body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.key, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	c.decorate(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("save request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", wire.ErrRemoteRejected, resp.StatusCode)
	}
	c.log.Debug(ctx, "saved to remote store",
		logger.Int("bytes", len(raw)),
		logger.Int("battles", len(body.BattleStats)),
	)
	return nil
}

// Load fetches the caller's own stats.
func (c *Client) Load(ctx context.Context) (wire.ServerPayload, error) {
	return c.get(ctx, c.baseURL+c.key)
}

// LoadPeers fetches stats scoped to the caller's peers.
func (c *Client) LoadPeers(ctx context.Context) (wire.ServerPayload, error) {
	return c.get(ctx, c.baseURL+"pid/"+c.key)
}

func (c *Client) get(ctx context.Context, url string) (wire.ServerPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return wire.ServerPayload{}, err
	}
	c.decorate(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return wire.ServerPayload{}, fmt.Errorf("load request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return wire.ServerPayload{}, fmt.Errorf("%w: status %d", wire.ErrRemoteRejected, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return wire.ServerPayload{}, fmt.Errorf("read body: %w", err)
	}
	payload, err := wire.DecodePayload(raw)
	if err != nil {
		return wire.ServerPayload{}, err
	}
	// REST bodies arrive unenveloped; a 2xx read counts as success.
	payload.Success = true
	return payload, nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.playerID != nil {
		if id := c.playerID(); id != "" {
			req.Header.Set("X-Player-ID", id)
		}
	}
}
