// Package channel delivers save and load operations to the remote store over
// whichever transport is available.
//
// The real-time request/acknowledge channel is the primary; a plain HTTP
// client is the fallback. A push races the real-time acknowledgment against
// a fixed fallback window, with a one-shot completion cell guaranteeing that
// exactly one completion path runs per push.
package channel

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/UnderPressurePH7/platoon-widget/internal/syncer/wire"
	"github.com/UnderPressurePH7/platoon-widget/pkg/logger"
	"github.com/UnderPressurePH7/platoon-widget/pkg/metrics"
)

// Operation names on the real-time channel.
const (
	OpGetStats             = "getStats"
	OpGetOtherPlayersStats = "getOtherPlayersStats"
	OpUpdateStats          = "updateStats"
	OpClearStats           = "clearStats"
)

const defaultFallbackWindow = 3 * time.Second

// Realtime is the request/acknowledge transport the channel prefers.
type Realtime interface {
	// Connected reports whether the channel is currently usable.
	Connected() bool

	// Send issues op and invokes ack exactly once when the server
	// acknowledges or the transport fails the call.
	Send(ctx context.Context, op string, payload any, ack func(wire.Response, error)) error

	// Request issues op and waits for the response.
	Request(ctx context.Context, op string, payload any) (wire.Response, error)
}

// Fallback is the request/response transport used when the real-time channel
// is unavailable or silent.
type Fallback interface {
	Save(ctx context.Context, body wire.SaveBody) error
	Load(ctx context.Context) (wire.ServerPayload, error)
	LoadPeers(ctx context.Context) (wire.ServerPayload, error)
}

// Channel is the dual-transport store client.
type Channel struct {
	rt     Realtime
	rest   Fallback
	window time.Duration
	log    logger.Logger
}

// Option applies a configuration option to the Channel.
type Option func(*Channel)

// WithFallbackWindow sets how long a push waits for the real-time
// acknowledgment before the fallback transport performs the save.
func WithFallbackWindow(window time.Duration) Option {
	return func(c *Channel) {
		if window > 0 {
			c.window = window
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Channel) {
		if log != nil {
			c.log = log
		}
	}
}

// New constructs a channel over the two transports.
func New(rt Realtime, rest Fallback, opts ...Option) *Channel {
	c := &Channel{
		rt:     rt,
		rest:   rest,
		window: defaultFallbackWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Named("channel")
	}
	return c
}

// Connected reports real-time availability.
func (c *Channel) Connected() bool {
	return c.rt != nil && c.rt.Connected()
}

// completion is the single-assignment cell the push race claims. The first
// writer wins; the loser observes the cell already claimed and discards its
// own result.
type completion struct {
	claimed atomic.Bool
}

func (c *completion) claim() bool {
	return c.claimed.CompareAndSwap(false, true)
}

// Push writes a snapshot to the store. With the real-time channel connected
// it sends there and arms the fallback timer; a successful acknowledgment
// inside the window claims the completion and suppresses the fallback, while
// a silent or rejecting channel leaves the window to expire and the fallback
// performs the same logical save once. A late acknowledgment after the
// fallback has claimed is a no-op. Without the real-time channel the
// fallback is used directly, no race.
//
// No retry beyond the described failover: callers must not assume eventual
// delivery of a single Push.
func (c *Channel) Push(ctx context.Context, body wire.SaveBody) {
	if !c.Connected() {
		c.pushFallback(ctx, body)
		return
	}

	cell := &completion{}
	timer := time.AfterFunc(c.window, func() {
		if !cell.claim() {
			return
		}
		c.pushFallback(ctx, body)
	})

	err := c.rt.Send(ctx, OpUpdateStats, body, func(resp wire.Response, err error) {
		if err != nil {
			// Transport failure: the armed fallback timer takes over.
			c.log.Warn(ctx, "realtime save failed", logger.Error(err))
			return
		}
		if resp.Status != wire.StatusAccepted {
			// Rejected saves log and yield to the fallback timer.
			c.log.Warn(ctx, "realtime save rejected", logger.Int("status", resp.Status))
			metrics.RecordRemoteError("realtime")
			return
		}
		if !cell.claim() {
			metrics.RecordLateAckDiscarded()
			return
		}
		timer.Stop()
		metrics.RecordPush("realtime")
	})
	if err != nil {
		// Send never went out; run the fallback now instead of waiting
		// out the window.
		c.log.Warn(ctx, "realtime send failed", logger.Error(err))
		timer.Stop()
		if cell.claim() {
			c.pushFallback(ctx, body)
		}
	}
}

func (c *Channel) pushFallback(ctx context.Context, body wire.SaveBody) {
	if c.rest == nil {
		c.log.Error(ctx, "no transport available for save")
		metrics.RecordRemoteError("none")
		return
	}
	if err := c.rest.Save(ctx, body); err != nil {
		c.log.Error(ctx, "fallback save failed", logger.Error(err))
		metrics.RecordRemoteError("fallback")
		return
	}
	metrics.RecordPush("fallback")
}

// PullSelf reads the caller's own stats. Unlike Push there is no race: reads
// are not duplication-sensitive, so one path is chosen by availability at
// call time.
func (c *Channel) PullSelf(ctx context.Context) (wire.ServerPayload, error) {
	return c.pull(ctx, OpGetStats)
}

// PullPeers reads peer stats scoped to the current player.
func (c *Channel) PullPeers(ctx context.Context) (wire.ServerPayload, error) {
	return c.pull(ctx, OpGetOtherPlayersStats)
}

func (c *Channel) pull(ctx context.Context, op string) (wire.ServerPayload, error) {
	if c.Connected() {
		resp, err := c.rt.Request(ctx, op, nil)
		if err != nil {
			metrics.RecordRemoteError("realtime")
			return wire.ServerPayload{}, err
		}
		if resp.Status != wire.StatusOK {
			metrics.RecordRemoteError("realtime")
			return wire.ServerPayload{}, wire.ErrRemoteRejected
		}
		metrics.RecordPull("realtime")
		return wire.DecodePayload(resp.Body)
	}

	if c.rest == nil {
		return wire.ServerPayload{}, ErrNoConnectivity
	}
	var (
		payload wire.ServerPayload
		err     error
	)
	if op == OpGetOtherPlayersStats {
		payload, err = c.rest.LoadPeers(ctx)
	} else {
		payload, err = c.rest.Load(ctx)
	}
	if err != nil {
		metrics.RecordRemoteError("fallback")
		return wire.ServerPayload{}, err
	}
	metrics.RecordPull("fallback")
	return payload, nil
}

// Clear asks the store to drop all data under the access key. Real-time
// only: without connectivity the operation reports ErrNoConnectivity and
// does nothing.
func (c *Channel) Clear(ctx context.Context) error {
	if !c.Connected() {
		return ErrNoConnectivity
	}
	resp, err := c.rt.Request(ctx, OpClearStats, nil)
	if err != nil {
		metrics.RecordRemoteError("realtime")
		return err
	}
	if resp.Status != wire.StatusOK {
		metrics.RecordRemoteError("realtime")
		return wire.ErrRemoteRejected
	}
	return nil
}
