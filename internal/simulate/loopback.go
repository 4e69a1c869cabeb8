package simulate

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/UnderPressurePH7/platoon-widget/internal/syncer/wire"
)

// Loopback is an in-memory remote store standing in for both transports.
// Pushed payloads are stored as raw JSON and served back on pulls, so the
// full encode/normalize path (including envelope wrapping) gets exercised.
type Loopback struct {
	mu     sync.Mutex
	last   []byte
	pushes int
}

// NewLoopback returns an empty loopback store.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Connected always reports true.
func (l *Loopback) Connected() bool { return true }

// Push records the save body.
func (l *Loopback) Push(_ context.Context, body wire.SaveBody) {
	raw, err := json.Marshal(body)
	if err != nil {
		return
	}
	l.mu.Lock()
	l.last = raw
	l.pushes++
	l.mu.Unlock()
}

// PullSelf replays the last pushed body as a read payload.
func (l *Loopback) PullSelf(_ context.Context) (wire.ServerPayload, error) {
	l.mu.Lock()
	raw := l.last
	l.mu.Unlock()
	if raw == nil {
		return wire.ServerPayload{Success: true}, nil
	}
	payload, err := wire.DecodePayload(raw)
	if err != nil {
		return wire.ServerPayload{}, err
	}
	payload.Success = true
	return payload, nil
}

// PullPeers behaves like PullSelf; the loopback store has no peers.
func (l *Loopback) PullPeers(ctx context.Context) (wire.ServerPayload, error) {
	return l.PullSelf(ctx)
}

// Clear drops the stored payload.
func (l *Loopback) Clear(_ context.Context) error {
	l.mu.Lock()
	l.last = nil
	l.mu.Unlock()
	return nil
}

// Pushes returns how many saves the store accepted.
func (l *Loopback) Pushes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pushes
}
