package realtime

import "errors"

// Sentinel kinds for session state.
var (
	// ErrNotConnected marks a call attempted without a live session.
	ErrNotConnected = errors.New("realtime channel not connected")
)
