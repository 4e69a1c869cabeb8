package channel

import "errors"

// Sentinel kinds for transport selection errors.
var (
	// ErrNoConnectivity marks an operation skipped because no transport
	// was reachable.
	ErrNoConnectivity = errors.New("no transport reachable")
)
