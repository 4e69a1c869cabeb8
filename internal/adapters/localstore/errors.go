package localstore

import "errors"

// Sentinel kinds for credential resolution.
var (
	// ErrNoAccessKey marks a missing remote store credential.
	ErrNoAccessKey = errors.New("access key not found")
)
