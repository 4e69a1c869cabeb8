package wire

import "errors"

// Sentinel kinds for protocol errors.
var (
	// ErrRemoteRejected marks a non-success status from either transport.
	ErrRemoteRejected = errors.New("remote store rejected request")

	// ErrMalformedPayload marks a payload missing its expected shape.
	ErrMalformedPayload = errors.New("malformed payload")
)
