package stats

import "errors"

// Sentinel kinds for model contract violations.
var (
	// ErrPrecursorMissing marks a player-level operation attempted before
	// the owning battle exists. Handlers always ensure-battle first, so
	// seeing this is a programming error, not an event-data error.
	ErrPrecursorMissing = errors.New("battle record missing")

	// ErrNegativeAmount marks a damage mutation with a negative amount.
	ErrNegativeAmount = errors.New("negative damage amount")
)
