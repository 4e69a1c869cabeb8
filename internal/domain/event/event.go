// Package event defines the inbound game-state events the engine consumes.
//
// Feedback kinds form a closed set so that handler dispatch is an
// exhaustive switch rather than a runtime lookup on type strings.
package event

// FeedbackKind enumerates the per-event battle feedback variants.
type FeedbackKind int

// Feedback variants.
const (
	FeedbackDamage FeedbackKind = iota
	FeedbackKill
	FeedbackRadioAssist
	FeedbackTrackAssist
	FeedbackTanking
	FeedbackReceivedDamage
	FeedbackTargetVisibility
	FeedbackDetected
	FeedbackSpotted
)

// String returns the wire name of the feedback kind.
func (k FeedbackKind) String() string {
	switch k {
	case FeedbackDamage:
		return "damage"
	case FeedbackKill:
		return "kill"
	case FeedbackRadioAssist:
		return "radioAssist"
	case FeedbackTrackAssist:
		return "trackAssist"
	case FeedbackTanking:
		return "tanking"
	case FeedbackReceivedDamage:
		return "receivedDamage"
	case FeedbackTargetVisibility:
		return "targetVisibility"
	case FeedbackDetected:
		return "detected"
	case FeedbackSpotted:
		return "spotted"
	default:
		return "unknown"
	}
}

// Feedback is a single battle feedback event for the current player.
type Feedback struct {
	Kind   FeedbackKind
	Damage int // populated for FeedbackDamage only
}

// Arena announces the start of a battle session with its metadata.
type Arena struct {
	ArenaID    string
	MapName    string
	PlayerName string // current player's display name as observed by the client
}

// Identity carries the locally observed player identity, delivered when the
// client returns to a shared area (the hangar).
type Identity struct {
	PlayerID   string
	PlayerName string
}

// ResultVehicle is one per-vehicle row of a battle result bundle.
type ResultVehicle struct {
	AccountID   string `json:"accountDBID"`
	DamageDealt int    `json:"damageDealt"`
	Kills       int    `json:"kills"`
}

// ResultPlayer is one per-player row of a battle result bundle.
type ResultPlayer struct {
	Team int `json:"team"`
}

// BattleResult is the definitive end-of-session payload. Arena and player
// identity are resolved from the payload itself, never from the session
// cursor, because results may arrive after the cursor has moved on.
type BattleResult struct {
	ArenaID    string                     `json:"arenaUniqueID"`
	AccountID  string                     `json:"accountDBID"` // from the personal avatar block
	Duration   int                        `json:"duration"`
	WinnerTeam int                        `json:"winnerTeam"` // 0 marks a draw
	Players    map[string]ResultPlayer    `json:"players"`
	Vehicles   map[string][]ResultVehicle `json:"vehicles"`
}
