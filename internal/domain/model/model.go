// Package model contains domain models passed between layers.
package model

// Scoring constants shared with the remote store.
const (
	PointsPerDamage  = 1
	PointsPerFrag    = 300
	PointsPerTeamWin = 1000
)

// Display sentinels used until authoritative metadata arrives.
const (
	UnknownMap     = "Unknown Map"
	UnknownPlayer  = "Unknown Player"
	UnknownVehicle = "Unknown Vehicle"
)

// Outcome is the battle result as encoded on the wire.
type Outcome int

// Wire values for Outcome.
const (
	OutcomeUnknown Outcome = -1
	OutcomeLoss    Outcome = 0
	OutcomeWin     Outcome = 1
	OutcomeDraw    Outcome = 2
)

// Known reports whether the outcome has been decided.
func (o Outcome) Known() bool {
	return o != OutcomeUnknown
}

// PlayerStat accumulates one player's contribution within a single battle.
type PlayerStat struct {
	Name    string `json:"name"`
	Damage  int    `json:"damage"`
	Kills   int    `json:"kills"`
	Points  int    `json:"points"`
	Vehicle string `json:"vehicle"`
}

// Battle is one played arena session, keyed externally by its arena id.
type Battle struct {
	StartTime int64                  `json:"startTime"` // unix milliseconds, set once
	Duration  int                    `json:"duration"`  // seconds, 0 until the result is known
	Win       Outcome                `json:"win"`
	MapName   string                 `json:"mapName"`
	Players   map[string]*PlayerStat `json:"players"`
}

// Clone returns a deep copy of the battle.
func (b *Battle) Clone() *Battle {
	cp := *b
	cp.Players = make(map[string]*PlayerStat, len(b.Players))
	for id, p := range b.Players {
		pc := *p
		cp.Players[id] = &pc
	}
	return &cp
}

// Snapshot is a full BattleStats+PlayersInfo state, the unit of
// last-writer-wins replacement against the remote store.
type Snapshot struct {
	// Order lists arena ids in a deterministic iteration order:
	// insertion order for locally built snapshots, sorted keys for
	// snapshots normalized from a remote payload.
	Order   []string
	Battles map[string]*Battle
	Players map[string]string // player id -> display name
}
