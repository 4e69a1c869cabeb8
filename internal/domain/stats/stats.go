// Package stats holds the authoritative in-memory statistics model.
//
// The model performs no I/O and carries no locking of its own: every public
// operation must be serialized by the owning engine (single-writer
// discipline). Mutations are synchronous and side-effect-free beyond the
// model itself.
package stats

import (
	"fmt"
	"time"

	"github.com/UnderPressurePH7/platoon-widget/internal/domain/model"
)

// Cursor tracks "where we are now" in the session. It gates which battle and
// player record subsequent event-driven mutations apply to.
type Cursor struct {
	PlayerID   string
	ArenaID    string
	Vehicle    string
	InPlatoon  bool
	InBattle   bool
	LastUpdate int64 // unix milliseconds
}

// Model owns the BattleStats and PlayersInfo maps plus the session cursor.
type Model struct {
	battles map[string]*model.Battle
	order   []string // arena ids in insertion order
	players map[string]string
	cursor  Cursor

	now func() int64
}

// Option applies a configuration option to the Model.
type Option func(*Model)

// WithClock overrides the millisecond clock, for tests.
func WithClock(now func() int64) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// New constructs an empty model with the given observed player identity.
func New(playerID string, opts ...Option) *Model {
	m := &Model{
		battles: make(map[string]*model.Battle),
		players: make(map[string]string),
		cursor:  Cursor{PlayerID: playerID},
		now:     func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore constructs a model from a persisted snapshot and cursor.
func Restore(snap model.Snapshot, cursor Cursor, opts ...Option) *Model {
	m := New(cursor.PlayerID, opts...)
	m.cursor = cursor
	m.MergeSnapshot(snap)
	return m
}

// Cursor returns the current session cursor.
func (m *Model) Cursor() Cursor { return m.cursor }

// SetCursor replaces the session cursor wholesale.
func (m *Model) SetCursor(c Cursor) { m.cursor = c }

// UpdateCursor applies a partial cursor mutation.
func (m *Model) UpdateCursor(fn func(*Cursor)) { fn(&m.cursor) }

// EnsureBattle creates the battle record for arenaID if absent. Idempotent:
// later calls return the existing record untouched.
func (m *Model) EnsureBattle(arenaID string) *model.Battle {
	if b, ok := m.battles[arenaID]; ok {
		return b
	}
	b := &model.Battle{
		StartTime: m.now(),
		Duration:  0,
		Win:       model.OutcomeUnknown,
		MapName:   model.UnknownMap,
		Players:   make(map[string]*model.PlayerStat),
	}
	m.battles[arenaID] = b
	m.order = append(m.order, arenaID)
	return b
}

// EnsurePlayer creates the player record within an existing battle if absent.
// The owning battle must already exist; callers always ensure-battle first.
func (m *Model) EnsurePlayer(arenaID, playerID string) (*model.PlayerStat, error) {
	b, ok := m.battles[arenaID]
	if !ok {
		return nil, fmt.Errorf("%w: arena %s", ErrPrecursorMissing, arenaID)
	}
	if p, ok := b.Players[playerID]; ok {
		return p, nil
	}
	name := m.players[playerID]
	if name == "" {
		name = model.UnknownPlayer
	}
	vehicle := m.cursor.Vehicle
	if vehicle == "" {
		vehicle = model.UnknownVehicle
	}
	p := &model.PlayerStat{
		Name:    name,
		Vehicle: vehicle,
	}
	b.Players[playerID] = p
	return p, nil
}

// ApplyDamage accumulates damage and the matching point contribution.
func (m *Model) ApplyDamage(arenaID, playerID string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAmount, amount)
	}
	p, err := m.EnsurePlayer(arenaID, playerID)
	if err != nil {
		return err
	}
	p.Damage += amount
	p.Points += amount * model.PointsPerDamage
	return nil
}

// ApplyKill increments the kill count and the frag point bonus.
func (m *Model) ApplyKill(arenaID, playerID string) error {
	p, err := m.EnsurePlayer(arenaID, playerID)
	if err != nil {
		return err
	}
	p.Kills++
	p.Points += model.PointsPerFrag
	return nil
}

// ReplaceBattleResult overwrites a player's accumulated stats with the
// authoritative end-of-battle values. Points are rederived from the supplied
// damage and kills, never stacked on top of the locally accumulated total.
// Win only moves forward in information content: an unknown outcome in the
// result never clears an already known one.
func (m *Model) ReplaceBattleResult(arenaID, playerID string, damage, kills int, win model.Outcome, duration int) error {
	b, ok := m.battles[arenaID]
	if !ok {
		return fmt.Errorf("%w: arena %s", ErrPrecursorMissing, arenaID)
	}
	p, err := m.EnsurePlayer(arenaID, playerID)
	if err != nil {
		return err
	}
	p.Damage = damage
	p.Kills = kills
	p.Points = damage*model.PointsPerDamage + kills*model.PointsPerFrag
	if win.Known() {
		b.Win = win
	}
	if duration >= 0 {
		b.Duration = duration
	}
	return nil
}

// SetBattleOutcome records the authoritative outcome and duration when the
// result carried no per-vehicle stats for the player. Win stays forward-only.
func (m *Model) SetBattleOutcome(arenaID string, win model.Outcome, duration int) error {
	b, ok := m.battles[arenaID]
	if !ok {
		return fmt.Errorf("%w: arena %s", ErrPrecursorMissing, arenaID)
	}
	if win.Known() {
		b.Win = win
	}
	if duration >= 0 {
		b.Duration = duration
	}
	return nil
}

// MergeSnapshot replaces the BattleStats and PlayersInfo maps with the
// normalized remote payload. Full overwrite, not a per-field merge: the
// remote store is the last-writer-wins source of truth across devices.
func (m *Model) MergeSnapshot(snap model.Snapshot) {
	m.battles = make(map[string]*model.Battle, len(snap.Battles))
	m.order = make([]string, 0, len(snap.Battles))
	for _, arenaID := range snap.Order {
		b, ok := snap.Battles[arenaID]
		if !ok || b == nil {
			// A corrupted state file can carry a JSON null battle;
			// dropping the entry beats refusing the whole snapshot.
			continue
		}
		m.battles[arenaID] = b.Clone()
		m.order = append(m.order, arenaID)
	}
	m.players = make(map[string]string, len(snap.Players))
	for id, name := range snap.Players {
		m.players[id] = name
	}
}

// Reset clears all maps and re-seeds the cursor from the observed identity.
func (m *Model) Reset(playerID string) {
	m.battles = make(map[string]*model.Battle)
	m.order = nil
	m.players = make(map[string]string)
	m.cursor = Cursor{PlayerID: playerID}
}

// Battle returns the record for arenaID, if present.
func (m *Model) Battle(arenaID string) (*model.Battle, bool) {
	b, ok := m.battles[arenaID]
	return b, ok
}

// BattleCount returns the number of tracked battles. It doubles as the cheap
// change fingerprint for cross-battle aggregate cache keys.
func (m *Model) BattleCount() int { return len(m.battles) }

// EachBattle visits battles in insertion order until fn returns false.
func (m *Model) EachBattle(fn func(arenaID string, b *model.Battle) bool) {
	for _, id := range m.order {
		if b, ok := m.battles[id]; ok {
			if !fn(id, b) {
				return
			}
		}
	}
}

// PlayerName returns the directory name for a player id, or "".
func (m *Model) PlayerName(playerID string) string { return m.players[playerID] }

// SetPlayerName records a display name in the identity directory.
func (m *Model) SetPlayerName(playerID, name string) {
	m.players[playerID] = name
}

// PlayerCount returns the size of the identity directory.
func (m *Model) PlayerCount() int { return len(m.players) }

// HasOwnRecord reports whether the current player is already present in the
// identity directory. Peer syncs are gated on this so that no peer data is
// pulled before our own identity is known to the store.
func (m *Model) HasOwnRecord() bool {
	if m.cursor.PlayerID == "" {
		return false
	}
	_, ok := m.players[m.cursor.PlayerID]
	return ok
}

// Snapshot returns a deep copy of the battle and player maps, safe to encode
// or persist outside the single-writer context.
func (m *Model) Snapshot() model.Snapshot {
	snap := model.Snapshot{
		Order:   make([]string, len(m.order)),
		Battles: make(map[string]*model.Battle, len(m.battles)),
		Players: make(map[string]string, len(m.players)),
	}
	copy(snap.Order, m.order)
	for id, b := range m.battles {
		snap.Battles[id] = b.Clone()
	}
	for id, name := range m.players {
		snap.Players[id] = name
	}
	return snap
}
