// Package aggregate memoizes derived metric computations over the stats
// model.
//
// Aggregates scan every battle and player and are requested on every display
// refresh, so results are cached. Correctness beats cleverness here: any
// model mutation clears the whole table rather than invalidating entries
// one by one. Cross-battle keys additionally embed the battle count as a
// fingerprint so that wholesale snapshot replacement is seen as a miss even
// by callers that never invalidate explicitly.
package aggregate

import (
	"fmt"

	"github.com/UnderPressurePH7/platoon-widget/internal/domain/model"
	"github.com/UnderPressurePH7/platoon-widget/internal/domain/stats"
	"github.com/UnderPressurePH7/platoon-widget/pkg/metrics"
)

// BattleTotals sums contributions across players of one arena.
type BattleTotals struct {
	Points int
	Damage int
	Kills  int
}

// PlayerTotals sums one player's contributions across all arenas.
type PlayerTotals struct {
	Points int
	Damage int
	Kills  int
}

// TeamTotals sums everything across all arenas and players.
type TeamTotals struct {
	Points  int
	Damage  int
	Kills   int
	Wins    int
	Battles int
}

// BattleRef points at a battle selected by an extremum computation.
type BattleRef struct {
	ArenaID string
	Points  int
}

// Extremes holds the best and worst completed battles by total points.
// Both are nil when no battle has a known outcome yet.
type Extremes struct {
	Best  *BattleRef
	Worst *BattleRef
}

// Cache is the memo table. Like the model it serves, it carries no locking:
// the owning engine serializes access.
type Cache struct {
	memo map[string]any
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{memo: make(map[string]any)}
}

// InvalidateAll clears every entry. Called after any model mutation that
// changes aggregable fields; no cached value may outlive the mutation that
// invalidated its inputs.
func (c *Cache) InvalidateAll() {
	clear(c.memo)
	metrics.RecordCacheInvalidation()
}

// getOrCompute returns the cached value for key, computing and storing it on
// a miss. A panicking computation is contained and yields the zero value so
// one failing aggregate cannot take down unrelated ones.
func getOrCompute[T any](c *Cache, key string, compute func() T) (out T) {
	if v, ok := c.memo[key]; ok {
		if t, ok := v.(T); ok {
			metrics.RecordCacheHit()
			return t
		}
	}
	metrics.RecordCacheMiss()
	defer func() {
		if recover() != nil {
			var zero T
			out = zero
			return
		}
		c.memo[key] = out
	}()
	out = compute()
	return out
}

// BattleTotals returns per-arena totals across that arena's players.
func (c *Cache) BattleTotals(m *stats.Model, arenaID string) BattleTotals {
	key := "battle_" + arenaID
	return getOrCompute(c, key, func() BattleTotals {
		var t BattleTotals
		b, ok := m.Battle(arenaID)
		if !ok {
			return t
		}
		for _, p := range b.Players {
			t.Points += p.Points
			t.Damage += p.Damage
			t.Kills += p.Kills
		}
		return t
	})
}

// PlayerTotals returns one player's totals across all arenas.
func (c *Cache) PlayerTotals(m *stats.Model, playerID string) PlayerTotals {
	key := fmt.Sprintf("player_%s_%d", playerID, m.BattleCount())
	return getOrCompute(c, key, func() PlayerTotals {
		var t PlayerTotals
		m.EachBattle(func(_ string, b *model.Battle) bool {
			if p, ok := b.Players[playerID]; ok {
				t.Points += p.Points
				t.Damage += p.Damage
				t.Kills += p.Kills
			}
			return true
		})
		return t
	})
}

// TeamTotals returns totals across all arenas and players, with the team-win
// bonus counted once per won battle.
func (c *Cache) TeamTotals(m *stats.Model) TeamTotals {
	key := fmt.Sprintf("team_%d", m.BattleCount())
	return getOrCompute(c, key, func() TeamTotals {
		var t TeamTotals
		m.EachBattle(func(_ string, b *model.Battle) bool {
			t.Battles++
			if b.Win == model.OutcomeWin {
				t.Points += model.PointsPerTeamWin
				t.Wins++
			}
			for _, p := range b.Players {
				t.Points += p.Points
				t.Damage += p.Damage
				t.Kills += p.Kills
			}
			return true
		})
		return t
	})
}

// Extremes returns the best and worst battles by total points among battles
// with a known outcome. Ties keep the first battle in iteration order.
func (c *Cache) Extremes(m *stats.Model) Extremes {
	key := fmt.Sprintf("extremes_%d", m.BattleCount())
	return getOrCompute(c, key, func() Extremes {
		var ex Extremes
		m.EachBattle(func(arenaID string, b *model.Battle) bool {
			if !b.Win.Known() {
				return true
			}
			points := battlePoints(b)
			if ex.Best == nil || points > ex.Best.Points {
				ex.Best = &BattleRef{ArenaID: arenaID, Points: points}
			}
			if ex.Worst == nil || points < ex.Worst.Points {
				ex.Worst = &BattleRef{ArenaID: arenaID, Points: points}
			}
			return true
		})
		return ex
	})
}

// battlePoints totals one battle's player points plus the team-win bonus.
func battlePoints(b *model.Battle) int {
	points := 0
	if b.Win == model.OutcomeWin {
		points += model.PointsPerTeamWin
	}
	for _, p := range b.Players {
		points += p.Points
	}
	return points
}
