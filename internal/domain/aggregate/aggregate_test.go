package aggregate_test

import (
	"testing"

	"github.com/UnderPressurePH7/platoon-widget/internal/domain/aggregate"
	"github.com/UnderPressurePH7/platoon-widget/internal/domain/model"
	"github.com/UnderPressurePH7/platoon-widget/internal/domain/stats"
	. "github.com/smartystreets/goconvey/convey"
)

func seedModel() *stats.Model {
	m := stats.New("p1", stats.WithClock(func() int64 { return 1 }))
	m.EnsureBattle("arena-1")
	_, _ = m.EnsurePlayer("arena-1", "p1")
	_, _ = m.EnsurePlayer("arena-1", "p2")
	_ = m.ApplyDamage("arena-1", "p1", 100)
	_ = m.ApplyKill("arena-1", "p1")
	_ = m.ApplyDamage("arena-1", "p2", 50)
	m.EnsureBattle("arena-2")
	_, _ = m.EnsurePlayer("arena-2", "p1")
	_ = m.ApplyDamage("arena-2", "p1", 200)
	return m
}

func TestBattleAndPlayerTotals(t *testing.T) {
	Convey("Given a model with two battles", t, func() {
		m := seedModel()
		c := aggregate.NewCache()

		Convey("When computing per-arena totals", func() {
			got := c.BattleTotals(m, "arena-1")

			Convey("Then all players of that arena are summed", func() {
				So(got.Damage, ShouldEqual, 150)
				So(got.Kills, ShouldEqual, 1)
				So(got.Points, ShouldEqual, 150+model.PointsPerFrag)
			})

			Convey("And an unknown arena yields zeros", func() {
				So(c.BattleTotals(m, "nope"), ShouldResemble, aggregate.BattleTotals{})
			})
		})

		Convey("When computing per-player totals", func() {
			got := c.PlayerTotals(m, "p1")

			Convey("Then all arenas are summed for that player", func() {
				So(got.Damage, ShouldEqual, 300)
				So(got.Kills, ShouldEqual, 1)
				So(got.Points, ShouldEqual, 300+model.PointsPerFrag)
			})
		})
	})
}

func TestTeamTotals(t *testing.T) {
	Convey("Given battles with one win", t, func() {
		m := seedModel()
		b, _ := m.Battle("arena-1")
		b.Win = model.OutcomeWin
		c := aggregate.NewCache()

		Convey("When computing team totals", func() {
			got := c.TeamTotals(m)

			Convey("Then the win bonus counts once per won battle", func() {
				So(got.Battles, ShouldEqual, 2)
				So(got.Wins, ShouldEqual, 1)
				So(got.Damage, ShouldEqual, 350)
				So(got.Kills, ShouldEqual, 1)
				So(got.Points, ShouldEqual, 350+model.PointsPerFrag+model.PointsPerTeamWin)
			})
		})
	})
}

func TestExtremes(t *testing.T) {
	Convey("Given battles A(win), B(loss), C(undecided)", t, func() {
		m := stats.New("p1", stats.WithClock(func() int64 { return 1 }))
		mk := func(arena string, points int, win model.Outcome) {
			m.EnsureBattle(arena)
			_, _ = m.EnsurePlayer(arena, "p1")
			b, _ := m.Battle(arena)
			b.Players["p1"].Points = points
			b.Win = win
		}
		mk("A", 10, model.OutcomeWin)
		mk("B", 5, model.OutcomeLoss)
		mk("C", -3, model.OutcomeUnknown)
		c := aggregate.NewCache()

		Convey("When selecting best and worst", func() {
			got := c.Extremes(m)

			Convey("Then undecided battles are excluded and the win bonus counts once", func() {
				So(got.Best, ShouldNotBeNil)
				So(got.Best.ArenaID, ShouldEqual, "A")
				So(got.Best.Points, ShouldEqual, 10+model.PointsPerTeamWin)
				So(got.Worst, ShouldNotBeNil)
				So(got.Worst.ArenaID, ShouldEqual, "B")
				So(got.Worst.Points, ShouldEqual, 5)
			})
		})

		Convey("When no battle has a decided outcome", func() {
			empty := stats.New("p1")
			empty.EnsureBattle("X")
			got := aggregate.NewCache().Extremes(empty)

			Convey("Then both extremes are nil", func() {
				So(got.Best, ShouldBeNil)
				So(got.Worst, ShouldBeNil)
			})
		})

		Convey("When battles tie on points", func() {
			tied := stats.New("p1")
			mkT := func(arena string) {
				tied.EnsureBattle(arena)
				_, _ = tied.EnsurePlayer(arena, "p1")
				b, _ := tied.Battle(arena)
				b.Players["p1"].Points = 7
				b.Win = model.OutcomeLoss
			}
			mkT("second")
			mkT("first") // insertion order: "second" first
			got := aggregate.NewCache().Extremes(tied)

			Convey("Then the first in insertion order wins the tie", func() {
				So(got.Best.ArenaID, ShouldEqual, "second")
				So(got.Worst.ArenaID, ShouldEqual, "second")
			})
		})
	})
}

func TestCacheBehavior(t *testing.T) {
	Convey("Given a cached aggregate", t, func() {
		m := seedModel()
		c := aggregate.NewCache()
		before := c.BattleTotals(m, "arena-1")
		So(before.Damage, ShouldEqual, 150)

		Convey("When the model mutates without invalidation", func() {
			_ = m.ApplyDamage("arena-1", "p1", 1000)

			Convey("Then the stale value is served (cache contract)", func() {
				So(c.BattleTotals(m, "arena-1").Damage, ShouldEqual, 150)
			})

			Convey("And InvalidateAll forces recomputation", func() {
				c.InvalidateAll()
				So(c.BattleTotals(m, "arena-1").Damage, ShouldEqual, 1150)
			})
		})

		Convey("When a snapshot merge changes the battle count", func() {
			team := c.TeamTotals(m)
			So(team.Battles, ShouldEqual, 2)

			m.MergeSnapshot(model.Snapshot{
				Order: []string{"only"},
				Battles: map[string]*model.Battle{
					"only": {Win: model.OutcomeUnknown, Players: map[string]*model.PlayerStat{}},
				},
				Players: map[string]string{},
			})

			Convey("Then the fingerprinted key misses without an explicit invalidation", func() {
				So(c.TeamTotals(m).Battles, ShouldEqual, 1)
			})
		})
	})
}
