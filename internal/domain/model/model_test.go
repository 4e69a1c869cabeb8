package model_test

import (
	"testing"

	"github.com/UnderPressurePH7/platoon-widget/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestOutcome(t *testing.T) {
	Convey("Given the wire outcome values", t, func() {
		Convey("Then only the unknown value reads as undecided", func() {
			So(model.OutcomeUnknown.Known(), ShouldBeFalse)
			So(model.OutcomeLoss.Known(), ShouldBeTrue)
			So(model.OutcomeWin.Known(), ShouldBeTrue)
			So(model.OutcomeDraw.Known(), ShouldBeTrue)
		})
	})
}

func TestBattleClone(t *testing.T) {
	Convey("Given a battle with players", t, func() {
		b := &model.Battle{
			StartTime: 1000,
			Win:       model.OutcomeWin,
			MapName:   "Mines",
			Players: map[string]*model.PlayerStat{
				"p1": {Name: "Alice", Damage: 400, Kills: 1, Points: 700},
			},
		}

		Convey("When cloned", func() {
			cp := b.Clone()
			cp.Players["p1"].Damage = 9999
			cp.Players["p2"] = &model.PlayerStat{Name: "Bob"}

			Convey("Then mutations do not leak back", func() {
				So(b.Players["p1"].Damage, ShouldEqual, 400)
				So(b.Players, ShouldNotContainKey, "p2")
				So(cp.MapName, ShouldEqual, "Mines")
			})
		})
	})
}
