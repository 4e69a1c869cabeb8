package localstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/UnderPressurePH7/platoon-widget/internal/adapters/localstore"
	"github.com/UnderPressurePH7/platoon-widget/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStore(t *testing.T) {
	Convey("Given a store over a temp path", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "state.json")
		store := localstore.New(path)

		Convey("When no file exists yet", func() {
			st, err := store.Load(ctx)

			Convey("Then the caller starts fresh", func() {
				So(err, ShouldBeNil)
				So(st, ShouldBeNil)
			})
		})

		Convey("When state is saved and reloaded", func() {
			in := localstore.State{
				BattleStats: map[string]*model.Battle{
					"a1": {
						StartTime: 1000,
						Win:       model.OutcomeWin,
						MapName:   "Mines",
						Players: map[string]*model.PlayerStat{
							"p1": {Name: "Alice", Damage: 400, Kills: 1, Points: 700, Vehicle: "T-34"},
						},
					},
				},
				BattleOrder:     []string{"a1"},
				PlayersInfo:     map[string]string{"p1": "Alice"},
				CurrentPlayerID: "p1",
				IsInPlatoon:     true,
				LastUpdateTime:  2000,
			}
			So(store.Save(ctx, in), ShouldBeNil)
			out, err := store.Load(ctx)

			Convey("Then the roundtrip is lossless", func() {
				So(err, ShouldBeNil)
				So(out, ShouldNotBeNil)
				So(out.BattleOrder, ShouldResemble, []string{"a1"})
				So(out.BattleStats["a1"].Players["p1"].Points, ShouldEqual, 700)
				So(out.CurrentPlayerID, ShouldEqual, "p1")
				So(out.IsInPlatoon, ShouldBeTrue)
			})

			Convey("Then no temp file is left behind", func() {
				_, err := os.Stat(path + ".tmp")
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When the file is corrupt", func() {
			So(os.WriteFile(path, []byte("{nope"), 0o600), ShouldBeNil)
			_, err := store.Load(ctx)
			So(err, ShouldNotBeNil)
		})

		Convey("When clearing", func() {
			So(store.Save(ctx, localstore.State{}), ShouldBeNil)
			So(store.Clear(ctx), ShouldBeNil)
			st, err := store.Load(ctx)
			So(err, ShouldBeNil)
			So(st, ShouldBeNil)

			Convey("And clearing again is not an error", func() {
				So(store.Clear(ctx), ShouldBeNil)
			})
		})
	})
}

func TestAccessKey(t *testing.T) {
	Convey("Given a snapshot directory", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		path := filepath.Join(dir, "state.json")

		Convey("When a key is configured explicitly", func() {
			store := localstore.New(path, localstore.WithAccessKey("cfg-key"))
			key, err := store.AccessKey(ctx)
			So(err, ShouldBeNil)
			So(key, ShouldEqual, "cfg-key")
		})

		Convey("When only the key file exists", func() {
			So(os.WriteFile(filepath.Join(dir, "access.key"), []byte(" file-key\n"), 0o600), ShouldBeNil)
			key, err := localstore.New(path).AccessKey(ctx)
			So(err, ShouldBeNil)
			So(key, ShouldEqual, "file-key")
		})

		Convey("When no credential exists anywhere", func() {
			_, err := localstore.New(path).AccessKey(ctx)
			So(err, ShouldEqual, localstore.ErrNoAccessKey)
		})
	})
}
