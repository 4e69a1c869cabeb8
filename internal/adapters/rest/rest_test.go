package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/UnderPressurePH7/platoon-widget/internal/adapters/rest"
	"github.com/UnderPressurePH7/platoon-widget/internal/syncer/wire"
	"github.com/UnderPressurePH7/platoon-widget/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type recorded struct {
	method   string
	path     string
	playerID string
	body     []byte
}

func TestClient(t *testing.T) {
	Convey("Given a fallback endpoint", t, func() {
		ctx := context.Background()
		var last recorded
		status := http.StatusOK
		respBody := `{"BattleStats":{},"PlayerInfo":{}}`

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			last.method = r.Method
			last.path = r.URL.Path
			last.playerID = r.Header.Get("X-Player-ID")
			last.body, _ = io.ReadAll(r.Body)
			w.WriteHeader(status)
			w.Write([]byte(respBody))
		}))
		defer srv.Close()

		client := rest.New(srv.URL+"/", "key-1", func() string { return "p1" })

		Convey("When saving a body", func() {
			err := client.Save(ctx, wire.SaveBody{PlayerInfo: map[string]string{"p1": "Alice"}})

			Convey("Then the body posts under the access key with identity metadata", func() {
				So(err, ShouldBeNil)
				So(last.method, ShouldEqual, http.MethodPost)
				So(last.path, ShouldEqual, "/key-1")
				So(last.playerID, ShouldEqual, "p1")
				var echo wire.SaveBody
				So(json.Unmarshal(last.body, &echo), ShouldBeNil)
				So(echo.PlayerInfo["p1"], ShouldEqual, "Alice")
			})
		})

		Convey("When the server rejects a save", func() {
			status = http.StatusForbidden
			err := client.Save(ctx, wire.SaveBody{})
			So(errors.Is(err, wire.ErrRemoteRejected), ShouldBeTrue)
		})

		Convey("When loading own stats", func() {
			respBody = `{"BattleStats":{"a1":{"players":{}}},"PlayerInfo":{}}`
			payload, err := client.Load(ctx)

			Convey("Then the read is marked successful and routed to the key", func() {
				So(err, ShouldBeNil)
				So(payload.Success, ShouldBeTrue)
				So(payload.BattleStats, ShouldContainKey, "a1")
				So(last.path, ShouldEqual, "/key-1")
			})
		})

		Convey("When loading peer stats", func() {
			_, err := client.LoadPeers(ctx)
			So(err, ShouldBeNil)
			So(last.path, ShouldEqual, "/pid/key-1")
		})

		Convey("When the server rejects a load", func() {
			status = http.StatusNotFound
			_, err := client.Load(ctx)
			So(errors.Is(err, wire.ErrRemoteRejected), ShouldBeTrue)
		})

		Convey("When the body is not a payload", func() {
			respBody = `{nope`
			_, err := client.Load(ctx)
			So(err, ShouldNotBeNil)
		})
	})
}
