package channel_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/UnderPressurePH7/platoon-widget/internal/syncer/channel"
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

// fakeRealtime captures the ack callback so tests control when and how the
// channel is acknowledged.
type fakeRealtime struct {
	mu        sync.Mutex
	connected bool
	sendErr   error
	sends     int
	lastOp    string
	ack       func(wire.Response, error)

	requestResp wire.Response
	requestErr  error
}

func (f *fakeRealtime) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRealtime) Send(_ context.Context, op string, _ any, ack func(wire.Response, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sends++
	f.lastOp = op
	f.ack = ack
	return nil
}

func (f *fakeRealtime) Request(_ context.Context, op string, _ any) (wire.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOp = op
	return f.requestResp, f.requestErr
}

func (f *fakeRealtime) fireAck(resp wire.Response, err error) {
	f.mu.Lock()
	ack := f.ack
	f.mu.Unlock()
	ack(resp, err)
}

type fakeFallback struct {
	saves     atomic.Int32
	saveErr   error
	loads     atomic.Int32
	peerLoads atomic.Int32
	payload   wire.ServerPayload
}

func (f *fakeFallback) Save(context.Context, wire.SaveBody) error {
	f.saves.Add(1)
	return f.saveErr
}

func (f *fakeFallback) Load(context.Context) (wire.ServerPayload, error) {
	f.loads.Add(1)
	return f.payload, nil
}

func (f *fakeFallback) LoadPeers(context.Context) (wire.ServerPayload, error) {
	f.peerLoads.Add(1)
	return f.payload, nil
}

func TestPush(t *testing.T) {
	Convey("Given a channel with a short fallback window", t, func() {
		ctx := context.Background()
		rt := &fakeRealtime{connected: true}
		fb := &fakeFallback{}
		ch := channel.New(rt, fb, channel.WithFallbackWindow(30*time.Millisecond))

		Convey("When the realtime save is acknowledged inside the window", func() {
			ch.Push(ctx, wire.SaveBody{})
			rt.fireAck(wire.Response{Status: wire.StatusAccepted}, nil)
			time.Sleep(60 * time.Millisecond)

			Convey("Then exactly one write happened and the fallback stayed quiet", func() {
				So(rt.sends, ShouldEqual, 1)
				So(fb.saves.Load(), ShouldEqual, 0)
			})
		})

		Convey("When the acknowledgment never arrives", func() {
			ch.Push(ctx, wire.SaveBody{})
			time.Sleep(60 * time.Millisecond)

			Convey("Then the fallback performs the save exactly once", func() {
				So(fb.saves.Load(), ShouldEqual, 1)
			})

			Convey("And a late acknowledgment is discarded", func() {
				rt.fireAck(wire.Response{Status: wire.StatusAccepted}, nil)
				So(fb.saves.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the server rejects the realtime save", func() {
			ch.Push(ctx, wire.SaveBody{})
			rt.fireAck(wire.Response{Status: 500}, nil)
			time.Sleep(60 * time.Millisecond)

			Convey("Then the fallback still completes the save", func() {
				So(fb.saves.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the acknowledgment reports a transport error", func() {
			ch.Push(ctx, wire.SaveBody{})
			rt.fireAck(wire.Response{}, errors.New("socket closed"))
			time.Sleep(60 * time.Millisecond)

			Convey("Then the fallback still completes the save", func() {
				So(fb.saves.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the send itself fails", func() {
			rt.sendErr = errors.New("not connected")
			ch.Push(ctx, wire.SaveBody{})

			Convey("Then the fallback runs immediately, once", func() {
				So(fb.saves.Load(), ShouldEqual, 1)
				time.Sleep(60 * time.Millisecond)
				So(fb.saves.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the realtime channel is down", func() {
			rt.connected = false
			ch.Push(ctx, wire.SaveBody{})

			Convey("Then the fallback is used directly", func() {
				So(rt.sends, ShouldEqual, 0)
				So(fb.saves.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestPull(t *testing.T) {
	Convey("Given a channel over both transports", t, func() {
		ctx := context.Background()
		rt := &fakeRealtime{connected: true}
		fb := &fakeFallback{payload: wire.ServerPayload{Success: true}}
		ch := channel.New(rt, fb)

		Convey("When pulling over a connected realtime channel", func() {
			rt.requestResp = wire.Response{
				Status: wire.StatusOK,
				Body:   json.RawMessage(`{"success":true,"BattleStats":{},"PlayerInfo":{}}`),
			}
			payload, err := ch.PullSelf(ctx)

			Convey("Then the realtime body is decoded", func() {
				So(err, ShouldBeNil)
				So(payload.Success, ShouldBeTrue)
				So(rt.lastOp, ShouldEqual, channel.OpGetStats)
				So(fb.loads.Load(), ShouldEqual, 0)
			})
		})

		Convey("When the realtime read is rejected", func() {
			rt.requestResp = wire.Response{Status: 404}
			_, err := ch.PullSelf(ctx)

			Convey("Then the error is surfaced, not retried on the fallback", func() {
				So(err, ShouldEqual, wire.ErrRemoteRejected)
				So(fb.loads.Load(), ShouldEqual, 0)
			})
		})

		Convey("When the realtime channel is down", func() {
			rt.connected = false

			Convey("Then PullSelf uses the fallback load", func() {
				payload, err := ch.PullSelf(ctx)
				So(err, ShouldBeNil)
				So(payload.Success, ShouldBeTrue)
				So(fb.loads.Load(), ShouldEqual, 1)
			})

			Convey("Then PullPeers uses the peer-scoped fallback load", func() {
				_, err := ch.PullPeers(ctx)
				So(err, ShouldBeNil)
				So(fb.peerLoads.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestClear(t *testing.T) {
	Convey("Given a channel", t, func() {
		ctx := context.Background()
		rt := &fakeRealtime{connected: true}
		ch := channel.New(rt, &fakeFallback{})

		Convey("When clearing over a connected channel", func() {
			rt.requestResp = wire.Response{Status: wire.StatusOK}
			err := ch.Clear(ctx)

			Convey("Then the clear succeeds", func() {
				So(err, ShouldBeNil)
				So(rt.lastOp, ShouldEqual, channel.OpClearStats)
			})
		})

		Convey("When the server rejects the clear", func() {
			rt.requestResp = wire.Response{Status: 500}
			So(ch.Clear(ctx), ShouldEqual, wire.ErrRemoteRejected)
		})

		Convey("When the channel is down", func() {
			rt.connected = false
			So(ch.Clear(ctx), ShouldEqual, channel.ErrNoConnectivity)
		})
	})
}
