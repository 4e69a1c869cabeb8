package notify_test

import (
	"testing"

	"github.com/UnderPressurePH7/platoon-widget/internal/notify"
	. "github.com/smartystreets/goconvey/convey"
)

func drained(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestBroadcaster(t *testing.T) {
	Convey("Given a broadcaster with two subscribers", t, func() {
		b := notify.New()
		a := b.Subscribe()
		c := b.Subscribe()

		Convey("When a signal is published", func() {
			b.Publish()

			Convey("Then both subscribers see it", func() {
				So(drained(a), ShouldBeTrue)
				So(drained(c), ShouldBeTrue)
			})
		})

		Convey("When a subscriber falls behind", func() {
			b.Publish()
			b.Publish()
			b.Publish()

			Convey("Then it holds exactly one pending signal", func() {
				So(drained(a), ShouldBeTrue)
				So(drained(a), ShouldBeFalse)
			})
		})

		Convey("When a subscriber leaves", func() {
			b.Unsubscribe(a)

			Convey("Then its channel is closed", func() {
				_, open := <-a
				So(open, ShouldBeFalse)
			})

			Convey("And publishing still reaches the rest", func() {
				b.Publish()
				So(drained(c), ShouldBeTrue)
			})

			Convey("And unsubscribing twice is harmless", func() {
				So(func() { b.Unsubscribe(a) }, ShouldNotPanic)
			})
		})
	})
}
