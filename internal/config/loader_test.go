package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/UnderPressurePH7/platoon-widget/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	Convey("Given a clean environment", t, func() {
		ctx := context.Background()
		for _, key := range []string{"PW_CONFIG", "PW_ACCESS_KEY", "PW_LOG_LEVEL", "PW_DEBOUNCE_DELAY_MS"} {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}

		Convey("When loading with no overrides", func() {
			cfg, err := config.Load(ctx)
			So(err, ShouldBeNil)

			Convey("Then defaults apply", func() {
				So(cfg.LogLevel, ShouldEqual, "info")
				So(cfg.AccessKey, ShouldBeEmpty)
				So(cfg.DebounceDelayMS, ShouldEqual, 1000)
				So(cfg.FallbackWindowMS, ShouldEqual, 3000)
				So(cfg.ReconnectAttempts, ShouldEqual, 5)
			})

			Convey("Then the duration helpers convert milliseconds", func() {
				So(cfg.DebounceDelay(), ShouldEqual, time.Second)
				So(cfg.FallbackWindow(), ShouldEqual, 3*time.Second)
				So(cfg.SettleDelay(), ShouldEqual, 10*time.Millisecond)
				So(cfg.RequestTimeout(), ShouldEqual, 10*time.Second)
			})
		})

		Convey("When environment variables override", func() {
			t.Setenv("PW_ACCESS_KEY", "abc-123")
			t.Setenv("PW_LOG_LEVEL", "debug")
			t.Setenv("PW_DEBOUNCE_DELAY_MS", "250")

			cfg, err := config.Load(ctx)
			So(err, ShouldBeNil)
			So(cfg.AccessKey, ShouldEqual, "abc-123")
			So(cfg.LogLevel, ShouldEqual, "debug")
			So(cfg.DebounceDelay(), ShouldEqual, 250*time.Millisecond)
		})

		Convey("When a config file is layered under the environment", func() {
			path := filepath.Join(t.TempDir(), "config.yaml")
			body := "access_key: from-file\nrealtime_url: wss://example.test/ws\nfallback_window_ms: 1500\n"
			So(os.WriteFile(path, []byte(body), 0o600), ShouldBeNil)
			t.Setenv("PW_CONFIG", path)
			t.Setenv("PW_ACCESS_KEY", "from-env")

			cfg, err := config.Load(ctx)
			So(err, ShouldBeNil)

			Convey("Then env wins over file, file wins over defaults", func() {
				So(cfg.AccessKey, ShouldEqual, "from-env")
				So(cfg.RealtimeURL, ShouldEqual, "wss://example.test/ws")
				So(cfg.FallbackWindowMS, ShouldEqual, 1500)
			})
		})

		Convey("When the config file is missing", func() {
			t.Setenv("PW_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
			_, err := config.Load(ctx)
			So(errors.Is(err, config.ErrLoadConfig), ShouldBeTrue)
		})

		Convey("When a delay is non-positive", func() {
			t.Setenv("PW_DEBOUNCE_DELAY_MS", "0")
			_, err := config.Load(ctx)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
