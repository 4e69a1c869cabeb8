package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/UnderPressurePH7/platoon-widget/internal/adapters/localstore"
	"github.com/UnderPressurePH7/platoon-widget/internal/adapters/realtime"
	"github.com/UnderPressurePH7/platoon-widget/internal/adapters/rest"
	app "github.com/UnderPressurePH7/platoon-widget/internal/app"
	"github.com/UnderPressurePH7/platoon-widget/internal/config"
	"github.com/UnderPressurePH7/platoon-widget/internal/syncer/channel"
	"github.com/UnderPressurePH7/platoon-widget/pkg/logger"
	"github.com/UnderPressurePH7/platoon-widget/pkg/metrics"
)

// HTTP server timeout constants for the metrics listener.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store := localstore.New(cfg.StatePath, localstore.WithAccessKey(cfg.AccessKey))

	key, err := store.AccessKey(ctx)
	if err != nil {
		if errors.Is(err, localstore.ErrNoAccessKey) {
			// The one user-visible failure state: no credential, no
			// remote store. Local stats still work.
			log.Warn(ctx, "no access key found, running disconnected")
		} else {
			log.Error(ctx, "access key lookup failed", logger.Error(err))
		}
	}

	engine, rt := buildEngine(cfg, store, key)
	if err := engine.Start(ctx); err != nil {
		log.Error(ctx, "engine start failed", logger.Error(err))
		return
	}
	defer engine.Stop()

	if rt != nil {
		rt.OnPush(func(op string, body json.RawMessage) {
			engine.ApplyServerFrame(ctx, op, body)
		})
		rt.Start(ctx)
		defer rt.Close()
	}

	if key != "" {
		if err := engine.LoadFromServer(ctx); err != nil {
			log.Warn(ctx, "initial load failed, serving local state", logger.Error(err))
		}
	}

	go watchUpdates(ctx, engine, log)

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, log)
	}

	log.Info(ctx, "platoon widget core running",
		logger.Bool("connected", key != ""),
		logger.String("state_path", cfg.StatePath),
	)
	<-ctx.Done()
	log.Info(context.Background(), "shutting down")
}

// buildEngine wires the dual-transport channel when a credential exists and
// a disconnected engine otherwise.
func buildEngine(cfg *config.Config, store *localstore.Store, key string) (*app.Engine, *realtime.Client) {
	opts := []app.Option{
		app.WithDebounceDelay(cfg.DebounceDelay()),
		app.WithSettleDelay(cfg.SettleDelay()),
	}

	// The transports stamp the engine's current identity on each request;
	// the engine does not exist yet, so close over the variable.
	var engine *app.Engine
	playerID := func() string {
		if engine == nil {
			return ""
		}
		return engine.Cursor().PlayerID
	}

	var rt *realtime.Client
	var fb channel.Fallback
	if key != "" {
		if cfg.RealtimeURL != "" {
			rt = realtime.New(cfg.RealtimeURL, key, playerID,
				realtime.WithReconnect(cfg.ReconnectAttempts, cfg.ReconnectDelay()),
			)
		}
		if cfg.RestBaseURL != "" {
			fb = rest.New(cfg.RestBaseURL, key, playerID, rest.WithTimeout(cfg.RequestTimeout()))
		}
	}

	chOpts := []channel.Option{channel.WithFallbackWindow(cfg.FallbackWindow())}
	var ch *channel.Channel
	if rt != nil {
		ch = channel.New(rt, fb, chOpts...)
	} else {
		ch = channel.New(nil, fb, chOpts...)
	}

	engine = app.New(ch, store, opts...)
	return engine, rt
}

func watchUpdates(ctx context.Context, engine *app.Engine, log logger.Logger) {
	updates := engine.Subscribe()
	defer engine.Unsubscribe(updates)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			totals := engine.TeamTotals()
			log.Debug(ctx, "stats updated",
				logger.Int("battles", totals.Battles),
				logger.Int("points", totals.Points),
				logger.Int("wins", totals.Wins),
			)
		}
	}
}

func serveMetrics(ctx context.Context, addr string, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	log.Info(ctx, "metrics listener starting", logger.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(ctx, "metrics listener failed", logger.Error(err))
	}
}
