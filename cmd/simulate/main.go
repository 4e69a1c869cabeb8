package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/UnderPressurePH7/platoon-widget/internal/simulate"
	"github.com/UnderPressurePH7/platoon-widget/pkg/logger"
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	cfg := simulate.DefaultConfig()
	flag.IntVar(&cfg.Battles, "battles", cfg.Battles, "number of battles to replay")
	flag.IntVar(&cfg.DamageEvents, "hits", cfg.DamageEvents, "damage events per battle")
	flag.IntVar(&cfg.DamagePerHit, "damage", cfg.DamagePerHit, "damage per hit")
	flag.IntVar(&cfg.KillsPerGame, "kills", cfg.KillsPerGame, "kills per battle")
	flag.DurationVar(&cfg.DebounceDelay, "debounce", cfg.DebounceDelay, "sync debounce delay")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "per-battle output")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := simulate.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		os.Exit(1)
	}
}
