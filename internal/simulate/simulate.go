// Package simulate replays a scripted battle session against an in-process
// engine, for exercising the reconciliation path without a game client or a
// live remote store.
package simulate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	app "github.com/UnderPressurePH7/platoon-widget/internal/app"
	"github.com/UnderPressurePH7/platoon-widget/internal/domain/event"
	"github.com/UnderPressurePH7/platoon-widget/pkg/logger"
)

// Config controls the simulated session.
type Config struct {
	Battles       int
	DamageEvents  int
	DamagePerHit  int
	KillsPerGame  int
	DebounceDelay time.Duration
	Verbose       bool
}

// DefaultConfig returns a small but representative session.
func DefaultConfig() *Config {
	return &Config{
		Battles:       3,
		DamageEvents:  5,
		DamagePerHit:  240,
		KillsPerGame:  1,
		DebounceDelay: 50 * time.Millisecond,
	}
}

// Run replays the scripted session and reports the resulting aggregates.
func Run(ctx context.Context, cfg *Config) error {
	log := logger.Named("simulate")

	loop := NewLoopback()
	engine := app.New(loop, nil,
		app.WithDebounceDelay(cfg.DebounceDelay),
	)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("engine start: %w", err)
	}
	defer engine.Stop()

	updates := engine.Subscribe()
	defer engine.Unsubscribe(updates)

	playerID := "580715311"
	engine.HandleHangar(ctx, event.Identity{PlayerID: playerID, PlayerName: "SimPlayer"})
	engine.HandlePlatoonStatus(ctx, true)
	engine.HandleVehicle(ctx, "Object 140")

	for i := 0; i < cfg.Battles; i++ {
		arenaID := uuid.NewString()
		engine.HandleArena(ctx, event.Arena{
			ArenaID:    arenaID,
			MapName:    fmt.Sprintf("Sim Map %d", i+1),
			PlayerName: "SimPlayer",
		})
		engine.HandlePeriod(ctx, "PREBATTLE")

		totalDamage := 0
		for j := 0; j < cfg.DamageEvents; j++ {
			engine.HandleFeedback(ctx, event.Feedback{Kind: event.FeedbackDamage, Damage: cfg.DamagePerHit})
			totalDamage += cfg.DamagePerHit
		}
		for j := 0; j < cfg.KillsPerGame; j++ {
			engine.HandleFeedback(ctx, event.Feedback{Kind: event.FeedbackKill})
		}
		engine.HandleFeedback(ctx, event.Feedback{Kind: event.FeedbackSpotted})

		// Alternate outcomes so the extremes computation has spread.
		winner := 1
		if i%2 == 1 {
			winner = 2
		}
		res := event.BattleResult{
			ArenaID:    arenaID,
			AccountID:  playerID,
			Duration:   300 + 30*i,
			WinnerTeam: winner,
			Players:    map[string]event.ResultPlayer{playerID: {Team: 1}},
			Vehicles: map[string][]event.ResultVehicle{
				"v1": {{AccountID: playerID, DamageDealt: totalDamage, Kills: cfg.KillsPerGame}},
			},
		}
		if err := engine.HandleBattleResult(ctx, res); err != nil {
			return fmt.Errorf("battle result: %w", err)
		}

		if cfg.Verbose {
			totals := engine.ArenaTotals(arenaID)
			log.Info(ctx, "battle finished",
				logger.String("arena", arenaID),
				logger.Int("points", totals.Points),
				logger.Int("damage", totals.Damage),
				logger.Int("kills", totals.Kills),
			)
		}
	}

	// Let the debounced syncs settle, then pull everything back through
	// the wire codec to prove the roundtrip.
	time.Sleep(cfg.DebounceDelay * 3)
	if err := engine.LoadFromServer(ctx); err != nil {
		return fmt.Errorf("loopback reload: %w", err)
	}

	select {
	case <-updates:
	case <-time.After(time.Second):
		return fmt.Errorf("no statsUpdated signal after reload")
	}

	team := engine.TeamTotals()
	ex := engine.Extremes()
	log.Info(ctx, "session complete",
		logger.Int("battles", team.Battles),
		logger.Int("wins", team.Wins),
		logger.Int("teamPoints", team.Points),
		logger.Int("teamDamage", team.Damage),
		logger.Int("teamKills", team.Kills),
		logger.Int("pushes", loop.Pushes()),
	)
	if ex.Best != nil && ex.Worst != nil {
		log.Info(ctx, "extremes",
			logger.String("bestArena", ex.Best.ArenaID),
			logger.Int("bestPoints", ex.Best.Points),
			logger.String("worstArena", ex.Worst.ArenaID),
			logger.Int("worstPoints", ex.Worst.Points),
		)
	}
	return nil
}
