// Package app provides the reconciliation engine that owns the stats model.
//
// The engine is the single writer: every event handler, timer callback, and
// transport callback funnels through its mutex before touching the model or
// the aggregate cache. Handlers themselves never perform network I/O; they
// mutate state and arm the debounced sync tasks.
package app

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/UnderPressurePH7/platoon-widget/internal/adapters/localstore"
	"github.com/UnderPressurePH7/platoon-widget/internal/domain/aggregate"
	"github.com/UnderPressurePH7/platoon-widget/internal/domain/event"
	"github.com/UnderPressurePH7/platoon-widget/internal/domain/model"
	"github.com/UnderPressurePH7/platoon-widget/internal/domain/stats"
	"github.com/UnderPressurePH7/platoon-widget/internal/notify"
	"github.com/UnderPressurePH7/platoon-widget/internal/syncer/debounce"
	"github.com/UnderPressurePH7/platoon-widget/internal/syncer/wire"
	"github.com/UnderPressurePH7/platoon-widget/pkg/logger"
	"github.com/UnderPressurePH7/platoon-widget/pkg/metrics"
)

// Debounced task names.
const (
	TaskSyncSelf  = "sync-self"
	TaskSyncPeers = "sync-peers"
)

// A platoon holds the player plus at most three peers.
const maxPlatoonPeers = 3

// Default timing constants.
const (
	defaultDebounceDelay = time.Second
	defaultSettleDelay   = 10 * time.Millisecond
)

// StoreChannel is the remote store client the engine drives.
type StoreChannel interface {
	Connected() bool
	Push(ctx context.Context, body wire.SaveBody)
	PullSelf(ctx context.Context) (wire.ServerPayload, error)
	PullPeers(ctx context.Context) (wire.ServerPayload, error)
	Clear(ctx context.Context) error
}

// StateStore persists the warm-restart snapshot.
type StateStore interface {
	Load(ctx context.Context) (*localstore.State, error)
	Save(ctx context.Context, st localstore.State) error
	Clear(ctx context.Context) error
}

// Engine reconciles inbound game-state and server data into the model.
type Engine struct {
	mu    sync.Mutex
	model *stats.Model
	cache *aggregate.Cache

	sched    *debounce.Scheduler
	channel  StoreChannel
	store    StateStore
	notifier *notify.Broadcaster

	debounceDelay time.Duration
	settleDelay   time.Duration
	now           func() int64

	log logger.Logger
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithDebounceDelay sets the settle window for the sync tasks.
func WithDebounceDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.debounceDelay = d
		}
	}
}

// WithSettleDelay sets the pause a refresh waits for trailing writes.
func WithSettleDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.settleDelay = d
		}
	}
}

// WithClock overrides the millisecond clock, for tests.
func WithClock(now func() int64) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New constructs an engine over the given transports.
func New(ch StoreChannel, store StateStore, opts ...Option) *Engine {
	e := &Engine{
		cache:         aggregate.NewCache(),
		sched:         debounce.New(),
		channel:       ch,
		store:         store,
		notifier:      notify.New(),
		debounceDelay: defaultDebounceDelay,
		settleDelay:   defaultSettleDelay,
		now:           func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Named("engine")
	}
	e.model = stats.New("", stats.WithClock(e.now))
	return e
}

// Start warm-restarts the model from the persisted snapshot when one exists.
func (e *Engine) Start(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	st, err := e.store.Load(ctx)
	if err != nil {
		e.log.Warn(ctx, "local state unreadable, starting fresh", logger.Error(err))
		return nil
	}
	if st == nil {
		return nil
	}

	order := st.BattleOrder
	if len(order) == 0 {
		for arenaID := range st.BattleStats {
			order = append(order, arenaID)
		}
		sort.Strings(order)
	}
	snap := model.Snapshot{
		Order:   order,
		Battles: st.BattleStats,
		Players: st.PlayersInfo,
	}
	cursor := stats.Cursor{
		PlayerID:   st.CurrentPlayerID,
		ArenaID:    st.CurrentArenaID,
		Vehicle:    st.CurrentVehicle,
		InPlatoon:  st.IsInPlatoon,
		InBattle:   st.IsInBattle,
		LastUpdate: st.LastUpdateTime,
	}

	e.mu.Lock()
	e.model = stats.Restore(snap, cursor, stats.WithClock(e.now))
	e.cache.InvalidateAll()
	e.updateGaugesLocked()
	e.mu.Unlock()

	e.log.Info(ctx, "restored local state",
		logger.Int("battles", len(snap.Battles)),
		logger.Int("players", len(snap.Players)),
	)
	return nil
}

// Stop cancels pending debounce timers.
func (e *Engine) Stop() {
	e.sched.Reset()
}

// Subscribe returns a channel signaled on every statsUpdated publication.
func (e *Engine) Subscribe() chan struct{} { return e.notifier.Subscribe() }

// Unsubscribe releases a subscription channel.
func (e *Engine) Unsubscribe(ch chan struct{}) { e.notifier.Unsubscribe(ch) }

// HandlePlatoonStatus records platoon membership and persists locally.
func (e *Engine) HandlePlatoonStatus(ctx context.Context, inPlatoon bool) {
	e.mu.Lock()
	e.model.UpdateCursor(func(c *stats.Cursor) { c.InPlatoon = inPlatoon })
	e.persistLocked(ctx)
	e.mu.Unlock()
}

// HandleBattleStatus records whether a battle is in progress.
func (e *Engine) HandleBattleStatus(_ context.Context, inBattle bool) {
	e.mu.Lock()
	e.model.UpdateCursor(func(c *stats.Cursor) { c.InBattle = inBattle })
	e.mu.Unlock()
}

// HandleVehicle records the hangar vehicle selection.
func (e *Engine) HandleVehicle(_ context.Context, name string) {
	if name == "" {
		name = model.UnknownVehicle
	}
	e.mu.Lock()
	e.model.UpdateCursor(func(c *stats.Cursor) { c.Vehicle = name })
	e.mu.Unlock()
}

// HandleHangar processes a return to the shared area: the cursor re-seeds
// from the observed identity, the arena cursor drops, and the player's name
// is registered in the identity directory unless the platoon-size guard
// says the roster is already complete.
func (e *Engine) HandleHangar(ctx context.Context, id event.Identity) {
	if id.PlayerID == "" {
		metrics.RecordEventSkipped()
		return
	}

	e.mu.Lock()
	known := e.model.PlayerCount()
	cursor := e.model.Cursor()
	e.model.UpdateCursor(func(c *stats.Cursor) {
		c.PlayerID = id.PlayerID
		c.ArenaID = ""
	})

	full := (cursor.InPlatoon && known > maxPlatoonPeers) || (!cursor.InPlatoon && known >= 1)
	if full {
		e.mu.Unlock()
		return
	}

	e.model.SetPlayerName(id.PlayerID, id.PlayerName)
	e.cache.InvalidateAll()
	e.updateGaugesLocked()
	e.mu.Unlock()

	metrics.RecordEventApplied("hangar")
	e.scheduleSelfSync()
}

// HandleArena processes the arena-start event: it lazily creates the battle
// and the current player's record, stamps the arena metadata, and arms both
// sync tasks (peers only once our own identity is known to the store).
func (e *Engine) HandleArena(ctx context.Context, ev event.Arena) {
	e.mu.Lock()
	cursor := e.model.Cursor()
	if ev.ArenaID == "" || cursor.PlayerID == "" {
		e.mu.Unlock()
		metrics.RecordEventSkipped()
		return
	}

	e.model.UpdateCursor(func(c *stats.Cursor) { c.ArenaID = ev.ArenaID })
	b := e.model.EnsureBattle(ev.ArenaID)
	p, err := e.model.EnsurePlayer(ev.ArenaID, cursor.PlayerID)
	if err != nil {
		// Cannot happen after EnsureBattle; guard the model anyway.
		e.mu.Unlock()
		e.log.Error(ctx, "arena handler precursor violation", logger.Error(err))
		return
	}

	if ev.MapName != "" {
		b.MapName = ev.MapName
	}
	if cursor.Vehicle != "" {
		p.Vehicle = cursor.Vehicle
	}
	if ev.PlayerName != "" {
		p.Name = ev.PlayerName
		if e.model.PlayerName(cursor.PlayerID) == "" {
			e.model.SetPlayerName(cursor.PlayerID, ev.PlayerName)
		}
	}
	e.cache.InvalidateAll()
	e.updateGaugesLocked()
	ownRecord := e.model.HasOwnRecord()
	e.mu.Unlock()

	metrics.RecordEventApplied("arena")
	if ownRecord {
		e.schedulePeerSync()
	}
	e.scheduleSelfSync()
}

// HandlePeriod stamps the prebattle transition and wakes consumers.
func (e *Engine) HandlePeriod(_ context.Context, tag string) {
	if tag != "PREBATTLE" {
		return
	}
	e.mu.Lock()
	cursor := e.model.Cursor()
	if cursor.ArenaID == "" || cursor.PlayerID == "" {
		e.mu.Unlock()
		return
	}
	e.model.UpdateCursor(func(c *stats.Cursor) { c.LastUpdate = e.now() })
	e.mu.Unlock()
	e.notifier.Publish()
}

// HandleFeedback dispatches a battle feedback event. Damage and kills mutate
// the current player's record and arm the self sync; the remaining kinds are
// server-computed and only arm the peer sync. Events arriving without a
// valid session state are dropped.
func (e *Engine) HandleFeedback(ctx context.Context, fb event.Feedback) {
	e.mu.Lock()
	cursor := e.model.Cursor()
	if cursor.ArenaID == "" || cursor.PlayerID == "" {
		e.mu.Unlock()
		metrics.RecordEventSkipped()
		return
	}

	switch fb.Kind {
	case event.FeedbackDamage:
		e.model.EnsureBattle(cursor.ArenaID)
		if err := e.model.ApplyDamage(cursor.ArenaID, cursor.PlayerID, fb.Damage); err != nil {
			e.mu.Unlock()
			e.log.Warn(ctx, "damage event dropped", logger.Error(err))
			metrics.RecordEventSkipped()
			return
		}
		e.cache.InvalidateAll()
		e.mu.Unlock()
		metrics.RecordEventApplied(fb.Kind.String())
		e.scheduleSelfSync()

	case event.FeedbackKill:
		e.model.EnsureBattle(cursor.ArenaID)
		if err := e.model.ApplyKill(cursor.ArenaID, cursor.PlayerID); err != nil {
			e.mu.Unlock()
			e.log.Warn(ctx, "kill event dropped", logger.Error(err))
			metrics.RecordEventSkipped()
			return
		}
		e.cache.InvalidateAll()
		e.mu.Unlock()
		metrics.RecordEventApplied(fb.Kind.String())
		e.scheduleSelfSync()

	case event.FeedbackRadioAssist,
		event.FeedbackTrackAssist,
		event.FeedbackTanking,
		event.FeedbackReceivedDamage,
		event.FeedbackTargetVisibility,
		event.FeedbackDetected,
		event.FeedbackSpotted:
		e.mu.Unlock()
		metrics.RecordEventApplied(fb.Kind.String())
		e.schedulePeerSync()

	default:
		e.mu.Unlock()
		metrics.RecordEventSkipped()
	}
}

// HandleBattleResult applies the definitive end-of-session payload. Arena
// and player ids come from the payload, never the cursor, since results may
// arrive after the cursor has moved on.
func (e *Engine) HandleBattleResult(ctx context.Context, res event.BattleResult) error {
	if len(res.Vehicles) == 0 || len(res.Players) == 0 {
		e.log.Warn(ctx, "battle result missing vehicles or players")
		metrics.RecordEventSkipped()
		return wire.ErrMalformedPayload
	}
	if res.ArenaID == "" || res.AccountID == "" {
		metrics.RecordEventSkipped()
		return nil
	}

	e.mu.Lock()
	e.model.UpdateCursor(func(c *stats.Cursor) { c.PlayerID = res.AccountID })
	e.model.EnsureBattle(res.ArenaID)
	if _, err := e.model.EnsurePlayer(res.ArenaID, res.AccountID); err != nil {
		e.mu.Unlock()
		return err
	}

	win := resolveOutcome(res)
	damage, kills, found := findVehicleRow(res)
	var err error
	if found {
		err = e.model.ReplaceBattleResult(res.ArenaID, res.AccountID, damage, kills, win, res.Duration)
	} else {
		err = e.model.SetBattleOutcome(res.ArenaID, win, res.Duration)
	}
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.cache.InvalidateAll()
	e.updateGaugesLocked()
	e.mu.Unlock()

	metrics.RecordEventApplied("battleResult")
	e.scheduleSelfSync()
	return nil
}

// resolveOutcome compares the player's team against the declared winner.
// Team 0 is the "no team" marker and leaves the outcome unset; winner 0
// marks a draw.
func resolveOutcome(res event.BattleResult) model.Outcome {
	row, ok := res.Players[res.AccountID]
	if !ok || row.Team == 0 {
		return model.OutcomeUnknown
	}
	switch {
	case row.Team == res.WinnerTeam:
		return model.OutcomeWin
	case res.WinnerTeam == 0:
		return model.OutcomeDraw
	default:
		return model.OutcomeLoss
	}
}

// findVehicleRow picks the first result row belonging to the player. Vehicle
// group keys are vehicle ids, almost always integer-like, and the result
// bundle lists them numerically; visit them the same way so duplicate rows
// resolve to the same record. Non-numeric keys sort after, lexicographically.
func findVehicleRow(res event.BattleResult) (damage, kills int, found bool) {
	keys := make([]string, 0, len(res.Vehicles))
	for k := range res.Vehicles {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aerr := strconv.Atoi(keys[i])
		b, berr := strconv.Atoi(keys[j])
		switch {
		case aerr == nil && berr == nil:
			return a < b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	for _, k := range keys {
		for _, row := range res.Vehicles[k] {
			if row.AccountID == res.AccountID {
				return row.DamageDealt, row.Kills, true
			}
		}
	}
	return 0, 0, false
}

// HandleServerPayload normalizes and merges an inbound store payload,
// regardless of which transport delivered it.
func (e *Engine) HandleServerPayload(ctx context.Context, payload wire.ServerPayload) {
	if !payload.Success {
		return
	}
	if payload.BattleStats == nil && payload.PlayerInfo == nil {
		e.log.Warn(ctx, "server payload carried no data")
		return
	}

	e.mu.Lock()
	snap := wire.NormalizeSnapshot(payload, e.model.PlayerName, e.now())
	// A payload may carry only one of the two sections; the absent one
	// keeps its current contents.
	if payload.BattleStats == nil {
		cur := e.model.Snapshot()
		snap.Order = cur.Order
		snap.Battles = cur.Battles
	}
	if payload.PlayerInfo == nil {
		snap.Players = e.model.Snapshot().Players
	}
	e.model.MergeSnapshot(snap)
	e.cache.InvalidateAll()
	e.updateGaugesLocked()
	e.persistLocked(ctx)
	e.mu.Unlock()

	metrics.RecordSnapshotMerge()
	e.notifier.Publish()
}

// ApplyServerFrame adapts a raw real-time push into a payload merge.
func (e *Engine) ApplyServerFrame(ctx context.Context, op string, body []byte) {
	if op != "statsUpdated" {
		return
	}
	payload, err := wire.DecodePayload(body)
	if err != nil {
		e.log.Warn(ctx, "undecodable server push", logger.Error(err))
		return
	}
	e.HandleServerPayload(ctx, payload)
}

// LoadFromServer pulls the caller's own stats and merges them.
func (e *Engine) LoadFromServer(ctx context.Context) error {
	payload, err := e.channel.PullSelf(ctx)
	if err != nil {
		e.log.Warn(ctx, "load from server failed", logger.Error(err))
		return err
	}
	e.HandleServerPayload(ctx, payload)
	return nil
}

// Clear wipes the remote store and the local model. Requires connectivity:
// without it nothing is touched and ErrNoConnectivity-style failure is
// returned to the caller.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.channel.Clear(ctx); err != nil {
		e.log.Error(ctx, "remote clear failed", logger.Error(err))
		return err
	}

	// Stale syncs over discarded data must never fire.
	e.sched.Reset()

	e.mu.Lock()
	playerID := e.model.Cursor().PlayerID
	e.model.Reset(playerID)
	e.cache.InvalidateAll()
	e.updateGaugesLocked()
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.Clear(ctx); err != nil {
			e.log.Warn(ctx, "local state clear failed", logger.Error(err))
		}
	}
	e.notifier.Publish()
	return nil
}

// Refresh discards all local state, waits briefly for trailing asynchronous
// writes to settle, reloads from the remote store, and persists the result.
func (e *Engine) Refresh(ctx context.Context) error {
	e.sched.Reset()

	e.mu.Lock()
	playerID := e.model.Cursor().PlayerID
	e.model.Reset(playerID)
	e.cache.InvalidateAll()
	e.updateGaugesLocked()
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.Clear(ctx); err != nil {
			e.log.Warn(ctx, "local state clear failed", logger.Error(err))
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.settleDelay):
	}

	err := e.LoadFromServer(ctx)

	e.notifier.Publish()
	e.mu.Lock()
	e.persistLocked(ctx)
	e.mu.Unlock()
	return err
}

// scheduleSelfSync arms the debounced save of this participant's data.
func (e *Engine) scheduleSelfSync() {
	e.sched.Schedule(TaskSyncSelf, e.debounceDelay, func() {
		e.syncSelf(context.Background())
	})
}

// schedulePeerSync arms the debounced fetch of peer data.
func (e *Engine) schedulePeerSync() {
	e.sched.Schedule(TaskSyncPeers, e.debounceDelay, func() {
		e.syncPeers(context.Background())
	})
}

func (e *Engine) syncSelf(ctx context.Context) {
	e.mu.Lock()
	snap := e.model.Snapshot()
	e.persistLocked(ctx)
	e.mu.Unlock()

	e.channel.Push(ctx, wire.EncodeSaveBody(snap))
}

func (e *Engine) syncPeers(ctx context.Context) {
	payload, err := e.channel.PullPeers(ctx)
	if err != nil {
		e.log.Warn(ctx, "peer sync failed", logger.Error(err))
		return
	}
	e.HandleServerPayload(ctx, payload)
}

// persistLocked writes the warm-restart snapshot. Caller holds e.mu.
func (e *Engine) persistLocked(ctx context.Context) {
	if e.store == nil {
		return
	}
	snap := e.model.Snapshot()
	cursor := e.model.Cursor()
	st := localstore.State{
		BattleStats:     snap.Battles,
		BattleOrder:     snap.Order,
		PlayersInfo:     snap.Players,
		CurrentPlayerID: cursor.PlayerID,
		CurrentArenaID:  cursor.ArenaID,
		CurrentVehicle:  cursor.Vehicle,
		IsInPlatoon:     cursor.InPlatoon,
		IsInBattle:      cursor.InBattle,
		LastUpdateTime:  cursor.LastUpdate,
	}
	if err := e.store.Save(ctx, st); err != nil {
		e.log.Warn(ctx, "local state save failed", logger.Error(err))
	}
}

func (e *Engine) updateGaugesLocked() {
	metrics.UpdateBattlesTracked(e.model.BattleCount())
	metrics.UpdatePeersKnown(e.model.PlayerCount())
}

// Cursor returns the current session cursor.
func (e *Engine) Cursor() stats.Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Cursor()
}

// Snapshot returns a deep copy of the current model state.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Snapshot()
}

// ArenaTotals returns per-arena totals, cached.
func (e *Engine) ArenaTotals(arenaID string) aggregate.BattleTotals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.BattleTotals(e.model, arenaID)
}

// PlayerTotals returns one player's totals across all arenas, cached.
func (e *Engine) PlayerTotals(playerID string) aggregate.PlayerTotals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.PlayerTotals(e.model, playerID)
}

// TeamTotals returns totals across all arenas and players, cached.
func (e *Engine) TeamTotals() aggregate.TeamTotals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.TeamTotals(e.model)
}

// Extremes returns the best and worst completed battles, cached.
func (e *Engine) Extremes() aggregate.Extremes {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Extremes(e.model)
}
