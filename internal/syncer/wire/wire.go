// Package wire translates between the remote store's payload shapes and the
// domain model.
//
// The store is inconsistent about nesting: a battle or player record may
// arrive either plain or wrapped one level under an "_id" key, and battles
// and players are wrapped independently. All inbound data is normalized
// through this package before it may touch the model. Outbound payloads
// always use the wrapped form and carry the legacy "frags" alias next to
// "kills".
package wire

import (
	"encoding/json"
	"sort"

	"github.com/UnderPressurePH7/platoon-widget/internal/domain/model"
)

// Remote status codes. Reads succeed with StatusOK; a save is acknowledged
// with the distinct StatusAccepted.
const (
	StatusOK       = 200
	StatusAccepted = 202
)

// Response is the transport-level reply envelope shared by both transports.
type Response struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// ServerPayload is the logical read result from either transport.
type ServerPayload struct {
	Success     bool                       `json:"success"`
	BattleStats map[string]json.RawMessage `json:"BattleStats"`
	PlayerInfo  map[string]json.RawMessage `json:"PlayerInfo"`
}

// battleWire mirrors one battle record as the store sends it. Pointer fields
// distinguish absent from zero for defaulting.
type battleWire struct {
	StartTime *int64                     `json:"startTime"`
	Duration  *int                       `json:"duration"`
	Win       *int                       `json:"win"`
	MapName   string                     `json:"mapName"`
	Players   map[string]json.RawMessage `json:"players"`
}

type playerWire struct {
	Name    string `json:"name"`
	Damage  *int   `json:"damage"`
	Kills   *int   `json:"kills"`
	Frags   *int   `json:"frags"`
	Points  *int   `json:"points"`
	Vehicle string `json:"vehicle"`
}

// envelope detects the one-level "_id" wrapping.
type envelope struct {
	ID json.RawMessage `json:"_id"`
}

// unwrap returns the record under "_id" when raw is a wrapped object, raw
// itself otherwise.
func unwrap(raw json.RawMessage) json.RawMessage {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.ID) > 0 {
		return env.ID
	}
	return raw
}

// NormalizeSnapshot converts a server payload into a domain snapshot,
// unwrapping envelopes, defaulting missing fields, honoring the legacy
// frags alias and rederiving points when absent. lookupName resolves player
// names the payload omits; nowMilli stamps battles missing a start time.
// Arena order is sorted for determinism since JSON maps carry none.
func NormalizeSnapshot(payload ServerPayload, lookupName func(playerID string) string, nowMilli int64) model.Snapshot {
	snap := model.Snapshot{
		Battles: make(map[string]*model.Battle, len(payload.BattleStats)),
		Players: make(map[string]string, len(payload.PlayerInfo)),
	}

	for playerID, raw := range payload.PlayerInfo {
		var name string
		if err := json.Unmarshal(unwrap(raw), &name); err != nil || name == "" {
			continue
		}
		snap.Players[playerID] = name
	}

	for arenaID, raw := range payload.BattleStats {
		var bw battleWire
		if err := json.Unmarshal(unwrap(raw), &bw); err != nil {
			continue
		}
		b := &model.Battle{
			StartTime: nowMilli,
			Duration:  0,
			Win:       model.OutcomeUnknown,
			MapName:   model.UnknownMap,
			Players:   make(map[string]*model.PlayerStat, len(bw.Players)),
		}
		if bw.StartTime != nil {
			b.StartTime = *bw.StartTime
		}
		if bw.Duration != nil {
			b.Duration = *bw.Duration
		}
		if bw.Win != nil {
			b.Win = model.Outcome(*bw.Win)
		}
		if bw.MapName != "" {
			b.MapName = bw.MapName
		}
		for playerID, rawPlayer := range bw.Players {
			var pw playerWire
			if err := json.Unmarshal(unwrap(rawPlayer), &pw); err != nil {
				continue
			}
			b.Players[playerID] = normalizePlayer(playerID, pw, snap.Players, lookupName)
		}
		snap.Battles[arenaID] = b
		snap.Order = append(snap.Order, arenaID)
	}
	sort.Strings(snap.Order)
	return snap
}

func normalizePlayer(playerID string, pw playerWire, directory map[string]string, lookupName func(string) string) *model.PlayerStat {
	p := &model.PlayerStat{
		Name:    pw.Name,
		Vehicle: pw.Vehicle,
	}
	if pw.Damage != nil {
		p.Damage = *pw.Damage
	}
	switch {
	case pw.Kills != nil:
		p.Kills = *pw.Kills
	case pw.Frags != nil:
		p.Kills = *pw.Frags
	}
	if pw.Points != nil {
		p.Points = *pw.Points
	} else {
		p.Points = p.Damage*model.PointsPerDamage + p.Kills*model.PointsPerFrag
	}
	if p.Name == "" {
		if name := directory[playerID]; name != "" {
			p.Name = name
		} else if lookupName != nil {
			p.Name = lookupName(playerID)
		}
	}
	if p.Name == "" {
		p.Name = model.UnknownPlayer
	}
	if p.Vehicle == "" {
		p.Vehicle = model.UnknownVehicle
	}
	return p
}

// wrappedBattle and wrappedPlayer are the outbound envelope forms.
type wrappedBattle struct {
	ID outBattle `json:"_id"`
}

type outBattle struct {
	StartTime int64                    `json:"startTime"`
	Duration  int                      `json:"duration"`
	Win       int                      `json:"win"`
	MapName   string                   `json:"mapName"`
	Players   map[string]wrappedPlayer `json:"players"`
}

type wrappedPlayer struct {
	ID outPlayer `json:"_id"`
}

type outPlayer struct {
	Name    string `json:"name"`
	Damage  int    `json:"damage"`
	Kills   int    `json:"kills"`
	Frags   int    `json:"frags"` // legacy alias, always mirrors Kills
	Points  int    `json:"points"`
	Vehicle string `json:"vehicle"`
}

// SaveBody is the outbound write payload for the remote store.
type SaveBody struct {
	BattleStats map[string]wrappedBattle `json:"BattleStats"`
	PlayerInfo  map[string]string        `json:"PlayerInfo"`
}

// EncodeSaveBody builds the outbound payload from a snapshot, wrapping every
// battle and player in the envelope form the store schema expects.
func EncodeSaveBody(snap model.Snapshot) SaveBody {
	body := SaveBody{
		BattleStats: make(map[string]wrappedBattle, len(snap.Battles)),
		PlayerInfo:  make(map[string]string, len(snap.Players)),
	}
	for arenaID, b := range snap.Battles {
		ob := outBattle{
			StartTime: b.StartTime,
			Duration:  b.Duration,
			Win:       int(b.Win),
			MapName:   b.MapName,
			Players:   make(map[string]wrappedPlayer, len(b.Players)),
		}
		if ob.MapName == "" {
			ob.MapName = model.UnknownMap
		}
		for playerID, p := range b.Players {
			op := outPlayer{
				Name:    p.Name,
				Damage:  p.Damage,
				Kills:   p.Kills,
				Frags:   p.Kills,
				Points:  p.Points,
				Vehicle: p.Vehicle,
			}
			if op.Name == "" {
				op.Name = model.UnknownPlayer
			}
			if op.Vehicle == "" {
				op.Vehicle = model.UnknownVehicle
			}
			ob.Players[playerID] = wrappedPlayer{ID: op}
		}
		body.BattleStats[arenaID] = wrappedBattle{ID: ob}
	}
	for playerID, name := range snap.Players {
		body.PlayerInfo[playerID] = name
	}
	return body
}

// DecodePayload parses a logical read body from either transport.
func DecodePayload(raw json.RawMessage) (ServerPayload, error) {
	var payload ServerPayload
	if len(raw) == 0 {
		return payload, ErrMalformedPayload
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, err
	}
	return payload, nil
}
