package gamelogic

import (
	"fmt"
	"time"

	"mazeparty/internal/gamestate"
	"mazeparty/internal/geom"
	"mazeparty/internal/level"
	"mazeparty/internal/logger"
	"mazeparty/internal/players"
	"mazeparty/internal/powerup"
	"mazeparty/internal/protocol"
)

// Authority owns the rules. Every peer uses it to load levels; only the host
// calls Judge and the Accept methods, and only the host's results are
// broadcast.
type Authority struct {
	cfg      Config
	state    *gamestate.State
	roster   *players.Store
	levels   level.Source
	powerups *powerup.Tracker

	current   level.Descriptor
	collected map[string]bool
}

func NewAuthority(cfg Config, state *gamestate.State, roster *players.Store, levels level.Source, tracker *powerup.Tracker) *Authority {
	return &Authority{
		cfg:       cfg,
		state:     state,
		roster:    roster,
		levels:    levels,
		powerups:  tracker,
		collected: make(map[string]bool),
	}
}

// Current implements LevelView.
func (a *Authority) Current() level.Descriptor {
	return a.current
}

func (a *Authority) Config() Config {
	return a.cfg
}

// Prepare builds the start announcement for level n without changing any
// state.
func (a *Authority) Prepare(n int) (protocol.GameStarted, error) {
	d, ok := a.levels.Level(n)
	if !ok {
		return protocol.GameStarted{}, fmt.Errorf("%w: %d", ErrNoLevel, n)
	}
	return protocol.GameStarted{Level: n, TeamLives: a.cfg.TeamLives, Spawn: d.Spawn}, nil
}

// Begin starts play as announced by gs, on host and members alike.
func (a *Authority) Begin(gs protocol.GameStarted) error {
	d, ok := a.levels.Level(gs.Level)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoLevel, gs.Level)
	}
	a.current = d
	a.collected = make(map[string]bool)
	a.powerups.ClearAll()
	a.state.Start(gs.Level, gs.TeamLives, gs.Spawn)
	a.roster.SetAllAlive(true)
	for _, id := range a.roster.IDs() {
		a.roster.SetMotion(id, gs.Spawn, geom.Vec{})
		a.roster.SetScore(id, 0)
	}
	return nil
}

// Advance moves to the level announced by la.
func (a *Authority) Advance(la protocol.LevelAdvance) error {
	d, ok := a.levels.Level(la.Level)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoLevel, la.Level)
	}
	a.current = d
	a.collected = make(map[string]bool)
	a.state.AdvanceLevel(la.Level, 0, la.Spawn)
	a.state.SetScore(la.TeamScore)
	a.roster.SetAllAlive(true)
	for _, id := range a.roster.IDs() {
		a.roster.SetMotion(id, la.Spawn, geom.Vec{})
	}
	return nil
}

// Sync adopts a host snapshot, loading the level if it changed.
func (a *Authority) Sync(snap gamestate.Snapshot) {
	if snap.Level != a.current.Number {
		if d, ok := a.levels.Level(snap.Level); ok {
			a.current = d
			a.collected = make(map[string]bool)
		}
	}
	a.state.Restore(snap)
}

// Judge validates one intent from peer from and returns the confirmed deltas
// to broadcast, in order. A rejected intent yields nothing.
func (a *Authority) Judge(from string, p protocol.Payload, now time.Time) []protocol.Payload {
	switch v := p.(type) {
	case protocol.CheckpointReached:
		if v.Confirmed || v.PlayerID != from {
			return nil
		}
		cp, score, ok := a.AcceptCheckpoint(v.PlayerID, v.CheckpointID)
		if !ok {
			return nil
		}
		return []protocol.Payload{cp, score}
	case protocol.PlayerDied:
		if v.Confirmed || v.PlayerID != from {
			return nil
		}
		return a.AcceptDeath(v.PlayerID, v.Cause, v.Position)
	case protocol.FinishReached:
		if v.PlayerID != from {
			return nil
		}
		if out, ok := a.AcceptFinish(v.PlayerID); ok {
			return []protocol.Payload{out}
		}
	case protocol.PowerUpCollected:
		if v.Confirmed || v.PlayerID != from {
			return nil
		}
		if out, ok := a.AcceptPowerUp(v.PlayerID, v.PowerUpID, now); ok {
			return []protocol.Payload{out}
		}
	case protocol.MapScroll:
		if v.Confirmed || v.PlayerID != from {
			return nil
		}
		if out, ok := a.AcceptScroll(v.PlayerID, v.Edge); ok {
			return []protocol.Payload{out}
		}
		// Anyone else touching a border hits its spikes.
		p := a.roster.Get(v.PlayerID)
		if p == nil {
			return nil
		}
		return a.AcceptDeath(v.PlayerID, "border_spike", p.Position)
	case protocol.Intent:
		return a.Control(v.Action)
	}
	return nil
}

// AcceptCheckpoint awards a checkpoint the first time it is reached. Repeats
// and unknown ids change nothing.
func (a *Authority) AcceptCheckpoint(playerID, id string) (protocol.CheckpointReached, protocol.ScoreUpdate, bool) {
	if a.state.Phase() != gamestate.PhasePlaying || !a.roster.Has(playerID) {
		return protocol.CheckpointReached{}, protocol.ScoreUpdate{}, false
	}
	cp, ok := a.current.Checkpoint(id)
	if !ok {
		logger.Debug("[Game] Unknown checkpoint %s", id)
		return protocol.CheckpointReached{}, protocol.ScoreUpdate{}, false
	}
	if !a.state.CompleteCheckpoint(id, cp.Position) {
		return protocol.CheckpointReached{}, protocol.ScoreUpdate{}, false
	}
	team := a.state.AddScore(cp.Points)
	player := a.roster.UpdateScore(playerID, cp.Points)
	confirmed := protocol.CheckpointReached{
		PlayerID:     playerID,
		CheckpointID: id,
		Position:     cp.Position,
		Confirmed:    true,
		Points:       cp.Points,
		TeamScore:    team,
	}
	score := protocol.ScoreUpdate{PlayerID: playerID, Points: cp.Points, PlayerScore: player.Score, TeamScore: team}
	return confirmed, score, true
}

// AcceptDeath takes exactly one team life. Deaths while the team is already
// respawning are ignored. The result is the confirmed death followed by
// either a respawn or the end of the game.
func (a *Authority) AcceptDeath(playerID, cause string, pos geom.Vec) []protocol.Payload {
	if a.state.Phase() != gamestate.PhasePlaying {
		return nil
	}
	if p := a.roster.Get(playerID); p == nil || !p.Alive {
		return nil
	}
	lives, ok := a.state.LoseLife()
	if !ok {
		return nil
	}
	a.roster.SetAlive(playerID, false)
	a.roster.SetVelocity(playerID, geom.Vec{})
	died := protocol.PlayerDied{
		PlayerID:  playerID,
		Cause:     cause,
		Position:  pos,
		Confirmed: true,
		TeamLives: lives,
		GameOver:  lives == 0,
	}
	if lives == 0 {
		logger.Info("[Game] %s died (%s), no lives left", playerID, cause)
		return []protocol.Payload{died, protocol.GameEnded{
			Victory:   false,
			Reason:    "out of lives",
			TeamScore: a.state.TeamScore(),
			Level:     a.state.Level(),
		}}
	}
	a.state.SetPhase(gamestate.PhaseRespawning)
	logger.Info("[Game] %s died (%s), %d lives left", playerID, cause, lives)
	return []protocol.Payload{died, protocol.Respawn{
		Position:  a.state.LastCheckpoint(),
		DelayMs:   a.cfg.RespawnDelay.Milliseconds(),
		TeamLives: lives,
	}}
}

// CompleteRespawn brings everyone back once the respawn delay has passed.
func (a *Authority) CompleteRespawn(pos geom.Vec) bool {
	a.roster.SetAllAlive(true)
	for _, id := range a.roster.IDs() {
		a.roster.SetMotion(id, pos, geom.Vec{})
	}
	a.state.ClearFinished()
	if a.state.Phase() != gamestate.PhaseRespawning {
		return false
	}
	a.state.SetPhase(gamestate.PhasePlaying)
	return true
}

// AcceptFinish records a finish contact. Once every alive player has
// finished, the next level is announced, or the game is won when there is
// none.
func (a *Authority) AcceptFinish(playerID string) (protocol.Payload, bool) {
	if a.state.Phase() != gamestate.PhasePlaying {
		return nil, false
	}
	if p := a.roster.Get(playerID); p == nil || !p.Alive {
		return nil, false
	}
	if !a.state.MarkFinished(playerID) {
		return nil, false
	}
	if !a.state.Finished(a.roster.AliveIDs()) {
		return nil, false
	}
	return a.clearLevel()
}

// Recheck applies the finish rule again after the roster shrank: when the
// player everyone was waiting for leaves, the others have already finished.
func (a *Authority) Recheck() (protocol.Payload, bool) {
	if a.state.Phase() != gamestate.PhasePlaying || !a.state.Finished(a.roster.AliveIDs()) {
		return nil, false
	}
	return a.clearLevel()
}

// clearLevel announces the next level, or wins the game after the last one.
func (a *Authority) clearLevel() (protocol.Payload, bool) {
	cur := a.state.Level()
	bonus := a.current.Bonus
	next, ok := a.levels.Level(cur + 1)
	if !ok {
		score := a.state.AddScore(bonus)
		a.state.End(true)
		logger.Info("[Game] Final level %d cleared, score %d", cur, score)
		return protocol.GameEnded{Victory: true, Reason: "all levels cleared", TeamScore: score, Level: cur}, true
	}
	la := protocol.LevelAdvance{
		Level:     next.Number,
		Bonus:     bonus,
		TeamScore: a.state.TeamScore() + bonus,
		Spawn:     next.Spawn,
	}
	if err := a.Advance(la); err != nil {
		logger.Error("[Game] Advancing to level %d: %v", next.Number, err)
		return nil, false
	}
	logger.Info("[Game] Level %d cleared, on to %d", cur, next.Number)
	return la, true
}

// AcceptPowerUp hands a power-up to the first player to reach it.
func (a *Authority) AcceptPowerUp(playerID, id string, now time.Time) (protocol.PowerUpCollected, bool) {
	if !a.state.Phase().Active() || !a.roster.Has(playerID) || a.collected[id] {
		return protocol.PowerUpCollected{}, false
	}
	spot, ok := a.current.PowerUp(id)
	if !ok {
		return protocol.PowerUpCollected{}, false
	}
	typ, ok := powerup.ParseType(spot.Type)
	if !ok {
		return protocol.PowerUpCollected{}, false
	}
	d := spot.Duration
	if d <= 0 {
		d = a.cfg.PowerUpDuration
	}
	out := protocol.PowerUpCollected{
		PlayerID:   playerID,
		PowerUpID:  id,
		Effect:     string(typ),
		Multiplier: typ.Multiplier(),
		DurationMs: d.Milliseconds(),
		Confirmed:  true,
	}
	a.Collect(out, now)
	return out, true
}

// Collect activates a confirmed power-up.
func (a *Authority) Collect(p protocol.PowerUpCollected, now time.Time) bool {
	a.collected[p.PowerUpID] = true
	return a.powerups.Activate(powerup.Effect{
		PowerUpID:   p.PowerUpID,
		PlayerID:    p.PlayerID,
		Type:        powerup.Type(p.Effect),
		Multiplier:  p.Multiplier,
		ActivatedAt: now,
		Duration:    time.Duration(p.DurationMs) * time.Millisecond,
	})
}

// AcceptScroll moves the shared map when a MapMover pushes its own edge.
func (a *Authority) AcceptScroll(playerID, edgeName string) (protocol.MapScroll, bool) {
	if a.state.Phase() != gamestate.PhasePlaying {
		return protocol.MapScroll{}, false
	}
	p := a.roster.Get(playerID)
	edge, ok := players.ParseEdge(edgeName)
	if p == nil || !ok || !p.CanScroll(edge) {
		return protocol.MapScroll{}, false
	}
	offset := a.state.Scroll(scrollDelta(edge, a.cfg.ScrollStep))
	return protocol.MapScroll{PlayerID: playerID, Edge: edgeName, Offset: offset, Confirmed: true}, true
}

func scrollDelta(e players.Edge, step float64) geom.Vec {
	switch e {
	case players.EdgeRight:
		return geom.Vec{X: step}
	case players.EdgeLeft:
		return geom.Vec{X: -step}
	case players.EdgeBottom:
		return geom.Vec{Y: step}
	case players.EdgeTop:
		return geom.Vec{Y: -step}
	}
	return geom.Vec{}
}

// Control handles pause, resume and restart requests.
func (a *Authority) Control(action string) []protocol.Payload {
	switch action {
	case protocol.ActionPause:
		if a.state.Pause() {
			return []protocol.Payload{protocol.GamePaused{Reason: "paused by a player"}}
		}
	case protocol.ActionResume:
		if a.state.Resume() {
			return []protocol.Payload{protocol.GameResumed{}}
		}
	case protocol.ActionRestart:
		gs, err := a.Restart()
		if err != nil {
			logger.Error("[Game] Restart: %v", err)
			return nil
		}
		return []protocol.Payload{gs}
	}
	return nil
}

// Restart begins again from the first level with the current roles. It is
// the only way team lives go back up.
func (a *Authority) Restart() (protocol.GameStarted, error) {
	gs, err := a.Prepare(a.cfg.FirstLevel)
	if err != nil {
		return gs, err
	}
	for _, as := range a.roster.Assignments() {
		gs.Roles = append(gs.Roles, protocol.RoleAssignment{PlayerID: as.PlayerID, Role: string(as.Role), Edge: string(as.Edge)})
	}
	if err := a.Begin(gs); err != nil {
		return gs, err
	}
	return gs, nil
}
