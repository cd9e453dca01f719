// Package reconcile applies protocol messages to the local game state.
//
// The host's state is authoritative. Members send intents; the host judges
// them and broadcasts confirmed deltas, which every member mirrors. Movement
// is the one exception: remote positions are blended in as they arrive and
// the local player is never moved by an echo.
package reconcile

import (
	"time"

	"mazeparty/internal/events"
	"mazeparty/internal/gamelogic"
	"mazeparty/internal/gamestate"
	"mazeparty/internal/geom"
	"mazeparty/internal/logger"
	"mazeparty/internal/players"
	"mazeparty/internal/powerup"
	"mazeparty/internal/protocol"
)

// DefaultBlend is how far a remote player moves towards each received
// position.
const DefaultBlend = 0.1

const checkpointAnimation = 500 * time.Millisecond

// Publisher receives change notifications. events.Bus satisfies it.
type Publisher interface {
	Publish(ev events.Event) bool
}

type Deps struct {
	Self      string
	State     *gamestate.State
	Roster    *players.Store
	PowerUps  *powerup.Tracker
	Authority *gamelogic.Authority
	Contacts  *gamelogic.ContactHandler
	Physics   gamelogic.Physics
	Scheduler gamelogic.Scheduler
	Bus       Publisher
	Clock     func() time.Time
	Blend     float64
}

// Outcome is what applying one message asks of the caller.
type Outcome struct {
	// Broadcast lists confirmed deltas the host must send to every peer,
	// the origin of the intent included.
	Broadcast []protocol.Payload
	Changed   bool
}

type Reconciler struct {
	self     string
	host     bool
	blend    float64
	state    *gamestate.State
	roster   *players.Store
	powerups *powerup.Tracker
	auth     *gamelogic.Authority
	contacts *gamelogic.ContactHandler
	physics  gamelogic.Physics
	sched    gamelogic.Scheduler
	bus      Publisher
	clock    func() time.Time

	seq           uint64
	lastSeq       map[string]uint64
	cancelRespawn func()
}

func New(d Deps) *Reconciler {
	r := &Reconciler{
		self:     d.Self,
		blend:    d.Blend,
		state:    d.State,
		roster:   d.Roster,
		powerups: d.PowerUps,
		auth:     d.Authority,
		contacts: d.Contacts,
		physics:  d.Physics,
		sched:    d.Scheduler,
		bus:      d.Bus,
		clock:    d.Clock,
		lastSeq:  make(map[string]uint64),
	}
	if r.blend <= 0 || r.blend > 1 {
		r.blend = DefaultBlend
	}
	if r.physics == nil {
		r.physics = gamelogic.NopPhysics{}
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	return r
}

// SetHost switches between judging intents and mirroring the host.
func (r *Reconciler) SetHost(host bool) {
	r.host = host
}

func (r *Reconciler) IsHost() bool {
	return r.host
}

// Interpolate moves cur a fraction blend of the way to target.
func Interpolate(cur, target geom.Vec, blend float64) geom.Vec {
	return cur.Lerp(target, blend)
}

// Reconcile merges a host snapshot into the local one. The host wins, but
// within one level the checkpoint set, score and elapsed time never go
// backwards and lives never go up, so a stale sync cannot undo a confirmed
// delta that overtook it.
func Reconcile(local gamestate.Snapshot, incoming protocol.Snapshot) gamestate.Snapshot {
	next := gamelogic.FromWire(incoming)
	if local.Level != next.Level || local.Phase.Over() && !next.Phase.Over() {
		return next
	}
	seen := make(map[string]bool, len(next.Checkpoints))
	for _, id := range next.Checkpoints {
		seen[id] = true
	}
	for _, id := range local.Checkpoints {
		if !seen[id] {
			next.Checkpoints = append(next.Checkpoints, id)
			seen[id] = true
		}
	}
	next.TeamScore = max(next.TeamScore, local.TeamScore)
	next.TeamLives = min(next.TeamLives, local.TeamLives)
	next.Elapsed = max(next.Elapsed, local.Elapsed)
	return next
}

// Snapshot is the local state in wire form.
func (r *Reconciler) Snapshot() protocol.Snapshot {
	return gamelogic.ToWire(r.state.Snapshot())
}

// SpeedMultiplier is the product of id's live power-ups.
func (r *Reconciler) SpeedMultiplier(id string) float64 {
	return r.powerups.Multiplier(id, r.clock())
}

// BuildOutgoing wraps a local intent for the wire. Movement is stamped with
// the next sequence number and applied to the local player first.
func (r *Reconciler) BuildOutgoing(p protocol.Payload, sessionID string) protocol.Message {
	if mv, ok := p.(protocol.Movement); ok {
		r.seq++
		mv.Seq = r.seq
		mv.PlayerID = r.self
		r.roster.SetMotion(r.self, mv.Position, mv.Velocity)
		p = mv
	}
	return protocol.New(r.self, sessionID, p, r.clock())
}

// Start begins the game announced by gs. The host calls it once the session
// accepted the start; members get here through ApplyIncoming.
func (r *Reconciler) Start(gs protocol.GameStarted) error {
	if err := r.auth.Begin(gs); err != nil {
		return err
	}
	r.started(gs)
	r.publishState()
	return nil
}

func intent(p protocol.Payload) bool {
	switch v := p.(type) {
	case protocol.CheckpointReached:
		return !v.Confirmed
	case protocol.PlayerDied:
		return !v.Confirmed
	case protocol.PowerUpCollected:
		return !v.Confirmed
	case protocol.MapScroll:
		return !v.Confirmed
	case protocol.FinishReached, protocol.Intent:
		return true
	}
	return false
}

// ApplyIncoming applies one message. On the host, intents are judged and
// the confirmed deltas returned for broadcast; on members, only the host's
// confirmed deltas change shared state.
func (r *Reconciler) ApplyIncoming(m protocol.Message) Outcome {
	now := r.clock()
	if m.Expired(now) {
		return Outcome{}
	}

	switch p := m.Payload.(type) {
	case protocol.Movement:
		if p.PlayerID != m.From {
			return Outcome{}
		}
		return Outcome{Changed: r.applyMovement(p)}
	case protocol.GameStarted:
		if r.host {
			return Outcome{}
		}
		if err := r.Start(p); err != nil {
			logger.Error("[Reconcile] Starting level %d: %v", p.Level, err)
			return Outcome{}
		}
		return Outcome{Changed: true}
	case protocol.JoinAccepted:
		if r.host || !p.InGame || p.State.Level < 1 {
			return Outcome{}
		}
		r.sync(p.State)
		return Outcome{Changed: true}
	case protocol.StateSync:
		if r.host {
			return Outcome{}
		}
		r.sync(p.Snapshot)
		return Outcome{Changed: true}
	}

	if intent(m.Payload) {
		if !r.host {
			return Outcome{}
		}
		deltas := r.auth.Judge(m.From, m.Payload, now)
		if len(deltas) == 0 && m.From == r.self {
			r.contacts.Reject(m.Payload)
		}
		for _, d := range deltas {
			r.effect(d)
		}
		if len(deltas) > 0 {
			r.publishState()
		}
		return Outcome{Broadcast: deltas, Changed: len(deltas) > 0}
	}

	if r.host || !confirmedDelta(m.Payload) {
		return Outcome{}
	}
	r.mirror(m.Payload, now)
	r.effect(m.Payload)
	r.publishState()
	return Outcome{Changed: true}
}

// Recheck lets the host clear a level whose last unfinished player left.
func (r *Reconciler) Recheck() Outcome {
	if !r.host {
		return Outcome{}
	}
	d, ok := r.auth.Recheck()
	if !ok {
		return Outcome{}
	}
	r.effect(d)
	r.publishState()
	return Outcome{Broadcast: []protocol.Payload{d}, Changed: true}
}

func confirmedDelta(p protocol.Payload) bool {
	switch p.(type) {
	case protocol.CheckpointReached, protocol.ScoreUpdate, protocol.PlayerDied, protocol.Respawn,
		protocol.LevelAdvance, protocol.PowerUpCollected, protocol.MapScroll,
		protocol.GameEnded, protocol.GamePaused, protocol.GameResumed:
		return true
	}
	return false
}

func (r *Reconciler) applyMovement(p protocol.Movement) bool {
	if p.PlayerID == r.self {
		return false
	}
	if last, ok := r.lastSeq[p.PlayerID]; ok && p.Seq <= last {
		return false
	}
	cur := r.roster.Get(p.PlayerID)
	if cur == nil {
		return false
	}
	r.lastSeq[p.PlayerID] = p.Seq
	pos := Interpolate(cur.Position, p.Position, r.blend)
	r.roster.SetMotion(p.PlayerID, pos, p.Velocity)
	r.physics.SetPosition(p.PlayerID, pos)
	r.physics.SetVelocity(p.PlayerID, p.Velocity)
	return true
}

// mirror copies a confirmed delta into a member's state.
func (r *Reconciler) mirror(p protocol.Payload, now time.Time) {
	switch v := p.(type) {
	case protocol.CheckpointReached:
		r.state.CompleteCheckpoint(v.CheckpointID, v.Position)
		r.state.SetScore(v.TeamScore)
	case protocol.ScoreUpdate:
		r.roster.SetScore(v.PlayerID, v.PlayerScore)
		r.state.SetScore(v.TeamScore)
	case protocol.PlayerDied:
		r.roster.SetAlive(v.PlayerID, false)
		r.state.SetLives(v.TeamLives)
		if !v.GameOver {
			r.state.SetPhase(gamestate.PhaseRespawning)
		}
	case protocol.LevelAdvance:
		if err := r.auth.Advance(v); err != nil {
			logger.Error("[Reconcile] Advancing to level %d: %v", v.Level, err)
		}
	case protocol.PowerUpCollected:
		r.auth.Collect(v, now)
	case protocol.MapScroll:
		r.state.SetScroll(v.Offset)
	case protocol.GameEnded:
		r.state.End(v.Victory)
		r.state.SetScore(v.TeamScore)
	case protocol.GamePaused:
		r.state.Pause()
	case protocol.GameResumed:
		r.state.Resume()
	}
}

// effect drives the scene and feedback for a confirmed delta, on every peer.
func (r *Reconciler) effect(p protocol.Payload) {
	r.contacts.Confirm(p)
	switch v := p.(type) {
	case protocol.CheckpointReached:
		r.physics.RemoveNode(v.CheckpointID)
		r.physics.AddTimedAnimation(v.CheckpointID, "checkpoint_reached", checkpointAnimation)
		r.cue(events.CueCheckpoint, v.PlayerID)
	case protocol.PlayerDied:
		r.physics.SetVelocity(v.PlayerID, geom.Vec{})
		r.cue(events.CueDeath, v.PlayerID)
	case protocol.Respawn:
		r.scheduleRespawn(v)
	case protocol.LevelAdvance:
		r.stopRespawn()
		r.contacts.Reset()
		r.placeAll(v.Spawn)
		r.cue(events.CueLevelUp, "")
	case protocol.PowerUpCollected:
		r.physics.RemoveNode(v.PowerUpID)
		r.cue(events.CuePowerUp, v.PlayerID)
		if r.sched != nil && v.DurationMs > 0 {
			r.sched.After(time.Duration(v.DurationMs)*time.Millisecond, r.ExpirePowerUps)
		}
	case protocol.MapScroll:
		r.cue(events.CueScroll, v.PlayerID)
	case protocol.GamePaused:
		r.contacts.Release()
	case protocol.GameStarted:
		r.started(v)
	case protocol.GameEnded:
		r.stopRespawn()
		if v.Victory {
			r.cue(events.CueVictory, "")
		} else {
			r.cue(events.CueGameOver, "")
		}
	}
}

func (r *Reconciler) started(gs protocol.GameStarted) {
	r.stopRespawn()
	r.contacts.Reset()
	r.lastSeq = make(map[string]uint64)
	r.placeAll(gs.Spawn)
}

func (r *Reconciler) sync(snap protocol.Snapshot) {
	merged := Reconcile(r.state.Snapshot(), snap)
	r.auth.Sync(merged)
	r.publishState()
}

func (r *Reconciler) placeAll(pos geom.Vec) {
	for _, id := range r.roster.IDs() {
		r.physics.SetPosition(id, pos)
		r.physics.SetVelocity(id, geom.Vec{})
	}
}

func (r *Reconciler) scheduleRespawn(p protocol.Respawn) {
	r.stopRespawn()
	delay := time.Duration(p.DelayMs) * time.Millisecond
	if r.sched == nil || delay <= 0 {
		r.completeRespawn(p.Position)
		return
	}
	r.cancelRespawn = r.sched.After(delay, func() {
		r.cancelRespawn = nil
		r.completeRespawn(p.Position)
	})
}

func (r *Reconciler) stopRespawn() {
	if r.cancelRespawn != nil {
		r.cancelRespawn()
		r.cancelRespawn = nil
	}
}

func (r *Reconciler) completeRespawn(pos geom.Vec) {
	if r.state.Phase().Over() {
		return
	}
	r.auth.CompleteRespawn(pos)
	r.placeAll(pos)
	r.contacts.Respawned()
	r.cue(events.CueRespawn, "")
	r.publishState()
}

// ExpirePowerUps drops effects that ran out and announces each one.
func (r *Reconciler) ExpirePowerUps() {
	for _, e := range r.powerups.Expire(r.clock()) {
		r.cue(events.CuePowerDown, e.PlayerID)
	}
}

func (r *Reconciler) cue(c events.Cue, player string) {
	if r.bus != nil {
		r.bus.Publish(events.Feedback{Cue: c, PlayerID: player})
	}
}

func (r *Reconciler) publishState() {
	if r.bus != nil {
		r.bus.Publish(events.StateChanged{Snapshot: r.state.Snapshot()})
	}
}
