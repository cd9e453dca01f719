package gamelogic

import (
	"time"

	"mazeparty/internal/gamestate"
	"mazeparty/internal/level"
	"mazeparty/internal/players"
	"mazeparty/internal/protocol"
)

// ConfirmTimeout is how long a report waits for the host before it can be
// made again.
const ConfirmTimeout = 3 * time.Second

const (
	keyDeath  = "death"
	keyFinish = "finish"
)

// LevelView exposes the level being played.
type LevelView interface {
	Current() level.Descriptor
}

// ContactHandler classifies contacts of the local player and submits the
// matching intents. Nothing shared is changed here; the host decides.
type ContactHandler struct {
	self   string
	roster *players.Store
	state  *gamestate.State
	levels LevelView
	out    Submitter

	clock func() time.Time

	deathLocked bool
	reported    map[string]bool
	pending     map[string]time.Time // reports not yet confirmed, by key
}

func NewContactHandler(self string, roster *players.Store, state *gamestate.State, levels LevelView, out Submitter) *ContactHandler {
	return &ContactHandler{
		self:     self,
		roster:   roster,
		state:    state,
		levels:   levels,
		out:      out,
		clock:    time.Now,
		reported: make(map[string]bool),
		pending:  make(map[string]time.Time),
	}
}

func (h *ContactHandler) SetClock(now func() time.Time) {
	h.clock = now
}

// OnContactBegin handles one contact and reports whether it produced an
// intent.
func (h *ContactHandler) OnContactBegin(c Contact) bool {
	if c.B == CatPlayer && c.A != CatPlayer {
		c.A, c.B = c.B, c.A
		c.NodeA, c.NodeB = c.NodeB, c.NodeA
	}
	if c.A != CatPlayer || c.NodeA != h.self {
		return false
	}
	if h.state.Phase() != gamestate.PhasePlaying {
		return false
	}
	me := h.roster.Get(h.self)
	if me == nil || !me.Alive {
		return false
	}

	switch c.B {
	case CatCheckpoint:
		return h.checkpoint(c.NodeB)
	case CatVortex, CatSpike:
		return h.die(string(c.B), *me)
	case CatBorder:
		edge, ok := players.ParseEdge(c.NodeB)
		if ok && me.CanScroll(edge) {
			h.out.Submit(protocol.MapScroll{PlayerID: h.self, Edge: string(edge)})
			return true
		}
		return h.die("border_spike", *me)
	case CatFinish:
		if h.reported[keyFinish] {
			return false
		}
		h.reported[keyFinish] = true
		h.submit(keyFinish, protocol.FinishReached{PlayerID: h.self})
		return true
	case CatPowerUp:
		return h.powerUp(c.NodeB)
	}
	return false
}

func (h *ContactHandler) checkpoint(id string) bool {
	key := "cp:" + id
	if h.reported[key] || h.state.IsCompleted(id) {
		return false
	}
	cp, ok := h.levels.Current().Checkpoint(id)
	if !ok {
		return false
	}
	h.reported[key] = true
	h.submit(key, protocol.CheckpointReached{PlayerID: h.self, CheckpointID: id, Position: cp.Position})
	return true
}

// die is edge triggered: once a death is reported, further hazard contacts
// are ignored until the respawn completes or the host turns the death down.
func (h *ContactHandler) die(cause string, me players.Player) bool {
	if h.deathLocked {
		return false
	}
	h.deathLocked = true
	h.submit(keyDeath, protocol.PlayerDied{PlayerID: h.self, Cause: cause, Position: me.Position})
	return true
}

// submit marks key pending before sending, since the host judges its own
// intents synchronously.
func (h *ContactHandler) submit(key string, p protocol.Payload) {
	h.pending[key] = h.clock()
	h.out.Submit(p)
}

func (h *ContactHandler) powerUp(id string) bool {
	key := "pu:" + id
	if h.reported[key] {
		return false
	}
	spot, ok := h.levels.Current().PowerUp(id)
	if !ok {
		return false
	}
	h.reported[key] = true
	h.submit(key, protocol.PowerUpCollected{PlayerID: h.self, PowerUpID: id, Effect: spot.Type})
	return true
}

// Confirm settles the report a confirmed delta answers. A checkpoint or
// power-up confirmed for anyone stays reported.
func (h *ContactHandler) Confirm(p protocol.Payload) {
	switch v := p.(type) {
	case protocol.CheckpointReached:
		h.settle("cp:" + v.CheckpointID)
	case protocol.PowerUpCollected:
		h.settle("pu:" + v.PowerUpID)
	case protocol.PlayerDied:
		if v.PlayerID == h.self {
			delete(h.pending, keyDeath)
		}
	}
}

func (h *ContactHandler) settle(key string) {
	delete(h.pending, key)
	h.reported[key] = true
}

// Reject releases a report the host turned down, so that touching the node
// again reports it again.
func (h *ContactHandler) Reject(p protocol.Payload) {
	switch v := p.(type) {
	case protocol.CheckpointReached:
		h.release("cp:" + v.CheckpointID)
	case protocol.PowerUpCollected:
		h.release("pu:" + v.PowerUpID)
	case protocol.PlayerDied:
		if v.PlayerID == h.self {
			h.release(keyDeath)
		}
	}
}

// Release drops every report still waiting for the host. A pause rejects
// whatever was in flight.
func (h *ContactHandler) Release() {
	for key := range h.pending {
		h.release(key)
	}
}

// Expire releases reports left unconfirmed for ConfirmTimeout.
func (h *ContactHandler) Expire(now time.Time) int {
	n := 0
	for key, at := range h.pending {
		if now.Sub(at) >= ConfirmTimeout {
			h.release(key)
			n++
		}
	}
	return n
}

func (h *ContactHandler) release(key string) {
	if _, ok := h.pending[key]; !ok {
		return
	}
	delete(h.pending, key)
	if key == keyDeath {
		h.deathLocked = false
		return
	}
	delete(h.reported, key)
}

// Respawned releases the death lock. A finish touched before dying must be
// touched again.
func (h *ContactHandler) Respawned() {
	h.deathLocked = false
	delete(h.reported, keyFinish)
	delete(h.pending, keyDeath)
	delete(h.pending, keyFinish)
}

// Reset forgets everything reported, for a new level or restart.
func (h *ContactHandler) Reset() {
	h.deathLocked = false
	h.reported = make(map[string]bool)
	h.pending = make(map[string]time.Time)
}

func (h *ContactHandler) DeathLocked() bool {
	return h.deathLocked
}
