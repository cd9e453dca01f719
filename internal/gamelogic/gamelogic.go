// Package gamelogic turns physics contacts into intents and judges those
// intents on the host.
package gamelogic

import (
	"errors"
	"time"

	"mazeparty/internal/geom"
	"mazeparty/internal/powerup"
	"mazeparty/internal/protocol"
)

var ErrNoLevel = errors.New("level not available")

// Category is what a physics body is, as reported by the scene.
type Category string

const (
	CatPlayer      Category = "player"
	CatOtherPlayer Category = "other_player"
	CatWall        Category = "wall"
	CatCheckpoint  Category = "checkpoint"
	CatVortex      Category = "vortex"
	CatSpike       Category = "spike"
	CatBorder      Category = "border" // node is the edge name
	CatFinish      Category = "finish"
	CatPowerUp     Category = "powerup"
)

// Contact is one onContactBegin notification. Node ids name the player,
// checkpoint, power-up or border edge involved.
type Contact struct {
	A, B         Category
	NodeA, NodeB string
}

// Physics is the scene collaborator. The engine never integrates motion
// itself; it only tells the scene where things are.
type Physics interface {
	SetPosition(playerID string, p geom.Vec)
	SetVelocity(playerID string, v geom.Vec)
	RemoveNode(id string)
	AddTimedAnimation(nodeID, name string, d time.Duration)
}

// Scheduler runs fn after d on the goroutine that owns the game state.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func())
}

// Submitter sends an intent towards the host.
type Submitter interface {
	Submit(p protocol.Payload)
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(protocol.Payload)

func (f SubmitFunc) Submit(p protocol.Payload) { f(p) }

// NopPhysics is a scene that ignores everything, for headless peers.
type NopPhysics struct{}

func (NopPhysics) SetPosition(string, geom.Vec)                    {}
func (NopPhysics) SetVelocity(string, geom.Vec)                    {}
func (NopPhysics) RemoveNode(string)                               {}
func (NopPhysics) AddTimedAnimation(string, string, time.Duration) {}

type Config struct {
	TeamLives       int
	FirstLevel      int
	RespawnDelay    time.Duration
	ScrollStep      float64       // map offset change per confirmed scroll
	PowerUpDuration time.Duration // used when a level spot has none
}

func DefaultConfig() Config {
	return Config{
		TeamLives:       5,
		FirstLevel:      1,
		RespawnDelay:    1500 * time.Millisecond,
		ScrollStep:      40,
		PowerUpDuration: powerup.DefaultDuration,
	}
}
