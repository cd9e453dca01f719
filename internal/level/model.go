package level

import (
	"time"

	"mazeparty/internal/geom"
)

type Checkpoint struct {
	ID       string
	Position geom.Vec
	Points   int
}

type Hazard struct {
	ID       string
	Kind     string // "vortex" or "spike"
	Position geom.Vec
}

type PowerUpSpot struct {
	ID       string
	Type     string
	Position geom.Vec
	Duration time.Duration
}

// Descriptor is the opaque level the game engine plays. Geometry beyond these
// points belongs to the scene collaborator.
type Descriptor struct {
	Number      int
	Width       float64
	Height      float64
	Spawn       geom.Vec
	Checkpoints []Checkpoint
	Hazards     []Hazard
	PowerUps    []PowerUpSpot
	Finish      geom.Vec
	Bonus       int // awarded when the level is cleared
}

func (d Descriptor) Checkpoint(id string) (Checkpoint, bool) {
	for _, c := range d.Checkpoints {
		if c.ID == id {
			return c, true
		}
	}
	return Checkpoint{}, false
}

func (d Descriptor) PowerUp(id string) (PowerUpSpot, bool) {
	for _, p := range d.PowerUps {
		if p.ID == id {
			return p, true
		}
	}
	return PowerUpSpot{}, false
}

// Source hands out levels by number. ok is false past the last level.
type Source interface {
	Level(n int) (Descriptor, bool)
}
