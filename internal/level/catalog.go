package level

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"mazeparty/internal/geom"
)

const (
	FieldWidth       = 1200
	FieldHeight      = 800
	CheckpointPoints = 100
	LevelBonus       = 500
	margin           = 40
)

// Catalog is an in-memory Source.
type Catalog struct {
	mu     sync.Mutex
	levels map[int]Descriptor
}

func NewCatalog(levels ...Descriptor) *Catalog {
	c := &Catalog{levels: make(map[int]Descriptor)}
	for _, d := range levels {
		c.Add(d)
	}
	return c
}

func (c *Catalog) Add(d Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels[d.Number] = d
}

func (c *Catalog) Level(n int) (Descriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.levels[n]
	return d, ok
}

func (c *Catalog) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.levels)
}

// Builtin returns count generated levels with a fixed seed, so every peer
// builds the same catalog.
func Builtin(count int) *Catalog {
	rng := rand.New(rand.NewPCG(0x6d617a65, 0x7061727479))
	c := NewCatalog()
	for n := 1; n <= count; n++ {
		c.Add(Generate(n, rng))
	}
	return c
}

func randomPoint(rng *rand.Rand) geom.Vec {
	return geom.Vec{
		X: margin + rng.Float64()*(FieldWidth-2*margin),
		Y: margin + rng.Float64()*(FieldHeight-2*margin),
	}
}

// Generate lays out level n. Higher levels get more checkpoints and hazards.
func Generate(n int, rng *rand.Rand) Descriptor {
	d := Descriptor{
		Number: n,
		Width:  FieldWidth,
		Height: FieldHeight,
		Spawn:  geom.Vec{X: margin, Y: FieldHeight / 2},
		Finish: geom.Vec{X: FieldWidth - margin, Y: FieldHeight / 2},
		Bonus:  LevelBonus * n,
	}
	for i := range 2 + n {
		d.Checkpoints = append(d.Checkpoints, Checkpoint{
			ID:       fmt.Sprintf("L%d-cp%d", n, i+1),
			Position: randomPoint(rng),
			Points:   CheckpointPoints,
		})
	}
	for i := range 1 + 2*n {
		kind := "vortex"
		if i%2 == 1 {
			kind = "spike"
		}
		d.Hazards = append(d.Hazards, Hazard{
			ID:       fmt.Sprintf("L%d-hz%d", n, i+1),
			Kind:     kind,
			Position: randomPoint(rng),
		})
	}
	for i := range 2 {
		typ := "speed_up"
		if rng.IntN(3) == 0 {
			typ = "slow_down"
		}
		d.PowerUps = append(d.PowerUps, PowerUpSpot{
			ID:       fmt.Sprintf("L%d-pu%d", n, i+1),
			Type:     typ,
			Position: randomPoint(rng),
			Duration: time.Duration(3+rng.IntN(5)) * time.Second,
		})
	}
	return d
}
