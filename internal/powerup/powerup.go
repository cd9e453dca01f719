package powerup

import (
	"sync"
	"time"
)

type Type string

const (
	SpeedUp  Type = "speed_up"
	SlowDown Type = "slow_down"
)

const DefaultDuration = 5 * time.Second

func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case SpeedUp, SlowDown:
		return Type(s), true
	}
	return "", false
}

// Multiplier is the speed factor of t.
func (t Type) Multiplier() float64 {
	switch t {
	case SpeedUp:
		return 1.5
	case SlowDown:
		return 0.5
	}
	return 1
}

// Effect is one active power-up on one player.
type Effect struct {
	PowerUpID   string
	PlayerID    string
	Type        Type
	Multiplier  float64
	ActivatedAt time.Time
	Duration    time.Duration
}

func (e Effect) ExpiresAt() time.Time {
	return e.ActivatedAt.Add(e.Duration)
}

func (e Effect) Live(now time.Time) bool {
	return now.Before(e.ExpiresAt())
}

// Tracker holds the timed effects of every player. Concurrent effects on one
// player compose multiplicatively.
type Tracker struct {
	mu      sync.Mutex
	effects map[string][]Effect
}

func NewTracker() *Tracker {
	return &Tracker{effects: make(map[string][]Effect)}
}

// Activate adds e. A repeat of the same power-up id on the same player is
// ignored and reported false.
func (t *Tracker) Activate(e Effect) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e.Multiplier == 0 {
		e.Multiplier = e.Type.Multiplier()
	}
	for _, cur := range t.effects[e.PlayerID] {
		if cur.PowerUpID == e.PowerUpID {
			return false
		}
	}
	t.effects[e.PlayerID] = append(t.effects[e.PlayerID], e)
	return true
}

// Multiplier is the product of player's live effects, 1 when there are none.
func (t *Tracker) Multiplier(player string, now time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := 1.0
	for _, e := range t.effects[player] {
		if e.Live(now) {
			m *= e.Multiplier
		}
	}
	return m
}

func (t *Tracker) Active(player string, now time.Time) []Effect {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Effect
	for _, e := range t.effects[player] {
		if e.Live(now) {
			out = append(out, e)
		}
	}
	return out
}

// Expire removes and returns every effect that has run out by now.
func (t *Tracker) Expire(now time.Time) []Effect {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []Effect
	for player, list := range t.effects {
		kept := list[:0]
		for _, e := range list {
			if e.Live(now) {
				kept = append(kept, e)
			} else {
				expired = append(expired, e)
			}
		}
		if len(kept) == 0 {
			delete(t.effects, player)
		} else {
			t.effects[player] = kept
		}
	}
	return expired
}

// Clear drops every effect of player.
func (t *Tracker) Clear(player string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.effects, player)
}

func (t *Tracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.effects = make(map[string][]Effect)
}
