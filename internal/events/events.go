package events

import (
	"sync"
	"sync/atomic"

	"mazeparty/internal/gamestate"
	"mazeparty/internal/players"
)

type Topic string

const (
	TopicSession  Topic = "session"
	TopicState    Topic = "state"
	TopicRoster   Topic = "roster"
	TopicFeedback Topic = "feedback"
	TopicChat     Topic = "chat"
	TopicFatal    Topic = "fatal"
)

// Event is one change notification. Consumers switch on the concrete type.
type Event interface {
	Topic() Topic
}

type SessionChanged struct {
	State    string
	Previous string
	Status   string // human readable, for display
	Reason   string
	Code     string
}

type StateChanged struct {
	Snapshot gamestate.Snapshot
}

type RosterChanged struct {
	Players []players.Player
}

// Cue names an audio or haptic effect.
type Cue string

const (
	CueCheckpoint Cue = "checkpoint"
	CueDeath      Cue = "death"
	CueRespawn    Cue = "respawn"
	CuePowerUp    Cue = "powerup"
	CuePowerDown  Cue = "powerup_expired"
	CueLevelUp    Cue = "level_up"
	CueVictory    Cue = "victory"
	CueGameOver   Cue = "game_over"
	CueScroll     Cue = "scroll"
)

type Feedback struct {
	Cue      Cue
	PlayerID string
}

type ChatReceived struct {
	From string
	Name string
	Text string
}

// Fatal tells the UI to leave the session screen.
type Fatal struct {
	Reason string
	Err    error
}

func (SessionChanged) Topic() Topic { return TopicSession }
func (StateChanged) Topic() Topic   { return TopicState }
func (RosterChanged) Topic() Topic  { return TopicRoster }
func (Feedback) Topic() Topic       { return TopicFeedback }
func (ChatReceived) Topic() Topic   { return TopicChat }
func (Fatal) Topic() Topic          { return TopicFatal }

const busSize = 64

type Bus struct {
	Events  chan Event
	dropped atomic.Uint64
	once    sync.Once
}

func NewBus() *Bus {
	return &Bus{
		Events: make(chan Event, busSize),
	}
}

// Publish queues ev without blocking. A full bus drops the event.
func (b *Bus) Publish(ev Event) bool {
	select {
	case b.Events <- ev:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close ends the stream. Publish must not be called afterwards.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.Events) })
}
