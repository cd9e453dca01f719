package engine

import (
	"errors"
	"fmt"
	"strings"

	"mazeparty/internal/events"
	"mazeparty/internal/gamelogic"
	"mazeparty/internal/gamestate"
	"mazeparty/internal/geom"
	"mazeparty/internal/players"
	"mazeparty/internal/protocol"
	"mazeparty/internal/session"
	"mazeparty/internal/storage"
)

const defaultName = "Player"

// playerName picks the name to play under, remembering an explicit one.
func (e *Engine) playerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		stored, err := e.store.Get(storage.KeyPlayerName)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			e.onFailure(fmt.Errorf("reading player name: %w", err))
		}
		if stored != "" {
			return stored
		}
		return defaultName
	}
	if err := e.store.Set(storage.KeyPlayerName, name); err != nil {
		e.onFailure(fmt.Errorf("saving player name: %w", err))
	}
	return name
}

// CreateSession hosts a new game and returns its code.
func (e *Engine) CreateSession(name string) (string, error) {
	var code string
	err := e.do(func() error {
		var err error
		code, err = e.sess.Host(e.playerName(name))
		return err
	})
	return code, err
}

// JoinSession starts looking for the game with the given code. The outcome
// arrives as session events.
func (e *Engine) JoinSession(name, code string) error {
	return e.do(func() error {
		return e.sess.Join(e.playerName(name), code)
	})
}

func (e *Engine) SetReady(ready bool) error {
	return e.do(func() error {
		return e.sess.SetReady(ready)
	})
}

// StartGame begins the first level. Only the host can start.
func (e *Engine) StartGame() error {
	return e.do(func() error {
		if !e.sess.IsHost() {
			return session.ErrNotHost
		}
		return e.startGame()
	})
}

func (e *Engine) PauseGame() error   { return e.control(protocol.ActionPause) }
func (e *Engine) ResumeGame() error  { return e.control(protocol.ActionResume) }
func (e *Engine) RestartGame() error { return e.control(protocol.ActionRestart) }

// control asks the host to pause, resume or restart. The host decides and
// every peer learns the outcome from the confirmed message.
func (e *Engine) control(action string) error {
	return e.do(func() error {
		st := e.sess.State()
		if e.sess.IsHost() && action == protocol.ActionRestart && st != session.GameInProgress {
			return e.startGame()
		}
		if st != session.GameInProgress {
			return fmt.Errorf("%w: no game running", session.ErrBadState)
		}
		e.submit(protocol.Intent{Action: action})
		return nil
	})
}

// Leave ends this peer's part in the session.
func (e *Engine) Leave() error {
	return e.do(func() error {
		return e.sess.Disconnect("left")
	})
}

func (e *Engine) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return e.do(func() error {
		if _, err := e.sess.Broadcast(protocol.Chat{Text: text}); err != nil {
			return err
		}
		name := e.sess.LocalID()
		if p := e.sess.Self(); p != nil {
			name = p.Name
		}
		e.bus.Publish(events.ChatReceived{From: e.sess.LocalID(), Name: name, Text: text})
		return nil
	})
}

// Subscribe streams events on the given topics, or all of them.
func (e *Engine) Subscribe(topics ...events.Topic) chan events.Event {
	return e.hub.Subscribe(topics...)
}

func (e *Engine) Unsubscribe(ch chan events.Event) {
	e.hub.Unsubscribe(ch)
}

// OnContactBegin is called by the scene when two bodies start touching.
func (e *Engine) OnContactBegin(c gamelogic.Contact) {
	e.post(func() { e.contacts.OnContactBegin(c) })
}

// LocalMove reports the local player's motion. It is sent only during play.
func (e *Engine) LocalMove(pos, vel geom.Vec) {
	e.post(func() {
		if e.sess.State() != session.GameInProgress || !pos.Finite() || !vel.Finite() {
			return
		}
		m := e.rec.BuildOutgoing(protocol.Movement{Position: pos, Velocity: vel}, e.sess.SessionID())
		if err := e.sess.Send(m); err != nil {
			e.onFailure(fmt.Errorf("sending movement: %w", err))
		}
	})
}

// Info describes the session this peer is in.
func (e *Engine) Info() session.Info {
	var info session.Info
	e.do(func() error {
		info = e.sess.Info()
		return nil
	})
	return info
}

func (e *Engine) SessionState() session.State {
	var st session.State
	e.do(func() error {
		st = e.sess.State()
		return nil
	})
	return st
}

func (e *Engine) Snapshot() gamestate.Snapshot {
	var snap gamestate.Snapshot
	e.do(func() error {
		snap = e.state.Snapshot()
		return nil
	})
	return snap
}

func (e *Engine) Roster() []players.Player {
	var out []players.Player
	e.do(func() error {
		for _, p := range e.roster.GetList() {
			out = append(out, *p)
		}
		return nil
	})
	return out
}

// SpeedMultiplier is the local player's current power-up factor, for the
// scene to scale movement with.
func (e *Engine) SpeedMultiplier() float64 {
	m := 1.0
	e.do(func() error {
		m = e.rec.SpeedMultiplier(e.sess.LocalID())
		return nil
	})
	return m
}

func (e *Engine) LocalID() string {
	return e.sess.LocalID()
}

func (e *Engine) TopScores(limit int) ([]storage.HighScore, error) {
	return e.store.TopScores(limit)
}
