package engine

import (
	"strings"

	"mazeparty/internal/events"
	"mazeparty/internal/gamestate"
	"mazeparty/internal/logger"
	"mazeparty/internal/players"
	"mazeparty/internal/protocol"
	"mazeparty/internal/session"
	"mazeparty/internal/storage"
)

func (e *Engine) onTransition(t session.Transition) {
	e.bus.Publish(events.SessionChanged{
		State:    t.To.String(),
		Previous: t.From.String(),
		Status:   t.To.Status(),
		Reason:   t.Reason,
		Code:     e.sess.Code(),
	})
	switch t.To {
	case session.NotConnected, session.HostDisconnected, session.Error:
		e.powerups.ClearAll()
		e.state.SetPhase(gamestate.PhaseLobby)
		e.rec.SetHost(false)
	case session.Hosting:
		e.rec.SetHost(true)
	case session.GameInProgress:
		e.recorded = false
	}
}

func (e *Engine) onRoster(list []players.Player) {
	e.bus.Publish(events.RosterChanged{Players: list})
	if e.sess.IsHost() && e.sess.State() == session.GameInProgress {
		e.send(e.rec.Recheck().Broadcast)
	}
}

func (e *Engine) onFailure(err error) {
	logger.Info("[Engine] %v", err)
	e.bus.Publish(events.SessionChanged{
		State:  e.sess.State().String(),
		Status: e.sess.Status(),
		Reason: err.Error(),
		Code:   e.sess.Code(),
	})
}

func (e *Engine) onFatal(err error) {
	logger.Error("[Engine] Session ended: %v", err)
	e.bus.Publish(events.Fatal{Reason: err.Error(), Err: err})
}

// onMessage routes a game message from the session to the reconciler and,
// on the host, sends out whatever it confirmed.
func (e *Engine) onMessage(m protocol.Message) {
	switch p := m.Payload.(type) {
	case protocol.Chat:
		name := m.From
		if pl := e.roster.Get(m.From); pl != nil {
			name = pl.Name
		}
		e.bus.Publish(events.ChatReceived{From: m.From, Name: name, Text: p.Text})
		return
	case protocol.Intent:
		// A restart after the game ended needs a fresh start from the lobby.
		if e.sess.IsHost() && p.Action == protocol.ActionRestart && e.sess.State() != session.GameInProgress {
			if err := e.startGame(); err != nil {
				logger.Info("[Engine] Restart requested by %s: %v", m.From, err)
			}
			return
		}
	case protocol.GameEnded:
		if !e.sess.IsHost() {
			defer e.recordScore(p)
		}
	}

	out := e.rec.ApplyIncoming(m)
	e.send(out.Broadcast)
}

// send distributes confirmed deltas from the host. The end of the game also
// moves the session out of play.
func (e *Engine) send(deltas []protocol.Payload) {
	for _, d := range deltas {
		if ge, ok := d.(protocol.GameEnded); ok {
			if _, err := e.sess.EndGame(ge); err != nil {
				logger.Error("[Engine] Ending game: %v", err)
			}
			e.recordScore(ge)
			continue
		}
		if _, err := e.sess.Broadcast(d); err != nil {
			logger.Debug("[Engine] Broadcasting %s: %v", d.Kind(), err)
		}
	}
}

// submit is where every local intent goes: judged in place on the host,
// sent to the host otherwise.
func (e *Engine) submit(p protocol.Payload) {
	if !e.sess.State().Live() {
		return
	}
	m := e.rec.BuildOutgoing(p, e.sess.SessionID())
	if e.sess.IsHost() {
		out := e.rec.ApplyIncoming(m)
		e.send(out.Broadcast)
		return
	}
	if err := e.sess.Send(m); err != nil {
		logger.Debug("[Engine] Sending %s: %v", m.Kind, err)
	}
}

func (e *Engine) broadcastState() {
	if _, err := e.sess.Broadcast(protocol.StateSync{Snapshot: e.rec.Snapshot()}); err != nil {
		logger.Debug("[Engine] State sync: %v", err)
	}
}

func (e *Engine) startGame() error {
	gs, err := e.auth.Prepare(e.opts.Rules.FirstLevel)
	if err != nil {
		return err
	}
	m, err := e.sess.StartGame(gs)
	if err != nil {
		return err
	}
	e.lastSync = e.clock()
	return e.rec.Start(m.Payload.(protocol.GameStarted))
}

// recordScore queues the team result once per game.
func (e *Engine) recordScore(ge protocol.GameEnded) {
	if e.recorded {
		return
	}
	e.recorded = true
	var names []string
	for _, p := range e.roster.GetList() {
		names = append(names, p.Name)
	}
	h := storage.HighScore{
		Code:      e.sess.Code(),
		Players:   strings.Join(names, ","),
		Score:     ge.TeamScore,
		Level:     ge.Level,
		Victory:   ge.Victory,
		CreatedAt: e.clock(),
	}
	select {
	case e.scores <- h:
	default:
		logger.Error("[DB] Score queue full, dropping result of %s", h.Code)
	}
}
