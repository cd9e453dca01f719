package session

import (
	"fmt"

	"mazeparty/internal/logger"
	"mazeparty/internal/players"
	"mazeparty/internal/protocol"
	"mazeparty/internal/transport"
	"mazeparty/internal/utility"
)

// Host starts a new session under a fresh game code and begins advertising
// it. The host is always in its own roster and always ready.
func (s *Session) Host(name string) (string, error) {
	if !s.state.startable() {
		return "", fmt.Errorf("%w: cannot host while %s", ErrBadState, s.state)
	}
	code, err := s.codes.Generate()
	if err != nil {
		return "", fmt.Errorf("generating game code: %w", err)
	}
	s.reset()
	now := s.clock()
	s.isHost = true
	s.name = name
	s.code = code
	s.sessionID = code
	s.hostID = s.self
	s.createdAt = now
	s.expiresAt = now.Add(s.codes.TTL())
	s.roster.AddPlayer(players.Player{
		ID:       s.self,
		Name:     name,
		Color:    utility.RandomColorHex(),
		Host:     true,
		Ready:    true,
		JoinedAt: now,
		LastSeen: now,
	})

	if err := s.tr.Advertise(s.advertisement()); err != nil {
		s.codes.Release(code)
		s.reset()
		return "", fmt.Errorf("%w: advertising: %w", ErrConnection, err)
	}
	if err := s.transition(Hosting, "hosting "+code); err != nil {
		return "", err
	}
	s.rosterChanged()
	return code, nil
}

func (s *Session) advertisement() transport.Advertisement {
	return transport.Advertisement{
		ServiceID:  transport.ServiceID,
		Code:       s.code,
		HostID:     s.self,
		HostName:   s.name,
		Players:    s.roster.Count(),
		MaxPlayers: s.cfg.MaxPlayers,
		InGame:     s.state == GameInProgress,
	}
}

func (s *Session) readvertise() {
	if !s.isHost || !s.state.Live() {
		return
	}
	if err := s.tr.Advertise(s.advertisement()); err != nil {
		logger.Error("[Session] Readvertising %s: %v", s.code, err)
	}
}

func (s *Session) handleJoin(m protocol.Message, req protocol.JoinRequest, from string) {
	if req.PlayerID != from {
		s.reject(from, m.SessionID, protocol.RejectBadCode, "player id does not match link")
		return
	}
	if req.Code != s.code || m.SessionID != s.sessionID {
		s.reject(from, m.SessionID, protocol.RejectBadCode, "no game with code "+req.Code)
		return
	}

	rejoin := s.roster.Has(from)
	if prev, ok := s.departed[from]; ok && !rejoin {
		prev.LastSeen = s.clock()
		s.roster.AddPlayer(prev)
		delete(s.departed, from)
		rejoin = true
	}

	switch {
	case rejoin:
	case s.state == GameInProgress:
		s.reject(from, m.SessionID, protocol.RejectInProgress, "game already started")
		return
	case s.roster.Count() >= s.cfg.MaxPlayers:
		s.reject(from, m.SessionID, protocol.RejectCapacity, fmt.Sprintf("session is full (%d players)", s.cfg.MaxPlayers))
		return
	default:
		s.roster.AddPlayer(players.Player{
			ID:       from,
			Name:     req.Name,
			Color:    utility.RandomColorHex(),
			JoinedAt: s.clock(),
		})
	}
	s.roster.Touch(from, s.clock())
	logger.Info("[Session] %s (%s) joined %s", req.Name, from, s.code)

	accept := protocol.JoinAccepted{
		PlayerID: from,
		HostID:   s.self,
		Roster:   s.peerInfos(),
		InGame:   s.state == GameInProgress,
	}
	if s.hooks.Snapshot != nil {
		accept.State = s.hooks.Snapshot()
	}
	s.transmit(s.build(accept).Addressed(from), from)
	s.broadcastRoster()
	s.readvertise()
	s.rosterChanged()
}

func (s *Session) reject(to, sessionID, code, reason string) {
	logger.Info("[Session] Rejecting %s: %s", to, reason)
	m := protocol.New(s.self, sessionID, protocol.JoinRejected{Code: code, Reason: reason}, s.clock()).Addressed(to)
	s.transmit(m, to)
}

func (s *Session) broadcastRoster() {
	if !s.isHost || len(s.members()) == 0 {
		return
	}
	s.transmit(s.build(protocol.Roster{Peers: s.peerInfos()}), s.members()...)
}

// removeMember drops id from the roster. It is remembered so that it can
// rejoin a running game.
func (s *Session) removeMember(id, reason string) {
	p := s.roster.Get(id)
	if p == nil {
		return
	}
	s.departed[id] = *p
	s.roster.Remove(id)
	for key, pend := range s.outbox {
		if pend.peer == id {
			delete(s.outbox, key)
		}
	}
	logger.Info("[Session] %s left %s: %s", id, s.code, reason)
	s.broadcastRoster()
	s.readvertise()
	s.rosterChanged()
}

// StartGame assigns roles once and tells every member the game started.
// The returned message is for the host's own reconciler.
func (s *Session) StartGame(gs protocol.GameStarted) (protocol.Message, error) {
	if !s.isHost {
		return protocol.Message{}, ErrNotHost
	}
	if s.state != Hosting && s.state != GameEnded {
		return protocol.Message{}, fmt.Errorf("%w: cannot start while %s", ErrBadState, s.state)
	}
	if n := s.roster.Count(); n < s.cfg.MinPlayers {
		return protocol.Message{}, fmt.Errorf("%w: need %d players, have %d", ErrInvalidIntent, s.cfg.MinPlayers, n)
	}
	if !s.roster.AllReady() {
		return protocol.Message{}, fmt.Errorf("%w: not everyone is ready", ErrInvalidIntent)
	}

	roles := players.AssignRoles(s.roster.IDs(), s.rng)
	s.roster.ApplyRoles(roles)
	gs.Roles = assignmentsToWire(roles)

	m := s.build(gs)
	s.transmit(m, s.members()...)
	if err := s.transition(GameInProgress, fmt.Sprintf("level %d started", gs.Level)); err != nil {
		return m, err
	}
	s.readvertise()
	s.rosterChanged()
	return m, nil
}

// EndGame announces the outcome. Members must ready up again before the
// next start.
func (s *Session) EndGame(ge protocol.GameEnded) (protocol.Message, error) {
	if !s.isHost {
		return protocol.Message{}, ErrNotHost
	}
	if s.state != GameInProgress {
		return protocol.Message{}, fmt.Errorf("%w: no game running", ErrBadState)
	}
	m := s.build(ge)
	s.transmit(m, s.members()...)
	s.finishGame(ge.Reason)
	return m, nil
}

func (s *Session) finishGame(reason string) {
	if reason == "" {
		reason = "game over"
	}
	s.transition(GameEnded, reason)
	for _, id := range s.roster.IDs() {
		if p := s.roster.Get(id); p != nil && !p.Host {
			s.roster.SetReady(id, false)
		}
	}
	s.readvertise()
	s.rosterChanged()
}

// SetReady marks this peer ready. The host is always ready.
func (s *Session) SetReady(ready bool) error {
	if s.isHost {
		return nil
	}
	if s.state != Connected && s.state != GameEnded {
		return fmt.Errorf("%w: cannot ready up while %s", ErrBadState, s.state)
	}
	s.roster.SetReady(s.self, ready)
	_, err := s.SendToHost(protocol.Ready{Ready: ready})
	return err
}
