package session

import (
	"fmt"
	"sort"
	"time"

	"mazeparty/internal/gamecode"
	"mazeparty/internal/logger"
	"mazeparty/internal/players"
	"mazeparty/internal/protocol"
	"mazeparty/internal/transport"
)

// Join looks for a game advertising input on the LAN and connects to it.
// The outcome is reported through state changes: Connected once accepted,
// NotConnected with a Failure if the game is not found or refuses us.
func (s *Session) Join(name, input string) error {
	code, err := gamecode.Parse(input)
	if err != nil {
		return err
	}
	if !s.state.startable() {
		return fmt.Errorf("%w: cannot join while %s", ErrBadState, s.state)
	}
	s.reset()
	s.name = name
	s.code = code
	s.sessionID = code
	if err := s.transition(SearchingForGame, "looking for "+code); err != nil {
		return err
	}
	s.deadline = s.clock().Add(s.cfg.DiscoveryTimeout)

	stop, err := s.tr.Browse(transport.ServiceID, func(ad transport.Advertisement) {
		s.post(func() { s.handleFound(ad) })
	})
	if err != nil {
		s.transition(NotConnected, "browse failed")
		return fmt.Errorf("%w: browsing: %w", ErrConnection, err)
	}
	s.stopBrowse = stop
	return nil
}

func (s *Session) handleFound(ad transport.Advertisement) {
	if s.state != SearchingForGame {
		return
	}
	if ad.Code != s.code {
		s.advertised[ad.Code] = true
		return
	}
	if s.stopBrowse != nil {
		s.stopBrowse()
		s.stopBrowse = nil
	}
	s.hostAd = ad
	s.hostID = ad.HostID
	logger.Info("[Session] Found %s hosted by %s (%d/%d)", ad.Code, ad.HostName, ad.Players, ad.MaxPlayers)
	s.dial("found host " + ad.HostName)
}

func (s *Session) dial(reason string) {
	if err := s.transition(Connecting, reason); err != nil {
		return
	}
	s.deadline = s.clock().Add(s.cfg.ConnectTimeout)
	if err := s.tr.Connect(s.hostAd); err != nil {
		logger.Error("[Session] Connecting to %s: %v", s.hostID, err)
		s.linkLost("connect failed")
	}
}

func (s *Session) requestJoin() {
	req := protocol.JoinRequest{Code: s.code, PlayerID: s.self, Name: s.name}
	if err := s.transmit(s.build(req).Addressed(s.hostID), s.hostID); err != nil {
		logger.Error("[Session] Join request: %v", err)
	}
}

func (s *Session) handleAccepted(m protocol.Message, p protocol.JoinAccepted, now time.Time) {
	if s.isHost || s.state != Connecting {
		return
	}
	s.roster.Replace(playersFromInfo(p.Roster))
	s.roster.Touch(s.hostID, now)
	s.failures = 0
	s.deadline = time.Time{}
	if p.InGame {
		s.transition(GameInProgress, "rejoined running game")
	} else {
		s.transition(Connected, "joined "+s.code)
	}
	s.rosterChanged()
	s.deliver(m)
}

func (s *Session) handleRejected(p protocol.JoinRejected) {
	if s.isHost || s.state != Connecting {
		return
	}
	var err error
	switch p.Code {
	case protocol.RejectCapacity:
		err = ErrCapacity
	case protocol.RejectInProgress:
		err = ErrInProgress
	default:
		err = gamecode.ErrInvalidCode
	}
	s.tr.Disconnect(s.hostID)
	s.reset()
	s.transition(NotConnected, "rejected: "+p.Reason)
	s.rosterChanged()
	s.fail(fmt.Errorf("%w: %s", err, p.Reason))
}

func (s *Session) notFound() {
	seen := make([]string, 0, len(s.advertised))
	for code := range s.advertised {
		seen = append(seen, code)
	}
	sort.Strings(seen)
	err := &NotFoundError{Code: s.code, Suggestions: gamecode.Suggest(s.code, seen)}
	s.reset()
	s.transition(NotConnected, err.Error())
	s.fail(err)
}

// linkLost handles a dead link to the host. In a game this ends the session
// for us; before it we back off and try again.
func (s *Session) linkLost(reason string) {
	switch s.state {
	case GameInProgress, GameEnded:
		s.hostGone(reason)
	case Connecting, Connected:
		s.connectionLost(reason)
	}
}

func (s *Session) connectionLost(reason string) {
	s.tr.Disconnect(s.hostID)
	if s.failures >= s.cfg.MaxReconnectAttempts {
		s.fatal(ErrReconnectExhausted, reason)
		return
	}
	wait := s.cfg.Backoff(s.failures)
	s.nextRetry = s.clock().Add(wait)
	s.deadline = time.Time{}
	s.transition(ConnectionLost, fmt.Sprintf("%s, retrying in %s", reason, wait))
}

func (s *Session) reconnect(now time.Time) {
	s.failures++
	s.metrics.Reconnect()
	s.nextRetry = time.Time{}
	s.dial(fmt.Sprintf("reconnect attempt %d", s.failures))
}

// hostGone ends the session after the host left. There is no host failover;
// members return to the menu.
func (s *Session) hostGone(reason string) {
	if s.hostID != "" {
		s.tr.Disconnect(s.hostID)
	}
	s.reset()
	s.transition(HostDisconnected, reason)
	s.rosterChanged()
}

// applyStart adopts the host's role assignment verbatim.
func (s *Session) applyStart(p protocol.GameStarted) {
	s.roster.ApplyRoles(assignmentsFromWire(p.Roles))
	for _, id := range s.roster.IDs() {
		s.roster.SetAlive(id, true)
	}
	s.transition(GameInProgress, fmt.Sprintf("level %d started", p.Level))
	s.rosterChanged()
}

// Self is this peer's roster entry, nil outside a session.
func (s *Session) Self() *players.Player {
	return s.roster.Get(s.self)
}
