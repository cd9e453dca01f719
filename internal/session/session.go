// Package session owns hosting and joining, the connection state machine,
// the roster and reliable delivery of protocol messages between peers.
//
// The topology is a star: members talk only to the host, and the host relays
// what everyone must see. A Session is not safe for concurrent use. Transport
// callbacks are handed to Deps.Post so that one goroutine runs everything.
package session

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"mazeparty/internal/gamecode"
	"mazeparty/internal/logger"
	"mazeparty/internal/metrics"
	"mazeparty/internal/players"
	"mazeparty/internal/protocol"
	"mazeparty/internal/transport"
)

var (
	ErrConnection = errors.New("connection error")
	ErrNotFound   = fmt.Errorf("%w: game not found", ErrConnection)

	ErrCapacity   = errors.New("session is full")
	ErrInProgress = errors.New("game already in progress")

	ErrInvalidIntent = errors.New("invalid intent")
	ErrNotHost       = errors.New("only the host can do that")
	ErrBadState      = errors.New("not allowed in the current session state")

	ErrFatal              = errors.New("session ended")
	ErrExpired            = errors.New("game code expired")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// NotFoundError is returned when no host advertised Code. Suggestions lists
// advertised codes close to it.
type NotFoundError struct {
	Code        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := "game " + e.Code + " not found"
	if len(e.Suggestions) > 0 {
		msg += " (did you mean " + strings.Join(e.Suggestions, ", ") + "?)"
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type Deps struct {
	Transport transport.Transport
	Codes     *gamecode.Registry
	Roster    *players.Store
	Metrics   *metrics.Metrics
	Clock     func() time.Time
	Post      func(func()) // runs transport callbacks on the owner's goroutine
	Rand      *rand.Rand   // role shuffling; nil keeps join order
}

// Hooks are called synchronously from the goroutine driving the session.
type Hooks struct {
	StateChanged  func(Transition)
	Message       func(protocol.Message) // game messages for reconciliation
	RosterChanged func([]players.Player)
	Snapshot      func() protocol.Snapshot // host state sent to late joiners
	Failure       func(error)              // user-visible, non-fatal
	Fatal         func(error)
}

// Info describes the current session.
type Info struct {
	Code      string
	HostID    string
	IsHost    bool
	CreatedAt time.Time
	ExpiresAt time.Time
	Active    bool
}

type pending struct {
	msg      protocol.Message
	data     []byte
	peer     string
	sentAt   time.Time
	attempts int
}

func outboxKey(msgID, peer string) string {
	return msgID + "|" + peer
}

type Session struct {
	cfg     Config
	tr      transport.Transport
	codec   protocol.Codec
	codes   *gamecode.Registry
	roster  *players.Store
	metrics *metrics.Metrics
	clock   func() time.Time
	post    func(func())
	rng     *rand.Rand
	hooks   Hooks

	state State
	hist  history

	self      string
	name      string
	isHost    bool
	code      string
	sessionID string
	hostID    string
	hostAd    transport.Advertisement
	createdAt time.Time
	expiresAt time.Time

	deadline   time.Time
	stopBrowse func()
	advertised map[string]bool // codes seen while searching
	failures   int
	nextRetry  time.Time
	lastBeat   time.Time
	beatSeq    uint64

	departed map[string]players.Player
	outbox   map[string]*pending
	seen     map[string]time.Time
}

var _ transport.Handler = (*Session)(nil)

// New builds a session and installs it as the transport's handler.
func New(cfg Config, deps Deps, hooks Hooks) *Session {
	if cfg.Codec == nil {
		cfg.Codec = protocol.JSONCodec{}
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 64
	}
	if cfg.Limits == (protocol.Limits{}) {
		cfg.Limits = protocol.DefaultLimits()
	}
	s := &Session{
		cfg:      cfg,
		tr:       deps.Transport,
		codec:    cfg.Codec,
		codes:    deps.Codes,
		roster:   deps.Roster,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		post:     deps.Post,
		rng:      deps.Rand,
		hooks:    hooks,
		hist:     history{size: cfg.HistorySize},
		self:     deps.Transport.LocalID(),
		departed: make(map[string]players.Player),
		outbox:   make(map[string]*pending),
		seen:     make(map[string]time.Time),
	}
	if s.codes == nil {
		s.codes = gamecode.NewRegistry(gamecode.DefaultTTL)
	}
	if s.roster == nil {
		s.roster = players.NewStore()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.post == nil {
		s.post = func(fn func()) { fn() }
	}
	s.tr.SetHandler(s)
	return s
}

func (s *Session) State() State                { return s.state }
func (s *Session) Status() string              { return s.state.Status() }
func (s *Session) LocalID() string             { return s.self }
func (s *Session) IsHost() bool                { return s.isHost }
func (s *Session) HostID() string              { return s.hostID }
func (s *Session) Code() string                { return s.code }
func (s *Session) SessionID() string           { return s.sessionID }
func (s *Session) Roster() *players.Store      { return s.roster }
func (s *Session) History() []Transition       { return s.hist.snapshot() }
func (s *Session) Roles() []players.Assignment { return s.roster.Assignments() }

func (s *Session) Info() Info {
	return Info{
		Code:      s.code,
		HostID:    s.hostID,
		IsHost:    s.isHost,
		CreatedAt: s.createdAt,
		ExpiresAt: s.expiresAt,
		Active:    s.state.Live(),
	}
}

// OnReceive implements transport.Handler.
func (s *Session) OnReceive(data []byte, from string) {
	s.post(func() { s.HandleData(data, from) })
}

// OnPeerStateChanged implements transport.Handler.
func (s *Session) OnPeerStateChanged(peer string, state transport.PeerState) {
	s.post(func() { s.HandlePeerState(peer, state) })
}

func (s *Session) transition(to State, reason string) error {
	from := s.state
	if from == to {
		return nil
	}
	if !canTransition(from, to) {
		logger.Error("[Session] Refusing %s -> %s (%s)", from, to, reason)
		return fmt.Errorf("%w: %s -> %s", ErrBadState, from, to)
	}
	s.state = to
	t := Transition{From: from, To: to, Reason: reason, At: s.clock()}
	s.hist.add(t)
	s.metrics.Transition(to.String())
	logger.Info("[Session] %s -> %s: %s", from, to, reason)
	if s.hooks.StateChanged != nil {
		s.hooks.StateChanged(t)
	}
	return nil
}

func (s *Session) fail(err error) {
	if s.hooks.Failure != nil {
		s.hooks.Failure(err)
	}
}

func (s *Session) rosterChanged() {
	list := s.roster.GetList()
	s.metrics.RosterSize(len(list))
	if s.hooks.RosterChanged == nil {
		return
	}
	out := make([]players.Player, 0, len(list))
	for _, p := range list {
		out = append(out, *p)
	}
	s.hooks.RosterChanged(out)
}

func (s *Session) deliver(m protocol.Message) {
	if s.hooks.Message != nil {
		s.hooks.Message(m)
	}
}

func (s *Session) build(p protocol.Payload) protocol.Message {
	return protocol.New(s.self, s.sessionID, p, s.clock())
}

// members lists roster ids other than this peer.
func (s *Session) members() []string {
	var ids []string
	for _, id := range s.roster.IDs() {
		if id != s.self {
			ids = append(ids, id)
		}
	}
	return ids
}

// transmit encodes m once and sends it to each peer. Messages that need an
// ack stay in the outbox until acked or out of retries.
func (s *Session) transmit(m protocol.Message, peers ...string) error {
	if len(peers) == 0 {
		return nil
	}
	data, err := s.codec.Encode(m)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", m.Kind, err)
	}
	reliable := m.Reliable()
	now := s.clock()
	var firstErr error
	for _, peer := range peers {
		if err := s.tr.Send(peer, data, reliable); err != nil {
			logger.Debug("[Session] Send %s to %s: %v", m.Kind, peer, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("sending %s to %s: %w", m.Kind, peer, err)
			}
			if errors.Is(err, transport.ErrUnknownPeer) {
				continue
			}
		} else {
			s.metrics.Sent(string(m.Kind))
		}
		if m.RequiresAck {
			s.outbox[outboxKey(m.ID, peer)] = &pending{msg: m, data: data, peer: peer, sentAt: now}
		}
	}
	return firstErr
}

// Broadcast sends p to everyone in the session. A member's broadcast goes to
// the host, which relays what others need to see.
func (s *Session) Broadcast(p protocol.Payload) (protocol.Message, error) {
	if !s.state.Live() {
		return protocol.Message{}, fmt.Errorf("%w: %s", ErrBadState, s.state)
	}
	m := s.build(p)
	if s.isHost {
		return m, s.transmit(m, s.members()...)
	}
	return m, s.transmit(m, s.hostID)
}

// SendToHost addresses p to the host. On the host it only builds the message;
// the caller applies it locally.
func (s *Session) SendToHost(p protocol.Payload) (protocol.Message, error) {
	if !s.state.Live() {
		return protocol.Message{}, fmt.Errorf("%w: %s", ErrBadState, s.state)
	}
	m := s.build(p).Addressed(s.hostID)
	if s.isHost {
		return m, nil
	}
	return m, s.transmit(m, s.hostID)
}

// SendTo addresses p to one peer. Members reach other members through the
// host.
func (s *Session) SendTo(peer string, p protocol.Payload) (protocol.Message, error) {
	if !s.state.Live() {
		return protocol.Message{}, fmt.Errorf("%w: %s", ErrBadState, s.state)
	}
	m := s.build(p).Addressed(peer)
	if s.isHost || peer == s.hostID {
		return m, s.transmit(m, peer)
	}
	return m, s.transmit(m, s.hostID)
}

// Send transmits a message built elsewhere, such as a sequenced movement.
// The host sends it to m.To or to every member; a member always sends to the
// host.
func (s *Session) Send(m protocol.Message) error {
	if !s.state.Live() {
		return fmt.Errorf("%w: %s", ErrBadState, s.state)
	}
	switch {
	case !s.isHost:
		return s.transmit(m, s.hostID)
	case m.To != "":
		return s.transmit(m, m.To)
	default:
		return s.transmit(m, s.members()...)
	}
}

func (s *Session) drop(reason, from string, err error) {
	s.metrics.Dropped(reason)
	logger.Info("[Session] Dropping message from %s (%s): %v", from, reason, err)
}

func (s *Session) ackIfNeeded(m protocol.Message, from string) {
	if !m.RequiresAck {
		return
	}
	ack := protocol.New(s.self, m.SessionID, protocol.Ack{MessageID: m.ID}, s.clock()).Addressed(from)
	if err := s.transmit(ack, from); err != nil {
		logger.Debug("[Session] Ack to %s: %v", from, err)
	}
}

func (s *Session) firstSight(id string, now time.Time) bool {
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = now
	return true
}

// relayed kinds are passed on by the host when a member broadcasts them.
func relayed(k protocol.Kind) bool {
	return k == protocol.KindPlayerMovement || k == protocol.KindChat
}

// HandleData processes one frame from a directly linked peer. Frames that
// fail to decode or validate are logged and dropped whole.
func (s *Session) HandleData(data []byte, from string) {
	now := s.clock()
	m, err := s.codec.Decode(data)
	if err != nil {
		s.drop(metrics.DropDecode, from, err)
		return
	}
	if err := protocol.Validate(m, now, s.cfg.Limits); err != nil {
		s.drop(metrics.DropInvalid, from, err)
		return
	}
	if ack, ok := m.Payload.(protocol.Ack); ok {
		delete(s.outbox, outboxKey(ack.MessageID, from))
		return
	}

	if req, ok := m.Payload.(protocol.JoinRequest); ok {
		if !s.isHost || !s.state.Live() {
			s.drop(metrics.DropSession, from, errors.New("not hosting"))
			return
		}
		s.ackIfNeeded(m, from)
		if s.firstSight(m.ID, now) {
			s.handleJoin(m, req, from)
		}
		return
	}

	if !s.state.Live() && s.state != Connecting {
		s.drop(metrics.DropSession, from, fmt.Errorf("session %s", s.state))
		return
	}
	if m.SessionID != s.sessionID {
		s.drop(metrics.DropSession, from, fmt.Errorf("session %q", m.SessionID))
		return
	}
	if s.isHost && !s.roster.Has(from) {
		s.drop(metrics.DropSession, from, errors.New("not in roster"))
		return
	}
	if !s.isHost && from != s.hostID {
		s.drop(metrics.DropSession, from, errors.New("not the host"))
		return
	}

	s.ackIfNeeded(m, from)
	if !s.firstSight(m.ID, now) {
		s.metrics.Dropped(metrics.DropDuplicate)
		return
	}
	s.roster.Touch(from, now)

	if m.To != "" && m.To != s.self {
		if s.isHost && s.roster.Has(m.To) {
			s.transmit(m, m.To)
		}
		return
	}
	if m.Expired(now) {
		s.drop(metrics.DropExpired, from, fmt.Errorf("%s expired at %s", m.Kind, m.ExpiresAt.Format(time.RFC3339Nano)))
		return
	}
	s.metrics.Received(string(m.Kind))

	if s.isHost && m.To == "" && relayed(m.Kind) {
		var others []string
		for _, id := range s.members() {
			if id != from && id != m.From {
				others = append(others, id)
			}
		}
		s.transmit(m, others...)
	}
	s.dispatch(m, from, now)
}

func (s *Session) dispatch(m protocol.Message, from string, now time.Time) {
	switch p := m.Payload.(type) {
	case protocol.Heartbeat:
		s.handleHeartbeat(p, from, now)
	case protocol.JoinAccepted:
		s.handleAccepted(m, p, now)
	case protocol.JoinRejected:
		s.handleRejected(p)
	case protocol.Roster:
		if !s.isHost {
			s.roster.Replace(playersFromInfo(p.Peers))
			s.rosterChanged()
		}
	case protocol.Ready:
		if s.isHost {
			s.roster.SetReady(m.From, p.Ready)
			s.broadcastRoster()
			s.rosterChanged()
		}
	case protocol.Leave:
		if s.isHost {
			s.tr.Disconnect(m.From)
			s.removeMember(m.From, "left: "+p.Reason)
		} else if m.From == s.hostID {
			s.hostGone("host ended the session")
		}
	case protocol.GameStarted:
		if !s.isHost {
			s.applyStart(p)
			s.deliver(m)
		}
	case protocol.GameEnded:
		if !s.isHost {
			s.finishGame(p.Reason)
			s.deliver(m)
		}
	default:
		if s.state != Connecting {
			s.deliver(m)
		}
	}
}

func (s *Session) handleHeartbeat(p protocol.Heartbeat, from string, now time.Time) {
	if p.Reply {
		if p.SentAt > 0 {
			if rtt := now.Sub(time.UnixMilli(p.SentAt)); rtt >= 0 {
				s.roster.SetQuality(from, rtt)
			}
		}
		return
	}
	reply := s.build(protocol.Heartbeat{Seq: p.Seq, Reply: true, SentAt: p.SentAt}).Addressed(from)
	s.transmit(reply, from)
}

// HandlePeerState reacts to link changes reported by the transport.
func (s *Session) HandlePeerState(peer string, state transport.PeerState) {
	if s.isHost {
		if state != transport.PeerDisconnected || peer == s.self {
			return
		}
		if s.roster.Has(peer) {
			s.removeMember(peer, "link lost")
			return
		}
		for key, p := range s.outbox {
			if p.peer == peer {
				delete(s.outbox, key)
			}
		}
		return
	}
	if peer != s.hostID {
		return
	}
	switch state {
	case transport.PeerConnected:
		if s.state == Connecting {
			s.requestJoin()
		}
	case transport.PeerDisconnected:
		s.linkLost("link to host lost")
	}
}

// Tick drives every deadline: discovery and connect timeouts, reconnects,
// code expiry, heartbeats, stale peers and retries.
func (s *Session) Tick(now time.Time) {
	switch s.state {
	case SearchingForGame:
		if !s.deadline.IsZero() && !now.Before(s.deadline) {
			s.notFound()
		}
	case Connecting:
		if !s.deadline.IsZero() && !now.Before(s.deadline) {
			s.linkLost("connect timed out")
		}
	case ConnectionLost:
		if !now.Before(s.nextRetry) {
			s.reconnect(now)
		}
	case Hosting:
		if !s.expiresAt.IsZero() && !now.Before(s.expiresAt) {
			s.fatal(ErrExpired, "game code "+s.code+" expired")
			return
		}
	}

	if s.state.Live() {
		s.heartbeat(now)
		s.checkStale(now)
	}
	s.retry(now)
	for id, at := range s.seen {
		if now.Sub(at) > s.cfg.SeenTTL {
			delete(s.seen, id)
		}
	}
}

func (s *Session) heartbeat(now time.Time) {
	if s.cfg.HeartbeatInterval <= 0 || now.Sub(s.lastBeat) < s.cfg.HeartbeatInterval {
		return
	}
	s.lastBeat = now
	s.beatSeq++
	hb := protocol.Heartbeat{Seq: s.beatSeq, SentAt: now.UnixMilli()}
	if s.isHost {
		if len(s.members()) > 0 {
			s.Broadcast(hb)
		}
		return
	}
	s.SendToHost(hb)
}

func (s *Session) checkStale(now time.Time) {
	if s.cfg.PeerTimeout <= 0 {
		return
	}
	cutoff := now.Add(-s.cfg.PeerTimeout)
	if s.isHost {
		for _, id := range s.roster.Stale(cutoff) {
			if id == s.self {
				continue
			}
			s.tr.Disconnect(id)
			s.removeMember(id, "timed out")
		}
		return
	}
	if host := s.roster.Get(s.hostID); host != nil && !host.LastSeen.IsZero() && host.LastSeen.Before(cutoff) {
		s.linkLost("host stopped responding")
	}
}

func (s *Session) retry(now time.Time) {
	for key, p := range s.outbox {
		if p.msg.Expired(now) {
			delete(s.outbox, key)
			continue
		}
		if now.Sub(p.sentAt) < s.cfg.RetryInterval {
			continue
		}
		if p.attempts >= s.cfg.MaxRetries {
			delete(s.outbox, key)
			s.metrics.Dropped(metrics.DropRetries)
			logger.Info("[Session] Giving up on %s %s to %s", p.msg.Kind, p.msg.ID, p.peer)
			continue
		}
		p.attempts++
		p.sentAt = now
		s.metrics.Retry()
		if err := s.tr.Send(p.peer, p.data, true); err != nil {
			logger.Debug("[Session] Retry %s to %s: %v", p.msg.Kind, p.peer, err)
		}
	}
}

// Pending counts messages still waiting for an ack.
func (s *Session) Pending() int {
	return len(s.outbox)
}

// reset forgets everything about the current session without telling peers.
func (s *Session) reset() {
	if s.stopBrowse != nil {
		s.stopBrowse()
		s.stopBrowse = nil
	}
	s.roster.Clear()
	s.isHost = false
	s.code, s.sessionID, s.hostID = "", "", ""
	s.hostAd = transport.Advertisement{}
	s.createdAt, s.expiresAt = time.Time{}, time.Time{}
	s.deadline, s.nextRetry, s.lastBeat = time.Time{}, time.Time{}, time.Time{}
	s.failures = 0
	s.departed = make(map[string]players.Player)
	s.outbox = make(map[string]*pending)
	s.seen = make(map[string]time.Time)
	s.advertised = make(map[string]bool)
}

// teardown tells peers this peer is leaving and clears the session. The
// receiver of a Leave closes the link, so queued messages still arrive.
func (s *Session) teardown(reason string) {
	if s.state.Live() {
		leave := s.build(protocol.Leave{Reason: reason})
		if s.isHost {
			s.transmit(leave, s.members()...)
		} else {
			s.transmit(leave, s.hostID)
		}
	}
	if s.isHost {
		s.tr.StopAdvertising()
		if s.code != "" {
			s.codes.Release(s.code)
		}
	} else if s.hostID != "" && !s.state.Live() {
		s.tr.Disconnect(s.hostID)
	}
	s.reset()
	s.rosterChanged()
}

// Disconnect leaves the session: pending reconnects are cancelled,
// advertising and browsing stop and the roster is cleared.
func (s *Session) Disconnect(reason string) error {
	if s.state == NotConnected {
		return nil
	}
	if reason == "" {
		reason = "left"
	}
	s.teardown(reason)
	return s.transition(NotConnected, reason)
}

func (s *Session) fatal(cause error, reason string) {
	err := fmt.Errorf("%w: %w", ErrFatal, cause)
	logger.Error("[Session] %v (%s)", err, reason)
	s.teardown(reason)
	s.transition(Error, reason)
	if s.hooks.Fatal != nil {
		s.hooks.Fatal(err)
	}
}

func peerInfo(p *players.Player) protocol.PeerInfo {
	return protocol.PeerInfo{
		ID:    p.ID,
		Name:  p.Name,
		Color: p.Color,
		Host:  p.Host,
		Ready: p.Ready,
		Role:  string(p.Role),
		Edge:  string(p.Edge),
		Score: p.Score,
	}
}

func (s *Session) peerInfos() []protocol.PeerInfo {
	list := s.roster.GetList()
	out := make([]protocol.PeerInfo, 0, len(list))
	for _, p := range list {
		out = append(out, peerInfo(p))
	}
	return out
}

func playersFromInfo(infos []protocol.PeerInfo) []players.Player {
	out := make([]players.Player, 0, len(infos))
	for _, in := range infos {
		edge, _ := players.ParseEdge(in.Edge)
		out = append(out, players.Player{
			ID:    in.ID,
			Name:  in.Name,
			Color: in.Color,
			Host:  in.Host,
			Ready: in.Ready,
			Role:  players.Role(in.Role),
			Edge:  edge,
			Score: in.Score,
		})
	}
	return out
}

func assignmentsToWire(as []players.Assignment) []protocol.RoleAssignment {
	out := make([]protocol.RoleAssignment, 0, len(as))
	for _, a := range as {
		out = append(out, protocol.RoleAssignment{PlayerID: a.PlayerID, Role: string(a.Role), Edge: string(a.Edge)})
	}
	return out
}

func assignmentsFromWire(rs []protocol.RoleAssignment) []players.Assignment {
	out := make([]players.Assignment, 0, len(rs))
	for _, r := range rs {
		edge, _ := players.ParseEdge(r.Edge)
		out = append(out, players.Assignment{PlayerID: r.PlayerID, Role: players.Role(r.Role), Edge: edge})
	}
	return out
}
