package protocol

import (
	"time"

	"github.com/google/uuid"
)

// Version is stamped on every envelope; peers drop other versions.
const Version = 1

// Message is the immutable envelope exchanged between peers.
type Message struct {
	ID          string
	Version     int
	Kind        Kind
	From        string
	To          string // empty for broadcasts
	SessionID   string
	Priority    Priority
	RequiresAck bool
	Timestamp   time.Time
	ExpiresAt   time.Time // zero when the message never expires
	Payload     Payload
}

// New builds a message for p with the kind's default policy applied.
// Timestamps are kept at millisecond precision, the precision of the wire.
func New(from, sessionID string, p Payload, now time.Time) Message {
	pol := PolicyFor(p.Kind())
	ts := now.UTC().Truncate(time.Millisecond)
	m := Message{
		ID:          uuid.NewString(),
		Version:     Version,
		Kind:        p.Kind(),
		From:        from,
		SessionID:   sessionID,
		Priority:    pol.Priority,
		RequiresAck: pol.RequiresAck,
		Timestamp:   ts,
		Payload:     p,
	}
	if pol.TTL > 0 {
		m.ExpiresAt = ts.Add(pol.TTL)
	}
	return m
}

// Addressed returns a copy of m delivered only to peerID.
func (m Message) Addressed(peerID string) Message {
	m.To = peerID
	return m
}

// Expired reports whether m must no longer be applied.
func (m Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

// Reliable reports whether m travels on the reliable channel.
func (m Message) Reliable() bool {
	return PolicyFor(m.Kind).Reliable
}

// Reply builds an ack for m from the given peer.
func (m Message) Reply(from string, now time.Time) Message {
	ack := New(from, m.SessionID, Ack{MessageID: m.ID}, now)
	ack.To = m.From
	return ack
}
