package transport

import "errors"

// ServiceID identifies mazeparty advertisements among other LAN services.
const ServiceID = "mazeparty"

var (
	ErrUnknownPeer = errors.New("unknown peer")
	ErrClosed      = errors.New("transport closed")
	ErrQueueFull   = errors.New("send queue full")
)

type PeerState int

const (
	PeerDisconnected PeerState = iota
	PeerConnecting
	PeerConnected
)

func (s PeerState) String() string {
	switch s {
	case PeerConnecting:
		return "connecting"
	case PeerConnected:
		return "connected"
	}
	return "disconnected"
}

// Advertisement is what a hosting peer publishes for browsers.
type Advertisement struct {
	ServiceID  string `json:"service"`
	Code       string `json:"code"`
	HostID     string `json:"hostId"`
	HostName   string `json:"hostName"`
	Addr       string `json:"addr,omitempty"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	InGame     bool   `json:"inGame"`
}

// Handler receives transport callbacks. Implementations must not block;
// callbacks may arrive on transport goroutines.
type Handler interface {
	OnReceive(data []byte, from string)
	OnPeerStateChanged(peer string, state PeerState)
}

// Transport is a best-effort, peer-addressable link layer. Reliable sends
// reach a connected peer in send order; unreliable sends may be dropped.
// Connect, Browse and delivery complete through callbacks.
type Transport interface {
	LocalID() string
	SetHandler(h Handler)
	Advertise(ad Advertisement) error
	StopAdvertising()
	Browse(serviceID string, found func(Advertisement)) (stop func(), err error)
	Connect(ad Advertisement) error
	Send(peer string, data []byte, reliable bool) error
	Broadcast(data []byte, reliable bool) error
	Disconnect(peer string)
	Close() error
}
