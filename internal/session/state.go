package session

import "time"

type State int

const (
	NotConnected State = iota
	Hosting
	SearchingForGame
	Connecting
	Connected
	GameInProgress
	GameEnded
	HostDisconnected
	ConnectionLost
	Error
)

var stateNames = [...]string{
	NotConnected:     "not_connected",
	Hosting:          "hosting",
	SearchingForGame: "searching",
	Connecting:       "connecting",
	Connected:        "connected",
	GameInProgress:   "in_game",
	GameEnded:        "game_ended",
	HostDisconnected: "host_disconnected",
	ConnectionLost:   "connection_lost",
	Error:            "error",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Status is the line the UI shows for s.
func (s State) Status() string {
	switch s {
	case NotConnected:
		return "Not connected"
	case Hosting:
		return "Waiting for players"
	case SearchingForGame:
		return "Searching for game"
	case Connecting:
		return "Connecting…"
	case Connected:
		return "Connected"
	case GameInProgress:
		return "Game in progress"
	case GameEnded:
		return "Game over"
	case HostDisconnected:
		return "Host disconnected"
	case ConnectionLost:
		return "Reconnecting…"
	case Error:
		return "Session ended"
	}
	return "Unknown"
}

// Live reports whether s has an established session with peers.
func (s State) Live() bool {
	switch s {
	case Hosting, Connected, GameInProgress, GameEnded:
		return true
	}
	return false
}

func (s State) startable() bool {
	return s == NotConnected || s == Error || s == HostDisconnected
}

var transitions = map[State][]State{
	NotConnected:     {Hosting, SearchingForGame},
	Hosting:          {GameInProgress, NotConnected, Error},
	SearchingForGame: {Connecting, NotConnected, Error},
	Connecting:       {Connected, GameInProgress, ConnectionLost, NotConnected, Error},
	Connected:        {GameInProgress, ConnectionLost, HostDisconnected, NotConnected, Error},
	GameInProgress:   {GameEnded, HostDisconnected, ConnectionLost, NotConnected, Error},
	GameEnded:        {GameInProgress, Connected, HostDisconnected, ConnectionLost, NotConnected, Error},
	HostDisconnected: {NotConnected, Hosting, SearchingForGame, Error},
	ConnectionLost:   {Connecting, NotConnected, Error},
	Error:            {NotConnected, Hosting, SearchingForGame},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one recorded state change.
type Transition struct {
	From   State
	To     State
	Reason string
	At     time.Time
}

// history keeps the most recent transitions.
type history struct {
	size int
	list []Transition
}

func (h *history) add(t Transition) {
	h.list = append(h.list, t)
	if len(h.list) > h.size {
		h.list = append([]Transition(nil), h.list[len(h.list)-h.size:]...)
	}
}

func (h *history) snapshot() []Transition {
	return append([]Transition(nil), h.list...)
}
