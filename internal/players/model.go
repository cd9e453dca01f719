package players

import (
	"time"

	"mazeparty/internal/geom"
)

type Role string

const (
	RoleRegular  Role = "regular"
	RoleMapMover Role = "map_mover"
)

// Edge is the map border a MapMover may scroll.
type Edge string

const (
	EdgeNone   Edge = ""
	EdgeRight  Edge = "right"
	EdgeLeft   Edge = "left"
	EdgeBottom Edge = "bottom"
	EdgeTop    Edge = "top"
)

// Edges is the order in which MapMovers are bound to borders.
var Edges = []Edge{EdgeRight, EdgeLeft, EdgeBottom, EdgeTop}

func ParseEdge(s string) (Edge, bool) {
	for _, e := range Edges {
		if string(e) == s {
			return e, true
		}
	}
	return EdgeNone, s == ""
}

type Player struct {
	ID       string
	Name     string
	Color    string
	Host     bool
	Role     Role
	Edge     Edge
	Position geom.Vec
	Velocity geom.Vec
	Score    int
	Ready    bool
	Alive    bool
	JoinedAt time.Time
	LastSeen time.Time
	RTT      time.Duration // smoothed heartbeat round trip, zero until measured
}

// CanScroll reports whether p owns the scroll of edge.
func (p Player) CanScroll(edge Edge) bool {
	return p.Role == RoleMapMover && p.Edge != EdgeNone && p.Edge == edge
}

// Quality buckets the measured round trip for display.
func (p Player) Quality() string {
	switch {
	case p.RTT == 0:
		return "unknown"
	case p.RTT < 50*time.Millisecond:
		return "good"
	case p.RTT < 200*time.Millisecond:
		return "fair"
	}
	return "poor"
}
