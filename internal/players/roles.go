package players

import "math/rand/v2"

type Assignment struct {
	PlayerID string
	Role     Role
	Edge     Edge
}

// MapMoverCount is max(1, n/3) for a non-empty roster.
func MapMoverCount(n int) int {
	if n <= 0 {
		return 0
	}
	return max(1, n/3)
}

// AssignRoles partitions ids into MapMovers and Regulars. The first
// MapMoverCount ids after shuffling with rng become MapMovers, bound to edges
// in Edges order. A nil rng keeps the given order. Only the host calls this;
// everyone else applies the broadcast result.
func AssignRoles(ids []string, rng *rand.Rand) []Assignment {
	order := append([]string(nil), ids...)
	if rng != nil {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	movers := MapMoverCount(len(order))
	out := make([]Assignment, 0, len(order))
	for i, id := range order {
		a := Assignment{PlayerID: id, Role: RoleRegular}
		if i < movers {
			a.Role = RoleMapMover
			a.Edge = Edges[i%len(Edges)]
		}
		out = append(out, a)
	}
	return out
}
