package players

import (
	"sync"
	"time"

	"mazeparty/internal/geom"
	"mazeparty/internal/utility"
)

// Store is the session roster. GetList and Stale return players in join order.
type Store struct {
	mu      sync.Mutex
	players map[string]*Player
	order   []string
}

func NewStore() *Store {
	return &Store{
		players: make(map[string]*Player),
	}
}

func (s *Store) Add(id string, name string) *Player {
	return s.AddPlayer(Player{ID: id, Name: name, Color: utility.RandomColorHex()})
}

// AddPlayer inserts p, or replaces the entry with the same id keeping its
// join position.
func (s *Store) AddPlayer(p Player) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Role == "" {
		p.Role = RoleRegular
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	p.Alive = true
	player := &p
	if _, exists := s.players[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	s.players[p.ID] = player
	return player
}

func (s *Store) Get(id string) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.players[id]
}

func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.players[id]
	return exists
}

func (s *Store) GetList() []*Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	playerList := make([]*Player, 0, len(s.order))
	for _, id := range s.order {
		playerList = append(playerList, s.players[id])
	}
	return playerList
}

// IDs returns player ids in join order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.players[id]; !exists {
		return false
	}
	delete(s.players, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

func (s *Store) UpdateScore(id string, points int) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, e := s.players[id]; e {
		p.Score += points
		return p
	}
	return nil
}

func (s *Store) SetScore(id string, score int) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, e := s.players[id]; e {
		p.Score = score
		return p
	}
	return nil
}

func (s *Store) SetReady(id string, isReady bool) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, e := s.players[id]; e {
		p.Ready = isReady
		return p
	}
	return nil
}

func (s *Store) AllReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.players) == 0 {
		return false
	}

	for _, player := range s.players {
		if !player.Ready {
			return false
		}
	}
	return true
}

func (s *Store) SetPosition(id string, pos geom.Vec) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, e := s.players[id]; e {
		p.Position = pos
		return p
	}
	return nil
}

func (s *Store) SetVelocity(id string, vel geom.Vec) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, e := s.players[id]; e {
		p.Velocity = vel
		return p
	}
	return nil
}

func (s *Store) SetMotion(id string, pos, vel geom.Vec) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, e := s.players[id]; e {
		p.Position = pos
		p.Velocity = vel
		return p
	}
	return nil
}

func (s *Store) SetAlive(id string, alive bool) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, e := s.players[id]; e {
		p.Alive = alive
		return p
	}
	return nil
}

// SetAllAlive revives or kills everyone, used by respawn.
func (s *Store) SetAllAlive(alive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		p.Alive = alive
	}
}

func (s *Store) AliveIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, id := range s.order {
		if s.players[id].Alive {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Store) Touch(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, e := s.players[id]; e {
		p.LastSeen = now
	}
}

// SetQuality folds a round trip sample into the player's smoothed RTT.
func (s *Store) SetQuality(id string, rtt time.Duration) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, e := s.players[id]
	if !e {
		return nil
	}
	if p.RTT == 0 {
		p.RTT = rtt
	} else {
		p.RTT = (p.RTT*7 + rtt) / 8
	}
	return p
}

// Stale lists players not seen since before, skipping never-seen entries.
func (s *Store) Stale(before time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, id := range s.order {
		p := s.players[id]
		if !p.LastSeen.IsZero() && p.LastSeen.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids
}

// ApplyRoles sets every listed player's role. Players missing from as become
// Regular.
func (s *Store) ApplyRoles(as []Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		p.Role = RoleRegular
		p.Edge = EdgeNone
	}
	for _, a := range as {
		if p, e := s.players[a.PlayerID]; e {
			p.Role = a.Role
			p.Edge = a.Edge
		}
	}
}

// Assignments reads back the current roles in join order.
func (s *Store) Assignments() []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Assignment, 0, len(s.order))
	for _, id := range s.order {
		p := s.players[id]
		out = append(out, Assignment{PlayerID: id, Role: p.Role, Edge: p.Edge})
	}
	return out
}

func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		p.Score = 0
		p.Ready = false
		p.Alive = true
		p.Role = RoleRegular
		p.Edge = EdgeNone
		p.Velocity = geom.Vec{}
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = make(map[string]*Player)
	s.order = nil
}

// Replace swaps the whole roster for list, keeping list order. Members use it
// to mirror the host's roster, scores included; local motion of surviving
// entries is kept.
func (s *Store) Replace(list []Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]*Player, len(list))
	order := make([]string, 0, len(list))
	for _, p := range list {
		if old, ok := s.players[p.ID]; ok {
			p.Position = old.Position
			p.Velocity = old.Velocity
			p.LastSeen = old.LastSeen
			p.RTT = old.RTT
			p.Alive = old.Alive
			if p.JoinedAt.IsZero() {
				p.JoinedAt = old.JoinedAt
			}
		} else {
			p.Alive = true
		}
		if p.Role == "" {
			p.Role = RoleRegular
		}
		cp := p
		next[p.ID] = &cp
		order = append(order, p.ID)
	}
	s.players = next
	s.order = order
}
