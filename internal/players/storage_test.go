package players

import (
	"math/rand/v2"
	"reflect"
	"sync"
	"testing"
	"time"

	"mazeparty/internal/geom"
)

func TestNewStore(t *testing.T) {
	s := NewStore()
	if s == nil {
		t.Fatal("NewStore() returned nil")
	}
	list := s.GetList()
	if len(list) != 0 {
		t.Errorf("new store should be empty, got %d players", len(list))
	}
}

func TestStore_Add(t *testing.T) {
	s := NewStore()
	p := s.Add("id1", "Alice")

	if p.ID != "id1" {
		t.Errorf("player ID = %q, want %q", p.ID, "id1")
	}
	if p.Name != "Alice" {
		t.Errorf("player Name = %q, want %q", p.Name, "Alice")
	}
	if p.Color == "" {
		t.Error("player Color should not be empty")
	}
	if p.Role != RoleRegular {
		t.Errorf("player Role = %q, want %q", p.Role, RoleRegular)
	}
	if !p.Alive {
		t.Error("new player should be alive")
	}
	if p.Ready {
		t.Error("player Ready should be false")
	}
}

func TestStore_AddPlayer_KeepsJoinOrder(t *testing.T) {
	s := NewStore()
	s.Add("a", "A")
	s.Add("b", "B")
	s.AddPlayer(Player{ID: "a", Name: "A2"})

	if got := s.IDs(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("IDs() = %v, want [a b]", got)
	}
	if s.Get("a").Name != "A2" {
		t.Errorf("Name = %q, want replaced entry", s.Get("a").Name)
	}
}

func TestStore_Get(t *testing.T) {
	s := NewStore()
	s.Add("id1", "Alice")

	p := s.Get("id1")
	if p == nil {
		t.Fatal("Get returned nil for existing player")
	}
	if p.Name != "Alice" {
		t.Errorf("Name = %q, want %q", p.Name, "Alice")
	}

	if s.Get("nonexistent") != nil {
		t.Error("Get should return nil for nonexistent player")
	}
	if !s.Has("id1") || s.Has("nonexistent") {
		t.Error("Has disagrees with Get")
	}
}

func TestStore_GetList(t *testing.T) {
	s := NewStore()
	s.Add("id1", "Alice")
	s.Add("id2", "Bob")
	s.Add("id3", "Cy")

	list := s.GetList()
	if len(list) != 3 {
		t.Fatalf("GetList() returned %d players, want 3", len(list))
	}
	for i, want := range []string{"id1", "id2", "id3"} {
		if list[i].ID != want {
			t.Errorf("GetList()[%d] = %q, want %q", i, list[i].ID, want)
		}
	}
}

func TestStore_UpdateScore(t *testing.T) {
	s := NewStore()
	s.Add("id1", "Alice")

	p := s.UpdateScore("id1", 10)
	if p.Score != 10 {
		t.Errorf("Score = %d, want 10", p.Score)
	}

	p = s.UpdateScore("id1", 5)
	if p.Score != 15 {
		t.Errorf("Score = %d, want 15", p.Score)
	}

	if s.UpdateScore("nonexistent", 5) != nil {
		t.Error("UpdateScore should return nil for nonexistent player")
	}
	if s.SetScore("id1", 3).Score != 3 {
		t.Error("SetScore should overwrite")
	}
}

func TestStore_SetReady(t *testing.T) {
	s := NewStore()
	s.Add("id1", "Alice")

	p := s.SetReady("id1", true)
	if !p.Ready {
		t.Error("player should be ready")
	}

	p = s.SetReady("id1", false)
	if p.Ready {
		t.Error("player should not be ready")
	}

	if s.SetReady("nonexistent", true) != nil {
		t.Error("SetReady should return nil for nonexistent player")
	}
}

func TestStore_AllReady(t *testing.T) {
	s := NewStore()

	if s.AllReady() {
		t.Error("AllReady should be false for empty store")
	}

	s.Add("id1", "Alice")
	s.Add("id2", "Bob")

	if s.AllReady() {
		t.Error("AllReady should be false when no one is ready")
	}

	s.SetReady("id1", true)
	if s.AllReady() {
		t.Error("AllReady should be false when only one player is ready")
	}

	s.SetReady("id2", true)
	if !s.AllReady() {
		t.Error("AllReady should be true when all players are ready")
	}
}

func TestStore_Motion(t *testing.T) {
	s := NewStore()
	s.Add("id1", "Alice")

	s.SetPosition("id1", geom.Vec{X: 1, Y: 2})
	s.SetVelocity("id1", geom.Vec{X: 3})
	p := s.Get("id1")
	if p.Position != (geom.Vec{X: 1, Y: 2}) || p.Velocity != (geom.Vec{X: 3}) {
		t.Errorf("motion = %v %v", p.Position, p.Velocity)
	}

	s.SetMotion("id1", geom.Vec{X: 5}, geom.Vec{Y: 6})
	if p.Position != (geom.Vec{X: 5}) || p.Velocity != (geom.Vec{Y: 6}) {
		t.Errorf("SetMotion = %v %v", p.Position, p.Velocity)
	}
	if s.SetMotion("nonexistent", geom.Vec{}, geom.Vec{}) != nil {
		t.Error("SetMotion should return nil for nonexistent player")
	}
}

func TestStore_Alive(t *testing.T) {
	s := NewStore()
	s.Add("a", "A")
	s.Add("b", "B")
	s.Add("c", "C")

	s.SetAlive("b", false)
	if got := s.AliveIDs(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("AliveIDs() = %v, want [a c]", got)
	}

	s.SetAllAlive(true)
	if got := s.AliveIDs(); len(got) != 3 {
		t.Errorf("AliveIDs() after revive = %v", got)
	}
}

func TestStore_Stale(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Add("fresh", "F")
	s.Add("old", "O")
	s.Add("never", "N")
	s.Touch("fresh", now)
	s.Touch("old", now.Add(-10*time.Second))

	got := s.Stale(now.Add(-5 * time.Second))
	if !reflect.DeepEqual(got, []string{"old"}) {
		t.Errorf("Stale() = %v, want [old]", got)
	}
}

func TestStore_SetQuality(t *testing.T) {
	s := NewStore()
	s.Add("a", "A")

	p := s.SetQuality("a", 80*time.Millisecond)
	if p.RTT != 80*time.Millisecond {
		t.Errorf("first RTT = %s, want 80ms", p.RTT)
	}
	s.SetQuality("a", 160*time.Millisecond)
	if p.RTT != 90*time.Millisecond {
		t.Errorf("smoothed RTT = %s, want 90ms", p.RTT)
	}
	if p.Quality() != "fair" {
		t.Errorf("Quality() = %q, want fair", p.Quality())
	}
}

func TestStore_Remove(t *testing.T) {
	s := NewStore()
	s.Add("id1", "Alice")
	s.Add("id2", "Bob")

	if !s.Remove("id1") {
		t.Error("Remove should return true for existing player")
	}
	if s.Get("id1") != nil {
		t.Error("player should be nil after removal")
	}
	if len(s.GetList()) != 1 {
		t.Errorf("expected 1 player after removal, got %d", len(s.GetList()))
	}

	if s.Remove("nonexistent") {
		t.Error("Remove should return false for nonexistent player")
	}
}

func TestStore_Count(t *testing.T) {
	s := NewStore()
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0", s.Count())
	}

	s.Add("id1", "Alice")
	s.Add("id2", "Bob")
	if s.Count() != 2 {
		t.Errorf("Count = %d, want 2", s.Count())
	}

	s.Remove("id1")
	if s.Count() != 1 {
		t.Errorf("Count = %d, want 1 after removal", s.Count())
	}
}

func TestStore_ResetAll(t *testing.T) {
	s := NewStore()
	s.Add("id1", "Alice")
	s.Add("id2", "Bob")
	s.UpdateScore("id1", 100)
	s.SetReady("id1", true)
	s.SetReady("id2", true)
	s.SetAlive("id2", false)
	s.ApplyRoles([]Assignment{{PlayerID: "id1", Role: RoleMapMover, Edge: EdgeRight}})

	s.ResetAll()

	for _, p := range s.GetList() {
		if p.Score != 0 || p.Ready || !p.Alive || p.Role != RoleRegular || p.Edge != EdgeNone {
			t.Errorf("player %s not reset: %+v", p.ID, *p)
		}
	}
	if len(s.GetList()) != 2 {
		t.Error("players should still exist after reset")
	}
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()
	s.Add("id1", "Alice")
	s.Clear()
	if s.Count() != 0 || len(s.IDs()) != 0 {
		t.Error("Clear should empty the roster")
	}
}

func TestStore_Replace(t *testing.T) {
	s := NewStore()
	s.Add("a", "A")
	s.SetPosition("a", geom.Vec{X: 7})
	s.Add("gone", "G")

	s.UpdateScore("a", 100)
	s.Replace([]Player{
		{ID: "host", Name: "H", Host: true},
		{ID: "a", Name: "A", Ready: true, Score: 300},
	})

	if got := s.IDs(); !reflect.DeepEqual(got, []string{"host", "a"}) {
		t.Errorf("IDs() = %v, want [host a]", got)
	}
	if s.Get("gone") != nil {
		t.Error("players missing from the list should be dropped")
	}
	a := s.Get("a")
	if a.Position != (geom.Vec{X: 7}) || !a.Ready {
		t.Errorf("replaced entry = %+v, want kept position and new ready flag", *a)
	}
	if a.Score != 300 {
		t.Errorf("score = %d, want the listed 300", a.Score)
	}
	if !s.Get("host").Alive {
		t.Error("new entries should start alive")
	}
}

func TestStore_ApplyRoles(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"a", "b", "c"} {
		s.Add(id, id)
	}
	s.ApplyRoles(AssignRoles(s.IDs(), nil))

	a := s.Get("a")
	if a.Role != RoleMapMover || a.Edge != EdgeRight {
		t.Errorf("a = %s/%s, want map_mover/right", a.Role, a.Edge)
	}
	if !a.CanScroll(EdgeRight) || a.CanScroll(EdgeLeft) {
		t.Error("map mover should scroll only its own edge")
	}
	if b := s.Get("b"); b.Role != RoleRegular || b.CanScroll(EdgeRight) {
		t.Errorf("b = %s, want regular without scroll", b.Role)
	}
	if got := s.Assignments(); len(got) != 3 || got[0].Edge != EdgeRight {
		t.Errorf("Assignments() = %v", got)
	}
}

func TestAssignRoles_Counts(t *testing.T) {
	for n := 1; n <= 8; n++ {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = string(rune('a' + i))
		}
		movers := 0
		edges := map[Edge]bool{}
		for _, a := range AssignRoles(ids, rand.New(rand.NewPCG(1, uint64(n)))) {
			if a.Role == RoleMapMover {
				movers++
				if edges[a.Edge] {
					t.Errorf("n=%d: edge %s assigned twice", n, a.Edge)
				}
				edges[a.Edge] = true
			} else if a.Edge != EdgeNone {
				t.Errorf("n=%d: regular %s has edge %s", n, a.PlayerID, a.Edge)
			}
		}
		if want := max(1, n/3); movers != want {
			t.Errorf("n=%d: %d map movers, want %d", n, movers, want)
		}
	}
}

func TestAssignRoles_SixPlayers(t *testing.T) {
	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	as := AssignRoles(ids, nil)

	movers, regulars := 0, 0
	for _, a := range as {
		switch a.Role {
		case RoleMapMover:
			movers++
		case RoleRegular:
			regulars++
		}
	}
	if movers != 2 || regulars != 4 {
		t.Errorf("roles = %d movers, %d regulars; want 2, 4", movers, regulars)
	}
	if as[0].Edge != EdgeRight || as[1].Edge != EdgeLeft {
		t.Errorf("edges = %s, %s; want right, left", as[0].Edge, as[1].Edge)
	}
}

func TestAssignRoles_Empty(t *testing.T) {
	if got := AssignRoles(nil, nil); len(got) != 0 {
		t.Errorf("AssignRoles(nil) = %v, want empty", got)
	}
}

func TestAssignRoles_DoesNotMutateInput(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	AssignRoles(ids, rand.New(rand.NewPCG(7, 7)))
	if !reflect.DeepEqual(ids, []string{"a", "b", "c", "d"}) {
		t.Errorf("input reordered to %v", ids)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	s.Add("id1", "Alice")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.UpdateScore("id1", 1)
		}()
	}
	wg.Wait()

	p := s.Get("id1")
	if p.Score != 100 {
		t.Errorf("concurrent Score = %d, want 100", p.Score)
	}
}
