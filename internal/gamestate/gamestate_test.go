package gamestate

import (
	"reflect"
	"testing"
	"time"

	"mazeparty/internal/geom"
)

func startedState() *State {
	s := New()
	s.Start(1, 5, geom.Vec{X: 10, Y: 10})
	return s
}

func TestNew(t *testing.T) {
	s := New()
	if s.Phase() != PhaseLobby {
		t.Errorf("Phase() = %q, want %q", s.Phase(), PhaseLobby)
	}
	if len(s.Checkpoints()) != 0 {
		t.Error("new state should have no checkpoints")
	}
}

func TestState_Start(t *testing.T) {
	s := startedState()
	if s.Phase() != PhasePlaying {
		t.Errorf("Phase() = %q, want %q", s.Phase(), PhasePlaying)
	}
	if s.Level() != 1 || s.TeamLives() != 5 || s.TeamScore() != 0 {
		t.Errorf("level/lives/score = %d/%d/%d, want 1/5/0", s.Level(), s.TeamLives(), s.TeamScore())
	}
	if s.LastCheckpoint() != (geom.Vec{X: 10, Y: 10}) {
		t.Errorf("LastCheckpoint() = %v, want spawn", s.LastCheckpoint())
	}
}

func TestState_CompleteCheckpoint_Idempotent(t *testing.T) {
	s := startedState()
	if !s.CompleteCheckpoint("cp1", geom.Vec{X: 50}) {
		t.Fatal("first CompleteCheckpoint should succeed")
	}
	before := s.Snapshot()

	if s.CompleteCheckpoint("cp1", geom.Vec{X: 99}) {
		t.Error("duplicate CompleteCheckpoint should report false")
	}
	if after := s.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Errorf("duplicate changed state:\n got %+v\nwant %+v", after, before)
	}
	if !s.IsCompleted("cp1") || s.IsCompleted("cp2") {
		t.Error("IsCompleted disagrees with completed set")
	}
}

func TestState_CheckpointSetMonotonic(t *testing.T) {
	s := startedState()
	ids := []string{"c", "a", "b", "a", "c"}
	prev := 0
	for _, id := range ids {
		s.CompleteCheckpoint(id, geom.Vec{})
		n := len(s.Checkpoints())
		if n < prev {
			t.Fatalf("checkpoint set shrank from %d to %d", prev, n)
		}
		prev = n
		s.LoseLife()
		s.AddScore(10)
		s.Scroll(geom.Vec{X: 1})
	}
	if got := s.Checkpoints(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Checkpoints() = %v, want [a b c]", got)
	}

	s.AdvanceLevel(2, 0, geom.Vec{})
	if len(s.Checkpoints()) != 0 {
		t.Error("AdvanceLevel should clear checkpoints")
	}
}

func TestState_LoseLife_Exhaustion(t *testing.T) {
	s := startedState()
	for i := 1; i <= 5; i++ {
		lives, ok := s.LoseLife()
		if !ok {
			t.Fatalf("death %d: LoseLife not applied", i)
		}
		if lives != 5-i {
			t.Errorf("death %d: lives = %d, want %d", i, lives, 5-i)
		}
		if i < 5 && s.Phase() == PhaseGameOver {
			t.Fatalf("game over after %d deaths, want 5", i)
		}
	}
	if s.Phase() != PhaseGameOver {
		t.Errorf("Phase() = %q after 5 deaths, want %q", s.Phase(), PhaseGameOver)
	}
	if _, ok := s.LoseLife(); ok {
		t.Error("LoseLife at zero should be a no-op")
	}
	if s.TeamLives() != 0 {
		t.Errorf("TeamLives() = %d, want 0", s.TeamLives())
	}
}

func TestState_AdvanceLevel(t *testing.T) {
	s := startedState()
	s.CompleteCheckpoint("cp1", geom.Vec{X: 3})
	s.AddScore(100)
	s.Scroll(geom.Vec{X: 64})
	s.MarkFinished("p1")
	s.LoseLife()

	s.AdvanceLevel(2, 500, geom.Vec{X: 1, Y: 1})

	snap := s.Snapshot()
	if snap.Level != 2 || snap.TeamScore != 600 || snap.TeamLives != 4 {
		t.Errorf("snapshot = %+v, want level 2, score 600, lives 4", snap)
	}
	if snap.ScrollOffset != (geom.Vec{}) {
		t.Errorf("ScrollOffset = %v, want zero", snap.ScrollOffset)
	}
	if snap.LastCheckpoint != (geom.Vec{X: 1, Y: 1}) {
		t.Errorf("LastCheckpoint = %v, want new spawn", snap.LastCheckpoint)
	}
	if s.Finished([]string{"p1"}) {
		t.Error("finish contacts should reset on level advance")
	}
}

func TestState_Finished(t *testing.T) {
	s := startedState()
	alive := []string{"p1", "p2"}
	if s.Finished(alive) {
		t.Error("nobody finished yet")
	}
	if !s.MarkFinished("p1") || s.MarkFinished("p1") {
		t.Error("MarkFinished should report only the first contact")
	}
	if s.Finished(alive) {
		t.Error("p2 has not finished")
	}
	if !s.Finished([]string{"p1"}) {
		t.Error("all alive players finished")
	}
	s.MarkFinished("p2")
	if !s.Finished(alive) {
		t.Error("everyone finished")
	}
	if s.Finished(nil) {
		t.Error("an empty alive set never finishes")
	}
}

func TestState_PauseResume(t *testing.T) {
	s := startedState()
	s.SetPhase(PhaseRespawning)

	if !s.Pause() {
		t.Fatal("Pause() of active game = false")
	}
	if s.Pause() {
		t.Error("Pause() twice should fail")
	}
	s.Tick(time.Second)
	if s.Snapshot().Elapsed != 0 {
		t.Error("paused games should not accumulate time")
	}
	if !s.Resume() {
		t.Fatal("Resume() = false")
	}
	if s.Phase() != PhaseRespawning {
		t.Errorf("Phase() after resume = %q, want %q", s.Phase(), PhaseRespawning)
	}
	if s.Resume() {
		t.Error("Resume() of running game should fail")
	}

	s.End(false)
	if s.Pause() {
		t.Error("cannot pause a finished game")
	}
}

func TestState_Tick(t *testing.T) {
	s := New()
	s.Tick(time.Second)
	if s.Snapshot().Elapsed != 0 {
		t.Error("lobby should not accumulate time")
	}
	s.Start(1, 5, geom.Vec{})
	s.Tick(2 * time.Second)
	s.Tick(500 * time.Millisecond)
	if got := s.Snapshot().Elapsed; got != 2500*time.Millisecond {
		t.Errorf("Elapsed = %s, want 2.5s", got)
	}
}

func TestState_End(t *testing.T) {
	s := startedState()
	s.End(true)
	if s.Phase() != PhaseCompleted || !s.Phase().Over() {
		t.Errorf("Phase() = %q, want completed", s.Phase())
	}
}

func TestState_Restart(t *testing.T) {
	s := startedState()
	s.LoseLife()
	s.LoseLife()
	s.CompleteCheckpoint("cp1", geom.Vec{})
	s.AddScore(300)

	s.Restart(1, 5, geom.Vec{})

	snap := s.Snapshot()
	if snap.TeamLives != 5 || snap.TeamScore != 0 || len(snap.Checkpoints) != 0 || snap.Phase != PhasePlaying {
		t.Errorf("after Restart snapshot = %+v", snap)
	}
}

func TestState_SnapshotRestore(t *testing.T) {
	host := startedState()
	host.CompleteCheckpoint("b", geom.Vec{X: 5})
	host.CompleteCheckpoint("a", geom.Vec{X: 7})
	host.AddScore(200)
	host.LoseLife()
	host.Scroll(geom.Vec{Y: 32})
	host.Tick(3 * time.Second)

	member := New()
	member.Restore(host.Snapshot())

	if !reflect.DeepEqual(member.Snapshot(), host.Snapshot()) {
		t.Errorf("restored snapshot differs:\n got %+v\nwant %+v", member.Snapshot(), host.Snapshot())
	}
	if !member.IsCompleted("a") {
		t.Error("restored state should know checkpoint a")
	}
}
