package gamelogic

import (
	"testing"
	"time"

	"mazeparty/internal/gamestate"
	"mazeparty/internal/geom"
	"mazeparty/internal/level"
	"mazeparty/internal/logger"
	"mazeparty/internal/players"
	"mazeparty/internal/powerup"
	"mazeparty/internal/protocol"
)

func init() {
	logger.EnableLogging(false)
}

func testLevels() *level.Catalog {
	return level.NewCatalog(
		level.Descriptor{
			Number: 1,
			Spawn:  geom.Vec{X: 10, Y: 10},
			Bonus:  500,
			Checkpoints: []level.Checkpoint{
				{ID: "cp1", Position: geom.Vec{X: 100, Y: 100}, Points: 100},
				{ID: "cp2", Position: geom.Vec{X: 200, Y: 100}, Points: 100},
			},
			PowerUps: []level.PowerUpSpot{
				{ID: "pu1", Type: "speed_up", Duration: 2 * time.Second},
				{ID: "pu2", Type: "slow_down"},
			},
		},
		level.Descriptor{Number: 2, Spawn: geom.Vec{X: 20, Y: 20}, Bonus: 1000},
	)
}

type fixture struct {
	state   *gamestate.State
	roster  *players.Store
	tracker *powerup.Tracker
	auth    *Authority
	sent    []protocol.Payload
	a       *ContactHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:   gamestate.New(),
		roster:  players.NewStore(),
		tracker: powerup.NewTracker(),
	}
	f.roster.Add("a", "Ana")
	f.roster.Add("b", "Bo")
	f.roster.ApplyRoles([]players.Assignment{
		{PlayerID: "a", Role: players.RoleMapMover, Edge: players.EdgeRight},
		{PlayerID: "b", Role: players.RoleRegular},
	})
	f.auth = NewAuthority(DefaultConfig(), f.state, f.roster, testLevels(), f.tracker)
	gs, err := f.auth.Prepare(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.auth.Begin(gs); err != nil {
		t.Fatal(err)
	}
	f.a = NewContactHandler("a", f.roster, f.state, f.auth, SubmitFunc(func(p protocol.Payload) {
		f.sent = append(f.sent, p)
	}))
	return f
}

func TestContactHandler_CheckpointReportedOnce(t *testing.T) {
	f := newFixture(t)
	if !f.a.OnContactBegin(Contact{A: CatCheckpoint, B: CatPlayer, NodeA: "cp1", NodeB: "a"}) {
		t.Fatal("first checkpoint contact should produce an intent")
	}
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatCheckpoint, NodeA: "a", NodeB: "cp1"})
	if len(f.sent) != 1 {
		t.Fatalf("sent %d intents, want 1", len(f.sent))
	}
	cp, ok := f.sent[0].(protocol.CheckpointReached)
	if !ok || cp.CheckpointID != "cp1" || cp.Confirmed || cp.Position != (geom.Vec{X: 100, Y: 100}) {
		t.Errorf("intent = %+v", f.sent[0])
	}
	if f.state.IsCompleted("cp1") {
		t.Error("contact handler must not complete checkpoints itself")
	}
}

func TestContactHandler_IgnoresOtherPlayers(t *testing.T) {
	f := newFixture(t)
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatVortex, NodeA: "b"})
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatOtherPlayer, NodeA: "a", NodeB: "b"})
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatWall, NodeA: "a"})
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatCheckpoint, NodeA: "a", NodeB: "nope"})
	if len(f.sent) != 0 {
		t.Errorf("sent %v, want nothing", f.sent)
	}
}

func TestContactHandler_DeathLock(t *testing.T) {
	f := newFixture(t)
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatVortex, NodeA: "a"})
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatSpike, NodeA: "a"})
	if len(f.sent) != 1 || !f.a.DeathLocked() {
		t.Fatalf("sent %d deaths, want 1 and a lock", len(f.sent))
	}
	if d := f.sent[0].(protocol.PlayerDied); d.Cause != "vortex" {
		t.Errorf("cause = %q, want vortex", d.Cause)
	}

	f.a.Respawned()
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatSpike, NodeA: "a"})
	if len(f.sent) != 2 {
		t.Errorf("death after respawn not reported")
	}
}

func TestContactHandler_Border(t *testing.T) {
	f := newFixture(t)
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatBorder, NodeA: "a", NodeB: "right"})
	if s, ok := f.sent[0].(protocol.MapScroll); !ok || s.Edge != "right" {
		t.Fatalf("mover at own edge sent %+v, want a scroll", f.sent[0])
	}
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatBorder, NodeA: "a", NodeB: "left"})
	if d, ok := f.sent[1].(protocol.PlayerDied); !ok || d.Cause != "border_spike" {
		t.Errorf("mover at another edge sent %+v, want a spike death", f.sent[1])
	}

	var bSent []protocol.Payload
	b := NewContactHandler("b", f.roster, f.state, f.auth, SubmitFunc(func(p protocol.Payload) { bSent = append(bSent, p) }))
	b.OnContactBegin(Contact{A: CatPlayer, B: CatBorder, NodeA: "b", NodeB: "right"})
	if len(bSent) != 1 {
		t.Fatal("regular border contact sent nothing")
	}
	if _, ok := bSent[0].(protocol.PlayerDied); !ok {
		t.Errorf("regular at border sent %T, want PlayerDied", bSent[0])
	}
}

func TestContactHandler_OnlyWhilePlaying(t *testing.T) {
	f := newFixture(t)
	f.state.Pause()
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatVortex, NodeA: "a"})
	f.state.Resume()
	f.roster.SetAlive("a", false)
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatFinish, NodeA: "a"})
	if len(f.sent) != 0 {
		t.Errorf("sent %v while paused or dead", f.sent)
	}
}

func TestContactHandler_RejectedDeathUnlocks(t *testing.T) {
	f := newFixture(t)
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatVortex, NodeA: "a"})
	if len(f.sent) != 1 {
		t.Fatalf("sent %d intents, want 1", len(f.sent))
	}

	// The pause reaches the host first, so the death is turned down.
	f.auth.Control(protocol.ActionPause)
	if out := f.auth.Judge("a", f.sent[0], time.Now()); out != nil {
		t.Fatalf("death judged while paused = %v", out)
	}
	f.a.Reject(f.sent[0])
	f.auth.Control(protocol.ActionResume)

	if f.a.DeathLocked() {
		t.Fatal("rejected death left the lock on")
	}
	if !f.a.OnContactBegin(Contact{A: CatPlayer, B: CatVortex, NodeA: "a"}) {
		t.Error("vortex after a rejected death produced no intent")
	}
}

func TestContactHandler_PauseReleasesReports(t *testing.T) {
	f := newFixture(t)
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatCheckpoint, NodeA: "a", NodeB: "cp1"})
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatVortex, NodeA: "a"})
	f.a.Release()
	if f.a.DeathLocked() {
		t.Error("death lock kept across a pause")
	}
	if !f.a.OnContactBegin(Contact{A: CatPlayer, B: CatCheckpoint, NodeA: "a", NodeB: "cp1"}) {
		t.Error("checkpoint touched again after a pause was not reported")
	}
}

func TestContactHandler_ConfirmedStaysReported(t *testing.T) {
	f := newFixture(t)
	now := time.Unix(1000, 0)
	f.a.SetClock(func() time.Time { return now })
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatCheckpoint, NodeA: "a", NodeB: "cp1"})
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatCheckpoint, NodeA: "a", NodeB: "cp2"})
	f.a.OnContactBegin(Contact{A: CatPlayer, B: CatVortex, NodeA: "a"})

	out := f.auth.Judge("a", f.sent[0], now)
	f.a.Confirm(out[0])
	out = f.auth.Judge("a", f.sent[2], now)
	f.a.Confirm(out[0])

	if n := f.a.Expire(now.Add(ConfirmTimeout)); n != 1 {
		t.Fatalf("expired %d reports, want only cp2", n)
	}
	if !f.a.DeathLocked() {
		t.Error("confirmed death lost its lock")
	}
	f.roster.SetAlive("a", true)
	f.state.SetPhase(gamestate.PhasePlaying)
	if f.a.OnContactBegin(Contact{A: CatPlayer, B: CatCheckpoint, NodeA: "a", NodeB: "cp1"}) {
		t.Error("confirmed checkpoint reported twice")
	}
	// cp2 went unanswered, so it can be reported again.
	if !f.a.OnContactBegin(Contact{A: CatPlayer, B: CatCheckpoint, NodeA: "a", NodeB: "cp2"}) {
		t.Error("expired checkpoint not reported again")
	}
}

func TestAuthority_CheckpointIdempotent(t *testing.T) {
	f := newFixture(t)
	first := f.auth.Judge("a", protocol.CheckpointReached{PlayerID: "a", CheckpointID: "cp1"}, time.Now())
	if len(first) != 2 {
		t.Fatalf("first report gave %d deltas, want 2", len(first))
	}
	cp := first[0].(protocol.CheckpointReached)
	if !cp.Confirmed || cp.TeamScore != 100 || cp.Points != 100 {
		t.Errorf("confirmation = %+v", cp)
	}
	before := f.state.Snapshot()

	if again := f.auth.Judge("a", protocol.CheckpointReached{PlayerID: "a", CheckpointID: "cp1"}, time.Now()); len(again) != 0 {
		t.Errorf("duplicate report gave %v", again)
	}
	after := f.state.Snapshot()
	if after.TeamScore != before.TeamScore || len(after.Checkpoints) != len(before.Checkpoints) {
		t.Errorf("duplicate changed state: %+v -> %+v", before, after)
	}
}

func TestAuthority_CheckpointRace(t *testing.T) {
	f := newFixture(t)
	var deltas []protocol.Payload
	deltas = append(deltas, f.auth.Judge("b", protocol.CheckpointReached{PlayerID: "b", CheckpointID: "cp2"}, time.Now())...)
	deltas = append(deltas, f.auth.Judge("a", protocol.CheckpointReached{PlayerID: "a", CheckpointID: "cp2"}, time.Now())...)

	awards := 0
	for _, d := range deltas {
		if cp, ok := d.(protocol.CheckpointReached); ok && cp.Confirmed {
			awards++
			if cp.PlayerID != "b" {
				t.Errorf("awarded to %s, want the first reporter", cp.PlayerID)
			}
		}
	}
	if awards != 1 || f.state.TeamScore() != 100 {
		t.Errorf("awards = %d, score = %d; want 1 and 100", awards, f.state.TeamScore())
	}
	if p := f.roster.Get("a"); p.Score != 0 {
		t.Errorf("loser scored %d", p.Score)
	}
}

func TestAuthority_CheckpointRejections(t *testing.T) {
	f := newFixture(t)
	if got := f.auth.Judge("b", protocol.CheckpointReached{PlayerID: "a", CheckpointID: "cp1"}, time.Now()); got != nil {
		t.Errorf("report on behalf of another player accepted: %v", got)
	}
	if got := f.auth.Judge("a", protocol.CheckpointReached{PlayerID: "a", CheckpointID: "cp9"}, time.Now()); got != nil {
		t.Errorf("unknown checkpoint accepted: %v", got)
	}
	if got := f.auth.Judge("a", protocol.CheckpointReached{PlayerID: "a", CheckpointID: "cp1", Confirmed: true}, time.Now()); got != nil {
		t.Errorf("member-sent confirmation accepted: %v", got)
	}
}

func TestAuthority_LifeExhaustion(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 5; i++ {
		out := f.auth.Judge("a", protocol.PlayerDied{PlayerID: "a", Cause: "vortex"}, time.Now())
		if len(out) != 2 {
			t.Fatalf("death %d gave %v", i, out)
		}
		died := out[0].(protocol.PlayerDied)
		if died.TeamLives != 5-i {
			t.Errorf("death %d: lives = %d, want %d", i, died.TeamLives, 5-i)
		}
		if i < 5 {
			if f.state.Phase() == gamestate.PhaseGameOver || died.GameOver {
				t.Fatalf("game over after %d deaths", i)
			}
			if r, ok := out[1].(protocol.Respawn); !ok || r.TeamLives != 5-i {
				t.Errorf("death %d follow-up = %+v, want respawn", i, out[1])
			}
			f.auth.CompleteRespawn(f.state.LastCheckpoint())
			continue
		}
		if !died.GameOver || f.state.Phase() != gamestate.PhaseGameOver {
			t.Errorf("fifth death: phase %s, want game over", f.state.Phase())
		}
		if ge, ok := out[1].(protocol.GameEnded); !ok || ge.Victory {
			t.Errorf("fifth death follow-up = %+v, want a lost game", out[1])
		}
	}
}

func TestAuthority_DeathDuringRespawnIgnored(t *testing.T) {
	f := newFixture(t)
	f.auth.AcceptDeath("a", "vortex", geom.Vec{})
	if got := f.auth.AcceptDeath("b", "spike", geom.Vec{}); got != nil {
		t.Errorf("death while respawning accepted: %v", got)
	}
	if f.state.TeamLives() != 4 {
		t.Errorf("lives = %d, want 4", f.state.TeamLives())
	}

	f.auth.CompleteRespawn(geom.Vec{X: 100, Y: 100})
	for _, id := range []string{"a", "b"} {
		p := f.roster.Get(id)
		if !p.Alive || p.Position != (geom.Vec{X: 100, Y: 100}) {
			t.Errorf("%s after respawn = %+v", id, p)
		}
	}
	if f.state.Phase() != gamestate.PhasePlaying {
		t.Errorf("phase = %s, want playing", f.state.Phase())
	}
}

func TestAuthority_FinishAdvancesThenWins(t *testing.T) {
	f := newFixture(t)
	f.auth.Judge("a", protocol.CheckpointReached{PlayerID: "a", CheckpointID: "cp1"}, time.Now())
	f.state.Scroll(geom.Vec{X: 40})

	if out := f.auth.Judge("a", protocol.FinishReached{PlayerID: "a"}, time.Now()); out != nil {
		t.Fatalf("advanced before everyone finished: %v", out)
	}
	out := f.auth.Judge("b", protocol.FinishReached{PlayerID: "b"}, time.Now())
	if len(out) != 1 {
		t.Fatalf("last finisher gave %v", out)
	}
	la, ok := out[0].(protocol.LevelAdvance)
	if !ok || la.Level != 2 || la.Bonus != 500 || la.TeamScore != 600 {
		t.Fatalf("advance = %+v", out[0])
	}
	if f.state.Level() != 2 || len(f.state.Checkpoints()) != 0 || f.state.ScrollOffset() != (geom.Vec{}) {
		t.Errorf("state after advance = %+v", f.state.Snapshot())
	}
	if f.auth.Current().Number != 2 {
		t.Errorf("current level = %d", f.auth.Current().Number)
	}

	f.auth.Judge("a", protocol.FinishReached{PlayerID: "a"}, time.Now())
	out = f.auth.Judge("b", protocol.FinishReached{PlayerID: "b"}, time.Now())
	ge, ok := out[0].(protocol.GameEnded)
	if !ok || !ge.Victory || ge.TeamScore != 1600 {
		t.Errorf("final finish = %+v, want a win with 1600", out[0])
	}
	if f.state.Phase() != gamestate.PhaseCompleted {
		t.Errorf("phase = %s, want completed", f.state.Phase())
	}
}

func TestAuthority_RecheckAfterLeave(t *testing.T) {
	f := newFixture(t)
	if _, ok := f.auth.Recheck(); ok {
		t.Fatal("recheck advanced with nobody finished")
	}
	if out := f.auth.Judge("a", protocol.FinishReached{PlayerID: "a"}, time.Now()); out != nil {
		t.Fatalf("advanced before everyone finished: %v", out)
	}
	f.roster.Remove("b")

	d, ok := f.auth.Recheck()
	if !ok {
		t.Fatal("level not cleared after the last unfinished player left")
	}
	if la, ok := d.(protocol.LevelAdvance); !ok || la.Level != 2 {
		t.Errorf("recheck = %+v, want an advance to level 2", d)
	}
	if _, ok := f.auth.Recheck(); ok {
		t.Error("recheck cleared the new level too")
	}
}

func TestAuthority_PowerUpOnce(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := f.auth.Judge("a", protocol.PowerUpCollected{PlayerID: "a", PowerUpID: "pu1", Effect: "speed_up"}, now)
	if len(out) != 1 {
		t.Fatalf("collect gave %v", out)
	}
	pu := out[0].(protocol.PowerUpCollected)
	if !pu.Confirmed || pu.Multiplier != 1.5 || pu.DurationMs != 2000 {
		t.Errorf("confirmation = %+v", pu)
	}
	if got := f.auth.Judge("b", protocol.PowerUpCollected{PlayerID: "b", PowerUpID: "pu1", Effect: "speed_up"}, now); got != nil {
		t.Errorf("second collector accepted: %v", got)
	}
	if m := f.tracker.Multiplier("a", now.Add(time.Second)); m != 1.5 {
		t.Errorf("multiplier = %v, want 1.5", m)
	}
	if m := f.tracker.Multiplier("a", now.Add(2*time.Second)); m != 1 {
		t.Errorf("multiplier after expiry = %v, want 1", m)
	}

	out = f.auth.Judge("b", protocol.PowerUpCollected{PlayerID: "b", PowerUpID: "pu2", Effect: "slow_down"}, now)
	if pu := out[0].(protocol.PowerUpCollected); pu.DurationMs != powerup.DefaultDuration.Milliseconds() {
		t.Errorf("default duration = %dms", pu.DurationMs)
	}
}

func TestAuthority_Scroll(t *testing.T) {
	f := newFixture(t)
	out := f.auth.Judge("a", protocol.MapScroll{PlayerID: "a", Edge: "right"}, time.Now())
	s, ok := out[0].(protocol.MapScroll)
	if !ok || !s.Confirmed || s.Offset != (geom.Vec{X: 40}) {
		t.Fatalf("scroll = %+v", out)
	}

	out = f.auth.Judge("b", protocol.MapScroll{PlayerID: "b", Edge: "right"}, time.Now())
	if len(out) == 0 {
		t.Fatal("regular scroll produced nothing")
	}
	if d, ok := out[0].(protocol.PlayerDied); !ok || d.Cause != "border_spike" {
		t.Errorf("regular scroll = %+v, want a spike death", out[0])
	}
	if f.state.ScrollOffset() != (geom.Vec{X: 40}) {
		t.Errorf("offset = %v", f.state.ScrollOffset())
	}
}

func TestAuthority_Control(t *testing.T) {
	f := newFixture(t)
	if out := f.auth.Control(protocol.ActionPause); len(out) != 1 || f.state.Phase() != gamestate.PhasePaused {
		t.Errorf("pause = %v, phase %s", out, f.state.Phase())
	}
	if out := f.auth.Control(protocol.ActionPause); out != nil {
		t.Errorf("second pause = %v", out)
	}
	if out := f.auth.Control(protocol.ActionResume); len(out) != 1 || f.state.Phase() != gamestate.PhasePlaying {
		t.Errorf("resume = %v, phase %s", out, f.state.Phase())
	}

	f.auth.AcceptDeath("a", "vortex", geom.Vec{})
	out := f.auth.Control(protocol.ActionRestart)
	gs, ok := out[0].(protocol.GameStarted)
	if !ok || gs.Level != 1 || len(gs.Roles) != 2 {
		t.Fatalf("restart = %+v", out)
	}
	if f.state.TeamLives() != 5 || f.state.Phase() != gamestate.PhasePlaying {
		t.Errorf("after restart lives = %d phase = %s", f.state.TeamLives(), f.state.Phase())
	}
}

func TestWire_SnapshotConversion(t *testing.T) {
	s := gamestate.Snapshot{Level: 2, TeamScore: 300, TeamLives: 3, Checkpoints: []string{"cp1"}, Phase: gamestate.PhasePaused, Elapsed: 1500 * time.Millisecond}
	back := FromWire(ToWire(s))
	if back.Level != 2 || back.Phase != gamestate.PhasePaused || back.Elapsed != s.Elapsed || len(back.Checkpoints) != 1 {
		t.Errorf("FromWire(ToWire(s)) = %+v", back)
	}
}
