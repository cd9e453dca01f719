package protocol

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"mazeparty/internal/geom"
)

var testNow = time.Date(2026, 3, 14, 15, 9, 26, 535_000_000, time.UTC)

// samplePayloads has one fully populated payload per kind.
func samplePayloads() []Payload {
	snap := Snapshot{
		Level:          2,
		TeamScore:      340,
		TeamLives:      3,
		Checkpoints:    []string{"cp-1", "cp-2"},
		LastCheckpoint: geom.Vec{X: 120.5, Y: -40.25},
		Phase:          "playing",
		ElapsedMs:      83_000,
		ScrollOffset:   geom.Vec{X: 64, Y: 0},
	}
	peers := []PeerInfo{
		{ID: "host", Name: "Ada", Color: "#aabbcc", Host: true, Ready: true, Role: "map_mover", Edge: "right"},
		{ID: "p2", Name: "Bo", Color: "#112233", Ready: false, Role: "regular"},
	}
	return []Payload{
		Movement{PlayerID: "p2", Position: geom.Vec{X: 1.5, Y: 2.25}, Velocity: geom.Vec{X: -0.1, Y: 3}, Seq: 42},
		CheckpointReached{PlayerID: "p2", CheckpointID: "cp-3", Position: geom.Vec{X: 9, Y: 9}, Confirmed: true, Points: 100, TeamScore: 440},
		PowerUpCollected{PlayerID: "p2", PowerUpID: "pu-1", Effect: "speed_up", Multiplier: 1.5, DurationMs: 5000, Confirmed: true},
		PlayerDied{PlayerID: "p2", Cause: "vortex", Position: geom.Vec{X: 3, Y: 4}, Confirmed: true, TeamLives: 2},
		ScoreUpdate{PlayerID: "p2", Points: 10, PlayerScore: 110, TeamScore: 450},
		LevelAdvance{Level: 3, Bonus: 500, TeamScore: 950, Spawn: geom.Vec{X: 10, Y: 10}},
		GameStarted{Level: 1, TeamLives: 5, Spawn: geom.Vec{X: 10, Y: 20}, Roles: []RoleAssignment{
			{PlayerID: "host", Role: "map_mover", Edge: "right"},
			{PlayerID: "p2", Role: "regular"},
		}},
		GamePaused{Reason: "host paused"},
		GameResumed{},
		GameEnded{Victory: true, Reason: "all levels cleared", TeamScore: 1200, Level: 3},
		Chat{Text: "over here"},
		Heartbeat{Seq: 7, Reply: true, SentAt: testNow.UnixMilli()},
		ErrorReport{Code: "bad_state", Text: "game not running"},
		JoinRequest{Code: "ABCDEF", PlayerID: "p2", Name: "Bo"},
		JoinAccepted{PlayerID: "p2", HostID: "host", Roster: peers, InGame: true, State: snap},
		JoinRejected{Code: RejectCapacity, Reason: "session full"},
		Roster{Peers: peers},
		Ready{Ready: true},
		Respawn{Position: geom.Vec{X: 120.5, Y: -40.25}, DelayMs: 1500, TeamLives: 2},
		MapScroll{PlayerID: "host", Edge: "right", Offset: geom.Vec{X: 96}, Confirmed: true},
		StateSync{Snapshot: snap},
		Ack{MessageID: "m-1"},
		Leave{Reason: "bye"},
		Intent{Action: ActionPause},
		FinishReached{PlayerID: "p2"},
	}
}

func TestSamplePayloads_CoverEveryKind(t *testing.T) {
	seen := make(map[Kind]bool)
	for _, p := range samplePayloads() {
		seen[p.Kind()] = true
	}
	for _, k := range Kinds {
		if !seen[k] {
			t.Errorf("no sample payload for kind %q", k)
		}
	}
}

func TestCodecs_RoundTripEveryKind(t *testing.T) {
	for _, codec := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		for _, p := range samplePayloads() {
			m := New("host", "ABCDEF", p, testNow)
			m.To = "p2"

			b, err := codec.Encode(m)
			if err != nil {
				t.Fatalf("%s Encode(%s) error: %v", codec.Name(), p.Kind(), err)
			}
			got, err := codec.Decode(b)
			if err != nil {
				t.Fatalf("%s Decode(%s) error: %v", codec.Name(), p.Kind(), err)
			}
			if !reflect.DeepEqual(got, m) {
				t.Errorf("%s round trip of %s:\n got %+v\nwant %+v", codec.Name(), p.Kind(), got, m)
			}
		}
	}
}

func TestDecode_TruncatedFrames(t *testing.T) {
	for _, codec := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		for _, p := range samplePayloads() {
			b, err := codec.Encode(New("host", "ABCDEF", p, testNow))
			if err != nil {
				t.Fatal(err)
			}
			for _, cut := range []int{0, 1, len(b) / 2, len(b) - 1} {
				got, err := codec.Decode(b[:cut])
				if !errors.Is(err, ErrDecode) {
					t.Errorf("%s Decode(%s truncated to %d) error = %v, want ErrDecode", codec.Name(), p.Kind(), cut, err)
				}
				if got.Payload != nil || got.ID != "" {
					t.Errorf("%s Decode returned partial message %+v", codec.Name(), got)
				}
			}
		}
	}
}

func TestDecode_Corrupted(t *testing.T) {
	cases := []string{
		`not json`,
		`{"id":"x","v":1,"kind":"warp_drive","from":"a","session":"S","prio":1,"ts":1,"payload":{}}`,
		`{"id":"x","v":1,"kind":"chat","from":"a","session":"S","prio":1,"ts":1}`,
		`{"id":"x","v":1,"kind":"chat","from":"a","session":"S","prio":1,"ts":1,"payload":{"text":12}}`,
	}
	for _, c := range cases {
		if _, err := Decode([]byte(c)); !errors.Is(err, ErrDecode) {
			t.Errorf("Decode(%q) error = %v, want ErrDecode", c, err)
		}
	}
}

func TestJSONWireFormat(t *testing.T) {
	m := New("p2", "ABCDEF", Chat{Text: "hi"}, testNow)
	b, err := Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"kind":"chat"`, `"from":"p2"`, `"session":"ABCDEF"`, `"payload":{"text":"hi"}`} {
		if !strings.Contains(string(b), want) {
			t.Errorf("encoded frame %s missing %s", b, want)
		}
	}
}

func TestNew_AppliesPolicy(t *testing.T) {
	mv := New("p1", "S", Movement{PlayerID: "p1"}, testNow)
	if mv.Priority != PriorityLow || mv.RequiresAck || mv.Reliable() {
		t.Errorf("movement policy = prio %s ack %v reliable %v, want low/false/false", mv.Priority, mv.RequiresAck, mv.Reliable())
	}
	if mv.ExpiresAt.IsZero() {
		t.Error("movement should expire")
	}
	if ttl := mv.ExpiresAt.Sub(mv.Timestamp); ttl < time.Second || ttl > 5*time.Second {
		t.Errorf("movement ttl = %s, want between 1s and 5s", ttl)
	}

	hb := New("p1", "S", Heartbeat{}, testNow)
	if hb.Priority != PriorityLow || hb.Reliable() {
		t.Errorf("heartbeat should be low priority and unreliable")
	}

	for _, p := range []Payload{
		CheckpointReached{}, PlayerDied{}, ScoreUpdate{}, LevelAdvance{},
		GameStarted{}, GamePaused{}, GameResumed{}, GameEnded{}, ErrorReport{},
	} {
		m := New("p1", "S", p, testNow)
		if m.Priority < PriorityHigh {
			t.Errorf("%s priority = %s, want high or critical", p.Kind(), m.Priority)
		}
		if !m.Reliable() || !m.RequiresAck {
			t.Errorf("%s should be reliable and acknowledged", p.Kind())
		}
		if !m.ExpiresAt.IsZero() {
			t.Errorf("%s should not expire", p.Kind())
		}
	}
}

func TestMessage_Expired(t *testing.T) {
	m := New("p1", "S", Movement{PlayerID: "p1"}, testNow)
	if m.Expired(testNow) {
		t.Error("fresh movement should not be expired")
	}
	if !m.Expired(m.ExpiresAt) {
		t.Error("movement should be expired at its expiry time")
	}
	if !m.Expired(testNow.Add(time.Minute)) {
		t.Error("movement should be expired a minute later")
	}

	cp := New("p1", "S", CheckpointReached{PlayerID: "p1", CheckpointID: "c"}, testNow)
	if cp.Expired(testNow.Add(24 * time.Hour)) {
		t.Error("checkpoint reports never expire")
	}
}

func TestMessage_Reply(t *testing.T) {
	m := New("p2", "S", Ready{Ready: true}, testNow)
	ack := m.Reply("host", testNow)
	if ack.Kind != KindAck || ack.To != "p2" || ack.From != "host" {
		t.Errorf("ack = %+v", ack)
	}
	if ack.Payload.(Ack).MessageID != m.ID {
		t.Errorf("ack references %q, want %q", ack.Payload.(Ack).MessageID, m.ID)
	}
	if ack.RequiresAck {
		t.Error("acks must not be acknowledged")
	}
}

func TestValidate_AcceptsSamples(t *testing.T) {
	lim := DefaultLimits()
	for _, p := range samplePayloads() {
		m := New("host", "ABCDEF", p, testNow)
		if err := Validate(m, testNow, lim); err != nil {
			t.Errorf("Validate(%s) error: %v", p.Kind(), err)
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	lim := DefaultLimits()
	base := func(p Payload) Message { return New("p1", "S", p, testNow) }

	cases := []struct {
		name string
		msg  Message
	}{
		{"missing id", func() Message { m := base(Chat{Text: "x"}); m.ID = ""; return m }()},
		{"missing from", func() Message { m := base(Chat{Text: "x"}); m.From = ""; return m }()},
		{"missing session", func() Message { m := base(Chat{Text: "x"}); m.SessionID = ""; return m }()},
		{"wrong version", func() Message { m := base(Chat{Text: "x"}); m.Version = 9; return m }()},
		{"kind mismatch", func() Message { m := base(Chat{Text: "x"}); m.Kind = KindReady; return m }()},
		{"nil payload", func() Message { m := base(Chat{Text: "x"}); m.Payload = nil; return m }()},
		{"future timestamp", func() Message { m := base(Chat{Text: "x"}); m.Timestamp = testNow.Add(10 * time.Second); return m }()},
		{"stale timestamp", func() Message { m := base(Chat{Text: "x"}); m.Timestamp = testNow.Add(-10 * time.Second); return m }()},
		{"empty chat", base(Chat{})},
		{"movement NaN", base(Movement{PlayerID: "p1", Position: geom.Vec{X: math.NaN()}})},
		{"movement Inf velocity", base(Movement{PlayerID: "p1", Velocity: geom.Vec{Y: math.Inf(1)}})},
		{"movement out of range", base(Movement{PlayerID: "p1", Position: geom.Vec{X: 2e6}})},
		{"movement no player", base(Movement{})},
		{"checkpoint no id", base(CheckpointReached{PlayerID: "p1"})},
		{"death no cause", base(PlayerDied{PlayerID: "p1"})},
		{"power-up no id", base(PowerUpCollected{PlayerID: "p1", Effect: "speed_up"})},
		{"game started without roles", base(GameStarted{Level: 1, TeamLives: 5})},
		{"join without name", base(JoinRequest{Code: "ABCDEF", PlayerID: "p1"})},
		{"empty roster", base(Roster{})},
		{"unknown intent", base(Intent{Action: "teleport"})},
		{"ack without id", base(Ack{})},
		{"finish without player", base(FinishReached{})},
	}
	for _, c := range cases {
		if err := Validate(c.msg, testNow, lim); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: Validate error = %v, want ErrInvalid", c.name, err)
		}
	}
}

func TestCodecByName(t *testing.T) {
	for _, name := range []string{"", "json", "msgpack"} {
		if _, err := CodecByName(name); err != nil {
			t.Errorf("CodecByName(%q) error: %v", name, err)
		}
	}
	if _, err := CodecByName("xml"); err == nil {
		t.Error("CodecByName(xml) should fail")
	}
}
