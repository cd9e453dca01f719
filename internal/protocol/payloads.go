package protocol

import "mazeparty/internal/geom"

// Payload is the closed set of message bodies. Every implementation lives in
// this file.
type Payload interface {
	Kind() Kind
	isPayload()
}

type Movement struct {
	PlayerID string   `json:"playerId"`
	Position geom.Vec `json:"position"`
	Velocity geom.Vec `json:"velocity"`
	Seq      uint64   `json:"seq"`
}

// CheckpointReached is an intent when Confirmed is false and the host's
// authoritative delta when true.
type CheckpointReached struct {
	PlayerID     string   `json:"playerId"`
	CheckpointID string   `json:"checkpointId"`
	Position     geom.Vec `json:"position"`
	Confirmed    bool     `json:"confirmed"`
	Points       int      `json:"points"`
	TeamScore    int      `json:"teamScore"`
}

type PowerUpCollected struct {
	PlayerID   string  `json:"playerId"`
	PowerUpID  string  `json:"powerUpId"`
	Effect     string  `json:"effect"`
	Multiplier float64 `json:"multiplier"`
	DurationMs int64   `json:"durationMs"`
	Confirmed  bool    `json:"confirmed"`
}

type PlayerDied struct {
	PlayerID  string   `json:"playerId"`
	Cause     string   `json:"cause"`
	Position  geom.Vec `json:"position"`
	Confirmed bool     `json:"confirmed"`
	TeamLives int      `json:"teamLives"`
	GameOver  bool     `json:"gameOver"`
}

type ScoreUpdate struct {
	PlayerID    string `json:"playerId"`
	Points      int    `json:"points"`
	PlayerScore int    `json:"playerScore"`
	TeamScore   int    `json:"teamScore"`
}

type LevelAdvance struct {
	Level     int      `json:"level"`
	Bonus     int      `json:"bonus"`
	TeamScore int      `json:"teamScore"`
	Spawn     geom.Vec `json:"spawn"`
}

type RoleAssignment struct {
	PlayerID string `json:"playerId"`
	Role     string `json:"role"`
	Edge     string `json:"edge"`
}

type GameStarted struct {
	Level     int              `json:"level"`
	TeamLives int              `json:"teamLives"`
	Spawn     geom.Vec         `json:"spawn"`
	Roles     []RoleAssignment `json:"roles"`
}

type GamePaused struct {
	Reason string `json:"reason"`
}

type GameResumed struct{}

type GameEnded struct {
	Victory   bool   `json:"victory"`
	Reason    string `json:"reason"`
	TeamScore int    `json:"teamScore"`
	Level     int    `json:"level"`
}

type Chat struct {
	Text string `json:"text"`
}

// Heartbeat carries SentAt (unix ms) so the pinger can estimate round trips
// from the echoed reply.
type Heartbeat struct {
	Seq    uint64 `json:"seq"`
	Reply  bool   `json:"reply"`
	SentAt int64  `json:"sentAt"`
}

type ErrorReport struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

type JoinRequest struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type PeerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Host  bool   `json:"host"`
	Ready bool   `json:"ready"`
	Role  string `json:"role"`
	Edge  string `json:"edge"`
	Score int    `json:"score"`
}

type JoinAccepted struct {
	PlayerID string     `json:"playerId"`
	HostID   string     `json:"hostId"`
	Roster   []PeerInfo `json:"roster"`
	InGame   bool       `json:"inGame"`
	State    Snapshot   `json:"state"`
}

// Rejection codes carried by JoinRejected.
const (
	RejectCapacity   = "capacity"
	RejectInProgress = "in_progress"
	RejectBadCode    = "bad_code"
)

type JoinRejected struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type Roster struct {
	Peers []PeerInfo `json:"peers"`
}

type Ready struct {
	Ready bool `json:"ready"`
}

type Respawn struct {
	Position  geom.Vec `json:"position"`
	DelayMs   int64    `json:"delayMs"`
	TeamLives int      `json:"teamLives"`
}

type MapScroll struct {
	PlayerID  string   `json:"playerId"`
	Edge      string   `json:"edge"`
	Offset    geom.Vec `json:"offset"`
	Confirmed bool     `json:"confirmed"`
}

// Snapshot is the wire form of the shared game state.
type Snapshot struct {
	Level          int      `json:"level"`
	TeamScore      int      `json:"teamScore"`
	TeamLives      int      `json:"teamLives"`
	Checkpoints    []string `json:"checkpoints"`
	LastCheckpoint geom.Vec `json:"lastCheckpoint"`
	Phase          string   `json:"phase"`
	ElapsedMs      int64    `json:"elapsedMs"`
	ScrollOffset   geom.Vec `json:"scrollOffset"`
}

type StateSync struct {
	Snapshot Snapshot `json:"snapshot"`
}

type Ack struct {
	MessageID string `json:"messageId"`
}

type Leave struct {
	Reason string `json:"reason"`
}

// Intent actions a member may ask the host to perform.
const (
	ActionPause   = "pause"
	ActionResume  = "resume"
	ActionRestart = "restart"
)

type Intent struct {
	Action string `json:"action"`
}

// FinishReached is a member telling the host it touched the level exit.
type FinishReached struct {
	PlayerID string `json:"playerId"`
}

func (Movement) Kind() Kind          { return KindPlayerMovement }
func (CheckpointReached) Kind() Kind { return KindCheckpointReached }
func (PowerUpCollected) Kind() Kind  { return KindPowerUpCollected }
func (PlayerDied) Kind() Kind        { return KindPlayerDied }
func (ScoreUpdate) Kind() Kind       { return KindScoreUpdate }
func (LevelAdvance) Kind() Kind      { return KindLevelAdvance }
func (GameStarted) Kind() Kind       { return KindGameStarted }
func (GamePaused) Kind() Kind        { return KindGamePaused }
func (GameResumed) Kind() Kind       { return KindGameResumed }
func (GameEnded) Kind() Kind         { return KindGameEnded }
func (Chat) Kind() Kind              { return KindChat }
func (Heartbeat) Kind() Kind         { return KindHeartbeat }
func (ErrorReport) Kind() Kind       { return KindError }
func (JoinRequest) Kind() Kind       { return KindJoinRequest }
func (JoinAccepted) Kind() Kind      { return KindJoinAccepted }
func (JoinRejected) Kind() Kind      { return KindJoinRejected }
func (Roster) Kind() Kind            { return KindRoster }
func (Ready) Kind() Kind             { return KindReady }
func (Respawn) Kind() Kind           { return KindRespawn }
func (MapScroll) Kind() Kind         { return KindMapScroll }
func (StateSync) Kind() Kind         { return KindStateSync }
func (Ack) Kind() Kind               { return KindAck }
func (Leave) Kind() Kind             { return KindLeave }
func (Intent) Kind() Kind            { return KindIntent }
func (FinishReached) Kind() Kind     { return KindFinish }

func (Movement) isPayload()          {}
func (CheckpointReached) isPayload() {}
func (PowerUpCollected) isPayload()  {}
func (PlayerDied) isPayload()        {}
func (ScoreUpdate) isPayload()       {}
func (LevelAdvance) isPayload()      {}
func (GameStarted) isPayload()       {}
func (GamePaused) isPayload()        {}
func (GameResumed) isPayload()       {}
func (GameEnded) isPayload()         {}
func (Chat) isPayload()              {}
func (Heartbeat) isPayload()         {}
func (ErrorReport) isPayload()       {}
func (JoinRequest) isPayload()       {}
func (JoinAccepted) isPayload()      {}
func (JoinRejected) isPayload()      {}
func (Roster) isPayload()            {}
func (Ready) isPayload()             {}
func (Respawn) isPayload()           {}
func (MapScroll) isPayload()         {}
func (StateSync) isPayload()         {}
func (Ack) isPayload()               {}
func (Leave) isPayload()             {}
func (Intent) isPayload()            {}
func (FinishReached) isPayload()     {}
