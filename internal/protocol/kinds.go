package protocol

import "time"

// Kind names the payload carried by a Message.
type Kind string

const (
	KindPlayerMovement    Kind = "player_movement"
	KindCheckpointReached Kind = "checkpoint_reached"
	KindPowerUpCollected  Kind = "powerup_collected"
	KindPlayerDied        Kind = "player_died"
	KindScoreUpdate       Kind = "score_update"
	KindLevelAdvance      Kind = "level_advance"
	KindGameStarted       Kind = "game_started"
	KindGamePaused        Kind = "game_paused"
	KindGameResumed       Kind = "game_resumed"
	KindGameEnded         Kind = "game_ended"
	KindChat              Kind = "chat"
	KindHeartbeat         Kind = "heartbeat"
	KindError             Kind = "error"

	// Session control.
	KindJoinRequest  Kind = "join_request"
	KindJoinAccepted Kind = "join_accepted"
	KindJoinRejected Kind = "join_rejected"
	KindRoster       Kind = "roster"
	KindReady        Kind = "ready"
	KindRespawn      Kind = "respawn"
	KindMapScroll    Kind = "map_scroll"
	KindStateSync    Kind = "state_sync"
	KindAck          Kind = "ack"
	KindLeave        Kind = "leave"
	KindIntent       Kind = "intent"
	KindFinish       Kind = "finish_reached"
)

// Kinds lists every kind the protocol understands.
var Kinds = []Kind{
	KindPlayerMovement, KindCheckpointReached, KindPowerUpCollected, KindPlayerDied,
	KindScoreUpdate, KindLevelAdvance, KindGameStarted, KindGamePaused, KindGameResumed,
	KindGameEnded, KindChat, KindHeartbeat, KindError, KindJoinRequest, KindJoinAccepted,
	KindJoinRejected, KindRoster, KindReady, KindRespawn, KindMapScroll, KindStateSync,
	KindAck, KindLeave, KindIntent, KindFinish,
}

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "unknown"
}

// Policy is the default delivery treatment of a kind.
type Policy struct {
	Priority    Priority
	Reliable    bool
	RequiresAck bool
	TTL         time.Duration // zero means the message does not expire
}

var (
	lossy       = Policy{Priority: PriorityLow, Reliable: false, TTL: 2 * time.Second}
	chatty      = Policy{Priority: PriorityNormal, Reliable: true}
	important   = Policy{Priority: PriorityHigh, Reliable: true, RequiresAck: true}
	lifecycle   = Policy{Priority: PriorityCritical, Reliable: true, RequiresAck: true}
	transient   = Policy{Priority: PriorityLow, Reliable: false, TTL: 3 * time.Second}
	bookkeeping = Policy{Priority: PriorityNormal, Reliable: true}
)

var policies = map[Kind]Policy{
	KindPlayerMovement:    lossy,
	KindHeartbeat:         transient,
	KindChat:              chatty,
	KindAck:               bookkeeping,
	KindCheckpointReached: important,
	KindPowerUpCollected:  important,
	KindPlayerDied:        important,
	KindScoreUpdate:       important,
	KindLevelAdvance:      lifecycle,
	KindRespawn:           important,
	KindMapScroll:         important,
	KindGameStarted:       lifecycle,
	KindGamePaused:        lifecycle,
	KindGameResumed:       lifecycle,
	KindGameEnded:         lifecycle,
	KindError:             lifecycle,
	KindJoinRequest:       important,
	KindJoinAccepted:      lifecycle,
	KindJoinRejected:      lifecycle,
	KindRoster:            important,
	KindReady:             important,
	KindStateSync:         important,
	KindLeave:             important,
	KindIntent:            important,
	KindFinish:            important,
}

// PolicyFor returns the delivery policy for k. Unknown kinds get a reliable,
// normal-priority policy.
func PolicyFor(k Kind) Policy {
	if p, ok := policies[k]; ok {
		return p
	}
	return bookkeeping
}

// Known reports whether k is a kind this protocol version defines.
func Known(k Kind) bool {
	_, ok := policies[k]
	return ok
}
