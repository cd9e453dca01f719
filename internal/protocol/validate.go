package protocol

import (
	"errors"
	"fmt"
	"time"

	"mazeparty/internal/geom"
)

var ErrInvalid = errors.New("invalid message")

// Limits bounds what Validate accepts.
type Limits struct {
	MaxMagnitude float64       // largest accepted |component| of a position or velocity
	MaxSkew      time.Duration // largest accepted distance between a timestamp and now
	MaxText      int           // longest chat or error text
}

func DefaultLimits() Limits {
	return Limits{
		MaxMagnitude: 1e6,
		MaxSkew:      5 * time.Second,
		MaxText:      500,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks structural rules. A message that fails must be dropped
// whole.
func Validate(m Message, now time.Time, lim Limits) error {
	if m.ID == "" {
		return invalid("missing message id")
	}
	if m.From == "" {
		return invalid("missing origin peer")
	}
	if m.SessionID == "" {
		return invalid("missing session id")
	}
	if m.Version != Version {
		return invalid("version %d, want %d", m.Version, Version)
	}
	if !Known(m.Kind) {
		return invalid("unknown kind %q", m.Kind)
	}
	if m.Priority < PriorityLow || m.Priority > PriorityCritical {
		return invalid("priority %d out of range", m.Priority)
	}
	if m.Payload == nil {
		return invalid("%s without payload", m.Kind)
	}
	if m.Payload.Kind() != m.Kind {
		return invalid("payload %s in %s envelope", m.Payload.Kind(), m.Kind)
	}
	skew := now.Sub(m.Timestamp)
	if skew < 0 {
		skew = -skew
	}
	if skew > lim.MaxSkew {
		return invalid("timestamp %s is %s away from now", m.Timestamp.Format(time.RFC3339), skew)
	}
	if !m.ExpiresAt.IsZero() && m.ExpiresAt.Before(m.Timestamp) {
		return invalid("expires before it was sent")
	}
	return validatePayload(m.Payload, lim)
}

func checkVec(name string, v geom.Vec, lim Limits) error {
	if !v.Finite() {
		return invalid("%s is not finite", name)
	}
	if !v.Within(lim.MaxMagnitude) {
		return invalid("%s exceeds %g", name, lim.MaxMagnitude)
	}
	return nil
}

func require(field, value string) error {
	if value == "" {
		return invalid("missing %s", field)
	}
	return nil
}

func validatePayload(p Payload, lim Limits) error {
	switch v := p.(type) {
	case Movement:
		if err := require("playerId", v.PlayerID); err != nil {
			return err
		}
		if err := checkVec("position", v.Position, lim); err != nil {
			return err
		}
		return checkVec("velocity", v.Velocity, lim)
	case CheckpointReached:
		if err := require("playerId", v.PlayerID); err != nil {
			return err
		}
		if err := require("checkpointId", v.CheckpointID); err != nil {
			return err
		}
		return checkVec("position", v.Position, lim)
	case PowerUpCollected:
		if err := require("playerId", v.PlayerID); err != nil {
			return err
		}
		if err := require("powerUpId", v.PowerUpID); err != nil {
			return err
		}
		if err := require("effect", v.Effect); err != nil {
			return err
		}
		if v.DurationMs < 0 {
			return invalid("negative power-up duration")
		}
		if v.Confirmed && (v.Multiplier <= 0 || v.DurationMs == 0) {
			return invalid("confirmed power-up without effect")
		}
		return nil
	case PlayerDied:
		if err := require("playerId", v.PlayerID); err != nil {
			return err
		}
		if err := require("cause", v.Cause); err != nil {
			return err
		}
		if v.TeamLives < 0 {
			return invalid("negative team lives")
		}
		return checkVec("position", v.Position, lim)
	case ScoreUpdate:
		return require("playerId", v.PlayerID)
	case LevelAdvance:
		if v.Level < 1 {
			return invalid("level %d", v.Level)
		}
		return checkVec("spawn", v.Spawn, lim)
	case GameStarted:
		if v.Level < 1 {
			return invalid("level %d", v.Level)
		}
		if v.TeamLives < 1 {
			return invalid("game started without lives")
		}
		if len(v.Roles) == 0 {
			return invalid("game started without role assignment")
		}
		for _, r := range v.Roles {
			if r.PlayerID == "" || r.Role == "" {
				return invalid("incomplete role assignment")
			}
		}
		return checkVec("spawn", v.Spawn, lim)
	case GamePaused, GameResumed:
		return nil
	case GameEnded:
		return require("reason", v.Reason)
	case Chat:
		if err := require("text", v.Text); err != nil {
			return err
		}
		if len(v.Text) > lim.MaxText {
			return invalid("chat longer than %d bytes", lim.MaxText)
		}
		return nil
	case Heartbeat:
		return nil
	case ErrorReport:
		if err := require("code", v.Code); err != nil {
			return err
		}
		if len(v.Text) > lim.MaxText {
			return invalid("error text longer than %d bytes", lim.MaxText)
		}
		return nil
	case JoinRequest:
		if err := require("code", v.Code); err != nil {
			return err
		}
		if err := require("playerId", v.PlayerID); err != nil {
			return err
		}
		return require("name", v.Name)
	case JoinAccepted:
		if err := require("playerId", v.PlayerID); err != nil {
			return err
		}
		if err := require("hostId", v.HostID); err != nil {
			return err
		}
		return checkPeers(v.Roster)
	case JoinRejected:
		return require("code", v.Code)
	case Roster:
		return checkPeers(v.Peers)
	case Ready:
		return nil
	case Respawn:
		if v.DelayMs < 0 {
			return invalid("negative respawn delay")
		}
		return checkVec("position", v.Position, lim)
	case MapScroll:
		if err := require("playerId", v.PlayerID); err != nil {
			return err
		}
		if err := require("edge", v.Edge); err != nil {
			return err
		}
		return checkVec("offset", v.Offset, lim)
	case StateSync:
		if v.Snapshot.Level < 1 {
			return invalid("snapshot level %d", v.Snapshot.Level)
		}
		if err := require("phase", v.Snapshot.Phase); err != nil {
			return err
		}
		if err := checkVec("lastCheckpoint", v.Snapshot.LastCheckpoint, lim); err != nil {
			return err
		}
		return checkVec("scrollOffset", v.Snapshot.ScrollOffset, lim)
	case Ack:
		return require("messageId", v.MessageID)
	case Leave:
		return nil
	case Intent:
		switch v.Action {
		case ActionPause, ActionResume, ActionRestart:
			return nil
		}
		return invalid("unknown intent %q", v.Action)
	case FinishReached:
		return require("playerId", v.PlayerID)
	}
	return invalid("unsupported payload %T", p)
}

func checkPeers(peers []PeerInfo) error {
	if len(peers) == 0 {
		return invalid("empty roster")
	}
	for _, p := range peers {
		if p.ID == "" {
			return invalid("roster entry without id")
		}
	}
	return nil
}
