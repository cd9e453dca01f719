package gamelogic

import (
	"time"

	"mazeparty/internal/gamestate"
	"mazeparty/internal/protocol"
)

func ToWire(s gamestate.Snapshot) protocol.Snapshot {
	return protocol.Snapshot{
		Level:          s.Level,
		TeamScore:      s.TeamScore,
		TeamLives:      s.TeamLives,
		Checkpoints:    append([]string(nil), s.Checkpoints...),
		LastCheckpoint: s.LastCheckpoint,
		Phase:          string(s.Phase),
		ElapsedMs:      s.Elapsed.Milliseconds(),
		ScrollOffset:   s.ScrollOffset,
	}
}

func FromWire(s protocol.Snapshot) gamestate.Snapshot {
	return gamestate.Snapshot{
		Level:          s.Level,
		TeamScore:      s.TeamScore,
		TeamLives:      s.TeamLives,
		Checkpoints:    append([]string(nil), s.Checkpoints...),
		LastCheckpoint: s.LastCheckpoint,
		Phase:          gamestate.Phase(s.Phase),
		Elapsed:        time.Duration(s.ElapsedMs) * time.Millisecond,
		ScrollOffset:   s.ScrollOffset,
	}
}
