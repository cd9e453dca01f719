// Package storage persists settings and high scores. The engine only needs a
// value to be readable after the next Get; nothing here is synchronous with
// gameplay.
package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Setting keys.
const (
	KeyPlayerName = "player_name"
	KeyPlayerID   = "player_id"
	KeyWireCodec  = "wire_codec"
)

type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// HighScore is one finished game of one team.
type HighScore struct {
	Code      string
	Players   string // comma separated display names
	Score     int
	Level     int
	Victory   bool
	CreatedAt time.Time
}

type ScoreBook interface {
	RecordScore(h HighScore) error
	TopScores(limit int) ([]HighScore, error)
}

// Store is what the engine persists into.
type Store interface {
	KV
	ScoreBook
}
