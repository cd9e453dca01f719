package storage

import (
	"sort"
	"sync"
	"time"
)

// Memory keeps everything in process. It is the default when no database is
// configured.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
	scores []HighScore
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) RecordScore(h HighScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	m.scores = append(m.scores, h)
	return nil
}

// TopScores orders by score, then level, then the earlier game first.
func (m *Memory) TopScores(limit int) ([]HighScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([]HighScore(nil), m.scores...)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		if list[i].Level != list[j].Level {
			return list[i].Level > list[j].Level
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}
