package engine

import (
	"mazeparty/internal/logger"
	"mazeparty/internal/storage"
)

// scoreWriter persists finished games off the engine goroutine until queue
// is closed.
func scoreWriter(book storage.ScoreBook, queue <-chan storage.HighScore) {
	for h := range queue {
		if err := book.RecordScore(h); err != nil {
			logger.Error("[DB] RecordScore error: %v", err)
			continue
		}
		logger.Info("[DB] Recorded score %d for %s", h.Score, h.Code)
	}
}
