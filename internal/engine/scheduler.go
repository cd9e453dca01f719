package engine

import "time"

// timerScheduler runs callbacks on the engine goroutine after a delay.
// Cancelling after the timer fired but before the callback ran still
// suppresses it.
type timerScheduler struct {
	post func(func())
}

func (s timerScheduler) After(d time.Duration, fn func()) func() {
	stopped := false
	t := time.AfterFunc(d, func() {
		s.post(func() {
			if !stopped {
				fn()
			}
		})
	})
	return func() {
		stopped = true
		t.Stop()
	}
}
