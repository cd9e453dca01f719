package gamecode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

const DefaultTTL = 10 * time.Minute

const maxAttempts = 10

var ErrInUse = errors.New("game code already in use")

// Registry tracks the codes of sessions this process hosts. A code counts as
// unused once its TTL has passed, whether or not it has been swept yet.
type Registry struct {
	mu    sync.Mutex
	codes map[string]time.Time
	ttl   time.Duration
	now   func() time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		codes: make(map[string]time.Time),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (r *Registry) TTL() time.Duration {
	return r.ttl
}

func (r *Registry) live(code string, now time.Time) bool {
	created, ok := r.codes[code]
	return ok && now.Before(created.Add(r.ttl))
}

// Generate draws a fresh code, skipping collisions and guessable codes, and
// registers it.
func (r *Registry) Generate() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for range maxAttempts {
		code, err := generate()
		if err != nil {
			return "", fmt.Errorf("generating game code: %w", err)
		}
		now := r.now()
		if r.live(code, now) || Guessable(code) {
			continue
		}
		r.codes[code] = now
		return code, nil
	}
	return "", fmt.Errorf("failed to generate unique game code after %d attempts", maxAttempts)
}

// Register records an externally chosen code.
func (r *Registry) Register(code string) error {
	if !ValidFormat(code) {
		return ErrInvalidCode
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if r.live(code, now) {
		return ErrInUse
	}
	r.codes[code] = now
	return nil
}

func (r *Registry) InUse(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live(code, r.now())
}

func (r *Registry) Release(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, code)
}

// Active lists live codes in sorted order.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	list := make([]string, 0, len(r.codes))
	for code := range r.codes {
		if r.live(code, now) {
			list = append(list, code)
		}
	}
	sort.Strings(list)
	return list
}

// Sweep drops expired codes and returns them.
func (r *Registry) Sweep() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var expired []string
	for code := range r.codes {
		if !r.live(code, now) {
			delete(r.codes, code)
			expired = append(expired, code)
		}
	}
	sort.Strings(expired)
	return expired
}

// Run sweeps every interval until ctx is done. onExpire, when set, is called
// with each batch of expired codes outside the registry lock.
func (r *Registry) Run(ctx context.Context, interval time.Duration, onExpire func([]string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := r.Sweep(); len(expired) > 0 && onExpire != nil {
				onExpire(expired)
			}
		}
	}
}
