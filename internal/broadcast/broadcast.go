package broadcast

import (
	"sync"
	"sync/atomic"

	"mazeparty/internal/events"
)

const subscriberBuffer = 32

type subscription struct {
	topics map[events.Topic]bool // nil means every topic
}

func (s subscription) wants(t events.Topic) bool {
	return s.topics == nil || s.topics[t]
}

// Broadcaster fans bus events out to UI and audio subscribers.
type Broadcaster struct {
	Mu      sync.Mutex
	Clients map[chan events.Event]subscription
	dropped atomic.Uint64
	done    chan struct{}
}

// NewBroadcaster forwards everything published on bus until the bus closes.
func NewBroadcaster(bus *events.Bus) *Broadcaster {
	b := &Broadcaster{
		Clients: make(map[chan events.Event]subscription),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(b.done)
		for ev := range bus.Events {
			b.Publish(ev)
		}
	}()
	return b
}

// Subscribe returns a channel of events on the given topics, or of all
// events when none are named.
func (b *Broadcaster) Subscribe(topics ...events.Topic) chan events.Event {
	ch := make(chan events.Event, subscriberBuffer)
	sub := subscription{}
	if len(topics) > 0 {
		sub.topics = make(map[events.Topic]bool, len(topics))
		for _, t := range topics {
			sub.topics[t] = true
		}
	}
	b.Mu.Lock()
	b.Clients[ch] = sub
	b.Mu.Unlock()
	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan events.Event) {
	b.Mu.Lock()
	_, ok := b.Clients[ch]
	delete(b.Clients, ch)
	b.Mu.Unlock()
	if ok {
		close(ch)
	}
}

func (b *Broadcaster) Publish(ev events.Event) {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	for ch, sub := range b.Clients {
		if !sub.wants(ev.Topic()) {
			continue
		}
		select {
		case ch <- ev:
		default:
			// skip subscribers with full channels
			b.dropped.Add(1)
		}
	}
}

func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Done is closed once the bus has closed and every event was forwarded.
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}
