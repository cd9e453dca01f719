// Package memnet is an in-process Transport for tests and local play. Every
// callback runs in order on one dispatcher: the caller of Flush in manual
// mode, or a background goroutine in auto mode.
package memnet

import (
	"math/rand/v2"
	"sync"

	"mazeparty/internal/transport"
)

type Option func(*Network)

// Auto delivers on a background goroutine instead of waiting for Flush.
func Auto() Option {
	return func(n *Network) { n.auto = true }
}

// Lossy drops unreliable sends with probability rate.
func Lossy(rate float64, seed uint64) Option {
	return func(n *Network) {
		n.lossRate = rate
		n.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

type link struct{ a, b string }

func pair(a, b string) link {
	if a > b {
		a, b = b, a
	}
	return link{a, b}
}

type Network struct {
	mu       sync.Mutex
	nodes    map[string]*Node
	ads      map[string]transport.Advertisement
	browsers map[int]browser
	nextID   int
	links    map[link]bool
	cut      map[string]bool
	queue    []func()
	auto     bool
	lossRate float64
	rng      *rand.Rand
	dropped  int
	wake     chan struct{}
	closed   bool

	dispatch sync.Mutex
}

type browser struct {
	owner     string
	serviceID string
	found     func(transport.Advertisement)
}

func NewNetwork(opts ...Option) *Network {
	n := &Network{
		nodes:    make(map[string]*Node),
		ads:      make(map[string]transport.Advertisement),
		browsers: make(map[int]browser),
		links:    make(map[link]bool),
		cut:      make(map[string]bool),
		wake:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(n)
	}
	if n.auto {
		go n.run()
	}
	return n
}

// Node returns the endpoint for id, creating it on first use.
func (n *Network) Node(id string) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	if nd, ok := n.nodes[id]; ok {
		return nd
	}
	nd := &Node{net: n, id: id}
	n.nodes[id] = nd
	return nd
}

func (n *Network) enqueue(fn func()) {
	n.queue = append(n.queue, fn)
	if n.closed {
		return
	}
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *Network) next() (func(), bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return nil, false
	}
	fn := n.queue[0]
	n.queue = n.queue[1:]
	return fn, true
}

// Flush runs queued callbacks, including ones they enqueue, until the
// network is idle. It returns how many ran.
func (n *Network) Flush() int {
	n.dispatch.Lock()
	defer n.dispatch.Unlock()
	count := 0
	for {
		fn, ok := n.next()
		if !ok {
			return count
		}
		fn()
		count++
	}
}

// Pending reports queued callbacks.
func (n *Network) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

func (n *Network) run() {
	for range n.wake {
		n.Flush()
		n.mu.Lock()
		closed := n.closed
		n.mu.Unlock()
		if closed {
			return
		}
	}
}

// Shutdown stops the auto dispatcher.
func (n *Network) Shutdown() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.wake)
}

// Dropped counts unreliable sends lost to the loss rate.
func (n *Network) Dropped() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropped
}

// Partition cuts every link of id, as if it walked out of range. In-flight
// messages to or from it are lost.
func (n *Network) Partition(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cut[id] = true
	for l := range n.links {
		if l.a == id || l.b == id {
			n.unlinkLocked(l)
		}
	}
}

// Heal lets id connect again. Links are not restored automatically.
func (n *Network) Heal(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.cut, id)
}

func (n *Network) linked(a, b string) bool {
	return n.links[pair(a, b)]
}

func (n *Network) unlinkLocked(l link) {
	if !n.links[l] {
		return
	}
	delete(n.links, l)
	n.notifyLocked(l.a, l.b, transport.PeerDisconnected)
	n.notifyLocked(l.b, l.a, transport.PeerDisconnected)
}

func (n *Network) notifyLocked(to, peer string, state transport.PeerState) {
	nd, ok := n.nodes[to]
	if !ok {
		return
	}
	n.enqueue(func() {
		if h := nd.handler(); h != nil {
			h.OnPeerStateChanged(peer, state)
		}
	})
}
