package memnet

import (
	"sort"
	"sync"

	"mazeparty/internal/transport"
)

// Node is one peer's view of a Network.
type Node struct {
	net *Network
	id  string

	mu sync.Mutex
	h  transport.Handler
}

var _ transport.Transport = (*Node)(nil)

func (nd *Node) LocalID() string { return nd.id }

func (nd *Node) SetHandler(h transport.Handler) {
	nd.mu.Lock()
	defer nd.mu.Unlock()
	nd.h = h
}

func (nd *Node) handler() transport.Handler {
	nd.mu.Lock()
	defer nd.mu.Unlock()
	return nd.h
}

func (nd *Node) Advertise(ad transport.Advertisement) error {
	n := nd.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.nodes[nd.id]; !ok {
		return transport.ErrClosed
	}
	ad.HostID = nd.id
	if ad.ServiceID == "" {
		ad.ServiceID = transport.ServiceID
	}
	n.ads[nd.id] = ad
	for _, b := range n.browsers {
		if b.serviceID == ad.ServiceID && b.owner != nd.id {
			found := b.found
			n.enqueue(func() { found(ad) })
		}
	}
	return nil
}

func (nd *Node) StopAdvertising() {
	n := nd.net
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.ads, nd.id)
}

// Browse reports current and future advertisements of serviceID.
func (nd *Node) Browse(serviceID string, found func(transport.Advertisement)) (func(), error) {
	n := nd.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.nodes[nd.id]; !ok {
		return nil, transport.ErrClosed
	}
	id := n.nextID
	n.nextID++
	n.browsers[id] = browser{owner: nd.id, serviceID: serviceID, found: found}

	hosts := make([]string, 0, len(n.ads))
	for h := range n.ads {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	for _, h := range hosts {
		ad := n.ads[h]
		if ad.ServiceID == serviceID && h != nd.id {
			n.enqueue(func() { found(ad) })
		}
	}
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.browsers, id)
	}, nil
}

// Connect links to the advertising host. The outcome arrives as peer state
// callbacks on both ends.
func (nd *Node) Connect(ad transport.Advertisement) error {
	n := nd.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.nodes[nd.id]; !ok {
		return transport.ErrClosed
	}
	target := ad.HostID
	n.notifyLocked(nd.id, target, transport.PeerConnecting)
	_, exists := n.nodes[target]
	if !exists || n.cut[nd.id] || n.cut[target] || target == nd.id {
		n.notifyLocked(nd.id, target, transport.PeerDisconnected)
		return nil
	}
	l := pair(nd.id, target)
	if !n.links[l] {
		n.links[l] = true
		n.notifyLocked(target, nd.id, transport.PeerConnected)
	}
	n.notifyLocked(nd.id, target, transport.PeerConnected)
	return nil
}

func (nd *Node) Send(peer string, data []byte, reliable bool) error {
	n := nd.net
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sendLocked(nd.id, peer, data, reliable)
}

func (n *Network) sendLocked(from, to string, data []byte, reliable bool) error {
	if !n.linked(from, to) {
		return transport.ErrUnknownPeer
	}
	if !reliable && n.rng != nil && n.rng.Float64() < n.lossRate {
		n.dropped++
		return nil
	}
	dst := n.nodes[to]
	buf := append([]byte(nil), data...)
	n.enqueue(func() {
		n.mu.Lock()
		up := n.linked(from, to)
		n.mu.Unlock()
		if !up {
			return
		}
		if h := dst.handler(); h != nil {
			h.OnReceive(buf, from)
		}
	})
	return nil
}

func (nd *Node) Broadcast(data []byte, reliable bool) error {
	n := nd.net
	n.mu.Lock()
	defer n.mu.Unlock()
	peers := make([]string, 0)
	for l := range n.links {
		switch nd.id {
		case l.a:
			peers = append(peers, l.b)
		case l.b:
			peers = append(peers, l.a)
		}
	}
	sort.Strings(peers)
	for _, p := range peers {
		if err := n.sendLocked(nd.id, p, data, reliable); err != nil {
			return err
		}
	}
	return nil
}

// Peers lists the ids nd is linked to.
func (nd *Node) Peers() []string {
	n := nd.net
	n.mu.Lock()
	defer n.mu.Unlock()
	var peers []string
	for l := range n.links {
		switch nd.id {
		case l.a:
			peers = append(peers, l.b)
		case l.b:
			peers = append(peers, l.a)
		}
	}
	sort.Strings(peers)
	return peers
}

func (nd *Node) Disconnect(peer string) {
	n := nd.net
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unlinkLocked(pair(nd.id, peer))
}

// Close removes the node; its links drop and its advertisement disappears.
func (nd *Node) Close() error {
	n := nd.net
	n.mu.Lock()
	defer n.mu.Unlock()
	for l := range n.links {
		if l.a == nd.id || l.b == nd.id {
			n.unlinkLocked(l)
		}
	}
	delete(n.ads, nd.id)
	for id, b := range n.browsers {
		if b.owner == nd.id {
			delete(n.browsers, id)
		}
	}
	delete(n.nodes, nd.id)
	return nil
}
