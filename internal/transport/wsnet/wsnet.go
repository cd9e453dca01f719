// Package wsnet is the LAN transport: the host serves websockets, members
// dial in, and sessions are found through multicast discovery. The topology
// is a star around the host.
package wsnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mazeparty/internal/discovery"
	"mazeparty/internal/logger"
	"mazeparty/internal/transport"
)

type Options struct {
	ID           string // peer id; a fresh uuid when empty
	ListenAddr   string // where a host serves, ":7777" by default
	Group        string // multicast group for discovery
	QueueSize    int
	WriteTimeout time.Duration
	DialTimeout  time.Duration
	Binary       bool                // send binary frames (msgpack codec)
	Gatherer     prometheus.Gatherer // served on /metrics when set
}

func (o *Options) defaults() {
	if o.ListenAddr == "" {
		o.ListenAddr = ":7777"
	}
	if o.Group == "" {
		o.Group = discovery.DefaultGroup
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 2 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
}

type Transport struct {
	id   string
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	h      transport.Handler
	peers  map[string]*Client
	srv    *http.Server
	addr   string
	adv    *discovery.Advertiser
	closed bool
	wg     sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

func New(opts Options) *Transport {
	opts.defaults()
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		id:     id,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[string]*Client),
	}
}

func (t *Transport) LocalID() string { return t.id }

func (t *Transport) SetHandler(h transport.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.h = h
}

func (t *Transport) handler() transport.Handler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.h
}

func (t *Transport) notify(peer string, state transport.PeerState) {
	if h := t.handler(); h != nil {
		h.OnPeerStateChanged(peer, state)
	}
}

func (t *Transport) msgType() websocket.MessageType {
	if t.opts.Binary {
		return websocket.MessageBinary
	}
	return websocket.MessageText
}

// Listen starts the host server. It is idempotent.
func (t *Transport) Listen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}
	if t.srv != nil {
		return nil
	}
	ln, err := net.Listen("tcp", t.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", t.opts.ListenAddr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", t.handleWS)
	mux.HandleFunc("/health", handleHealth)
	if t.opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(t.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	t.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	t.addr = ln.Addr().String()

	srv := t.srv
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("[WSNet] Server stopped: %v", err)
		}
	}()
	logger.Info("[WSNet] Listening on %s", t.addr)
	return nil
}

// Addr is the address the host server listens on, empty before Listen.
func (t *Transport) Addr() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.addr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (t *Transport) handleWS(w http.ResponseWriter, r *http.Request) {
	peer := r.URL.Query().Get("peer")
	if peer == "" {
		http.Error(w, "peer id required", http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Info("[WSNet] Accept from %s failed: %v", peer, err)
		return
	}
	t.serve(peer, conn)
}

// serve runs one link until it drops.
func (t *Transport) serve(peer string, conn *websocket.Conn) {
	c := newClient(peer, conn, t.opts.QueueSize, t.msgType())
	t.register(c)
	t.notify(peer, transport.PeerConnected)

	go c.WritePump(t.ctx, t.opts.WriteTimeout)
	t.readLoop(c)

	if t.unregister(c) {
		t.notify(peer, transport.PeerDisconnected)
	}
}

func (t *Transport) readLoop(c *Client) {
	c.Conn.SetReadLimit(1 << 20)
	for {
		_, data, err := c.Conn.Read(t.ctx)
		if err != nil {
			logger.Debug("[WSNet] Read from %s ended: %v", c.PeerID, err)
			return
		}
		if h := t.handler(); h != nil {
			h.OnReceive(data, c.PeerID)
		}
	}
}

func (t *Transport) register(c *Client) {
	t.mu.Lock()
	old := t.peers[c.PeerID]
	t.peers[c.PeerID] = c
	t.mu.Unlock()
	if old != nil {
		close(old.done)
		old.Conn.CloseNow()
	}
}

// unregister removes c if it is still the current link of its peer.
func (t *Transport) unregister(c *Client) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.peers[c.PeerID] != c {
		return false
	}
	delete(t.peers, c.PeerID)
	close(c.done)
	c.Conn.CloseNow()
	return true
}

func (t *Transport) Advertise(ad transport.Advertisement) error {
	if err := t.Listen(); err != nil {
		return err
	}
	ad.HostID = t.id
	if ad.ServiceID == "" {
		ad.ServiceID = transport.ServiceID
	}
	ad.Addr = advertisedAddr(t.Addr())

	t.mu.Lock()
	if t.adv == nil {
		adv, err := discovery.NewAdvertiser(t.opts.Group, discovery.DefaultInterval)
		if err != nil {
			t.mu.Unlock()
			logger.Error("[WSNet] Discovery unavailable, members must dial %s directly: %v", ad.Addr, err)
			return nil
		}
		t.adv = adv
	}
	adv := t.adv
	t.mu.Unlock()
	adv.Start(ad)
	return nil
}

// advertisedAddr drops an unspecified listen host so browsers substitute the
// sender address.
func advertisedAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		return ":" + port
	}
	return addr
}

func (t *Transport) StopAdvertising() {
	t.mu.RLock()
	adv := t.adv
	t.mu.RUnlock()
	if adv != nil {
		adv.Stop()
	}
}

func (t *Transport) Browse(serviceID string, found func(transport.Advertisement)) (func(), error) {
	b, err := discovery.NewBrowser(t.opts.Group, serviceID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(t.ctx)
	go b.Run(ctx, func(ad transport.Advertisement) {
		if ad.HostID != t.id {
			found(ad)
		}
	})
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			b.Close()
		})
	}, nil
}

// Connect dials the host in the background. The result arrives as peer state
// callbacks.
func (t *Transport) Connect(ad transport.Advertisement) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return transport.ErrClosed
	}
	if ad.HostID == "" || ad.Addr == "" {
		return fmt.Errorf("connecting: advertisement without host or address")
	}
	u := url.URL{Scheme: "ws", Host: ad.Addr, Path: "/ws", RawQuery: url.Values{"peer": {t.id}}.Encode()}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.notify(ad.HostID, transport.PeerConnecting)
		ctx, cancel := context.WithTimeout(t.ctx, t.opts.DialTimeout)
		conn, _, err := websocket.Dial(ctx, u.String(), nil)
		cancel()
		if err != nil {
			logger.Info("[WSNet] Dial %s failed: %v", ad.Addr, err)
			t.notify(ad.HostID, transport.PeerDisconnected)
			return
		}
		t.serve(ad.HostID, conn)
	}()
	return nil
}

func (t *Transport) client(peer string) *Client {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.peers[peer]
}

func (t *Transport) Send(peer string, data []byte, reliable bool) error {
	c := t.client(peer)
	if c == nil {
		return transport.ErrUnknownPeer
	}
	if !c.enqueue(data) && reliable {
		return transport.ErrQueueFull
	}
	return nil
}

func (t *Transport) Broadcast(data []byte, reliable bool) error {
	var firstErr error
	for _, p := range t.Peers() {
		if err := t.Send(p, data, reliable); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sending to %s: %w", p, err)
		}
	}
	return firstErr
}

// Peers lists connected peer ids.
func (t *Transport) Peers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Transport) Disconnect(peer string) {
	if c := t.client(peer); c != nil {
		go c.Conn.Close(websocket.StatusNormalClosure, "disconnect")
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	srv, adv := t.srv, t.adv
	clients := make([]*Client, 0, len(t.peers))
	for _, c := range t.peers {
		clients = append(clients, c)
	}
	t.mu.Unlock()

	if adv != nil {
		adv.Close()
	}
	for _, c := range clients {
		c.Conn.Close(websocket.StatusGoingAway, "closing")
	}
	t.cancel()
	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = srv.Shutdown(ctx)
		cancel()
	}
	t.wg.Wait()
	return err
}
