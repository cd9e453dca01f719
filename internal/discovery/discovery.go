// Package discovery announces hosted sessions on the LAN with UDP multicast
// and finds them again on the joining side.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"mazeparty/internal/logger"
	"mazeparty/internal/transport"
)

const (
	DefaultGroup    = "239.192.0.4:9192"
	DefaultInterval = time.Second

	readTimeout = 100 * time.Millisecond
	maxDatagram = 2048
)

var ErrMalformed = errors.New("malformed announcement")

// Announcement is the datagram a host sends every interval.
type Announcement struct {
	Ad     transport.Advertisement `json:"ad"`
	SentAt int64                   `json:"sentAt"`
}

func Marshal(ad transport.Advertisement, now time.Time) ([]byte, error) {
	return json.Marshal(Announcement{Ad: ad, SentAt: now.UnixMilli()})
}

func Parse(b []byte) (transport.Advertisement, error) {
	var a Announcement
	if err := json.Unmarshal(b, &a); err != nil {
		return transport.Advertisement{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if a.Ad.ServiceID == "" || a.Ad.Code == "" || a.Ad.HostID == "" {
		return transport.Advertisement{}, fmt.Errorf("%w: missing service, code or host", ErrMalformed)
	}
	return a.Ad, nil
}

// Advertiser repeats one advertisement on the multicast group until stopped.
type Advertiser struct {
	group    *net.UDPAddr
	conn     *net.UDPConn
	interval time.Duration

	mu      sync.Mutex
	ad      transport.Advertisement
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewAdvertiser(group string, interval time.Duration) (*Advertiser, error) {
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, fmt.Errorf("resolving multicast group: %w", err)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("opening announce socket: %w", err)
	}
	p4 := ipv4.NewPacketConn(conn)
	if err := p4.SetMulticastTTL(1); err != nil {
		logger.Info("[Discovery] Cannot set multicast TTL: %v", err)
	}
	if err := p4.SetMulticastLoopback(true); err != nil {
		logger.Info("[Discovery] Cannot enable multicast loopback: %v", err)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Advertiser{group: addr, conn: conn, interval: interval}, nil
}

// Start announces ad immediately and then every interval. Calling Start
// again replaces the advertisement.
func (a *Advertiser) Start(ad transport.Advertisement) {
	a.mu.Lock()
	a.ad = ad
	running := a.cancel != nil
	if !running {
		ctx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.stopped = make(chan struct{})
		go a.loop(ctx, a.stopped)
	}
	a.mu.Unlock()
	a.announce()
}

func (a *Advertiser) current() transport.Advertisement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ad
}

func (a *Advertiser) announce() {
	data, err := Marshal(a.current(), time.Now())
	if err != nil {
		logger.Error("[Discovery] Marshal error: %v", err)
		return
	}
	if _, err := a.conn.WriteToUDP(data, a.group); err != nil {
		logger.Debug("[Discovery] Send error: %v", err)
	}
}

func (a *Advertiser) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.announce()
		}
	}
}

// Stop ends the announcements. Start may be called again afterwards.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	cancel, stopped := a.cancel, a.stopped
	a.cancel, a.stopped = nil, nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		<-stopped
	}
}

func (a *Advertiser) Close() error {
	a.Stop()
	return a.conn.Close()
}

// Browser listens on the multicast group and reports advertisements of one
// service. Each host is reported once, and again whenever its advertisement
// changes.
type Browser struct {
	conn      *net.UDPConn
	serviceID string

	mu   sync.Mutex
	seen map[string]transport.Advertisement
}

func NewBrowser(group, serviceID string) (*Browser, error) {
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, fmt.Errorf("resolving multicast group: %w", err)
	}
	conn, err := listenGroup(addr)
	if err != nil {
		return nil, err
	}
	if err := conn.SetReadBuffer(65536); err != nil {
		logger.Info("[Discovery] Cannot set read buffer: %v", err)
	}
	return &Browser{conn: conn, serviceID: serviceID, seen: make(map[string]transport.Advertisement)}, nil
}

// listenGroup joins the group on the first usable multicast interface,
// falling back to the system default.
func listenGroup(addr *net.UDPAddr) (*net.UDPConn, error) {
	ifaces, _ := net.Interfaces()
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		conn, err := net.ListenMulticastUDP("udp4", &iface, addr)
		if err == nil {
			logger.Debug("[Discovery] Listening on interface %s", iface.Name)
			return conn, nil
		}
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("joining multicast group: %w", err)
	}
	return conn, nil
}

// Run reads announcements until ctx is done. found is called from Run's
// goroutine.
func (b *Browser) Run(ctx context.Context, found func(transport.Advertisement)) {
	buf := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			return
		}
		b.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, src, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Debug("[Discovery] Read error: %v", err)
			continue
		}
		if ad, ok := b.handle(buf[:n], src); ok {
			found(ad)
		}
	}
}

// handle parses one datagram and reports whether it is news.
func (b *Browser) handle(data []byte, src *net.UDPAddr) (transport.Advertisement, bool) {
	ad, err := Parse(data)
	if err != nil {
		logger.Debug("[Discovery] Dropping datagram from %v: %v", src, err)
		return transport.Advertisement{}, false
	}
	if ad.ServiceID != b.serviceID {
		return transport.Advertisement{}, false
	}
	ad.Addr = resolveAddr(ad.Addr, src)

	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.seen[ad.HostID]; ok && prev == ad {
		return transport.Advertisement{}, false
	}
	b.seen[ad.HostID] = ad
	return ad, true
}

func (b *Browser) Close() error {
	return b.conn.Close()
}

// resolveAddr fills an unspecified host in addr with the sender's IP, so a
// host can advertise ":7777" without knowing its LAN address.
func resolveAddr(addr string, src *net.UDPAddr) string {
	if addr == "" || src == nil {
		return addr
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if ip := net.ParseIP(host); host != "" && (ip == nil || !ip.IsUnspecified()) {
		return addr
	}
	return net.JoinHostPort(src.IP.String(), port)
}
