package session

import (
	"time"

	"mazeparty/internal/protocol"
)

type Config struct {
	MaxPlayers int
	MinPlayers int

	DiscoveryTimeout time.Duration
	ConnectTimeout   time.Duration

	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	MaxReconnectAttempts int

	HeartbeatInterval time.Duration
	PeerTimeout       time.Duration

	RetryInterval time.Duration // resend unacked reliable messages this often
	MaxRetries    int

	HistorySize int
	SeenTTL     time.Duration // how long message ids are remembered for dedupe

	Limits protocol.Limits
	Codec  protocol.Codec
}

func DefaultConfig() Config {
	return Config{
		MaxPlayers:           8,
		MinPlayers:           2,
		DiscoveryTimeout:     10 * time.Second,
		ConnectTimeout:       10 * time.Second,
		ReconnectBase:        time.Second,
		ReconnectCap:         30 * time.Second,
		MaxReconnectAttempts: 5,
		HeartbeatInterval:    time.Second,
		PeerTimeout:          5 * time.Second,
		RetryInterval:        500 * time.Millisecond,
		MaxRetries:           5,
		HistorySize:          64,
		SeenTTL:              30 * time.Second,
		Limits:               protocol.DefaultLimits(),
		Codec:                protocol.JSONCodec{},
	}
}

// Backoff is the wait after n failed reconnect attempts: min(base·2^n, cap).
func (c Config) Backoff(n int) time.Duration {
	d := c.ReconnectBase
	for i := 0; i < n; i++ {
		d *= 2
		if d >= c.ReconnectCap {
			return c.ReconnectCap
		}
	}
	return min(d, c.ReconnectCap)
}
