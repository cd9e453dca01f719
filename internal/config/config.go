package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"mazeparty/internal/gamelogic"
	"mazeparty/internal/logger"
	"mazeparty/internal/protocol"
	"mazeparty/internal/session"
)

type Config struct {
	PlayerName  string
	ListenAddr  string
	DatabaseURL string

	MaxPlayers int
	MinPlayers int
	CodeTTL    time.Duration

	DiscoveryTimeout     time.Duration
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	PeerTimeout          time.Duration

	TeamLives     int
	MulticastAddr string
	WireCodec     string // "json" or "msgpack"
	Debug         bool
}

// Load reads the environment, after merging a .env file from the working
// directory when there is one. Variables already set win over the file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("[Config] Loading .env: %v", err)
	}
	cfg := Config{
		PlayerName:           getEnv("PLAYER_NAME", ""),
		ListenAddr:           getEnv("LISTEN_ADDR", ":7777"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		MaxPlayers:           getEnvInt("MAX_PLAYERS", 8),
		MinPlayers:           getEnvInt("MIN_PLAYERS", 2),
		CodeTTL:              getEnvDuration("CODE_TTL", 10*time.Minute),
		DiscoveryTimeout:     getEnvDuration("DISCOVERY_TIMEOUT", 10*time.Second),
		ReconnectBase:        getEnvDuration("RECONNECT_BASE", time.Second),
		ReconnectCap:         getEnvDuration("RECONNECT_CAP", 30*time.Second),
		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 5),
		HeartbeatInterval:    getEnvDuration("HEARTBEAT_INTERVAL", time.Second),
		PeerTimeout:          getEnvDuration("PEER_TIMEOUT", 5*time.Second),
		TeamLives:            getEnvInt("TEAM_LIVES", 5),
		MulticastAddr:        getEnv("MULTICAST_ADDR", "239.192.0.4:9192"),
		WireCodec:            getEnv("WIRE_CODEC", "json"),
		Debug:                getEnvBool("DEBUG", false),
	}
	return cfg
}

// Codec resolves WireCodec, falling back to JSON for unknown names.
func (c Config) Codec() protocol.Codec {
	codec, err := protocol.CodecByName(c.WireCodec)
	if err != nil {
		logger.Error("[Config] %v, using json", err)
		return protocol.JSONCodec{}
	}
	return codec
}

// Session projects the connection settings onto session defaults.
func (c Config) Session() session.Config {
	sc := session.DefaultConfig()
	sc.MaxPlayers = c.MaxPlayers
	sc.MinPlayers = c.MinPlayers
	sc.DiscoveryTimeout = c.DiscoveryTimeout
	sc.ReconnectBase = c.ReconnectBase
	sc.ReconnectCap = c.ReconnectCap
	sc.MaxReconnectAttempts = c.MaxReconnectAttempts
	sc.HeartbeatInterval = c.HeartbeatInterval
	sc.PeerTimeout = c.PeerTimeout
	sc.Codec = c.Codec()
	return sc
}

// Rules projects the gameplay settings onto gamelogic defaults.
func (c Config) Rules() gamelogic.Config {
	rc := gamelogic.DefaultConfig()
	if c.TeamLives > 0 {
		rc.TeamLives = c.TeamLives
	}
	return rc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
