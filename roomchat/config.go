package roomchat

import (
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how the client connects and recovers.
type Config struct {
	// BaseURL is the ws(s) API base, e.g. "ws://localhost:8000/api".
	// The per-room stream lives at {BaseURL}/ws/stream?room_id={room}.
	BaseURL string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// HeartbeatInterval is how often the client checks that the server
	// is still producing frames. The server drives ping cadence; the
	// client never initiates pings, it only answers them.
	HeartbeatInterval time.Duration

	// ReconnectBaseDelay is doubled per attempt: delay = base * 2^attempt.
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int

	Logger zerolog.Logger
}

// DefaultConfig returns sensible defaults. Set BaseURL before use.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		HeartbeatInterval:    25 * time.Second,
		ReconnectBaseDelay:   time.Second,
		MaxReconnectAttempts: 5,
		Logger:               zerolog.Nop(),
	}
}

func (c Config) streamURL(roomID string) string {
	return c.BaseURL + "/ws/stream?room_id=" + url.QueryEscape(roomID)
}
