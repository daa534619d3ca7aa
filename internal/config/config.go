package config

import "strings"

// Config holds CLI configuration values.
type Config struct {
	// ServerURL is the REST API base, e.g. "http://localhost:8000/api".
	ServerURL string `mapstructure:"server_url" yaml:"server_url"`

	// StreamURL is the websocket API base. Derived from ServerURL when
	// empty (http -> ws scheme swap).
	StreamURL string `mapstructure:"stream_url" yaml:"stream_url"`

	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ServerURL: "http://localhost:8000/api",
		LogLevel:  "info",
	}
}

// ResolveStreamURL returns the websocket base, deriving it from ServerURL
// when no explicit stream URL is configured.
func (c Config) ResolveStreamURL() string {
	if c.StreamURL != "" {
		return c.StreamURL
	}
	switch {
	case strings.HasPrefix(c.ServerURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.ServerURL, "https://")
	case strings.HasPrefix(c.ServerURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.ServerURL, "http://")
	default:
		return c.ServerURL
	}
}
