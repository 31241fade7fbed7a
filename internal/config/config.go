// Package config provides configuration for the operator console.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the console configuration.
type Config struct {
	Channel    ChannelConfig    `toml:"channel"`    // Event channel connection
	Operator   OperatorConfig   `toml:"operator"`   // Operator identity sent on identify
	API        APIConfig        `toml:"api"`        // Upstream admin REST API
	Reconnect  ReconnectConfig  `toml:"reconnect"`  // Backoff between connection attempts
	Projection ProjectionConfig `toml:"projection"` // Projection tuning
	Storage    StorageConfig    `toml:"storage"`    // Local event journal
	Policy     PolicyConfig     `toml:"policy"`     // Command policy
	HTTP       HTTPConfig       `toml:"http"`       // Local API for view layers
	Logging    LoggingConfig    `toml:"logging"`
}

// ChannelConfig configures the WebSocket event channel.
type ChannelConfig struct {
	URL                string `toml:"url"`                  // e.g. ws://localhost:3001/admin/ws
	PingIntervalMs     int    `toml:"ping_interval_ms"`     // Keepalive ping period
	WriteTimeoutMs     int    `toml:"write_timeout_ms"`     // Per-frame write deadline
	ReadTimeoutMs      int    `toml:"read_timeout_ms"`      // Read deadline, extended by pongs
	HandshakeTimeoutMs int    `toml:"handshake_timeout_ms"` // Dial + upgrade deadline
	MaxMessageSize     int64  `toml:"max_message_size"`     // Largest inbound frame in bytes
	SendBufferSize     int    `toml:"send_buffer_size"`     // Outbound command queue length
}

// OperatorConfig identifies the operator to the chat server.
type OperatorConfig struct {
	ID    string `toml:"id"`
	Token string `toml:"token"`
}

// APIConfig configures the admin REST client.
type APIConfig struct {
	BaseURL   string `toml:"base_url"`   // e.g. http://localhost:3001/api
	TimeoutMs int    `toml:"timeout_ms"` // Per-request timeout
	PageSize  int    `toml:"page_size"`  // Transcript page size
}

// ReconnectConfig configures exponential backoff with jitter.
type ReconnectConfig struct {
	InitialIntervalMs int     `toml:"initial_interval_ms"`
	MaxIntervalMs     int     `toml:"max_interval_ms"`
	Multiplier        float64 `toml:"multiplier"`
	Jitter            float64 `toml:"jitter"` // Randomization factor in [0,1)
}

// ProjectionConfig tunes the conversation projector.
type ProjectionConfig struct {
	DedupWindow int `toml:"dedup_window"` // Message ids remembered per chat
}

// StorageConfig configures the local journal.
type StorageConfig struct {
	JournalDSN string `toml:"journal_dsn"`
}

// PolicyConfig points at an optional rego file overriding the default command policy.
type PolicyConfig struct {
	Path string `toml:"path"`
}

// HTTPConfig configures the local API.
type HTTPConfig struct {
	Port int `toml:"port"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json or console
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Channel: ChannelConfig{
			URL:                "ws://localhost:3001/admin/ws",
			PingIntervalMs:     30000,
			WriteTimeoutMs:     10000,
			ReadTimeoutMs:      60000,
			HandshakeTimeoutMs: 20000,
			MaxMessageSize:     65536,
			SendBufferSize:     64,
		},
		API: APIConfig{
			BaseURL:   "http://localhost:3001/api",
			TimeoutMs: 10000,
			PageSize:  50,
		},
		Reconnect: ReconnectConfig{
			InitialIntervalMs: 500,
			MaxIntervalMs:     30000,
			Multiplier:        2,
			Jitter:            0.5,
		},
		Projection: ProjectionConfig{DedupWindow: 256},
		Storage:    StorageConfig{JournalDSN: "file:livedesk.db?cache=shared&mode=rwc"},
		HTTP:       HTTPConfig{Port: 8095},
		Logging:    LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load builds the configuration from defaults, an optional TOML file and the
// environment, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadWithFallback loads the first config file found among preferredPath,
// configs/livedesk.toml and livedesk.toml. Missing files are not an error.
func LoadWithFallback(preferredPath string) (*Config, error) {
	if preferredPath != "" {
		if _, err := os.Stat(preferredPath); err != nil {
			return nil, fmt.Errorf("config file not found: %s", preferredPath)
		}
		return Load(preferredPath)
	}

	for _, path := range []string{"configs/livedesk.toml", "livedesk.toml"} {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Load("")
}

func (c *Config) applyEnv() {
	c.Channel.URL = getEnv("LIVEDESK_WS_URL", c.Channel.URL)
	c.Channel.PingIntervalMs = getEnvInt("LIVEDESK_WS_PING_INTERVAL_MS", c.Channel.PingIntervalMs)
	c.Channel.WriteTimeoutMs = getEnvInt("LIVEDESK_WS_WRITE_TIMEOUT_MS", c.Channel.WriteTimeoutMs)
	c.Channel.ReadTimeoutMs = getEnvInt("LIVEDESK_WS_READ_TIMEOUT_MS", c.Channel.ReadTimeoutMs)
	c.Channel.MaxMessageSize = int64(getEnvInt("LIVEDESK_WS_MAX_MESSAGE_SIZE", int(c.Channel.MaxMessageSize)))
	c.Operator.ID = getEnv("LIVEDESK_OPERATOR_ID", c.Operator.ID)
	c.Operator.Token = getEnv("LIVEDESK_TOKEN", c.Operator.Token)
	c.API.BaseURL = getEnv("LIVEDESK_API_URL", c.API.BaseURL)
	c.API.TimeoutMs = getEnvInt("LIVEDESK_API_TIMEOUT_MS", c.API.TimeoutMs)
	c.Reconnect.MaxIntervalMs = getEnvInt("LIVEDESK_RECONNECT_MAX_MS", c.Reconnect.MaxIntervalMs)
	c.Projection.DedupWindow = getEnvInt("LIVEDESK_DEDUP_WINDOW", c.Projection.DedupWindow)
	c.Storage.JournalDSN = getEnv("LIVEDESK_JOURNAL_DSN", c.Storage.JournalDSN)
	c.Policy.Path = getEnv("LIVEDESK_POLICY_PATH", c.Policy.Path)
	c.HTTP.Port = getEnvInt("LIVEDESK_HTTP_PORT", c.HTTP.Port)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
}

// Validate checks the configuration for missing or nonsensical values.
func (c *Config) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.Channel.URL, "ws://") && !strings.HasPrefix(c.Channel.URL, "wss://") {
		errs = append(errs, fmt.Errorf("channel.url must be a ws:// or wss:// URL, got %q", c.Channel.URL))
	}
	if c.Operator.ID == "" {
		errs = append(errs, errors.New("operator.id is required"))
	}
	if c.Operator.Token == "" {
		errs = append(errs, errors.New("operator.token is required"))
	}
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	for name, v := range map[string]int{
		"channel.ping_interval_ms":      c.Channel.PingIntervalMs,
		"channel.write_timeout_ms":      c.Channel.WriteTimeoutMs,
		"channel.read_timeout_ms":       c.Channel.ReadTimeoutMs,
		"channel.handshake_timeout_ms":  c.Channel.HandshakeTimeoutMs,
		"channel.send_buffer_size":      c.Channel.SendBufferSize,
		"api.timeout_ms":                c.API.TimeoutMs,
		"api.page_size":                 c.API.PageSize,
		"reconnect.initial_interval_ms": c.Reconnect.InitialIntervalMs,
		"reconnect.max_interval_ms":     c.Reconnect.MaxIntervalMs,
		"projection.dedup_window":       c.Projection.DedupWindow,
		"http.port":                     c.HTTP.Port,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Channel.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("channel.max_message_size must be positive"))
	}
	if c.Reconnect.Multiplier < 1 {
		errs = append(errs, errors.New("reconnect.multiplier must be >= 1"))
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter >= 1 {
		errs = append(errs, errors.New("reconnect.jitter must be in [0,1)"))
	}
	return errors.Join(errs...)
}

// Ms converts a millisecond setting to a duration.
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
