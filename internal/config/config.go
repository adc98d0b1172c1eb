package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/ibeventd/internal/foundation/errors"
)

// Config represents the full daemon configuration. Values are resolved in
// order: built-in defaults, then the optional YAML file, then IB_* environment
// variables (environment wins).
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Handler   HandlerConfig   `yaml:"handler"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// GatewayConfig holds broker gateway connection settings.
type GatewayConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	ClientID int           `yaml:"client_id"`
	Timeout  time.Duration `yaml:"timeout"`
	ReadOnly bool          `yaml:"readonly"`
	Account  string        `yaml:"account"`
}

// HandlerConfig holds handler discovery and connect-retry settings.
type HandlerConfig struct {
	// Paths are the handler-script search paths. Each entry may be a
	// directory (scanned recursively for *.lua) or a single script file.
	Paths []string `yaml:"paths"`
	// Watch enables fsnotify-driven reload when scripts change on disk.
	Watch bool `yaml:"watch"`

	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	AutoReconnect bool          `yaml:"auto_reconnect"`
}

// MirrorMode selects where event firings are mirrored.
type MirrorMode string

const (
	MirrorOff  MirrorMode = "off"
	MirrorBus  MirrorMode = "bus"
	MirrorNATS MirrorMode = "nats"
)

// MirrorConfig holds the secondary publish channel settings.
type MirrorConfig struct {
	Mode          MirrorMode `yaml:"mode"`
	NATSURL       string     `yaml:"nats_url"`
	SubjectPrefix string     `yaml:"subject_prefix"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
	File   string `yaml:"file"`   // optional log file path
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// HeartbeatConfig holds the periodic connection health probe settings.
type HeartbeatConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Load resolves configuration from defaults, an optional YAML file at
// configPath (empty string or a missing file skips the file layer), and
// IB_* environment variables. A .env file in the working directory is
// loaded first without overriding already-set variables.
func Load(configPath string) (*Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, ferrors.ConfigError("failed to read config file").
					WithCause(err).WithContext("path", configPath).Build()
			}
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
				return nil, ferrors.ConfigError("failed to parse config file").
					WithCause(err).WithContext("path", configPath).Build()
			}
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the daemon relies on.
func (c *Config) Validate() error {
	if c.Gateway.Host == "" {
		return ferrors.ValidationError("gateway host cannot be empty").Build()
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return ferrors.ValidationError("gateway port out of range").
			WithContext("port", c.Gateway.Port).Build()
	}
	if c.Gateway.ClientID <= 0 {
		return ferrors.ValidationError("gateway client_id must be positive").
			WithContext("client_id", c.Gateway.ClientID).Build()
	}
	if c.Gateway.Timeout <= 0 {
		return ferrors.ValidationError("gateway timeout must be positive").Build()
	}
	if c.Handler.MaxRetries < 0 {
		return ferrors.ValidationError("handler max_retries cannot be negative").
			WithContext("max_retries", c.Handler.MaxRetries).Build()
	}
	if c.Handler.RetryDelay <= 0 {
		return ferrors.ValidationError("handler retry_delay must be positive").Build()
	}
	switch c.Mirror.Mode {
	case MirrorOff, MirrorBus, MirrorNATS:
	default:
		return ferrors.ValidationError("unknown mirror mode").
			WithContext("mode", string(c.Mirror.Mode)).Build()
	}
	if c.Mirror.Mode == MirrorNATS && c.Mirror.NATSURL == "" {
		return ferrors.ValidationError("mirror nats_url required for nats mode").Build()
	}
	if c.Heartbeat.Enabled && c.Heartbeat.Interval <= 0 {
		return ferrors.ValidationError("heartbeat interval must be positive").Build()
	}
	return nil
}

// Addr returns the gateway host:port pair for logging and dialing.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}
