package config

import "time"

// Default returns the built-in configuration, matching a locally running
// paper-trading gateway on the standard TWS port.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:     "127.0.0.1",
			Port:     7497,
			ClientID: 1,
			Timeout:  4 * time.Second,
		},
		Handler: HandlerConfig{
			MaxRetries:    3,
			RetryDelay:    time.Second,
			AutoReconnect: true,
		},
		Mirror: MirrorConfig{
			Mode:          MirrorBus,
			SubjectPrefix: "ib.events",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Listen: ":9187",
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
		},
	}
}

// applyDefaults backfills fields a YAML file may have zeroed out.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 7497
	}
	if cfg.Gateway.ClientID == 0 {
		cfg.Gateway.ClientID = 1
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = 4 * time.Second
	}
	if cfg.Handler.RetryDelay == 0 {
		cfg.Handler.RetryDelay = time.Second
	}
	if cfg.Mirror.Mode == "" {
		cfg.Mirror.Mode = MirrorBus
	}
	if cfg.Mirror.SubjectPrefix == "" {
		cfg.Mirror.SubjectPrefix = "ib.events"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9187"
	}
	if cfg.Heartbeat.Interval == 0 {
		cfg.Heartbeat.Interval = 30 * time.Second
	}
}
