package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names. The IB_ prefix and the pathsep-delimited
// IB_DAEMON_HANDLERS list are part of the daemon's public surface.
const (
	EnvHost     = "IB_HOST"
	EnvPort     = "IB_PORT"
	EnvClientID = "IB_CLIENT_ID"
	EnvTimeout  = "IB_TIMEOUT"
	EnvReadOnly = "IB_READONLY"
	EnvAccount  = "IB_ACCOUNT"

	EnvHandlerPaths  = "IB_DAEMON_HANDLERS"
	EnvHandlerWatch  = "IB_DAEMON_WATCH"
	EnvMaxRetries    = "IB_HANDLER_MAX_RETRIES"
	EnvRetryDelay    = "IB_HANDLER_RETRY_DELAY"
	EnvAutoReconnect = "IB_HANDLER_AUTO_RECONNECT"

	EnvLogLevel  = "IB_LOG_LEVEL"
	EnvLogFormat = "IB_LOG_FORMAT"
	EnvLogFile   = "IB_LOG_FILE"

	EnvMirrorMode    = "IB_MIRROR_MODE"
	EnvMirrorNATSURL = "IB_MIRROR_NATS_URL"
	EnvMirrorSubject = "IB_MIRROR_SUBJECT_PREFIX"

	EnvMetricsEnabled = "IB_METRICS_ENABLED"
	EnvMetricsListen  = "IB_METRICS_LISTEN"

	EnvHeartbeatInterval = "IB_HEARTBEAT_INTERVAL"
)

// applyEnv overlays IB_* environment variables onto cfg. Unset variables
// leave the current value untouched; malformed numeric values are ignored
// rather than failing the whole load.
func applyEnv(cfg *Config) {
	setString(EnvHost, &cfg.Gateway.Host)
	setInt(EnvPort, &cfg.Gateway.Port)
	setInt(EnvClientID, &cfg.Gateway.ClientID)
	setSeconds(EnvTimeout, &cfg.Gateway.Timeout)
	setBool(EnvReadOnly, &cfg.Gateway.ReadOnly)
	setString(EnvAccount, &cfg.Gateway.Account)

	if v, ok := os.LookupEnv(EnvHandlerPaths); ok {
		cfg.Handler.Paths = SplitPathList(v)
	}
	setBool(EnvHandlerWatch, &cfg.Handler.Watch)
	setInt(EnvMaxRetries, &cfg.Handler.MaxRetries)
	setSeconds(EnvRetryDelay, &cfg.Handler.RetryDelay)
	setBool(EnvAutoReconnect, &cfg.Handler.AutoReconnect)

	setString(EnvLogLevel, &cfg.Log.Level)
	setString(EnvLogFormat, &cfg.Log.Format)
	setString(EnvLogFile, &cfg.Log.File)

	if v, ok := os.LookupEnv(EnvMirrorMode); ok {
		cfg.Mirror.Mode = MirrorMode(strings.ToLower(strings.TrimSpace(v)))
	}
	setString(EnvMirrorNATSURL, &cfg.Mirror.NATSURL)
	setString(EnvMirrorSubject, &cfg.Mirror.SubjectPrefix)

	setBool(EnvMetricsEnabled, &cfg.Metrics.Enabled)
	setString(EnvMetricsListen, &cfg.Metrics.Listen)

	setSeconds(EnvHeartbeatInterval, &cfg.Heartbeat.Interval)
}

// SplitPathList splits a pathsep-delimited search path list, dropping empty
// entries.
func SplitPathList(raw string) []string {
	parts := strings.Split(raw, string(os.PathListSeparator))
	paths := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func setString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

// setSeconds parses either a float second count ("4.0", matching the
// historical surface) or a Go duration string ("4s").
func setSeconds(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	v = strings.TrimSpace(v)
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(f * float64(time.Second))
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
