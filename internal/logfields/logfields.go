package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyEvent      = "event"
	KeyHandler    = "handler"
	KeySource     = "source"
	KeyPath       = "path"
	KeyAttempt    = "attempt"
	KeyAttempts   = "attempts"
	KeyHost       = "host"
	KeyPort       = "port"
	KeyClientID   = "client_id"
	KeyState      = "state"
	KeySink       = "sink"
	KeySubject    = "subject"
	KeySession    = "session_id"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Event(name string) slog.Attr      { return slog.String(KeyEvent, name) }
func Handler(name string) slog.Attr    { return slog.String(KeyHandler, name) }
func Source(path string) slog.Attr     { return slog.String(KeySource, path) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Attempt(n int) slog.Attr          { return slog.Int(KeyAttempt, n) }
func Attempts(n int) slog.Attr         { return slog.Int(KeyAttempts, n) }
func Host(h string) slog.Attr          { return slog.String(KeyHost, h) }
func Port(p int) slog.Attr             { return slog.Int(KeyPort, p) }
func ClientID(id int) slog.Attr        { return slog.Int(KeyClientID, id) }
func State(s string) slog.Attr         { return slog.String(KeyState, s) }
func Sink(name string) slog.Attr       { return slog.String(KeySink, name) }
func Subject(s string) slog.Attr       { return slog.String(KeySubject, s) }
func Session(id string) slog.Attr      { return slog.String(KeySession, id) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
