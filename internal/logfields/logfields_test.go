package logfields

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestHelperKeyNames verifies helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
		attr slog.Attr
	}{
		{"Event", KeyEvent, "barUpdate", Event("barUpdate")},
		{"Handler", KeyHandler, "on_bar", Handler("on_bar")},
		{"Source", KeySource, "/etc/hooks/bar.lua", Source("/etc/hooks/bar.lua")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Host", KeyHost, "127.0.0.1", Host("127.0.0.1")},
		{"State", KeyState, "connected", State("connected")},
		{"Sink", KeySink, "nats", Sink("nats")},
		{"Subject", KeySubject, "ib.events.barUpdate", Subject("ib.events.barUpdate")},
		{"Session", KeySession, "s1", Session("s1")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.key, tc.attr.Key)
			require.Equal(t, tc.val, tc.attr.Value.String())
		})
	}
}

func TestIntHelpers(t *testing.T) {
	require.Equal(t, int64(3), Attempt(3).Value.Int64())
	require.Equal(t, int64(4), Attempts(4).Value.Int64())
	require.Equal(t, int64(7497), Port(7497).Value.Int64())
	require.Equal(t, int64(1), ClientID(1).Value.Int64())
	require.Equal(t, int64(9), Count(9).Value.Int64())
}

func TestErrorHelper(t *testing.T) {
	require.Equal(t, "", Error(nil).Value.String())
	require.Equal(t, "boom", Error(errors.New("boom")).Value.String())
}
