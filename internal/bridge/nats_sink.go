package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	ferrors "git.home.luguber.info/inful/ibeventd/internal/foundation/errors"
	"git.home.luguber.info/inful/ibeventd/internal/gateway"
	"git.home.luguber.info/inful/ibeventd/internal/logfields"
)

// FiringMessage is the JSON payload published for each mirrored firing.
type FiringMessage struct {
	Event   string         `json:"event"`
	Args    []any          `json:"args,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	FiredAt time.Time      `json:"fired_at"`
}

// NATSSink republishes firings to NATS, one subject per event name:
// <prefix>.<event>.
type NATSSink struct {
	conn    *nats.Conn
	prefix  string
	ownConn bool
}

// NewNATSSink connects to the given NATS URL and returns a sink publishing
// under subjectPrefix.
func NewNATSSink(url, subjectPrefix string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, ferrors.BridgeError("failed to connect to NATS").
			WithCause(err).WithContext("url", url).Build()
	}
	slog.Info("NATS mirror sink connected", slog.String("url", url),
		logfields.Subject(subjectPrefix+".>"))
	return &NATSSink{conn: conn, prefix: subjectPrefix, ownConn: true}, nil
}

// NewNATSSinkWithConn wraps an existing connection; Close will not close it.
func NewNATSSinkWithConn(conn *nats.Conn, subjectPrefix string) *NATSSink {
	return &NATSSink{conn: conn, prefix: subjectPrefix}
}

// Name implements gateway.MirrorSink.
func (s *NATSSink) Name() string { return "nats" }

// Publish implements gateway.MirrorSink.
func (s *NATSSink) Publish(_ context.Context, f gateway.Firing) error {
	data, err := json.Marshal(FiringMessage{
		Event:   f.Name,
		Args:    f.Args,
		Fields:  f.Fields,
		FiredAt: f.FiredAt,
	})
	if err != nil {
		return ferrors.BridgeError("failed to marshal firing").
			WithCause(err).WithContext("event", f.Name).Build()
	}
	subject := fmt.Sprintf("%s.%s", s.prefix, f.Name)
	if err := s.conn.Publish(subject, data); err != nil {
		return ferrors.BridgeError("failed to publish firing").
			WithCause(err).WithContext("subject", subject).Build()
	}
	return nil
}

// Close drains the connection if this sink owns it.
func (s *NATSSink) Close() {
	if s.ownConn && s.conn != nil {
		if err := s.conn.Drain(); err != nil {
			slog.Error("Error draining NATS connection", logfields.Error(err))
		}
	}
}

var _ gateway.MirrorSink = (*NATSSink)(nil)
