package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ibeventd/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/ibeventd/internal/foundation/errors"
	"git.home.luguber.info/inful/ibeventd/internal/gateway"
	"git.home.luguber.info/inful/ibeventd/internal/gateway/sim"
)

func testOpts() gateway.ConnectOptions {
	return gateway.ConnectOptions{Host: "127.0.0.1", Port: 7497, ClientID: 1, Timeout: time.Second}
}

func TestConnectExhaustsRetriesThenFails(t *testing.T) {
	g := sim.New(sim.WithConnectFailures(100))
	cm := NewConnectionManager(g, testOpts(), 2, 0, nil, nil)

	require.Equal(t, StateDisconnected, cm.State())
	err := cm.Connect(context.Background())
	require.Error(t, err)
	require.Equal(t, 3, g.ConnectAttempts())

	require.Equal(t, ferrors.CategoryConnection, ferrors.GetCategory(err))
	require.Equal(t, StateDisconnected, cm.State())
}

func TestConnectSucceedsWithinRetryBound(t *testing.T) {
	g := sim.New(sim.WithConnectFailures(2))
	bus := events.NewBus()
	defer bus.Close()
	ch, cancel := events.Subscribe[events.ConnectionEstablished](bus, 1)
	defer cancel()

	cm := NewConnectionManager(g, testOpts(), 2, 0, bus, nil)
	require.NoError(t, cm.Connect(context.Background()))
	require.Equal(t, 3, g.ConnectAttempts())
	require.True(t, g.IsConnected())
	require.Equal(t, StateConnected, cm.State())

	select {
	case evt := <-ch:
		require.Equal(t, 3, evt.Attempts)
		require.NotEmpty(t, evt.SessionID)
	case <-time.After(time.Second):
		t.Fatal("expected a ConnectionEstablished event")
	}
}

func TestConnectFirstAttemptSuccessSkipsRetries(t *testing.T) {
	g := sim.New()
	cm := NewConnectionManager(g, testOpts(), 3, time.Hour, nil, nil)

	done := make(chan error, 1)
	go func() { done <- cm.Connect(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
		require.Equal(t, 1, g.ConnectAttempts())
	case <-time.After(time.Second):
		t.Fatal("connect should not sleep when the first attempt succeeds")
	}
}

func TestConnectNoTrailingDelayAfterFinalAttempt(t *testing.T) {
	g := sim.New(sim.WithConnectFailures(100))
	cm := NewConnectionManager(g, testOpts(), 1, 20*time.Millisecond, nil, nil)

	start := time.Now()
	err := cm.Connect(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	require.Equal(t, 2, g.ConnectAttempts())
	// One inter-attempt wait, none after the final failure.
	require.Less(t, elapsed, 2*20*time.Millisecond)
}

func TestConnectCanceledDuringRetryWait(t *testing.T) {
	g := sim.New(sim.WithConnectFailures(100))
	cm := NewConnectionManager(g, testOpts(), 5, time.Hour, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cm.Connect(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		require.Equal(t, 1, g.ConnectAttempts())
	case <-time.After(time.Second):
		t.Fatal("connect did not return after cancellation")
	}
}

func TestConnectNegativeRetriesClampedToSingleAttempt(t *testing.T) {
	g := sim.New(sim.WithConnectFailures(100))
	cm := NewConnectionManager(g, testOpts(), -3, 0, nil, nil)

	require.Error(t, cm.Connect(context.Background()))
	require.Equal(t, 1, g.ConnectAttempts())
}
