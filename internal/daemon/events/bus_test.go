package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsubscribe := Subscribe[GatewayFiring](b, 1)
	defer unsubscribe()

	require.NoError(t, b.Publish(context.Background(), GatewayFiring{Name: "barUpdate", Args: []any{int64(1)}}))

	select {
	case got := <-ch:
		require.Equal(t, "barUpdate", got.Name)
		require.Equal(t, []any{int64(1)}, got.Args)
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_ConcreteTypeIsolation(t *testing.T) {
	b := NewBus()
	defer b.Close()

	firings, unsub1 := Subscribe[GatewayFiring](b, 1)
	defer unsub1()
	changed, unsub2 := Subscribe[HandlersChanged](b, 1)
	defer unsub2()

	require.NoError(t, b.Publish(context.Background(), HandlersChanged{Path: "/opt/hooks"}))

	select {
	case got := <-changed:
		require.Equal(t, "/opt/hooks", got.Path)
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timed out waiting for HandlersChanged")
	}
	select {
	case got := <-firings:
		t.Fatalf("GatewayFiring subscriber received %v", got)
	default:
	}
}

func TestBus_PublishBackpressureCancel(t *testing.T) {
	b := NewBus()
	defer b.Close()

	_, unsubscribe := Subscribe[GatewayFiring](b, 0) // unbuffered, no receiver
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.Publish(ctx, GatewayFiring{Name: "tick"})
	require.Error(t, err)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsubscribe := Subscribe[ConnectionLost](b, 1)
	require.Equal(t, 1, SubscriberCount[ConnectionLost](b))

	unsubscribe()
	require.Equal(t, 0, SubscriberCount[ConnectionLost](b))

	_, open := <-ch
	require.False(t, open)
}

func TestBus_CloseClosesChannels(t *testing.T) {
	b := NewBus()
	ch, _ := Subscribe[GatewayFiring](b, 1)

	b.Close()

	_, open := <-ch
	require.False(t, open)
	require.Error(t, b.Publish(context.Background(), GatewayFiring{Name: "x"}))
}
