package registry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/ibeventd/internal/foundation/errors"
	"git.home.luguber.info/inful/ibeventd/internal/gateway"
	"git.home.luguber.info/inful/ibeventd/internal/gateway/sim"
)

func noop(context.Context, gateway.Conn, gateway.Firing) error { return nil }

func reg(event, name string) Registration {
	return Registration{Event: event, Name: name, Source: "test.lua", Fn: noop}
}

func TestRegisterPreservesOrderAndDuplicates(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(reg("barUpdateEvent", "a")))
	require.NoError(t, r.Register(reg("orderStatusEvent", "b")))
	require.NoError(t, r.Register(reg("barUpdateEvent", "a"))) // duplicate kept

	require.Equal(t, 3, r.Len())
	require.Equal(t, []string{"barUpdateEvent", "orderStatusEvent"}, r.Events())

	regs := r.HandlersFor("barUpdateEvent")
	require.Len(t, regs, 2)
	require.Equal(t, "a", regs[0].Name)
	require.Equal(t, "a", regs[1].Name)
}

func TestRegisterValidation(t *testing.T) {
	r := New()
	require.Error(t, r.Register(Registration{Name: "no-event", Fn: noop}))
	require.Error(t, r.Register(Registration{Event: "x", Name: "no-fn"}))
}

func TestSealedRegistryRejectsRegister(t *testing.T) {
	r := New()
	r.Seal()
	err := r.Register(reg("tick", "late"))
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryDaemon))

	r.Unseal()
	require.NoError(t, r.Register(reg("tick", "ok")))
}

type fakeLoader struct {
	results []LoadResult
	calls   int
}

func (l *fakeLoader) Load(context.Context, []string) []LoadResult {
	l.calls++
	return l.results
}

func TestDiscoverHandlersClearsBeforeLoading(t *testing.T) {
	loader := &fakeLoader{results: []LoadResult{
		{Path: "/hooks/a.lua", Registrations: []Registration{reg("barUpdateEvent", "on_bar")}},
		{Path: "/hooks/broken.lua", Err: ferrors.ScriptError("syntax error").Build()},
	}}

	r := New()
	r.DiscoverHandlers(context.Background(), loader, []string{"/hooks"})
	require.Equal(t, 1, r.Len())

	// Second pass starts from a clean table: same count, not double.
	r.DiscoverHandlers(context.Background(), loader, []string{"/hooks"})
	require.Equal(t, 1, r.Len())
	require.Equal(t, 2, loader.calls)
}

func TestDiscoverHandlersNoPaths(t *testing.T) {
	loader := &fakeLoader{}
	r := New()
	require.Nil(t, r.DiscoverHandlers(context.Background(), loader, nil))
	require.Zero(t, loader.calls)
}

func TestBindToConnAttachesInRegistrationOrder(t *testing.T) {
	g := sim.New()
	r := New()

	var order []string
	mk := func(label string) Handler {
		return func(context.Context, gateway.Conn, gateway.Firing) error {
			order = append(order, label)
			return nil
		}
	}
	require.NoError(t, r.Register(Registration{Event: sim.EventBarUpdate, Name: "h1", Fn: mk("h1")}))
	require.NoError(t, r.Register(Registration{Event: sim.EventBarUpdate, Name: "h2", Fn: mk("h2")}))

	r.BindToConn(g)

	ev, _ := g.Event(sim.EventBarUpdate)
	require.Equal(t, 2, ev.SubscriberCount())

	ev.Emit(context.Background())
	require.Equal(t, []string{"h1", "h2"}, order)
}

func TestBindToConnMissingEventIsSkipped(t *testing.T) {
	g := sim.New()
	r := New()
	require.NoError(t, r.Register(reg("noSuchEvent", "orphan")))
	require.NoError(t, r.Register(reg(sim.EventPendingTick, "present")))

	require.NotPanics(t, func() { r.BindToConn(g) })

	ev, _ := g.Event(sim.EventPendingTick)
	require.Equal(t, 1, ev.SubscriberCount())
}

func TestBindToConnPrependsConnection(t *testing.T) {
	g := sim.New()
	r := New()

	var got gateway.Conn
	require.NoError(t, r.Register(Registration{
		Event: sim.EventPendingTick,
		Name:  "capture",
		Fn: func(_ context.Context, conn gateway.Conn, _ gateway.Firing) error {
			got = conn
			return nil
		},
	}))
	r.BindToConn(g)

	ev, _ := g.Event(sim.EventPendingTick)
	ev.Emit(context.Background())
	require.Same(t, gateway.Conn(g), got)
}

func TestBindTwiceDuplicatesSubscriptions(t *testing.T) {
	g := sim.New()
	r := New()
	require.NoError(t, r.Register(reg(sim.EventBarUpdate, "h")))

	r.BindToConn(g)
	r.BindToConn(g)

	ev, _ := g.Event(sim.EventBarUpdate)
	require.Equal(t, 2, ev.SubscriberCount())
}

func TestUnbindRemovesOnlyOwnWrappers(t *testing.T) {
	g := sim.New()
	r := New()
	require.NoError(t, r.Register(reg(sim.EventBarUpdate, "h")))

	ev, _ := g.Event(sim.EventBarUpdate)
	foreign := 0
	ev.Connect(func(context.Context, gateway.Firing) { foreign++ })

	r.BindToConn(g)
	require.Equal(t, 2, ev.SubscriberCount())

	r.Unbind()
	require.Equal(t, 1, ev.SubscriberCount())

	ev.Emit(context.Background())
	require.Equal(t, 1, foreign)
}

func TestAsyncHandlerRunsOffDispatchGoroutine(t *testing.T) {
	g := sim.New()
	r := New()

	var calls atomic.Int32
	release := make(chan struct{})
	require.NoError(t, r.Register(Registration{
		Event: sim.EventBarUpdate,
		Name:  "slow",
		Kind:  KindAsync,
		Fn: func(context.Context, gateway.Conn, gateway.Firing) error {
			<-release
			calls.Add(1)
			return nil
		},
	}))
	r.BindToConn(g)

	ev, _ := g.Event(sim.EventBarUpdate)

	done := make(chan struct{})
	go func() {
		ev.Emit(context.Background()) // must not block on the async handler
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler blocked the dispatch path")
	}

	close(release)
	require.Eventually(t, func() bool { return calls.Load() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestFailingHandlerDoesNotStopOthers(t *testing.T) {
	g := sim.New()
	r := New()

	require.NoError(t, r.Register(Registration{
		Event: sim.EventBarUpdate, Name: "bad",
		Fn: func(context.Context, gateway.Conn, gateway.Firing) error {
			return ferrors.InternalError("handler exploded").Build()
		},
	}))
	ran := false
	require.NoError(t, r.Register(Registration{
		Event: sim.EventBarUpdate, Name: "good",
		Fn: func(context.Context, gateway.Conn, gateway.Firing) error {
			ran = true
			return nil
		},
	}))
	r.BindToConn(g)

	ev, _ := g.Event(sim.EventBarUpdate)
	require.NotPanics(t, func() { ev.Emit(context.Background()) })
	require.True(t, ran)
}
