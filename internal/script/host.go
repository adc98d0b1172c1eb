package script

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	ferrors "git.home.luguber.info/inful/ibeventd/internal/foundation/errors"
)

// call is one Lua operation queued for the host's worker goroutine.
type call struct {
	fn     func(L *lua.LState) error
	result chan error
}

// Host owns one script's Lua state. gopher-lua's LState is not
// goroutine-safe, so every operation is marshaled through a single worker
// goroutine; sync handler invocations block until the state is free, async
// invocations queue behind whatever the script is already running.
type Host struct {
	path string
	ls   *lua.LState

	queue chan *call
	done  chan struct{}

	closeOnce sync.Once
}

const hostQueueSize = 64

// newHost creates a host for the script at path and starts its worker.
func newHost(path string, ls *lua.LState) *Host {
	h := &Host{
		path:  path,
		ls:    ls,
		queue: make(chan *call, hostQueueSize),
		done:  make(chan struct{}),
	}
	go h.run()
	return h
}

// Path returns the script file this host was loaded from.
func (h *Host) Path() string { return h.path }

func (h *Host) run() {
	for {
		select {
		case <-h.done:
			h.drain()
			h.ls.Close()
			return
		case c := <-h.queue:
			err := h.execute(c)
			select {
			case c.result <- err:
			default:
			}
			close(c.result)
		}
	}
}

func (h *Host) execute(c *call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ferrors.ScriptError(fmt.Sprintf("lua panic: %v", r)).
				WithContext("path", h.path).Build()
		}
	}()
	return c.fn(h.ls)
}

func (h *Host) drain() {
	for {
		select {
		case c := <-h.queue:
			closed := ferrors.ScriptError("script host closed").
				WithContext("path", h.path).Build()
			select {
			case c.result <- closed:
			default:
			}
			close(c.result)
		default:
			return
		}
	}
}

// Do runs fn on the host's Lua state and waits for the result.
func (h *Host) Do(ctx context.Context, fn func(L *lua.LState) error) error {
	c := &call{fn: fn, result: make(chan error, 1)}
	select {
	case <-h.done:
		return ferrors.ScriptError("script host closed").
			WithContext("path", h.path).Build()
	case <-ctx.Done():
		return ctx.Err()
	case h.queue <- c:
	}

	select {
	case err := <-c.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		// The enqueue can race Close: the worker may have drained and
		// exited without ever seeing this call. Reclaim a result if the
		// worker did handle it, otherwise fail fast.
		select {
		case err, ok := <-c.result:
			if ok {
				return err
			}
		default:
		}
		return ferrors.ScriptError("script host closed").
			WithContext("path", h.path).Build()
	}
}

// Close stops the worker and releases the Lua state. Queued calls fail with
// a script error.
func (h *Host) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
