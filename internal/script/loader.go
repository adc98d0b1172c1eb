// Package script discovers and loads user-supplied Lua handler scripts.
// Each script runs in its own isolated Lua state; executing the file body
// produces explicit handler registrations consumed by the registry, so no
// behavior depends on load ordering between scripts.
package script

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	ferrors "git.home.luguber.info/inful/ibeventd/internal/foundation/errors"
	"git.home.luguber.info/inful/ibeventd/internal/gateway"
	"git.home.luguber.info/inful/ibeventd/internal/logfields"
	"git.home.luguber.info/inful/ibeventd/internal/registry"
)

const (
	scriptExt = ".lua"
	// init.lua is treated as an aggregator marker, never loaded directly.
	aggregatorName = "init.lua"
)

// Loader loads handler scripts and keeps their hosts alive for the duration
// of a dispatch session. Implements registry.Loader.
type Loader struct {
	mu     sync.Mutex
	hosts  []*Host
	setups []setupEntry
}

type setupEntry struct {
	host *Host
	fn   *lua.LFunction
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{}
}

// CollectScripts expands the search paths into candidate script files. A
// directory is walked recursively for *.lua files; a file path is accepted
// when it names a script. Aggregator files (init.lua) are excluded, and
// paths that do not exist are logged at warning level and skipped.
func CollectScripts(paths []string) []string {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			slog.Warn("Handler path does not exist, skipping", logfields.Path(p))
			continue
		}
		if !info.IsDir() {
			if isScript(p) {
				files = append(files, p)
			}
			continue
		}
		_ = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				slog.Warn("Error walking handler path", logfields.Path(path), logfields.Error(err))
				return nil
			}
			if !d.IsDir() && isScript(path) {
				files = append(files, path)
			}
			return nil
		})
	}
	return files
}

func isScript(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, scriptExt) && base != aggregatorName
}

// Load closes any hosts from a previous pass, then loads every script under
// the search paths. Each file body executes exactly once; a failing script
// yields a LoadResult carrying the error and never aborts the remaining
// candidates.
func (l *Loader) Load(ctx context.Context, paths []string) []registry.LoadResult {
	l.Close()

	files := CollectScripts(paths)
	results := make([]registry.LoadResult, 0, len(files))
	for _, file := range files {
		results = append(results, l.loadFile(ctx, file))
	}
	return results
}

func (l *Loader) loadFile(ctx context.Context, path string) registry.LoadResult {
	ls := lua.NewState()
	host := newHost(path, ls)
	env := &scriptEnv{path: path}

	err := host.Do(ctx, func(L *lua.LState) error {
		env.install(L)
		if err := L.DoFile(path); err != nil {
			return err
		}
		env.finish(L)
		return nil
	})
	if err != nil {
		host.Close()
		return registry.LoadResult{
			Path: path,
			Err: ferrors.ScriptError("script failed to load").
				WithCause(err).WithContext("path", path).Build(),
		}
	}

	regs := make([]registry.Registration, 0, len(env.pending))
	for _, p := range env.pending {
		regs = append(regs, registry.Registration{
			Event:  p.event,
			Name:   p.name,
			Source: path,
			Kind:   p.kind,
			Fn:     makeHandler(host, p),
		})
	}

	l.mu.Lock()
	l.hosts = append(l.hosts, host)
	if env.setup != nil {
		l.setups = append(l.setups, setupEntry{host: host, fn: env.setup})
	}
	l.mu.Unlock()

	return registry.LoadResult{Path: path, Registrations: regs}
}

// makeHandler wraps a collected Lua function as a registry handler. Every
// invocation is serialized through the script's host.
func makeHandler(host *Host, p pendingReg) registry.Handler {
	return func(ctx context.Context, conn gateway.Conn, f gateway.Firing) error {
		err := host.Do(ctx, func(L *lua.LState) error {
			L.Push(p.fn)
			L.Push(wrapConn(L, conn))
			args, fields := firingToLua(L, f)
			L.Push(args)
			L.Push(fields)
			return L.PCall(3, 0, nil)
		})
		if err != nil {
			return ferrors.ScriptError("handler invocation failed").
				WithCause(err).
				WithContext("handler", p.name).
				WithContext("event", p.event).Build()
		}
		return nil
	}
}

// RunSetups invokes each loaded script's setup(conn, log) entry point with
// the live connection. A failing setup is logged and does not stop the rest.
func (l *Loader) RunSetups(ctx context.Context, conn gateway.Conn) {
	l.mu.Lock()
	setups := make([]setupEntry, len(l.setups))
	copy(setups, l.setups)
	l.mu.Unlock()

	for _, s := range setups {
		entry := s
		err := entry.host.Do(ctx, func(L *lua.LState) error {
			L.Push(entry.fn)
			L.Push(wrapConn(L, conn))
			L.Push(L.GetGlobal("log"))
			return L.PCall(2, 0, nil)
		})
		if err != nil {
			slog.Error("Script setup failed",
				logfields.Source(entry.host.Path()), logfields.Error(err))
			continue
		}
		slog.Info("Script setup complete", logfields.Source(entry.host.Path()))
	}
}

// HostCount reports how many scripts are currently loaded.
func (l *Loader) HostCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}

// Close shuts down all script hosts and forgets their setups.
func (l *Loader) Close() {
	l.mu.Lock()
	hosts := l.hosts
	l.hosts = nil
	l.setups = nil
	l.mu.Unlock()

	for _, h := range hosts {
		h.Close()
	}
}
