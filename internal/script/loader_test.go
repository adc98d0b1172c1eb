package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ibeventd/internal/gateway"
	"git.home.luguber.info/inful/ibeventd/internal/gateway/sim"
	"git.home.luguber.info/inful/ibeventd/internal/registry"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCollectScripts(t *testing.T) {
	dir := t.TempDir()
	a := writeScript(t, dir, "a.lua", "")
	nested := writeScript(t, dir, filepath.Join("sub", "b.lua"), "")
	writeScript(t, dir, "init.lua", "")
	writeScript(t, dir, filepath.Join("sub", "init.lua"), "")
	writeScript(t, dir, "notes.txt", "")
	direct := writeScript(t, t.TempDir(), "c.lua", "")

	files := CollectScripts([]string{dir, direct, filepath.Join(dir, "missing")})
	require.ElementsMatch(t, []string{a, nested, direct}, files)
}

func TestCollectScriptsRejectsNonScriptFile(t *testing.T) {
	dir := t.TempDir()
	txt := writeScript(t, dir, "readme.txt", "")
	require.Empty(t, CollectScripts([]string{txt}))
}

func TestLoadCollectsRegistrations(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "hooks.lua", `
ib.on("barUpdateEvent", function(conn, args, fields) end, "on_bar")
ib.on_async("pendingTickersEvent", function(conn, args, fields) end)
`)

	l := NewLoader()
	defer l.Close()

	results := l.Load(context.Background(), []string{dir})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Len(t, results[0].Registrations, 2)

	first := results[0].Registrations[0]
	require.Equal(t, "barUpdateEvent", first.Event)
	require.Equal(t, "on_bar", first.Name)
	require.Equal(t, registry.KindSync, first.Kind)
	require.Equal(t, results[0].Path, first.Source)

	second := results[0].Registrations[1]
	require.Equal(t, "pendingTickersEvent", second.Event)
	require.Equal(t, registry.KindAsync, second.Kind)
	require.Equal(t, "hooks.lua[2]", second.Name)
}

func TestLoadBrokenScriptDoesNotAbortOthers(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a_broken.lua", `this is not lua (`)
	writeScript(t, dir, "b_good.lua", `ib.on("barUpdateEvent", function() end)`)

	l := NewLoader()
	defer l.Close()

	results := l.Load(context.Background(), []string{dir})
	require.Len(t, results, 2)

	byPath := map[string]registry.LoadResult{}
	for _, r := range results {
		byPath[filepath.Base(r.Path)] = r
	}
	require.Error(t, byPath["a_broken.lua"].Err)
	require.NoError(t, byPath["b_good.lua"].Err)
	require.Len(t, byPath["b_good.lua"].Registrations, 1)
}

func TestLoadScriptWithoutRegistrationsIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "inert.lua", `local x = 1 + 1`)

	l := NewLoader()
	defer l.Close()

	results := l.Load(context.Background(), []string{dir})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Empty(t, results[0].Registrations)
}

func TestReloadResetsHosts(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a.lua", `ib.on("tick", function() end)`)

	l := NewLoader()
	defer l.Close()

	l.Load(context.Background(), []string{dir})
	require.Equal(t, 1, l.HostCount())
	l.Load(context.Background(), []string{dir})
	require.Equal(t, 1, l.HostCount())
}

func TestHandlerReceivesConnArgsAndFields(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "assertive.lua", `
ib.on("pendingTickersEvent", function(conn, args, fields)
  assert(conn:is_connected() == false, "conn should report disconnected")
  assert(args[1] == "USDJPY", "first arg mismatch")
  assert(args[2] == 151.25, "second arg mismatch")
  assert(fields.hasNewBar == true, "field mismatch")
end, "assertive")
`)

	l := NewLoader()
	defer l.Close()

	results := l.Load(context.Background(), []string{dir})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	reg := results[0].Registrations[0]

	g := sim.New()
	err := reg.Fn(context.Background(), g, gateway.Firing{
		Name:   "pendingTickersEvent",
		Args:   []any{"USDJPY", 151.25},
		Fields: map[string]any{"hasNewBar": true},
	})
	require.NoError(t, err)
}

func TestHandlerLuaErrorSurfacesAsError(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "angry.lua", `
ib.on("tick", function(conn, args, fields)
  error("deliberate failure")
end)
`)

	l := NewLoader()
	defer l.Close()

	results := l.Load(context.Background(), []string{dir})
	reg := results[0].Registrations[0]

	err := reg.Fn(context.Background(), sim.New(), gateway.Firing{Name: "tick"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "deliberate failure")
}

func TestRunSetups(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "setup.ran")
	writeScript(t, dir, "with_setup.lua", `
function setup(conn, log)
  log.info("setup running")
  local f = assert(io.open("`+marker+`", "w"))
  f:write(tostring(conn:is_connected()))
  f:close()
end
`)

	l := NewLoader()
	defer l.Close()

	results := l.Load(context.Background(), []string{dir})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	g := sim.New()
	require.NoError(t, g.Connect(context.Background(), gateway.ConnectOptions{Host: "h", Port: 1}))
	l.RunSetups(context.Background(), g)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.Equal(t, "true", string(data))
}

func TestScriptsAreIsolated(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a_writer.lua", `shared = "from a"`)
	writeScript(t, dir, "b_reader.lua", `
ib.on("tick", function(conn, args, fields)
  assert(shared == nil, "scripts must not share globals")
end)
`)

	l := NewLoader()
	defer l.Close()

	results := l.Load(context.Background(), []string{dir})
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
	}

	var reg registry.Registration
	for _, r := range results {
		if len(r.Registrations) > 0 {
			reg = r.Registrations[0]
		}
	}
	require.NoError(t, reg.Fn(context.Background(), sim.New(), gateway.Firing{Name: "tick"}))
}
