package script

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"

	"git.home.luguber.info/inful/ibeventd/internal/gateway"
	"git.home.luguber.info/inful/ibeventd/internal/logfields"
	"git.home.luguber.info/inful/ibeventd/internal/registry"
)

const connTypeName = "ib_conn"

// pendingReg is a registration collected while the script body executes.
type pendingReg struct {
	event string
	name  string
	kind  registry.Kind
	fn    *lua.LFunction
}

// scriptEnv wires the `ib` and `log` modules into a script's Lua state and
// collects the registrations the script declares.
type scriptEnv struct {
	path    string
	pending []pendingReg
	setup   *lua.LFunction
}

// install registers the script-facing API on L. Scripts declare handlers
// with ib.on(event, fn [, name]) and ib.on_async(event, fn [, name]), log
// through log.info/warn/error/debug, and may define a global setup(conn, log)
// function invoked once the connection is live.
func (env *scriptEnv) install(L *lua.LState) {
	registerConnType(L)

	ib := L.NewTable()
	L.SetField(ib, "on", L.NewFunction(env.makeCollect(registry.KindSync)))
	L.SetField(ib, "on_async", L.NewFunction(env.makeCollect(registry.KindAsync)))
	L.SetGlobal("ib", ib)

	logTable := L.NewTable()
	for name, fn := range map[string]func(string, ...any){
		"debug": slog.Debug, "info": slog.Info, "warn": slog.Warn, "error": slog.Error,
	} {
		emit := fn
		L.SetField(logTable, name, L.NewFunction(func(L *lua.LState) int {
			emit(L.CheckString(1), logfields.Source(env.path))
			return 0
		}))
	}
	L.SetGlobal("log", logTable)
}

// finish captures the optional setup entry point after the body ran.
func (env *scriptEnv) finish(L *lua.LState) {
	if fn, ok := L.GetGlobal("setup").(*lua.LFunction); ok {
		env.setup = fn
	}
}

func (env *scriptEnv) makeCollect(kind registry.Kind) lua.LGFunction {
	return func(L *lua.LState) int {
		event := L.CheckString(1)
		fn := L.CheckFunction(2)
		name := L.OptString(3, "")
		if name == "" {
			name = fmt.Sprintf("%s[%d]", filepath.Base(env.path), len(env.pending)+1)
		}
		env.pending = append(env.pending, pendingReg{
			event: event,
			name:  name,
			kind:  kind,
			fn:    fn,
		})
		// Return the function unchanged so the script can still call it.
		L.Push(fn)
		return 1
	}
}

// registerConnType declares the userdata type wrapping gateway.Conn.
func registerConnType(L *lua.LState) {
	mt := L.NewTypeMetatable(connTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"is_connected": func(L *lua.LState) int {
			conn := checkConn(L)
			L.Push(lua.LBool(conn.IsConnected()))
			return 1
		},
	}))
}

func wrapConn(L *lua.LState, conn gateway.Conn) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = conn
	L.SetMetatable(ud, L.GetTypeMetatable(connTypeName))
	return ud
}

func checkConn(L *lua.LState) gateway.Conn {
	ud := L.CheckUserData(1)
	if conn, ok := ud.Value.(gateway.Conn); ok {
		return conn
	}
	L.ArgError(1, "gateway connection expected")
	return nil
}

// toLua converts a Go payload value into its Lua representation. Grounded on
// the usual bridge shape: scalars map directly, slices become array tables,
// string-keyed maps become tables, times become RFC3339 strings.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case time.Time:
		return lua.LString(val.UTC().Format(time.RFC3339))
	case []any:
		t := L.NewTable()
		for _, item := range val {
			t.Append(toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range val {
			L.SetField(t, k, toLua(L, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// firingToLua builds the (args, fields) pair a handler receives.
func firingToLua(L *lua.LState, f gateway.Firing) (lua.LValue, lua.LValue) {
	args := L.NewTable()
	for _, a := range f.Args {
		args.Append(toLua(L, a))
	}
	var fields lua.LValue = lua.LNil
	if len(f.Fields) > 0 {
		fields = toLua(L, f.Fields)
	}
	return args, fields
}
