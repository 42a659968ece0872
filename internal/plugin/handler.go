package plugin

import (
	"errors"

	glua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/hookline/internal/hook"
	"github.com/dshills/hookline/internal/plugin/lua"
)

// luaHandler adapts a Lua function to a hook.Handler.
// The Lua function is called as fn(ctx, args..., next, prev).
func (l *Loader) luaHandler(path string, state *lua.State, fn *glua.LFunction) hook.Handler {
	return func(call *hook.Call, next hook.Next) {
		fired := false

		err := state.Invoke(func(L *glua.LState) error {
			bridge := lua.NewBridge(L)
			active := true
			defer func() { active = false }()

			cont := L.NewFunction(func(L *glua.LState) int {
				if !active {
					L.RaiseError("next called after its handler returned")
					return 0
				}
				if fired {
					L.RaiseError("next called more than once")
					return 0
				}
				fired = true

				var herr error
				if ev := L.Get(1); glua.LVAsBool(ev) {
					herr = &ScriptError{Path: path, Message: bridge.ErrorMessage(ev)}
				}
				next(herr, bridge.ToGoValue(L.Get(2)))
				return 0
			})

			args := make([]glua.LValue, 0, len(call.Args)+3)
			args = append(args, bridge.ToLuaValue(call.Context))
			for _, a := range call.Args {
				args = append(args, bridge.ToLuaValue(a))
			}
			args = append(args, cont, bridge.ToLuaValue(call.Prev))

			L.Push(fn)
			for _, a := range args {
				L.Push(a)
			}
			if err := L.PCall(len(args), 0, nil); err != nil {
				var apiErr *glua.ApiError
				if errors.As(err, &apiErr) && apiErr.Object != nil {
					return &ScriptError{Path: path, Message: bridge.ErrorMessage(apiErr.Object)}
				}
				return err
			}
			return nil
		})

		if err == nil {
			return
		}
		if !fired {
			var se *ScriptError
			if !errors.As(err, &se) {
				se = &ScriptError{Path: path, Message: err.Error()}
			}
			next(se, nil)
			return
		}
		l.logger.Warn("hook script failed after calling next",
			zap.String("path", path),
			zap.String("hook", call.Hook),
			zap.Error(err),
		)
	}
}
