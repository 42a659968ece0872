package plugin

import (
	glua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/hookline/internal/hook"
)

// moduleName is the module hook files require for host helpers.
const moduleName = "hookline"

// module builds the "hookline" module for the hook file at path.
//
//	local hl = require("hookline")
//	hl.info("saving", "user", name)
//	hl.PRE, hl.MAIN, hl.POST, hl.file
func (l *Loader) module(path string) glua.LGFunction {
	logger := l.logger.With(zap.String("source", path))

	logFn := func(emit func(string, ...zap.Field)) glua.LGFunction {
		return func(L *glua.LState) int {
			msg := L.CheckString(1)
			var fields []zap.Field
			for i := 2; i+1 <= L.GetTop(); i += 2 {
				fields = append(fields, zap.String(L.CheckString(i), L.Get(i+1).String()))
			}
			emit(msg, fields...)
			return 0
		}
	}

	return func(L *glua.LState) int {
		mod := L.SetFuncs(L.NewTable(), map[string]glua.LGFunction{
			"debug": logFn(logger.Debug),
			"info":  logFn(logger.Info),
			"warn":  logFn(logger.Warn),
			"error": logFn(logger.Error),
		})
		L.SetField(mod, "PRE", glua.LString(hook.PhasePre))
		L.SetField(mod, "MAIN", glua.LString(hook.PhaseMain))
		L.SetField(mod, "POST", glua.LString(hook.PhasePost))
		L.SetField(mod, "file", glua.LString(path))
		L.Push(mod)
		return 1
	}
}
