package lua

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	glua "github.com/yuin/gopher-lua"
)

func writeLua(t *testing.T, code string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk.lua")
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewState(t *testing.T) {
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	defer state.Close()

	if err := state.DoString(`x = 1`); err != nil {
		t.Errorf("DoString() on new state error = %v", err)
	}
	if state.Sandbox() == nil {
		t.Error("Sandbox() is nil")
	}
}

func TestStateLoadReturnsValue(t *testing.T) {
	state, _ := NewState()
	defer state.Close()

	v, err := state.Load(writeLua(t, `return function(ctx, next) next(nil, 1) end`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if v.Type() != glua.LTFunction {
		t.Errorf("Load() type = %s, want function", v.Type())
	}
}

func TestStateLoadNoReturn(t *testing.T) {
	state, _ := NewState()
	defer state.Close()

	_, err := state.Load(writeLua(t, `local x = 1`))
	if !errors.Is(err, ErrNoReturnValue) {
		t.Errorf("Load() error = %v, want ErrNoReturnValue", err)
	}
}

func TestStateLoadSyntaxError(t *testing.T) {
	state, _ := NewState()
	defer state.Close()

	if _, err := state.Load(writeLua(t, `return function(`)); err == nil {
		t.Error("Load() expected syntax error")
	}
}

func TestStateExecutionTimeout(t *testing.T) {
	state, _ := NewState(WithExecutionTimeout(50 * time.Millisecond))
	defer state.Close()

	start := time.Now()
	err := state.DoString(`while true do end`)
	if err == nil {
		t.Fatal("DoString() expected timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout took %v", time.Since(start))
	}
}

func TestStateClosed(t *testing.T) {
	state, _ := NewState()
	if err := state.Close(); err != nil {
		t.Fatal(err)
	}
	if err := state.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := state.DoString(`x = 1`); !errors.Is(err, ErrStateClosed) {
		t.Errorf("DoString() after Close error = %v, want ErrStateClosed", err)
	}
}

func TestStateWithModule(t *testing.T) {
	state, _ := NewState(WithModule("greeting", func(L *glua.LState) int {
		mod := L.NewTable()
		L.SetField(mod, "text", glua.LString("hi"))
		L.Push(mod)
		return 1
	}))
	defer state.Close()

	v, err := state.Load(writeLua(t, `return require("greeting").text`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if v.String() != "hi" {
		t.Errorf("module text = %q, want hi", v.String())
	}
}

func TestStateInvokeRecoversPanic(t *testing.T) {
	state, _ := NewState()
	defer state.Close()

	err := state.Invoke(func(*glua.LState) error { panic("bad") })
	if err == nil || !strings.Contains(err.Error(), "lua panic") {
		t.Errorf("Invoke() error = %v, want lua panic", err)
	}
}
