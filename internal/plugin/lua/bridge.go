package lua

import (
	"fmt"
	"reflect"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Bridge converts values between Go and Lua for one LState.
type Bridge struct {
	L *lua.LState
}

// NewBridge creates a new Bridge for the given Lua state.
func NewBridge(L *lua.LState) *Bridge {
	return &Bridge{L: L}
}

// ToGoValue converts a Lua value to a Go value.
// Functions convert to nil; circular table references are cut.
func (b *Bridge) ToGoValue(lv lua.LValue) any {
	return b.toGo(lv, make(map[*lua.LTable]bool))
}

func (b *Bridge) toGo(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case nil, *lua.LNilType, *lua.LFunction:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LUserData:
		return v.Value
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return b.tableToGo(v, visited)
	default:
		return nil
	}
}

// tableToGo converts sequences to []any and everything else to map[string]any.
func (b *Bridge) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && n == count {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = b.toGo(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = b.toGo(v, visited)
	})
	return m
}

// visitKey identifies a pointer, slice or map being converted. The type is
// part of the key because a struct and its first field share an address.
type visitKey struct {
	ptr uintptr
	typ reflect.Type
}

// ToLuaValue converts a Go value to a Lua value.
// A reference back to a value still being converted becomes nil.
func (b *Bridge) ToLuaValue(v any) lua.LValue {
	return b.toLua(v, make(map[visitKey]bool))
}

func (b *Bridge) toLua(v any, visited map[visitKey]bool) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case error:
		return lua.LString(val.Error())
	default:
		return b.reflectToLua(reflect.ValueOf(v), visited)
	}
}

// enter marks rv as being converted. It reports false if rv is already on
// the conversion path.
func enter(rv reflect.Value, visited map[visitKey]bool) (visitKey, bool) {
	key := visitKey{ptr: rv.Pointer(), typ: rv.Type()}
	if visited[key] {
		return key, false
	}
	visited[key] = true
	return key, true
}

// reflectToLua handles the remaining numeric kinds, slices, maps, structs and
// pointers. Anything else is passed through as userdata.
func (b *Bridge) reflectToLua(rv reflect.Value, visited map[visitKey]bool) lua.LValue {
	if !rv.IsValid() {
		return lua.LNil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return lua.LBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.String:
		return lua.LString(rv.String())
	case reflect.Interface:
		if rv.IsNil() {
			return lua.LNil
		}
		return b.reflectToLua(rv.Elem(), visited)
	case reflect.Pointer:
		if rv.IsNil() {
			return lua.LNil
		}
		key, ok := enter(rv, visited)
		if !ok {
			return lua.LNil
		}
		defer delete(visited, key)
		return b.reflectToLua(rv.Elem(), visited)
	case reflect.Slice:
		if rv.Len() == 0 {
			return b.L.NewTable()
		}
		key, ok := enter(rv, visited)
		if !ok {
			return lua.LNil
		}
		defer delete(visited, key)
		return b.sequenceToTable(rv, visited)
	case reflect.Array:
		return b.sequenceToTable(rv, visited)
	case reflect.Map:
		if rv.IsNil() {
			return b.L.NewTable()
		}
		key, ok := enter(rv, visited)
		if !ok {
			return lua.LNil
		}
		defer delete(visited, key)
		t := b.L.NewTable()
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSet(b.toLua(iter.Key().Interface(), visited), b.toLua(iter.Value().Interface(), visited))
		}
		return t
	case reflect.Struct:
		return b.structToTable(rv, visited)
	default:
		ud := b.L.NewUserData()
		if rv.CanInterface() {
			ud.Value = rv.Interface()
		}
		return ud
	}
}

func (b *Bridge) sequenceToTable(rv reflect.Value, visited map[visitKey]bool) *lua.LTable {
	t := b.L.NewTable()
	for i := 0; i < rv.Len(); i++ {
		t.RawSetInt(i+1, b.toLua(rv.Index(i).Interface(), visited))
	}
	return t
}

// structToTable converts exported struct fields, honoring json tag names.
func (b *Bridge) structToTable(rv reflect.Value, visited map[visitKey]bool) *lua.LTable {
	t := b.L.NewTable()
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}
		t.RawSetString(name, b.toLua(rv.Field(i).Interface(), visited))
	}
	return t
}

// ErrorMessage renders a Lua error value as text. Tables use their
// "message" field when present.
func (b *Bridge) ErrorMessage(lv lua.LValue) string {
	if t, ok := lv.(*lua.LTable); ok {
		if msg, ok := t.RawGetString("message").(lua.LString); ok {
			return string(msg)
		}
	}
	if s, ok := lv.(lua.LString); ok {
		return string(s)
	}
	return fmt.Sprint(b.ToGoValue(lv))
}
