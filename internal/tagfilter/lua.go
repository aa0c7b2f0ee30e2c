package tagfilter

import (
	"fmt"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/wegman-software/osmindex-go/internal/element"
)

// LuaFilter runs a script defining
//
//	function filter_tags(kind, id, tags) ... end
//
// where tags is a key → value table. The function returns the table of
// tags to keep; nil keeps none.
type LuaFilter struct {
	mu sync.Mutex
	L  *lua.LState
	fn lua.LValue
}

// LoadLua loads a filter script from a file.
func LoadLua(path string) (*LuaFilter, error) {
	f := newLua()
	if err := f.L.DoFile(path); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to load Lua file: %w", err)
	}
	if err := f.bind(); err != nil {
		return nil, err
	}
	return f, nil
}

// NewLua loads a filter script from source.
func NewLua(code string) (*LuaFilter, error) {
	f := newLua()
	if err := f.L.DoString(code); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to load Lua code: %w", err)
	}
	if err := f.bind(); err != nil {
		return nil, err
	}
	return f, nil
}

func newLua() *LuaFilter {
	return &LuaFilter{L: lua.NewState(lua.Options{SkipOpenLibs: false})}
}

func (f *LuaFilter) bind() error {
	f.fn = f.L.GetGlobal("filter_tags")
	if f.fn.Type() != lua.LTFunction {
		f.Close()
		return fmt.Errorf("lua filter does not define filter_tags")
	}
	return nil
}

// Close releases Lua resources
func (f *LuaFilter) Close() {
	f.L.Close()
}

// Filter calls filter_tags. Returned tags are sorted by key.
func (f *LuaFilter) Filter(kind element.Kind, id element.ID, tags []element.Tag) ([]element.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	L := f.L
	in := L.NewTable()
	for _, t := range tags {
		in.RawSetString(t.Key, lua.LString(t.Value))
	}

	if err := L.CallByParam(lua.P{
		Fn:      f.fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(kind.String()), lua.LNumber(id), in); err != nil {
		return nil, fmt.Errorf("lua filter error for %s %d: %w", kind, id, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	if ret == lua.LNil {
		return nil, nil
	}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("lua filter returned %s for %s %d", ret.Type(), kind, id)
	}
	var out []element.Tag
	tbl.ForEach(func(k, v lua.LValue) {
		ks, ok := k.(lua.LString)
		if !ok {
			return
		}
		out = append(out, element.Tag{Key: string(ks), Value: L.ToStringMeta(v).String()})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
