package bot

import (
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// LuaPolicy delegates decisions to a script defining
//
//	function firm_move(view)        return position, price end
//	function customer_choice(view)  return extra_view, firm end
//
// Views are tables with the fields of FirmView and CustomerView in
// snake_case; firm lists are 1-based Lua arrays, firm indices returned by
// customer_choice are 0-based with -1 for no purchase.
type LuaPolicy struct {
	mu sync.Mutex
	L  *lua.LState
}

// LoadLuaPolicy runs the script at path.
func LoadLuaPolicy(path string) (*LuaPolicy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lua policy: %w", err)
	}
	return NewLuaPolicy(string(src))
}

// luaLibs are the libraries a policy script may use. Scripts get no access
// to files or the process.
var luaLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

func newLuaState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range luaLibs {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// NewLuaPolicy runs src and checks it defines both decision functions.
func NewLuaPolicy(src string) (*LuaPolicy, error) {
	L := newLuaState()
	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("load lua policy: %w", err)
	}
	for _, name := range []string{"firm_move", "customer_choice"} {
		if L.GetGlobal(name).Type() != lua.LTFunction {
			L.Close()
			return nil, fmt.Errorf("lua policy does not define %s", name)
		}
	}
	return &LuaPolicy{L: L}, nil
}

// Close releases the interpreter.
func (p *LuaPolicy) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.L.Close()
}

func (p *LuaPolicy) FirmMove(v FirmView) (int, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.L.NewTable()
	t.RawSetString("turn", lua.LNumber(v.Turn))
	t.RawSetString("position", lua.LNumber(v.Position))
	t.RawSetString("price", lua.LNumber(v.Price))
	t.RawSetString("opponent_known", lua.LBool(v.OpponentKnown))
	t.RawSetString("opponent_position", lua.LNumber(v.OpponentPosition))
	t.RawSetString("opponent_price", lua.LNumber(v.OpponentPrice))
	t.RawSetString("n_positions", lua.LNumber(v.Positions))
	t.RawSetString("n_prices", lua.LNumber(v.Prices))
	return p.call("firm_move", t)
}

func (p *LuaPolicy) CustomerChoice(v CustomerView) (int, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.L.NewTable()
	t.RawSetString("turn", lua.LNumber(v.Turn))
	t.RawSetString("position", lua.LNumber(v.Position))
	t.RawSetString("exploration_cost", lua.LNumber(v.ExplorationCost))
	t.RawSetString("utility_consumption", lua.LNumber(v.UtilityConsumption))
	t.RawSetString("firm_positions", p.array(v.FirmPositions))
	t.RawSetString("firm_prices", p.array(v.FirmPrices))
	t.RawSetString("n_positions", lua.LNumber(v.Positions))
	return p.call("customer_choice", t)
}

func (p *LuaPolicy) array(values []int) *lua.LTable {
	t := p.L.NewTable()
	for _, v := range values {
		t.Append(lua.LNumber(v))
	}
	return t
}

func (p *LuaPolicy) call(name string, view *lua.LTable) (int, int, error) {
	err := p.L.CallByParam(lua.P{
		Fn:      p.L.GetGlobal(name),
		NRet:    2,
		Protect: true,
	}, view)
	if err != nil {
		return 0, 0, fmt.Errorf("lua %s: %w", name, err)
	}
	a, b := p.L.Get(-2), p.L.Get(-1)
	p.L.Pop(2)

	x, ok := a.(lua.LNumber)
	if !ok {
		return 0, 0, fmt.Errorf("lua %s: first result is %s, not a number", name, a.Type())
	}
	y, ok := b.(lua.LNumber)
	if !ok {
		return 0, 0, fmt.Errorf("lua %s: second result is %s, not a number", name, b.Type())
	}
	return int(x), int(y), nil
}
