package lower

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/stretchr/testify/require"

	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/diag"
	"github.com/dusklang/dusk/compiler/front"
	"github.com/dusklang/dusk/compiler/semantic"
	"github.com/dusklang/dusk/compiler/symtab"
	"github.com/dusklang/dusk/compiler/target"
	"github.com/dusklang/dusk/compiler/types"
)

func lowerSrc(t *testing.T, emit Policy, srcs ...string) (*Lowerer, *ir.Module, *diag.Sink) {
	t.Helper()

	sink := diag.New()
	sink.Out = io.Discard
	sink.Color = false

	tc := types.NewContext(target.Default())
	set := symtab.NewSet(sink)
	set.Parse = front.Parse

	for _, src := range srcs {
		f, err := front.Parse(context.Background(), "test.dk", []byte(src))
		require.NoError(t, err)

		m := symtab.NewModule(ast.DottedName(f.Module), f.Name)
		m.Decls = f.Decls
		m.Root = true
		set.Add(m)
	}

	a := semantic.New(sink, tc, set)
	a.Run(context.Background())
	require.Equal(t, 0, sink.Errors())

	l := New(sink, tc, set, emit)
	m := l.Run(context.Background())

	return l, m, sink
}

func TestLowerFunctionAndGlobal(t *testing.T) {
	l, m, sink := lowerSrc(t, EmitNormal, `
module m;
var g int = 42;
func add(a int, b int) int { return a + b; }
func main() int { return add(g, 1); }
`)
	require.Equal(t, 0, sink.Errors())
	require.Len(t, l.funcs, 2)
	require.Len(t, l.globals, 1)

	ll := m.String()
	require.Contains(t, ll, "define i32 @main()")
	require.Contains(t, ll, "call i32")
}

func TestLowerControlFlow(t *testing.T) {
	_, m, sink := lowerSrc(t, EmitNormal, `
module m;
func collatz(n int) int {
	var steps int = 0;
	for (n > 1) {
		if (n % 2 == 0) {
			n = n / 2;
		} else {
			n = 3 * n + 1;
		}
		steps = steps + 1;
	}
	return steps;
}
`)
	require.Equal(t, 0, sink.Errors())

	ll := m.String()
	require.Contains(t, ll, "br i1")
	require.Contains(t, ll, "srem")
}

func TestLowerGoto(t *testing.T) {
	_, m, sink := lowerSrc(t, EmitNormal, `
module m;
func spin() int {
	var i int = 0;
again:
	i = i + 1;
	if (i < 10) {
		goto again;
	}
	return i;
}
`)
	require.Equal(t, 0, sink.Errors())
	require.Contains(t, m.String(), "br label %again")
}

func TestLowerShortCircuit(t *testing.T) {
	_, m, sink := lowerSrc(t, EmitNormal, `
module m;
func both(a int, b int) int {
	if (a > 0 && b > 0) {
		return 1;
	}
	return 0;
}
`)
	require.Equal(t, 0, sink.Errors())
	require.Contains(t, m.String(), "phi i1")
}

func TestLowerStringGlobal(t *testing.T) {
	l, m, sink := lowerSrc(t, EmitNormal, `
module m;
var greeting string = "hello";
`)
	require.Equal(t, 0, sink.Errors())
	require.Len(t, l.strs, 1)

	ll := m.String()
	require.Contains(t, ll, `c"hello\00"`)
	require.Contains(t, ll, ".Lstr")
}

func TestLowerTemplateInstanceLinkage(t *testing.T) {
	l, _, sink := lowerSrc(t, EmitNormal, `
module m;
template Twice(T) {
	func Twice(x T) T { return x + x; }
}
func use() int { return Twice!(int)(3); }
`)
	require.Equal(t, 0, sink.Errors())

	var inst *ir.Func
	for sym, f := range l.funcs {
		if sym.Kind == symtab.KFunc && sym.Parent != nil && sym.Parent.Kind == symtab.KInstance {
			inst = f
		}
	}
	require.NotNil(t, inst)
	require.Equal(t, enum.LinkageLinkOnceODR, inst.Linkage)
}

func TestLowerBoundsCheck(t *testing.T) {
	_, m, sink := lowerSrc(t, EmitNormal, `
module m;
func at(a []int, i int) int {
	return a[i];
}
`)
	require.Equal(t, 0, sink.Errors())

	ll := m.String()
	require.Contains(t, ll, "icmp ult")
	require.Contains(t, ll, "call void @llvm.trap()")
	require.Contains(t, ll, "unreachable")
}

func TestTrustedSkipsBoundsCheck(t *testing.T) {
	_, m, sink := lowerSrc(t, EmitNormal, `
module m;
trusted func at(a []int, i int) int {
	return a[i];
}
`)
	require.Equal(t, 0, sink.Errors())
	require.NotContains(t, m.String(), "llvm.trap")
}

func TestLowerAssert(t *testing.T) {
	_, m, sink := lowerSrc(t, EmitNormal, `
module m;
func f(n int) int {
	assert(n > 0, "positive");
	return n;
}
`)
	require.Equal(t, 0, sink.Errors())

	ll := m.String()
	require.Contains(t, ll, "call void @llvm.trap()")
}

func TestLowerAsm(t *testing.T) {
	_, m, sink := lowerSrc(t, EmitNormal, `
module m;
func pause() {
	asm { "pause" : : : "memory" };
}
func incr(x int) int {
	asm { "incl %0" : "+r"(x) : : "cc" };
	return x;
}
`)
	require.Equal(t, 0, sink.Errors())

	ll := m.String()
	require.Contains(t, ll, `asm sideeffect "pause", "~{memory}"`)
	require.Contains(t, ll, `"incl $0", "=r,0,~{cc}"`)
}

func TestLowerAsmMemoryOutput(t *testing.T) {
	_, m, sink := lowerSrc(t, EmitNormal, `
module m;
func store(y int) int {
	var x int;
	asm { "movl %1, %0" : "=m"(x) : "r"(y) };
	return x;
}
`)
	require.Equal(t, 0, sink.Errors())

	// writing through memory implies the memory clobber
	require.Contains(t, m.String(), `"movl $1, $0", "=*m,r,~{memory}"`)
}

func TestBindings(t *testing.T) {
	var b Bindings

	require.True(t, b.GlobalBindings())

	b.Push()
	require.True(t, b.GlobalBindings())

	x := symtab.NewVar("x", ast.Pos{}, nil)
	y := symtab.NewVar("y", ast.Pos{}, nil)

	ax := &ir.InstAlloca{}
	b.Bind(x, ax)

	b.Push()
	require.False(t, b.GlobalBindings())

	ay := &ir.InstAlloca{}
	b.Bind(y, ay)

	// shadowing: inner binding of x wins until the level pops
	ax2 := &ir.InstAlloca{}
	b.Bind(x, ax2)

	require.Same(t, ax2, b.Slot(x))
	require.Same(t, ay, b.Slot(y))

	vars := b.Pop()
	require.Equal(t, []*symtab.Symbol{y, x}, vars)

	require.Same(t, ax, b.Slot(x))
	require.Nil(t, b.Slot(y))
}

func newTestLowerer(t *testing.T) (*Lowerer, *types.Context, *diag.Sink) {
	t.Helper()

	sink := diag.New()
	sink.Out = io.Discard
	sink.Color = false

	tc := types.NewContext(target.Default())

	return New(sink, tc, symtab.NewSet(sink), EmitNormal), tc, sink
}

func TestMangleNative(t *testing.T) {
	l, tc, _ := newTestLowerer(t)

	sym := symtab.NewFunc("f", ast.Pos{}, nil)
	sym.Mod = symtab.NewModule("a.b", "a/b.dk")
	sym.Type = tc.Func([]*types.Type{tc.Int32}, tc.Void, false)

	want := "_Dk1a1b1f" + sym.Type.Deco()
	require.Equal(t, want, l.Mangle(sym))
}

func TestMangleMainAndExtern(t *testing.T) {
	l, tc, _ := newTestLowerer(t)

	main := symtab.NewFunc("main", ast.Pos{}, nil)
	main.Mod = symtab.NewModule("app", "app.dk")
	main.Type = tc.Func(nil, tc.Int32, false)
	require.Equal(t, "main", l.Mangle(main))

	ext := symtab.NewFunc("printf", ast.Pos{}, nil)
	ext.Storage = symtab.SExtern
	ext.Type = tc.Func([]*types.Type{tc.Pointer(tc.Char)}, tc.Int32, true)
	require.Equal(t, "printf", l.Mangle(ext))
}

func TestMangleCxx(t *testing.T) {
	l, tc, _ := newTestLowerer(t)

	sym := symtab.NewFunc("foo", ast.Pos{}, nil)
	sym.Foreign = "c++"
	sym.Type = tc.Func([]*types.Type{tc.Int32, tc.Int32}, tc.Void, false)
	require.Equal(t, "_Z3fooii", l.Mangle(sym))

	// repeated compound types substitute
	pi := tc.Pointer(tc.Int32)
	sub := symtab.NewFunc("bar", ast.Pos{}, nil)
	sub.Foreign = "c++"
	sub.Type = tc.Func([]*types.Type{pi, pi}, tc.Void, false)
	require.Equal(t, "_Z3barPiS_", l.Mangle(sub))

	void := symtab.NewFunc("baz", ast.Pos{}, nil)
	void.Foreign = "c++"
	void.Type = tc.Func(nil, tc.Void, false)
	require.Equal(t, "_Z3bazv", l.Mangle(void))
}

func TestMangleCxxUnrepresentable(t *testing.T) {
	l, tc, sink := newTestLowerer(t)

	// dynamic arrays have no C++ equivalent, the symbol cannot link
	sym := symtab.NewFunc("f", ast.Pos{}, nil)
	sym.Foreign = "c++"
	sym.Type = tc.Func([]*types.Type{tc.DArray(tc.Int32)}, tc.Void, false)

	l.Mangle(sym)
	require.NotEqual(t, 0, sink.Errors())
}

func TestDtIntLittleEndian(t *testing.T) {
	l, _, _ := newTestLowerer(t)

	var dl dtList
	l.dtInt(&dl, 0x01020304, 4)

	require.Len(t, dl.entries, 1)
	require.Equal(t, []byte{4, 3, 2, 1}, dl.entries[0].bytes)
	require.Equal(t, int64(4), dl.off)
}

func TestDtOffsetsAscend(t *testing.T) {
	l, _, _ := newTestLowerer(t)

	var dl dtList
	l.dtInt(&dl, 1, 4)
	dl.addZero(4)
	l.dtInt(&dl, 2, 8)

	prev := int64(-1)
	for _, e := range dl.entries {
		require.Greater(t, e.off, prev)
		prev = e.off
	}
	require.Equal(t, int64(16), dl.off)
}

func TestDtDuplicateUnionInit(t *testing.T) {
	l, tc, sink := newTestLowerer(t)

	it := tc.Int32
	agg := &types.Agg{
		Name:  "m.U",
		Union: true,
		Fields: []types.Field{
			{Name: "a", Type: it},
			{Name: "b", Type: it},
		},
		Size: 4, Align: 4, Sized: true,
	}
	ut := tc.Aggregate(agg)

	var dl dtList
	lit := &ast.StructLit{
		Names: []string{"a", "b"},
		Elems: []ast.Expr{
			&ast.IntLit{Val: 1, Typ: it},
			&ast.IntLit{Val: 2, Typ: it},
		},
	}
	l.dtStruct(&dl, ut, lit, ast.Pos{})

	require.NotEqual(t, 0, sink.Errors())
}

func TestDtFieldDefaults(t *testing.T) {
	l, _, sink := lowerSrc(t, EmitNormal, `
module m;
type P struct {
	x int = 7;
	y int;
}
var p P;
`)
	require.Equal(t, 0, sink.Errors())

	var g *ir.Global
	for _, gg := range l.globals {
		g = gg
	}
	require.NotNil(t, g)
	require.Contains(t, g.Init.String(), `c"\07\00\00\00"`)
}

func TestRewriteTemplate(t *testing.T) {
	out := rewriteTemplate("mov %1, %0; inc %%eax; l%=: cost $1",
		[]int{0, 1}, nil)
	require.Equal(t, "mov $1, $0; inc %eax; l${:uid}: cost $$1", out)

	out = rewriteTemplate("ld %[dst], %[src]", nil, map[string]int{"dst": 0, "src": 2})
	require.Equal(t, "ld $0, $2", out)
}

func TestHoistedArrayInit(t *testing.T) {
	_, m, sink := lowerSrc(t, EmitNormal, `
module m;
var tab [4]int = [1, 2, 3, 4];
var sl []int = cast([]int) [10, 20];
`)
	require.Equal(t, 0, sink.Errors())

	ll := m.String()
	require.Contains(t, ll, ".Larr")
	require.True(t, strings.Contains(ll, "internal"))
}
