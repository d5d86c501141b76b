package semantic

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/diag"
	"github.com/dusklang/dusk/compiler/front"
	"github.com/dusklang/dusk/compiler/symtab"
	"github.com/dusklang/dusk/compiler/target"
	"github.com/dusklang/dusk/compiler/types"
)

func analyze(t *testing.T, srcs ...string) (*Analyzer, *diag.Sink) {
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
		set.Add(m)
	}

	a := New(sink, tc, set)
	a.Run(context.Background())

	return a, sink
}

func module(a *Analyzer, name string) *symtab.Module {
	return a.Set.Lookup(name)
}

func TestGlobalVarTypes(t *testing.T) {
	a, sink := analyze(t, `
module m;
var x int;
var p *const(byte);
var s string;
var arr [2 + 2]int;
`)
	require.Equal(t, 0, sink.Errors())

	m := module(a, "m")

	require.Same(t, a.Types.Int32, m.Scope.Own("x").Type)

	p := m.Scope.Own("p").Type
	require.Equal(t, types.KPointer, p.Kind)
	require.Equal(t, types.QConst, p.Elem.Qual)

	s := m.Scope.Own("s").Type
	require.Equal(t, types.KDArray, s.Kind)
	require.Equal(t, types.KChar, s.Elem.Kind)
	require.NotZero(t, s.Elem.Qual&types.QImmutable)

	arr := m.Scope.Own("arr").Type
	require.Equal(t, types.KSArray, arr.Kind)
	require.EqualValues(t, 4, arr.Dim)
}

func TestAggregateLayoutThroughDecl(t *testing.T) {
	a, sink := analyze(t, `
module m;
type P struct {
	a byte;
	b int;
}
`)
	require.Equal(t, 0, sink.Errors())

	agg := module(a, "m").Scope.Own("P").Aggregate().Agg
	require.True(t, agg.Sized)
	require.EqualValues(t, 8, agg.Size)
	require.EqualValues(t, 0, agg.Fields[0].Offset)
	require.EqualValues(t, 4, agg.Fields[1].Offset)
}

func TestCircularAggregateIsError(t *testing.T) {
	_, sink := analyze(t, `
module m;
type A struct {
	b B;
}
type B struct {
	a A;
}
`)
	require.NotEqual(t, 0, sink.Errors())
}

func TestPointerBreaksAggregateCycle(t *testing.T) {
	a, sink := analyze(t, `
module m;
type Node struct {
	next *Node;
	val  int;
}
`)
	require.Equal(t, 0, sink.Errors())

	agg := module(a, "m").Scope.Own("Node").Aggregate().Agg
	require.EqualValues(t, 16, agg.Size)
}

func TestOverloadPicksExact(t *testing.T) {
	a, sink := analyze(t, `
module m;
func f(x int) int { return 1; }
func f(x long) int { return 2; }
var r int = f(3);
`)
	require.Equal(t, 0, sink.Errors())

	m := module(a, "m")
	set := m.Scope.Own("f").OverloadSet()
	require.Len(t, set, 2)

	init := m.Scope.Own("r").Var().Init
	call := init.(*ast.Call)
	require.Same(t, set[0], call.Fn.(*ast.Ident).Sym)
}

func TestOverloadAmbiguousFromShort(t *testing.T) {
	_, sink := analyze(t, `
module m;
func f(x int) int { return 1; }
func f(x long) int { return 2; }
var s short;
func g() int { return f(s); }
`)
	require.NotEqual(t, 0, sink.Errors())
}

func TestTemplateInstanceMemoized(t *testing.T) {
	a, sink := analyze(t, `
module m;
template Box(T) {
	type Box struct {
		val T;
	}
}
var a Box!(int);
var b Box!(int);
var c Box!(long);
`)
	require.Equal(t, 0, sink.Errors())

	m := module(a, "m")
	require.Same(t, m.Scope.Own("a").Type, m.Scope.Own("b").Type)
	require.NotSame(t, m.Scope.Own("a").Type, m.Scope.Own("c").Type)

	tpl := m.Scope.Own("Box").Template()
	require.Len(t, tpl.Instances, 2)
}

func TestTemplateSpecializationRejectsMismatch(t *testing.T) {
	_, sink := analyze(t, `
module m;
template Deref(T: *int) {
	var Deref int;
}
var bad Deref!(double);
`)
	require.NotEqual(t, 0, sink.Errors())
}

func TestVersionBlocks(t *testing.T) {
	a, sink := analyze(t, `
module m;
version(LittleEndian) {
	var le int;
} else {
	var be int;
}
version(NoSuchIdent) {
	var hidden int;
}
`)
	require.Equal(t, 0, sink.Errors())

	m := module(a, "m")
	require.NotNil(t, m.Scope.Own("le"))
	require.Nil(t, m.Scope.Own("be"))
	require.Nil(t, m.Scope.Own("hidden"))
}

func TestErrorRecoveryContinuesAnalysis(t *testing.T) {
	a, sink := analyze(t, `
module m;
var bad unknown_type;
var ok int = 1;
`)
	require.Equal(t, 1, sink.Errors())

	m := module(a, "m")
	require.True(t, m.Scope.Own("bad").Type.IsError())
	require.Same(t, a.Types.Int32, m.Scope.Own("ok").Type)
}

func TestAssignToImmutableIsError(t *testing.T) {
	_, sink := analyze(t, `
module m;
var x immutable(int);
func f() {
	x = 1;
}
`)
	require.NotEqual(t, 0, sink.Errors())
}

func TestImplicitConversionInserted(t *testing.T) {
	a, sink := analyze(t, `
module m;
var x long = 1;
`)
	require.Equal(t, 0, sink.Errors())

	init := module(a, "m").Scope.Own("x").Var().Init
	c, ok := init.(*ast.Cast)
	require.True(t, ok)
	require.Same(t, a.Types.Int64, c.Typ)
}

func TestConstantIndexOutOfBounds(t *testing.T) {
	_, sink := analyze(t, `
module m;
var tab [4]int;
func f() int { return tab[4]; }
`)
	require.NotEqual(t, 0, sink.Errors())
}

func TestBoundsCheckMarksDynamicIndexes(t *testing.T) {
	a, sink := analyze(t, `
module m;
var tab [4]int;
func plain(i int) int { return tab[i]; }
trusted func fast(i int) int { return tab[i]; }
func fixed() int { return tab[2]; }
`)
	require.Equal(t, 0, sink.Errors())

	m := module(a, "m")

	ret := func(name string) *ast.Index {
		d := m.Scope.Own(name).Func().Decl
		return d.Body.Stmts[0].(*ast.Return).Value.(*ast.Index)
	}

	require.True(t, ret("plain").Check)
	require.False(t, ret("fast").Check)
	require.False(t, ret("fixed").Check)
}

func TestAssertMessageMustBeConstant(t *testing.T) {
	_, sink := analyze(t, `
module m;
var s string;
func f(n int) {
	assert(n > 0, s);
}
`)
	require.NotEqual(t, 0, sink.Errors())
}

func TestGotoUndefinedLabel(t *testing.T) {
	_, sink := analyze(t, `
module m;
func f() {
	goto nowhere;
}
`)
	require.NotEqual(t, 0, sink.Errors())
}

func TestAsmValidation(t *testing.T) {
	a, sink := analyze(t, `
module m;
func f() int {
	var x int;
	asm {
		"mov $1, %0"
		: "=r"(x)
		:
		: "memory"
	}
	return x;
}
`)
	require.Equal(t, 0, sink.Errors())
	require.Equal(t, 0, sink.Warnings())

	fi := module(a, "m").Scope.Own("f").Func()
	require.True(t, fi.UsesAsm)
}

func TestAsmNonConstantConstraint(t *testing.T) {
	_, sink := analyze(t, `
module m;
var c string;
func f() {
	var x int;
	asm {
		"nop"
		: c(x)
	}
}
`)
	require.NotEqual(t, 0, sink.Errors())
}
