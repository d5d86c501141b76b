package front

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dusklang/dusk/compiler/ast"
)

func parseOne(t *testing.T, src string) *ast.File {
	t.Helper()

	f, err := Parse(context.Background(), "test.dk", []byte(src))
	require.NoError(t, err)

	return f
}

func TestModuleAndImports(t *testing.T) {
	f := parseOne(t, `
module a.b;

import core.io;
public import core.mem;
`)

	require.Equal(t, []string{"a", "b"}, f.Module)
	require.Len(t, f.Decls, 2)

	imp := f.Decls[0].(*ast.Import)
	require.Equal(t, []string{"core", "io"}, imp.Path)
	require.False(t, imp.Public)

	imp = f.Decls[1].(*ast.Import)
	require.Equal(t, []string{"core", "mem"}, imp.Path)
	require.True(t, imp.Public)
}

func TestModuleNameDefaultsToFileStem(t *testing.T) {
	f, err := Parse(context.Background(), "dir/hello.dk", []byte("var x int;"))
	require.NoError(t, err)
	require.Equal(t, []string{"hello"}, f.Module)
}

func TestVarDecl(t *testing.T) {
	f := parseOne(t, `
var a int;
var b *const(byte) = c;
extern "c++" var d [4]int;
`)

	require.Len(t, f.Decls, 3)

	v := f.Decls[0].(*ast.VarDecl)
	require.Equal(t, "a", v.Name)
	require.Equal(t, []string{"int"}, v.Type.(*ast.NameType).Path)
	require.Nil(t, v.Init)

	v = f.Decls[1].(*ast.VarDecl)
	pt := v.Type.(*ast.PtrType)
	qt := pt.Elem.(*ast.QualType)
	require.Equal(t, "const", qt.Qual)
	require.NotNil(t, v.Init)

	v = f.Decls[2].(*ast.VarDecl)
	require.True(t, v.Extern)
	require.Equal(t, "c++", v.Foreign)
	require.IsType(t, &ast.ArrType{}, v.Type)
}

func TestFuncDecl(t *testing.T) {
	f := parseOne(t, `
func add(a int, b int) int {
	return a + b;
}

extern func write(fd int, buf *byte, n uint, ...) long;
`)

	fn := f.Decls[0].(*ast.FuncDecl)
	require.Equal(t, "add", fn.Name)
	require.Len(t, fn.Params, 2)
	require.NotNil(t, fn.Ret)
	require.Len(t, fn.Body.Stmts, 1)

	ret := fn.Body.Stmts[0].(*ast.Return)
	bin := ret.Value.(*ast.Binary)
	require.Equal(t, "+", bin.Op)

	fn = f.Decls[1].(*ast.FuncDecl)
	require.True(t, fn.Extern)
	require.True(t, fn.Variadic)
	require.Nil(t, fn.Body)
}

func TestAggDecl(t *testing.T) {
	f := parseOne(t, `
type Point struct {
	x int;
	y int = 1;
	align(8) z byte;
}

type U union {
	i int;
	f float;
}
`)

	agg := f.Decls[0].(*ast.AggDecl)
	require.Equal(t, ast.AggStruct, agg.Kind)
	require.Len(t, agg.Fields, 3)
	require.NotNil(t, agg.Fields[1].Init)
	require.Equal(t, 8, agg.Fields[2].Align)

	agg = f.Decls[1].(*ast.AggDecl)
	require.Equal(t, ast.AggUnion, agg.Kind)
}

func TestAliasDecl(t *testing.T) {
	f := parseOne(t, `type size_t = ulong;`)

	a := f.Decls[0].(*ast.AliasDecl)
	require.Equal(t, "size_t", a.Name)
	require.Equal(t, []string{"ulong"}, a.Target.(*ast.NameType).Path)
}

func TestTemplateDecl(t *testing.T) {
	f := parseOne(t, `
template Box(T, U: *int) {
	var val T;
}
`)

	tp := f.Decls[0].(*ast.TemplateDecl)
	require.Equal(t, "Box", tp.Name)
	require.Len(t, tp.Params, 2)
	require.Nil(t, tp.Params[0].Spec)
	require.IsType(t, &ast.PtrType{}, tp.Params[1].Spec)
	require.Len(t, tp.Body, 1)
}

func TestTemplateInstType(t *testing.T) {
	f := parseOne(t, `var b Box!(int);`)

	v := f.Decls[0].(*ast.VarDecl)
	it := v.Type.(*ast.InstType)
	require.Equal(t, []string{"Box"}, it.Name)
	require.Len(t, it.Args, 1)
}

func TestVersionBlock(t *testing.T) {
	f := parseOne(t, `
version(LittleEndian) {
	var order int;
} else {
	var order long;
}

debug(2) {
	var trace int;
}
`)

	v := f.Decls[0].(*ast.VersionBlock)
	require.False(t, v.Debug)
	require.Equal(t, "LittleEndian", v.Ident)
	require.Len(t, v.Then, 1)
	require.Len(t, v.Else, 1)

	v = f.Decls[1].(*ast.VersionBlock)
	require.True(t, v.Debug)
	require.EqualValues(t, 2, v.Level)
	require.Nil(t, v.Else)
}

func TestExprPrecedence(t *testing.T) {
	f := parseOne(t, `var x int = a + b * c == d && e;`)

	v := f.Decls[0].(*ast.VarDecl)

	and := v.Init.(*ast.Binary)
	require.Equal(t, "&&", and.Op)

	eq := and.X.(*ast.Binary)
	require.Equal(t, "==", eq.Op)

	add := eq.X.(*ast.Binary)
	require.Equal(t, "+", add.Op)

	mul := add.Y.(*ast.Binary)
	require.Equal(t, "*", mul.Op)
}

func TestPostfixChain(t *testing.T) {
	f := parseOne(t, `var x int = p.q.f(1)[2];`)

	v := f.Decls[0].(*ast.VarDecl)

	idx := v.Init.(*ast.Index)
	call := idx.X.(*ast.Call)
	sel := call.Fn.(*ast.Selector)
	require.Equal(t, "f", sel.Name)
	require.Equal(t, "q", sel.X.(*ast.Selector).Name)
}

func TestCast(t *testing.T) {
	f := parseOne(t, `var x int = cast(*byte) p;`)

	v := f.Decls[0].(*ast.VarDecl)
	c := v.Init.(*ast.Cast)
	require.IsType(t, &ast.PtrType{}, c.To)
	require.IsType(t, &ast.Ident{}, c.X)
}

func TestCompositeLiterals(t *testing.T) {
	f := parseOne(t, `
var p Point = Point{1, y: 2};
var a [3]int = [10, 2: 30];
`)

	v := f.Decls[0].(*ast.VarDecl)
	sl := v.Init.(*ast.StructLit)
	require.Equal(t, []string{"", "y"}, sl.Names)
	require.Len(t, sl.Elems, 2)

	v = f.Decls[1].(*ast.VarDecl)
	al := v.Init.(*ast.ArrayLit)
	require.Len(t, al.Elems, 2)
	require.Nil(t, al.Indexes[0])
	require.NotNil(t, al.Indexes[1])
}

func TestStatements(t *testing.T) {
	f := parseOne(t, `
func g() {
	var n int = 0;
	if (n == 0) {
		n = 1;
	} else if (n == 1) {
		n = 2;
	} else {
		n = 3;
	}
	for (n < 10) {
		n = n + 1;
	}
loop:
	goto loop;
}
`)

	fn := f.Decls[0].(*ast.FuncDecl)
	require.Len(t, fn.Body.Stmts, 5)

	require.IsType(t, &ast.VarDecl{}, fn.Body.Stmts[0])

	ifs := fn.Body.Stmts[1].(*ast.If)
	elif := ifs.Else.(*ast.If)
	require.IsType(t, &ast.Block{}, elif.Else)

	require.IsType(t, &ast.For{}, fn.Body.Stmts[2])
	require.IsType(t, &ast.Label{}, fn.Body.Stmts[3])
	require.IsType(t, &ast.Goto{}, fn.Body.Stmts[4])
}

func TestAssertStatement(t *testing.T) {
	f := parseOne(t, `
func f(n int) {
	assert(n > 0);
	assert(n < 10, "n too large");
}
`)

	fn := f.Decls[0].(*ast.FuncDecl)
	require.Len(t, fn.Body.Stmts, 2)

	a := fn.Body.Stmts[0].(*ast.Assert)
	require.IsType(t, &ast.Binary{}, a.Cond)
	require.Nil(t, a.Msg)

	a = fn.Body.Stmts[1].(*ast.Assert)
	require.Equal(t, "n too large", a.Msg.(*ast.StrLit).Val)
}

func TestAsm(t *testing.T) {
	f := parseOne(t, `
func h() {
	asm {
		"mov %1, %0"
		: "=r"(dst), [src] "r"(a)
		: "m"(b)
		: "memory", "cc"
	}
}
`)

	fn := f.Decls[0].(*ast.FuncDecl)
	a := fn.Body.Stmts[0].(*ast.Asm)

	require.Equal(t, "mov %1, %0", a.Template.(*ast.StrLit).Val)
	require.Len(t, a.Args, 3)
	require.Equal(t, 2, a.NOut)
	require.Equal(t, "src", a.Args[1].Name)
	require.Len(t, a.Clobbers, 2)
	require.Equal(t, "memory", a.Clobbers[0].(*ast.StrLit).Val)
}

func TestFuncTypes(t *testing.T) {
	f := parseOne(t, `var cb func(int, *byte) int;`)

	v := f.Decls[0].(*ast.VarDecl)
	ft := v.Type.(*ast.FuncType)
	require.Len(t, ft.Params, 2)
	require.NotNil(t, ft.Ret)
}

func TestMapType(t *testing.T) {
	f := parseOne(t, `var m map[string]int;`)

	v := f.Decls[0].(*ast.VarDecl)
	mt := v.Type.(*ast.MapType)
	require.Equal(t, []string{"string"}, mt.Key.(*ast.NameType).Path)
}

func TestParseErrorsCarryPosition(t *testing.T) {
	_, err := Parse(context.Background(), "bad.dk", []byte("\n\nvar ;"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad.dk:3")
}
