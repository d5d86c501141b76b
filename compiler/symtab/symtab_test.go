package symtab

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/diag"
)

func quietSink() *diag.Sink {
	s := diag.New()
	s.Out = io.Discard
	s.Color = false

	return s
}

func TestDeclareAndLookup(t *testing.T) {
	sink := quietSink()

	m := NewModule("a", "a.dk")
	v := NewVar("x", ast.Pos{}, nil)
	require.True(t, m.Scope.Declare(sink, v))

	inner := NewScope(m.Scope, nil)
	require.Same(t, v, inner.Lookup(sink, "x"))
	require.Nil(t, inner.Lookup(sink, "y"))
	require.Equal(t, 0, sink.Errors())
}

func TestDuplicateDeclaration(t *testing.T) {
	sink := quietSink()

	m := NewModule("a", "a.dk")
	require.True(t, m.Scope.Declare(sink, NewVar("x", ast.Pos{}, nil)))
	require.False(t, m.Scope.Declare(sink, NewAggregate("x", ast.Pos{}, nil)))
	require.Equal(t, 1, sink.Errors())
}

func TestOverloadChaining(t *testing.T) {
	sink := quietSink()

	m := NewModule("a", "a.dk")
	f1 := NewFunc("f", ast.Pos{}, nil)
	f2 := NewFunc("f", ast.Pos{}, nil)
	f3 := NewFunc("f", ast.Pos{}, nil)

	require.True(t, m.Scope.Declare(sink, f1))
	require.True(t, m.Scope.Declare(sink, f2))
	require.True(t, m.Scope.Declare(sink, f3))
	require.Equal(t, 0, sink.Errors())

	set := m.Scope.Own("f").OverloadSet()
	require.Equal(t, []*Symbol{f1, f2, f3}, set)
}

func TestImportVisibility(t *testing.T) {
	sink := quietSink()

	// c declares x; b publicly imports c; a imports b privately.
	c := NewModule("c", "c.dk")
	cx := NewVar("x", ast.Pos{}, nil)
	c.Scope.Declare(sink, cx)

	b := NewModule("b", "b.dk")
	b.Imports = append(b.Imports, ImportEdge{Mod: c, Public: true})

	a := NewModule("a", "a.dk")
	a.Imports = append(a.Imports, ImportEdge{Mod: b})

	// x is visible in a through b's public import
	require.Same(t, cx, a.Scope.Lookup(sink, "x"))

	// but a's import of b is private: a module importing a must not see x
	d := NewModule("d", "d.dk")
	d.Imports = append(d.Imports, ImportEdge{Mod: a})
	require.Nil(t, d.Scope.Lookup(sink, "x"))
}

func TestAmbiguousImport(t *testing.T) {
	sink := quietSink()

	b := NewModule("b", "b.dk")
	b.Scope.Declare(sink, NewVar("x", ast.Pos{}, nil))

	c := NewModule("c", "c.dk")
	c.Scope.Declare(sink, NewVar("x", ast.Pos{}, nil))

	a := NewModule("a", "a.dk")
	a.Imports = append(a.Imports, ImportEdge{Mod: b}, ImportEdge{Mod: c})

	sym := a.Scope.Lookup(sink, "x")
	require.True(t, sym.IsError())
	require.Equal(t, 1, sink.Errors())
}

func TestSameSymbolThroughTwoPathsIsNotAmbiguous(t *testing.T) {
	sink := quietSink()

	c := NewModule("c", "c.dk")
	cx := NewVar("x", ast.Pos{}, nil)
	c.Scope.Declare(sink, cx)

	b := NewModule("b", "b.dk")
	b.Imports = append(b.Imports, ImportEdge{Mod: c, Public: true})

	a := NewModule("a", "a.dk")
	a.Imports = append(a.Imports, ImportEdge{Mod: b}, ImportEdge{Mod: c})

	require.Same(t, cx, a.Scope.Lookup(sink, "x"))
	require.Equal(t, 0, sink.Errors())
}
