package semantic

import (
	"context"

	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/symtab"
	"github.com/dusklang/dusk/compiler/types"
)

// srcBasics maps surface type names to context accessors. The D-flavored
// integer names keep sizes explicit: byte is 8 bits signed, long 64 bits.
var srcBasics = map[string]func(c *types.Context) *types.Type{
	"void":   func(c *types.Context) *types.Type { return c.Void },
	"bool":   func(c *types.Context) *types.Type { return c.Bool },
	"char":   func(c *types.Context) *types.Type { return c.Char },
	"byte":   func(c *types.Context) *types.Type { return c.Int8 },
	"ubyte":  func(c *types.Context) *types.Type { return c.Uint8 },
	"short":  func(c *types.Context) *types.Type { return c.Int16 },
	"ushort": func(c *types.Context) *types.Type { return c.Uint16 },
	"int":    func(c *types.Context) *types.Type { return c.Int32 },
	"uint":   func(c *types.Context) *types.Type { return c.Uint32 },
	"long":   func(c *types.Context) *types.Type { return c.Int64 },
	"ulong":  func(c *types.Context) *types.Type { return c.Uint64 },
	"float":  func(c *types.Context) *types.Type { return c.Float32 },
	"double": func(c *types.Context) *types.Type { return c.Float64 },
	"valist": func(c *types.Context) *types.Type { return c.Valist },
}

// resolveType resolves a syntactic type reference to a canonical type.
// Failures are reported to the sink and recovered with the error type.
func (a *Analyzer) resolveType(ctx context.Context, sc *symtab.Scope, te ast.TypeExpr) *types.Type {
	switch te := te.(type) {
	case nil:
		return a.Types.Error

	case *ast.NameType:
		return a.resolveNamed(ctx, sc, te.Pos, te.Path)

	case *ast.PtrType:
		return a.Types.Pointer(a.resolveType(ctx, sc, te.Elem))

	case *ast.SliceType:
		return a.Types.DArray(a.resolveType(ctx, sc, te.Elem))

	case *ast.ArrType:
		el := a.resolveType(ctx, sc, te.Elem)

		a.exprSem(ctx, sc, te.Dim)
		dim, ok := foldInt(te.Dim)
		if !ok || dim < 0 {
			a.Sink.Errorf(te.Pos, "array dimension must be a non-negative integer constant")
			return a.Types.Error
		}

		return a.Types.SArray(el, dim)

	case *ast.MapType:
		key := a.resolveType(ctx, sc, te.Key)
		val := a.resolveType(ctx, sc, te.Val)

		return a.Types.AArray(key, val)

	case *ast.FuncType:
		in := make([]*types.Type, len(te.Params))
		for i, p := range te.Params {
			in[i] = a.resolveType(ctx, sc, p)
		}

		ret := a.Types.Void
		if te.Ret != nil {
			ret = a.resolveType(ctx, sc, te.Ret)
		}

		return a.Types.Func(in, ret, te.Variadic)

	case *ast.QualType:
		t := a.resolveType(ctx, sc, te.Elem)

		switch te.Qual {
		case "const":
			return a.Types.Qualify(t, types.QConst)
		case "immutable":
			// immutable implies const transitively
			return a.Types.Qualify(t, types.QImmutable|types.QConst)
		case "shared":
			return a.Types.Qualify(t, types.QShared)
		}

		a.Sink.InternalErrorf("unknown qualifier %v", te.Qual)
		return t

	case *ast.InstType:
		inst := a.instantiateNamed(ctx, sc, te.Pos, te.Name, te.Args)
		if inst.IsError() {
			return a.Types.Error
		}

		return a.instanceType(te.Pos, inst)
	}

	a.Sink.InternalErrorf("unhandled type expression %T", te)
	return a.Types.Error
}

// resolveNamed resolves a possibly dotted name to a type.
func (a *Analyzer) resolveNamed(ctx context.Context, sc *symtab.Scope, pos ast.Pos, path []string) *types.Type {
	if len(path) == 1 {
		if path[0] == "string" {
			// string is []immutable(char)
			return a.Types.DArray(a.Types.Qualify(a.Types.Char, types.QImmutable|types.QConst))
		}

		if mk, ok := srcBasics[path[0]]; ok {
			return mk(a.Types)
		}
	}

	sym := a.lookupPath(sc, pos, path)
	if sym.IsError() {
		return a.Types.Error
	}

	return a.symType(ctx, pos, sym)
}

// lookupPath resolves a dotted symbol reference: a plain name in the scope
// chain, or a module-qualified name.
func (a *Analyzer) lookupPath(sc *symtab.Scope, pos ast.Pos, path []string) *symtab.Symbol {
	if len(path) == 1 {
		sym := sc.Lookup(a.Sink, path[0])
		if sym == nil {
			a.Sink.Errorf(pos, "undefined identifier %v", path[0])
			return symtab.NewError(path[0], pos)
		}

		return sym
	}

	if m := a.Set.Lookup(ast.DottedName(path[:len(path)-1])); m != nil {
		sym := m.Scope.Own(path[len(path)-1])
		if sym == nil {
			a.Sink.Errorf(pos, "module %v has no member %v", m.Name, path[len(path)-1])
			return symtab.NewError(path[len(path)-1], pos)
		}

		return sym
	}

	a.Sink.Errorf(pos, "undefined identifier %v", ast.DottedName(path))
	return symtab.NewError(ast.DottedName(path), pos)
}

// symType reads a symbol as a type, forcing its signature pass first.
func (a *Analyzer) symType(ctx context.Context, pos ast.Pos, sym *symtab.Symbol) *types.Type {
	a.resolve(ctx, sym, 0)

	switch sym.Kind {
	case symtab.KAggregate, symtab.KAlias:
		if sym.Type == nil {
			return a.Types.Error
		}
		return sym.Type

	case symtab.KInstance:
		return a.instanceType(pos, sym)

	case symtab.KTemplate:
		a.Sink.Errorf(pos, "template %v used as a type without arguments", sym.Name)

	case symtab.KError:
		return a.Types.Error

	default:
		a.Sink.Errorf(pos, "%v %v is not a type", sym.Kind, sym.Name)
	}

	return a.Types.Error
}

// instanceType reads a template instance as a type through its eponymous
// member.
func (a *Analyzer) instanceType(pos ast.Pos, inst *symtab.Symbol) *types.Type {
	ii := inst.Instance()
	if ii == nil {
		return a.Types.Error
	}

	ep := ii.Members.Own(ii.Of.Name)
	if ep == nil || ep.Type == nil {
		a.Sink.Errorf(pos, "template %v has no member %v usable as a type", ii.Of.Name, ii.Of.Name)
		return a.Types.Error
	}

	return ep.Type
}
