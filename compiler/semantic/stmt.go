package semantic

import (
	"context"
	"strings"

	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/symtab"
	"github.com/dusklang/dusk/compiler/types"
)

type funcState struct {
	sym    *symtab.Symbol
	ret    *types.Type
	labels map[string]bool
	gotos  []*ast.Goto
}

func (a *Analyzer) funcBody(ctx context.Context, sc *symtab.Scope, sym *symtab.Symbol) {
	fi := sym.Func()
	d := fi.Decl

	if d == nil || d.Body == nil {
		return
	}

	fsc := symtab.NewScope(sc, sym)
	fsc.Func = sym
	fsc.Trusted = d.Trusted

	for i, prm := range d.Params {
		ps := symtab.NewVar(prm.Name, prm.Pos, nil)
		ps.Storage = symtab.SParam
		ps.Type = sym.Type.In[i]
		ps.State[0] = symtab.Resolved

		if fsc.Declare(a.Sink, ps) {
			a.scopes[ps] = fsc
		}

		fi.Params = append(fi.Params, ps)
	}

	fs := &funcState{
		sym:    sym,
		ret:    sym.Type.Ret,
		labels: make(map[string]bool),
	}

	collectLabels(d.Body, fs.labels)

	a.blockSem(ctx, fsc, fs, d.Body)

	for _, g := range fs.gotos {
		if !fs.labels[g.Name] {
			a.Sink.Errorf(g.Pos, "goto targets undefined label %v", g.Name)
		}
	}
}

func collectLabels(b *ast.Block, labels map[string]bool) {
	for _, s := range b.Stmts {
		switch s := s.(type) {
		case *ast.Label:
			labels[s.Name] = true
		case *ast.Block:
			collectLabels(s, labels)
		case *ast.If:
			collectLabels(s.Then, labels)
			switch e := s.Else.(type) {
			case *ast.Block:
				collectLabels(e, labels)
			case *ast.If:
				collectLabels(&ast.Block{Stmts: []ast.Stmt{e}}, labels)
			}
		case *ast.For:
			collectLabels(s.Body, labels)
		}
	}
}

func (a *Analyzer) blockSem(ctx context.Context, sc *symtab.Scope, fs *funcState, b *ast.Block) {
	inner := symtab.NewScope(sc, sc.Owner)

	for _, s := range b.Stmts {
		a.stmtSem(ctx, inner, fs, s)
	}
}

func (a *Analyzer) stmtSem(ctx context.Context, sc *symtab.Scope, fs *funcState, s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VarDecl:
		sym := symtab.NewVar(s.Name, s.Pos, s)
		sym.Storage = symtab.SLocal
		if s.Static {
			sym.Storage = symtab.SStatic
		}
		sym.Type = a.resolveType(ctx, sc, s.Type)
		sym.State[0] = symtab.Resolved

		if s.Init != nil {
			t := a.exprSem(ctx, sc, s.Init)
			if a.Types.Match(t, sym.Type) == types.MatchNo {
				a.Sink.Errorf(s.Pos, "cannot initialize %v (%v) with %v", s.Name, sym.Type, t)
			} else {
				sym.Var().Init = a.convert(s.Init, t, sym.Type)
			}
		}

		s.Sym = sym

		if sc.Declare(a.Sink, sym) {
			a.scopes[sym] = sc
			if fi := fs.sym.Func(); fi != nil {
				fi.Locals = append(fi.Locals, sym)
			}
		}

	case *ast.Assign:
		lt := a.exprSem(ctx, sc, s.Lhs)
		rt := a.exprSem(ctx, sc, s.Rhs)

		if !isLvalue(s.Lhs) {
			a.Sink.Errorf(s.Pos, "left side of assignment is not assignable")
			return
		}
		if lt.Qual&(types.QConst|types.QImmutable) != 0 {
			a.Sink.Errorf(s.Pos, "cannot assign to %v value", lt)
			return
		}

		if a.Types.Match(rt, lt) == types.MatchNo {
			a.Sink.Errorf(s.Pos, "cannot assign %v to %v", rt, lt)
			return
		}

		s.Rhs = a.convert(s.Rhs, rt, lt)

	case *ast.If:
		a.condSem(ctx, sc, s.Cond)
		a.blockSem(ctx, sc, fs, s.Then)

		switch e := s.Else.(type) {
		case *ast.Block:
			a.blockSem(ctx, sc, fs, e)
		case *ast.If:
			a.stmtSem(ctx, sc, fs, e)
		}

	case *ast.For:
		if s.Cond != nil {
			a.condSem(ctx, sc, s.Cond)
		}
		a.blockSem(ctx, sc, fs, s.Body)

	case *ast.Return:
		if s.Value == nil {
			if fs.ret.Kind != types.KVoid {
				a.Sink.Errorf(s.Pos, "missing return value, function returns %v", fs.ret)
			}
			return
		}

		t := a.exprSem(ctx, sc, s.Value)
		if fs.ret.Kind == types.KVoid {
			a.Sink.Errorf(s.Pos, "void function returns a value")
			return
		}
		if a.Types.Match(t, fs.ret) == types.MatchNo {
			a.Sink.Errorf(s.Pos, "cannot return %v from function returning %v", t, fs.ret)
			return
		}

		s.Value = a.convert(s.Value, t, fs.ret)

	case *ast.ExprStmt:
		a.exprSem(ctx, sc, s.X)

	case *ast.Label:
		// collected up front

	case *ast.Goto:
		fs.gotos = append(fs.gotos, s)

	case *ast.Assert:
		a.condSem(ctx, sc, s.Cond)

		if s.Msg != nil {
			a.exprSem(ctx, sc, s.Msg)
			if _, ok := foldStr(s.Msg); !ok {
				a.Sink.Errorf(s.Pos, "assert message must be a constant string")
			}
		}

		s.Live = a.Asserts

	case *ast.Block:
		a.blockSem(ctx, sc, fs, s)

	case *ast.Asm:
		a.asmSem(ctx, sc, fs, s)

	default:
		a.Sink.InternalErrorf("unhandled statement %T", s)
	}
}

func (a *Analyzer) condSem(ctx context.Context, sc *symtab.Scope, e ast.Expr) {
	t := a.exprSem(ctx, sc, e)

	if t.IsError() || t.Kind == types.KBool || t.IsInteger() || t.Base().Kind == types.KPointer {
		return
	}

	a.Sink.Errorf(ast.ExprPos(e), "condition of type %v is not convertible to bool", t)
}

// asmSem validates an extended assembler statement: template, constraints and
// clobbers must be string constants, outputs must be assignable, and every
// operand expression is typed. The enclosing function is marked so the
// optimizer treats it conservatively.
func (a *Analyzer) asmSem(ctx context.Context, sc *symtab.Scope, fs *funcState, s *ast.Asm) {
	if fi := fs.sym.Func(); fi != nil {
		fi.UsesAsm = true
	}

	a.exprSem(ctx, sc, s.Template)
	if _, ok := foldStr(s.Template); !ok {
		a.Sink.Errorf(s.Pos, "assembler template must be a constant string")
	}

	for i := range s.Args {
		op := &s.Args[i]

		a.exprSem(ctx, sc, op.Constraint)
		con, ok := foldStr(op.Constraint)
		if !ok {
			a.Sink.Errorf(op.Pos, "assembler constraint must be a constant string")
			continue
		}

		out := i < s.NOut

		if out && !strings.HasPrefix(con, "=") && !strings.HasPrefix(con, "+") {
			a.Sink.Errorf(op.Pos, "output constraint %q must begin with = or +", con)
		}
		if !out && (strings.HasPrefix(con, "=") || strings.HasPrefix(con, "+")) {
			a.Sink.Errorf(op.Pos, "input constraint %q must not begin with = or +", con)
		}

		a.exprSem(ctx, sc, op.Arg)

		if out && !isLvalue(op.Arg) {
			a.Sink.Errorf(op.Pos, "assembler output operand must be assignable")
		}
	}

	for _, c := range s.Clobbers {
		a.exprSem(ctx, sc, c)

		name, ok := foldStr(c)
		if !ok {
			a.Sink.Errorf(ast.ExprPos(c), "assembler clobber must be a constant string")
			continue
		}

		if name != "memory" && name != "cc" && !a.Types.Target.IsRegister(name) {
			a.Sink.Warnf(ast.ExprPos(c), "unknown clobber %q", name)
		}
	}
}
