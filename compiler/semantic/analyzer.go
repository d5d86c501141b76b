// Package semantic runs the three analysis passes over the module graph.
//
// Pass 1 resolves declaration signatures, pass 2 aggregate members and layout,
// pass 3 function bodies and initializers. Each symbol tracks per-pass state;
// entering a pass already in progress for the same symbol is a circular
// reference, reported once and recovered with the error type. Template
// instances discovered during any pass queue up and are drained to a fixpoint
// with a bounded number of rounds.
package semantic

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/diag"
	"github.com/dusklang/dusk/compiler/symtab"
	"github.com/dusklang/dusk/compiler/types"
)

// maxRounds bounds the instantiation drain loop. Converging runs finish in a
// couple of rounds; hitting the cap means the queue feeds itself.
const maxRounds = 64

type (
	Analyzer struct {
		Sink  *diag.Sink
		Types *types.Context
		Set   *symtab.Set

		// Versions holds the active version identifiers, seeded from the
		// target's predefined set plus -fversion flags.
		Versions     map[string]bool
		VersionLevel int64

		Debug       bool
		DebugLevel  int64
		DebugIdents map[string]bool

		// Asserts keeps assert statements live. BoundsCheck selects index
		// guards: 0 none, 1 outside trusted code, 2 everywhere.
		Asserts     bool
		BoundsCheck int

		// scopes maps each symbol to the scope its declaration is resolved
		// in: module scope, aggregate member scope or instance scope.
		scopes map[*symtab.Symbol]*symtab.Scope

		// instances lists every template instance ever created; done marks
		// how far each pass has processed it.
		instances []*symtab.Symbol
		done      [3]int

		declared map[*symtab.Module]bool
	}
)

func New(sink *diag.Sink, tc *types.Context, set *symtab.Set) *Analyzer {
	a := &Analyzer{
		Sink:        sink,
		Types:       tc,
		Set:         set,
		Versions:    make(map[string]bool),
		DebugIdents: make(map[string]bool),
		Asserts:     true,
		BoundsCheck: 1,
		scopes:      make(map[*symtab.Symbol]*symtab.Scope),
		declared:    make(map[*symtab.Module]bool),
	}

	for _, v := range tc.Target.Predefined() {
		a.Versions[v] = true
	}

	return a
}

// Run analyzes every loaded module through all three passes.
func (a *Analyzer) Run(ctx context.Context) {
	tr := tlog.SpanFromContext(ctx)

	for _, m := range a.Set.Modules {
		a.declareModule(m)
	}

	for pass := 0; pass < 3; pass++ {
		for _, m := range a.Set.Modules {
			for _, sym := range m.Scope.Symbols() {
				a.resolve(ctx, sym, pass)
			}
		}

		a.drain(ctx, pass)
	}

	tr.Printw("semantic done", "modules", len(a.Set.Modules), "errors", a.Sink.Errors())
}

// declareModule creates symbols for the module's top-level declarations,
// flattening conditional compilation blocks first.
func (a *Analyzer) declareModule(m *symtab.Module) {
	if a.declared[m] {
		return
	}
	a.declared[m] = true

	a.declareDecls(m.Scope, a.expand(m.Decls), symtab.SGlobal)
}

func (a *Analyzer) declareDecls(sc *symtab.Scope, decls []ast.Decl, storage symtab.Storage) {
	for _, d := range decls {
		var sym *symtab.Symbol

		switch d := d.(type) {
		case *ast.Import:
			continue
		case *ast.VarDecl:
			sym = symtab.NewVar(d.Name, d.Pos, d)
			sym.Storage = storage
			if d.Extern {
				sym.Storage |= symtab.SExtern
			}
			if d.Static {
				sym.Storage |= symtab.SStatic
			}
			sym.Foreign = d.Foreign
			d.Sym = sym
		case *ast.FuncDecl:
			sym = symtab.NewFunc(d.Name, d.Pos, d)
			sym.Storage = storage
			if d.Extern {
				sym.Storage |= symtab.SExtern
			}
			sym.Foreign = d.Foreign
		case *ast.AggDecl:
			sym = symtab.NewAggregate(d.Name, d.Pos, d)
		case *ast.AliasDecl:
			sym = symtab.NewAlias(d.Name, d.Pos, d)
		case *ast.TemplateDecl:
			sym = symtab.NewTemplate(d.Name, d.Pos, d)
		default:
			a.Sink.InternalErrorf("unhandled declaration %T", d)
			continue
		}

		if sc.Declare(a.Sink, sym) {
			a.scopes[sym] = sc
		}
	}
}

// expand flattens version and debug blocks according to the active
// identifiers and levels.
func (a *Analyzer) expand(decls []ast.Decl) []ast.Decl {
	out := make([]ast.Decl, 0, len(decls))

	for _, d := range decls {
		v, ok := d.(*ast.VersionBlock)
		if !ok {
			out = append(out, d)
			continue
		}

		if a.condActive(v) {
			out = append(out, a.expand(v.Then)...)
		} else {
			out = append(out, a.expand(v.Else)...)
		}
	}

	return out
}

func (a *Analyzer) condActive(v *ast.VersionBlock) bool {
	if v.Debug {
		if v.Ident != "" {
			return a.DebugIdents[v.Ident]
		}
		if v.Level != 0 {
			return a.Debug && a.DebugLevel >= v.Level
		}
		return a.Debug
	}

	if v.Ident != "" {
		return a.Versions[v.Ident]
	}

	return a.VersionLevel >= v.Level
}

// resolve runs one pass over one symbol, guarding against reentry.
func (a *Analyzer) resolve(ctx context.Context, sym *symtab.Symbol, pass int) {
	if sym == nil || sym.Kind == symtab.KError || sym.Kind == symtab.KModule {
		return
	}

	switch sym.State[pass] {
	case symtab.Resolved:
		return
	case symtab.InProgress:
		a.Sink.Errorf(sym.Pos, "circular reference involving %v %v", sym.Kind, sym.Name)
		sym.Type = a.Types.Error
		sym.State[pass] = symtab.Resolved
		return
	}

	// earlier passes must have run for this symbol
	for p := 0; p < pass; p++ {
		a.resolve(ctx, sym, p)
	}

	sym.State[pass] = symtab.InProgress
	defer func() { sym.State[pass] = symtab.Resolved }()

	sc := a.scopes[sym]
	if sc == nil && sym.Mod != nil {
		sc = sym.Mod.Scope
	}

	switch pass {
	case 0:
		a.pass1(ctx, sc, sym)
	case 1:
		a.pass2(ctx, sc, sym)
	case 2:
		a.pass3(ctx, sc, sym)
	}
}

// drain runs template instances through passes 0..upto until no new instances
// appear or the round cap trips. Instances created in an earlier pass are
// picked up again by later drains through the per-pass watermark.
func (a *Analyzer) drain(ctx context.Context, upto int) {
	for round := 0; a.done[upto] < len(a.instances); round++ {
		if round == maxRounds {
			a.Sink.InternalErrorf("template instantiation did not converge after %v rounds", maxRounds)
			a.done[upto] = len(a.instances)
			return
		}

		batch := a.instances[a.done[upto]:]
		a.done[upto] = len(a.instances)

		for _, sym := range batch {
			for p := 0; p <= upto; p++ {
				a.resolve(ctx, sym, p)
			}
		}
	}
}

// pass1 resolves the declaration signature: the symbol's type.
func (a *Analyzer) pass1(ctx context.Context, sc *symtab.Scope, sym *symtab.Symbol) {
	switch sym.Kind {
	case symtab.KVar:
		vi := sym.Var()
		sym.Type = a.resolveType(ctx, sc, vi.Decl.Type)

	case symtab.KFunc:
		fi := sym.Func()
		d := fi.Decl

		in := make([]*types.Type, len(d.Params))
		for i, prm := range d.Params {
			in[i] = a.resolveType(ctx, sc, prm.Type)
		}

		ret := a.Types.Void
		if d.Ret != nil {
			ret = a.resolveType(ctx, sc, d.Ret)
		}

		sym.Type = a.Types.Func(in, ret, d.Variadic)

	case symtab.KAggregate:
		ai := sym.Aggregate()
		agg := &types.Agg{
			Name:  sym.FQN(),
			Union: ai.Decl.Kind == ast.AggUnion,
			Class: ai.Decl.Kind == ast.AggClass,
			Sym:   sym,
		}
		ai.Agg = agg
		ai.Members = symtab.NewScope(sc, sym)
		sym.Type = a.Types.Aggregate(agg)

	case symtab.KAlias:
		li := sym.Alias()
		li.Of = a.resolveType(ctx, sc, li.Decl.Target)
		sym.Type = li.Of

	case symtab.KTemplate:
		// analyzed at instantiation

	case symtab.KInstance:
		a.instancePass1(ctx, sym)
	}
}

// pass2 fills aggregate members and computes layout.
func (a *Analyzer) pass2(ctx context.Context, sc *symtab.Scope, sym *symtab.Symbol) {
	switch sym.Kind {
	case symtab.KAggregate:
		a.aggregateMembers(ctx, sc, sym)

	case symtab.KInstance:
		for _, mem := range sym.Instance().Members.Symbols() {
			a.resolve(ctx, mem, 1)
		}
	}
}

// pass3 analyzes bodies and initializers.
func (a *Analyzer) pass3(ctx context.Context, sc *symtab.Scope, sym *symtab.Symbol) {
	switch sym.Kind {
	case symtab.KVar:
		vi := sym.Var()
		if vi.Decl == nil || vi.Decl.Init == nil {
			return
		}

		t := a.exprSem(ctx, sc, vi.Decl.Init)
		vi.Init = a.convert(vi.Decl.Init, t, sym.Type)

	case symtab.KFunc:
		a.funcBody(ctx, sc, sym)

	case symtab.KInstance:
		for _, mem := range sym.Instance().Members.Symbols() {
			a.resolve(ctx, mem, 2)
		}
	}
}

// aggregateMembers declares field symbols, resolves their types and lays the
// aggregate out. A field whose type is the aggregate itself (directly or
// through another aggregate) is a circular definition caught by the pass
// state machine.
func (a *Analyzer) aggregateMembers(ctx context.Context, sc *symtab.Scope, sym *symtab.Symbol) {
	ai := sym.Aggregate()
	agg := ai.Agg

	// field symbols keep pointers into this slice; size it up front
	agg.Fields = make([]types.Field, 0, len(ai.Decl.Fields))

	for i := range ai.Decl.Fields {
		fd := &ai.Decl.Fields[i]

		ft := a.resolveType(ctx, ai.Members, fd.Type)

		// sizing a field of aggregate type forces that aggregate's pass 2
		if ft.Kind == types.KAgg {
			if fsym, ok := ft.Agg.Sym.(*symtab.Symbol); ok {
				a.resolve(ctx, fsym, 1)
				if !ft.Agg.Sized && fsym.State[1] != symtab.Resolved {
					a.Sink.Errorf(fd.Pos, "field %v completes a circular aggregate definition", fd.Name)
					ft = a.Types.Error
				}
			}
		}

		agg.Fields = append(agg.Fields, types.Field{
			Name:          fd.Name,
			Type:          ft,
			Init:          fd.Init,
			AlignOverride: int64(fd.Align),
		})

		fsym := symtab.NewVar(fd.Name, fd.Pos, nil)
		fsym.Storage = symtab.SField
		fsym.Type = ft
		fsym.State[0] = symtab.Resolved
		fsym.Var().Field = &agg.Fields[len(agg.Fields)-1]

		if ai.Members.Declare(a.Sink, fsym) {
			a.scopes[fsym] = ai.Members
		}
	}

	a.Types.LayoutAgg(agg)

	// field default initializers are analyzed after layout so they may
	// reference earlier members of the same aggregate
	for i := range agg.Fields {
		f := &agg.Fields[i]
		if f.Init == nil {
			continue
		}

		t := a.exprSem(ctx, ai.Members, f.Init)
		f.Init = a.convert(f.Init, t, f.Type)
	}
}
