package semantic

import (
	"context"
	"strings"

	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/symtab"
	"github.com/dusklang/dusk/compiler/types"
)

// instantiateNamed resolves Name!(args) to a template instance symbol.
func (a *Analyzer) instantiateNamed(ctx context.Context, sc *symtab.Scope, pos ast.Pos, path []string, args []ast.TypeExpr) *symtab.Symbol {
	tpl := a.lookupPath(sc, pos, path)
	if tpl.IsError() {
		return tpl
	}

	if tpl.Kind != symtab.KTemplate {
		a.Sink.Errorf(pos, "%v %v cannot be instantiated", tpl.Kind, tpl.Name)
		return symtab.NewError(tpl.Name, pos)
	}

	argT := make([]*types.Type, len(args))
	for i, arg := range args {
		argT[i] = a.resolveType(ctx, sc, arg)
	}

	return a.instantiate(ctx, pos, tpl, argT, sc.Mod)
}

// instantiate memoizes instances by the argument deco tuple: the same
// template with structurally identical arguments always yields the identical
// instance symbol, no matter which module asked first.
func (a *Analyzer) instantiate(ctx context.Context, pos ast.Pos, tpl *symtab.Symbol, args []*types.Type, from *symtab.Module) *symtab.Symbol {
	ti := tpl.Template()

	if len(args) != len(ti.Decl.Params) {
		a.Sink.Errorf(pos, "template %v takes %v arguments, %v given",
			tpl.Name, len(ti.Decl.Params), len(args))
		return symtab.NewError(tpl.Name, pos)
	}

	for _, at := range args {
		if at.IsError() {
			return symtab.NewError(tpl.Name, pos)
		}
	}

	key := instanceKey(args)

	if inst, ok := ti.Instances[key]; ok {
		return inst
	}

	if !a.checkSpecialization(ctx, pos, tpl, args) {
		return symtab.NewError(tpl.Name, pos)
	}

	name := tpl.Name + "!(" + typeList(args) + ")"

	inst := symtab.NewInstance(name, tpl, args, from, key)
	inst.Mod = tpl.Mod
	ti.Instances[key] = inst

	a.instances = append(a.instances, inst)

	// callers typically need the signature immediately
	a.resolve(ctx, inst, 0)

	return inst
}

func instanceKey(args []*types.Type) string {
	var b strings.Builder
	for _, t := range args {
		b.WriteString(t.Deco())
	}

	return b.String()
}

// checkSpecialization verifies constrained parameters: an argument must be
// implicitly convertible to the specialization pattern. Patterns are resolved
// with earlier parameters already bound, so Pair(T, U: *T) works.
func (a *Analyzer) checkSpecialization(ctx context.Context, pos ast.Pos, tpl *symtab.Symbol, args []*types.Type) bool {
	ti := tpl.Template()

	psc := a.templateScope(tpl)
	bind := symtab.NewScope(psc, tpl)

	for i, prm := range ti.Decl.Params {
		if prm.Spec != nil {
			spec := a.resolveType(ctx, bind, prm.Spec)
			if !spec.IsError() && a.Types.Match(args[i], spec) == types.MatchNo {
				a.Sink.Errorf(pos, "argument %v does not satisfy specialization %v of parameter %v",
					args[i], spec, prm.Name)
				return false
			}
		}

		bind.Declare(a.Sink, boundParam(prm, args[i]))
	}

	return true
}

func (a *Analyzer) templateScope(tpl *symtab.Symbol) *symtab.Scope {
	if sc := a.scopes[tpl]; sc != nil {
		return sc
	}
	if tpl.Mod != nil {
		return tpl.Mod.Scope
	}

	return nil
}

// boundParam makes an alias symbol binding a template parameter name to the
// concrete argument type.
func boundParam(prm ast.TemplateParam, t *types.Type) *symtab.Symbol {
	s := symtab.NewAlias(prm.Name, prm.Pos, nil)
	s.Type = t
	s.Alias().Of = t
	s.State[0] = symtab.Resolved
	s.State[1] = symtab.Resolved
	s.State[2] = symtab.Resolved

	return s
}

// instancePass1 builds the instance's member scope: parameter bindings plus
// the template body declared inside it, then resolves member signatures.
func (a *Analyzer) instancePass1(ctx context.Context, sym *symtab.Symbol) {
	ii := sym.Instance()
	ti := ii.Of.Template()

	ii.Members = symtab.NewScope(a.templateScope(ii.Of), sym)

	for i, prm := range ti.Decl.Params {
		ii.Members.Declare(a.Sink, boundParam(prm, ii.Args[i]))
	}

	a.declareDecls(ii.Members, a.expand(ti.Decl.Body), symtab.SGlobal)

	for _, mem := range ii.Members.Symbols() {
		a.resolve(ctx, mem, 0)
	}
}
