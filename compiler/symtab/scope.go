package symtab

import (
	"sort"

	"github.com/dusklang/dusk/compiler/diag"
)

type (
	// Scope is a lexical name space. Block scopes chain to the enclosing
	// function scope, which chains to the aggregate (if any) and module
	// scopes. Scopes used during semantic traversal are stack-discipline
	// objects; only module and aggregate member scopes persist.
	Scope struct {
		Owner  *Symbol
		Parent *Scope
		Mod    *Module

		syms  map[string]*Symbol
		order []*Symbol

		// Func is the enclosing function symbol, nil at module level.
		Func *Symbol

		// Trusted marks scopes where bounds checks obey level 2 semantics.
		Trusted bool
	}
)

func NewScope(parent *Scope, owner *Symbol) *Scope {
	sc := &Scope{
		Owner:  owner,
		Parent: parent,
		syms:   make(map[string]*Symbol),
	}

	if parent != nil {
		sc.Mod = parent.Mod
		sc.Func = parent.Func
		sc.Trusted = parent.Trusted
	}

	return sc
}

// Declare inserts sym. Same-named function symbols chain into an overload
// set; any other same-name collision in the exact same scope is a duplicate
// declaration, reported and ignored.
func (sc *Scope) Declare(sink *diag.Sink, sym *Symbol) bool {
	prev, ok := sc.syms[sym.Name]
	if !ok {
		sc.syms[sym.Name] = sym
		sc.order = append(sc.order, sym)
		sym.Parent = sc.Owner
		if sym.Mod == nil {
			sym.Mod = sc.Mod
		}
		return true
	}

	if pf := prev.Func(); pf != nil && sym.Kind == KFunc {
		for pf.Overload != nil {
			pf = pf.Overload.Func()
		}
		pf.Overload = sym
		sym.Parent = sc.Owner
		if sym.Mod == nil {
			sym.Mod = sc.Mod
		}
		return true
	}

	sink.Errorf(sym.Pos, "%v %v conflicts with %v at %v",
		sym.Kind, sym.Name, prev.Kind, prev.Pos)

	return false
}

// Own looks the name up in this exact scope only.
func (sc *Scope) Own(name string) *Symbol {
	return sc.syms[name]
}

// Lookup searches the scope chain outward: block, enclosing function,
// aggregate members, module scope, then the module's public import closure.
// Ambiguity between equally-visible import paths is reported by the module
// lookup and recovered with an error symbol.
func (sc *Scope) Lookup(sink *diag.Sink, name string) *Symbol {
	for s := sc; s != nil; s = s.Parent {
		if sym, ok := s.syms[name]; ok {
			return sym
		}

		if s.Parent == nil && s.Mod != nil {
			return s.Mod.LookupImported(sink, name)
		}
	}

	return nil
}

// Symbols returns the declared symbols in declaration order.
func (sc *Scope) Symbols() []*Symbol {
	return sc.order
}

// SortedNames is used by diagnostics that enumerate a scope; iteration over
// the map would not be deterministic.
func (sc *Scope) SortedNames() []string {
	names := make([]string, 0, len(sc.syms))
	for n := range sc.syms {
		names = append(names, n)
	}
	sort.Strings(names)

	return names
}
