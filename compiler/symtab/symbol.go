// Package symtab models named entities, lexical scopes and the module import
// graph. Symbols form a tree (module -> aggregate -> member) plus non-owning
// reference edges (template instance -> originating template, symbol ->
// enclosing parent); the table owns every symbol for the life of the run.
package symtab

import (
	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/types"
)

type (
	Kind int

	// PassState is the per-pass resolution state machine. A symbol entering
	// a pass that is already InProgress for it is a circular dependency.
	PassState uint8

	Storage uint32

	VarInfo struct {
		Decl  *ast.VarDecl
		Init  ast.Expr
		Field *types.Field // set for aggregate members
	}

	FuncInfo struct {
		Decl *ast.FuncDecl
		// Overload chains same-named function symbols into an overload set.
		Overload *Symbol
		// Params are the parameter symbols in declaration order.
		Params []*Symbol
		// Locals lists the function's local variable symbols in declaration
		// order, for debug scoping.
		Locals []*Symbol
		// UsesAsm marks functions containing inline assembler.
		UsesAsm bool
	}

	AggInfo struct {
		Decl    *ast.AggDecl
		Members *Scope
		Agg     *types.Agg
	}

	AliasInfo struct {
		Decl *ast.AliasDecl
		Of   *types.Type
	}

	TemplateInfo struct {
		Decl *ast.TemplateDecl
		// Instances memoizes instantiations by argument deco tuple so the
		// same arguments reuse the same symbol.
		Instances map[string]*Symbol
	}

	InstanceInfo struct {
		// Of is the originating template (non-owning back-reference).
		Of   *Symbol
		Args []*types.Type
		// Mod is the instantiating module; with private template emission
		// the instance body is emitted into that module's object.
		Mod     *Module
		Members *Scope
		Key     string
	}

	Symbol struct {
		Kind   Kind
		Name   string
		Pos    ast.Pos
		Parent *Symbol // enclosing symbol, non-owning
		Mod    *Module // declaring module

		Type    *types.Type
		Storage Storage
		Foreign string // foreign-linkage ABI ("c++"), empty for native

		// State tracks pass 1 (signatures), pass 2 (members) and pass 3
		// (bodies) independently.
		State [3]PassState

		Mangled string // cached linker name

		varInfo   *VarInfo
		funcInfo  *FuncInfo
		aggInfo   *AggInfo
		aliasInfo *AliasInfo
		tplInfo   *TemplateInfo
		instInfo  *InstanceInfo
	}
)

const (
	KError Kind = iota
	KModule
	KVar
	KFunc
	KAggregate
	KAlias
	KTemplate
	KInstance
	KLabel
)

const (
	Unresolved PassState = iota
	InProgress
	Resolved
)

const (
	SExtern Storage = 1 << iota
	SStatic
	SConst
	SField
	SParam
	SLocal
	SGlobal
)

func (k Kind) String() string {
	switch k {
	case KModule:
		return "module"
	case KVar:
		return "variable"
	case KFunc:
		return "function"
	case KAggregate:
		return "aggregate"
	case KAlias:
		return "alias"
	case KTemplate:
		return "template"
	case KInstance:
		return "template instance"
	case KLabel:
		return "label"
	}

	return "error symbol"
}

func NewVar(name string, pos ast.Pos, d *ast.VarDecl) *Symbol {
	return &Symbol{Kind: KVar, Name: name, Pos: pos, varInfo: &VarInfo{Decl: d}}
}

func NewFunc(name string, pos ast.Pos, d *ast.FuncDecl) *Symbol {
	return &Symbol{Kind: KFunc, Name: name, Pos: pos, funcInfo: &FuncInfo{Decl: d}}
}

func NewAggregate(name string, pos ast.Pos, d *ast.AggDecl) *Symbol {
	return &Symbol{Kind: KAggregate, Name: name, Pos: pos, aggInfo: &AggInfo{Decl: d}}
}

func NewAlias(name string, pos ast.Pos, d *ast.AliasDecl) *Symbol {
	return &Symbol{Kind: KAlias, Name: name, Pos: pos, aliasInfo: &AliasInfo{Decl: d}}
}

func NewTemplate(name string, pos ast.Pos, d *ast.TemplateDecl) *Symbol {
	return &Symbol{
		Kind: KTemplate, Name: name, Pos: pos,
		tplInfo: &TemplateInfo{Decl: d, Instances: make(map[string]*Symbol)},
	}
}

func NewInstance(name string, of *Symbol, args []*types.Type, mod *Module, key string) *Symbol {
	return &Symbol{
		Kind: KInstance, Name: name, Pos: of.Pos,
		instInfo: &InstanceInfo{Of: of, Args: args, Mod: mod, Key: key},
	}
}

// NewError builds the error-placeholder symbol substituted after a reported
// resolution failure so later passes do not crash on a missing symbol.
func NewError(name string, pos ast.Pos) *Symbol {
	return &Symbol{Kind: KError, Name: name, Pos: pos}
}

// Safe downcasts: each returns nil unless the symbol has that kind.

func (s *Symbol) Var() *VarInfo {
	if s == nil || s.Kind != KVar {
		return nil
	}
	return s.varInfo
}

func (s *Symbol) Func() *FuncInfo {
	if s == nil || s.Kind != KFunc {
		return nil
	}
	return s.funcInfo
}

func (s *Symbol) Aggregate() *AggInfo {
	if s == nil || s.Kind != KAggregate {
		return nil
	}
	return s.aggInfo
}

func (s *Symbol) Alias() *AliasInfo {
	if s == nil || s.Kind != KAlias {
		return nil
	}
	return s.aliasInfo
}

func (s *Symbol) Template() *TemplateInfo {
	if s == nil || s.Kind != KTemplate {
		return nil
	}
	return s.tplInfo
}

func (s *Symbol) Instance() *InstanceInfo {
	if s == nil || s.Kind != KInstance {
		return nil
	}
	return s.instInfo
}

func (s *Symbol) IsError() bool { return s == nil || s.Kind == KError }

// FQN is the dotted fully-qualified name from the module root.
func (s *Symbol) FQN() string {
	if s.Parent == nil || s.Parent.Kind == KModule {
		if s.Mod != nil {
			return s.Mod.Name + "." + s.Name
		}
		return s.Name
	}

	return s.Parent.FQN() + "." + s.Name
}

// OverloadSet collects the function overload chain starting at s, in
// declaration order.
func (s *Symbol) OverloadSet() []*Symbol {
	var set []*Symbol

	for f := s; f != nil; {
		set = append(set, f)

		fi := f.Func()
		if fi == nil {
			break
		}
		f = fi.Overload
	}

	return set
}
