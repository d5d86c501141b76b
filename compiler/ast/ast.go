// Package ast defines the syntax tree produced by the front package.
//
// Declarations, statements and expressions are plain structs behind empty
// interfaces. Semantic analysis annotates expression nodes in place (the Typ
// field) so lowering does not need a parallel tree.
package ast

import (
	"strconv"
	"strings"

	"github.com/dusklang/dusk/compiler/types"
)

type (
	Decl any
	Stmt any
	Expr any

	// TypeExpr is a syntactic type reference, resolved to a *types.Type
	// during semantic pass 1.
	TypeExpr any

	Pos struct {
		File string
		Line int
		Col  int
	}

	File struct {
		Name   string // file path
		Module []string
		Decls  []Decl
	}

	Import struct {
		Pos    Pos
		Path   []string
		Public bool
	}

	VarDecl struct {
		Pos     Pos
		Name    string
		Type    TypeExpr
		Init    Expr
		Extern  bool
		Static  bool
		Foreign string // foreign linkage ABI, e.g. "c++"
		Sym     any    // *symtab.Symbol, bound during analysis
	}

	Param struct {
		Pos  Pos
		Name string
		Type TypeExpr
	}

	FuncDecl struct {
		Pos      Pos
		Name     string
		Params   []Param
		Variadic bool
		Ret      TypeExpr
		Body     *Block
		Extern   bool
		Foreign  string
		Trusted  bool
	}

	AggKind int

	Field struct {
		Pos   Pos
		Name  string
		Type  TypeExpr
		Init  Expr
		Align int // explicit align(N) override, 0 if absent
	}

	AggDecl struct {
		Pos    Pos
		Kind   AggKind
		Name   string
		Fields []Field
	}

	AliasDecl struct {
		Pos    Pos
		Name   string
		Target TypeExpr
	}

	TemplateParam struct {
		Pos  Pos
		Name string
		Spec TypeExpr // specialization pattern, nil when unconstrained
	}

	TemplateDecl struct {
		Pos    Pos
		Name   string
		Params []TemplateParam
		Body   []Decl
	}

	// VersionBlock is a conditional-compilation block evaluated against the
	// predefined version identifiers during pass 1.
	VersionBlock struct {
		Pos   Pos
		Debug bool // debug(...) instead of version(...)
		Ident string
		Level int64 // used when Ident is empty
		Then  []Decl
		Else  []Decl
	}

	// Statements.

	Block struct {
		Pos   Pos
		Stmts []Stmt
	}

	Assign struct {
		Pos Pos
		Lhs Expr
		Rhs Expr
	}

	If struct {
		Pos  Pos
		Cond Expr
		Then *Block
		Else Stmt // *Block or If
	}

	For struct {
		Pos  Pos
		Cond Expr
		Body *Block
	}

	Return struct {
		Pos   Pos
		Value Expr
	}

	ExprStmt struct {
		Pos Pos
		X   Expr
	}

	Label struct {
		Pos  Pos
		Name string
	}

	Goto struct {
		Pos  Pos
		Name string
	}

	// Assert evaluates its condition at run time and traps when it fails.
	// Release builds drop the statement entirely.
	Assert struct {
		Pos  Pos
		Cond Expr
		Msg  Expr // optional, must be a constant string
		Live bool // false when asserts are disabled
	}

	AsmOperand struct {
		Pos        Pos
		Name       string // symbolic operand name, may be empty
		Constraint Expr   // must resolve to a constant string
		Arg        Expr
	}

	// Asm is a GNU-style extended assembler statement:
	// asm { "tmpl" : outs : ins : clobbers }.
	Asm struct {
		Pos      Pos
		Template Expr
		Args     []AsmOperand
		NOut     int // Args[:NOut] are outputs
		Clobbers []Expr
	}

	// Expressions. Typ is filled by semantic analysis.

	IntLit struct {
		Pos Pos
		Val int64
		Typ *types.Type
	}

	FloatLit struct {
		Pos Pos
		Val float64
		Typ *types.Type
	}

	StrLit struct {
		Pos Pos
		Val string
		Typ *types.Type
	}

	Ident struct {
		Pos  Pos
		Name string
		Typ  *types.Type
		Sym  any // *symtab.Symbol, bound during pass 3
	}

	Selector struct {
		Pos  Pos
		X    Expr
		Name string
		Typ  *types.Type
		Sym  any
	}

	Call struct {
		Pos  Pos
		Fn   Expr
		Args []Expr
		Typ  *types.Type
	}

	Unary struct {
		Pos Pos
		Op  string // - ! & *
		X   Expr
		Typ *types.Type
	}

	Binary struct {
		Pos   Pos
		Op    string
		X, Y  Expr
		Typ   *types.Type
	}

	Index struct {
		Pos   Pos
		X     Expr
		Idx   Expr
		Typ   *types.Type
		Check bool // runtime bounds check, set during analysis
	}

	Cast struct {
		Pos Pos
		To  TypeExpr
		X   Expr
		Typ *types.Type
	}

	// StructLit is a composite literal T{a, b} or T{f: a}.
	StructLit struct {
		Pos    Pos
		Type   TypeExpr
		Names  []string // parallel to Elems, "" for positional
		Elems  []Expr
		Typ    *types.Type
	}

	// ArrayLit is [e0, e1, ...] with optional [i: e] indexed elements.
	ArrayLit struct {
		Pos     Pos
		Indexes []Expr // nil entries mean "next index"
		Elems   []Expr
		Typ     *types.Type
	}

	// TemplateInst is an explicit instantiation Name!(args).
	TemplateInst struct {
		Pos  Pos
		Name []string
		Args []TypeExpr
		Typ  *types.Type
		Sym  any
	}

	// Syntactic types.

	NameType struct {
		Pos  Pos
		Path []string // dotted name
	}

	PtrType struct {
		Pos  Pos
		Elem TypeExpr
	}

	ArrType struct {
		Pos  Pos
		Dim  Expr // static dimension
		Elem TypeExpr
	}

	SliceType struct {
		Pos  Pos
		Elem TypeExpr
	}

	MapType struct {
		Pos      Pos
		Key, Val TypeExpr
	}

	FuncType struct {
		Pos      Pos
		Params   []TypeExpr
		Variadic bool
		Ret      TypeExpr
	}

	QualType struct {
		Pos  Pos
		Qual string // const, immutable, shared
		Elem TypeExpr
	}

	InstType struct {
		Pos  Pos
		Name []string
		Args []TypeExpr
	}
)

const (
	AggStruct AggKind = iota
	AggUnion
	AggClass
)

func (p Pos) String() string {
	if p.File == "" {
		return "<builtin>"
	}

	return p.File + ":" + strconv.Itoa(p.Line) + ":" + strconv.Itoa(p.Col)
}

func (k AggKind) String() string {
	switch k {
	case AggStruct:
		return "struct"
	case AggUnion:
		return "union"
	case AggClass:
		return "class"
	}

	return "aggregate"
}

func DottedName(path []string) string {
	return strings.Join(path, ".")
}

// ExprPos extracts the source position of an expression node.
func ExprPos(e Expr) Pos {
	switch e := e.(type) {
	case *IntLit:
		return e.Pos
	case *FloatLit:
		return e.Pos
	case *StrLit:
		return e.Pos
	case *Ident:
		return e.Pos
	case *Selector:
		return e.Pos
	case *Call:
		return e.Pos
	case *Unary:
		return e.Pos
	case *Binary:
		return e.Pos
	case *Index:
		return e.Pos
	case *Cast:
		return e.Pos
	case *StructLit:
		return e.Pos
	case *ArrayLit:
		return e.Pos
	case *TemplateInst:
		return e.Pos
	}

	return Pos{}
}

// ExprType reads the semantic type annotation of an expression node.
func ExprType(e Expr) *types.Type {
	switch e := e.(type) {
	case *IntLit:
		return e.Typ
	case *FloatLit:
		return e.Typ
	case *StrLit:
		return e.Typ
	case *Ident:
		return e.Typ
	case *Selector:
		return e.Typ
	case *Call:
		return e.Typ
	case *Unary:
		return e.Typ
	case *Binary:
		return e.Typ
	case *Index:
		return e.Typ
	case *Cast:
		return e.Typ
	case *StructLit:
		return e.Typ
	case *ArrayLit:
		return e.Typ
	case *TemplateInst:
		return e.Typ
	}

	return nil
}

// SetExprType writes the semantic type annotation of an expression node.
func SetExprType(e Expr, t *types.Type) {
	switch e := e.(type) {
	case *IntLit:
		e.Typ = t
	case *FloatLit:
		e.Typ = t
	case *StrLit:
		e.Typ = t
	case *Ident:
		e.Typ = t
	case *Selector:
		e.Typ = t
	case *Call:
		e.Typ = t
	case *Unary:
		e.Typ = t
	case *Binary:
		e.Typ = t
	case *Index:
		e.Typ = t
	case *Cast:
		e.Typ = t
	case *StructLit:
		e.Typ = t
	case *ArrayLit:
		e.Typ = t
	case *TemplateInst:
		e.Typ = t
	}
}
