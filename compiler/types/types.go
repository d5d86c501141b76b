// Package types canonicalizes dusk types and computes their target layout.
//
// Structurally identical types intern to the same *Type, so equality is
// pointer identity everywhere else in the compiler. The intern key is the
// "deco" string, a deterministic mangle of the type's shape that is also
// reused by symbol mangling.
package types

import (
	"strconv"
	"strings"

	"github.com/dusklang/dusk/compiler/target"
)

type (
	Kind int

	Qual uint8

	Field struct {
		Name   string
		Type   *Type
		Init   any // ast.Expr default initializer, nil if absent
		Offset int64
		// AlignOverride is the explicit align(N) on the field, 0 if absent.
		AlignOverride int64
	}

	// Agg is the nominal part of a struct/union/class type. It is created
	// unsized during pass 1 and filled in by pass 2 member semantic.
	Agg struct {
		Name   string // fully qualified
		Union  bool
		Class  bool
		Fields []Field
		Size   int64
		Align  int64
		Sized  bool
		// Sym is the declaring symbol (*symtab.Symbol), a non-owning
		// back-reference used by lowering for mangling.
		Sym any
	}

	Type struct {
		Kind Kind
		Qual Qual

		Elem *Type // pointer/array/slice element, map value
		Key  *Type // map key
		Dim  int64 // static array dimension

		Agg *Agg

		In       []*Type
		Variadic bool
		Ret      *Type

		deco   string
		base   *Type          // unqualified base, self for Qual == 0
		quals  map[Qual]*Type // qualified variants, cached on the base
	}

	// Context owns the intern cache and the target tables. One Context per
	// compilation run keeps repeated runs in one process isolated.
	Context struct {
		Target *target.Target

		cache  map[string]*Type
		basics map[Kind]*Type

		Void, Bool, Char             *Type
		Int8, Uint8, Int16, Uint16   *Type
		Int32, Uint32, Int64, Uint64 *Type
		Float32, Float64             *Type
		Valist                       *Type
		Error                        *Type
	}
)

const (
	KVoid Kind = iota
	KBool
	KChar
	KInt8
	KUint8
	KInt16
	KUint16
	KInt32
	KUint32
	KInt64
	KUint64
	KFloat32
	KFloat64
	KPointer
	KSArray // static array, fixed dimension
	KDArray // dynamic array, pointer+length pair
	KAArray // associative array
	KAgg
	KFunc
	KValist // variadic-argument-list type bridged to the backend's native one
	KError
)

const (
	QConst Qual = 1 << iota
	QImmutable
	QShared
)

var kindNames = map[Kind]string{
	KVoid: "void", KBool: "bool", KChar: "char",
	KInt8: "int8", KUint8: "uint8", KInt16: "int16", KUint16: "uint16",
	KInt32: "int32", KUint32: "uint32", KInt64: "int64", KUint64: "uint64",
	KFloat32: "float32", KFloat64: "float64",
	KValist: "valist", KError: "<error>",
}

var kindDeco = map[Kind]string{
	KVoid: "v", KBool: "b", KChar: "a",
	KInt8: "g", KUint8: "h", KInt16: "s", KUint16: "t",
	KInt32: "i", KUint32: "k", KInt64: "l", KUint64: "m",
	KFloat32: "f", KFloat64: "d",
	KValist: "X", KError: "E",
}

func NewContext(tg *target.Target) *Context {
	c := &Context{
		Target: tg,
		cache:  make(map[string]*Type),
		basics: make(map[Kind]*Type),
	}

	mk := func(k Kind) *Type {
		t := c.Canon(&Type{Kind: k})
		c.basics[k] = t
		return t
	}

	c.Void = mk(KVoid)
	c.Bool = mk(KBool)
	c.Char = mk(KChar)
	c.Int8 = mk(KInt8)
	c.Uint8 = mk(KUint8)
	c.Int16 = mk(KInt16)
	c.Uint16 = mk(KUint16)
	c.Int32 = mk(KInt32)
	c.Uint32 = mk(KUint32)
	c.Int64 = mk(KInt64)
	c.Uint64 = mk(KUint64)
	c.Float32 = mk(KFloat32)
	c.Float64 = mk(KFloat64)
	c.Valist = mk(KValist)
	c.Error = mk(KError)

	return c
}

// Basic returns the interned basic type by source name, nil if unknown.
func (c *Context) Basic(name string) *Type {
	for k, n := range kindNames {
		if n == name {
			return c.basics[k]
		}
	}

	return nil
}

// Canon interns a structurally-described type. Repeated calls with an equal
// shape return the identical object.
func (c *Context) Canon(shape *Type) *Type {
	deco := c.decoOf(shape)

	if t, ok := c.cache[deco]; ok {
		return t
	}

	t := *shape
	t.deco = deco
	t.quals = nil
	t.base = nil
	c.cache[deco] = &t

	if t.Qual == 0 {
		c.cache[deco].base = c.cache[deco]
	}

	return c.cache[deco]
}

// Pointer, SArray, DArray, AArray and Func build interned composite types.

func (c *Context) Pointer(elem *Type) *Type {
	return c.Canon(&Type{Kind: KPointer, Elem: elem})
}

func (c *Context) SArray(elem *Type, dim int64) *Type {
	return c.Canon(&Type{Kind: KSArray, Elem: elem, Dim: dim})
}

func (c *Context) DArray(elem *Type) *Type {
	return c.Canon(&Type{Kind: KDArray, Elem: elem})
}

func (c *Context) AArray(key, val *Type) *Type {
	return c.Canon(&Type{Kind: KAArray, Key: key, Elem: val})
}

func (c *Context) Func(in []*Type, ret *Type, variadic bool) *Type {
	return c.Canon(&Type{Kind: KFunc, In: in, Ret: ret, Variadic: variadic})
}

// Aggregate interns the nominal type for an aggregate declaration. The same
// *Agg always maps to the same *Type.
func (c *Context) Aggregate(agg *Agg) *Type {
	return c.Canon(&Type{Kind: KAgg, Agg: agg})
}

// Qualify returns the qualifier-wrapped variant of t, creating and caching it
// on the unqualified base. Qualifiers are idempotent.
func (c *Context) Qualify(t *Type, q Qual) *Type {
	if q == 0 || t.Kind == KError {
		return t
	}

	base := t.Base()
	nq := t.Qual | q

	if nq == t.Qual {
		return t
	}

	if base.quals == nil {
		base.quals = make(map[Qual]*Type)
	}

	if cached, ok := base.quals[nq]; ok {
		return cached
	}

	shape := *base
	shape.Qual = nq
	qt := c.Canon(&shape)
	qt.base = base
	base.quals[nq] = qt

	return qt
}

// Base returns the unqualified form of t.
func (t *Type) Base() *Type {
	if t.base != nil {
		return t.base
	}

	return t
}

// Deco is the canonical shape mangle; equal shapes have equal decos.
func (t *Type) Deco() string { return t.deco }

func (c *Context) decoOf(t *Type) string {
	var b strings.Builder
	c.appendDeco(&b, t)
	return b.String()
}

func (c *Context) appendDeco(b *strings.Builder, t *Type) {
	if t == nil {
		b.WriteString("?")
		return
	}

	if t.Qual&QImmutable != 0 {
		b.WriteString("y")
	} else if t.Qual&QConst != 0 {
		b.WriteString("x")
	}
	if t.Qual&QShared != 0 {
		b.WriteString("O")
	}

	switch t.Kind {
	case KPointer:
		b.WriteString("P")
		c.appendDeco(b, t.Elem)
	case KSArray:
		b.WriteString("G")
		b.WriteString(strconv.FormatInt(t.Dim, 10))
		c.appendDeco(b, t.Elem)
	case KDArray:
		b.WriteString("A")
		c.appendDeco(b, t.Elem)
	case KAArray:
		b.WriteString("H")
		c.appendDeco(b, t.Key)
		c.appendDeco(b, t.Elem)
	case KAgg:
		b.WriteString("S")
		b.WriteString(strconv.Itoa(len(t.Agg.Name)))
		b.WriteString(t.Agg.Name)
	case KFunc:
		b.WriteString("F")
		for _, p := range t.In {
			c.appendDeco(b, p)
		}
		if t.Variadic {
			b.WriteString("Y")
		}
		b.WriteString("Z")
		c.appendDeco(b, t.Ret)
	default:
		b.WriteString(kindDeco[t.Kind])
	}
}

func (t *Type) String() string {
	var b strings.Builder

	if t.Qual&QImmutable != 0 {
		b.WriteString("immutable(")
	} else if t.Qual&QConst != 0 {
		b.WriteString("const(")
	}
	if t.Qual&QShared != 0 {
		b.WriteString("shared(")
	}

	switch t.Kind {
	case KPointer:
		b.WriteString("*")
		b.WriteString(t.Elem.String())
	case KSArray:
		b.WriteString("[" + strconv.FormatInt(t.Dim, 10) + "]")
		b.WriteString(t.Elem.String())
	case KDArray:
		b.WriteString("[]")
		b.WriteString(t.Elem.String())
	case KAArray:
		b.WriteString("map[" + t.Key.String() + "]")
		b.WriteString(t.Elem.String())
	case KAgg:
		b.WriteString(t.Agg.Name)
	case KFunc:
		b.WriteString("func(")
		for i, p := range t.In {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.String())
		}
		if t.Variadic {
			b.WriteString(", ...")
		}
		b.WriteString(")")
		if t.Ret != nil && t.Ret.Kind != KVoid {
			b.WriteString(" " + t.Ret.String())
		}
	default:
		b.WriteString(kindNames[t.Kind])
	}

	if t.Qual&QShared != 0 {
		b.WriteString(")")
	}
	if t.Qual&(QConst|QImmutable) != 0 {
		b.WriteString(")")
	}

	return b.String()
}

func (t *Type) IsInteger() bool {
	switch t.Kind {
	case KBool, KChar, KInt8, KUint8, KInt16, KUint16, KInt32, KUint32, KInt64, KUint64:
		return true
	}

	return false
}

func (t *Type) IsFloat() bool {
	return t.Kind == KFloat32 || t.Kind == KFloat64
}

func (t *Type) IsUnsigned() bool {
	switch t.Kind {
	case KBool, KChar, KUint8, KUint16, KUint32, KUint64:
		return true
	}

	return false
}

func (t *Type) IsError() bool { return t.Kind == KError }
