package lower

import (
	"encoding/binary"
	"math"

	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"

	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/semantic"
	"github.com/dusklang/dusk/compiler/symtab"
	"github.com/dusklang/dusk/compiler/types"
)

type (
	// dtList is the flat static-initializer image of one global: a strictly
	// ascending sequence of byte runs, zero runs and pointer words. The
	// ascending-offset invariant is what catches duplicate union
	// initialization.
	dtList struct {
		entries []dtEntry
		off     int64
	}

	dtEntry struct {
		off   int64
		bytes []byte
		zero  int64
		ptr   constant.Constant // pointer-sized relocation
	}
)

func (dl *dtList) addBytes(b []byte) {
	if len(b) == 0 {
		return
	}

	dl.entries = append(dl.entries, dtEntry{off: dl.off, bytes: b})
	dl.off += int64(len(b))
}

func (dl *dtList) addZero(n int64) {
	if n <= 0 {
		return
	}

	dl.entries = append(dl.entries, dtEntry{off: dl.off, zero: n})
	dl.off += n
}

func (dl *dtList) addPtr(c constant.Constant, size int64) {
	dl.entries = append(dl.entries, dtEntry{off: dl.off, ptr: c})
	dl.off += size
}

// dtPad advances the image to the given offset with zero fill. Moving
// backwards means two initializers claimed overlapping storage, which only
// happens when a union is initialized twice.
func (l *Lowerer) dtPad(dl *dtList, pos ast.Pos, to int64) bool {
	if to < dl.off {
		l.Sink.Errorf(pos, "duplicate union initialization")
		return false
	}

	dl.addZero(to - dl.off)

	return true
}

// dtValue encodes one initializer value of type t at the current offset.
func (l *Lowerer) dtValue(dl *dtList, t *types.Type, e ast.Expr, pos ast.Pos) {
	size, _ := l.Types.SizeOf(t)

	if e == nil {
		l.dtDefault(dl, t)
		return
	}

	if t.IsInteger() {
		v, ok := semantic.FoldInt(e)
		if !ok {
			l.Sink.Errorf(pos, "global initializer must be an integer constant")
			dl.addZero(size)
			return
		}

		l.dtInt(dl, uint64(v), size)
		return
	}

	if t.IsFloat() {
		v, ok := semantic.FoldFloat(e)
		if !ok {
			l.Sink.Errorf(pos, "global initializer must be a floating constant")
			dl.addZero(size)
			return
		}

		if size == 4 {
			l.dtInt(dl, uint64(math.Float32bits(float32(v))), 4)
		} else {
			l.dtInt(dl, math.Float64bits(v), 8)
		}
		return
	}

	switch e := e.(type) {
	case *ast.Cast:
		// array decay and qualifier adjustments carry the payload through
		l.dtValue(dl, t, e.X, pos)
		return

	case *ast.StrLit:
		l.dtString(dl, t, e.Val, pos)
		return

	case *ast.Unary:
		if e.Op == "&" {
			if c := l.constAddr(e.X); c != nil {
				dl.addPtr(c, l.ptrSize())
				return
			}
		}

	case *ast.Ident:
		if sym, ok := e.Sym.(*symtab.Symbol); ok && sym.Kind == symtab.KFunc {
			dl.addPtr(l.funcRef(sym), l.ptrSize())
			return
		}

	case *ast.StructLit:
		l.dtStruct(dl, t, e, pos)
		return

	case *ast.ArrayLit:
		l.dtArray(dl, t, e, pos)
		return
	}

	l.Sink.Errorf(pos, "global initializer is not constant")
	dl.addZero(size)
}

// dtDefault encodes the default value of a type: zero for scalars, the field
// defaults for aggregates, repeated element defaults for static arrays.
func (l *Lowerer) dtDefault(dl *dtList, t *types.Type) {
	size, _ := l.Types.SizeOf(t)
	base := t.Base()

	switch base.Kind {
	case types.KAgg:
		if aggHasDefaults(base.Agg) {
			l.dtStruct(dl, t, nil, ast.Pos{})
			return
		}

	case types.KSArray:
		eb := base.Elem.Base()
		if eb.Kind == types.KAgg && aggHasDefaults(eb.Agg) {
			for i := int64(0); i < base.Dim; i++ {
				l.dtDefault(dl, base.Elem)
			}
			return
		}
	}

	dl.addZero(size)
}

func aggHasDefaults(agg *types.Agg) bool {
	for i := range agg.Fields {
		if agg.Fields[i].Init != nil {
			return true
		}

		fb := agg.Fields[i].Type.Base()
		if fb.Kind == types.KAgg && aggHasDefaults(fb.Agg) {
			return true
		}
	}

	return false
}

// dtStruct encodes an aggregate: the explicit literal value for a field if
// present, else the field's declared default, else the type default. Unions
// take exactly one member; a second explicit member trips the overlap check.
func (l *Lowerer) dtStruct(dl *dtList, t *types.Type, lit *ast.StructLit, pos ast.Pos) {
	agg := t.Base().Agg
	start := dl.off

	explicit := make(map[int]ast.Expr)
	if lit != nil {
		next := 0
		for i, el := range lit.Elems {
			idx := next
			if lit.Names[i] != "" {
				idx = fieldIndex(agg, lit.Names[i])
				if idx < 0 {
					continue
				}
			}
			explicit[idx] = el
			next = idx + 1
		}
	}

	if agg.Union {
		l.dtUnion(dl, agg, explicit, pos)
	} else {
		for i := range agg.Fields {
			f := &agg.Fields[i]

			e, ok := explicit[i]
			if !ok {
				e, _ = f.Init.(ast.Expr)
			}
			if e == nil && !typeHasDefault(f.Type) {
				continue
			}

			if !l.dtPad(dl, pos, start+f.Offset) {
				continue
			}

			l.dtValue(dl, f.Type, e, pos)
		}
	}

	l.dtPad(dl, pos, start+agg.Size)
}

// dtUnion encodes the initialized member of a union. All members live at
// offset zero, so any second member moves the offset backwards and is
// reported as duplicate initialization.
func (l *Lowerer) dtUnion(dl *dtList, agg *types.Agg, explicit map[int]ast.Expr, pos ast.Pos) {
	start := dl.off
	any := false

	for i := range agg.Fields {
		e, ok := explicit[i]
		if !ok {
			continue
		}

		if !l.dtPad(dl, pos, start+agg.Fields[i].Offset) {
			continue
		}

		l.dtValue(dl, agg.Fields[i].Type, e, pos)
		any = true
	}

	if !any && len(agg.Fields) > 0 {
		f := &agg.Fields[0]

		e, _ := f.Init.(ast.Expr)
		if e != nil || typeHasDefault(f.Type) {
			l.dtValue(dl, f.Type, e, pos)
		}
	}
}

func typeHasDefault(t *types.Type) bool {
	base := t.Base()

	switch base.Kind {
	case types.KAgg:
		return aggHasDefaults(base.Agg)
	case types.KSArray:
		return typeHasDefault(base.Elem)
	}

	return false
}

func fieldIndex(agg *types.Agg, name string) int {
	for i := range agg.Fields {
		if agg.Fields[i].Name == name {
			return i
		}
	}

	return -1
}

// dtArray encodes an array literal. Into a static array it encodes in place,
// with indexed elements seeking forward (and overlap diagnosed); into a
// dynamic array or pointer the payload is hoisted to an anonymous read-only
// global and referenced.
func (l *Lowerer) dtArray(dl *dtList, t *types.Type, lit *ast.ArrayLit, pos ast.Pos) {
	base := t.Base()

	switch base.Kind {
	case types.KSArray:
		start := dl.off
		esize, _ := l.Types.SizeOf(base.Elem)
		next := int64(0)

		for i, el := range lit.Elems {
			if idx := lit.Indexes[i]; idx != nil {
				if v, ok := semantic.FoldInt(idx); ok {
					next = v
				}
			}

			if !l.dtPad(dl, pos, start+next*esize) {
				continue
			}

			l.dtValue(dl, base.Elem, el, pos)
			next++
		}

		l.dtPad(dl, pos, start+base.Dim*esize)

	case types.KDArray, types.KPointer:
		n := arrayLitLen(lit)
		elem := base.Elem
		if lt := ast.ExprType(lit); lt != nil && lt.Base().Kind == types.KSArray {
			elem = lt.Base().Elem
			n = lt.Base().Dim
		}

		g := l.hoistArray(elem, n, lit, pos)

		if base.Kind == types.KDArray {
			l.dtInt(dl, uint64(n), l.ptrSize())
		}
		dl.addPtr(g, l.ptrSize())

	default:
		l.Sink.Errorf(pos, "array literal cannot initialize %v", t)
	}
}

func arrayLitLen(lit *ast.ArrayLit) int64 {
	next, max := int64(0), int64(0)

	for i := range lit.Elems {
		if idx := lit.Indexes[i]; idx != nil {
			if v, ok := semantic.FoldInt(idx); ok {
				next = v
			}
		}
		next++
		if next > max {
			max = next
		}
	}

	return max
}

// dtString encodes a string literal for the expected type: a dynamic array
// gets a length word and a pointer to hoisted bytes, a pointer just the
// pointer, a static char array the raw bytes padded with NULs.
func (l *Lowerer) dtString(dl *dtList, t *types.Type, s string, pos ast.Pos) {
	base := t.Base()

	switch base.Kind {
	case types.KDArray:
		l.dtInt(dl, uint64(len(s)), l.ptrSize())
		dl.addPtr(l.strRef(s), l.ptrSize())

	case types.KPointer:
		dl.addPtr(l.strRef(s), l.ptrSize())

	case types.KSArray:
		b := make([]byte, base.Dim)
		copy(b, s)
		if int64(len(s)) > base.Dim {
			l.Sink.Errorf(pos, "string of length %v does not fit [%v]", len(s), base.Dim)
		}
		dl.addBytes(b)

	default:
		l.Sink.Errorf(pos, "string literal cannot initialize %v", t)
	}
}

func (l *Lowerer) dtInt(dl *dtList, v uint64, size int64) {
	b := make([]byte, size)

	if l.Types.Target.BigEndian {
		for i := int64(0); i < size; i++ {
			b[size-1-i] = byte(v >> (8 * i))
		}
	} else {
		switch size {
		case 1:
			b[0] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(b, uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(b, uint32(v))
		default:
			binary.LittleEndian.PutUint64(b, v)
		}
	}

	dl.addBytes(b)
}

// dtConst renders the image as a packed LLVM struct constant, preserving the
// byte-exact layout the offsets encode.
func (l *Lowerer) dtConst(dl *dtList, total int64) constant.Constant {
	if dl.off < total {
		dl.addZero(total - dl.off)
	}

	var (
		fts  []lltypes.Type
		vals []constant.Constant
	)

	for _, e := range dl.entries {
		switch {
		case e.bytes != nil:
			c := constant.NewCharArrayFromString(string(e.bytes))
			fts = append(fts, c.Typ)
			vals = append(vals, c)
		case e.zero != 0:
			at := lltypes.NewArray(uint64(e.zero), lltypes.I8)
			fts = append(fts, at)
			vals = append(vals, constant.NewZeroInitializer(at))
		default:
			fts = append(fts, e.ptr.Type())
			vals = append(vals, e.ptr)
		}
	}

	st := lltypes.NewStruct(fts...)
	st.Packed = true

	return constant.NewStruct(st, vals...)
}

// hoistArray materializes an array literal as an anonymous internal read-only
// global and returns a pointer to its first element.
func (l *Lowerer) hoistArray(elem *types.Type, dim int64, lit *ast.ArrayLit, pos ast.Pos) constant.Constant {
	at := l.Types.SArray(elem, dim)
	size, _ := l.Types.SizeOf(at)

	var dl dtList
	l.dtArray(&dl, at, lit, pos)

	c := l.dtConst(&dl, size)

	g := l.M.NewGlobalDef(l.anonName(".Larr"), c)
	g.Linkage = enum.LinkageInternal
	g.Immutable = true

	return constant.NewGetElementPtr(c.Type(), g,
		constant.NewInt(lltypes.I32, 0), constant.NewInt(lltypes.I32, 0))
}

// strRef interns a NUL-terminated string global and returns an i8* to it.
func (l *Lowerer) strRef(s string) constant.Constant {
	g, ok := l.strs[s]
	if !ok {
		g = l.M.NewGlobalDef(l.anonName(".Lstr"), constant.NewCharArrayFromString(s+"\x00"))
		g.Linkage = enum.LinkageInternal
		g.Immutable = true
		l.strs[s] = g
	}

	return constant.NewGetElementPtr(g.ContentType, g,
		constant.NewInt(lltypes.I32, 0), constant.NewInt(lltypes.I32, 0))
}

// constAddr resolves &expr in a constant context: the address of a global
// variable or function.
func (l *Lowerer) constAddr(e ast.Expr) constant.Constant {
	id, ok := e.(*ast.Ident)
	if !ok {
		return nil
	}

	sym, ok := id.Sym.(*symtab.Symbol)
	if !ok {
		return nil
	}

	switch sym.Kind {
	case symtab.KVar:
		if sym.Storage&(symtab.SGlobal|symtab.SStatic) != 0 {
			return l.globalRef(sym)
		}
	case symtab.KFunc:
		return l.funcRef(sym)
	}

	return nil
}

func (l *Lowerer) ptrSize() int64 { return l.Types.Target.PtrSize }
