package lower

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/symtab"
	"github.com/dusklang/dusk/compiler/types"
)

func (l *Lowerer) lowerBlock(fn *funcCtx, b *ast.Block) {
	fn.binds.Push()

	for _, s := range b.Stmts {
		l.lowerStmt(fn, s)
	}

	fn.binds.Pop()
}

func (l *Lowerer) lowerStmt(fn *funcCtx, s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VarDecl:
		sym, _ := s.Sym.(*symtab.Symbol)
		if sym == nil {
			return
		}

		slot := fn.b.NewAlloca(l.irType(sym.Type))
		fn.binds.Bind(sym, slot)

		init := initOf(sym)
		if init != nil {
			v := l.value(fn, init)
			fn.b.NewStore(v, slot)
		} else {
			fn.b.NewStore(constant.NewZeroInitializer(l.irType(sym.Type)), slot)
		}

	case *ast.Assign:
		dst := l.addr(fn, s.Lhs)
		v := l.value(fn, s.Rhs)
		fn.b.NewStore(v, dst)

	case *ast.If:
		cond := l.truth(fn, s.Cond)

		then := fn.f.NewBlock("")
		done := fn.f.NewBlock("")
		els := done
		if s.Else != nil {
			els = fn.f.NewBlock("")
		}

		fn.b.NewCondBr(cond, then, els)

		fn.b = then
		l.lowerBlock(fn, s.Then)
		if fn.b.Term == nil {
			fn.b.NewBr(done)
		}

		switch e := s.Else.(type) {
		case *ast.Block:
			fn.b = els
			l.lowerBlock(fn, e)
			if fn.b.Term == nil {
				fn.b.NewBr(done)
			}
		case *ast.If:
			fn.b = els
			l.lowerStmt(fn, e)
			if fn.b.Term == nil {
				fn.b.NewBr(done)
			}
		}

		fn.b = done

	case *ast.For:
		check := fn.f.NewBlock("")
		body := fn.f.NewBlock("")
		done := fn.f.NewBlock("")

		fn.b.NewBr(check)

		fn.b = check
		if s.Cond != nil {
			fn.b.NewCondBr(l.truth(fn, s.Cond), body, done)
		} else {
			fn.b.NewBr(body)
		}

		fn.b = body
		l.lowerBlock(fn, s.Body)
		if fn.b.Term == nil {
			fn.b.NewBr(check)
		}

		fn.b = done

	case *ast.Return:
		if s.Value == nil {
			fn.b.NewRet(nil)
		} else {
			fn.b.NewRet(l.value(fn, s.Value))
		}
		// unreachable continuation for anything after the return
		fn.b = fn.f.NewBlock("")

	case *ast.ExprStmt:
		l.value(fn, s.X)

	case *ast.Label:
		bb := fn.labelBlock(s.Name)
		if fn.b.Term == nil {
			fn.b.NewBr(bb)
		}
		fn.b = bb

	case *ast.Goto:
		fn.b.NewBr(fn.labelBlock(s.Name))
		fn.b = fn.f.NewBlock("")

	case *ast.Assert:
		if !s.Live {
			return
		}

		l.trapUnless(fn, l.truth(fn, s.Cond))

	case *ast.Block:
		l.lowerBlock(fn, s)

	case *ast.Asm:
		l.lowerAsm(fn, s)

	default:
		l.Sink.InternalErrorf("cannot lower statement %T", s)
	}
}

func (fn *funcCtx) labelBlock(name string) *ir.Block {
	if bb, ok := fn.labels[name]; ok {
		return bb
	}

	bb := fn.f.NewBlock(name)
	fn.labels[name] = bb

	return bb
}

// truth evaluates a condition to an i1.
func (l *Lowerer) truth(fn *funcCtx, e ast.Expr) value.Value {
	v := l.value(fn, e)
	t := ast.ExprType(e)

	switch {
	case t != nil && t.IsFloat():
		return fn.b.NewFCmp(enum.FPredONE, v, constant.NewFloat(v.Type().(*lltypes.FloatType), 0))
	case lltypes.IsPointer(v.Type()):
		return fn.b.NewICmp(enum.IPredNE, v, constant.NewNull(v.Type().(*lltypes.PointerType)))
	}

	return fn.b.NewICmp(enum.IPredNE, v, constant.NewInt(v.Type().(*lltypes.IntType), 0))
}

// value evaluates an expression to an LLVM value.
func (l *Lowerer) value(fn *funcCtx, e ast.Expr) value.Value {
	switch e := e.(type) {
	case *ast.IntLit:
		return constant.NewInt(l.irType(e.Typ).(*lltypes.IntType), e.Val)

	case *ast.FloatLit:
		return constant.NewFloat(l.irType(e.Typ).(*lltypes.FloatType), e.Val)

	case *ast.StrLit:
		st := l.irType(e.Typ).(*lltypes.StructType)
		return constant.NewStruct(st,
			constant.NewInt(lltypes.I64, int64(len(e.Val))),
			l.strRef(e.Val))

	case *ast.Ident:
		return l.symValue(fn, e.Sym, e.Typ)

	case *ast.Selector:
		if sym, ok := e.Sym.(*symtab.Symbol); ok && sym != nil {
			return l.symValue(fn, sym, e.Typ)
		}
		return l.selectorValue(fn, e)

	case *ast.Call:
		return l.callValue(fn, e)

	case *ast.Unary:
		return l.unaryValue(fn, e)

	case *ast.Binary:
		return l.binaryValue(fn, e)

	case *ast.Index:
		return fn.b.NewLoad(l.irType(e.Typ), l.addr(fn, e))

	case *ast.Cast:
		v := l.value(fn, e.X)
		return l.castValue(fn, v, ast.ExprType(e.X), e.Typ)

	case *ast.StructLit, *ast.ArrayLit:
		return l.litValue(fn, e)

	case *ast.TemplateInst:
		return l.symValue(fn, e.Sym, e.Typ)
	}

	l.Sink.InternalErrorf("cannot lower expression %T", e)
	return constant.NewInt(lltypes.I32, 0)
}

func (l *Lowerer) symValue(fn *funcCtx, s any, t *types.Type) value.Value {
	sym, ok := s.(*symtab.Symbol)
	if !ok || sym == nil {
		l.Sink.InternalErrorf("unbound identifier in lowering")
		return constant.NewInt(lltypes.I32, 0)
	}

	switch sym.Kind {
	case symtab.KFunc:
		return l.funcRef(sym)

	case symtab.KVar:
		if slot := fn.binds.Slot(sym); slot != nil {
			return fn.b.NewLoad(l.irType(t), slot)
		}
		return fn.b.NewLoad(l.irType(t), l.globalAddr(sym))
	}

	l.Sink.InternalErrorf("cannot use %v %v as a value here", sym.Kind, sym.Name)
	return constant.NewInt(lltypes.I32, 0)
}

// selectorValue handles field loads and the built-in array properties.
func (l *Lowerer) selectorValue(fn *funcCtx, e *ast.Selector) value.Value {
	xt := ast.ExprType(e.X)
	base := xt.Base()
	if base.Kind == types.KPointer {
		base = base.Elem.Base()
	}

	switch base.Kind {
	case types.KDArray:
		v := l.value(fn, e.X)
		if xt.Base().Kind == types.KPointer {
			v = fn.b.NewLoad(l.irType(base), v)
		}
		switch e.Name {
		case "length":
			return fn.b.NewExtractValue(v, 0)
		case "ptr":
			return fn.b.NewExtractValue(v, 1)
		}

	case types.KSArray:
		switch e.Name {
		case "length":
			return constant.NewInt(lltypes.I64, base.Dim)
		case "ptr":
			a := l.addr(fn, e.X)
			return fn.b.NewGetElementPtr(l.irType(base), a,
				constant.NewInt(lltypes.I32, 0), constant.NewInt(lltypes.I32, 0))
		}
	}

	return fn.b.NewLoad(l.irType(e.Typ), l.addr(fn, e))
}

func (l *Lowerer) callValue(fn *funcCtx, e *ast.Call) value.Value {
	callee := l.value(fn, e.Fn)

	args := make([]value.Value, len(e.Args))
	for i, a := range e.Args {
		args[i] = l.value(fn, a)
	}

	return fn.b.NewCall(callee, args...)
}

func (l *Lowerer) unaryValue(fn *funcCtx, e *ast.Unary) value.Value {
	switch e.Op {
	case "&":
		return l.addr(fn, e.X)

	case "*":
		p := l.value(fn, e.X)
		return fn.b.NewLoad(l.irType(e.Typ), p)

	case "-":
		v := l.value(fn, e.X)
		if e.Typ.IsFloat() {
			return fn.b.NewFNeg(v)
		}
		return fn.b.NewSub(constant.NewInt(v.Type().(*lltypes.IntType), 0), v)

	case "!":
		t := l.truth(fn, e.X)
		inv := fn.b.NewXor(t, constant.NewInt(lltypes.I1, 1))
		return fn.b.NewZExt(inv, lltypes.I8)
	}

	l.Sink.InternalErrorf("cannot lower unary %v", e.Op)
	return constant.NewInt(lltypes.I32, 0)
}

func (l *Lowerer) binaryValue(fn *funcCtx, e *ast.Binary) value.Value {
	switch e.Op {
	case "&&", "||":
		return l.shortCircuit(fn, e)
	}

	xt := ast.ExprType(e.X)

	x := l.value(fn, e.X)
	y := l.value(fn, e.Y)

	switch e.Op {
	case "==", "!=", "<", "<=", ">", ">=":
		return l.compare(fn, e.Op, x, y, xt)
	}

	// pointer +- integer
	if xt.Base().Kind == types.KPointer {
		if e.Op == "-" {
			y = fn.b.NewSub(constant.NewInt(y.Type().(*lltypes.IntType), 0), y)
		}
		return fn.b.NewGetElementPtr(l.irType(xt.Base().Elem), x, y)
	}

	if xt.IsFloat() {
		switch e.Op {
		case "+":
			return fn.b.NewFAdd(x, y)
		case "-":
			return fn.b.NewFSub(x, y)
		case "*":
			return fn.b.NewFMul(x, y)
		case "/":
			return fn.b.NewFDiv(x, y)
		case "%":
			return fn.b.NewFRem(x, y)
		}
	}

	switch e.Op {
	case "+":
		return fn.b.NewAdd(x, y)
	case "-":
		return fn.b.NewSub(x, y)
	case "*":
		return fn.b.NewMul(x, y)
	case "/":
		if xt.IsUnsigned() {
			return fn.b.NewUDiv(x, y)
		}
		return fn.b.NewSDiv(x, y)
	case "%":
		if xt.IsUnsigned() {
			return fn.b.NewURem(x, y)
		}
		return fn.b.NewSRem(x, y)
	}

	l.Sink.InternalErrorf("cannot lower binary %v", e.Op)
	return constant.NewInt(lltypes.I32, 0)
}

var (
	signedPreds = map[string]enum.IPred{
		"==": enum.IPredEQ, "!=": enum.IPredNE,
		"<": enum.IPredSLT, "<=": enum.IPredSLE,
		">": enum.IPredSGT, ">=": enum.IPredSGE,
	}
	unsignedPreds = map[string]enum.IPred{
		"==": enum.IPredEQ, "!=": enum.IPredNE,
		"<": enum.IPredULT, "<=": enum.IPredULE,
		">": enum.IPredUGT, ">=": enum.IPredUGE,
	}
	floatPreds = map[string]enum.FPred{
		"==": enum.FPredOEQ, "!=": enum.FPredONE,
		"<": enum.FPredOLT, "<=": enum.FPredOLE,
		">": enum.FPredOGT, ">=": enum.FPredOGE,
	}
)

func (l *Lowerer) compare(fn *funcCtx, op string, x, y value.Value, t *types.Type) value.Value {
	var c value.Value

	switch {
	case t.IsFloat():
		c = fn.b.NewFCmp(floatPreds[op], x, y)
	case t.IsUnsigned() || t.Base().Kind == types.KPointer:
		c = fn.b.NewICmp(unsignedPreds[op], x, y)
	default:
		c = fn.b.NewICmp(signedPreds[op], x, y)
	}

	return fn.b.NewZExt(c, lltypes.I8)
}

// shortCircuit lowers && and || with control flow so the right side only
// evaluates when needed.
func (l *Lowerer) shortCircuit(fn *funcCtx, e *ast.Binary) value.Value {
	x := l.truth(fn, e.X)
	xEnd := fn.b

	rhs := fn.f.NewBlock("")
	done := fn.f.NewBlock("")

	if e.Op == "&&" {
		fn.b.NewCondBr(x, rhs, done)
	} else {
		fn.b.NewCondBr(x, done, rhs)
	}

	fn.b = rhs
	y := l.truth(fn, e.Y)
	yEnd := fn.b
	fn.b.NewBr(done)

	fn.b = done

	short := int64(0)
	if e.Op == "||" {
		short = 1
	}

	phi := fn.b.NewPhi(
		ir.NewIncoming(constant.NewInt(lltypes.I1, short), xEnd),
		ir.NewIncoming(y, yEnd),
	)

	return fn.b.NewZExt(phi, lltypes.I8)
}

// litValue materializes a composite literal through a stack temporary.
func (l *Lowerer) litValue(fn *funcCtx, e ast.Expr) value.Value {
	t := ast.ExprType(e)
	lt := l.irType(t)

	tmp := fn.b.NewAlloca(lt)
	fn.b.NewStore(constant.NewZeroInitializer(lt), tmp)

	switch e := e.(type) {
	case *ast.StructLit:
		agg := t.Base().Agg
		next := 0

		for i, el := range e.Elems {
			idx := next
			if e.Names[i] != "" {
				idx = fieldIndex(agg, e.Names[i])
				if idx < 0 {
					continue
				}
			}
			next = idx + 1

			dst := l.fieldAddr(fn, tmp, t.Base(), idx)
			fn.b.NewStore(l.value(fn, el), dst)
		}

	case *ast.ArrayLit:
		next := int64(0)

		for i, el := range e.Elems {
			if idx := e.Indexes[i]; idx != nil {
				iv := l.value(fn, idx)
				if c, ok := iv.(*constant.Int); ok {
					next = c.X.Int64()
				}
			}

			dst := fn.b.NewGetElementPtr(lt, tmp,
				constant.NewInt(lltypes.I32, 0), constant.NewInt(lltypes.I64, next))
			fn.b.NewStore(l.value(fn, el), dst)
			next++
		}
	}

	return fn.b.NewLoad(lt, tmp)
}

// addr computes the address of an lvalue.
func (l *Lowerer) addr(fn *funcCtx, e ast.Expr) value.Value {
	switch e := e.(type) {
	case *ast.Ident:
		sym, _ := e.Sym.(*symtab.Symbol)
		if sym == nil {
			break
		}

		if sym.Kind == symtab.KFunc {
			return l.funcRef(sym)
		}
		if slot := fn.binds.Slot(sym); slot != nil {
			return slot
		}
		return l.globalAddr(sym)

	case *ast.Selector:
		if sym, ok := e.Sym.(*symtab.Symbol); ok && sym != nil {
			if slot := fn.binds.Slot(sym); slot != nil {
				return slot
			}
			if sym.Kind == symtab.KVar {
				return l.globalAddr(sym)
			}
			if sym.Kind == symtab.KFunc {
				return l.funcRef(sym)
			}
		}

		xt := ast.ExprType(e.X)
		base := xt.Base()

		var a value.Value
		if base.Kind == types.KPointer {
			a = l.value(fn, e.X)
			base = base.Elem.Base()
		} else {
			a = l.addr(fn, e.X)
		}

		idx := fieldIndex(base.Agg, e.Name)
		if idx < 0 {
			break
		}

		return l.fieldAddr(fn, a, base, idx)

	case *ast.Index:
		xt := ast.ExprType(e.X).Base()
		iv := l.value(fn, e.Idx)

		switch xt.Kind {
		case types.KSArray:
			a := l.addr(fn, e.X)
			if e.Check {
				l.boundsGuard(fn, iv, ast.ExprType(e.Idx),
					constant.NewInt(lltypes.I64, xt.Dim))
			}
			return fn.b.NewGetElementPtr(l.irType(xt), a,
				constant.NewInt(lltypes.I32, 0), iv)

		case types.KDArray:
			v := l.value(fn, e.X)
			p := fn.b.NewExtractValue(v, 1)
			if e.Check {
				l.boundsGuard(fn, iv, ast.ExprType(e.Idx), fn.b.NewExtractValue(v, 0))
			}
			return fn.b.NewGetElementPtr(l.irType(xt.Elem), p, iv)

		case types.KPointer:
			p := l.value(fn, e.X)
			return fn.b.NewGetElementPtr(l.irType(xt.Elem), p, iv)
		}

		l.Sink.InternalErrorf("cannot lower indexing of %v", xt)
		return constant.NewNull(lltypes.NewPointer(lltypes.I8))

	case *ast.Unary:
		if e.Op == "*" {
			return l.value(fn, e.X)
		}
	}

	// rvalues spill to a temporary so member access on call results works
	if t := ast.ExprType(e); t != nil {
		tmp := fn.b.NewAlloca(l.irType(t))
		fn.b.NewStore(l.value(fn, e), tmp)
		return tmp
	}

	l.Sink.InternalErrorf("cannot take the address of %T", e)
	return constant.NewNull(lltypes.NewPointer(lltypes.I8))
}

// fieldAddr addresses field idx of an aggregate. Union members bitcast the
// storage blob; struct members index past the explicit padding.
func (l *Lowerer) fieldAddr(fn *funcCtx, base value.Value, t *types.Type, idx int) value.Value {
	agg := t.Agg

	if agg.Union {
		return fn.b.NewBitCast(base, lltypes.NewPointer(l.irType(agg.Fields[idx].Type)))
	}

	return fn.b.NewGetElementPtr(l.aggType(agg), base,
		constant.NewInt(lltypes.I32, 0),
		constant.NewInt(lltypes.I32, int64(l.fieldSlot(agg, idx))))
}

// castValue lowers a conversion between canonical types.
func (l *Lowerer) castValue(fn *funcCtx, v value.Value, from, to *types.Type) value.Value {
	if from == nil || to == nil || from == to {
		return v
	}

	fb, tb := from.Base(), to.Base()
	lt := l.irType(to)

	switch {
	case fb == tb:
		return v

	case from.IsInteger() && to.IsInteger():
		fs, _ := l.Types.SizeOf(from)
		ts, _ := l.Types.SizeOf(to)

		switch {
		case ts < fs:
			return fn.b.NewTrunc(v, lt)
		case ts > fs && from.IsUnsigned():
			return fn.b.NewZExt(v, lt)
		case ts > fs:
			return fn.b.NewSExt(v, lt)
		}
		return v

	case from.IsInteger() && to.IsFloat():
		if from.IsUnsigned() {
			return fn.b.NewUIToFP(v, lt)
		}
		return fn.b.NewSIToFP(v, lt)

	case from.IsFloat() && to.IsInteger():
		if to.IsUnsigned() {
			return fn.b.NewFPToUI(v, lt)
		}
		return fn.b.NewFPToSI(v, lt)

	case from.IsFloat() && to.IsFloat():
		fs, _ := l.Types.SizeOf(from)
		ts, _ := l.Types.SizeOf(to)
		if ts < fs {
			return fn.b.NewFPTrunc(v, lt)
		}
		return fn.b.NewFPExt(v, lt)

	case isPtrKind(fb) && isPtrKind(tb):
		return fn.b.NewBitCast(v, lt)

	case isPtrKind(fb) && to.IsInteger():
		return fn.b.NewPtrToInt(v, lt)

	case from.IsInteger() && isPtrKind(tb):
		return fn.b.NewIntToPtr(v, lt)

	case fb.Kind == types.KSArray && tb.Kind == types.KDArray:
		// decay: a fresh {len, ptr} pair over the array storage
		tmp := fn.b.NewAlloca(l.irType(fb))
		fn.b.NewStore(v, tmp)
		p := fn.b.NewGetElementPtr(l.irType(fb), tmp,
			constant.NewInt(lltypes.I32, 0), constant.NewInt(lltypes.I32, 0))

		st := lt.(*lltypes.StructType)
		pair := fn.b.NewInsertValue(constant.NewZeroInitializer(st),
			constant.NewInt(lltypes.I64, fb.Dim), 0)
		return fn.b.NewInsertValue(pair, p, 1)
	}

	l.Sink.InternalErrorf("cannot lower conversion %v to %v", from, to)
	return v
}

// globalAddr returns the address of a global as a pointer to its semantic
// type. The static-initializer encoding gives defined globals a packed byte
// layout, so the reference casts back.
func (l *Lowerer) globalAddr(sym *symtab.Symbol) value.Value {
	g := l.globalRef(sym)

	pt := lltypes.NewPointer(l.irType(sym.Type))
	if lltypes.Equal(g.Typ, pt) {
		return g
	}

	return constant.NewBitCast(g, pt)
}

func (l *Lowerer) trapRef() *ir.Func {
	if l.trap == nil {
		l.trap = l.M.NewFunc("llvm.trap", lltypes.Void)
	}

	return l.trap
}

// trapUnless continues only when cond holds; the failure path calls the trap
// intrinsic.
func (l *Lowerer) trapUnless(fn *funcCtx, cond value.Value) {
	fail := fn.f.NewBlock("")
	cont := fn.f.NewBlock("")

	fn.b.NewCondBr(cond, cont, fail)

	fail.NewCall(l.trapRef())
	fail.NewUnreachable()

	fn.b = cont
}

// boundsGuard traps when idx is not below length. The index widens to the
// length word so the unsigned compare also catches negative values.
func (l *Lowerer) boundsGuard(fn *funcCtx, iv value.Value, it *types.Type, length value.Value) {
	w := iv
	if !lltypes.Equal(iv.Type(), lltypes.I64) {
		if it != nil && it.IsUnsigned() {
			w = fn.b.NewZExt(iv, lltypes.I64)
		} else {
			w = fn.b.NewSExt(iv, lltypes.I64)
		}
	}

	l.trapUnless(fn, fn.b.NewICmp(enum.IPredULT, w, length))
}

func isPtrKind(t *types.Type) bool {
	switch t.Kind {
	case types.KPointer, types.KFunc, types.KValist, types.KAArray:
		return true
	}

	return false
}
