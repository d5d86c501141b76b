package semantic

import (
	"context"
	"math"

	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/symtab"
	"github.com/dusklang/dusk/compiler/types"
)

// exprSem types an expression in place and returns its type. Errors are
// reported to the sink and recovered with the error type so a single bad
// subexpression does not cascade.
func (a *Analyzer) exprSem(ctx context.Context, sc *symtab.Scope, e ast.Expr) *types.Type {
	t := a.exprSem1(ctx, sc, e)
	if t == nil {
		t = a.Types.Error
	}

	ast.SetExprType(e, t)

	return t
}

func (a *Analyzer) exprSem1(ctx context.Context, sc *symtab.Scope, e ast.Expr) *types.Type {
	switch e := e.(type) {
	case *ast.IntLit:
		if e.Val > math.MaxInt32 || e.Val < math.MinInt32 {
			return a.Types.Int64
		}
		return a.Types.Int32

	case *ast.FloatLit:
		return a.Types.Float64

	case *ast.StrLit:
		return a.Types.DArray(a.Types.Qualify(a.Types.Char, types.QImmutable|types.QConst))

	case *ast.Ident:
		sym := sc.Lookup(a.Sink, e.Name)
		if sym == nil {
			a.Sink.Errorf(e.Pos, "undefined identifier %v", e.Name)
			return a.Types.Error
		}

		e.Sym = sym

		return a.valueType(ctx, e.Pos, sym)

	case *ast.Selector:
		return a.selectorSem(ctx, sc, e)

	case *ast.Call:
		return a.callSem(ctx, sc, e)

	case *ast.Unary:
		return a.unarySem(ctx, sc, e)

	case *ast.Binary:
		return a.binarySem(ctx, sc, e)

	case *ast.Index:
		return a.indexSem(ctx, sc, e)

	case *ast.Cast:
		xt := a.exprSem(ctx, sc, e.X)
		to := a.resolveType(ctx, sc, e.To)

		if !castAllowed(xt, to) {
			a.Sink.Errorf(e.Pos, "cannot cast %v to %v", xt, to)
			return a.Types.Error
		}

		return to

	case *ast.StructLit:
		return a.structLitSem(ctx, sc, e)

	case *ast.ArrayLit:
		return a.arrayLitSem(ctx, sc, e)

	case *ast.TemplateInst:
		inst := a.instantiateNamed(ctx, sc, e.Pos, e.Name, e.Args)
		if inst.IsError() {
			return a.Types.Error
		}

		e.Sym = inst

		ii := inst.Instance()
		if ep := ii.Members.Own(ii.Of.Name); ep != nil {
			e.Sym = ep
			return a.valueType(ctx, e.Pos, ep)
		}

		a.Sink.Errorf(e.Pos, "template %v has no member %v usable as a value", ii.Of.Name, ii.Of.Name)
		return a.Types.Error
	}

	a.Sink.InternalErrorf("unhandled expression %T", e)
	return a.Types.Error
}

// valueType reads a symbol in value position.
func (a *Analyzer) valueType(ctx context.Context, pos ast.Pos, sym *symtab.Symbol) *types.Type {
	a.resolve(ctx, sym, 0)

	switch sym.Kind {
	case symtab.KVar, symtab.KFunc:
		if sym.Type == nil {
			return a.Types.Error
		}
		return sym.Type

	case symtab.KError:
		return a.Types.Error

	case symtab.KAggregate, symtab.KAlias:
		a.Sink.Errorf(pos, "type %v used as a value", sym.Name)

	case symtab.KTemplate:
		a.Sink.Errorf(pos, "template %v used as a value without arguments", sym.Name)

	default:
		a.Sink.Errorf(pos, "%v %v used as a value", sym.Kind, sym.Name)
	}

	return a.Types.Error
}

func (a *Analyzer) selectorSem(ctx context.Context, sc *symtab.Scope, e *ast.Selector) *types.Type {
	// a module-qualified reference shadows any same-named locals
	if path, ok := selectorPath(e); ok {
		if m := a.Set.Lookup(ast.DottedName(path[:len(path)-1])); m != nil {
			if sym := m.Scope.Own(path[len(path)-1]); sym != nil {
				e.Sym = sym
				return a.valueType(ctx, e.Pos, sym)
			}
		}
	}

	xt := a.exprSem(ctx, sc, e.X)
	if xt.IsError() {
		return a.Types.Error
	}

	base := xt.Base()
	if base.Kind == types.KPointer {
		base = base.Elem.Base()
	}

	if base.Kind == types.KDArray || base.Kind == types.KSArray {
		switch e.Name {
		case "length":
			return a.Types.Uint64
		case "ptr":
			return a.Types.Pointer(base.Elem)
		}
	}

	if base.Kind != types.KAgg {
		a.Sink.Errorf(e.Pos, "type %v has no member %v", xt, e.Name)
		return a.Types.Error
	}

	f := base.Agg.FieldAt(e.Name)
	if f == nil {
		a.Sink.Errorf(e.Pos, "%v has no field %v", base.Agg.Name, e.Name)
		return a.Types.Error
	}

	// qualifiers on the aggregate value apply to the field view
	return a.Types.Qualify(f.Type, xt.Qual)
}

func selectorPath(e *ast.Selector) ([]string, bool) {
	switch x := e.X.(type) {
	case *ast.Ident:
		return []string{x.Name, e.Name}, true
	case *ast.Selector:
		p, ok := selectorPath(x)
		if !ok {
			return nil, false
		}
		return append(p, e.Name), true
	}

	return nil, false
}

func (a *Analyzer) callSem(ctx context.Context, sc *symtab.Scope, e *ast.Call) *types.Type {
	argT := make([]*types.Type, len(e.Args))
	for i, arg := range e.Args {
		argT[i] = a.exprSem(ctx, sc, arg)
	}

	// callable through an overload set when the callee names a function
	if sym := a.calleeSymbol(ctx, sc, e.Fn); sym != nil {
		if sym.IsError() {
			return a.Types.Error
		}

		chosen := a.resolveOverload(ctx, e.Pos, sym, argT)
		if chosen.IsError() {
			return a.Types.Error
		}

		bindCallee(e.Fn, chosen)
		ast.SetExprType(e.Fn, chosen.Type)

		return a.checkCallArgs(e, chosen.Type, argT)
	}

	ft := a.exprSem(ctx, sc, e.Fn)
	if ft.IsError() {
		return a.Types.Error
	}

	base := ft.Base()
	if base.Kind == types.KPointer {
		base = base.Elem.Base()
	}
	if base.Kind != types.KFunc {
		a.Sink.Errorf(e.Pos, "cannot call value of type %v", ft)
		return a.Types.Error
	}

	return a.checkCallArgs(e, base, argT)
}

// calleeSymbol resolves the call target when it is a plain or qualified name
// bound to a function or template, nil otherwise.
func (a *Analyzer) calleeSymbol(ctx context.Context, sc *symtab.Scope, fn ast.Expr) *symtab.Symbol {
	switch fn := fn.(type) {
	case *ast.Ident:
		sym := sc.Lookup(a.Sink, fn.Name)
		if sym == nil {
			a.Sink.Errorf(fn.Pos, "undefined identifier %v", fn.Name)
			return symtab.NewError(fn.Name, fn.Pos)
		}
		if sym.Kind == symtab.KFunc || sym.Kind == symtab.KError {
			return sym
		}

	case *ast.Selector:
		if path, ok := selectorPath(fn); ok {
			if m := a.Set.Lookup(ast.DottedName(path[:len(path)-1])); m != nil {
				sym := m.Scope.Own(path[len(path)-1])
				if sym != nil && sym.Kind == symtab.KFunc {
					return sym
				}
			}
		}

	case *ast.TemplateInst:
		inst := a.instantiateNamed(ctx, sc, fn.Pos, fn.Name, fn.Args)
		if inst.IsError() {
			return inst
		}

		fn.Sym = inst

		ii := inst.Instance()
		if ep := ii.Members.Own(ii.Of.Name); ep != nil && ep.Kind == symtab.KFunc {
			fn.Sym = ep
			return ep
		}
	}

	return nil
}

func bindCallee(fn ast.Expr, sym *symtab.Symbol) {
	switch fn := fn.(type) {
	case *ast.Ident:
		fn.Sym = sym
	case *ast.Selector:
		fn.Sym = sym
	case *ast.TemplateInst:
		fn.Sym = sym
	}
}

// resolveOverload picks the best match from the overload set by comparing
// per-parameter match vectors. One candidate strictly at least as good as
// every other on each parameter wins; anything else is ambiguous.
func (a *Analyzer) resolveOverload(ctx context.Context, pos ast.Pos, sym *symtab.Symbol, argT []*types.Type) *symtab.Symbol {
	set := sym.OverloadSet()

	type cand struct {
		sym *symtab.Symbol
		vec []types.MatchLevel
	}

	var viable []cand

	for _, f := range set {
		a.resolve(ctx, f, 0)

		vec, ok := a.matchVector(f.Type, argT)
		if ok {
			viable = append(viable, cand{sym: f, vec: vec})
		}
	}

	switch len(viable) {
	case 0:
		a.Sink.Errorf(pos, "no overload of %v matches (%v)", sym.Name, typeList(argT))
		return symtab.NewError(sym.Name, pos)
	case 1:
		return viable[0].sym
	}

	best := 0
	tied := false

	for i := 1; i < len(viable); i++ {
		switch cmpVectors(viable[i].vec, viable[best].vec) {
		case +1:
			best, tied = i, false
		case 0:
			tied = true
		}
	}

	if !tied {
		// the winner must also beat candidates seen before the last swap
		for i := range viable {
			if i != best && cmpVectors(viable[best].vec, viable[i].vec) != +1 {
				tied = true
				break
			}
		}
	}

	if tied {
		a.Sink.Errorf(pos, "call of %v (%v) is ambiguous", sym.Name, typeList(argT))
		return symtab.NewError(sym.Name, pos)
	}

	return viable[best].sym
}

// matchVector ranks each argument against the parameter list. Variadic
// functions accept extra arguments at convert level.
func (a *Analyzer) matchVector(ft *types.Type, argT []*types.Type) ([]types.MatchLevel, bool) {
	if ft == nil || ft.Kind != types.KFunc {
		return nil, false
	}

	if len(argT) < len(ft.In) || len(argT) > len(ft.In) && !ft.Variadic {
		return nil, false
	}

	vec := make([]types.MatchLevel, len(argT))

	for i, at := range argT {
		if i >= len(ft.In) {
			vec[i] = types.MatchConvert
			continue
		}

		m := a.Types.Match(at, ft.In[i])
		if m == types.MatchNo {
			return nil, false
		}

		vec[i] = m
	}

	return vec, true
}

// cmpVectors compares match vectors pointwise: +1 when a is at least as good
// everywhere and strictly better somewhere, -1 for the mirror case, 0 when
// neither dominates.
func cmpVectors(a, b []types.MatchLevel) int {
	better, worse := false, false

	for i := range a {
		switch {
		case a[i] > b[i]:
			better = true
		case a[i] < b[i]:
			worse = true
		}
	}

	switch {
	case better && !worse:
		return +1
	case worse && !better:
		return -1
	}

	return 0
}

func (a *Analyzer) checkCallArgs(e *ast.Call, ft *types.Type, argT []*types.Type) *types.Type {
	if len(argT) < len(ft.In) || len(argT) > len(ft.In) && !ft.Variadic {
		a.Sink.Errorf(e.Pos, "wrong number of arguments: %v given, %v expected", len(argT), len(ft.In))
		return a.Types.Error
	}

	for i := range ft.In {
		if a.Types.Match(argT[i], ft.In[i]) == types.MatchNo {
			a.Sink.Errorf(ast.ExprPos(e.Args[i]), "cannot pass %v for parameter of type %v", argT[i], ft.In[i])
			continue
		}

		e.Args[i] = a.convert(e.Args[i], argT[i], ft.In[i])
	}

	return ft.Ret
}

func (a *Analyzer) unarySem(ctx context.Context, sc *symtab.Scope, e *ast.Unary) *types.Type {
	xt := a.exprSem(ctx, sc, e.X)
	if xt.IsError() {
		return a.Types.Error
	}

	switch e.Op {
	case "-":
		if !xt.IsInteger() && !xt.IsFloat() {
			a.Sink.Errorf(e.Pos, "operator - needs a numeric operand, not %v", xt)
			return a.Types.Error
		}
		return xt

	case "!":
		return a.Types.Bool

	case "&":
		if !isLvalue(e.X) {
			a.Sink.Errorf(e.Pos, "cannot take the address of this expression")
			return a.Types.Error
		}
		return a.Types.Pointer(xt)

	case "*":
		if xt.Base().Kind != types.KPointer {
			a.Sink.Errorf(e.Pos, "cannot dereference %v", xt)
			return a.Types.Error
		}
		return xt.Base().Elem
	}

	a.Sink.InternalErrorf("unhandled unary operator %v", e.Op)
	return a.Types.Error
}

func (a *Analyzer) binarySem(ctx context.Context, sc *symtab.Scope, e *ast.Binary) *types.Type {
	xt := a.exprSem(ctx, sc, e.X)
	yt := a.exprSem(ctx, sc, e.Y)

	if xt.IsError() || yt.IsError() {
		return a.Types.Error
	}

	switch e.Op {
	case "&&", "||":
		return a.Types.Bool

	case "==", "!=", "<", "<=", ">", ">=":
		if common := a.commonType(xt, yt); common == nil {
			a.Sink.Errorf(e.Pos, "cannot compare %v and %v", xt, yt)
		}
		return a.Types.Bool

	case "+", "-", "*", "/", "%":
		// pointer arithmetic: pointer +- integer
		if xt.Base().Kind == types.KPointer && yt.IsInteger() && (e.Op == "+" || e.Op == "-") {
			return xt
		}

		common := a.commonType(xt, yt)
		if common == nil || !common.IsInteger() && !common.IsFloat() {
			a.Sink.Errorf(e.Pos, "operator %v undefined for %v and %v", e.Op, xt, yt)
			return a.Types.Error
		}

		e.X = a.convert(e.X, xt, common)
		e.Y = a.convert(e.Y, yt, common)

		return common
	}

	a.Sink.InternalErrorf("unhandled binary operator %v", e.Op)
	return a.Types.Error
}

// commonType computes the usual arithmetic common type, nil when the operands
// do not unify.
func (a *Analyzer) commonType(x, y *types.Type) *types.Type {
	if x == y {
		return x
	}

	if a.Types.Match(x, y) != types.MatchNo {
		return y
	}
	if a.Types.Match(y, x) != types.MatchNo {
		return x
	}

	return nil
}

func (a *Analyzer) indexSem(ctx context.Context, sc *symtab.Scope, e *ast.Index) *types.Type {
	xt := a.exprSem(ctx, sc, e.X)
	it := a.exprSem(ctx, sc, e.Idx)

	if xt.IsError() || it.IsError() {
		return a.Types.Error
	}

	base := xt.Base()

	switch base.Kind {
	case types.KSArray, types.KDArray, types.KPointer:
		if !it.IsInteger() {
			a.Sink.Errorf(e.Pos, "index must be an integer, not %v", it)
		}

		switch {
		case base.Kind == types.KPointer:
			// no length to check against

		case base.Kind == types.KSArray:
			if v, ok := foldInt(e.Idx); ok {
				if v < 0 || v >= base.Dim {
					a.Sink.Errorf(e.Pos, "index %v is out of bounds for %v", v, xt)
				}
			} else {
				e.Check = a.checkBounds(sc)
			}

		default:
			e.Check = a.checkBounds(sc)
		}

		return a.Types.Qualify(base.Elem, xt.Qual)

	case types.KAArray:
		if a.Types.Match(it, base.Key) == types.MatchNo {
			a.Sink.Errorf(e.Pos, "key type %v does not match %v", it, base.Key)
		}
		return base.Elem
	}

	a.Sink.Errorf(e.Pos, "cannot index %v", xt)
	return a.Types.Error
}

// checkBounds decides whether an index expression gets a runtime guard.
func (a *Analyzer) checkBounds(sc *symtab.Scope) bool {
	return a.BoundsCheck == 2 || a.BoundsCheck == 1 && !sc.Trusted
}

func (a *Analyzer) structLitSem(ctx context.Context, sc *symtab.Scope, e *ast.StructLit) *types.Type {
	t := a.resolveType(ctx, sc, e.Type)
	if t.IsError() {
		return a.Types.Error
	}

	base := t.Base()
	if base.Kind != types.KAgg {
		a.Sink.Errorf(e.Pos, "%v is not an aggregate type", t)
		return a.Types.Error
	}

	agg := base.Agg
	next := 0

	for i, el := range e.Elems {
		var f *types.Field

		if e.Names[i] != "" {
			f = agg.FieldAt(e.Names[i])
			if f == nil {
				a.Sink.Errorf(ast.ExprPos(el), "%v has no field %v", agg.Name, e.Names[i])
				continue
			}
			for j := range agg.Fields {
				if &agg.Fields[j] == f {
					next = j + 1
				}
			}
		} else {
			if next >= len(agg.Fields) {
				a.Sink.Errorf(ast.ExprPos(el), "too many initializers for %v", agg.Name)
				continue
			}
			f = &agg.Fields[next]
			next++
		}

		et := a.exprSem(ctx, sc, el)
		if a.Types.Match(et, f.Type) == types.MatchNo {
			a.Sink.Errorf(ast.ExprPos(el), "cannot initialize field %v (%v) with %v", f.Name, f.Type, et)
			continue
		}

		e.Elems[i] = a.convert(el, et, f.Type)
	}

	return t
}

func (a *Analyzer) arrayLitSem(ctx context.Context, sc *symtab.Scope, e *ast.ArrayLit) *types.Type {
	var elem *types.Type
	next := int64(0)
	max := int64(0)

	for i, el := range e.Elems {
		if idx := e.Indexes[i]; idx != nil {
			a.exprSem(ctx, sc, idx)

			v, ok := foldInt(idx)
			if !ok || v < 0 {
				a.Sink.Errorf(ast.ExprPos(idx), "array literal index must be a non-negative integer constant")
				continue
			}
			next = v
		}

		et := a.exprSem(ctx, sc, el)

		if elem == nil {
			elem = et
		} else if a.Types.Match(et, elem) == types.MatchNo {
			a.Sink.Errorf(ast.ExprPos(el), "array element type %v does not match %v", et, elem)
		} else {
			e.Elems[i] = a.convert(el, et, elem)
		}

		next++
		if next > max {
			max = next
		}
	}

	if elem == nil {
		elem = a.Types.Void
	}

	return a.Types.SArray(elem, max)
}

// convert wraps e in an implicit cast node when the target type differs, so
// lowering sees the conversion explicitly.
func (a *Analyzer) convert(e ast.Expr, from, to *types.Type) ast.Expr {
	if from == to || to == nil || from == nil || from.IsError() || to.IsError() {
		return e
	}

	return &ast.Cast{Pos: ast.ExprPos(e), X: e, Typ: to}
}

func castAllowed(from, to *types.Type) bool {
	if from.IsError() || to.IsError() {
		return true
	}

	num := func(t *types.Type) bool { return t.IsInteger() || t.IsFloat() }
	ptr := func(t *types.Type) bool {
		k := t.Base().Kind
		return k == types.KPointer || k == types.KFunc || k == types.KValist
	}

	switch {
	case num(from) && num(to):
		return true
	case ptr(from) && (ptr(to) || to.IsInteger()):
		return true
	case from.IsInteger() && ptr(to):
		return true
	case from.Base() == to.Base():
		return true
	case from.Kind == types.KSArray && to.Kind == types.KDArray:
		return true
	}

	return false
}

func isLvalue(e ast.Expr) bool {
	switch e := e.(type) {
	case *ast.Ident, *ast.Selector, *ast.Index:
		return true
	case *ast.Unary:
		return e.Op == "*"
	}

	return false
}

func typeList(ts []*types.Type) string {
	s := ""
	for i, t := range ts {
		if i > 0 {
			s += ", "
		}
		s += t.String()
	}

	return s
}
