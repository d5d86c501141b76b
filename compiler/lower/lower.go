package lower

import (
	"context"
	"sort"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	"tlog.app/go/tlog"

	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/diag"
	"github.com/dusklang/dusk/compiler/symtab"
	"github.com/dusklang/dusk/compiler/types"
)

// Policy selects which template instances this object file carries.
type Policy int

const (
	// EmitNormal emits every instance the compiled modules use, with
	// link-once-odr linkage so duplicates across objects fold.
	EmitNormal Policy = iota
	// EmitAll emits every known instance.
	EmitAll
	// EmitPrivate emits instances the compiled modules instantiated, with
	// internal linkage.
	EmitPrivate
	// EmitNone emits no instances; another object must carry them.
	EmitNone
	// EmitAuto picks normal when the object format supports one-only
	// emission, private otherwise.
	EmitAuto
)

type (
	Lowerer struct {
		Sink  *diag.Sink
		Types *types.Context
		Set   *symtab.Set
		Emit  Policy

		M *ir.Module

		funcs    map[*symtab.Symbol]*ir.Func
		globals  map[*symtab.Symbol]*ir.Global
		strs     map[string]*ir.Global
		aggTypes map[*types.Agg]lltypes.Type

		trap *ir.Func
		anon int
	}

	funcCtx struct {
		sym *symtab.Symbol
		f   *ir.Func
		b   *ir.Block

		binds  Bindings
		labels map[string]*ir.Block
	}
)

func New(sink *diag.Sink, tc *types.Context, set *symtab.Set, emit Policy) *Lowerer {
	if emit == EmitAuto {
		if tc.Target.OneOnly {
			emit = EmitNormal
		} else {
			emit = EmitPrivate
		}
	}

	return &Lowerer{
		Sink:     sink,
		Types:    tc,
		Set:      set,
		Emit:     emit,
		M:        ir.NewModule(),
		funcs:    make(map[*symtab.Symbol]*ir.Func),
		globals:  make(map[*symtab.Symbol]*ir.Global),
		strs:     make(map[string]*ir.Global),
		aggTypes: make(map[*types.Agg]lltypes.Type),
	}
}

// Run lowers the root modules (and template instances per the emission
// policy) into one LLVM module. The caller is responsible for the
// all-or-nothing gate: a failed sink means the module must not be written.
func (l *Lowerer) Run(ctx context.Context) *ir.Module {
	tr := tlog.SpanFromContext(ctx)

	var bodies []*symtab.Symbol

	for _, m := range l.Set.Modules {
		if !m.Root {
			continue
		}

		for _, sym := range m.Scope.Symbols() {
			bodies = append(bodies, l.declareTop(sym)...)
		}
	}

	var instMems []*symtab.Symbol

	for _, m := range l.Set.Modules {
		for _, sym := range m.Scope.Symbols() {
			if sym.Kind == symtab.KTemplate {
				bs, ms := l.declareInstances(sym)
				bodies = append(bodies, bs...)
				instMems = append(instMems, ms...)
			}
		}
	}

	for _, sym := range bodies {
		l.lowerFunc(ctx, sym)
	}

	// instance linkage is decided once the bodies exist
	for _, mem := range instMems {
		l.instanceLinkage(mem)
	}

	tr.Printw("lowered", "globals", len(l.globals), "funcs", len(l.funcs))

	return l.M
}

// declareTop declares one top-level symbol and returns the function symbols
// whose bodies still need lowering.
func (l *Lowerer) declareTop(sym *symtab.Symbol) (bodies []*symtab.Symbol) {
	switch sym.Kind {
	case symtab.KVar:
		l.defineGlobal(sym)

	case symtab.KFunc:
		for _, f := range sym.OverloadSet() {
			l.funcRef(f)

			fi := f.Func()
			if fi != nil && fi.Decl != nil && fi.Decl.Body != nil {
				bodies = append(bodies, f)
			}
		}
	}

	return bodies
}

// declareInstances emits the members of a template's instances under the
// emission policy. Keys are sorted so output order is deterministic.
func (l *Lowerer) declareInstances(tpl *symtab.Symbol) (bodies, mems []*symtab.Symbol) {
	if l.Emit == EmitNone {
		return nil, nil
	}

	ti := tpl.Template()

	keys := make([]string, 0, len(ti.Instances))
	for k := range ti.Instances {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		inst := ti.Instances[k]
		ii := inst.Instance()

		if !l.emitInstance(ii) {
			continue
		}

		for _, mem := range ii.Members.Symbols() {
			if mem.Kind == symtab.KAlias {
				continue
			}

			bodies = append(bodies, l.declareTop(mem)...)
			mems = append(mems, mem)
		}
	}

	return bodies, mems
}

func (l *Lowerer) emitInstance(ii *symtab.InstanceInfo) bool {
	switch l.Emit {
	case EmitAll, EmitNormal:
		return true
	case EmitPrivate:
		return ii.Mod != nil && ii.Mod.Root
	}

	return false
}

func (l *Lowerer) instanceLinkage(mem *symtab.Symbol) {
	link := enum.LinkageLinkOnceODR
	if l.Emit == EmitPrivate {
		link = enum.LinkageInternal
	}

	if f, ok := l.funcs[mem]; ok && len(f.Blocks) != 0 {
		f.Linkage = link
	}
	if g, ok := l.globals[mem]; ok && g.Init != nil {
		g.Linkage = link
	}
}

// defineGlobal emits a module-level variable: a declaration for externs, a
// definition with its encoded initializer otherwise.
func (l *Lowerer) defineGlobal(sym *symtab.Symbol) *ir.Global {
	if g, ok := l.globals[sym]; ok {
		return g
	}

	name := l.Mangle(sym)
	gt := l.irType(sym.Type)

	if sym.Storage&symtab.SExtern != 0 {
		g := l.M.NewGlobal(name, gt)
		g.Linkage = enum.LinkageExternal
		l.globals[sym] = g
		return g
	}

	size, _ := l.Types.SizeOf(sym.Type)

	var dl dtList
	l.dtValue(&dl, sym.Type, initOf(sym), sym.Pos)

	g := l.M.NewGlobalDef(name, l.dtConst(&dl, size))
	if sym.Type.Qual&(types.QConst|types.QImmutable) != 0 {
		g.Immutable = true
	}
	l.globals[sym] = g

	return g
}

func initOf(sym *symtab.Symbol) ast.Expr {
	vi := sym.Var()
	if vi == nil {
		return nil
	}
	if vi.Init != nil {
		return vi.Init
	}
	if vi.Decl != nil {
		return vi.Decl.Init
	}

	return nil
}

// globalRef returns the ir global for a variable symbol, declaring it if it
// lives in a module that is not being emitted.
func (l *Lowerer) globalRef(sym *symtab.Symbol) *ir.Global {
	if g, ok := l.globals[sym]; ok {
		return g
	}

	if sym.Mod != nil && sym.Mod.Root {
		return l.defineGlobal(sym)
	}

	g := l.M.NewGlobal(l.Mangle(sym), l.irType(sym.Type))
	g.Linkage = enum.LinkageExternal
	l.globals[sym] = g

	return g
}

// funcRef returns the ir function for a symbol, creating the declaration on
// first use.
func (l *Lowerer) funcRef(sym *symtab.Symbol) *ir.Func {
	if f, ok := l.funcs[sym]; ok {
		return f
	}

	ft := sym.Type

	params := make([]*ir.Param, len(ft.In))
	var names []string
	if fi := sym.Func(); fi != nil && fi.Decl != nil {
		for _, p := range fi.Decl.Params {
			names = append(names, p.Name)
		}
	}

	for i, pt := range ft.In {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		params[i] = ir.NewParam(name, l.irType(pt))
	}

	f := l.M.NewFunc(l.Mangle(sym), l.irType(ft.Ret), params...)
	f.Sig.Variadic = ft.Variadic
	l.funcs[sym] = f

	return f
}

func (l *Lowerer) anonName(prefix string) string {
	l.anon++
	return prefix + "." + itoa(l.anon)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}

	return string(b[i:])
}

// irType maps a canonical type to its LLVM representation. Dynamic arrays
// are a {length, pointer} pair; associative arrays and valist bridge to an
// opaque pointer.
func (l *Lowerer) irType(t *types.Type) lltypes.Type {
	if t == nil {
		return lltypes.Void
	}

	base := t.Base()

	switch base.Kind {
	case types.KVoid:
		return lltypes.Void
	case types.KBool, types.KChar, types.KInt8, types.KUint8, types.KError:
		return lltypes.I8
	case types.KInt16, types.KUint16:
		return lltypes.I16
	case types.KInt32, types.KUint32:
		return lltypes.I32
	case types.KInt64, types.KUint64:
		return lltypes.I64
	case types.KFloat32:
		return lltypes.Float
	case types.KFloat64:
		return lltypes.Double

	case types.KPointer:
		if base.Elem.Base().Kind == types.KVoid {
			return lltypes.NewPointer(lltypes.I8)
		}
		return lltypes.NewPointer(l.irType(base.Elem))

	case types.KSArray:
		return lltypes.NewArray(uint64(base.Dim), l.irType(base.Elem))

	case types.KDArray:
		return lltypes.NewStruct(lltypes.I64, lltypes.NewPointer(l.irType(base.Elem)))

	case types.KAArray, types.KValist:
		return lltypes.NewPointer(lltypes.I8)

	case types.KAgg:
		return l.aggType(base.Agg)

	case types.KFunc:
		in := make([]lltypes.Type, len(base.In))
		for i, p := range base.In {
			in[i] = l.irType(p)
		}
		ft := lltypes.NewFunc(l.irType(base.Ret), in...)
		ft.Variadic = base.Variadic
		return lltypes.NewPointer(ft)
	}

	l.Sink.InternalErrorf("cannot lower type %v", t)
	return lltypes.I8
}

// aggType materializes a named struct type. Union storage is a byte blob of
// the union's size so any member may overlay it.
func (l *Lowerer) aggType(agg *types.Agg) lltypes.Type {
	if st, ok := l.aggTypes[agg]; ok {
		return st
	}

	if agg.Union {
		st := lltypes.NewStruct(lltypes.NewArray(uint64(agg.Size), lltypes.I8))
		def := l.M.NewTypeDef(agg.Name, st)
		l.aggTypes[agg] = def
		return def
	}

	// padding between fields is made explicit so offsets match the front
	// end's layout exactly
	var fts []lltypes.Type
	off := int64(0)

	for i := range agg.Fields {
		f := &agg.Fields[i]

		if f.Offset > off {
			fts = append(fts, lltypes.NewArray(uint64(f.Offset-off), lltypes.I8))
		}

		fts = append(fts, l.irType(f.Type))

		fs, _ := l.Types.SizeOf(f.Type)
		off = f.Offset + fs
	}

	if agg.Size > off {
		fts = append(fts, lltypes.NewArray(uint64(agg.Size-off), lltypes.I8))
	}

	st := lltypes.NewStruct(fts...)
	st.Packed = true

	def := l.M.NewTypeDef(agg.Name, st)
	l.aggTypes[agg] = def

	return def
}

// fieldSlot maps a semantic field index to the LLVM struct field index,
// accounting for explicit padding members.
func (l *Lowerer) fieldSlot(agg *types.Agg, idx int) int {
	slot := 0
	off := int64(0)

	for i := 0; i < idx; i++ {
		f := &agg.Fields[i]
		if f.Offset > off {
			slot++
		}
		slot++
		fs, _ := l.Types.SizeOf(f.Type)
		off = f.Offset + fs
	}

	if agg.Fields[idx].Offset > off {
		slot++
	}

	return slot
}

// lowerFunc translates one function body.
func (l *Lowerer) lowerFunc(ctx context.Context, sym *symtab.Symbol) {
	fi := sym.Func()
	d := fi.Decl

	f := l.funcRef(sym)
	if len(f.Blocks) != 0 {
		return
	}

	fn := &funcCtx{
		sym:    sym,
		f:      f,
		labels: make(map[string]*ir.Block),
	}

	fn.b = f.NewBlock("entry")
	fn.binds.Push()

	// parameters spill to stack slots so they are addressable
	for i, prm := range f.Params {
		slot := fn.b.NewAlloca(prm.Typ)
		fn.b.NewStore(prm, slot)

		if i < len(fi.Params) {
			fn.binds.Bind(fi.Params[i], slot)
		}
	}

	l.lowerBlock(fn, d.Body)

	fn.binds.Pop()

	if fn.b.Term == nil {
		if sym.Type.Ret.Kind == types.KVoid {
			fn.b.NewRet(nil)
		} else {
			fn.b.NewRet(constant.NewZeroInitializer(l.irType(sym.Type.Ret)))
		}
	}
}

