// Package lower translates the analyzed module graph into LLVM IR: global
// data through the static-initializer encoder, functions through statement
// lowering, and names through the mangler.
package lower

import (
	"strconv"
	"strings"

	"github.com/nikandfor/hacked/hfmt"

	"github.com/dusklang/dusk/compiler/symtab"
	"github.com/dusklang/dusk/compiler/types"
)

// Mangle computes the linker name of a symbol and caches it. Native symbols
// use the deco-based scheme; foreign "c++" linkage uses the Itanium ABI so
// the object links against C++ directly. Plain extern symbols keep their
// source name.
func (l *Lowerer) Mangle(sym *symtab.Symbol) string {
	if sym.Mangled != "" {
		return sym.Mangled
	}

	switch {
	case sym.Foreign == "c++":
		sym.Mangled = l.mangleCxx(sym)
	case sym.Storage&symtab.SExtern != 0 && sym.Foreign == "":
		sym.Mangled = sym.Name
	case sym.Name == "main" && sym.Kind == symtab.KFunc && parentIsModule(sym):
		sym.Mangled = "main"
	default:
		sym.Mangled = mangleNative(sym)
	}

	return sym.Mangled
}

func parentIsModule(sym *symtab.Symbol) bool {
	return sym.Parent == nil || sym.Parent.Kind == symtab.KModule
}

// mangleNative produces _Dk <len><part>... <deco>. Every part of the
// fully-qualified name is length-prefixed, so the result never needs a
// separator and demangles deterministically.
func mangleNative(sym *symtab.Symbol) string {
	b := []byte("_Dk")

	for _, part := range fqnParts(sym) {
		b = hfmt.Appendf(b, "%d%s", len(part), part)
	}

	if sym.Type != nil {
		b = append(b, sym.Type.Deco()...)
	}

	return string(b)
}

func fqnParts(sym *symtab.Symbol) []string {
	var parts []string

	if sym.Mod != nil {
		parts = strings.Split(sym.Mod.Name, ".")
	}

	var chain []string
	for s := sym; s != nil && s.Kind != symtab.KModule; s = s.Parent {
		chain = append(chain, s.Name)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		parts = append(parts, chain[i])
	}

	return parts
}

// cxxMangler carries the Itanium substitution table: every compound component
// already emitted may be referenced as S_, S0_, S1_, ... with base-36 indexes.
type cxxMangler struct {
	b    []byte
	subs []string

	// bad is the first type with no Itanium encoding; the caller reports it.
	bad *types.Type
}

func (l *Lowerer) mangleCxx(sym *symtab.Symbol) string {
	m := &cxxMangler{b: []byte("_Z")}

	m.mangleName(sym)

	if sym.Kind == symtab.KFunc && sym.Type != nil {
		if len(sym.Type.In) == 0 {
			m.b = append(m.b, 'v')
		}
		for _, p := range sym.Type.In {
			m.mangleType(p)
		}
		if sym.Type.Variadic {
			m.b = append(m.b, 'z')
		}
	}

	if m.bad != nil {
		l.Sink.Errorf(sym.Pos, "type %v of %v cannot be represented in C++ linkage", m.bad, sym.Name)
	}

	return string(m.b)
}

func (m *cxxMangler) mangleName(sym *symtab.Symbol) {
	parts := fqnParts(sym)

	if len(parts) == 1 {
		m.source(parts[0])
		return
	}

	m.b = append(m.b, 'N')
	for _, p := range parts {
		m.source(p)
	}
	m.b = append(m.b, 'E')
}

func (m *cxxMangler) source(name string) {
	m.b = hfmt.Appendf(m.b, "%d%s", len(name), name)
}

var cxxBasic = map[types.Kind]string{
	types.KVoid: "v", types.KBool: "b", types.KChar: "c",
	types.KInt8: "a", types.KUint8: "h",
	types.KInt16: "s", types.KUint16: "t",
	types.KInt32: "i", types.KUint32: "j",
	types.KInt64: "l", types.KUint64: "m",
	types.KFloat32: "f", types.KFloat64: "d",
}

func (m *cxxMangler) mangleType(t *types.Type) {
	if t.Qual != 0 {
		if m.substitute(t.Deco()) {
			return
		}

		// immutable collapses to const on the C++ side
		if t.Qual&(types.QConst|types.QImmutable) != 0 {
			m.b = append(m.b, 'K')
		}
		if t.Qual&types.QShared != 0 {
			m.b = append(m.b, 'V')
		}

		m.mangleType(t.Base())
		m.record(t.Deco())

		return
	}

	if s, ok := cxxBasic[t.Kind]; ok {
		m.b = append(m.b, s...)
		return
	}

	if m.substitute(t.Deco()) {
		return
	}

	switch t.Kind {
	case types.KPointer:
		m.b = append(m.b, 'P')
		m.mangleType(t.Elem)

	case types.KAgg:
		names := strings.Split(t.Agg.Name, ".")
		if len(names) == 1 {
			m.source(names[0])
		} else {
			m.b = append(m.b, 'N')
			for _, n := range names {
				m.source(n)
			}
			m.b = append(m.b, 'E')
		}

	case types.KSArray:
		// arrays decay to element pointers across the C++ boundary
		m.b = append(m.b, 'P')
		m.mangleType(t.Elem)

	case types.KFunc:
		m.b = append(m.b, 'P', 'F')
		m.mangleType(t.Ret)
		if len(t.In) == 0 {
			m.b = append(m.b, 'v')
		}
		for _, p := range t.In {
			m.mangleType(p)
		}
		m.b = append(m.b, 'E')

	case types.KValist:
		m.source("__va_list_tag")

	default:
		// no C++ equivalent; length-prefix the deco so the name stays
		// syntactically valid, and flag the symbol as unlinkable
		if m.bad == nil {
			m.bad = t
		}
		m.source(t.Deco())
	}

	m.record(t.Deco())
}

// substitute emits S<n>_ when the component was mangled before.
func (m *cxxMangler) substitute(deco string) bool {
	for i, s := range m.subs {
		if s != deco {
			continue
		}

		m.b = append(m.b, 'S')
		if i > 0 {
			m.b = append(m.b, strings.ToUpper(strconv.FormatInt(int64(i-1), 36))...)
		}
		m.b = append(m.b, '_')

		return true
	}

	return false
}

func (m *cxxMangler) record(deco string) {
	m.subs = append(m.subs, deco)
}
