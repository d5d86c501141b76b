package types

// MatchLevel ranks how well an argument type fits a parameter type. Higher is
// better; the overload resolver compares per-parameter vectors of these.
type MatchLevel int

const (
	MatchNo MatchLevel = iota
	MatchConvert
	MatchQual
	MatchExact
)

func (m MatchLevel) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchQual:
		return "qual"
	case MatchConvert:
		return "convert"
	}

	return "no"
}

// Match ranks the implicit conversion from -> to.
//
// Exact beats qualification conversion beats implicit numeric conversion.
// Immutable implies const: an immutable source matches a const target at
// qualification level.
func (c *Context) Match(from, to *Type) MatchLevel {
	if from == nil || to == nil || from.IsError() || to.IsError() {
		// error placeholders match anything so analysis can continue
		return MatchExact
	}

	if from == to {
		return MatchExact
	}

	if from.Base() == to.Base() {
		if qualConvertible(from.Qual, to.Qual) {
			return MatchQual
		}
		return MatchNo
	}

	// implicit numeric widening
	if from.IsInteger() && to.IsInteger() && intRank(to) >= intRank(from) {
		return MatchConvert
	}
	if (from.IsInteger() || from.IsFloat()) && to.IsFloat() {
		return MatchConvert
	}

	// pointer to const-qualified element pointer
	if from.Kind == KPointer && to.Kind == KPointer &&
		from.Elem.Base() == to.Elem.Base() &&
		qualConvertible(from.Elem.Qual, to.Elem.Qual) {
		return MatchQual
	}

	// static array decays to dynamic array of identical element
	if from.Kind == KSArray && to.Kind == KDArray && from.Elem == to.Elem {
		return MatchConvert
	}

	return MatchNo
}

// qualConvertible reports whether a value with qualifiers fq may bind a
// target with qualifiers tq. Adding const is fine; immutable satisfies const;
// immutability is never gained implicitly and shared-ness must agree.
func qualConvertible(fq, tq Qual) bool {
	if tq&QImmutable != 0 && fq&QImmutable == 0 {
		return false
	}

	if fq&QShared != tq&QShared {
		return false
	}

	norm := func(q Qual) Qual {
		if q&QImmutable != 0 {
			q |= QConst
		}
		return q &^ (QImmutable | QShared)
	}

	// the target may add const, never drop it
	return norm(tq)|norm(fq) == norm(tq)
}

// Compatible reports whether two canonical types are interchangeable when
// bridging to the backend's type nodes.
func (c *Context) Compatible(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	// the front end's variadic-argument-list type bridges to the backend's
	// native equivalent
	if a.Kind == KValist || b.Kind == KValist {
		return a.Kind == KPointer || b.Kind == KPointer ||
			a.Kind == KValist && b.Kind == KValist
	}

	// same-kind aggregates of identical element type (arrays) or identical
	// attribute sets
	if a.Kind == b.Kind {
		switch a.Kind {
		case KSArray:
			return a.Dim == b.Dim && c.Compatible(a.Elem, b.Elem)
		case KDArray:
			return c.Compatible(a.Elem, b.Elem)
		case KAgg:
			return a.Agg == b.Agg && a.Qual == b.Qual
		}
	}

	return false
}

func intRank(t *Type) int {
	switch t.Kind {
	case KBool:
		return 0
	case KChar, KInt8, KUint8:
		return 1
	case KInt16, KUint16:
		return 2
	case KInt32, KUint32:
		return 3
	case KInt64, KUint64:
		return 4
	}

	return -1
}
