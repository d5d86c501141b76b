package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dusklang/dusk/compiler/target"
)

func newCtx() *Context {
	return NewContext(target.Default())
}

func TestInterningIdempotence(t *testing.T) {
	c := newCtx()

	p1 := c.Pointer(c.SArray(c.Int32, 4))
	p2 := c.Pointer(c.SArray(c.Int32, 4))
	require.Same(t, p1, p2)

	f1 := c.Func([]*Type{c.Int32, c.Pointer(c.Char)}, c.Void, true)
	f2 := c.Func([]*Type{c.Int32, c.Pointer(c.Char)}, c.Void, true)
	require.Same(t, f1, f2)

	require.NotSame(t, c.Pointer(c.Int32), c.Pointer(c.Int64))
}

func TestQualifierIdempotence(t *testing.T) {
	c := newCtx()

	ct := c.Qualify(c.Int32, QConst)
	require.Same(t, ct, c.Qualify(ct, QConst))
	require.Same(t, ct, c.Qualify(c.Int32, QConst))
	require.Same(t, c.Int32, ct.Base())

	im := c.Qualify(c.Int32, QImmutable)
	require.NotSame(t, ct, im)

	// immutable implies const for compatibility checks
	require.Equal(t, MatchQual, c.Match(im, ct))
	// but const does not imply immutable
	require.Equal(t, MatchNo, c.Match(ct, im))
}

func TestBasicStructLayout(t *testing.T) {
	c := newCtx()

	agg := &Agg{
		Name: "test.S",
		Fields: []Field{
			{Name: "b", Type: c.Int8},
			{Name: "i", Type: c.Int32},
		},
	}
	c.LayoutAgg(agg)

	require.EqualValues(t, 8, agg.Size)
	require.EqualValues(t, 4, agg.Align)
	require.EqualValues(t, 0, agg.Fields[0].Offset)
	require.EqualValues(t, 4, agg.Fields[1].Offset)
}

func TestLayoutAlignOverrideAndTrailingPad(t *testing.T) {
	c := newCtx()

	agg := &Agg{
		Name: "test.T",
		Fields: []Field{
			{Name: "a", Type: c.Int32},
			{Name: "b", Type: c.Int8, AlignOverride: 8},
			{Name: "c", Type: c.Int16},
		},
	}
	c.LayoutAgg(agg)

	require.EqualValues(t, 0, agg.Fields[0].Offset)
	require.EqualValues(t, 8, agg.Fields[1].Offset)
	require.EqualValues(t, 10, agg.Fields[2].Offset)
	require.EqualValues(t, 8, agg.Align)
	require.EqualValues(t, 16, agg.Size)
}

func TestUnionLayout(t *testing.T) {
	c := newCtx()

	agg := &Agg{
		Name:  "test.U",
		Union: true,
		Fields: []Field{
			{Name: "i", Type: c.Int32},
			{Name: "l", Type: c.Int64},
		},
	}
	c.LayoutAgg(agg)

	require.EqualValues(t, 0, agg.Fields[0].Offset)
	require.EqualValues(t, 0, agg.Fields[1].Offset)
	require.EqualValues(t, 8, agg.Size)
	require.EqualValues(t, 8, agg.Align)
}

func TestSArraySize(t *testing.T) {
	c := newCtx()

	sz, al := c.SizeOf(c.SArray(c.Int16, 5))
	require.EqualValues(t, 10, sz)
	require.EqualValues(t, 2, al)

	sz, al = c.SizeOf(c.DArray(c.Int8))
	require.EqualValues(t, 16, sz)
	require.EqualValues(t, 8, al)
}

func TestMatchRanking(t *testing.T) {
	c := newCtx()

	require.Equal(t, MatchExact, c.Match(c.Int32, c.Int32))
	require.Equal(t, MatchConvert, c.Match(c.Int16, c.Int32))
	require.Equal(t, MatchConvert, c.Match(c.Int16, c.Int64))
	require.Equal(t, MatchNo, c.Match(c.Int64, c.Int32))
	require.Equal(t, MatchConvert, c.Match(c.Int32, c.Float64))

	// pointers only convert toward const elements
	pi := c.Pointer(c.Int32)
	pc := c.Pointer(c.Qualify(c.Int32, QConst))
	require.Equal(t, MatchQual, c.Match(pi, pc))
	require.Equal(t, MatchNo, c.Match(pc, pi))
}

func TestCompatible(t *testing.T) {
	c := newCtx()

	require.True(t, c.Compatible(c.Int32, c.Int32))
	require.False(t, c.Compatible(c.Int32, c.Int64))

	// valist bridges to the backend's pointer representation
	require.True(t, c.Compatible(c.Valist, c.Pointer(c.Void)))

	a1 := c.SArray(c.Int8, 3)
	a2 := c.SArray(c.Int8, 3)
	require.True(t, c.Compatible(a1, a2))
	require.False(t, c.Compatible(a1, c.SArray(c.Int8, 4)))
}
