package types

// SizeOf returns the target size and alignment of t in bytes. The rules must
// match the backend's own layout bit-for-bit: sequential field layout with
// padding up to each field's required alignment and trailing padding rounding
// the aggregate up to its own alignment.
//
// Error types and unsized (forward-referenced) aggregates report size 0; the
// caller is responsible for having diagnosed them.
func (c *Context) SizeOf(t *Type) (size, align int64) {
	switch t.Kind {
	case KError:
		return 0, 1
	case KPointer, KAArray:
		return c.Target.PtrSize, c.Target.PtrAlign
	case KDArray:
		// length word + data pointer
		return 2 * c.Target.PtrSize, c.Target.PtrAlign
	case KValist:
		return c.Target.PtrSize, c.Target.PtrAlign
	case KFunc:
		return c.Target.PtrSize, c.Target.PtrAlign
	case KSArray:
		es, ea := c.SizeOf(t.Elem)
		return es * t.Dim, ea
	case KAgg:
		if !t.Agg.Sized {
			c.LayoutAgg(t.Agg)
		}
		return t.Agg.Size, t.Agg.Align
	}

	l, ok := c.Target.Basic[kindNames[t.Kind]]
	if !ok {
		return 0, 1
	}

	return l.Size, l.Align
}

// LayoutAgg assigns field offsets and the aggregate size/alignment.
// Unions overlay every field at offset 0; classes lay out like structs here
// (no virtual dispatch in dusk).
func (c *Context) LayoutAgg(agg *Agg) {
	var off, maxAlign, maxSize int64 = 0, 1, 0

	for i := range agg.Fields {
		f := &agg.Fields[i]

		fs, fa := c.SizeOf(f.Type)
		if f.AlignOverride != 0 {
			fa = f.AlignOverride
		}
		if fa > maxAlign {
			maxAlign = fa
		}

		if agg.Union {
			f.Offset = 0
			if fs > maxSize {
				maxSize = fs
			}
			continue
		}

		off = roundUp(off, fa)
		f.Offset = off
		off += fs
	}

	if agg.Union {
		off = maxSize
	}

	agg.Align = maxAlign
	agg.Size = roundUp(off, maxAlign)
	agg.Sized = true
}

// FieldAt finds a field by name, nil when absent.
func (agg *Agg) FieldAt(name string) *Field {
	for i := range agg.Fields {
		if agg.Fields[i].Name == name {
			return &agg.Fields[i]
		}
	}

	return nil
}

func roundUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}

	return (n + align - 1) / align * align
}
