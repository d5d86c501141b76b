package front

import (
	"tlog.app/go/errors"

	"github.com/dusklang/dusk/compiler/ast"
)

// parseType parses a syntactic type reference.
//
//	*T  [N]T  []T  map[K]V  const(T)  immutable(T)  shared(T)
//	func(T, ...) R  a.b.Name  Name!(T, ...)
func (p *parser) parseType(st int) (t ast.TypeExpr, i int, err error) {
	tk, tst, e := p.next(st)

	switch tk {
	case Op("*"):
		el, i, err := p.parseType(e)
		if err != nil {
			return nil, i, err
		}
		return &ast.PtrType{Pos: p.posAt(tst), Elem: el}, i, nil

	case Char('['):
		tk2, _, e2 := p.next(e)
		if tk2 == Char(']') {
			el, i, err := p.parseType(e2)
			if err != nil {
				return nil, i, err
			}
			return &ast.SliceType{Pos: p.posAt(tst), Elem: el}, i, nil
		}

		dim, i, err := p.parseExpr(e)
		if err != nil {
			return nil, i, errors.Wrap(err, "array dimension")
		}

		i, err = p.expect(i, Char(']'))
		if err != nil {
			return nil, i, err
		}

		el, i, err := p.parseType(i)
		if err != nil {
			return nil, i, err
		}

		return &ast.ArrType{Pos: p.posAt(tst), Dim: dim, Elem: el}, i, nil

	case Keyword("map"):
		i, err = p.expect(e, Char('['))
		if err != nil {
			return nil, i, err
		}

		key, i, err := p.parseType(i)
		if err != nil {
			return nil, i, errors.Wrap(err, "map key type")
		}

		i, err = p.expect(i, Char(']'))
		if err != nil {
			return nil, i, err
		}

		val, i, err := p.parseType(i)
		if err != nil {
			return nil, i, errors.Wrap(err, "map value type")
		}

		return &ast.MapType{Pos: p.posAt(tst), Key: key, Val: val}, i, nil

	case Keyword("const"), Keyword("immutable"), Keyword("shared"):
		i, err = p.expect(e, Char('('))
		if err != nil {
			return nil, i, err
		}

		el, i, err := p.parseType(i)
		if err != nil {
			return nil, i, err
		}

		i, err = p.expect(i, Char(')'))
		if err != nil {
			return nil, i, err
		}

		return &ast.QualType{Pos: p.posAt(tst), Qual: string(tk.(Keyword)), Elem: el}, i, nil

	case Keyword("func"):
		return p.parseFuncType(tst, e)
	}

	if _, ok := tk.(Ident); !ok {
		return nil, tst, NewUnexpected(tk, Ident(""))
	}

	path, i, err := p.parseDottedName(st)
	if err != nil {
		return nil, i, err
	}

	tk, _, e = p.next(i)
	if tk == Op("!") {
		args, i, err := p.parseTypeArgs(e)
		if err != nil {
			return nil, i, err
		}

		return &ast.InstType{Pos: p.posAt(tst), Name: path, Args: args}, i, nil
	}

	return &ast.NameType{Pos: p.posAt(tst), Path: path}, i, nil
}

func (p *parser) parseFuncType(tst, st int) (t ast.TypeExpr, i int, err error) {
	ft := &ast.FuncType{Pos: p.posAt(tst)}

	i, err = p.expect(st, Char('('))
	if err != nil {
		return nil, i, err
	}

	for {
		tk, pst, e := p.next(i)
		if tk == Char(')') {
			i = e
			break
		}
		if tk == Char(',') {
			i = e
			continue
		}

		if tk == Char('.') {
			i, err = p.parseEllipsis(pst)
			if err != nil {
				return nil, i, err
			}
			ft.Variadic = true
			continue
		}

		var prm ast.TypeExpr
		prm, i, err = p.parseType(i)
		if err != nil {
			return nil, i, errors.Wrap(err, "func type param")
		}

		ft.Params = append(ft.Params, prm)
	}

	if p.startsType(i) {
		ft.Ret, i, err = p.parseType(i)
		if err != nil {
			return nil, i, errors.Wrap(err, "func type return")
		}
	}

	return ft, i, nil
}

// startsType reports whether the token at i can begin a type reference.
// Used to detect optional return types.
func (p *parser) startsType(i int) bool {
	tk, _, _ := p.next(i)

	switch tk {
	case Op("*"), Char('['),
		Keyword("map"), Keyword("func"),
		Keyword("const"), Keyword("immutable"), Keyword("shared"):
		return true
	}

	_, ok := tk.(Ident)

	return ok
}

func (p *parser) parseTypeArgs(st int) (args []ast.TypeExpr, i int, err error) {
	i, err = p.expect(st, Char('('))
	if err != nil {
		return nil, i, err
	}

	for {
		tk, _, e := p.next(i)
		if tk == Char(')') {
			return args, e, nil
		}
		if tk == Char(',') {
			i = e
			continue
		}

		var a ast.TypeExpr
		a, i, err = p.parseType(i)
		if err != nil {
			return nil, i, errors.Wrap(err, "template argument")
		}

		args = append(args, a)
	}
}
