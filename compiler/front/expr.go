package front

import (
	"strconv"
	"strings"

	"tlog.app/go/errors"

	"github.com/dusklang/dusk/compiler/ast"
)

// binPrec maps binary operators to precedence levels, higher binds tighter.
var binPrec = map[Op]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3, "<": 3, "<=": 3, ">": 3, ">=": 3,
	"+": 4, "-": 4,
	"*": 5, "/": 5, "%": 5,
}

func (p *parser) parseExpr(st int) (x ast.Expr, i int, err error) {
	return p.parseBinary(st, 1)
}

func (p *parser) parseBinary(st, min int) (x ast.Expr, i int, err error) {
	x, i, err = p.parseUnary(st)
	if err != nil {
		return nil, i, err
	}

	for {
		tk, tst, e := p.next(i)

		op, ok := tk.(Op)
		if !ok {
			return x, i, nil
		}

		prec := binPrec[op]
		if prec < min {
			return x, i, nil
		}

		y, ni, err := p.parseBinary(e, prec+1)
		if err != nil {
			return nil, ni, err
		}

		x = &ast.Binary{Pos: p.posAt(tst), Op: string(op), X: x, Y: y}
		i = ni
	}
}

func (p *parser) parseUnary(st int) (x ast.Expr, i int, err error) {
	tk, tst, e := p.next(st)

	switch tk {
	case Op("-"), Op("!"), Op("&"), Op("*"):
		x, i, err = p.parseUnary(e)
		if err != nil {
			return nil, i, err
		}

		return &ast.Unary{Pos: p.posAt(tst), Op: string(tk.(Op)), X: x}, i, nil
	}

	return p.parsePostfix(st)
}

func (p *parser) parsePostfix(st int) (x ast.Expr, i int, err error) {
	x, i, err = p.parsePrimary(st)
	if err != nil {
		return nil, i, err
	}

	for {
		tk, tst, e := p.next(i)

		switch tk {
		case Char('.'):
			nm, nst, ne := p.next(e)
			id, ok := nm.(Ident)
			if !ok {
				return nil, nst, NewUnexpected(nm, Ident(""))
			}

			x = &ast.Selector{Pos: p.posAt(tst), X: x, Name: string(id)}
			i = ne

		case Char('('):
			call := &ast.Call{Pos: p.posAt(tst), Fn: x}

			call.Args, i, err = p.parseArgs(e)
			if err != nil {
				return nil, i, err
			}

			x = call

		case Char('['):
			var idx ast.Expr
			idx, i, err = p.parseExpr(e)
			if err != nil {
				return nil, i, err
			}

			i, err = p.expect(i, Char(']'))
			if err != nil {
				return nil, i, err
			}

			x = &ast.Index{Pos: p.posAt(tst), X: x, Idx: idx}

		case Op("!"):
			// Name!(args): explicit template instantiation on a pure
			// name chain. On anything else ! is not a postfix.
			path, ok := namePath(x)
			if !ok {
				return x, i, nil
			}

			nx, _, _ := p.next(e)
			if nx != Char('(') {
				return x, i, nil
			}

			args, ni, err := p.parseTypeArgs(e)
			if err != nil {
				return nil, ni, err
			}

			x = &ast.TemplateInst{Pos: p.posAt(tst), Name: path, Args: args}
			i = ni

		case Char('{'):
			path, ok := namePath(x)
			if !ok {
				return x, i, nil
			}

			lit := &ast.StructLit{
				Pos:  ast.ExprPos(x),
				Type: &ast.NameType{Pos: ast.ExprPos(x), Path: path},
			}

			lit.Names, lit.Elems, i, err = p.parseLitElems(e)
			if err != nil {
				return nil, i, err
			}

			x = lit

		default:
			return x, i, nil
		}
	}
}

func (p *parser) parsePrimary(st int) (x ast.Expr, i int, err error) {
	tk, tst, i := p.next(st)

	switch tk := tk.(type) {
	case Number:
		if strings.ContainsRune(string(tk), '.') {
			v, err := strconv.ParseFloat(strings.ReplaceAll(string(tk), "_", ""), 64)
			if err != nil {
				return nil, tst, errors.Wrap(err, "float literal")
			}

			return &ast.FloatLit{Pos: p.posAt(tst), Val: v}, i, nil
		}

		v, err := strconv.ParseInt(strings.ReplaceAll(string(tk), "_", ""), 0, 64)
		if err != nil {
			return nil, tst, errors.Wrap(err, "int literal")
		}

		return &ast.IntLit{Pos: p.posAt(tst), Val: v}, i, nil

	case Str:
		return &ast.StrLit{Pos: p.posAt(tst), Val: string(tk)}, i, nil

	case Ident:
		return &ast.Ident{Pos: p.posAt(tst), Name: string(tk)}, i, nil

	case Keyword:
		if tk == "cast" {
			return p.parseCast(tst, i)
		}

	case Char:
		switch byte(tk) {
		case '(':
			x, i, err = p.parseExpr(i)
			if err != nil {
				return nil, i, err
			}

			i, err = p.expect(i, Char(')'))

			return x, i, err

		case '[':
			return p.parseArrayLit(tst, i)
		}
	}

	return nil, tst, NewUnexpected(tk, Ident(""), Number(""), Str(""))
}

// parseCast parses cast(T) x.
func (p *parser) parseCast(tst, st int) (x ast.Expr, i int, err error) {
	i, err = p.expect(st, Char('('))
	if err != nil {
		return nil, i, err
	}

	to, i, err := p.parseType(i)
	if err != nil {
		return nil, i, errors.Wrap(err, "cast type")
	}

	i, err = p.expect(i, Char(')'))
	if err != nil {
		return nil, i, err
	}

	x, i, err = p.parseUnary(i)
	if err != nil {
		return nil, i, errors.Wrap(err, "cast operand")
	}

	return &ast.Cast{Pos: p.posAt(tst), To: to, X: x}, i, nil
}

func (p *parser) parseArgs(st int) (args []ast.Expr, i int, err error) {
	i = st

	for {
		tk, _, e := p.next(i)
		if tk == Char(')') {
			return args, e, nil
		}
		if tk == Char(',') {
			i = e
			continue
		}

		var a ast.Expr
		a, i, err = p.parseExpr(i)
		if err != nil {
			return nil, i, err
		}

		args = append(args, a)
	}
}

// parseLitElems parses composite literal elements after the opening brace:
// positional exprs or name: expr pairs.
func (p *parser) parseLitElems(st int) (names []string, elems []ast.Expr, i int, err error) {
	i = st

	for {
		tk, _, e := p.next(i)
		if tk == Char('}') {
			return names, elems, e, nil
		}
		if tk == Char(',') {
			i = e
			continue
		}

		name := ""
		if id, ok := tk.(Ident); ok {
			if c, _, ce := p.next(e); c == Char(':') {
				name = string(id)
				i = ce
			}
		}

		var el ast.Expr
		el, i, err = p.parseExpr(i)
		if err != nil {
			return nil, nil, i, err
		}

		names = append(names, name)
		elems = append(elems, el)
	}
}

// parseArrayLit parses [e0, e1] or [i: e] after the opening bracket.
func (p *parser) parseArrayLit(tst, st int) (x ast.Expr, i int, err error) {
	lit := &ast.ArrayLit{Pos: p.posAt(tst)}
	i = st

	for {
		tk, _, e := p.next(i)
		if tk == Char(']') {
			return lit, e, nil
		}
		if tk == Char(',') {
			i = e
			continue
		}

		var el ast.Expr
		el, i, err = p.parseExpr(i)
		if err != nil {
			return nil, i, err
		}

		var idx ast.Expr
		if c, _, ce := p.next(i); c == Char(':') {
			idx = el

			el, i, err = p.parseExpr(ce)
			if err != nil {
				return nil, i, err
			}
		}

		lit.Indexes = append(lit.Indexes, idx)
		lit.Elems = append(lit.Elems, el)
	}
}

// namePath flattens an Ident/Selector chain of plain names into a dotted
// path. It fails when the chain contains anything but names.
func namePath(x ast.Expr) ([]string, bool) {
	switch x := x.(type) {
	case *ast.Ident:
		return []string{x.Name}, true
	case *ast.Selector:
		path, ok := namePath(x.X)
		if !ok {
			return nil, false
		}
		return append(path, x.Name), true
	}

	return nil, false
}
