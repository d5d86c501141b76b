package front

import (
	"tlog.app/go/errors"

	"github.com/dusklang/dusk/compiler/ast"
)

func (p *parser) parseBlock(st int) (b *ast.Block, i int, err error) {
	tk, tst, i := p.next(st)
	if tk != Char('{') {
		return nil, tst, NewUnexpected(tk, Char('{'))
	}

	b = &ast.Block{Pos: p.posAt(tst)}

	for {
		tk, _, e := p.next(i)
		if tk == Char('}') {
			return b, e, nil
		}
		if tk == Char(';') { // empty statement
			i = e
			continue
		}
		if tk == nil {
			return nil, i, NewUnexpected(tk, Char('}'))
		}

		var s ast.Stmt
		s, i, err = p.parseStmt(i)
		if err != nil {
			return nil, i, err
		}

		b.Stmts = append(b.Stmts, s)
	}
}

func (p *parser) parseStmt(st int) (s ast.Stmt, i int, err error) {
	tk, tst, e := p.next(st)

	switch tk {
	case Keyword("var"), Keyword("static"):
		d, i, err := p.parseVarOrFunc(st)
		if err != nil {
			return nil, i, err
		}
		return d, i, nil

	case Keyword("if"):
		return p.parseIf(tst, e)

	case Keyword("for"):
		f := &ast.For{Pos: p.posAt(tst)}

		if nx, _, _ := p.next(e); nx == Char('(') {
			i, err = p.expect(e, Char('('))
			if err != nil {
				return nil, i, err
			}

			f.Cond, i, err = p.parseExpr(i)
			if err != nil {
				return nil, i, errors.Wrap(err, "for condition")
			}

			i, err = p.expect(i, Char(')'))
			if err != nil {
				return nil, i, err
			}
		} else {
			i = e
		}

		f.Body, i, err = p.parseBlock(i)

		return f, i, err

	case Keyword("return"):
		r := &ast.Return{Pos: p.posAt(tst)}
		i = e

		if nx, _, _ := p.next(i); nx != Char(';') {
			r.Value, i, err = p.parseExpr(i)
			if err != nil {
				return nil, i, errors.Wrap(err, "return value")
			}
		}

		i, err = p.expect(i, Char(';'))

		return r, i, err

	case Keyword("goto"):
		nm, nst, ne := p.next(e)
		id, ok := nm.(Ident)
		if !ok {
			return nil, nst, NewUnexpected(nm, Ident(""))
		}

		i, err = p.expect(ne, Char(';'))

		return &ast.Goto{Pos: p.posAt(tst), Name: string(id)}, i, err

	case Keyword("assert"):
		n := &ast.Assert{Pos: p.posAt(tst)}

		i, err = p.expect(e, Char('('))
		if err != nil {
			return nil, i, err
		}

		n.Cond, i, err = p.parseExpr(i)
		if err != nil {
			return nil, i, errors.Wrap(err, "assert condition")
		}

		if tk, _, ce := p.next(i); tk == Char(',') {
			n.Msg, i, err = p.parseExpr(ce)
			if err != nil {
				return nil, i, errors.Wrap(err, "assert message")
			}
		}

		i, err = p.expect(i, Char(')'))
		if err != nil {
			return nil, i, err
		}

		i, err = p.expect(i, Char(';'))

		return n, i, err

	case Keyword("asm"):
		return p.parseAsm(tst, e)

	case Char('{'):
		b, i, err := p.parseBlock(st)
		return b, i, err
	}

	// label: Ident followed by ':'
	if id, ok := tk.(Ident); ok {
		if c, _, ce := p.next(e); c == Char(':') {
			return &ast.Label{Pos: p.posAt(tst), Name: string(id)}, ce, nil
		}
	}

	x, i, err := p.parseExpr(st)
	if err != nil {
		return nil, i, err
	}

	tk, _, e = p.next(i)
	if tk == Op("=") {
		a := &ast.Assign{Pos: p.posAt(tst), Lhs: x}

		a.Rhs, i, err = p.parseExpr(e)
		if err != nil {
			return nil, i, errors.Wrap(err, "assignment")
		}

		i, err = p.expect(i, Char(';'))

		return a, i, err
	}

	i, err = p.expect(i, Char(';'))

	return &ast.ExprStmt{Pos: p.posAt(tst), X: x}, i, err
}

func (p *parser) parseIf(tst, st int) (s ast.Stmt, i int, err error) {
	n := &ast.If{Pos: p.posAt(tst)}

	i, err = p.expect(st, Char('('))
	if err != nil {
		return nil, i, err
	}

	n.Cond, i, err = p.parseExpr(i)
	if err != nil {
		return nil, i, errors.Wrap(err, "if condition")
	}

	i, err = p.expect(i, Char(')'))
	if err != nil {
		return nil, i, err
	}

	n.Then, i, err = p.parseBlock(i)
	if err != nil {
		return nil, i, err
	}

	tk, _, e := p.next(i)
	if tk != Keyword("else") {
		return n, i, nil
	}

	tk, est, ne := p.next(e)
	if tk == Keyword("if") {
		n.Else, i, err = p.parseIf(est, ne)
	} else {
		n.Else, i, err = p.parseBlock(e)
	}

	return n, i, err
}

// parseAsm parses an extended assembler statement:
//
//	asm { "tmpl" : "=r"(x), [nm] "r"(y) : "r"(z) : "memory" }
//
// Sections after the template are outputs, inputs, clobbers, each optional.
func (p *parser) parseAsm(tst, st int) (s ast.Stmt, i int, err error) {
	a := &ast.Asm{Pos: p.posAt(tst)}

	i, err = p.expect(st, Char('{'))
	if err != nil {
		return nil, i, err
	}

	a.Template, i, err = p.parseExpr(i)
	if err != nil {
		return nil, i, errors.Wrap(err, "asm template")
	}

	section := 0

	for {
		tk, tkst, e := p.next(i)

		switch tk {
		case Char('}'):
			return a, e, nil

		case Char(':'):
			section++
			if section > 3 {
				return nil, tkst, NewUnexpected(tk, Char('}'))
			}
			i = e
			continue

		case Char(','):
			i = e
			continue
		}

		switch section {
		case 1, 2:
			var op ast.AsmOperand
			op, i, err = p.parseAsmOperand(i)
			if err != nil {
				return nil, i, err
			}

			a.Args = append(a.Args, op)
			if section == 1 {
				a.NOut++
			}

		case 3:
			var c ast.Expr
			c, i, err = p.parseExpr(i)
			if err != nil {
				return nil, i, errors.Wrap(err, "asm clobber")
			}

			a.Clobbers = append(a.Clobbers, c)

		default:
			return nil, tkst, NewUnexpected(tk, Char(':'), Char('}'))
		}
	}
}

func (p *parser) parseAsmOperand(st int) (op ast.AsmOperand, i int, err error) {
	tk, tst, e := p.next(st)
	op.Pos = p.posAt(tst)

	if tk == Char('[') {
		nm, nst, ne := p.next(e)
		id, ok := nm.(Ident)
		if !ok {
			return op, nst, NewUnexpected(nm, Ident(""))
		}
		op.Name = string(id)

		i, err = p.expect(ne, Char(']'))
		if err != nil {
			return op, i, err
		}
	} else {
		i = st
	}

	// a primary, not a full expression: the operand parenthesis must stay
	// with the operand
	op.Constraint, i, err = p.parsePrimary(i)
	if err != nil {
		return op, i, errors.Wrap(err, "asm constraint")
	}

	i, err = p.expect(i, Char('('))
	if err != nil {
		return op, i, err
	}

	op.Arg, i, err = p.parseExpr(i)
	if err != nil {
		return op, i, errors.Wrap(err, "asm operand")
	}

	i, err = p.expect(i, Char(')'))

	return op, i, err
}
