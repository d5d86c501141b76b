// Package front tokenizes and parses dusk source into the ast package's
// syntax tree.
package front

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/dusklang/dusk/compiler/ast"
)

type (
	parser struct {
		b    []byte
		file string

		lines []int // offsets of line starts
	}
)

// Parse turns one source file into an ast.File. The module name defaults to
// the file stem when no module declaration is present.
func Parse(ctx context.Context, name string, text []byte) (_ *ast.File, err error) {
	tr := tlog.SpanFromContext(ctx)
	tr.Printw("parse", "file", name, "size", len(text))

	p := &parser{
		b:    text,
		file: name,
	}
	p.index()

	f := &ast.File{Name: name}

	i := 0

	tk, _, e := p.next(i)
	if kw, ok := tk.(Keyword); ok && kw == "module" {
		f.Module, i, err = p.parseDottedName(e)
		if err == nil {
			i, err = p.expect(i, Char(';'))
		}
		if err != nil {
			return nil, errors.Wrap(err, "module declaration")
		}
	}

	if f.Module == nil {
		f.Module = []string{stem(name)}
	}

	for {
		tk, tst, _ := p.next(i)
		if tk == nil {
			break
		}

		var d ast.Decl
		d, i, err = p.parseDecl(i)
		if err != nil {
			return nil, errors.Wrap(err, "at %v", p.posAt(tst))
		}

		f.Decls = append(f.Decls, d)
	}

	return f, nil
}

func (p *parser) index() {
	p.lines = append(p.lines, 0)
	for i, c := range p.b {
		if c == '\n' {
			p.lines = append(p.lines, i+1)
		}
	}
}

func (p *parser) posAt(off int) ast.Pos {
	line := sort.Search(len(p.lines), func(i int) bool { return p.lines[i] > off })

	return ast.Pos{
		File: p.file,
		Line: line,
		Col:  off - p.lines[line-1] + 1,
	}
}

func (p *parser) expect(st int, want Token) (i int, err error) {
	tk, tst, i := p.next(st)
	if tk != want {
		return tst, NewUnexpected(tk, want)
	}

	return i, nil
}

func (p *parser) parseDottedName(st int) (path []string, i int, err error) {
	i = st

	for {
		tk, tst, e := p.next(i)
		id, ok := tk.(Ident)
		if !ok {
			return nil, tst, NewUnexpected(tk, Ident(""))
		}

		path = append(path, string(id))
		i = e

		tk, _, e = p.next(i)
		if tk != Char('.') {
			break
		}
		i = e
	}

	return path, i, nil
}

func (p *parser) parseDecl(st int) (d ast.Decl, i int, err error) {
	tk, tst, e := p.next(st)

	kw, ok := tk.(Keyword)
	if !ok {
		return nil, tst, NewUnexpected(tk, Keyword("var"), Keyword("func"), Keyword("type"))
	}

	switch kw {
	case "public":
		imp, i, err := p.parseImport(e)
		if imp != nil {
			imp.Public = true
		}
		return imp, i, err
	case "import":
		return p.parseImport(st)
	case "extern", "static", "trusted", "var", "func":
		return p.parseVarOrFunc(st)
	case "type":
		return p.parseTypeDecl(e)
	case "template":
		return p.parseTemplate(e)
	case "version", "debug":
		return p.parseVersionBlock(st)
	}

	return nil, tst, NewUnexpected(tk, Keyword("var"), Keyword("func"), Keyword("type"))
}

func (p *parser) parseImport(st int) (imp *ast.Import, i int, err error) {
	_, tst, e := p.next(st) // the import keyword

	path, i, err := p.parseDottedName(e)
	if err != nil {
		return nil, i, errors.Wrap(err, "import path")
	}

	i, err = p.expect(i, Char(';'))
	if err != nil {
		return nil, i, err
	}

	return &ast.Import{Pos: p.posAt(tst), Path: path}, i, nil
}

// parseVarOrFunc handles storage-class prefixes shared by both forms:
// [extern ["abi"]] [static] [trusted] (var | func) ...
func (p *parser) parseVarOrFunc(st int) (d ast.Decl, i int, err error) {
	var extern, static, trusted bool
	var foreign string

	i = st

	for {
		tk, tst, e := p.next(i)

		switch tk {
		case Keyword("extern"):
			extern = true
			i = e

			abi, _, se := p.next(i)
			if s, ok := abi.(Str); ok {
				foreign = string(s)
				i = se
			}
		case Keyword("static"):
			static = true
			i = e
		case Keyword("trusted"):
			trusted = true
			i = e
		case Keyword("var"):
			return p.parseVar(e, extern, static, foreign)
		case Keyword("func"):
			return p.parseFunc(e, extern, trusted, foreign)
		default:
			return nil, tst, NewUnexpected(tk, Keyword("var"), Keyword("func"))
		}
	}
}

func (p *parser) parseVar(st int, extern, static bool, foreign string) (d *ast.VarDecl, i int, err error) {
	tk, tst, i := p.next(st)
	id, ok := tk.(Ident)
	if !ok {
		return nil, tst, NewUnexpected(tk, Ident(""))
	}

	v := &ast.VarDecl{
		Pos:     p.posAt(tst),
		Name:    string(id),
		Extern:  extern,
		Static:  static,
		Foreign: foreign,
	}

	v.Type, i, err = p.parseType(i)
	if err != nil {
		return nil, i, errors.Wrap(err, "var %v type", v.Name)
	}

	tk, _, e := p.next(i)
	if tk == Op("=") {
		v.Init, i, err = p.parseExpr(e)
		if err != nil {
			return nil, i, errors.Wrap(err, "var %v initializer", v.Name)
		}
	}

	i, err = p.expect(i, Char(';'))

	return v, i, err
}

func (p *parser) parseFunc(st int, extern, trusted bool, foreign string) (d *ast.FuncDecl, i int, err error) {
	tk, tst, i := p.next(st)
	id, ok := tk.(Ident)
	if !ok {
		return nil, tst, NewUnexpected(tk, Ident(""))
	}

	f := &ast.FuncDecl{
		Pos:     p.posAt(tst),
		Name:    string(id),
		Extern:  extern,
		Trusted: trusted,
		Foreign: foreign,
	}

	i, err = p.expect(i, Char('('))
	if err != nil {
		return nil, i, err
	}

	for {
		tk, tst, e := p.next(i)
		if tk == Char(')') {
			i = e
			break
		}
		if tk == Char(',') {
			i = e
			continue
		}

		if tk == Char('.') { // "..."
			i, err = p.parseEllipsis(tst)
			if err != nil {
				return nil, i, err
			}
			f.Variadic = true
			continue
		}

		name, ok := tk.(Ident)
		if !ok {
			return nil, tst, NewUnexpected(tk, Ident(""), Char(')'))
		}

		prm := ast.Param{Pos: p.posAt(tst), Name: string(name)}

		prm.Type, i, err = p.parseType(e)
		if err != nil {
			return nil, i, errors.Wrap(err, "param %v type", prm.Name)
		}

		f.Params = append(f.Params, prm)
	}

	tk, _, _ = p.next(i)
	switch tk {
	case Char('{'), Char(';'):
	default:
		f.Ret, i, err = p.parseType(i)
		if err != nil {
			return nil, i, errors.Wrap(err, "func %v return type", f.Name)
		}
	}

	tk, _, e := p.next(i)
	if tk == Char(';') {
		return f, e, nil
	}

	f.Body, i, err = p.parseBlock(i)
	if err != nil {
		return nil, i, errors.Wrap(err, "func %v body", f.Name)
	}

	return f, i, nil
}

func (p *parser) parseEllipsis(st int) (i int, err error) {
	i = st
	for k := 0; k < 3; k++ {
		i, err = p.expect(i, Char('.'))
		if err != nil {
			return i, errors.Wrap(err, "ellipsis")
		}
	}

	return i, nil
}

func (p *parser) parseTypeDecl(st int) (d ast.Decl, i int, err error) {
	tk, tst, i := p.next(st)
	id, ok := tk.(Ident)
	if !ok {
		return nil, tst, NewUnexpected(tk, Ident(""))
	}

	tk, tst2, e := p.next(i)

	if tk == Op("=") {
		a := &ast.AliasDecl{Pos: p.posAt(tst), Name: string(id)}

		a.Target, i, err = p.parseType(e)
		if err != nil {
			return nil, i, errors.Wrap(err, "alias %v", a.Name)
		}

		i, err = p.expect(i, Char(';'))

		return a, i, err
	}

	kw, ok := tk.(Keyword)
	if !ok {
		return nil, tst2, NewUnexpected(tk, Keyword("struct"), Keyword("union"), Keyword("class"), Op("="))
	}

	agg := &ast.AggDecl{Pos: p.posAt(tst), Name: string(id)}

	switch kw {
	case "struct":
		agg.Kind = ast.AggStruct
	case "union":
		agg.Kind = ast.AggUnion
	case "class":
		agg.Kind = ast.AggClass
	default:
		return nil, tst2, NewUnexpected(tk, Keyword("struct"), Keyword("union"), Keyword("class"))
	}

	i, err = p.expect(e, Char('{'))
	if err != nil {
		return nil, i, err
	}

	for {
		tk, tst, e := p.next(i)
		if tk == Char('}') {
			i = e
			break
		}

		fld := ast.Field{Pos: p.posAt(tst)}

		if id, ok := tk.(Ident); ok && id == "align" {
			var n int64
			n, i, err = p.parseAlign(e)
			if err != nil {
				return nil, i, err
			}
			fld.Align = int(n)
			tk, tst, e = p.next(i)
		}

		name, ok := tk.(Ident)
		if !ok {
			return nil, tst, NewUnexpected(tk, Ident(""), Char('}'))
		}
		fld.Name = string(name)

		fld.Type, i, err = p.parseType(e)
		if err != nil {
			return nil, i, errors.Wrap(err, "field %v type", fld.Name)
		}

		tk, _, e = p.next(i)
		if tk == Op("=") {
			fld.Init, i, err = p.parseExpr(e)
			if err != nil {
				return nil, i, errors.Wrap(err, "field %v initializer", fld.Name)
			}
		}

		i, err = p.expect(i, Char(';'))
		if err != nil {
			return nil, i, err
		}

		agg.Fields = append(agg.Fields, fld)
	}

	return agg, i, nil
}

func (p *parser) parseAlign(st int) (n int64, i int, err error) {
	i, err = p.expect(st, Char('('))
	if err != nil {
		return 0, i, err
	}

	tk, tst, i := p.next(i)
	num, ok := tk.(Number)
	if !ok {
		return 0, tst, NewUnexpected(tk, Number(""))
	}

	n, err = strconv.ParseInt(string(num), 0, 64)
	if err != nil {
		return 0, tst, errors.Wrap(err, "align value")
	}

	i, err = p.expect(i, Char(')'))

	return n, i, err
}

func (p *parser) parseTemplate(st int) (d ast.Decl, i int, err error) {
	tk, tst, i := p.next(st)
	id, ok := tk.(Ident)
	if !ok {
		return nil, tst, NewUnexpected(tk, Ident(""))
	}

	t := &ast.TemplateDecl{Pos: p.posAt(tst), Name: string(id)}

	i, err = p.expect(i, Char('('))
	if err != nil {
		return nil, i, err
	}

	for {
		tk, tst, e := p.next(i)
		if tk == Char(')') {
			i = e
			break
		}
		if tk == Char(',') {
			i = e
			continue
		}

		name, ok := tk.(Ident)
		if !ok {
			return nil, tst, NewUnexpected(tk, Ident(""), Char(')'))
		}

		tp := ast.TemplateParam{Pos: p.posAt(tst), Name: string(name)}
		i = e

		tk, _, e = p.next(i)
		if tk == Char(':') {
			tp.Spec, i, err = p.parseType(e)
			if err != nil {
				return nil, i, errors.Wrap(err, "template param %v specialization", tp.Name)
			}
		}

		t.Params = append(t.Params, tp)
	}

	i, err = p.expect(i, Char('{'))
	if err != nil {
		return nil, i, err
	}

	for {
		tk, _, e := p.next(i)
		if tk == Char('}') {
			i = e
			break
		}

		var inner ast.Decl
		inner, i, err = p.parseDecl(i)
		if err != nil {
			return nil, i, errors.Wrap(err, "template %v body", t.Name)
		}

		t.Body = append(t.Body, inner)
	}

	return t, i, nil
}

func (p *parser) parseVersionBlock(st int) (d ast.Decl, i int, err error) {
	tk, tst, i := p.next(st)

	v := &ast.VersionBlock{Pos: p.posAt(tst), Debug: tk == Keyword("debug")}

	i, err = p.expect(i, Char('('))
	if err != nil {
		return nil, i, err
	}

	tk, tst2, i := p.next(i)
	switch tk := tk.(type) {
	case Ident:
		v.Ident = string(tk)
	case Number:
		v.Level, err = strconv.ParseInt(string(tk), 0, 64)
		if err != nil {
			return nil, tst2, errors.Wrap(err, "version level")
		}
	default:
		return nil, tst2, NewUnexpected(tk, Ident(""), Number(""))
	}

	i, err = p.expect(i, Char(')'))
	if err != nil {
		return nil, i, err
	}

	v.Then, i, err = p.parseDeclBlock(i)
	if err != nil {
		return nil, i, err
	}

	tk, _, e := p.next(i)
	if tk == Keyword("else") {
		v.Else, i, err = p.parseDeclBlock(e)
		if err != nil {
			return nil, i, err
		}
	}

	return v, i, nil
}

func (p *parser) parseDeclBlock(st int) (ds []ast.Decl, i int, err error) {
	i, err = p.expect(st, Char('{'))
	if err != nil {
		return nil, i, err
	}

	for {
		tk, _, e := p.next(i)
		if tk == Char('}') {
			return ds, e, nil
		}

		var d ast.Decl
		d, i, err = p.parseDecl(i)
		if err != nil {
			return nil, i, err
		}

		ds = append(ds, d)
	}
}

func stem(name string) string {
	base := name
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}

	return base
}
