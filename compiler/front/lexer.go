package front

import (
	"fmt"
	"strings"
)

type (
	Token any

	Char    byte
	Op      string
	Keyword string
	Ident   string
	Number  string
	Str     string

	UnexpectedError struct {
		Token Token
		Want  []Token
	}
)

var keywords = map[string]bool{
	"module": true, "import": true, "public": true,
	"var": true, "func": true, "type": true, "alias": true,
	"struct": true, "union": true, "class": true,
	"template": true, "version": true, "debug": true,
	"const": true, "immutable": true, "shared": true,
	"if": true, "else": true, "for": true, "return": true,
	"goto": true, "asm": true, "cast": true, "map": true,
	"extern": true, "static": true, "trusted": true,
	"assert": true,
}

func NewUnexpected(got Token, want ...Token) error {
	return UnexpectedError{Token: got, Want: want}
}

func (e UnexpectedError) Error() string {
	l := make([]string, len(e.Want))

	for i := range e.Want {
		l[i] = fmt.Sprintf("%v (%[1]T)", e.Want[i])
	}

	return fmt.Sprintf("unexpected token: %q (%[1]T), want: %v", e.Token, strings.Join(l, ", "))
}

// next scans the token starting at or after st. It returns the token, the
// position where it starts and the position just past it. Statements are
// semicolon-terminated; newlines are whitespace.
func (p *parser) next(st int) (tk Token, tst, i int) {
	i = p.skipSpaces(st)
	tst = i

	if i >= len(p.b) {
		return nil, tst, i
	}

	c := p.b[i]

	switch c {
	case '(', ')', '{', '}', '[', ']', ',', ';', ':', '.':
		return Char(c), tst, i + 1
	case '"':
		e := i + 1
		for e < len(p.b) && p.b[e] != '"' {
			if p.b[e] == '\\' {
				e++
			}
			e++
		}
		if e >= len(p.b) {
			return nil, tst, i
		}
		return Str(unescape(p.b[i+1 : e])), tst, e + 1
	case '=', '!', '<', '>':
		if i+1 < len(p.b) && p.b[i+1] == '=' {
			return Op(p.b[i : i+2]), tst, i + 2
		}
		return Op(p.b[i : i+1]), tst, i + 1
	case '&', '|':
		if i+1 < len(p.b) && p.b[i+1] == c {
			return Op(p.b[i : i+2]), tst, i + 2
		}
		return Op(p.b[i : i+1]), tst, i + 1
	case '+', '-', '*', '/', '%':
		return Op(p.b[i : i+1]), tst, i + 1
	}

	switch {
	case isIdentStart(c):
		e := skipIdent(p.b, i)
		w := string(p.b[i:e])
		if keywords[w] {
			return Keyword(w), tst, e
		}
		return Ident(w), tst, e
	case c >= '0' && c <= '9':
		e := skipNum(p.b, i)
		return Number(p.b[i:e]), tst, e
	}

	return nil, tst, i
}

// skipSpaces also skips line and block comments.
func (p *parser) skipSpaces(i int) int {
	for i < len(p.b) {
		switch {
		case p.b[i] == ' ' || p.b[i] == '\t' || p.b[i] == '\r' || p.b[i] == '\n':
			i++
		case p.b[i] == '/' && i+1 < len(p.b) && p.b[i+1] == '/':
			for i < len(p.b) && p.b[i] != '\n' {
				i++
			}
		case p.b[i] == '/' && i+1 < len(p.b) && p.b[i+1] == '*':
			i += 2
			for i+1 < len(p.b) && !(p.b[i] == '*' && p.b[i+1] == '/') {
				i++
			}
			i += 2
		default:
			return i
		}
	}

	return i
}

func unescape(b []byte) string {
	if !strings.ContainsRune(string(b), '\\') {
		return string(b)
	}

	var s strings.Builder

	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 == len(b) {
			s.WriteByte(b[i])
			continue
		}

		i++
		switch b[i] {
		case 'n':
			s.WriteByte('\n')
		case 't':
			s.WriteByte('\t')
		case '0':
			s.WriteByte(0)
		default:
			s.WriteByte(b[i])
		}
	}

	return s.String()
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '$'
}

func skipIdent(b []byte, i int) int {
	for i < len(b) && (isIdentStart(b[i]) || b[i] >= '0' && b[i] <= '9') {
		i++
	}

	return i
}

func skipNum(b []byte, i int) int {
	hex := false
	if i+1 < len(b) && b[i] == '0' && (b[i+1] == 'x' || b[i+1] == 'X') {
		hex = true
		i += 2
	}

	for i < len(b) {
		c := b[i]
		switch {
		case c >= '0' && c <= '9' || c == '.' || c == '_':
		case hex && (c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'):
		default:
			return i
		}
		i++
	}

	return i
}
