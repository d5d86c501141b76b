package semantic

import (
	"github.com/dusklang/dusk/compiler/ast"
)

// FoldInt and FoldStr expose constant evaluation to lowering, which encodes
// folded values into static initializers and assembler operands.

func FoldInt(e ast.Expr) (int64, bool) { return foldInt(e) }

func FoldStr(e ast.Expr) (string, bool) { return foldStr(e) }

// foldInt evaluates an integer constant expression. It runs after semantic
// annotation, so operands are typed and identifiers bound.
func foldInt(e ast.Expr) (int64, bool) {
	switch e := e.(type) {
	case *ast.IntLit:
		return e.Val, true

	case *ast.Unary:
		v, ok := foldInt(e.X)
		if !ok {
			return 0, false
		}

		switch e.Op {
		case "-":
			return -v, true
		case "!":
			if v == 0 {
				return 1, true
			}
			return 0, true
		}

	case *ast.Binary:
		x, ok := foldInt(e.X)
		if !ok {
			return 0, false
		}
		y, ok := foldInt(e.Y)
		if !ok {
			return 0, false
		}

		switch e.Op {
		case "+":
			return x + y, true
		case "-":
			return x - y, true
		case "*":
			return x * y, true
		case "/":
			if y == 0 {
				return 0, false
			}
			return x / y, true
		case "%":
			if y == 0 {
				return 0, false
			}
			return x % y, true
		}

	case *ast.Cast:
		if t := e.Typ; t != nil && t.IsInteger() {
			return foldInt(e.X)
		}
	}

	return 0, false
}

// FoldFloat evaluates a floating constant expression, accepting integer
// constants where an implicit conversion was inserted.
func FoldFloat(e ast.Expr) (float64, bool) {
	switch e := e.(type) {
	case *ast.FloatLit:
		return e.Val, true

	case *ast.IntLit:
		return float64(e.Val), true

	case *ast.Unary:
		if e.Op != "-" {
			return 0, false
		}

		v, ok := FoldFloat(e.X)
		return -v, ok

	case *ast.Cast:
		return FoldFloat(e.X)

	case *ast.Binary:
		x, ok := FoldFloat(e.X)
		if !ok {
			return 0, false
		}
		y, ok := FoldFloat(e.Y)
		if !ok {
			return 0, false
		}

		switch e.Op {
		case "+":
			return x + y, true
		case "-":
			return x - y, true
		case "*":
			return x * y, true
		case "/":
			if y == 0 {
				return 0, false
			}
			return x / y, true
		}
	}

	return 0, false
}

// foldStr evaluates a string constant expression. Inline assembler templates,
// constraints and clobbers must fold with this.
func foldStr(e ast.Expr) (string, bool) {
	switch e := e.(type) {
	case *ast.StrLit:
		return e.Val, true

	case *ast.Binary:
		if e.Op != "+" {
			return "", false
		}

		x, ok := foldStr(e.X)
		if !ok {
			return "", false
		}
		y, ok := foldStr(e.Y)
		if !ok {
			return "", false
		}

		return x + y, true
	}

	return "", false
}
