package lower

import (
	"strconv"
	"strings"

	"github.com/llir/llvm/ir"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/semantic"
)

// lowerAsm translates an extended assembler statement into an LLVM inline
// assembler call.
//
// Register outputs become call results and are stored back afterwards; memory
// outputs turn into indirect "*m" arguments. A "+" constraint splits into an
// output plus a matching input. Operand references in the template switch from
// the front end's %N/%[name] spelling to LLVM's $N.
func (l *Lowerer) lowerAsm(fn *funcCtx, s *ast.Asm) {
	tmpl, _ := semantic.FoldStr(s.Template)

	var (
		cons    []string // full constraint list, in LLVM operand order
		args    []value.Value
		retTs   []lltypes.Type
		retDst  []value.Value
		matches []int // extra matching inputs from "+" outputs
		memOut  bool
	)

	// operand i in the template maps to LLVM operand opIdx[i]
	opIdx := make([]int, len(s.Args))
	names := make(map[string]int, len(s.Args))

	for i := 0; i < s.NOut; i++ {
		op := &s.Args[i]
		con, _ := semantic.FoldStr(op.Constraint)

		plus := strings.HasPrefix(con, "+")
		body := strings.TrimLeft(con, "=+&")

		opIdx[i] = len(cons)
		if op.Name != "" {
			names[op.Name] = opIdx[i]
		}

		if strings.ContainsRune(body, 'm') && !strings.ContainsAny(body, "r") {
			// memory output: indirect pointer argument
			cons = append(cons, "=*"+body)
			args = append(args, l.addr(fn, op.Arg))
			memOut = true
			continue
		}

		cons = append(cons, "="+body)
		retTs = append(retTs, l.irType(ast.ExprType(op.Arg)))
		retDst = append(retDst, l.addr(fn, op.Arg))

		if plus {
			matches = append(matches, opIdx[i])
		}
	}

	for _, m := range matches {
		cons = append(cons, strconv.Itoa(m))
		args = append(args, l.value(fn, s.Args[m].Arg))
	}

	for i := s.NOut; i < len(s.Args); i++ {
		op := &s.Args[i]
		con, _ := semantic.FoldStr(op.Constraint)

		opIdx[i] = len(cons)
		if op.Name != "" {
			names[op.Name] = opIdx[i]
		}

		if strings.ContainsRune(con, 'm') && !strings.ContainsAny(con, "ri") {
			cons = append(cons, "*m")
			args = append(args, l.addr(fn, op.Arg))
			continue
		}

		cons = append(cons, con)
		args = append(args, l.value(fn, op.Arg))
	}

	seenMem := false
	for _, c := range s.Clobbers {
		name, _ := semantic.FoldStr(c)
		if name == "memory" {
			seenMem = true
		}
		cons = append(cons, "~{"+name+"}")
	}

	// writing through a memory operand clobbers memory as far as the
	// optimizer can tell
	if memOut && !seenMem {
		cons = append(cons, "~{memory}")
	}

	var ret lltypes.Type = lltypes.Void
	switch len(retTs) {
	case 0:
	case 1:
		ret = retTs[0]
	default:
		ret = lltypes.NewStruct(retTs...)
	}

	argTs := make([]lltypes.Type, len(args))
	for i, a := range args {
		argTs[i] = a.Type()
	}

	ia := ir.NewInlineAsm(lltypes.NewPointer(lltypes.NewFunc(ret, argTs...)), rewriteTemplate(tmpl, opIdx, names), strings.Join(cons, ","))
	ia.SideEffect = true

	call := fn.b.NewCall(ia, args...)

	switch len(retDst) {
	case 0:
	case 1:
		fn.b.NewStore(call, retDst[0])
	default:
		for i, dst := range retDst {
			fn.b.NewStore(fn.b.NewExtractValue(call, uint64(i)), dst)
		}
	}
}

// rewriteTemplate maps operand references to LLVM syntax: %N and %[name]
// become $N, %% a literal percent, %= a unique label id, and a literal $ is
// doubled.
func rewriteTemplate(tmpl string, opIdx []int, names map[string]int) string {
	var b strings.Builder
	b.Grow(len(tmpl) + 8)

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]

		if c == '$' {
			b.WriteString("$$")
			continue
		}
		if c != '%' || i+1 == len(tmpl) {
			b.WriteByte(c)
			continue
		}

		i++
		switch nx := tmpl[i]; {
		case nx == '%':
			b.WriteByte('%')

		case nx == '=':
			b.WriteString("${:uid}")

		case nx >= '0' && nx <= '9':
			j := i
			for j+1 < len(tmpl) && tmpl[j+1] >= '0' && tmpl[j+1] <= '9' {
				j++
			}
			n, _ := strconv.Atoi(tmpl[i : j+1])
			i = j

			if n < len(opIdx) {
				n = opIdx[n]
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))

		case nx == '[':
			j := strings.IndexByte(tmpl[i:], ']')
			if j < 0 {
				b.WriteByte('%')
				b.WriteByte(nx)
				break
			}

			name := tmpl[i+1 : i+j]
			i += j

			b.WriteByte('$')
			b.WriteString(strconv.Itoa(names[name]))

		default:
			b.WriteByte('%')
			b.WriteByte(nx)
		}
	}

	return b.String()
}
