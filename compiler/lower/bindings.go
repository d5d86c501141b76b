package lower

import (
	"github.com/llir/llvm/ir"

	"github.com/dusklang/dusk/compiler/symtab"
)

type (
	// Bindings tracks lexical binding levels during function lowering. Each
	// level collects the variables declared in one block; variables are
	// prepended as they appear and reversed into declaration order when the
	// level pops, matching how debug scopes expect them.
	Bindings struct {
		levels []*Level
	}

	Level struct {
		vars   []*symtab.Symbol
		allocs map[*symtab.Symbol]*ir.InstAlloca
	}
)

func (b *Bindings) Push() *Level {
	lv := &Level{allocs: make(map[*symtab.Symbol]*ir.InstAlloca)}
	b.levels = append(b.levels, lv)

	return lv
}

// Pop removes the innermost level and returns its variables in declaration
// order.
func (b *Bindings) Pop() []*symtab.Symbol {
	lv := b.levels[len(b.levels)-1]
	b.levels = b.levels[:len(b.levels)-1]

	for i, j := 0, len(lv.vars)-1; i < j; i, j = i+1, j-1 {
		lv.vars[i], lv.vars[j] = lv.vars[j], lv.vars[i]
	}

	return lv.vars
}

// Bind records a variable and its stack slot at the innermost level.
func (b *Bindings) Bind(sym *symtab.Symbol, slot *ir.InstAlloca) {
	lv := b.levels[len(b.levels)-1]

	lv.vars = append([]*symtab.Symbol{sym}, lv.vars...)
	lv.allocs[sym] = slot
}

// Slot finds the stack slot of a local, searching inner levels first.
func (b *Bindings) Slot(sym *symtab.Symbol) *ir.InstAlloca {
	for i := len(b.levels) - 1; i >= 0; i-- {
		if a, ok := b.levels[i].allocs[sym]; ok {
			return a
		}
	}

	return nil
}

// GlobalBindings reports whether declarations land at module scope: true at
// the root level and when no level was pushed at all.
func (b *Bindings) GlobalBindings() bool {
	return len(b.levels) <= 1
}

func (b *Bindings) Depth() int { return len(b.levels) }
