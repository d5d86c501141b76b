package symtab

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/diag"
)

type (
	ImportEdge struct {
		Mod    *Module
		Public bool
		Pos    ast.Pos
	}

	// Module is one compilation unit.
	Module struct {
		Name string // fully qualified dotted name
		File string
		Sym  *Symbol

		Decls []ast.Decl
		Scope *Scope

		Imports []ImportEdge

		// Output marks the module whose object is emitted in single-file
		// output mode.
		Output bool

		// Root marks modules named on the command line (as opposed to
		// modules loaded to satisfy imports).
		Root bool

		importedAll bool
	}

	// Set is the module graph for one run. Modules loaded to satisfy
	// imports are located on Path (explicit import dirs first, then the
	// standard library path with its multilib suffix).
	Set struct {
		Sink *diag.Sink

		Path []string // ordered module lookup directories

		// Parse is injected by the driver: it turns a source file into a
		// parsed ast.File. Keeping it a hook avoids a dependency from the
		// symbol table on the parser.
		Parse func(ctx context.Context, name string, text []byte) (*ast.File, error)

		Modules []*Module
		byName  map[string]*Module

		// deps accumulates one line per recorded import edge for the
		// module-dependency file.
		deps strings.Builder
	}
)

func NewSet(sink *diag.Sink) *Set {
	return &Set{
		Sink:   sink,
		byName: make(map[string]*Module),
	}
}

// Add registers a module parsed from an explicit input file.
func (set *Set) Add(m *Module) {
	set.byName[m.Name] = m
	set.Modules = append(set.Modules, m)
}

func NewModule(name, file string) *Module {
	m := &Module{
		Name: name,
		File: file,
	}

	m.Sym = &Symbol{Kind: KModule, Name: name, Mod: m}
	m.Scope = NewScope(nil, m.Sym)
	m.Scope.Mod = m

	return m
}

// Lookup finds a loaded module by fully qualified name.
func (set *Set) Lookup(name string) *Module {
	return set.byName[name]
}

// Locate maps a dotted import path to a source file on the module path.
func (set *Set) Locate(path []string) (string, error) {
	rel := filepath.Join(path...) + ".dk"

	for _, dir := range set.Path {
		fn := filepath.Join(dir, rel)
		if _, err := os.Stat(fn); err == nil {
			return fn, nil
		}
	}

	return "", errors.New("module %v not found on module path", ast.DottedName(path))
}

// Load locates, reads and parses an imported module. Failure to locate or
// read an import is fatal: the importing unit cannot be type-checked.
func (set *Set) Load(ctx context.Context, path []string) (*Module, error) {
	name := ast.DottedName(path)

	if m, ok := set.byName[name]; ok {
		return m, nil
	}

	fn, err := set.Locate(path)
	if err != nil {
		return nil, err
	}

	text, err := os.ReadFile(fn)
	if err != nil {
		return nil, errors.Wrap(err, "read module %v", name)
	}

	f, err := set.Parse(ctx, fn, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse module %v", name)
	}

	m := NewModule(name, fn)
	m.Decls = f.Decls
	set.Add(m)

	tlog.SpanFromContext(ctx).Printw("module loaded", "name", name, "file", fn)

	return m, nil
}

// ResolveImports walks the module's import declarations. With deep=false only
// directly named modules are loaded; with deep=true the transitively-public
// closure is pulled in as well, so every unconditionally visible symbol is
// resolvable before pass 1 starts.
func (set *Set) ResolveImports(ctx context.Context, m *Module, deep bool) error {
	if deep && m.importedAll {
		return nil
	}
	if deep {
		m.importedAll = true
	}

	for _, d := range m.Decls {
		imp, ok := d.(*ast.Import)
		if !ok {
			continue
		}

		im, err := set.Load(ctx, imp.Path)
		if err != nil {
			return errors.Wrap(err, "import at %v", imp.Pos)
		}

		if !m.hasImport(im) {
			m.Imports = append(m.Imports, ImportEdge{Mod: im, Public: imp.Public, Pos: imp.Pos})
			set.deps.WriteString(m.Name + " : " + im.Name + "\n")
		}

		if deep {
			err = set.ResolveImports(ctx, im, true)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (m *Module) hasImport(im *Module) bool {
	for _, e := range m.Imports {
		if e.Mod == im {
			return true
		}
	}

	return false
}

// LookupImported resolves a name through the module's imports: all direct
// imports are visible inside the importing module, and public imports of
// those are visible transitively. Two or more distinct symbols reachable via
// equally-visible paths is an ambiguity, reported once and recovered with an
// error symbol.
func (m *Module) LookupImported(sink *diag.Sink, name string) *Symbol {
	seen := map[*Module]bool{m: true}

	var found *Symbol
	ambiguous := false

	var walk func(im *Module, transitive bool)
	walk = func(im *Module, transitive bool) {
		if seen[im] {
			return
		}
		seen[im] = true

		if sym := im.Scope.Own(name); sym != nil {
			if found != nil && found != sym {
				ambiguous = true
			} else {
				found = sym
			}
		}

		for _, e := range im.Imports {
			if e.Public {
				walk(e.Mod, true)
			}
		}
	}

	for _, e := range m.Imports {
		walk(e.Mod, false)
	}

	if ambiguous {
		sink.Errorf(nil, "symbol %v is ambiguous between imports of module %v", name, m.Name)
		return NewError(name, ast.Pos{File: m.File})
	}

	return found
}

// DepsFile returns the accumulated dependency buffer, written verbatim at end
// of compilation when a deps file was requested.
func (set *Set) DepsFile() string {
	return set.deps.String()
}
