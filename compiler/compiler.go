// Package compiler drives the whole pipeline: read, parse, import, analyze,
// lower, write. Recoverable problems are counted in the diagnostic sink and
// suppress output; fatal problems abort with a diag.FatalError.
package compiler

import (
	"context"
	"os"
	"strings"

	"tlog.app/go/tlog"

	"github.com/dusklang/dusk/compiler/aio"
	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/diag"
	"github.com/dusklang/dusk/compiler/front"
	"github.com/dusklang/dusk/compiler/lower"
	"github.com/dusklang/dusk/compiler/semantic"
	"github.com/dusklang/dusk/compiler/symtab"
	"github.com/dusklang/dusk/compiler/target"
	"github.com/dusklang/dusk/compiler/types"
)

type Config struct {
	Files []string

	// ImportDirs are searched before the target's standard library path.
	ImportDirs []string

	// TargetFile overlays the default target description with a TOML file.
	TargetFile string

	Versions     []string
	VersionLevel int64
	Debug        bool
	DebugLevel   int64
	DebugIdents  []string

	// Release strips assert statements.
	Release bool

	// BoundsCheck selects index guards: "off", "on" (skipped in trusted
	// code), "all". Empty means "on".
	BoundsCheck string

	// Emit is the template emission policy.
	Emit lower.Policy

	// Only restricts object output to the named module; the other inputs
	// are still analyzed.
	Only string

	// DepsFile, when set, receives one "importer : imported" line per
	// import edge.
	DepsFile string

	// Output is the IR output path; derived from the first input when
	// empty.
	Output string

	// Sink overrides the default diagnostic sink, used by tests.
	Sink *diag.Sink
}

// Run compiles the configured inputs and returns the number of diagnostics
// produced. A non-nil error is fatal and means nothing was written.
func Run(ctx context.Context, cfg Config) (int, error) {
	tr := tlog.SpanFromContext(ctx)

	if len(cfg.Files) == 0 {
		return 0, diag.Fatalf("no input files")
	}
	for _, name := range cfg.Files {
		if name == "" || name == "." || name == ".." {
			return 0, diag.Fatalf("invalid input file name %q", name)
		}
	}

	sink := cfg.Sink
	if sink == nil {
		sink = diag.New()
	}

	tg := target.Default()
	if cfg.TargetFile != "" {
		var err error

		tg, err = target.Load(cfg.TargetFile)
		if err != nil {
			return 0, diag.Fatalf("target description: %v", err)
		}
	}

	tc := types.NewContext(tg)

	set := symtab.NewSet(sink)
	set.Parse = front.Parse
	set.Path = append(append([]string{}, cfg.ImportDirs...), tg.StdPath())

	// overlap all input reads with parsing of the first
	var rd aio.Reader

	reads := make([]*aio.File, len(cfg.Files))
	for i, name := range cfg.Files {
		reads[i] = rd.Start(name)
	}

	for i, f := range reads {
		text, err := f.Wait()
		if err != nil {
			return 0, diag.Fatalf("%v", err)
		}

		pf, err := front.Parse(ctx, cfg.Files[i], text)
		if err != nil {
			sink.Errorf(nil, "%v", err)
			continue
		}

		m := symtab.NewModule(ast.DottedName(pf.Module), pf.Name)
		m.Decls = pf.Decls
		m.Root = true
		set.Add(m)

		tr.Printw("parsed", "module", m.Name, "file", m.File)
	}

	if cfg.Only != "" {
		out := set.Lookup(cfg.Only)
		if out == nil {
			return 0, diag.Fatalf("output module %v is not among the input files", cfg.Only)
		}
		out.Output = true
	}

	roots := append([]*symtab.Module{}, set.Modules...)
	for _, m := range roots {
		err := set.ResolveImports(ctx, m, true)
		if err != nil {
			return sink.Errors(), diag.Fatalf("%v", err)
		}
	}

	a := semantic.New(sink, tc, set)
	a.VersionLevel = cfg.VersionLevel
	a.Debug = cfg.Debug
	a.DebugLevel = cfg.DebugLevel
	a.Asserts = !cfg.Release

	switch cfg.BoundsCheck {
	case "", "on":
		a.BoundsCheck = 1
	case "off":
		a.BoundsCheck = 0
	case "all":
		a.BoundsCheck = 2
	default:
		return 0, diag.Fatalf("unknown bounds check mode %q", cfg.BoundsCheck)
	}
	for _, v := range cfg.Versions {
		a.Versions[v] = true
	}
	for _, v := range cfg.DebugIdents {
		a.DebugIdents[v] = true
	}

	a.Run(ctx)

	if cfg.DepsFile != "" {
		err := os.WriteFile(cfg.DepsFile, []byte(set.DepsFile()), 0o644)
		if err != nil {
			return sink.Errors(), diag.Fatalf("write deps file: %v", err)
		}
	}

	// all-or-nothing: any diagnostic suppresses object output
	if sink.Failed() {
		return sink.Errors() + sink.Warnings(), nil
	}

	if cfg.Only != "" {
		for _, m := range set.Modules {
			m.Root = m.Output
		}
	}

	l := lower.New(sink, tc, set, cfg.Emit)
	mod := l.Run(ctx)

	if sink.Failed() {
		return sink.Errors() + sink.Warnings(), nil
	}

	out := cfg.Output
	if out == "" {
		out = outputName(cfg.Files[0])
	}

	err := os.WriteFile(out, []byte(mod.String()), 0o644)
	if err != nil {
		return 0, diag.Fatalf("write %v: %v", out, err)
	}

	tr.Printw("written", "output", out)

	return 0, nil
}

func outputName(in string) string {
	if strings.HasSuffix(in, ".dk") {
		return strings.TrimSuffix(in, ".dk") + ".ll"
	}

	return in + ".ll"
}
