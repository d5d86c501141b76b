package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/dusklang/dusk/compiler"
	"github.com/dusklang/dusk/compiler/ast"
	"github.com/dusklang/dusk/compiler/diag"
	"github.com/dusklang/dusk/compiler/front"
	"github.com/dusklang/dusk/compiler/lower"
	"github.com/dusklang/dusk/compiler/symtab"
)

func main() {
	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile dusk sources to llvm ir",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("include,I", "", "comma separated import directories"),
			cli.NewFlag("output,o", "", "output file"),
			cli.NewFlag("target", "", "target description toml"),
			cli.NewFlag("only", "", "emit only the named module"),
			cli.NewFlag("deps", "", "write module dependency file"),
			cli.NewFlag("emit-templates", "auto", "template emission: normal, all, private, none, auto"),
			cli.NewFlag("bounds-check", "on", "array index checks: off, on, all"),
			cli.NewFlag("release", false, "strip assert statements"),
			cli.NewFlag("version", "", "comma separated version identifiers"),
			cli.NewFlag("version-level", 0, "version level"),
			cli.NewFlag("debug", false, "enable debug blocks"),
			cli.NewFlag("debug-ident", "", "comma separated debug identifiers"),
			cli.NewFlag("debug-level", 0, "debug level"),
		},
	}

	parseCmd := &cli.Command{
		Name:        "parse",
		Description: "parse files and dump the syntax tree",
		Action:      parseAct,
		Args:        cli.Args{},
	}

	depsCmd := &cli.Command{
		Name:        "deps",
		Description: "print module dependency edges without compiling",
		Action:      depsAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("include,I", "", "comma separated import directories"),
		},
	}

	app := &cli.Command{
		Name:        "dusk",
		Description: "dusk is the dusk language compiler front end",
		Commands: []*cli.Command{
			compileCmd,
			parseCmd,
			depsCmd,
		},
		Flags: []*cli.Flag{
			cli.HelpFlag,
			cli.FlagfileFlag,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func compileAct(c *cli.Command) error {
	ctx := tlog.ContextWithSpan(context.Background(), tlog.Root())

	emit, err := emitPolicy(c.String("emit-templates"))
	if err != nil {
		return err
	}

	cfg := compiler.Config{
		Files:        c.Args,
		ImportDirs:   splitList(c.String("include")),
		TargetFile:   c.String("target"),
		Versions:     splitList(c.String("version")),
		VersionLevel: int64(c.Int("version-level")),
		Debug:        c.Bool("debug"),
		DebugLevel:   int64(c.Int("debug-level")),
		DebugIdents:  splitList(c.String("debug-ident")),
		Release:      c.Bool("release"),
		BoundsCheck:  c.String("bounds-check"),
		Emit:         emit,
		Only:         c.String("only"),
		DepsFile:     c.String("deps"),
		Output:       c.String("output"),
	}

	n, err := compiler.Run(ctx, cfg)
	if err != nil {
		return err
	}
	if n != 0 {
		return errors.New("%v diagnostics", n)
	}

	return nil
}

func parseAct(c *cli.Command) error {
	ctx := tlog.ContextWithSpan(context.Background(), tlog.Root())

	for _, a := range c.Args {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		f, err := front.Parse(ctx, a, text)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		fmt.Printf("ast: %+v\n", f)
	}

	return nil
}

func depsAct(c *cli.Command) error {
	ctx := tlog.ContextWithSpan(context.Background(), tlog.Root())

	sink := diag.New()

	set := symtab.NewSet(sink)
	set.Parse = front.Parse
	set.Path = splitList(c.String("include"))

	for _, a := range c.Args {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		f, err := front.Parse(ctx, a, text)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		m := symtab.NewModule(ast.DottedName(f.Module), f.Name)
		m.Decls = f.Decls
		m.Root = true
		set.Add(m)
	}

	for _, m := range set.Modules {
		err := set.ResolveImports(ctx, m, true)
		if err != nil {
			return err
		}
	}

	fmt.Print(set.DepsFile())

	return nil
}

func emitPolicy(s string) (lower.Policy, error) {
	switch s {
	case "normal":
		return lower.EmitNormal, nil
	case "all":
		return lower.EmitAll, nil
	case "private":
		return lower.EmitPrivate, nil
	case "none":
		return lower.EmitNone, nil
	case "auto", "":
		return lower.EmitAuto, nil
	}

	return 0, errors.New("unknown template emission policy %q", s)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}

	return strings.Split(s, ",")
}
