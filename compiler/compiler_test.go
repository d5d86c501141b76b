package compiler

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dusklang/dusk/compiler/diag"
)

func quietSink() *diag.Sink {
	sink := diag.New()
	sink.Out = io.Discard
	sink.Color = false

	return sink
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}

	return dir
}

func TestCompileSingleFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"app.dk": `
module app;
var answer int = 42;
func main() int { return answer; }
`,
	})

	out := filepath.Join(dir, "app.ll")

	n, err := Run(context.Background(), Config{
		Files:  []string{filepath.Join(dir, "app.dk")},
		Output: out,
		Sink:   quietSink(),
	})
	require.NoError(t, err)
	require.Equal(t, 0, n)

	ll, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(ll), "define i32 @main()")
}

func TestCompileImports(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"app.dk": `
module app;
import util;
func main() int { return util.double(21); }
`,
		"util.dk": `
module util;
func double(x int) int { return 2 * x; }
`,
	})

	deps := filepath.Join(dir, "app.deps")

	n, err := Run(context.Background(), Config{
		Files:      []string{filepath.Join(dir, "app.dk")},
		ImportDirs: []string{dir},
		Output:     filepath.Join(dir, "app.ll"),
		DepsFile:   deps,
		Sink:       quietSink(),
	})
	require.NoError(t, err)
	require.Equal(t, 0, n)

	d, err := os.ReadFile(deps)
	require.NoError(t, err)
	require.Equal(t, "app : util\n", string(d))
}

func TestCircularImportsTolerated(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.dk": `
module a;
import b;
func fa() int { return 1; }
func ga() int { return b.fb(); }
`,
		"b.dk": `
module b;
import a;
func fb() int { return a.fa(); }
`,
	})

	n, err := Run(context.Background(), Config{
		Files:      []string{filepath.Join(dir, "a.dk")},
		ImportDirs: []string{dir},
		Output:     filepath.Join(dir, "a.ll"),
		Sink:       quietSink(),
	})
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestReleaseStripsAsserts(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"r.dk": `
module r;
func f(n int) int {
	assert(n > 0);
	return n;
}
`,
	})

	out := filepath.Join(dir, "r.ll")

	n, err := Run(context.Background(), Config{
		Files:       []string{filepath.Join(dir, "r.dk")},
		Release:     true,
		BoundsCheck: "off",
		Output:      out,
		Sink:        quietSink(),
	})
	require.NoError(t, err)
	require.Equal(t, 0, n)

	ll, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NotContains(t, string(ll), "llvm.trap")
}

func TestCompileErrorSuppressesOutput(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"bad.dk": `
module bad;
func f() int { return missing; }
`,
	})

	out := filepath.Join(dir, "bad.ll")

	n, err := Run(context.Background(), Config{
		Files:  []string{filepath.Join(dir, "bad.dk")},
		Output: out,
		Sink:   quietSink(),
	})
	require.NoError(t, err)
	require.NotEqual(t, 0, n)

	_, err = os.Stat(out)
	require.True(t, os.IsNotExist(err))
}

func TestFatalInputValidation(t *testing.T) {
	_, err := Run(context.Background(), Config{Sink: quietSink()})
	require.Error(t, err)
	require.IsType(t, diag.FatalError{}, err)

	_, err = Run(context.Background(), Config{Files: []string{"."}, Sink: quietSink()})
	require.Error(t, err)
	require.Contains(t, err.Error(), `invalid input file name "."`)

	_, err = Run(context.Background(), Config{
		Files: []string{filepath.Join(t.TempDir(), "nope.dk")},
		Sink:  quietSink(),
	})
	require.Error(t, err)
	require.IsType(t, diag.FatalError{}, err)
}

func TestFatalUnknownOnlyModule(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.dk": "module a;\nvar x int;\n",
	})

	_, err := Run(context.Background(), Config{
		Files: []string{filepath.Join(dir, "a.dk")},
		Only:  "b",
		Sink:  quietSink(),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "output module b")
}

func TestOnlyRestrictsEmission(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.dk": "module a;\nfunc fa() int { return 1; }\n",
		"b.dk": "module b;\nfunc fb() int { return 2; }\n",
	})

	out := filepath.Join(dir, "a.ll")

	n, err := Run(context.Background(), Config{
		Files:  []string{filepath.Join(dir, "a.dk"), filepath.Join(dir, "b.dk")},
		Only:   "a",
		Output: out,
		Sink:   quietSink(),
	})
	require.NoError(t, err)
	require.Equal(t, 0, n)

	ll, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(ll), "2fa")
	require.NotContains(t, string(ll), "define i32 @_Dk1b2fb")
}

func TestVersionFlagSelectsBlock(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"v.dk": `
module v;
version(Fancy) {
	var mode int = 2;
} else {
	var mode int = 1;
}
func main() int { return mode; }
`,
	})

	out := filepath.Join(dir, "v.ll")

	n, err := Run(context.Background(), Config{
		Files:    []string{filepath.Join(dir, "v.dk")},
		Versions: []string{"Fancy"},
		Output:   out,
		Sink:     quietSink(),
	})
	require.NoError(t, err)
	require.Equal(t, 0, n)

	ll, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(ll), `c"\02\00\00\00"`)
}
