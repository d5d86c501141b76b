package aio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadOverlapped(t *testing.T) {
	dir := t.TempDir()

	names := make([]string, 3)
	for i := range names {
		names[i] = filepath.Join(dir, "f"+string(rune('0'+i))+".dk")
		err := os.WriteFile(names[i], []byte("module m"+string(rune('0'+i))+";"), 0o644)
		require.NoError(t, err)
	}

	var r Reader

	files := make([]*File, len(names))
	for i, n := range names {
		files[i] = r.Start(n)
	}

	for i, f := range files {
		data, err := f.Wait()
		require.NoError(t, err)
		require.Contains(t, string(data), "m"+string(rune('0'+i)))
	}
}

func TestReadMissing(t *testing.T) {
	var r Reader

	f := r.Start(filepath.Join(t.TempDir(), "absent.dk"))

	_, err := f.Wait()
	require.Error(t, err)
	require.Contains(t, err.Error(), "absent.dk")
}

func TestStartDeduplicates(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "one.dk")
	require.NoError(t, os.WriteFile(name, []byte("module one;"), 0o644))

	var r Reader

	a := r.Start(name)
	b := r.Start(name)
	require.Same(t, a, b)

	d1, err := a.Wait()
	require.NoError(t, err)

	d2, err := b.Wait()
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}
