// Package aio overlaps source file reading with the rest of the pipeline.
// Reads for every input are issued up front; the first use of a file's
// content blocks until its read finishes.
package aio

import (
	"os"

	"tlog.app/go/errors"
)

type (
	// Reader issues reads and hands out futures. The zero value is ready to
	// use.
	Reader struct {
		files map[string]*File
	}

	// File is one in-flight read. Wait returns the same result every time.
	File struct {
		Name string

		done chan struct{}
		data []byte
		err  error
	}
)

// Start begins reading the named file in the background. Starting the same
// name twice returns the first future.
func (r *Reader) Start(name string) *File {
	if f, ok := r.files[name]; ok {
		return f
	}

	f := &File{
		Name: name,
		done: make(chan struct{}),
	}

	if r.files == nil {
		r.files = make(map[string]*File)
	}
	r.files[name] = f

	go func() {
		defer close(f.done)

		f.data, f.err = os.ReadFile(name)
		if f.err != nil {
			f.err = errors.Wrap(f.err, "read %v", name)
		}
	}()

	return f
}

// Wait blocks until the read completes and returns its content.
func (f *File) Wait() ([]byte, error) {
	<-f.done

	return f.data, f.err
}
