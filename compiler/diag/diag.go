// Package diag is the single diagnostic sink of a compilation run.
//
// Recoverable errors are counted here and never propagate as Go errors across
// pass boundaries; passes substitute error placeholders and continue. Fatal
// conditions return a distinguished error that aborts the driver.
package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"
)

type (
	Sink struct {
		Out   io.Writer
		Color bool

		errors   int
		warnings int
	}

	// FatalError aborts the run immediately with no partial output.
	FatalError struct {
		Msg string
	}
)

func New() *Sink {
	return &Sink{
		Out:   os.Stderr,
		Color: true,
	}
}

func (e FatalError) Error() string { return e.Msg }

// Fatalf builds a fatal error. The caller is expected to return it up to the
// driver, which stops the run.
func Fatalf(format string, args ...any) error {
	return FatalError{Msg: fmt.Sprintf(format, args...)}
}

// Errorf reports a recoverable error and bumps the error counter.
func (s *Sink) Errorf(pos any, format string, args ...any) {
	s.errors++

	msg := fmt.Sprintf(format, args...)
	if pos != nil {
		msg = fmt.Sprintf("%v: %s", pos, msg)
	}

	tlog.Printw("error", "msg", msg)

	if s.Color {
		fmt.Fprint(s.Out, pterm.Error.Sprintfln("%s", msg))
	} else {
		fmt.Fprintf(s.Out, "error: %s\n", msg)
	}
}

// Warnf reports a warning. Warnings also suppress emission (all-or-nothing
// output policy).
func (s *Sink) Warnf(pos any, format string, args ...any) {
	s.warnings++

	msg := fmt.Sprintf(format, args...)
	if pos != nil {
		msg = fmt.Sprintf("%v: %s", pos, msg)
	}

	if s.Color {
		fmt.Fprint(s.Out, pterm.Warning.Sprintfln("%s", msg))
	} else {
		fmt.Fprintf(s.Out, "warning: %s\n", msg)
	}
}

// InternalErrorf reports a condition that indicates a bug in the compiler
// itself (such as a deferred queue that does not converge).
func (s *Sink) InternalErrorf(format string, args ...any) {
	tlog.Printw("internal error", "from", loc.Caller(1))

	s.Errorf(nil, "internal error: "+format, args...)
}

func (s *Sink) Errors() int   { return s.errors }
func (s *Sink) Warnings() int { return s.warnings }

// Failed reports whether emission must be suppressed for the whole run.
func (s *Sink) Failed() bool { return s.errors != 0 || s.warnings != 0 }
