// Copyright 2024 The Veridian Authors
// This file is part of Veridian.
//
// Veridian is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Veridian is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Veridian. If not, see <http://www.gnu.org/licenses/>.

// Package diag provides the compiler's diagnostic reporting primitives.
// Every message is anchored at a source location; fatal tiers unwind via a
// typed panic that the command-line front end recovers and turns into a
// nonzero exit.
package diag

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
)

// Severity is the level attached to a diagnostic message.
type Severity int

const (
	SeverityNote Severity = iota
	SeverityWarning
	SeverityError
	SeverityFailure
)

// severityNames are the user-visible level names used by assertion and
// report messages.
var severityNames = [...]string{"Note", "Warning", "Error", "Failure"}

// String returns the user-visible name of the severity level.
func (s Severity) String() string {
	if s < SeverityNote || s > SeverityFailure {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// Loc identifies a position in a source file.
type Loc struct {
	File   string
	Line   int
	Column int
}

// LocInvalid is the zero location used for synthesized nodes.
var LocInvalid = Loc{}

func (l Loc) String() string {
	if l.File == "" {
		return "(none)"
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// FatalError carries a fatal diagnostic up the stack.  It is raised by
// FatalAt and FatalTrace via panic and recovered at the top level of the
// command-line driver.
type FatalError struct {
	Msg   string
	Loc   Loc
	Trace string // call stack, only set by FatalTrace
}

func (e *FatalError) Error() string { return e.Msg }

var (
	mu       sync.Mutex
	out      io.Writer = colorable.NewColorableStderr()
	useColor           = isatty.IsTerminal(os.Stderr.Fd())
	nerrors  int

	noteLabel  = color.New(color.FgCyan, color.Bold)
	warnLabel  = color.New(color.FgYellow, color.Bold)
	errorLabel = color.New(color.FgRed, color.Bold)
	fatalLabel = color.New(color.FgRed, color.Bold)
)

// SetOutput redirects diagnostic output, returning the previous writer.
// Redirecting disables color; tests use this to capture messages.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := out
	out = w
	useColor = false
	return prev
}

// EnableColor forces colored output on or off.
func EnableColor(on bool) {
	mu.Lock()
	defer mu.Unlock()
	useColor = on
}

// ErrorCount returns the number of error-level diagnostics emitted so far.
func ErrorCount() int {
	mu.Lock()
	defer mu.Unlock()
	return nerrors
}

func emit(label string, c *color.Color, loc Loc, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	tag := label
	if useColor {
		tag = c.Sprint(label)
	}
	if loc == LocInvalid {
		fmt.Fprintf(out, "** %s: %s\n", tag, msg)
	} else {
		fmt.Fprintf(out, "** %s: %s\n\tat %s\n", tag, msg, loc)
	}
}

// NoteAt emits an informational message anchored at loc.
func NoteAt(loc Loc, format string, args ...interface{}) {
	emit("Note", noteLabel, loc, format, args...)
}

// Notef emits an informational message with no source anchor.
func Notef(format string, args ...interface{}) {
	emit("Note", noteLabel, LocInvalid, format, args...)
}

// WarnAt emits a warning anchored at loc.
func WarnAt(loc Loc, format string, args ...interface{}) {
	emit("Warning", warnLabel, loc, format, args...)
}

// ErrorAt emits a non-fatal error anchored at loc and increments the error
// counter.
func ErrorAt(loc Loc, format string, args ...interface{}) {
	emit("Error", errorLabel, loc, format, args...)
	mu.Lock()
	nerrors++
	mu.Unlock()
}

// FatalAt emits an error anchored at loc and unwinds with a FatalError.
// The compilation cannot continue past this point.
func FatalAt(loc Loc, format string, args ...interface{}) {
	emit("Fatal", fatalLabel, loc, format, args...)
	panic(&FatalError{Msg: fmt.Sprintf(format, args...), Loc: loc})
}

// FatalTrace reports an internal error with the call stack attached and
// unwinds with a FatalError.  This is a compiler bug, not a user error.
func FatalTrace(format string, args ...interface{}) {
	trace := fmt.Sprintf("%+v", stack.Trace().TrimRuntime())
	emit("Fatal", fatalLabel, LocInvalid, format+"\n\t%s", append(args, trace)...)
	panic(&FatalError{Msg: fmt.Sprintf(format, args...), Trace: trace})
}
