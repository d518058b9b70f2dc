package diag

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// Location identifies the source line an event was raised from.
type Location struct {
	File string
	Line int
}

// String returns "file:line" using the base name of the file.
func (l Location) String() string {
	if l.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(l.File), l.Line)
}

// Here returns the location of its caller, skipping skip extra frames.
func Here(skip int) Location {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Location{}
	}
	return Location{File: file, Line: line}
}

// Sink receives diagnostic events. Implementations must be safe for
// concurrent use.
type Sink interface {
	// WriteEvent records one event. context carries optional extra detail.
	WriteEvent(sev Severity, msg, context string, loc Location)

	// PushGroup opens a nested group; events written until the matching
	// PopGroup belong to it.
	PushGroup(label, context string)

	// PopGroup closes the innermost open group.
	PopGroup()
}

// Nop discards everything.
type Nop struct{}

func (Nop) WriteEvent(Severity, string, string, Location) {}
func (Nop) PushGroup(string, string)                      {}
func (Nop) PopGroup()                                     {}

// Write records an event on s located at the caller of Write.
func Write(s Sink, sev Severity, msg, context string) {
	if s == nil {
		return
	}
	s.WriteEvent(sev, msg, context, Here(1))
}

// Writef is Write with a formatted context.
func Writef(s Sink, sev Severity, msg, format string, args ...any) {
	if s == nil {
		return
	}
	s.WriteEvent(sev, msg, fmt.Sprintf(format, args...), Here(1))
}

// Group opens a group on s and returns the function that closes it, for
// use with defer.
func Group(s Sink, label, context string) func() {
	if s == nil {
		return func() {}
	}
	s.PushGroup(label, context)
	return s.PopGroup
}
