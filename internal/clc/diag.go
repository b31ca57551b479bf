package clc

import (
	"fmt"
	"strings"
)

// Pos is a 1-based line and column in the kernel source.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

// Severity of a diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is one compiler message.
type Diagnostic struct {
	Pos      Pos
	Severity Severity
	Msg      string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("<source>:%d:%d: %s: %s", d.Pos.Line, d.Pos.Col, d.Severity, d.Msg)
}

// Log collects the diagnostics of one build. Its String form is the build log.
type Log struct {
	Diagnostics []Diagnostic
}

func (l *Log) errorf(pos Pos, format string, args ...any) {
	l.Diagnostics = append(l.Diagnostics, Diagnostic{Pos: pos, Severity: SeverityError, Msg: fmt.Sprintf(format, args...)})
}

func (l *Log) warnf(pos Pos, format string, args ...any) {
	l.Diagnostics = append(l.Diagnostics, Diagnostic{Pos: pos, Severity: SeverityWarning, Msg: fmt.Sprintf(format, args...)})
}

// Errors returns the number of error diagnostics.
func (l *Log) Errors() int { return l.count(SeverityError) }

// Warnings returns the number of warning diagnostics.
func (l *Log) Warnings() int { return l.count(SeverityWarning) }

func (l *Log) count(s Severity) int {
	n := 0
	for _, d := range l.Diagnostics {
		if d.Severity == s {
			n++
		}
	}
	return n
}

// String renders the diagnostics followed by a clang-style summary line.
// A clean build renders as the empty string.
func (l *Log) String() string {
	if len(l.Diagnostics) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, d := range l.Diagnostics {
		sb.WriteString(d.String())
		sb.WriteByte('\n')
	}
	var summary []string
	if w := l.Warnings(); w > 0 {
		summary = append(summary, plural(w, "warning"))
	}
	if e := l.Errors(); e > 0 {
		summary = append(summary, plural(e, "error"))
	}
	sb.WriteString(strings.Join(summary, " and "))
	sb.WriteString(" generated.\n")
	return sb.String()
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
