package clc

import "strings"

// Options control a build.
type Options struct {
	// Defines are object-like macros, as given by -D.
	Defines map[string]string

	// NoWarnings drops warning diagnostics (-w).
	NoWarnings bool

	// WarningsAsErrors promotes warnings to errors (-Werror).
	WarningsAsErrors bool
}

// ParseOptions parses a build option string. Options it does not know are
// returned so the caller can report them.
func ParseOptions(s string) (Options, []string) {
	opts := Options{Defines: map[string]string{}}
	var unknown []string
	fields := strings.Fields(s)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case f == "-w":
			opts.NoWarnings = true
		case f == "-Werror":
			opts.WarningsAsErrors = true
		case f == "-D" && i+1 < len(fields):
			i++
			addDefine(opts.Defines, fields[i])
		case strings.HasPrefix(f, "-D") && len(f) > 2:
			addDefine(opts.Defines, f[2:])
		default:
			unknown = append(unknown, f)
		}
	}
	return opts, unknown
}

func addDefine(defs map[string]string, def string) {
	name, value, found := strings.Cut(def, "=")
	if !found {
		value = "1"
	}
	defs[name] = value
}
