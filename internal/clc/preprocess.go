package clc

import (
	"strconv"
	"strings"
)

// predefined macros every build sees.
var predefined = map[string]string{
	"__OPENCL_VERSION__":   "120",
	"__OPENCL_C_VERSION__": "120",
	"CL_VERSION_1_0":       "100",
	"CL_VERSION_1_1":       "110",
	"CL_VERSION_1_2":       "120",
	"__ENDIAN_LITTLE__":    "1",
	"__KERNELBENCH_SOFT__": "1",
}

type condFrame struct {
	pos    Pos
	active bool // lines in this branch are compiled
	parent bool // the enclosing region is active
	taken  bool // some branch of this conditional was active
}

// preprocess handles directives line by line. Directive lines and lines in
// inactive conditional branches are blanked so positions stay stable. The
// returned macro table holds every definition live at the end of the input.
func preprocess(src string, defines map[string]string, log *Log) (string, map[string]string) {
	macros := make(map[string]string, len(predefined)+len(defines))
	for k, v := range predefined {
		macros[k] = v
	}
	for k, v := range defines {
		macros[k] = v
	}

	lines := strings.Split(src, "\n")
	var stack []condFrame
	active := true
	inComment := false

	for i, line := range lines {
		pos := Pos{Line: i + 1, Col: 1}
		startsInComment := inComment
		inComment = scanComments(line, inComment)

		trimmed := strings.TrimSpace(line)
		if startsInComment || !strings.HasPrefix(trimmed, "#") {
			if !active {
				lines[i] = ""
			}
			continue
		}
		lines[i] = ""
		pos.Col = strings.Index(line, "#") + 1

		directive, rest := splitDirective(trimmed[1:])
		switch directive {
		case "ifdef", "ifndef":
			cond := false
			if active {
				_, cond = macros[firstWord(rest)]
				if directive == "ifndef" {
					cond = !cond
				}
			}
			stack = append(stack, condFrame{pos: pos, active: active && cond, parent: active, taken: cond})
			active = active && cond
		case "if":
			cond := false
			if active {
				var ok bool
				cond, ok = evalCondition(rest, macros)
				if !ok {
					log.errorf(pos, "unsupported expression in #if: %q", rest)
				}
			}
			stack = append(stack, condFrame{pos: pos, active: active && cond, parent: active, taken: cond})
			active = active && cond
		case "elif", "else":
			if len(stack) == 0 {
				log.errorf(pos, "#%s without #if", directive)
				continue
			}
			top := &stack[len(stack)-1]
			cond := true
			if directive == "elif" && top.parent && !top.taken {
				var ok bool
				cond, ok = evalCondition(rest, macros)
				if !ok {
					log.errorf(pos, "unsupported expression in #elif: %q", rest)
				}
			}
			top.active = top.parent && !top.taken && cond
			top.taken = top.taken || top.active
			active = top.active
		case "endif":
			if len(stack) == 0 {
				log.errorf(pos, "#endif without #if")
				continue
			}
			active = stack[len(stack)-1].parent
			stack = stack[:len(stack)-1]
		case "":
			// null directive
		default:
			if !active {
				continue
			}
			switch directive {
			case "define":
				name, value := splitDirective(rest)
				if name == "" {
					log.errorf(pos, "macro name missing")
					continue
				}
				if strings.Contains(name, "(") {
					log.errorf(pos, "function-like macros are not supported")
					continue
				}
				macros[name] = value
			case "undef":
				delete(macros, firstWord(rest))
			case "include":
				log.errorf(pos, "file inclusion is not supported: %s", rest)
			case "pragma", "line":
			case "warning":
				log.warnf(pos, "%s", rest)
			case "error":
				log.errorf(pos, "%s", rest)
			default:
				log.errorf(pos, "invalid preprocessing directive #%s", directive)
			}
		}
	}
	for _, frame := range stack {
		log.errorf(frame.pos, "unterminated conditional directive")
	}
	return strings.Join(lines, "\n"), macros
}

func splitDirective(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' })
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(stripLineComment(s[i:]))
}

func stripLineComment(s string) string {
	if i := strings.Index(s, "//"); i >= 0 {
		return s[:i]
	}
	return s
}

func firstWord(s string) string {
	w, _ := splitDirective(s)
	return w
}

// scanComments reports whether a block comment is still open at the end of line.
func scanComments(line string, inComment bool) bool {
	for i := 0; i < len(line); i++ {
		if inComment {
			if line[i] == '*' && i+1 < len(line) && line[i+1] == '/' {
				inComment = false
				i++
			}
			continue
		}
		if line[i] == '/' && i+1 < len(line) {
			switch line[i+1] {
			case '/':
				return false
			case '*':
				inComment = true
				i++
			}
		}
	}
	return inComment
}

// evalCondition understands integers, macro names, defined(NAME) and a
// leading negation.
func evalCondition(expr string, macros map[string]string) (bool, bool) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "!") {
		v, ok := evalCondition(expr[1:], macros)
		return !v, ok
	}
	if strings.HasPrefix(expr, "defined") {
		name := strings.TrimSpace(strings.TrimPrefix(expr, "defined"))
		name = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(name, "("), ")"))
		_, ok := macros[name]
		return ok, name != ""
	}
	if v, ok := macros[expr]; ok {
		expr = v
	} else if isIdent(expr) {
		return false, true
	}
	n, err := strconv.ParseInt(expr, 0, 64)
	if err != nil {
		return false, false
	}
	return n != 0, true
}
