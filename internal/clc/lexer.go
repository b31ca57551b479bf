package clc

import (
	"strconv"
	"strings"
)

type tokKind int

const (
	tEOF tokKind = iota
	tIdent
	tInt
	tFloat
	tPunct
)

type token struct {
	kind     tokKind
	text     string
	pos      Pos
	ival     uint64
	fval     float64
	unsigned bool
}

func (t token) is(text string) bool {
	return (t.kind == tPunct || t.kind == tIdent) && t.text == text
}

func (t token) String() string {
	if t.kind == tEOF {
		return "end of file"
	}
	return "'" + t.text + "'"
}

// punctuators ordered longest first so the scanner takes the longest match.
var punctuators = []string{
	"<<=", ">>=",
	"++", "--", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	"==", "!=", "<=", ">=", "&&", "||", "<<", ">>",
	"+", "-", "*", "/", "%", "=", "<", ">", "!", "&", "|", "^", "~",
	"?", ":", ";", ",", "(", ")", "{", "}", "[", "]",
}

const maxMacroDepth = 16

type lexer struct {
	src    string
	off    int
	line   int
	col    int
	log    *Log
	macros map[string]string
}

// tokenize scans preprocessed source into tokens, expanding object-like
// macros. The result always ends with an EOF token.
func tokenize(src string, macros map[string]string, log *Log) []token {
	lx := &lexer{src: src, line: 1, col: 1, log: log, macros: macros}
	var toks []token
	for {
		tok := lx.next()
		if tok.kind == tIdent {
			toks = lx.expand(toks, tok, 0, nil)
			continue
		}
		toks = append(toks, tok)
		if tok.kind == tEOF {
			return toks
		}
	}
}

func (lx *lexer) expand(toks []token, tok token, depth int, active map[string]bool) []token {
	body, ok := lx.macros[tok.text]
	if !ok || active[tok.text] {
		return append(toks, tok)
	}
	if depth >= maxMacroDepth {
		lx.log.errorf(tok.pos, "macro expansion of '%s' is too deep", tok.text)
		return toks
	}
	nested := map[string]bool{tok.text: true}
	for k := range active {
		nested[k] = true
	}
	sub := &lexer{src: body, line: 1, col: 1, log: lx.log, macros: lx.macros}
	for {
		t := sub.next()
		if t.kind == tEOF {
			return toks
		}
		t.pos = tok.pos
		if t.kind == tIdent {
			toks = lx.expand(toks, t, depth+1, nested)
			continue
		}
		toks = append(toks, t)
	}
}

func (lx *lexer) peekByte(ahead int) byte {
	if lx.off+ahead < len(lx.src) {
		return lx.src[lx.off+ahead]
	}
	return 0
}

func (lx *lexer) advance(n int) {
	for i := 0; i < n && lx.off < len(lx.src); i++ {
		if lx.src[lx.off] == '\n' {
			lx.line++
			lx.col = 1
		} else {
			lx.col++
		}
		lx.off++
	}
}

func (lx *lexer) skipSpaceAndComments() {
	for lx.off < len(lx.src) {
		c := lx.src[lx.off]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			lx.advance(1)
		case c == '\\' && lx.peekByte(1) == '\n':
			lx.advance(2)
		case c == '/' && lx.peekByte(1) == '/':
			for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
				lx.advance(1)
			}
		case c == '/' && lx.peekByte(1) == '*':
			start := Pos{Line: lx.line, Col: lx.col}
			lx.advance(2)
			closed := false
			for lx.off < len(lx.src) {
				if lx.src[lx.off] == '*' && lx.peekByte(1) == '/' {
					lx.advance(2)
					closed = true
					break
				}
				lx.advance(1)
			}
			if !closed {
				lx.log.errorf(start, "unterminated /* comment")
			}
		default:
			return
		}
	}
}

func (lx *lexer) next() token {
	lx.skipSpaceAndComments()
	pos := Pos{Line: lx.line, Col: lx.col}
	if lx.off >= len(lx.src) {
		return token{kind: tEOF, pos: pos}
	}
	c := lx.src[lx.off]
	switch {
	case isIdentStart(c):
		start := lx.off
		for lx.off < len(lx.src) && isIdentPart(lx.src[lx.off]) {
			lx.advance(1)
		}
		return token{kind: tIdent, text: lx.src[start:lx.off], pos: pos}
	case isDigit(c) || (c == '.' && isDigit(lx.peekByte(1))):
		return lx.number(pos)
	}
	for _, p := range punctuators {
		if strings.HasPrefix(lx.src[lx.off:], p) {
			lx.advance(len(p))
			return token{kind: tPunct, text: p, pos: pos}
		}
	}
	lx.log.errorf(pos, "unexpected character %q", c)
	lx.advance(1)
	return lx.next()
}

func (lx *lexer) number(pos Pos) token {
	start := lx.off
	isFloat := false
	if lx.src[lx.off] == '0' && (lx.peekByte(1) == 'x' || lx.peekByte(1) == 'X') {
		lx.advance(2)
		for lx.off < len(lx.src) && isHexDigit(lx.src[lx.off]) {
			lx.advance(1)
		}
	} else {
		for lx.off < len(lx.src) {
			c := lx.src[lx.off]
			if isDigit(c) {
				lx.advance(1)
				continue
			}
			if c == '.' {
				isFloat = true
				lx.advance(1)
				continue
			}
			if (c == 'e' || c == 'E') && (isDigit(lx.peekByte(1)) || ((lx.peekByte(1) == '+' || lx.peekByte(1) == '-') && isDigit(lx.peekByte(2)))) {
				isFloat = true
				lx.advance(2)
				continue
			}
			break
		}
	}
	digits := lx.src[start:lx.off]

	unsigned := false
suffix:
	for lx.off < len(lx.src) {
		switch lx.src[lx.off] {
		case 'f', 'F':
			isFloat = true
		case 'u', 'U':
			unsigned = true
		case 'l', 'L':
		default:
			break suffix
		}
		lx.advance(1)
	}
	text := lx.src[start:lx.off]
	if isIdentPart(lx.peekByte(0)) {
		lx.log.errorf(pos, "invalid suffix on numeric literal %q", text)
	}
	if isFloat {
		v, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			lx.log.errorf(pos, "invalid floating literal %q", text)
		}
		return token{kind: tFloat, text: text, pos: pos, fval: v}
	}
	v, err := strconv.ParseUint(digits, 0, 64)
	if err != nil {
		lx.log.errorf(pos, "invalid integer literal %q", text)
	}
	return token{kind: tInt, text: text, pos: pos, ival: v, unsigned: unsigned}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}
