package clc

type bailout struct{}

type parser struct {
	toks []token
	i    int
	log  *Log
}

func parse(toks []token, log *Log) []*funcDecl {
	p := &parser{toks: toks, log: log}
	var funcs []*funcDecl
	for p.tok().kind != tEOF {
		if fn := p.parseFuncGuarded(); fn != nil {
			funcs = append(funcs, fn)
		}
	}
	return funcs
}

func (p *parser) tok() token { return p.toks[p.i] }

func (p *parser) peek(n int) token {
	if p.i+n < len(p.toks) {
		return p.toks[p.i+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tEOF {
		p.i++
	}
	return t
}

func (p *parser) accept(text string) bool {
	if p.tok().is(text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(text string) token {
	t := p.tok()
	if !t.is(text) {
		p.fail(t.pos, "expected '%s', found %s", text, t)
	}
	return p.next()
}

func (p *parser) fail(pos Pos, format string, args ...any) {
	p.log.errorf(pos, format, args...)
	panic(bailout{})
}

// parseFuncGuarded parses one top-level function. After a syntax error it
// skips ahead to the next kernel qualifier so later functions still get
// diagnosed.
func (p *parser) parseFuncGuarded() (fn *funcDecl) {
	start := p.i
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			fn = nil
			if p.i == start {
				p.next()
			}
			for p.tok().kind != tEOF && !p.tok().is("__kernel") && !p.tok().is("kernel") {
				p.next()
			}
		}
	}()
	return p.parseFunc()
}

func (p *parser) skipAttributes() {
	for p.tok().is("__attribute__") {
		p.next()
		p.expect("(")
		depth := 1
		for depth > 0 {
			t := p.next()
			switch {
			case t.kind == tEOF:
				p.fail(t.pos, "unterminated __attribute__")
			case t.is("("):
				depth++
			case t.is(")"):
				depth--
			}
		}
	}
}

func (p *parser) parseFunc() *funcDecl {
	fn := &funcDecl{pos: p.tok().pos}
	p.skipAttributes()
	if p.accept("__kernel") || p.accept("kernel") {
		fn.kernel = true
	}
	p.skipAttributes()
	fn.result = p.parseType(false)
	name := p.next()
	if name.kind != tIdent {
		p.fail(name.pos, "expected function name, found %s", name)
	}
	fn.name = name.text
	fn.pos = name.pos

	p.expect("(")
	if p.tok().is("void") && p.peek(1).is(")") {
		p.next()
	}
	for !p.tok().is(")") {
		if len(fn.params) > 0 {
			p.expect(",")
		}
		ptype := p.parseType(true)
		pname := p.next()
		if pname.kind != tIdent {
			p.fail(pname.pos, "expected parameter name, found %s", pname)
		}
		fn.params = append(fn.params, paramDecl{pos: pname.pos, name: pname.text, typ: ptype})
	}
	p.expect(")")
	if p.tok().is(";") {
		p.fail(p.tok().pos, "function declarations without a body are not supported")
	}
	fn.body = p.parseBlock()
	return fn
}

var typeWords = map[string]bool{
	"void": true, "float": true, "int": true, "uint": true, "unsigned": true, "signed": true, "size_t": true,
	"char": true, "uchar": true, "short": true, "ushort": true, "long": true, "ulong": true,
	"double": true, "half": true, "bool": true,
}

var qualifierWords = map[string]bool{
	"const": true, "__global": true, "global": true, "__constant": true, "constant": true,
	"__local": true, "local": true, "__private": true, "private": true,
	"volatile": true, "restrict": true, "__restrict": true,
}

func (p *parser) isTypeStart() bool {
	t := p.tok()
	return t.kind == tIdent && (typeWords[t.text] || qualifierWords[t.text])
}

// parseType reads declaration specifiers and an optional pointer declarator.
func (p *parser) parseType(param bool) Type {
	start := p.tok().pos
	var t Type
	global := false
specifiers:
	for {
		tk := p.tok()
		if tk.kind != tIdent {
			break
		}
		switch tk.text {
		case "const":
			t.Const = true
		case "__global", "global":
			global = true
		case "__constant", "constant":
			global = true
			t.Const = true
		case "__local", "local":
			p.fail(tk.pos, "__local memory is not supported on this device")
		case "__private", "private", "volatile", "restrict", "__restrict":
		case "float":
			t.Base = Float
		case "int":
			if t.Base != Uint {
				t.Base = Int
			}
		case "signed":
			t.Base = Int
		case "uint", "unsigned", "size_t":
			t.Base = Uint
		case "void":
			t.Base = Void
		default:
			if typeWords[tk.text] {
				p.fail(tk.pos, "type '%s' is not supported", tk.text)
			}
			break specifiers
		}
		p.next()
	}
	if t.Base == Invalid {
		p.fail(start, "expected a type, found %s", p.tok())
	}
	if p.accept("*") {
		for p.accept("const") || p.accept("restrict") || p.accept("__restrict") || p.accept("volatile") {
		}
		if p.tok().is("*") {
			p.fail(p.tok().pos, "pointers to pointers are not supported")
		}
		if !param {
			p.fail(start, "pointer variables are not supported; index the kernel argument directly")
		}
		if !global {
			p.fail(start, "pointer parameter must point to __global or __constant memory")
		}
		if t.Base == Void {
			p.fail(start, "void pointers are not supported")
		}
		t.Pointer = true
	}
	return t
}

func (p *parser) parseBlock() *blockStmt {
	b := &blockStmt{pos: p.expect("{").pos}
	for !p.tok().is("}") {
		if p.tok().kind == tEOF {
			p.fail(p.tok().pos, "expected '}' at end of block")
		}
		b.stmts = append(b.stmts, p.parseStmt())
	}
	p.next()
	return b
}

func (p *parser) parseStmt() stmt {
	t := p.tok()
	switch {
	case t.is("{"):
		return p.parseBlock()
	case t.is(";"):
		p.next()
		return &emptyStmt{pos: t.pos}
	case t.is("if"):
		p.next()
		p.expect("(")
		s := &ifStmt{pos: t.pos, cond: p.parseExpr()}
		p.expect(")")
		s.then = p.parseStmt()
		if p.accept("else") {
			s.els = p.parseStmt()
		}
		return s
	case t.is("for"):
		p.next()
		p.expect("(")
		s := &forStmt{pos: t.pos}
		if !p.tok().is(";") {
			if p.isTypeStart() {
				s.init = p.parseDecl()
			} else {
				s.init = &exprStmt{pos: p.tok().pos, x: p.parseExpr()}
			}
		}
		p.expect(";")
		if !p.tok().is(";") {
			s.cond = p.parseExpr()
		}
		p.expect(";")
		if !p.tok().is(")") {
			s.post = p.parseExpr()
		}
		p.expect(")")
		s.body = p.parseStmt()
		return s
	case t.is("while"):
		p.next()
		p.expect("(")
		s := &whileStmt{pos: t.pos, cond: p.parseExpr()}
		p.expect(")")
		s.body = p.parseStmt()
		return s
	case t.is("do"):
		p.next()
		s := &whileStmt{pos: t.pos, do: true, body: p.parseStmt()}
		p.expect("while")
		p.expect("(")
		s.cond = p.parseExpr()
		p.expect(")")
		p.expect(";")
		return s
	case t.is("return"):
		p.next()
		s := &returnStmt{pos: t.pos}
		if !p.tok().is(";") {
			s.x = p.parseExpr()
		}
		p.expect(";")
		return s
	case t.is("break"), t.is("continue"):
		p.next()
		p.expect(";")
		return &branchStmt{pos: t.pos, tok: t.text}
	case t.is("switch"), t.is("goto"):
		p.fail(t.pos, "'%s' statements are not supported", t.text)
	case p.isTypeStart():
		s := p.parseDecl()
		p.expect(";")
		return s
	}
	s := &exprStmt{pos: t.pos, x: p.parseExpr()}
	p.expect(";")
	return s
}

func (p *parser) parseDecl() *declStmt {
	d := &declStmt{pos: p.tok().pos, typ: p.parseType(false)}
	if d.typ.Base == Void {
		p.fail(d.pos, "variable has incomplete type 'void'")
	}
	for {
		name := p.next()
		if name.kind != tIdent {
			p.fail(name.pos, "expected identifier, found %s", name)
		}
		if p.tok().is("[") {
			p.fail(p.tok().pos, "private arrays are not supported")
		}
		dc := declarator{pos: name.pos, name: name.text}
		if p.accept("=") {
			dc.init = p.parseAssign()
		}
		d.decls = append(d.decls, dc)
		if !p.accept(",") {
			return d
		}
	}
}

func (p *parser) parseExpr() expr {
	x := p.parseAssign()
	if p.tok().is(",") {
		p.fail(p.tok().pos, "the comma operator is not supported")
	}
	return x
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"&=": true, "|=": true, "^=": true, "<<=": true, ">>=": true,
}

func (p *parser) parseAssign() expr {
	lhs := p.parseCond()
	if t := p.tok(); t.kind == tPunct && assignOps[t.text] {
		p.next()
		return &assignExpr{pos: t.pos, op: t.text, lhs: lhs, rhs: p.parseAssign()}
	}
	return lhs
}

func (p *parser) parseCond() expr {
	c := p.parseBinary(1)
	if t := p.tok(); t.is("?") {
		p.next()
		e := &condExpr{pos: t.pos, c: c, t: p.parseAssign()}
		p.expect(":")
		e.f = p.parseCond()
		return e
	}
	return c
}

var binaryPrec = map[string]int{
	"||": 1, "&&": 2, "|": 3, "^": 4, "&": 5,
	"==": 6, "!=": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

func (p *parser) parseBinary(minPrec int) expr {
	x := p.parseUnary()
	for {
		t := p.tok()
		prec, ok := binaryPrec[t.text]
		if t.kind != tPunct || !ok || prec < minPrec {
			return x
		}
		p.next()
		y := p.parseBinary(prec + 1)
		x = &binaryExpr{pos: t.pos, op: t.text, x: x, y: y}
	}
}

func (p *parser) parseUnary() expr {
	t := p.tok()
	switch {
	case t.is("-"), t.is("+"), t.is("!"), t.is("~"):
		p.next()
		return &unaryExpr{pos: t.pos, op: t.text, x: p.parseUnary()}
	case t.is("++"), t.is("--"):
		p.next()
		return &incDecExpr{pos: t.pos, op: t.text, x: p.parseUnary()}
	case t.is("*"), t.is("&"):
		p.fail(t.pos, "pointer dereference and address-of are not supported; use indexing")
	case t.is("sizeof"):
		p.fail(t.pos, "sizeof is not supported")
	case t.is("("):
		p.next()
		if p.isTypeStart() {
			to := p.parseType(false)
			p.expect(")")
			return &castExpr{pos: t.pos, to: to, x: p.parseUnary()}
		}
		x := p.parseExpr()
		p.expect(")")
		return p.parsePostfix(x)
	}
	return p.parsePostfix(p.parsePrimary())
}

func (p *parser) parsePostfix(x expr) expr {
	for {
		t := p.tok()
		switch {
		case t.is("["):
			p.next()
			idx := p.parseExpr()
			p.expect("]")
			x = &indexExpr{pos: t.pos, x: x, idx: idx}
		case t.is("++"), t.is("--"):
			p.next()
			x = &incDecExpr{pos: t.pos, op: t.text, x: x, postfix: true}
		default:
			return x
		}
	}
}

func (p *parser) parsePrimary() expr {
	t := p.next()
	switch t.kind {
	case tIdent:
		if p.tok().is("(") {
			p.next()
			call := &callExpr{pos: t.pos, fun: t.text}
			for !p.tok().is(")") {
				if len(call.args) > 0 {
					p.expect(",")
				}
				call.args = append(call.args, p.parseAssign())
			}
			p.expect(")")
			return call
		}
		return &identExpr{pos: t.pos, name: t.text}
	case tInt:
		return &intLit{pos: t.pos, val: t.ival, unsigned: t.unsigned}
	case tFloat:
		return &floatLit{pos: t.pos, val: t.fval}
	}
	p.fail(t.pos, "expected expression, found %s", t)
	return nil
}
