package clc

import (
	"math"
	"strings"
)

type flow int

const (
	flowNext flow = iota
	flowBreak
	flowContinue
	flowReturn
)

type (
	floatFn func(*frame) float32
	intFn   func(*frame) int64
	stmtFn  func(*frame) flow
)

// lvalue is an assignable location. addr evaluates the location once so
// compound assignments read and write the same element.
type lvalue struct {
	name     string
	readOnly bool
	param    int
	addr     func(*frame) int
	getF     func(*frame, int) float32
	setF     func(*frame, int, float32)
	getI     func(*frame, int) int64
	setI     func(*frame, int, int64)
}

// value is a compiled expression. Float values evaluate through f, integer
// values through i; integers are kept sign- or zero-extended to 64 bits
// according to their type.
type value struct {
	t     Type
	f     floatFn
	i     intFn
	lv    *lvalue
	param int
	slot  int
	bad   bool
}

type variable struct {
	name  string
	t     Type
	pos   Pos
	slot  int
	param int
	used  bool
}

type scope struct {
	parent *scope
	vars   map[string]*variable
	order  []*variable
}

type compiler struct {
	log       *Log
	k         *Kernel
	scope     *scope
	loopDepth int
}

// Program is the result of a successful build.
type Program struct {
	kernels map[string]*Kernel
	names   []string
}

// Kernel looks up an entry point by name.
func (p *Program) Kernel(name string) (*Kernel, bool) {
	k, ok := p.kernels[name]
	return k, ok
}

// Kernels lists entry point names in declaration order.
func (p *Program) Kernels() []string {
	return append([]string(nil), p.names...)
}

// Compile builds source. The log is always returned; the program is nil
// when the log holds errors.
func Compile(source string, opts Options) (*Program, *Log) {
	log := &Log{}
	pre, macros := preprocess(source, opts.Defines, log)
	toks := tokenize(pre, macros, log)
	funcs := parse(toks, log)

	prog := &Program{kernels: map[string]*Kernel{}}
	for _, fn := range funcs {
		if _, dup := prog.kernels[fn.name]; dup {
			log.errorf(fn.pos, "redefinition of '%s'", fn.name)
			continue
		}
		if k := compileFunc(fn, log); k != nil {
			prog.kernels[k.Name] = k
			prog.names = append(prog.names, k.Name)
		}
	}

	diags := log.Diagnostics[:0]
	for _, d := range log.Diagnostics {
		if d.Severity == SeverityWarning {
			if opts.NoWarnings {
				continue
			}
			if opts.WarningsAsErrors {
				d.Severity = SeverityError
			}
		}
		diags = append(diags, d)
	}
	log.Diagnostics = diags

	if log.Errors() > 0 {
		return nil, log
	}
	return prog, log
}

func compileFunc(fn *funcDecl, log *Log) *Kernel {
	if !fn.kernel {
		log.errorf(fn.pos, "function '%s' is not a __kernel; helper functions are not supported", fn.name)
		return nil
	}
	if fn.result.Base != Void || fn.result.Pointer {
		log.errorf(fn.pos, "kernel function '%s' must have void return type", fn.name)
	}

	k := &Kernel{Name: fn.name}
	c := &compiler{log: log, k: k}
	c.push()
	for i, p := range fn.params {
		k.Params = append(k.Params, Param{Name: p.name, Type: p.typ})
		if p.typ.Base == Void {
			log.errorf(p.pos, "parameter '%s' has incomplete type 'void'", p.name)
			continue
		}
		v := c.declare(p.name, p.typ, p.pos, i)
		v.used = true
		k.Params[i].slot = v.slot
		if p.typ.Pointer {
			continue
		}
		idx, slot := i, v.slot
		if p.typ.Base == Float {
			k.prologue = append(k.prologue, func(fr *frame) { fr.f[slot] = fr.launch.sf[idx] })
		} else {
			k.prologue = append(k.prologue, func(fr *frame) { fr.i[slot] = fr.launch.si[idx] })
		}
	}
	fns := make([]stmtFn, 0, len(fn.body.stmts))
	for _, s := range fn.body.stmts {
		fns = append(fns, c.stmt(s))
	}
	c.pop()
	k.body = seq(fns)
	return k
}

func (c *compiler) push() {
	c.scope = &scope{parent: c.scope, vars: map[string]*variable{}}
}

func (c *compiler) pop() {
	for _, v := range c.scope.order {
		if !v.used {
			c.log.warnf(v.pos, "unused variable '%s'", v.name)
		}
	}
	c.scope = c.scope.parent
}

func (c *compiler) declare(name string, t Type, pos Pos, param int) *variable {
	if _, dup := c.scope.vars[name]; dup {
		c.log.errorf(pos, "redefinition of '%s'", name)
	}
	v := &variable{name: name, t: t, pos: pos, param: param}
	switch {
	case t.Pointer && t.Base == Float:
		v.slot = c.k.nfb
		c.k.nfb++
	case t.Pointer && t.Base == Int:
		v.slot = c.k.nib
		c.k.nib++
	case t.Pointer:
		v.slot = c.k.nub
		c.k.nub++
	case t.Base == Float:
		v.slot = c.k.nf
		c.k.nf++
	default:
		v.slot = c.k.ni
		c.k.ni++
	}
	c.scope.vars[name] = v
	c.scope.order = append(c.scope.order, v)
	return v
}

func (c *compiler) lookup(name string) *variable {
	for s := c.scope; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v
		}
	}
	return nil
}

func wrap(t BaseType, v int64) int64 {
	if t == Uint {
		return int64(uint32(v))
	}
	return int64(int32(v))
}

func floatToInt(t BaseType, f float32) int64 {
	if t == Uint {
		return int64(uint32(f))
	}
	return int64(int32(f))
}

func commonType(a, b BaseType) BaseType {
	switch {
	case a == Float || b == Float:
		return Float
	case a == Uint || b == Uint:
		return Uint
	}
	return Int
}

func poisonOf(b BaseType) value {
	if b == Float {
		return value{t: Type{Base: Float}, f: func(*frame) float32 { return 0 }, bad: true}
	}
	if b != Uint {
		b = Int
	}
	return value{t: Type{Base: b}, i: func(*frame) int64 { return 0 }, bad: true}
}

func floatValue(f floatFn) value { return value{t: Type{Base: Float}, f: f} }

func intValue(t BaseType, i intFn) value { return value{t: Type{Base: t}, i: i} }

// convert coerces an arithmetic value to base type to.
func (c *compiler) convert(v value, to BaseType, pos Pos) value {
	if v.bad {
		return poisonOf(to)
	}
	if v.t.Pointer {
		c.log.errorf(pos, "pointer '%s' used where a value of type '%s' is expected", v.t, to)
		return poisonOf(to)
	}
	if v.t.Base == Void {
		c.log.errorf(pos, "void value used where a value of type '%s' is expected", to)
		return poisonOf(to)
	}
	from := v.t.Base
	switch {
	case from == to:
		return value{t: Type{Base: to}, f: v.f, i: v.i}
	case to == Float:
		vi := v.i
		return floatValue(func(fr *frame) float32 { return float32(vi(fr)) })
	case from == Float:
		vf := v.f
		return intValue(to, func(fr *frame) int64 { return floatToInt(to, vf(fr)) })
	default:
		vi := v.i
		return intValue(to, func(fr *frame) int64 { return wrap(to, vi(fr)) })
	}
}

func (c *compiler) cond(e expr) func(*frame) bool {
	v := c.expr(e)
	if v.bad {
		return func(*frame) bool { return false }
	}
	if !v.t.isArith() {
		c.log.errorf(e.position(), "statement requires expression of scalar type ('%s' invalid)", v.t)
		return func(*frame) bool { return false }
	}
	if v.t.Base == Float {
		f := v.f
		return func(fr *frame) bool { return f(fr) != 0 }
	}
	i := v.i
	return func(fr *frame) bool { return i(fr) != 0 }
}

// effect evaluates a value for its side effects only.
func effect(v value) func(*frame) {
	switch {
	case v.f != nil:
		f := v.f
		return func(fr *frame) { f(fr) }
	case v.i != nil:
		i := v.i
		return func(fr *frame) { i(fr) }
	}
	return func(*frame) {}
}

func (c *compiler) expr(e expr) value {
	switch e := e.(type) {
	case *identExpr:
		return c.ident(e)
	case *intLit:
		return c.intLiteral(e)
	case *floatLit:
		f := float32(e.val)
		return floatValue(func(*frame) float32 { return f })
	case *indexExpr:
		v := c.index(e)
		if !v.bad {
			c.k.Params[v.lv.param].Read = true
		}
		return v
	case *unaryExpr:
		return c.unary(e)
	case *binaryExpr:
		return c.binary(e)
	case *assignExpr:
		return c.assign(e)
	case *incDecExpr:
		return c.incDec(e)
	case *callExpr:
		return c.call(e)
	case *castExpr:
		return c.cast(e)
	case *condExpr:
		return c.ternary(e)
	}
	c.log.errorf(e.position(), "unsupported expression")
	return poisonOf(Int)
}

func (c *compiler) intLiteral(e *intLit) value {
	t := Int
	switch {
	case e.val > math.MaxUint32:
		c.log.errorf(e.pos, "integer literal is too large to be represented in a 32-bit type")
		return poisonOf(Int)
	case e.unsigned || e.val > math.MaxInt32:
		t = Uint
	}
	v := int64(e.val)
	return intValue(t, func(*frame) int64 { return v })
}

func (c *compiler) ident(e *identExpr) value {
	v := c.lookup(e.name)
	if v == nil {
		if k, ok := builtinConstants[e.name]; ok {
			return k.value()
		}
		c.log.errorf(e.pos, "use of undeclared identifier '%s'", e.name)
		return poisonOf(Int)
	}
	v.used = true
	if v.t.Pointer {
		return value{t: v.t, param: v.param, slot: v.slot}
	}
	slot := v.slot
	lv := &lvalue{
		name:     v.name,
		readOnly: v.t.Const,
		param:    -1,
		addr:     func(*frame) int { return slot },
	}
	out := value{t: Type{Base: v.t.Base}, lv: lv}
	if v.t.Base == Float {
		lv.getF = func(fr *frame, a int) float32 { return fr.f[a] }
		lv.setF = func(fr *frame, a int, x float32) { fr.f[a] = x }
		out.f = func(fr *frame) float32 { return fr.f[slot] }
	} else {
		lv.getI = func(fr *frame, a int) int64 { return fr.i[a] }
		lv.setI = func(fr *frame, a int, x int64) { fr.i[a] = x }
		out.i = func(fr *frame) int64 { return fr.i[slot] }
	}
	return out
}

// index compiles p[i] without recording a read or write of p.
func (c *compiler) index(e *indexExpr) value {
	base := c.expr(e.x)
	idx := c.expr(e.idx)
	if base.bad || idx.bad {
		return poisonOf(base.t.Base)
	}
	if !base.t.Pointer {
		c.log.errorf(e.pos, "subscripted value is not a pointer")
		return poisonOf(Int)
	}
	if !idx.t.isInteger() {
		c.log.errorf(e.idx.position(), "array subscript is not an integer")
		return poisonOf(base.t.Base)
	}
	name := c.k.Params[base.param].Name
	slot := base.slot
	ii := idx.i
	lv := &lvalue{name: name, readOnly: base.t.Const, param: base.param}
	out := value{t: Type{Base: base.t.Base}, lv: lv}

	switch base.t.Base {
	case Float:
		lv.addr = func(fr *frame) int {
			n, buf := ii(fr), fr.fb[slot]
			if uint64(n) >= uint64(len(buf)) {
				panic(&BoundsError{Param: name, Index: n, Len: len(buf)})
			}
			return int(n)
		}
		lv.getF = func(fr *frame, a int) float32 { return fr.fb[slot][a] }
		lv.setF = func(fr *frame, a int, x float32) { fr.fb[slot][a] = x }
		out.f = func(fr *frame) float32 {
			n, buf := ii(fr), fr.fb[slot]
			if uint64(n) >= uint64(len(buf)) {
				panic(&BoundsError{Param: name, Index: n, Len: len(buf)})
			}
			return buf[n]
		}
	case Int:
		lv.addr = func(fr *frame) int {
			n, buf := ii(fr), fr.ib[slot]
			if uint64(n) >= uint64(len(buf)) {
				panic(&BoundsError{Param: name, Index: n, Len: len(buf)})
			}
			return int(n)
		}
		lv.getI = func(fr *frame, a int) int64 { return int64(fr.ib[slot][a]) }
		lv.setI = func(fr *frame, a int, x int64) { fr.ib[slot][a] = int32(x) }
		addr, get := lv.addr, lv.getI
		out.i = func(fr *frame) int64 { return get(fr, addr(fr)) }
	default:
		lv.addr = func(fr *frame) int {
			n, buf := ii(fr), fr.ub[slot]
			if uint64(n) >= uint64(len(buf)) {
				panic(&BoundsError{Param: name, Index: n, Len: len(buf)})
			}
			return int(n)
		}
		lv.getI = func(fr *frame, a int) int64 { return int64(fr.ub[slot][a]) }
		lv.setI = func(fr *frame, a int, x int64) { fr.ub[slot][a] = uint32(x) }
		addr, get := lv.addr, lv.getI
		out.i = func(fr *frame) int64 { return get(fr, addr(fr)) }
	}
	return out
}

// target compiles an assignment destination and records the access.
func (c *compiler) target(e expr, pos Pos, compound bool) (value, bool) {
	var v value
	switch e := e.(type) {
	case *identExpr:
		v = c.ident(e)
	case *indexExpr:
		v = c.index(e)
	default:
		c.expr(e)
		c.log.errorf(pos, "expression is not assignable")
		return v, false
	}
	if v.bad {
		return v, false
	}
	if v.t.Pointer {
		c.log.errorf(pos, "assigning to pointer parameters is not supported")
		return v, false
	}
	if v.lv == nil {
		c.log.errorf(pos, "expression is not assignable")
		return v, false
	}
	if v.lv.readOnly {
		if v.lv.param >= 0 {
			c.log.errorf(pos, "read-only variable is not assignable: '%s' points to const memory", v.lv.name)
		} else {
			c.log.errorf(pos, "cannot assign to variable '%s' with const-qualified type", v.lv.name)
		}
		return v, false
	}
	if v.lv.param >= 0 {
		p := &c.k.Params[v.lv.param]
		p.Written = true
		if compound {
			p.Read = true
		}
	}
	return v, true
}

func (c *compiler) unary(e *unaryExpr) value {
	x := c.expr(e.x)
	if x.bad {
		return x
	}
	if !x.t.isArith() {
		c.log.errorf(e.pos, "invalid argument type '%s' to unary expression", x.t)
		return poisonOf(Int)
	}
	t := x.t.Base
	switch e.op {
	case "+":
		return value{t: x.t, f: x.f, i: x.i}
	case "-":
		if t == Float {
			f := x.f
			return floatValue(func(fr *frame) float32 { return -f(fr) })
		}
		i := x.i
		return intValue(t, func(fr *frame) int64 { return wrap(t, -i(fr)) })
	case "!":
		if t == Float {
			f := x.f
			return intValue(Int, func(fr *frame) int64 { return boolInt(f(fr) == 0) })
		}
		i := x.i
		return intValue(Int, func(fr *frame) int64 { return boolInt(i(fr) == 0) })
	case "~":
		if t == Float {
			c.log.errorf(e.pos, "invalid argument type 'float' to unary expression")
			return poisonOf(Int)
		}
		i := x.i
		return intValue(t, func(fr *frame) int64 { return wrap(t, ^i(fr)) })
	}
	return poisonOf(Int)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func floatOp(op string) func(a, b float32) float32 {
	switch op {
	case "+":
		return func(a, b float32) float32 { return a + b }
	case "-":
		return func(a, b float32) float32 { return a - b }
	case "*":
		return func(a, b float32) float32 { return a * b }
	case "/":
		return func(a, b float32) float32 { return a / b }
	}
	return nil
}

func intOp(op string) func(a, b int64) int64 {
	switch op {
	case "+":
		return func(a, b int64) int64 { return a + b }
	case "-":
		return func(a, b int64) int64 { return a - b }
	case "*":
		return func(a, b int64) int64 { return a * b }
	case "/":
		return func(a, b int64) int64 { return a / b }
	case "%":
		return func(a, b int64) int64 { return a % b }
	case "&":
		return func(a, b int64) int64 { return a & b }
	case "|":
		return func(a, b int64) int64 { return a | b }
	case "^":
		return func(a, b int64) int64 { return a ^ b }
	case "<<":
		return func(a, b int64) int64 { return a << uint(b&31) }
	case ">>":
		return func(a, b int64) int64 { return a >> uint(b&31) }
	}
	return nil
}

func (c *compiler) binary(e *binaryExpr) value {
	if e.op == "&&" || e.op == "||" {
		x, y := c.cond(e.x), c.cond(e.y)
		if e.op == "&&" {
			return intValue(Int, func(fr *frame) int64 { return boolInt(x(fr) && y(fr)) })
		}
		return intValue(Int, func(fr *frame) int64 { return boolInt(x(fr) || y(fr)) })
	}

	x, y := c.expr(e.x), c.expr(e.y)
	if x.bad || y.bad {
		return poisonOf(Int)
	}
	if !x.t.isArith() || !y.t.isArith() {
		c.log.errorf(e.pos, "invalid operands to binary expression ('%s' and '%s')", x.t, y.t)
		return poisonOf(Int)
	}

	switch e.op {
	case "==", "!=", "<", ">", "<=", ">=":
		t := commonType(x.t.Base, y.t.Base)
		return compare(e.op, c.convert(x, t, e.pos), c.convert(y, t, e.pos))
	case "<<", ">>":
		if !x.t.isInteger() || !y.t.isInteger() {
			c.log.errorf(e.pos, "invalid operands to binary expression ('%s' and '%s')", x.t, y.t)
			return poisonOf(Int)
		}
		t := x.t.Base
		op, xi, yi := intOp(e.op), x.i, y.i
		return intValue(t, func(fr *frame) int64 { return wrap(t, op(xi(fr), yi(fr))) })
	}

	t := commonType(x.t.Base, y.t.Base)
	x, y = c.convert(x, t, e.pos), c.convert(y, t, e.pos)
	if t == Float {
		xf, yf := x.f, y.f
		switch e.op {
		case "+":
			return floatValue(func(fr *frame) float32 { return xf(fr) + yf(fr) })
		case "-":
			return floatValue(func(fr *frame) float32 { return xf(fr) - yf(fr) })
		case "*":
			return floatValue(func(fr *frame) float32 { return xf(fr) * yf(fr) })
		case "/":
			return floatValue(func(fr *frame) float32 { return xf(fr) / yf(fr) })
		}
		c.log.errorf(e.pos, "invalid operands to binary expression ('float' and 'float') for '%s'", e.op)
		return poisonOf(Float)
	}
	op, xi, yi := intOp(e.op), x.i, y.i
	if op == nil {
		c.log.errorf(e.pos, "unsupported binary operator '%s'", e.op)
		return poisonOf(t)
	}
	return intValue(t, func(fr *frame) int64 { return wrap(t, op(xi(fr), yi(fr))) })
}

func compare(op string, x, y value) value {
	if x.t.Base == Float {
		xf, yf := x.f, y.f
		var cmp func(a, b float32) bool
		switch op {
		case "==":
			cmp = func(a, b float32) bool { return a == b }
		case "!=":
			cmp = func(a, b float32) bool { return a != b }
		case "<":
			cmp = func(a, b float32) bool { return a < b }
		case ">":
			cmp = func(a, b float32) bool { return a > b }
		case "<=":
			cmp = func(a, b float32) bool { return a <= b }
		default:
			cmp = func(a, b float32) bool { return a >= b }
		}
		return intValue(Int, func(fr *frame) int64 { return boolInt(cmp(xf(fr), yf(fr))) })
	}
	xi, yi := x.i, y.i
	switch op {
	case "==":
		return intValue(Int, func(fr *frame) int64 { return boolInt(xi(fr) == yi(fr)) })
	case "!=":
		return intValue(Int, func(fr *frame) int64 { return boolInt(xi(fr) != yi(fr)) })
	case "<":
		return intValue(Int, func(fr *frame) int64 { return boolInt(xi(fr) < yi(fr)) })
	case ">":
		return intValue(Int, func(fr *frame) int64 { return boolInt(xi(fr) > yi(fr)) })
	case "<=":
		return intValue(Int, func(fr *frame) int64 { return boolInt(xi(fr) <= yi(fr)) })
	}
	return intValue(Int, func(fr *frame) int64 { return boolInt(xi(fr) >= yi(fr)) })
}

func (c *compiler) assign(e *assignExpr) value {
	lhs, ok := c.target(e.lhs, e.pos, e.op != "=")
	rhs := c.expr(e.rhs)
	if !ok || rhs.bad {
		return poisonOf(lhs.t.Base)
	}
	lv := lhs.lv
	lt := lhs.t.Base
	if e.op != "=" {
		return c.compound(e, lhs, rhs)
	}
	r := c.convert(rhs, lt, e.pos)
	if lt == Float {
		rf, addr, set := r.f, lv.addr, lv.setF
		return floatValue(func(fr *frame) float32 {
			a := addr(fr)
			v := rf(fr)
			set(fr, a, v)
			return v
		})
	}
	ri, addr, set := r.i, lv.addr, lv.setI
	return intValue(lt, func(fr *frame) int64 {
		a := addr(fr)
		v := ri(fr)
		set(fr, a, v)
		return v
	})
}

func (c *compiler) compound(e *assignExpr, lhs, rhs value) value {
	opName := strings.TrimSuffix(e.op, "=")
	lt := lhs.t.Base
	if !rhs.t.isArith() {
		c.log.errorf(e.pos, "invalid operands to binary expression ('%s' and '%s')", lhs.t, rhs.t)
		return poisonOf(lt)
	}
	ot := commonType(lt, rhs.t.Base)
	if opName == "<<" || opName == ">>" {
		ot = lt
	}
	fop, iop := floatOp(opName), intOp(opName)
	if (ot == Float && fop == nil) || (ot != Float && iop == nil) || ((opName == "<<" || opName == ">>") && !rhs.t.isInteger()) {
		c.log.errorf(e.pos, "invalid operands to binary expression ('%s' and '%s')", lhs.t, rhs.t)
		return poisonOf(lt)
	}
	lv := lhs.lv
	addr := lv.addr

	if opName == "<<" || opName == ">>" {
		ri := rhs.i
		get, set := lv.getI, lv.setI
		return intValue(lt, func(fr *frame) int64 {
			a := addr(fr)
			v := wrap(lt, iop(get(fr, a), ri(fr)))
			set(fr, a, v)
			return v
		})
	}

	r := c.convert(rhs, ot, e.pos)
	switch {
	case lt == Float:
		rf, get, set := r.f, lv.getF, lv.setF
		return floatValue(func(fr *frame) float32 {
			a := addr(fr)
			v := fop(get(fr, a), rf(fr))
			set(fr, a, v)
			return v
		})
	case ot == Float:
		rf, get, set := r.f, lv.getI, lv.setI
		return intValue(lt, func(fr *frame) int64 {
			a := addr(fr)
			v := floatToInt(lt, fop(float32(get(fr, a)), rf(fr)))
			set(fr, a, v)
			return v
		})
	default:
		ri, get, set := r.i, lv.getI, lv.setI
		return intValue(lt, func(fr *frame) int64 {
			a := addr(fr)
			v := wrap(lt, iop(wrap(ot, get(fr, a)), ri(fr)))
			set(fr, a, v)
			return v
		})
	}
}

func (c *compiler) incDec(e *incDecExpr) value {
	x, ok := c.target(e.x, e.pos, true)
	if !ok {
		return poisonOf(x.t.Base)
	}
	lv := x.lv
	t := x.t.Base
	post := e.postfix
	if t == Float {
		delta := float32(1)
		if e.op == "--" {
			delta = -1
		}
		addr, get, set := lv.addr, lv.getF, lv.setF
		return floatValue(func(fr *frame) float32 {
			a := addr(fr)
			old := get(fr, a)
			set(fr, a, old+delta)
			if post {
				return old
			}
			return old + delta
		})
	}
	delta := int64(1)
	if e.op == "--" {
		delta = -1
	}
	addr, get, set := lv.addr, lv.getI, lv.setI
	return intValue(t, func(fr *frame) int64 {
		a := addr(fr)
		old := get(fr, a)
		v := wrap(t, old+delta)
		set(fr, a, v)
		if post {
			return old
		}
		return v
	})
}

func (c *compiler) cast(e *castExpr) value {
	x := c.expr(e.x)
	if e.to.Base == Void {
		eff := effect(x)
		return value{t: Type{Base: Void}, i: func(fr *frame) int64 { eff(fr); return 0 }}
	}
	return c.convert(x, e.to.Base, e.pos)
}

func (c *compiler) ternary(e *condExpr) value {
	cond := c.cond(e.c)
	x, y := c.expr(e.t), c.expr(e.f)
	if x.bad || y.bad {
		return poisonOf(Int)
	}
	if !x.t.isArith() || !y.t.isArith() {
		c.log.errorf(e.pos, "incompatible operand types ('%s' and '%s')", x.t, y.t)
		return poisonOf(Int)
	}
	t := commonType(x.t.Base, y.t.Base)
	x, y = c.convert(x, t, e.pos), c.convert(y, t, e.pos)
	if t == Float {
		xf, yf := x.f, y.f
		return floatValue(func(fr *frame) float32 {
			if cond(fr) {
				return xf(fr)
			}
			return yf(fr)
		})
	}
	xi, yi := x.i, y.i
	return intValue(t, func(fr *frame) int64 {
		if cond(fr) {
			return xi(fr)
		}
		return yi(fr)
	})
}

func nop(*frame) flow { return flowNext }

func seq(fns []stmtFn) stmtFn {
	switch len(fns) {
	case 0:
		return nop
	case 1:
		return fns[0]
	}
	return func(fr *frame) flow {
		for _, f := range fns {
			if fl := f(fr); fl != flowNext {
				return fl
			}
		}
		return flowNext
	}
}

func (c *compiler) stmt(s stmt) stmtFn {
	switch s := s.(type) {
	case *blockStmt:
		c.push()
		fns := make([]stmtFn, 0, len(s.stmts))
		for _, st := range s.stmts {
			fns = append(fns, c.stmt(st))
		}
		c.pop()
		return seq(fns)
	case *declStmt:
		return c.decl(s)
	case *exprStmt:
		eff := effect(c.expr(s.x))
		return func(fr *frame) flow {
			eff(fr)
			return flowNext
		}
	case *ifStmt:
		cond := c.cond(s.cond)
		then := c.stmt(s.then)
		els := stmtFn(nop)
		if s.els != nil {
			els = c.stmt(s.els)
		}
		return func(fr *frame) flow {
			if cond(fr) {
				return then(fr)
			}
			return els(fr)
		}
	case *forStmt:
		return c.forLoop(s)
	case *whileStmt:
		return c.whileLoop(s)
	case *returnStmt:
		if s.x != nil {
			c.expr(s.x)
			c.log.errorf(s.pos, "void function '%s' should not return a value", c.k.Name)
		}
		return func(*frame) flow { return flowReturn }
	case *branchStmt:
		if c.loopDepth == 0 {
			c.log.errorf(s.pos, "'%s' statement not in loop statement", s.tok)
		}
		if s.tok == "break" {
			return func(*frame) flow { return flowBreak }
		}
		return func(*frame) flow { return flowContinue }
	case *emptyStmt:
		return nop
	}
	c.log.errorf(s.position(), "unsupported statement")
	return nop
}

func (c *compiler) decl(s *declStmt) stmtFn {
	fns := make([]stmtFn, 0, len(s.decls))
	for _, d := range s.decls {
		var init value
		hasInit := d.init != nil
		if hasInit {
			init = c.convert(c.expr(d.init), s.typ.Base, d.pos)
		} else if s.typ.Const {
			c.log.errorf(d.pos, "const variable '%s' must be initialized", d.name)
		}
		v := c.declare(d.name, s.typ, d.pos, -1)
		slot := v.slot
		switch {
		case s.typ.Base == Float && hasInit:
			f := init.f
			fns = append(fns, func(fr *frame) flow { fr.f[slot] = f(fr); return flowNext })
		case s.typ.Base == Float:
			fns = append(fns, func(fr *frame) flow { fr.f[slot] = 0; return flowNext })
		case hasInit:
			i := init.i
			fns = append(fns, func(fr *frame) flow { fr.i[slot] = i(fr); return flowNext })
		default:
			fns = append(fns, func(fr *frame) flow { fr.i[slot] = 0; return flowNext })
		}
	}
	return seq(fns)
}

func (c *compiler) forLoop(s *forStmt) stmtFn {
	c.push()
	defer c.pop()
	init := stmtFn(nop)
	if s.init != nil {
		init = c.stmt(s.init)
	}
	cond := func(*frame) bool { return true }
	if s.cond != nil {
		cond = c.cond(s.cond)
	}
	post := func(*frame) {}
	if s.post != nil {
		post = effect(c.expr(s.post))
	}
	c.loopDepth++
	body := c.stmt(s.body)
	c.loopDepth--
	return func(fr *frame) flow {
		for init(fr); cond(fr); post(fr) {
			switch body(fr) {
			case flowBreak:
				return flowNext
			case flowReturn:
				return flowReturn
			}
		}
		return flowNext
	}
}

func (c *compiler) whileLoop(s *whileStmt) stmtFn {
	cond := c.cond(s.cond)
	c.loopDepth++
	body := c.stmt(s.body)
	c.loopDepth--
	if s.do {
		return func(fr *frame) flow {
			for {
				switch body(fr) {
				case flowBreak:
					return flowNext
				case flowReturn:
					return flowReturn
				}
				if !cond(fr) {
					return flowNext
				}
			}
		}
	}
	return func(fr *frame) flow {
		for cond(fr) {
			switch body(fr) {
			case flowBreak:
				return flowNext
			case flowReturn:
				return flowReturn
			}
		}
		return flowNext
	}
}
