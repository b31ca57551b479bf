package clc

// BaseType is a scalar type of the supported language subset.
type BaseType int

const (
	Invalid BaseType = iota
	Void
	Int
	Uint
	Float
)

func (b BaseType) String() string {
	switch b {
	case Void:
		return "void"
	case Int:
		return "int"
	case Uint:
		return "uint"
	case Float:
		return "float"
	}
	return "<invalid>"
}

// Type is a scalar or a pointer to global memory holding scalars.
type Type struct {
	Base    BaseType
	Pointer bool
	// Const marks a const pointee for pointers and a const variable otherwise.
	Const bool
}

func (t Type) String() string {
	s := t.Base.String()
	if t.Const {
		s = "const " + s
	}
	if t.Pointer {
		s = "__global " + s + " *"
	}
	return s
}

func (t Type) isArith() bool {
	return !t.Pointer && (t.Base == Int || t.Base == Uint || t.Base == Float)
}

func (t Type) isInteger() bool {
	return !t.Pointer && (t.Base == Int || t.Base == Uint)
}

type expr interface{ position() Pos }

type (
	identExpr struct {
		pos  Pos
		name string
	}
	intLit struct {
		pos      Pos
		val      uint64
		unsigned bool
	}
	floatLit struct {
		pos Pos
		val float64
	}
	unaryExpr struct {
		pos Pos
		op  string
		x   expr
	}
	binaryExpr struct {
		pos  Pos
		op   string
		x, y expr
	}
	assignExpr struct {
		pos      Pos
		op       string
		lhs, rhs expr
	}
	incDecExpr struct {
		pos     Pos
		op      string
		x       expr
		postfix bool
	}
	indexExpr struct {
		pos    Pos
		x, idx expr
	}
	callExpr struct {
		pos  Pos
		fun  string
		args []expr
	}
	castExpr struct {
		pos Pos
		to  Type
		x   expr
	}
	condExpr struct {
		pos     Pos
		c, t, f expr
	}
)

func (e *identExpr) position() Pos  { return e.pos }
func (e *intLit) position() Pos     { return e.pos }
func (e *floatLit) position() Pos   { return e.pos }
func (e *unaryExpr) position() Pos  { return e.pos }
func (e *binaryExpr) position() Pos { return e.pos }
func (e *assignExpr) position() Pos { return e.pos }
func (e *incDecExpr) position() Pos { return e.pos }
func (e *indexExpr) position() Pos  { return e.pos }
func (e *callExpr) position() Pos   { return e.pos }
func (e *castExpr) position() Pos   { return e.pos }
func (e *condExpr) position() Pos   { return e.pos }

type stmt interface{ position() Pos }

type (
	blockStmt struct {
		pos   Pos
		stmts []stmt
	}
	declarator struct {
		pos  Pos
		name string
		init expr
	}
	declStmt struct {
		pos   Pos
		typ   Type
		decls []declarator
	}
	exprStmt struct {
		pos Pos
		x   expr
	}
	ifStmt struct {
		pos  Pos
		cond expr
		then stmt
		els  stmt
	}
	forStmt struct {
		pos  Pos
		init stmt
		cond expr
		post expr
		body stmt
	}
	whileStmt struct {
		pos  Pos
		cond expr
		body stmt
		do   bool
	}
	returnStmt struct {
		pos Pos
		x   expr
	}
	branchStmt struct {
		pos Pos
		tok string
	}
	emptyStmt struct {
		pos Pos
	}
)

func (s *blockStmt) position() Pos  { return s.pos }
func (s *declStmt) position() Pos   { return s.pos }
func (s *exprStmt) position() Pos   { return s.pos }
func (s *ifStmt) position() Pos     { return s.pos }
func (s *forStmt) position() Pos    { return s.pos }
func (s *whileStmt) position() Pos  { return s.pos }
func (s *returnStmt) position() Pos { return s.pos }
func (s *branchStmt) position() Pos { return s.pos }
func (s *emptyStmt) position() Pos  { return s.pos }

type paramDecl struct {
	pos  Pos
	name string
	typ  Type
}

type funcDecl struct {
	pos    Pos
	name   string
	kernel bool
	result Type
	params []paramDecl
	body   *blockStmt
}
