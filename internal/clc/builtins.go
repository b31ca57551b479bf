package clc

import (
	"math"

	"github.com/chewxy/math32"
)

type constant struct {
	t BaseType
	f float32
	i int64
}

func (k constant) value() value {
	if k.t == Float {
		f := k.f
		return floatValue(func(*frame) float32 { return f })
	}
	i := k.i
	return intValue(k.t, func(*frame) int64 { return i })
}

var builtinConstants = map[string]constant{
	"INT_MAX":              {t: Int, i: math.MaxInt32},
	"INT_MIN":              {t: Int, i: math.MinInt32},
	"UINT_MAX":             {t: Uint, i: math.MaxUint32},
	"FLT_MAX":              {t: Float, f: math.MaxFloat32},
	"MAXFLOAT":             {t: Float, f: math.MaxFloat32},
	"FLT_MIN":              {t: Float, f: 1.17549435e-38},
	"FLT_EPSILON":          {t: Float, f: 1.1920929e-07},
	"M_PI_F":               {t: Float, f: math.Pi},
	"M_E_F":                {t: Float, f: math.E},
	"INFINITY":             {t: Float, f: math32.Inf(1)},
	"NAN":                  {t: Float, f: math32.NaN()},
	"CLK_LOCAL_MEM_FENCE":  {t: Uint, i: 1},
	"CLK_GLOBAL_MEM_FENCE": {t: Uint, i: 2},
}

// workItemFuncs answer the index-space queries for dimension 0. Higher
// dimensions of the one-dimensional range report id 0 and size 1.
var workItemFuncs = map[string]func(it *workItem, dim int64) int64{
	"get_global_id": func(it *workItem, dim int64) int64 {
		if dim == 0 {
			return it.global
		}
		return 0
	},
	"get_local_id": func(it *workItem, dim int64) int64 {
		if dim == 0 {
			return it.local
		}
		return 0
	},
	"get_group_id": func(it *workItem, dim int64) int64 {
		if dim == 0 {
			return it.group
		}
		return 0
	},
	"get_global_size": func(it *workItem, dim int64) int64 {
		if dim == 0 {
			return it.globalSize
		}
		return 1
	},
	"get_local_size": func(it *workItem, dim int64) int64 {
		if dim == 0 {
			return it.localSize
		}
		return 1
	},
	"get_num_groups": func(it *workItem, dim int64) int64 {
		if dim == 0 {
			return it.numGroups
		}
		return 1
	},
	"get_global_offset": func(*workItem, int64) int64 { return 0 },
}

var mathFuncs1 = map[string]func(float32) float32{
	"sqrt":         math32.Sqrt,
	"native_sqrt":  math32.Sqrt,
	"rsqrt":        func(x float32) float32 { return 1 / math32.Sqrt(x) },
	"native_rsqrt": func(x float32) float32 { return 1 / math32.Sqrt(x) },
	"fabs":         math32.Abs,
	"floor":        math32.Floor,
	"ceil":         math32.Ceil,
	"round":        math32.Round,
	"trunc":        math32.Trunc,
	"exp":          math32.Exp,
	"native_exp":   math32.Exp,
	"exp2":         math32.Exp2,
	"log":          math32.Log,
	"native_log":   math32.Log,
	"log2":         math32.Log2,
	"log10":        math32.Log10,
	"sin":          math32.Sin,
	"native_sin":   math32.Sin,
	"cos":          math32.Cos,
	"native_cos":   math32.Cos,
	"tan":          math32.Tan,
	"native_recip": func(x float32) float32 { return 1 / x },
}

var mathFuncs2 = map[string]func(a, b float32) float32{
	"pow":           math32.Pow,
	"powr":          math32.Pow,
	"native_powr":   math32.Pow,
	"fmod":          math32.Mod,
	"atan2":         math32.Atan2,
	"hypot":         math32.Hypot,
	"copysign":      math32.Copysign,
	"fmin":          fmin,
	"fmax":          fmax,
	"native_divide": func(a, b float32) float32 { return a / b },
}

var mathFuncs3 = map[string]func(a, b, c float32) float32{
	"mad": func(a, b, c float32) float32 { return a*b + c },
	"fma": func(a, b, c float32) float32 { return float32(math.FMA(float64(a), float64(b), float64(c))) },
}

// unsupportedFuncs need work-group cooperation or host services the
// software device does not provide.
var unsupportedFuncs = map[string]bool{
	"barrier": true, "work_group_barrier": true,
	"mem_fence": true, "read_mem_fence": true, "write_mem_fence": true,
	"async_work_group_copy": true, "wait_group_events": true,
	"atomic_add": true, "atomic_sub": true, "atomic_inc": true, "atomic_dec": true,
	"atomic_xchg": true, "atomic_cmpxchg": true, "atomic_min": true, "atomic_max": true,
	"atom_add": true, "atom_inc": true,
	"printf": true,
}

func fmin(a, b float32) float32 {
	switch {
	case a != a:
		return b
	case b != b:
		return a
	case b < a:
		return b
	}
	return a
}

func fmax(a, b float32) float32 {
	switch {
	case a != a:
		return b
	case b != b:
		return a
	case b > a:
		return b
	}
	return a
}

func (c *compiler) arity(e *callExpr, want int) bool {
	if len(e.args) == want {
		return true
	}
	if len(e.args) < want {
		c.log.errorf(e.pos, "too few arguments to function call '%s', expected %d, have %d", e.fun, want, len(e.args))
	} else {
		c.log.errorf(e.pos, "too many arguments to function call '%s', expected %d, have %d", e.fun, want, len(e.args))
	}
	return false
}

func (c *compiler) call(e *callExpr) value {
	args := make([]value, len(e.args))
	bad := false
	for i, a := range e.args {
		args[i] = c.expr(a)
		bad = bad || args[i].bad
	}

	if fn, ok := workItemFuncs[e.fun]; ok {
		if !c.arity(e, 1) || bad {
			return poisonOf(Uint)
		}
		dim := c.convert(args[0], Uint, e.pos).i
		return intValue(Uint, func(fr *frame) int64 { return fn(&fr.item, dim(fr)) })
	}
	if e.fun == "get_work_dim" {
		if !c.arity(e, 0) {
			return poisonOf(Uint)
		}
		return intValue(Uint, func(*frame) int64 { return 1 })
	}
	if fn, ok := mathFuncs1[e.fun]; ok {
		if !c.arity(e, 1) || bad {
			return poisonOf(Float)
		}
		x := c.convert(args[0], Float, e.pos).f
		return floatValue(func(fr *frame) float32 { return fn(x(fr)) })
	}
	if fn, ok := mathFuncs2[e.fun]; ok {
		if !c.arity(e, 2) || bad {
			return poisonOf(Float)
		}
		x, y := c.convert(args[0], Float, e.pos).f, c.convert(args[1], Float, e.pos).f
		return floatValue(func(fr *frame) float32 { return fn(x(fr), y(fr)) })
	}
	if fn, ok := mathFuncs3[e.fun]; ok {
		if !c.arity(e, 3) || bad {
			return poisonOf(Float)
		}
		x, y, z := c.convert(args[0], Float, e.pos).f, c.convert(args[1], Float, e.pos).f, c.convert(args[2], Float, e.pos).f
		return floatValue(func(fr *frame) float32 { return fn(x(fr), y(fr), z(fr)) })
	}

	switch e.fun {
	case "min", "max":
		if !c.arity(e, 2) || bad {
			return poisonOf(Float)
		}
		return c.minMax(e, args[0], args[1])
	case "clamp":
		if !c.arity(e, 3) || bad {
			return poisonOf(Float)
		}
		lo := c.minMax(&callExpr{pos: e.pos, fun: "max"}, args[0], args[1])
		return c.minMax(&callExpr{pos: e.pos, fun: "min"}, lo, args[2])
	case "abs":
		if !c.arity(e, 1) || bad {
			return poisonOf(Uint)
		}
		if !args[0].t.isInteger() {
			c.log.errorf(e.pos, "abs requires an integer argument; use fabs for floating-point values")
			return poisonOf(Uint)
		}
		x := args[0].i
		return intValue(Uint, func(fr *frame) int64 {
			v := x(fr)
			if v < 0 {
				v = -v
			}
			return wrap(Uint, v)
		})
	case "mul24", "mad24":
		want := 2
		if e.fun == "mad24" {
			want = 3
		}
		if !c.arity(e, want) || bad {
			return poisonOf(Int)
		}
		t := commonType(args[0].t.Base, args[1].t.Base)
		if t == Float {
			c.log.errorf(e.pos, "%s requires integer arguments", e.fun)
			return poisonOf(Int)
		}
		x, y := c.convert(args[0], t, e.pos).i, c.convert(args[1], t, e.pos).i
		z := intFn(func(*frame) int64 { return 0 })
		if want == 3 {
			z = c.convert(args[2], t, e.pos).i
		}
		return intValue(t, func(fr *frame) int64 { return wrap(t, x(fr)*y(fr)+z(fr)) })
	}

	if unsupportedFuncs[e.fun] {
		c.log.errorf(e.pos, "'%s' is not supported on this device", e.fun)
		return poisonOf(Int)
	}
	c.log.errorf(e.pos, "implicit declaration of function '%s' is invalid in OpenCL", e.fun)
	return poisonOf(Int)
}

func (c *compiler) minMax(e *callExpr, a, b value) value {
	if a.bad || b.bad {
		return poisonOf(Float)
	}
	if !a.t.isArith() || !b.t.isArith() {
		c.log.errorf(e.pos, "invalid arguments to '%s' ('%s' and '%s')", e.fun, a.t, b.t)
		return poisonOf(Float)
	}
	t := commonType(a.t.Base, b.t.Base)
	a, b = c.convert(a, t, e.pos), c.convert(b, t, e.pos)
	isMin := e.fun == "min"
	if t == Float {
		af, bf := a.f, b.f
		if isMin {
			return floatValue(func(fr *frame) float32 { return fmin(af(fr), bf(fr)) })
		}
		return floatValue(func(fr *frame) float32 { return fmax(af(fr), bf(fr)) })
	}
	ai, bi := a.i, b.i
	if isMin {
		return intValue(t, func(fr *frame) int64 { return min(ai(fr), bi(fr)) })
	}
	return intValue(t, func(fr *frame) int64 { return max(ai(fr), bi(fr)) })
}
