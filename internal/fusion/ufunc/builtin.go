package ufunc

import (
	"fmt"
	"math"

	"sentra/internal/fusion/backend"
	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/trace"
)

// numericLadder is the subset of dtype.Canonical this module's
// arithmetic ufuncs are specialized over: the signed integer widths
// ascending, then the unsigned widths ascending, then float32 and
// float64 (no bool, float16 or complex overloads), so
// selectOverload's first-match-wins scan picks the narrowest
// sufficient type within each group (spec.md §4.B "Submodule" / §8
// "Constant-aware promotion").
var numericLadder = []dtype.Dtype{
	dtype.Int8, dtype.Int16, dtype.Int32, dtype.Int64,
	dtype.Uint8, dtype.Uint16, dtype.Uint32, dtype.Uint64,
	dtype.Float32, dtype.Float64,
}

var integerLadder = []dtype.Dtype{
	dtype.Int8, dtype.Int16, dtype.Int32, dtype.Int64,
	dtype.Uint8, dtype.Uint16, dtype.Uint32, dtype.Uint64,
}

// homogeneousBinary builds one overload per dtype in ladder, each
// taking two arguments of that dtype and returning that dtype —
// cupy's approach of registering a same-typed kernel for every member
// of a ufunc's `_Ops` table and letting can_cast pick the narrowest
// one that fits both operands.
func homogeneousBinary(ladder []dtype.Dtype, cOp string, eval func(a, b float64) float64) []trace.Overload {
	ops := make([]trace.Overload, len(ladder))
	for i, d := range ladder {
		ops[i] = trace.Overload{
			InDtypes: []dtype.Dtype{d, d}, OutDtypes: []dtype.Dtype{d},
			Body: fmt.Sprintf("out0 = in0 %s in1", cOp),
			Eval: func(in []float64) []float64 { return []float64{eval(in[0], in[1])} },
		}
	}
	return ops
}

func homogeneousUnary(ladder []dtype.Dtype, expr string, eval func(a float64) float64) []trace.Overload {
	ops := make([]trace.Overload, len(ladder))
	for i, d := range ladder {
		ops[i] = trace.Overload{
			InDtypes: []dtype.Dtype{d}, OutDtypes: []dtype.Dtype{d},
			Body: fmt.Sprintf("out0 = %s", expr),
			Eval: func(in []float64) []float64 { return []float64{eval(in[0])} },
		}
	}
	return ops
}

// comparison builds one bool-returning overload per dtype in ladder.
func comparison(ladder []dtype.Dtype, cOp string, eval func(a, b float64) bool) []trace.Overload {
	ops := make([]trace.Overload, len(ladder))
	for i, d := range ladder {
		ops[i] = trace.Overload{
			InDtypes: []dtype.Dtype{d, d}, OutDtypes: []dtype.Dtype{dtype.Bool},
			Body: fmt.Sprintf("out0 = in0 %s in1", cOp),
			Eval: func(in []float64) []float64 {
				if eval(in[0], in[1]) {
					return []float64{1}
				}
				return []float64{0}
			},
		}
	}
	return ops
}

func registerBuiltinUfuncs(r *Registry) {
	type binaryDef struct {
		name  string
		cOp   string
		ladder []dtype.Dtype
		eval  func(a, b float64) float64
	}
	for _, d := range []binaryDef{
		{"add", "+", numericLadder, func(a, b float64) float64 { return a + b }},
		{"subtract", "-", numericLadder, func(a, b float64) float64 { return a - b }},
		{"multiply", "*", numericLadder, func(a, b float64) float64 { return a * b }},
		{"remainder", "%", integerLadder, func(a, b float64) float64 { return math.Mod(a, b) }},
		{"left_shift", "<<", integerLadder, func(a, b float64) float64 { return float64(int64(a) << uint(int64(b))) }},
		{"right_shift", ">>", integerLadder, func(a, b float64) float64 { return float64(int64(a) >> uint(int64(b))) }},
		{"bitwise_and", "&", integerLadder, func(a, b float64) float64 { return float64(int64(a) & int64(b)) }},
		{"bitwise_or", "|", integerLadder, func(a, b float64) float64 { return float64(int64(a) | int64(b)) }},
		{"bitwise_xor", "^", integerLadder, func(a, b float64) float64 { return float64(int64(a) ^ int64(b)) }},
	} {
		d := d
		ops := homogeneousBinary(d.ladder, d.cOp, d.eval)
		desc := &trace.UfuncDescriptor{Name: d.name, Nin: 2, Nout: 1, Ops: ops}
		r.RegisterUfunc(desc, makeEagerBinary(d.eval))
	}

	divOps := make([]trace.Overload, 0, len(numericLadder))
	for _, dty := range numericLadder {
		divOps = append(divOps, trace.Overload{
			InDtypes: []dtype.Dtype{dty, dty}, OutDtypes: []dtype.Dtype{dty},
			Body: "out0 = in0 / in1",
			Eval: func(in []float64) []float64 { return []float64{in[0] / in[1]} },
		})
	}
	r.RegisterUfunc(&trace.UfuncDescriptor{Name: "divide", Nin: 2, Nout: 1, Ops: divOps},
		makeEagerBinary(func(a, b float64) float64 { return a / b }))

	floorDivOps := homogeneousBinary(numericLadder, "/", func(a, b float64) float64 { return math.Floor(a / b) })
	for i := range floorDivOps {
		floorDivOps[i].Body = "out0 = floor(in0 / in1)"
	}
	r.RegisterUfunc(&trace.UfuncDescriptor{Name: "floor_divide", Nin: 2, Nout: 1, Ops: floorDivOps},
		makeEagerBinary(func(a, b float64) float64 { return math.Floor(a / b) }))

	powOps := homogeneousBinary(numericLadder, "**", func(a, b float64) float64 { return math.Pow(a, b) })
	for i := range powOps {
		powOps[i].Body = "out0 = pow(in0, in1)"
	}
	r.RegisterUfunc(&trace.UfuncDescriptor{Name: "power", Nin: 2, Nout: 1, Ops: powOps},
		makeEagerBinary(func(a, b float64) float64 { return math.Pow(a, b) }))

	negOps := homogeneousUnary(numericLadder, "-in0", func(a float64) float64 { return -a })
	r.RegisterUfunc(&trace.UfuncDescriptor{Name: "negative", Nin: 1, Nout: 1, Ops: negOps}, makeEagerUnary(func(a float64) float64 { return -a }))

	invertOps := homogeneousUnary(integerLadder, "~in0", func(a float64) float64 { return float64(^int64(a)) })
	r.RegisterUfunc(&trace.UfuncDescriptor{Name: "invert", Nin: 1, Nout: 1, Ops: invertOps}, makeEagerUnary(func(a float64) float64 { return float64(^int64(a)) }))

	type cmpDef struct {
		name string
		cOp  string
		eval func(a, b float64) bool
	}
	for _, d := range []cmpDef{
		{"less", "<", func(a, b float64) bool { return a < b }},
		{"less_equal", "<=", func(a, b float64) bool { return a <= b }},
		{"equal", "==", func(a, b float64) bool { return a == b }},
		{"not_equal", "!=", func(a, b float64) bool { return a != b }},
		{"greater", ">", func(a, b float64) bool { return a > b }},
		{"greater_equal", ">=", func(a, b float64) bool { return a >= b }},
	} {
		d := d
		ops := comparison(numericLadder, d.cOp, d.eval)
		r.RegisterUfunc(&trace.UfuncDescriptor{Name: d.name, Nin: 2, Nout: 1, Ops: ops}, makeEagerCompare(d.eval))
	}

	copyOps := make([]trace.Overload, len(dtype.Canonical))
	for i, dty := range dtype.Canonical {
		copyOps[i] = trace.Overload{
			InDtypes: []dtype.Dtype{dty}, OutDtypes: []dtype.Dtype{dty},
			Body: "out0 = in0", Eval: func(in []float64) []float64 { return []float64{in[0]} },
		}
	}
	r.RegisterUfunc(&trace.UfuncDescriptor{Name: "copy", Nin: 1, Nout: 1, Ops: copyOps}, makeEagerUnary(func(a float64) float64 { return a }))
}

func registerBuiltinReductions(r *Registry) {
	for _, d := range []struct {
		name string
		kind string
	}{
		{"sum", "sum"}, {"prod", "prod"}, {"amax", "amax"}, {"amin", "amin"},
	} {
		ops := make([]trace.ReduceOverload, len(numericLadder))
		for i, dty := range numericLadder {
			ops[i] = trace.ReduceOverload{InDtype: dty, OutDtype: dty}
		}
		r.RegisterReduction(&trace.ReductionDescriptor{Name: d.name, Kind: d.kind, Ops: ops})
	}
}

func makeEagerBinary(eval func(a, b float64) float64) EagerEval {
	return func(args []backend.Value) (backend.Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("fusion: expected 2 arguments, got %d", len(args))
		}
		return elementwiseApply(args[0], args[1], eval)
	}
}

func makeEagerUnary(eval func(a float64) float64) EagerEval {
	return func(args []backend.Value) (backend.Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("fusion: expected 1 argument, got %d", len(args))
		}
		return elementwiseApply(args[0], dtype.ConstValue{}, func(a, _ float64) float64 { return eval(a) })
	}
}

func makeEagerCompare(eval func(a, b float64) bool) EagerEval {
	return func(args []backend.Value) (backend.Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("fusion: expected 2 arguments, got %d", len(args))
		}
		result, err := elementwiseApply(args[0], args[1], func(a, b float64) float64 {
			if eval(a, b) {
				return 1
			}
			return 0
		})
		if err != nil {
			return nil, err
		}
		if arr, ok := result.(*backend.NDArray); ok {
			arr.Dtype = dtype.Bool
			return arr, nil
		}
		c := result.(dtype.ConstValue)
		c.Kind = dtype.Bool
		c.Bool = c.Int != 0 || c.Float != 0 || c.Uint != 0
		return c, nil
	}
}

// elementwiseApply evaluates eval(a, b) over a and b, which may each
// be a scalar (dtype.ConstValue) or an *backend.NDArray; array
// operands must share a size (this module's eager path does not
// implement general broadcasting). The result dtype follows whichever
// operand is an array, or a's dtype if both are scalars.
func elementwiseApply(a, b backend.Value, eval func(x, y float64) float64) (backend.Value, error) {
	arrA, aIsArray := a.(*backend.NDArray)
	arrB, bIsArray := b.(*backend.NDArray)

	if !aIsArray && !bIsArray {
		ca := a.(dtype.ConstValue)
		var fb float64
		if cb, ok := b.(dtype.ConstValue); ok {
			fb = valueAsFloat(cb)
		}
		return toConstValue(eval(valueAsFloat(ca), fb), ca.Kind), nil
	}

	var shape []int
	var n int
	var resultDtype dtype.Dtype
	switch {
	case aIsArray:
		shape, n, resultDtype = arrA.Shape, arrA.Size(), arrA.Dtype
	case bIsArray:
		shape, n, resultDtype = arrB.Shape, arrB.Size(), arrB.Dtype
	}
	if aIsArray && bIsArray && arrA.Size() != arrB.Size() {
		return nil, fmt.Errorf("fusion: eager array operands must share a size")
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var x, y float64
		if aIsArray {
			x = arrA.Data[i]
		} else {
			x = valueAsFloat(a.(dtype.ConstValue))
		}
		if bIsArray {
			y = arrB.Data[i]
		} else if c, ok := b.(dtype.ConstValue); ok {
			y = valueAsFloat(c)
		}
		out[i] = eval(x, y)
	}
	return &backend.NDArray{Dtype: resultDtype, Shape: shape, Data: out}, nil
}

func valueAsFloat(c dtype.ConstValue) float64 {
	switch {
	case c.Kind == dtype.Bool:
		if c.Bool {
			return 1
		}
		return 0
	case c.IsInt && c.Signed:
		return float64(c.Int)
	case c.IsInt:
		return float64(c.Uint)
	default:
		return c.Float
	}
}
