package backend

import (
	"context"
	"fmt"
	"math"

	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/ir"
)

// Reference is an in-process Backend with no real GPU underneath it.
// It exists so this module's own tests and its CLI demo can check
// numeric equivalence (spec.md §8 "Numeric equivalence") without a
// CUDA toolchain. It assumes every array argument shares the same
// shape (no broadcasting beyond scalar-vs-array) — good enough for
// the fusion scenarios this module traces, not a general tensor
// runtime.
type Reference struct{}

func NewReference() *Reference { return &Reference{} }

func (r *Reference) NewElementwise(spec ElementwiseSpec) (Kernel, error) {
	return &referenceElementwise{spec: spec}, nil
}

func (r *Reference) NewReduction(spec ReductionSpec) (Kernel, error) {
	return &referenceReduction{spec: spec}, nil
}

type referenceElementwise struct{ spec ElementwiseSpec }

func (k *referenceElementwise) Name() string   { return k.spec.Name }
func (k *referenceElementwise) Source() string { return k.spec.Body }

func (k *referenceElementwise) Launch(ctx context.Context, args ...Value) ([]Value, error) {
	spec := k.spec
	if len(args) != len(spec.InVars) {
		return nil, fmt.Errorf("fusion: %s expects %d args, got %d", spec.Name, len(spec.InVars), len(args))
	}

	shape, n, err := broadcastShape(args)
	if err != nil {
		return nil, err
	}

	vars := newVarTable(spec.Locals)
	outs := make(map[int]*NDArray, len(spec.OutVars))
	for _, v := range spec.OutVars {
		outs[v.Index] = &NDArray{Dtype: v.Dtype, Shape: shape, Data: make([]float64, n)}
	}

	for e := 0; e < n; e++ {
		for i, v := range spec.InVars {
			vars[v.Index] = elementAt(args[i], e)
		}
		for _, op := range spec.Ops {
			if err := evalOp(op, vars); err != nil {
				return nil, err
			}
		}
		for _, cp := range spec.FinalCopies {
			vars[cp[1].Index] = vars[cp[0].Index]
		}
		for _, v := range spec.OutVars {
			outs[v.Index].Data[e] = vars[v.Index]
		}
	}

	results := make([]Value, len(spec.OutVars))
	for i, v := range spec.OutVars {
		results[i] = materialize(outs[v.Index], shape)
	}
	return results, nil
}

type referenceReduction struct{ spec ReductionSpec }

func (k *referenceReduction) Name() string   { return k.spec.Name }
func (k *referenceReduction) Source() string { return k.spec.Preamble + k.spec.MapExpr }

// Launch reduces over spec.Launch's axis kwarg captured at trace time
// (spec.md §4.E.3/§4.E.4): axis=None (the zero LaunchKwargs) collapses
// to a single scalar; an explicit axis set reduces only those
// dimensions of args' shared shape, producing one accumulator per
// surviving index combination, each of which still runs through the
// kernel's postmap ops before becoming an output element.
func (k *referenceReduction) Launch(ctx context.Context, args ...Value) ([]Value, error) {
	spec := k.spec
	if len(args) != len(spec.InVars) {
		return nil, fmt.Errorf("fusion: %s expects %d args, got %d", spec.Name, len(spec.InVars), len(args))
	}
	shape, n, err := broadcastShape(args)
	if err != nil {
		return nil, err
	}

	var premapArgs []*ir.Var
	for _, op := range spec.PremapOps {
		premapArgs = append(premapArgs, op.Args...)
	}

	premapped := make([]float64, n)
	for e := 0; e < n; e++ {
		vars := newVarTable(premapArgs)
		for i, v := range spec.InVars {
			vars[v.Index] = elementAt(args[i], e)
		}
		for _, op := range spec.PremapOps {
			if err := evalOp(op, vars); err != nil {
				return nil, err
			}
		}
		if spec.PremapRetVar != nil {
			premapped[e] = vars[spec.PremapRetVar.Index]
		} else if n > 0 {
			premapped[e] = vars[spec.InVars[0].Index]
		}
	}

	groups, outShape, err := groupByAxis(premapped, shape, spec.Launch)
	if err != nil {
		return nil, err
	}

	d := dtype.Float64
	if len(spec.OutVars) == 1 {
		d = spec.OutVars[0].Dtype
	}

	results := make([]float64, len(groups))
	for gi, g := range groups {
		reduced := reduceAll(g, spec.ReduceKind, spec.Identity)

		vars := newVarTable(spec.PostmapLocals)
		if spec.PostmapParamVar != nil {
			vars[spec.PostmapParamVar.Index] = reduced
		}
		for _, op := range spec.PostmapOps {
			if err := evalOp(op, vars); err != nil {
				return nil, err
			}
		}

		result := reduced
		if len(spec.OutVars) == 1 {
			if v, ok := vars[spec.OutVars[0].Index]; ok {
				result = v
			}
		}
		results[gi] = result
	}

	if len(outShape) == 0 {
		return []Value{toConstValue(results[0], d)}, nil
	}
	return []Value{&NDArray{Dtype: d, Shape: outShape, Data: results}}, nil
}

// groupByAxis partitions flat (in row-major order over shape) into
// one slice per surviving index combination once kwargs' axes are
// reduced away — the same stride-walking grouping
// ufunc.eagerReduce uses for the untraced reduction path, duplicated
// here since backend must not import ufunc (ufunc already imports
// backend).
func groupByAxis(flat []float64, shape []int, kwargs LaunchKwargs) ([][]float64, []int, error) {
	if !kwargs.HasAxis || len(kwargs.Axis) == 0 {
		return [][]float64{flat}, nil, nil
	}

	ndim := len(shape)
	reduced := map[int]bool{}
	for _, ax := range kwargs.Axis {
		if ax >= ndim || ax < -ndim {
			return nil, nil, fmt.Errorf("fusion: axis %d out of bounds for array of dimension %d", ax, ndim)
		}
		reduced[((ax%ndim)+ndim)%ndim] = true
	}

	var kept []int
	for d := 0; d < ndim; d++ {
		if !reduced[d] {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		return [][]float64{flat}, nil, nil
	}

	inStrides := cStrides(shape)
	outShape := make([]int, len(kept))
	for i, d := range kept {
		outShape[i] = shape[d]
	}
	outStrides := cStrides(outShape)
	outSize := 1
	for _, s := range outShape {
		outSize *= s
	}

	groups := make([][]float64, outSize)
	idx := make([]int, ndim)
	for linear, x := range flat {
		rem := linear
		for d := 0; d < ndim; d++ {
			idx[d] = rem / inStrides[d]
			rem %= inStrides[d]
		}
		outLinear := 0
		for i, d := range kept {
			outLinear += idx[d] * outStrides[i]
		}
		groups[outLinear] = append(groups[outLinear], x)
	}
	return groups, outShape, nil
}

func cStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

func reduceAll(xs []float64, kind string, identity dtype.ConstValue) float64 {
	acc := identityFloat(kind, identity)
	for _, x := range xs {
		switch kind {
		case "sum":
			acc += x
		case "prod":
			acc *= x
		case "amax":
			if len(xs) == 0 {
				break
			}
			if x > acc {
				acc = x
			}
		case "amin":
			if len(xs) == 0 {
				break
			}
			if x < acc {
				acc = x
			}
		}
	}
	if (kind == "amax" || kind == "amin") && len(xs) > 0 {
		acc = xs[0]
		for _, x := range xs[1:] {
			if kind == "amax" && x > acc {
				acc = x
			}
			if kind == "amin" && x < acc {
				acc = x
			}
		}
	}
	return acc
}

func identityFloat(kind string, identity dtype.ConstValue) float64 {
	switch kind {
	case "sum":
		return 0
	case "prod":
		return 1
	case "amax":
		return math.Inf(-1)
	case "amin":
		return math.Inf(1)
	default:
		return identity.Float
	}
}

func newVarTable(locals []*ir.Var) map[int]float64 {
	vars := map[int]float64{}
	for _, v := range locals {
		if v.Const != nil {
			vars[v.Index] = constAsFloat(*v.Const)
		}
	}
	return vars
}

func evalOp(op *ir.Op, vars map[int]float64) error {
	if op.Submodule.Eval == nil {
		return fmt.Errorf("fusion: reference backend has no evaluator for submodule %q", op.Submodule.Name)
	}
	nin := len(op.Submodule.InParams)
	ins := make([]float64, nin)
	for j := 0; j < nin; j++ {
		ins[j] = vars[op.Args[j].Index]
	}
	outs := op.Submodule.Eval(ins)
	for j := 0; j < len(op.Submodule.OutParams); j++ {
		vars[op.Args[nin+j].Index] = outs[j]
	}
	return nil
}

func broadcastShape(args []Value) ([]int, int, error) {
	var shape []int
	n := 1
	for _, a := range args {
		if arr, ok := a.(*NDArray); ok {
			if shape == nil {
				shape = arr.Shape
				n = arr.Size()
			} else if arr.Size() != n {
				return nil, 0, fmt.Errorf("fusion: reference backend requires equal-shaped array arguments")
			}
		}
	}
	return shape, n, nil
}

func elementAt(v Value, e int) float64 {
	switch x := v.(type) {
	case *NDArray:
		return x.Data[e]
	case dtype.ConstValue:
		return constAsFloat(x)
	default:
		return 0
	}
}

func constAsFloat(c dtype.ConstValue) float64 {
	switch {
	case c.IsInt && c.Signed:
		return float64(c.Int)
	case c.IsInt:
		return float64(c.Uint)
	case c.Kind == dtype.Bool:
		if c.Bool {
			return 1
		}
		return 0
	default:
		return c.Float
	}
}

func toConstValue(f float64, d dtype.Dtype) dtype.ConstValue {
	if d == dtype.Bool {
		return dtype.ConstValue{Kind: d, Bool: f != 0}
	}
	if isIntegralDtype(d) {
		return dtype.ConstValue{Kind: d, IsInt: true, Signed: true, Int: int64(f)}
	}
	return dtype.ConstValue{Kind: d, Float: f}
}

func isIntegralDtype(d dtype.Dtype) bool {
	switch d {
	case dtype.Int8, dtype.Int16, dtype.Int32, dtype.Int64,
		dtype.Uint8, dtype.Uint16, dtype.Uint32, dtype.Uint64:
		return true
	default:
		return false
	}
}

// materialize wraps a fully computed NDArray back down to a scalar
// ConstValue when the kernel's own shape is empty (a pure scalar
// computation never touched an array argument).
func materialize(arr *NDArray, shape []int) Value {
	if len(shape) == 0 && len(arr.Data) == 1 {
		return toConstValue(arr.Data[0], arr.Dtype)
	}
	return arr
}
