package ufunc

import (
	"context"
	"fmt"
	"math"
	"sort"

	"sentra/internal/fusion/backend"
	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/trace"
)

// ReduceKwargsIn is the public shape a traced function passes for
// axis (there is no out kwarg) — the same information
// trace.ReduceKwargs carries, kept
// as a separate type so callers of this package never need to import
// trace just to build one.
type ReduceKwargsIn struct {
	HasAxis bool
	Axis    []int
}

// CallReduction runs component F's reduction dispatch (spec.md
// §4.E.3 / §4.F): normalize the axis kwarg against arg's rank, refuse
// a second reduction on an already-postmap argument, and either
// record the reduction on the active trace or evaluate it eagerly.
func (r *Registry) CallReduction(ctx context.Context, name string, arg interface{}, kwargs ReduceKwargsIn) (interface{}, error) {
	desc, ok := r.reductions[name]
	if !ok {
		return nil, fmt.Errorf("fusion: unknown reduction %q", name)
	}

	if h, active := trace.FromContext(ctx); active {
		operand, ok := arg.(trace.Operand)
		if !ok {
			return nil, fmt.Errorf("fusion: %s requires a traced operand, got %T", name, arg)
		}
		if operand.IsPostmap {
			return nil, fmt.Errorf("fusion: %s: multiple reductions are not supported in one fused kernel", name)
		}
		outNDim, err := reducedRank(operand.NDim, kwargs)
		if err != nil {
			return nil, err
		}
		v, err := h.SetReduceOp(desc, operand, trace.ReduceKwargs{HasAxis: kwargs.HasAxis, Axis: kwargs.Axis})
		if err != nil {
			return nil, err
		}
		return trace.Operand{Var: v, NDim: outNDim, IsPostmap: true}, nil
	}

	arr, ok := arg.(*backend.NDArray)
	if !ok {
		if scalar, ok := arg.(dtype.ConstValue); ok {
			return scalar, nil
		}
		return nil, fmt.Errorf("fusion: %s requires an array or scalar value, got %T", name, arg)
	}
	axis := kwargs.Axis
	if !kwargs.HasAxis {
		axis = nil
	}
	return eagerReduce(arr, axis, desc.Kind)
}

// reducedRank mirrors cupy.statistics.utils._ureduce's axis handling:
// every axis is taken modulo ndim, range-checked and rejected if it
// repeats an earlier one, then the result rank is ndim minus the
// number of reduced axes (axis=None reduces every axis, producing a
// scalar, rank -1).
func reducedRank(ndim int, kwargs ReduceKwargsIn) (int, error) {
	if ndim < 0 {
		return -1, fmt.Errorf("fusion: cannot reduce a scalar")
	}
	if !kwargs.HasAxis || len(kwargs.Axis) == 0 {
		return -1, nil
	}
	seen := map[int]bool{}
	for _, ax := range kwargs.Axis {
		if ax >= ndim || ax < -ndim {
			return 0, fmt.Errorf("fusion: axis %d out of bounds for array of dimension %d", ax, ndim)
		}
		norm := ((ax % ndim) + ndim) % ndim
		if seen[norm] {
			return 0, fmt.Errorf("fusion: repeated axis %d", ax)
		}
		seen[norm] = true
	}
	remaining := ndim - len(seen)
	if remaining <= 0 {
		return -1, nil
	}
	return remaining, nil
}

// eagerReduce reduces arr along axis (nil meaning all axes) using the
// named combine strategy, with no trace active — the untraced
// equivalent of calling cupy.sum/prod/amax/amin directly.
func eagerReduce(arr *backend.NDArray, axis []int, kind string) (backend.Value, error) {
	if len(axis) == 0 {
		return backend.Value(reduceFlat(arr.Data, kind, arr.Dtype)), nil
	}

	ndim := len(arr.Shape)
	reduced := map[int]bool{}
	for _, ax := range axis {
		if ax >= ndim || ax < -ndim {
			return nil, fmt.Errorf("fusion: axis %d out of bounds for array of dimension %d", ax, ndim)
		}
		reduced[((ax%ndim)+ndim)%ndim] = true
	}

	var kept []int
	for d := 0; d < ndim; d++ {
		if !reduced[d] {
			kept = append(kept, d)
		}
	}
	sort.Ints(kept)

	inStrides := cStrides(arr.Shape)
	outShape := make([]int, len(kept))
	for i, d := range kept {
		outShape[i] = arr.Shape[d]
	}
	outSize := 1
	for _, s := range outShape {
		outSize *= s
	}
	outStrides := cStrides(outShape)

	acc := make([]float64, outSize)
	counts := make([]int, outSize)
	for i := range acc {
		acc[i] = identityFor(kind)
	}

	idx := make([]int, ndim)
	for linear := 0; linear < len(arr.Data); linear++ {
		rem := linear
		for d := 0; d < ndim; d++ {
			idx[d] = rem / inStrides[d]
			rem %= inStrides[d]
		}
		outLinear := 0
		for i, d := range kept {
			outLinear += idx[d] * outStrides[i]
		}
		acc[outLinear] = combine(kind, acc[outLinear], arr.Data[linear], counts[outLinear] == 0)
		counts[outLinear]++
	}

	if len(outShape) == 0 {
		return toConstValue(acc[0], arr.Dtype), nil
	}
	return &backend.NDArray{Dtype: arr.Dtype, Shape: outShape, Data: acc}, nil
}

func reduceFlat(data []float64, kind string, d dtype.Dtype) dtype.ConstValue {
	acc := identityFor(kind)
	for i, x := range data {
		acc = combine(kind, acc, x, i == 0)
	}
	return toConstValue(acc, d)
}

func identityFor(kind string) float64 {
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
		return 0
	}
}

func combine(kind string, acc, x float64, first bool) float64 {
	switch kind {
	case "sum":
		return acc + x
	case "prod":
		return acc * x
	case "amax":
		if first || x > acc {
			return x
		}
		return acc
	case "amin":
		if first || x < acc {
			return x
		}
		return acc
	default:
		return acc
	}
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

func toConstValue(f float64, d dtype.Dtype) dtype.ConstValue {
	switch d {
	case dtype.Bool:
		return dtype.ConstValue{Kind: d, Bool: f != 0}
	case dtype.Float32, dtype.Float64:
		return dtype.ConstValue{Kind: d, Float: f}
	default:
		return dtype.ConstValue{Kind: d, IsInt: true, Signed: true, Int: int64(f)}
	}
}
