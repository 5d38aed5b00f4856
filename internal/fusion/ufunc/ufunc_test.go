package ufunc

import (
	"context"
	"testing"

	"sentra/internal/fusion/backend"
	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/trace"
)

func TestCallTracedAdd(t *testing.T) {
	r := NewRegistry()
	h := trace.NewHistory()
	ctx := trace.WithHistory(context.Background(), h)

	a := h.FreshPremapParam(dtype.Int32)
	b := h.FreshPremapParam(dtype.Int32)
	outs, _, err := r.Call(ctx, "add", []interface{}{
		trace.Operand{Var: a, NDim: 1}, trace.Operand{Var: b, NDim: 1},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 1 || outs[0].Var.Dtype != dtype.Int32 {
		t.Fatalf("unexpected result: %+v", outs)
	}
}

func TestCallEagerAdd(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	_, results, err := r.Call(ctx, "add", []interface{}{
		dtype.ConstValue{Kind: dtype.Int64, IsInt: true, Signed: true, Int: 2},
		dtype.ConstValue{Kind: dtype.Int64, IsInt: true, Signed: true, Int: 3},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	c, ok := results[0].(dtype.ConstValue)
	if !ok || c.Int != 5 {
		t.Fatalf("expected 5, got %+v", results[0])
	}
}

func TestCallReductionEagerSum(t *testing.T) {
	r := NewRegistry()
	arr := &backend.NDArray{Dtype: dtype.Float64, Shape: []int{4}, Data: []float64{1, 2, 3, 4}}
	result, err := r.CallReduction(context.Background(), "sum", arr, ReduceKwargsIn{})
	if err != nil {
		t.Fatal(err)
	}
	c := result.(dtype.ConstValue)
	if c.Float != 10 {
		t.Fatalf("expected 10, got %v", c.Float)
	}
}

func TestCallReductionAxis(t *testing.T) {
	r := NewRegistry()
	// 2x3 array, row-major: [[1,2,3],[4,5,6]]
	arr := &backend.NDArray{Dtype: dtype.Float64, Shape: []int{2, 3}, Data: []float64{1, 2, 3, 4, 5, 6}}
	result, err := r.CallReduction(context.Background(), "sum", arr, ReduceKwargsIn{HasAxis: true, Axis: []int{0}})
	if err != nil {
		t.Fatal(err)
	}
	out, ok := result.(*backend.NDArray)
	if !ok {
		t.Fatalf("expected an array result, got %T", result)
	}
	want := []float64{5, 7, 9}
	for i, w := range want {
		if out.Data[i] != w {
			t.Fatalf("axis-0 sum mismatch at %d: got %v want %v", i, out.Data[i], w)
		}
	}
}

func TestCallReductionUniqueness(t *testing.T) {
	r := NewRegistry()
	h := trace.NewHistory()
	ctx := trace.WithHistory(context.Background(), h)
	v := h.FreshPremapParam(dtype.Float64)
	first, err := r.CallReduction(ctx, "sum", trace.Operand{Var: v, NDim: 1}, ReduceKwargsIn{})
	if err != nil {
		t.Fatal(err)
	}
	secondArg := first.(trace.Operand)
	_, err = r.CallReduction(ctx, "sum", secondArg, ReduceKwargsIn{})
	if err == nil {
		t.Fatal("expected an error tracing a second reduction")
	}
}
