package fuse

import (
	"context"
	"fmt"
	"testing"

	"sentra/internal/fusion/backend"
	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/shadow"
	"sentra/internal/fusion/trace"
	"sentra/internal/fusion/ufunc"
)

func sumAxisKernel(reg *ufunc.Registry, axis []int) trace.UserFunc {
	return func(ctx context.Context, args []trace.Operand) ([]*trace.Operand, error) {
		x := shadow.New(ctx, reg, args[0])
		sum, err := x.Sum(axis)
		if err != nil {
			return nil, err
		}
		out := sum.Operand()
		return []*trace.Operand{&out}, nil
	}
}

// TestFacadeReductionWithAxis drives spec.md's own named scenario
// (`cupy.sum(x, axis=0)` on a 2-D array) through the full
// Facade→Compile→Backend pipeline, not the separate eager path
// ufunc_test.go's TestCallReductionAxis exercises — the axis kwarg
// captured at trace time must survive compilation and collapse only
// the requested axis, not the whole array.
func TestFacadeReductionWithAxis(t *testing.T) {
	reg := ufunc.NewRegistry()
	f := New("col_sum", sumAxisKernel(reg, []int{0}))

	x := &backend.NDArray{Dtype: dtype.Float64, Shape: []int{2, 3}, Data: []float64{
		1, 2, 3,
		4, 5, 6,
	}}

	results, err := f.Call(context.Background(), x)
	if err != nil {
		t.Fatal(err)
	}
	out, ok := results[0].(*backend.NDArray)
	if !ok {
		t.Fatalf("expected an array result (axis reduction keeps rank 1), got %T", results[0])
	}
	want := []float64{5, 7, 9}
	if len(out.Data) != len(want) {
		t.Fatalf("got %d elements, want %d", len(out.Data), len(want))
	}
	for i, w := range want {
		if out.Data[i] != w {
			t.Fatalf("mismatch at %d: got %v want %v", i, out.Data[i], w)
		}
	}
}

func addKernel(reg *ufunc.Registry) trace.UserFunc {
	return func(ctx context.Context, args []trace.Operand) ([]*trace.Operand, error) {
		a := shadow.New(ctx, reg, args[0])
		b := shadow.New(ctx, reg, args[1])
		sum, err := a.Add(b)
		if err != nil {
			return nil, err
		}
		out := sum.Operand()
		return []*trace.Operand{&out}, nil
	}
}

func TestFacadeCallCachesAndLaunches(t *testing.T) {
	reg := ufunc.NewRegistry()
	f := New("add_demo", addKernel(reg))

	a := &backend.NDArray{Dtype: dtype.Float64, Shape: []int{3}, Data: []float64{1, 2, 3}}
	b := &backend.NDArray{Dtype: dtype.Float64, Shape: []int{3}, Data: []float64{10, 20, 30}}

	results, err := f.Call(context.Background(), a, b)
	if err != nil {
		t.Fatal(err)
	}
	out, ok := results[0].(*backend.NDArray)
	if !ok {
		t.Fatalf("expected an array result, got %T", results[0])
	}
	want := []float64{11, 22, 33}
	for i, w := range want {
		if out.Data[i] != w {
			t.Fatalf("mismatch at %d: got %v want %v", i, out.Data[i], w)
		}
	}

	// A second call with the same signature must reuse the cached
	// kernel rather than tracing again.
	if _, err := f.Call(context.Background(), a, b); err != nil {
		t.Fatal(err)
	}
	if got := f.CacheReport(); got == "" {
		t.Fatal("expected a non-empty cache report")
	}
}

func TestFacadeBypassesHostOnlyArgs(t *testing.T) {
	reg := ufunc.NewRegistry()
	called := false
	f := New("add_demo", addKernel(reg), WithHost(func(args []interface{}) ([]interface{}, error) {
		called = true
		return []interface{}{args[0].(int) + args[1].(int)}, nil
	}))

	results, err := f.Call(context.Background(), 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected the host bypass to run for non-accelerated arguments")
	}
	if results[0].(int) != 5 {
		t.Fatalf("expected 5, got %v", results[0])
	}
}

// TestFacadeCallBypassesWhenNested exercises spec.md:123's nested-
// fusion bypass: an outer fused function calls an inner Facade from
// inside its own traced body. The inner call must not install a
// second History — it must run inner.traced directly against the
// outer trace, so the whole thing still compiles into a single
// kernel whose op count reflects both functions' ufuncs.
func TestFacadeCallBypassesWhenNested(t *testing.T) {
	reg := ufunc.NewRegistry()
	inner := New("inner_add", addKernel(reg))

	var sawActiveTrace bool
	outer := New("outer", func(ctx context.Context, args []trace.Operand) ([]*trace.Operand, error) {
		_, sawActiveTrace = trace.FromContext(ctx)
		results, err := inner.Call(ctx, args[0], args[1])
		if err != nil {
			return nil, err
		}
		out, ok := results[0].(trace.Operand)
		if !ok {
			return nil, fmt.Errorf("expected a traced operand from the nested call, got %T", results[0])
		}
		return []*trace.Operand{&out}, nil
	})

	a := &backend.NDArray{Dtype: dtype.Float64, Shape: []int{3}, Data: []float64{1, 2, 3}}
	b := &backend.NDArray{Dtype: dtype.Float64, Shape: []int{3}, Data: []float64{10, 20, 30}}

	results, err := outer.Call(context.Background(), a, b)
	if err != nil {
		t.Fatal(err)
	}
	if !sawActiveTrace {
		t.Fatal("expected the outer traced body to observe an active trace on ctx")
	}
	out, ok := results[0].(*backend.NDArray)
	if !ok {
		t.Fatalf("expected an array result, got %T", results[0])
	}
	want := []float64{11, 22, 33}
	for i, w := range want {
		if out.Data[i] != w {
			t.Fatalf("mismatch at %d: got %v want %v", i, out.Data[i], w)
		}
	}
}

func TestFacadeBypassWithoutHostErrors(t *testing.T) {
	reg := ufunc.NewRegistry()
	f := New("add_demo", addKernel(reg))
	if _, err := f.Call(context.Background(), 2, 3); err == nil {
		t.Fatal("expected an error when host-only args reach a facade with no bypass")
	}
}
