package shadow

import (
	"context"
	"testing"

	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/trace"
	"sentra/internal/fusion/ufunc"
)

func newTraced(t *testing.T, reg *ufunc.Registry, h *trace.History, d dtype.Dtype) (context.Context, Shadow) {
	t.Helper()
	ctx := trace.WithHistory(context.Background(), h)
	v := h.FreshPremapParam(d)
	return ctx, New(ctx, reg, trace.Operand{Var: v, NDim: 1})
}

func TestShadowArithmetic(t *testing.T) {
	reg := ufunc.NewRegistry()
	h := trace.NewHistory()
	ctx, a := newTraced(t, reg, h, dtype.Int32)
	b := New(ctx, reg, trace.Operand{Var: h.FreshPremapParam(dtype.Int32), NDim: 1})

	sum, err := a.Add(b)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Dtype() != dtype.Int32 {
		t.Fatalf("expected int32, got %v", sum.Dtype())
	}

	prod, err := sum.Mul(b)
	if err != nil {
		t.Fatal(err)
	}
	if !prod.IsArray() {
		t.Fatal("expected prod to remain an array shadow")
	}
}

func TestShadowInPlaceRejectsScalar(t *testing.T) {
	reg := ufunc.NewRegistry()
	h := trace.NewHistory()
	ctx := trace.WithHistory(context.Background(), h)
	scalarVar := h.FreshLocal(dtype.Int32, nil)
	s := New(ctx, reg, trace.Operand{Var: scalarVar, NDim: -1})
	other := New(ctx, reg, trace.Operand{Var: h.FreshPremapParam(dtype.Int32), NDim: -1})

	if _, err := s.AddAssign(other); err == nil {
		t.Fatal("expected an error doing an in-place op on a scalar shadow")
	}
}

func TestShadowInPlaceFullFamily(t *testing.T) {
	ops := []struct {
		name string
		call func(s, o Shadow) (Shadow, error)
	}{
		{"add", Shadow.AddAssign},
		{"sub", Shadow.SubAssign},
		{"mul", Shadow.MulAssign},
		{"div", Shadow.DivAssign},
		{"floor_div", Shadow.FloorDivAssign},
		{"mod", Shadow.ModAssign},
		{"pow", Shadow.PowAssign},
		{"lshift", Shadow.LShiftAssign},
		{"rshift", Shadow.RShiftAssign},
		{"and", Shadow.AndAssign},
		{"or", Shadow.OrAssign},
		{"xor", Shadow.XorAssign},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			reg := ufunc.NewRegistry()
			h := trace.NewHistory()
			ctx, a := newTraced(t, reg, h, dtype.Int32)
			b := New(ctx, reg, trace.Operand{Var: h.FreshPremapParam(dtype.Int32), NDim: 1})

			out, err := op.call(a, b)
			if err != nil {
				t.Fatal(err)
			}
			if !out.IsArray() {
				t.Fatal("expected an in-place op on an array shadow to remain an array shadow")
			}
		})
	}
}

func TestShadowSetIndexRejectsNonFullSlice(t *testing.T) {
	reg := ufunc.NewRegistry()
	h := trace.NewHistory()
	ctx, a := newTraced(t, reg, h, dtype.Int32)
	b := New(ctx, reg, trace.Operand{Var: h.FreshPremapParam(dtype.Int32), NDim: 1})

	if _, err := a.SetIndex(3, b); err == nil {
		t.Fatal("expected an error for a non-FullSlice index")
	}
	if _, err := a.SetIndex(FullSlice{}, b); err != nil {
		t.Fatalf("expected FullSlice index to succeed, got %v", err)
	}
}

func TestShadowAstypeMemoizes(t *testing.T) {
	reg := ufunc.NewRegistry()
	h := trace.NewHistory()
	_, a := newTraced(t, reg, h, dtype.Int32)

	cast1, err := a.Astype(dtype.Float64)
	if err != nil {
		t.Fatal(err)
	}
	cast2, err := a.Astype(dtype.Float64)
	if err != nil {
		t.Fatal(err)
	}
	if cast1.Operand().Var != cast2.Operand().Var {
		t.Fatal("expected the second astype to the same dtype to reuse the cached variable")
	}
}

func TestShadowReduceSum(t *testing.T) {
	reg := ufunc.NewRegistry()
	h := trace.NewHistory()
	_, a := newTraced(t, reg, h, dtype.Float64)

	s, err := a.Sum(nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.IsArray() {
		t.Fatal("expected a full reduction to produce a scalar shadow")
	}
	if _, err := a.Max(nil); err == nil {
		t.Fatal("expected a second reduction on the same trace to fail")
	}
}
