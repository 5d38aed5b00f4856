package trace

import (
	"context"
	"strings"
	"testing"

	"sentra/internal/fusion/dtype"
)

func addDescriptor() *UfuncDescriptor {
	return &UfuncDescriptor{
		Name: "add", Nin: 2, Nout: 1,
		Ops: []Overload{
			{InDtypes: []dtype.Dtype{dtype.Int32, dtype.Int32}, OutDtypes: []dtype.Dtype{dtype.Int32}, Body: "out0 = in0 + in1",
				Eval: func(in []float64) []float64 { return []float64{in[0] + in[1]} }},
			{InDtypes: []dtype.Dtype{dtype.Float64, dtype.Float64}, OutDtypes: []dtype.Dtype{dtype.Float64}, Body: "out0 = in0 + in1",
				Eval: func(in []float64) []float64 { return []float64{in[0] + in[1]} }},
		},
	}
}

// TestCallUfuncMinScalarRule reproduces spec.md §8's worked example:
// an int32 array plus the Go literal 1 stays int32, but the same
// array plus 1.5 promotes the whole expression to float64.
func TestCallUfuncMinScalarRule(t *testing.T) {
	desc := addDescriptor()

	h := NewHistory()
	arr := h.FreshPremapParam(dtype.Int32)
	arrOperand := Operand{Var: arr, NDim: 1}
	lit := ScalarLiteral{Value: dtype.ConstValue{Kind: dtype.Int64, IsInt: true, Signed: true, Int: 1}}

	outs, err := h.CallUfunc(desc, []Arg{arrOperand, lit}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if outs[0].Var.Dtype != dtype.Int32 {
		t.Fatalf("int32 array + literal 1 should stay int32, got %s", outs[0].Var.Dtype)
	}

	h2 := NewHistory()
	arr2 := h2.FreshPremapParam(dtype.Int32)
	arr2Operand := Operand{Var: arr2, NDim: 1}
	litFloat := ScalarLiteral{Value: dtype.ConstValue{Kind: dtype.Float64, Float: 1.5}}

	outs2, err := h2.CallUfunc(desc, []Arg{arr2Operand, litFloat}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if outs2[0].Var.Dtype != dtype.Float64 {
		t.Fatalf("int32 array + literal 1.5 should promote to float64, got %s", outs2[0].Var.Dtype)
	}
}

// TestSubmoduleDedup checks that two add(int32,int32) ops share one
// emitted submodule, per spec.md §3's key-based deduplication.
func TestSubmoduleDedup(t *testing.T) {
	desc := addDescriptor()
	h := NewHistory()
	a := h.FreshPremapParam(dtype.Int32)
	b := h.FreshPremapParam(dtype.Int32)
	c := h.FreshPremapParam(dtype.Int32)

	out1, err := h.CallUfunc(desc, []Arg{Operand{Var: a, NDim: 1}, Operand{Var: b, NDim: 1}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.CallUfunc(desc, []Arg{out1[0], Operand{Var: c, NDim: 1}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(h.submodules.Items()) != 1 {
		t.Fatalf("expected 1 deduplicated submodule, got %d", len(h.submodules.Items()))
	}
	if len(h.opList) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(h.opList))
	}
}

func sumDescriptor() *ReductionDescriptor {
	return &ReductionDescriptor{
		Name: "sum", Kind: "sum",
		Ops: []ReduceOverload{
			{InDtype: dtype.Float64, OutDtype: dtype.Float64},
		},
	}
}

func TestReductionUniqueness(t *testing.T) {
	h := NewHistory()
	v := h.FreshPremapParam(dtype.Float64)
	_, err := h.SetReduceOp(sumDescriptor(), Operand{Var: v, NDim: 1}, ReduceKwargs{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.SetReduceOp(sumDescriptor(), Operand{Var: v, NDim: 1}, ReduceKwargs{})
	if err == nil {
		t.Fatal("expected an error recording a second reduction on the same trace")
	}
}

func TestGetFusionVarPhaseMismatch(t *testing.T) {
	h := NewHistory()
	v := h.FreshPremapParam(dtype.Float64)
	premapOperand := Operand{Var: v, NDim: 1, IsPostmap: false}
	if _, err := h.SetReduceOp(sumDescriptor(), premapOperand, ReduceKwargs{}); err != nil {
		t.Fatal(err)
	}
	desc := addDescriptor()
	_, err := h.CallUfunc(desc, []Arg{premapOperand, premapOperand}, nil)
	if err == nil {
		t.Fatal("expected an error mixing a pre-map operand into a post-map call")
	}
}

func TestCompileElementwise(t *testing.T) {
	h := NewHistory()
	desc := addDescriptor()
	plan, err := h.Compile(context.Background(), func(ctx context.Context, args []Operand) ([]*Operand, error) {
		hist, _ := FromContext(ctx)
		outs, err := hist.CallUfunc(desc, []Arg{args[0], args[1]}, nil)
		if err != nil {
			return nil, err
		}
		return []*Operand{&outs[0]}, nil
	}, []ParamInfo{{Dtype: dtype.Int32, NDim: 1}, {Dtype: dtype.Int32, NDim: 1}}, "add_kernel")
	if err != nil {
		t.Fatal(err)
	}
	if plan.Elementwise == nil {
		t.Fatal("expected an elementwise plan")
	}
	if !strings.Contains(plan.Elementwise.Body, "add(") {
		t.Fatalf("expected a call to the add submodule, got:\n%s", plan.Elementwise.Body)
	}
	if len(plan.Elementwise.OutParams) != 1 {
		t.Fatalf("expected 1 out param, got %d", len(plan.Elementwise.OutParams))
	}
}
