package trace

import (
	"context"
	"fmt"
	"strings"

	"sentra/internal/fusion/backend"
	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/ir"
)

// UserFunc is the shape a traced function body takes once lowered
// past the shadow layer: given the pre-map Operands for its
// parameters, it runs the user's operations against h (reached via
// ctx) and returns one Operand per return value, with a nil entry for
// a dropped/unused return slot.
type UserFunc func(ctx context.Context, args []Operand) ([]*Operand, error)

// KernelPlan is everything Compile produces: the backend spec ready
// to hand to a Backend, plus enough bookkeeping for the facade to
// re-wrap each return value at its original rank.
type KernelPlan struct {
	Elementwise *backend.ElementwiseSpec
	Reduction   *backend.ReductionSpec
	OutNDims    []int
	NoReturn    bool
}

// Compile runs spec.md §4.E.4's emission algorithm: install h as the
// active history on ctx, replay fn once against fresh pre-map
// parameters, then assemble whichever kernel spec (elementwise or
// reduction) the resulting trace calls for. The caller (fuse.Facade)
// is responsible for bypassing Compile entirely when ctx already
// carries an active trace (spec.md:123's nested-fusion bypass) —
// Compile only asserts that invariant defensively rather than
// silently shadowing the enclosing History.
func (h *History) Compile(ctx context.Context, fn UserFunc, inParams []ParamInfo, name string) (*KernelPlan, error) {
	if _, active := FromContext(ctx); active {
		return nil, fmt.Errorf("fusion: Compile called with an already-active trace on ctx; the caller must bypass instead of nesting")
	}
	ctx = WithHistory(ctx, h)

	args := make([]Operand, len(inParams))
	for i, p := range inParams {
		v := h.FreshPremapParam(p.Dtype)
		args[i] = Operand{Var: v, NDim: p.NDim, IsPostmap: false}
	}

	rawOuts, err := fn(ctx, args)
	if err != nil {
		return nil, err
	}

	outs := make([]Operand, 0, len(rawOuts))
	outNDims := make([]int, 0, len(rawOuts))
	for _, o := range rawOuts {
		if o == nil {
			continue
		}
		outs = append(outs, *o)
		outNDims = append(outNDims, o.NDim)
	}

	if len(outs) == 0 {
		plan, err := h.compileNoReturn()
		if err != nil {
			return nil, err
		}
		plan.NoReturn = true
		return plan, nil
	}

	if h.HasReduction() {
		plan, err := h.compileReduction(outs, name)
		if err != nil {
			return nil, err
		}
		plan.OutNDims = outNDims
		return plan, nil
	}

	plan, err := h.compileElementwise(outs, name)
	if err != nil {
		return nil, err
	}
	plan.OutNDims = outNDims
	return plan, nil
}

func (h *History) compileElementwise(outs []Operand, name string) (*KernelPlan, error) {
	outVars := make([]*ir.Var, len(outs))
	finalCopies := make([][2]*ir.Var, len(outs))
	outParams := make([]ir.Param, len(outs))
	for i, o := range outs {
		p := h.FreshPremapParam(o.Var.Dtype)
		p.Mutate()
		outVars[i] = p
		finalCopies[i] = [2]*ir.Var{o.Var, p}
		outParams[i] = ir.Param{Dtype: p.Dtype, Name: p.Ref()}
	}

	inParams := make([]ir.Param, len(h.paramList)-len(outs))
	for i, v := range h.paramList[:len(h.paramList)-len(outs)] {
		inParams[i] = ir.Param{Dtype: v.Dtype, Name: v.Ref()}
	}

	body, err := h.emitBody(h.opList, finalCopies)
	if err != nil {
		return nil, err
	}

	spec := &backend.ElementwiseSpec{
		InParams: inParams, OutParams: outParams,
		Body: body, Preamble: strings.Join(h.preambles.Items(), "\n"),
		Name: name, ReturnTuple: len(outs) > 1,
		InVars: h.paramList[:len(h.paramList)-len(outs)], OutVars: outVars,
		Locals: h.localList, Ops: h.opList, FinalCopies: finalCopies,
	}
	return &KernelPlan{Elementwise: spec}, nil
}

func (h *History) compileNoReturn() (*KernelPlan, error) {
	inParams := make([]ir.Param, len(h.paramList))
	for i, v := range h.paramList {
		inParams[i] = ir.Param{Dtype: v.Dtype, Name: v.Ref()}
	}
	body, err := h.emitBody(h.opList, nil)
	if err != nil {
		return nil, err
	}
	spec := &backend.ElementwiseSpec{
		InParams: inParams, Body: body,
		Preamble: strings.Join(h.preambles.Items(), "\n"),
		Name:     "fused_kernel", NoReturn: true,
		InVars: h.paramList, Locals: h.localList, Ops: h.opList,
	}
	return &KernelPlan{Elementwise: spec}, nil
}

func (h *History) compileReduction(outs []Operand, name string) (*KernelPlan, error) {
	if len(outs) != 1 {
		return nil, fmt.Errorf("fusion: a reduction kernel may only return a single value, got %d", len(outs))
	}

	inParams := make([]ir.Param, len(h.paramList))
	for i, v := range h.paramList {
		inParams[i] = ir.Param{Dtype: v.Dtype, Name: v.Ref()}
	}
	out := outs[0]
	outParams := []ir.Param{{Dtype: out.Var.Dtype, Name: out.Var.Ref()}}

	mapExpr, err := h.emitBody(h.opList, nil)
	if err != nil {
		return nil, err
	}
	postExpr, err := h.emitBody(h.postmapOpList, nil)
	if err != nil {
		return nil, err
	}

	spec := &backend.ReductionSpec{
		InParams: inParams, OutParams: outParams,
		MapExpr: mapExpr, ReduceBody: h.reduceDescriptor.Name, PostExpr: postExpr,
		Identity: identityOf(h.reduceDescriptor.Kind, h.reduceOp.OutDtype),
		Name:     name, ReduceType: h.reduceOp.OutDtype.String(),
		Preamble: strings.Join(h.preambles.Items(), "\n"),

		InVars: h.paramList, OutVars: []*ir.Var{out.Var},
		PremapOps: h.opList, PremapRetVar: h.premapRet,
		PostmapOps: h.postmapOpList, PostmapLocals: h.postmapLocals,
		PostmapParamVar: h.postmapParam, ReduceKind: h.reduceDescriptor.Kind,
		Launch: backend.LaunchKwargs{HasAxis: h.reduceKwargs.HasAxis, Axis: h.reduceKwargs.Axis},
	}
	return &KernelPlan{Reduction: spec}, nil
}

// identityOf returns the reduce_body identity value a reduction
// kernel backend needs: 0 for sum, 1 for prod. amax/amin have no
// finite identity in this module's numeric domain, so their kernels
// seed the accumulator from the first element instead (see
// backend.Reference's reduceAll) and Identity is left at zero.
func identityOf(kind string, d dtype.Dtype) dtype.ConstValue {
	switch kind {
	case "sum":
		return dtype.ConstValue{Kind: d}
	case "prod":
		if d == dtype.Float32 || d == dtype.Float64 {
			return dtype.ConstValue{Kind: d, Float: 1}
		}
		return dtype.ConstValue{Kind: d, IsInt: true, Signed: true, Int: 1}
	default:
		return dtype.ConstValue{Kind: d}
	}
}

// emitBody concatenates the device-code fragments for a phase's op
// list (spec.md §4.C/§4.G), appending one assignment per final copy.
func (h *History) emitBody(ops []*ir.Op, finalCopies [][2]*ir.Var) (string, error) {
	var b strings.Builder
	for _, op := range ops {
		code, err := op.Code()
		if err != nil {
			return "", err
		}
		b.WriteString(code)
	}
	for _, cp := range finalCopies {
		ct, err := dtype.CTypeOf(cp[1].Dtype)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s = static_cast<%s>(%s);\n", cp[1].Ref(), ct, cp[0].Ref())
	}
	return b.String(), nil
}
