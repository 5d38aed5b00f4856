// Package trace implements component E of SPEC_FULL.md: the active
// tracing session that records a user function's operations as it
// runs once under shadow values, turning them into the IR pre-map,
// reduction, and post-map phases a kernel backend can compile. This
// is the module's largest component, mirroring cupy/core/fusion.py's
// _FusionHistory.
package trace

import (
	"fmt"
	"log"

	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/ir"
)

// Operand is the var-carrying value that flows through a trace:
// spec.md §3's "shadow value" reduced to the bookkeeping the tracer
// itself needs (a richer, operator-bearing wrapper lives one layer up
// in the shadow package, to keep this package free of cycles back up
// to shadow/ufunc).
type Operand struct {
	Var       *ir.Var
	NDim      int // -1 means scalar
	IsPostmap bool
}

func (o Operand) IsScalar() bool { return o.NDim < 0 }

// ParamInfo describes one argument a traced function will receive:
// its dtype and rank (spec.md §3's "argument signature").
type ParamInfo struct {
	Dtype dtype.Dtype
	NDim  int // -1 for a host scalar
}

// History is one tracing session. A History must not be shared across
// goroutines: tracing is strictly synchronous single-threaded replay
// of the user function, same as the thread-local `_thread_local` it
// is grounded on.
type History struct {
	preambles  *orderedStrings
	submodules *submoduleTable

	count int

	opList         []*ir.Op
	postmapOpList  []*ir.Op
	paramList      []*ir.Var
	localList      []*ir.Var
	postmapLocals  []*ir.Var

	reduceOp         *ReduceOverload
	reduceDescriptor *ReductionDescriptor
	reduceKwargs     ReduceKwargs
	premapRet        *ir.Var
	postmapParam     *ir.Var

	ndim int
}

// NewHistory starts a fresh tracing session.
func NewHistory() *History {
	return &History{
		preambles:  newOrderedStrings(),
		submodules: newSubmoduleTable(),
		ndim:       -1,
	}
}

// HasReduction reports whether set_reduce_op has already run — the
// boundary between the pre-map and post-map phases (spec.md §3).
func (h *History) HasReduction() bool { return h.reduceOp != nil }

// FreshIndex allocates and returns the next CUDA variable index.
func (h *History) FreshIndex() int {
	i := h.count
	h.count++
	return i
}

// FreshPremapParam allocates a new pre-map kernel parameter of dtype
// d, appends it to the parameter list, and returns it.
func (h *History) FreshPremapParam(d dtype.Dtype) *ir.Var {
	v := &ir.Var{Index: h.FreshIndex(), Dtype: d}
	h.paramList = append(h.paramList, v)
	return v
}

// FreshPostmapParam allocates the single post-map kernel parameter
// that carries the reduction's result into the post-map phase. It may
// only be called once per History (spec.md §4.E.3 invariant).
func (h *History) FreshPostmapParam(d dtype.Dtype) (*ir.Var, error) {
	if h.postmapParam != nil {
		return nil, fmt.Errorf("fusion: reduction output already allocated")
	}
	v := &ir.Var{Index: h.FreshIndex(), Dtype: d}
	h.postmapParam = v
	return v, nil
}

// FreshLocal allocates a fresh local variable, optionally a constant,
// routed into the pre-map or post-map local list depending on which
// phase of the trace is currently active.
func (h *History) FreshLocal(d dtype.Dtype, const_ *dtype.ConstValue) *ir.Var {
	v := &ir.Var{Index: h.FreshIndex(), Dtype: d, Const: const_}
	if h.HasReduction() {
		h.postmapLocals = append(h.postmapLocals, v)
	} else {
		h.localList = append(h.localList, v)
	}
	return v
}

// ScalarLiteral is what an argument to CallUfunc/SetReduceOp can be
// besides an existing Operand: a raw host literal that needs lifting
// to a fresh constant local before it can participate in an op.
type ScalarLiteral struct {
	Value dtype.ConstValue
}

// Arg is the union CallUfunc/SetReduceOp accept per argument: either
// an Operand already produced by an earlier op, or a ScalarLiteral
// not yet lifted into the trace.
type Arg interface{}

// getFusionVar lifts one Arg to an Operand (spec.md §4.E.2 step 1).
// A literal becomes a fresh constant local at the trace's current
// phase; an existing Operand is returned unchanged, but only if its
// phase matches the trace's current phase — mixing a pre-map operand
// into a post-map call (or vice versa) is the "shape mismatch between
// variables from different fusion stages" error spec.md documents.
func (h *History) getFusionVar(a Arg) (Operand, error) {
	switch v := a.(type) {
	case Operand:
		if v.IsPostmap != h.HasReduction() {
			return Operand{}, fmt.Errorf("fusion: cannot combine a pre-reduction value with a post-reduction value in the same operation")
		}
		return v, nil
	case ScalarLiteral:
		local := h.FreshLocal(v.Value.Kind, &v.Value)
		return Operand{Var: local, NDim: -1, IsPostmap: h.HasReduction()}, nil
	default:
		return Operand{}, fmt.Errorf("fusion: unrecognized ufunc argument %T", a)
	}
}

// CallUfunc runs spec.md §4.E.2's eight-step ufunc-dispatch algorithm:
// lift arguments, determine rank, pick a casting strategy, select the
// first overload that strategy accepts, materialize outputs, and
// record one Op. out, if non-nil, is a caller-supplied output Operand
// (must already be an array).
func (h *History) CallUfunc(desc *UfuncDescriptor, rawArgs []Arg, out *Operand) ([]Operand, error) {
	args := make([]Operand, len(rawArgs))
	for i, a := range rawArgs {
		lifted, err := h.getFusionVar(a)
		if err != nil {
			return nil, err
		}
		args[i] = lifted
	}
	if len(args) != desc.Nin {
		return nil, fmt.Errorf("fusion: %s expects %d arguments, got %d", desc.Name, desc.Nin, len(args))
	}

	ndim := -1
	for _, a := range args {
		if a.NDim > ndim {
			ndim = a.NDim
		}
	}
	if out != nil && out.NDim > ndim {
		ndim = out.NDim
	}
	if out != nil && out.NDim < ndim {
		return nil, fmt.Errorf("fusion: output array of rank %d cannot hold a rank-%d result", out.NDim, ndim)
	}
	if ndim < h.ndim {
		log.Printf("fusion: operand rank %d is lower than the kernel's established rank %d", ndim, h.ndim)
	}
	if ndim > h.ndim {
		h.ndim = ndim
	}

	overload, err := h.selectOverload(desc, args)
	if err != nil {
		return nil, err
	}

	outVars := make([]*ir.Var, desc.Nout)
	outOperands := make([]Operand, desc.Nout)
	if out != nil {
		if !dtype.CanCast(overload.OutDtypes[0], out.Var.Dtype, dtype.SameKind) {
			return nil, fmt.Errorf("fusion: cannot cast %s result into %s output", overload.OutDtypes[0], out.Var.Dtype)
		}
		outVars[0] = out.Var
		outOperands[0] = *out
	}
	for i := 0; i < desc.Nout; i++ {
		if outVars[i] != nil {
			continue
		}
		v := h.FreshLocal(overload.OutDtypes[i], nil)
		outVars[i] = v
		outOperands[i] = Operand{Var: v, NDim: ndim, IsPostmap: h.HasReduction()}
	}
	for _, v := range outVars {
		v.Mutate()
	}

	sub := h.internSubmodule(desc, overload)

	opArgs := make([]*ir.Var, 0, len(args)+len(outVars))
	for _, a := range args {
		opArgs = append(opArgs, a.Var)
	}
	opArgs = append(opArgs, outVars...)
	h.addOp(sub, opArgs)

	return outOperands, nil
}

func (h *History) internSubmodule(desc *UfuncDescriptor, overload Overload) *ir.Submodule {
	in := make([]ir.Param, len(overload.InDtypes))
	for i, d := range overload.InDtypes {
		in[i] = ir.Param{Dtype: d, Name: fmt.Sprintf("in%d", i)}
	}
	out := make([]ir.Param, len(overload.OutDtypes))
	for i, d := range overload.OutDtypes {
		out[i] = ir.Param{Dtype: d, Name: fmt.Sprintf("out%d", i)}
	}
	sub := &ir.Submodule{
		Name: desc.Name, InParams: in, OutParams: out,
		Op: overload.Body, Preamble: desc.Preamble, Eval: overload.Eval,
	}
	canonical := h.submodules.Intern(sub)
	h.preambles.Add(desc.Preamble)
	return canonical
}

func (h *History) addOp(sub *ir.Submodule, args []*ir.Var) *ir.Op {
	var list *[]*ir.Op
	if h.HasReduction() {
		list = &h.postmapOpList
	} else {
		list = &h.opList
	}
	op := &ir.Op{Index: len(*list), Submodule: sub, Args: args}
	*list = append(*list, op)
	return op
}

// selectOverload implements spec.md §4.E.2 step 4: shouldUseMinScalar
// picks exactly one of the two casting rules — the min-scalar rule
// (can_cast1, value-aware for scalar arguments) if some array input's
// kind is at least as high as the highest scalar input's kind,
// otherwise the uniform rule (can_cast2, dtype-only) — and only that
// rule is scanned for the first accepting overload, mirroring
// fusion.py:610's `can_cast = can_cast1 if _should_use_min_scalar(in_vars) else can_cast2`.
func (h *History) selectOverload(desc *UfuncDescriptor, args []Operand) (Overload, error) {
	canCast := canCast2
	if shouldUseMinScalar(args) {
		canCast = canCast1
	}
	for _, op := range desc.Ops {
		if canCast(op.InDtypes, args) {
			return op, nil
		}
	}
	return Overload{}, fmt.Errorf("fusion: no %s overload accepts the given argument types", desc.Name)
}

// shouldUseMinScalar ports numpy/cupy's _should_use_min_scalar: true
// when at least one argument is scalar and some array argument's kind
// is >= the highest scalar argument's kind.
func shouldUseMinScalar(args []Operand) bool {
	maxArrayKind := -1
	maxScalarKind := -1
	hasScalar := false
	for _, a := range args {
		k := dtype.KindScore(a.Var.Dtype)
		if a.IsScalar() {
			hasScalar = true
			if k > maxScalarKind {
				maxScalarKind = k
			}
		} else if k > maxArrayKind {
			maxArrayKind = k
		}
	}
	return hasScalar && maxArrayKind >= maxScalarKind
}

func canCast1(inDtypes []dtype.Dtype, args []Operand) bool {
	for i, want := range inDtypes {
		a := args[i]
		if a.IsScalar() {
			if !dtype.CanCastScalar(a.Var.Const, a.Var.Dtype, want) {
				return false
			}
		} else if !dtype.CanCast(a.Var.Dtype, want, dtype.Safe) {
			return false
		}
	}
	return true
}

func canCast2(inDtypes []dtype.Dtype, args []Operand) bool {
	for i, want := range inDtypes {
		if !dtype.CanCast(args[i].Var.Dtype, want, dtype.Safe) {
			return false
		}
	}
	return true
}

// SetReduceOp runs spec.md §4.E.3: picks the first reduction overload
// whose input dtype the argument can safely cast to, records it as
// the trace's one reduction, and returns the fresh post-map parameter
// that will carry the reduced value. The caller (ufunc.Registry, which
// owns the axis/rank bookkeeping) rejects a post-map argument before
// calling this; any other second reduction on the same History is
// rejected here.
func (h *History) SetReduceOp(desc *ReductionDescriptor, arg Operand, kwargs ReduceKwargs) (*ir.Var, error) {
	if h.HasReduction() {
		return nil, fmt.Errorf("fusion: a reduction has already been recorded for this trace")
	}
	var chosen *ReduceOverload
	for i := range desc.Ops {
		if dtype.CanCast(arg.Var.Dtype, desc.Ops[i].InDtype, dtype.Safe) {
			chosen = &desc.Ops[i]
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("fusion: %s has no overload accepting %s", desc.Name, arg.Var.Dtype)
	}

	overload := *chosen
	h.reduceOp = &overload
	h.reduceDescriptor = desc
	h.reduceKwargs = kwargs
	h.premapRet = arg.Var
	h.preambles.Add(desc.Preamble)

	out, err := h.FreshPostmapParam(overload.OutDtype)
	if err != nil {
		return nil, err
	}
	return out, nil
}
