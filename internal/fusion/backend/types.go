// Package backend defines the external collaborator contracts of
// spec.md §6: the kernel backends (element-wise and reduction) and
// the array runtime are treated as black boxes outside this module's
// scope. This package models that boundary as Go interfaces plus two
// concrete implementations that stand in for a real accelerator:
// Reference, an in-process evaluator used for tests and the CLI demo,
// and Remote, a websocket-RPC client for an external compiler/runtime
// daemon (see SPEC_FULL.md "External Interfaces").
package backend

import (
	"context"

	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/ir"
)

// Value is either a scalar (dtype.ConstValue) or an *NDArray flowing
// into and out of a Kernel.Launch call.
type Value interface{}

// NDArray is the host-side array representation used by this module's
// stand-in backends. Data is stored as float64 regardless of logical
// dtype (mirroring the teacher's internal/dataframe.NDArray), which is
// sufficient for the integer/float/bool ranges this module's ufunc
// table covers; Dtype records the logical element type for casting.
type NDArray struct {
	Dtype dtype.Dtype
	Shape []int
	Data  []float64
}

// Size is the total element count implied by Shape.
func (a *NDArray) Size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Kernel is a compiled, launchable unit of fused computation.
type Kernel interface {
	Name() string
	Source() string
	Launch(ctx context.Context, args ...Value) ([]Value, error)
}

// ElementwiseSpec is the external interface spec.md §6 "Element-wise
// kernel backend (invoked)" names: new_elementwise(in_params,
// out_params, body, preamble, return_tuple, no_return, name). The
// string fields (Body, Preamble, Name) are the literal black-box
// contract a real GPU kernel compiler would consume. The remaining
// structured fields (Ops, FinalCopies, Locals) are populated by
// internal/fusion/trace purely so this module's own Reference backend
// can evaluate the kernel without re-parsing the emitted C++ text; a
// real backend implementation ignores them entirely.
type ElementwiseSpec struct {
	InParams, OutParams []ir.Param
	Body, Preamble, Name string
	ReturnTuple, NoReturn bool

	InVars, OutVars, Locals []*ir.Var
	Ops                     []*ir.Op
	FinalCopies             [][2]*ir.Var // [0]=source var, [1]=out param var
}

// ReductionSpec is spec.md §6 "Reduction kernel backend (invoked)":
// new_reduction(in_params, out_params, map_expr, reduce_body,
// post_expr, identity, name, reduce_type, preamble).
type ReductionSpec struct {
	InParams, OutParams            []ir.Param
	MapExpr, ReduceBody, PostExpr  string
	Identity                       dtype.ConstValue
	Name, ReduceType, Preamble     string

	InVars, OutVars []*ir.Var
	PremapOps       []*ir.Op
	PremapRetVar    *ir.Var
	PostmapOps      []*ir.Op
	PostmapLocals   []*ir.Var
	PostmapParamVar *ir.Var
	ReduceKind      string // "sum", "prod", "amax", "amin" — selects the Reference combine

	// Launch is the axis kwarg captured at trace time (spec.md §4.E.3's
	// reduceKwargs). spec.md:104/123 treats this as part of what
	// History.Compile produces and what gets memoized alongside the
	// kernel — not a per-invocation argument — so it travels on the
	// spec a Kernel is built from rather than through Launch's
	// variadic Value args.
	Launch LaunchKwargs
}

// LaunchKwargs carries a reduction kernel's axis launch-time
// parameter; it has no out parameter.
type LaunchKwargs struct {
	HasAxis bool
	Axis    []int // as the caller gave it (may be negative), possibly empty (reduce over all axes)
}

// Backend constructs Kernels from specs; it is the seam at which a
// real GPU compiler would be plugged in.
type Backend interface {
	NewElementwise(ElementwiseSpec) (Kernel, error)
	NewReduction(ReductionSpec) (Kernel, error)
}
