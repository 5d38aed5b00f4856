package trace

import "sentra/internal/fusion/dtype"

// Overload is one type-specialized implementation of a ufunc: the
// cast rule spec.md §4.E.2 walks `_ops` to find, paired with the body
// text and reference evaluator a concrete Submodule needs.
type Overload struct {
	InDtypes  []dtype.Dtype
	OutDtypes []dtype.Dtype
	Body      string
	Eval      func(in []float64) []float64
}

// UfuncDescriptor is the registration shape ufunc.Registry looks up by
// name and hands to History.CallUfunc — spec.md §4.B/§4.E's `_Ops`
// table entry for one ufunc (e.g. add, multiply, less_equal).
type UfuncDescriptor struct {
	Name     string
	Nin      int
	Nout     int
	Preamble string
	Ops      []Overload
}

// ReduceOverload is one type-specialized reduction implementation:
// the input dtype it accepts, the dtype it produces, and an optional
// identity constructor. It carries no combine body; the combine is
// selected by the descriptor's Kind.
type ReduceOverload struct {
	InDtype      dtype.Dtype
	OutDtype     dtype.Dtype
	IdentityFunc func() dtype.ConstValue
}

// ReductionDescriptor is the registration shape for sum/prod/amax/amin
// — spec.md §4.E.3's "reduction descriptor".
type ReductionDescriptor struct {
	Name     string
	Preamble string
	Kind     string // "sum", "prod", "amax", "amin" — the Reference backend's combine key
	Ops      []ReduceOverload
}

// ReduceKwargs carries a reduction's axis keyword argument; there is
// no caller-supplied out array.
type ReduceKwargs struct {
	HasAxis bool
	Axis    []int
}
