// Package ufunc implements component F of SPEC_FULL.md: the
// interception table that routes a ufunc/reduction call either into
// the active trace (component E) or, with no trace active, straight
// through to an immediate reference evaluation. This mirrors cupy's
// `_ufunc_wrapper`/`_reduction_wrapper` decorators, reduced in a
// statically typed target to a name-keyed registry plus a small
// function-pointer dispatch switch.
package ufunc

import (
	"context"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"sentra/internal/fusion/backend"
	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/trace"
)

// EagerEval is the immediate (non-traced) numeric implementation of a
// ufunc, used when no trace is active. backend.Reference does not use
// it; that backend evaluates a compiled kernel through each
// submodule's own Eval function.
type EagerEval func(args []backend.Value) (backend.Value, error)

// Registry holds every ufunc and reduction this module knows, each
// paired with both its trace-time descriptor (consumed by
// trace.History) and its eager evaluator (consumed when bypassing the
// tracer entirely).
type Registry struct {
	ufuncs     map[string]*trace.UfuncDescriptor
	reductions map[string]*trace.ReductionDescriptor
	eagerUfunc map[string]EagerEval
}

func NewRegistry() *Registry {
	r := &Registry{
		ufuncs:     map[string]*trace.UfuncDescriptor{},
		reductions: map[string]*trace.ReductionDescriptor{},
		eagerUfunc: map[string]EagerEval{},
	}
	registerBuiltinUfuncs(r)
	registerBuiltinReductions(r)
	return r
}

// RegisterUfunc adds or replaces a ufunc under name. Used by
// NewRegistry to populate the built-in table and available to callers
// wanting a user-defined ufunc (spec.md does not ask for that surface,
// but nothing here forecloses it).
func (r *Registry) RegisterUfunc(desc *trace.UfuncDescriptor, eager EagerEval) {
	r.ufuncs[desc.Name] = desc
	r.eagerUfunc[desc.Name] = eager
}

// RegisterReduction adds or replaces a reduction under name. Eager
// (untraced) reductions are evaluated generically by axis in
// eagerReduce rather than through a per-reduction callback, so there
// is no eager parameter to thread through here.
func (r *Registry) RegisterReduction(desc *trace.ReductionDescriptor) {
	r.reductions[desc.Name] = desc
}

// Names returns every registered ufunc name in sorted order, for
// deterministic introspection (e.g. a CLI `list` command).
func (r *Registry) Names() []string {
	names := maps.Keys(r.ufuncs)
	slices.Sort(names)
	return names
}

// ReductionNames mirrors Names for the reduction table.
func (r *Registry) ReductionNames() []string {
	names := maps.Keys(r.reductions)
	slices.Sort(names)
	return names
}

// Call routes one ufunc invocation: into the active trace if ctx
// carries one, otherwise straight through the eager evaluator. args
// holds already-resolved values — either a trace.Operand (when
// tracing) or a backend.Value (when evaluating eagerly); which kind is
// valid depends on whether a trace is active, mirroring the duality
// cupy's ufunc wrapper has between tracing and normal execution.
func (r *Registry) Call(ctx context.Context, name string, args []interface{}, out *trace.Operand) ([]trace.Operand, []backend.Value, error) {
	desc, ok := r.ufuncs[name]
	if !ok {
		return nil, nil, fmt.Errorf("fusion: unknown ufunc %q", name)
	}

	if h, active := trace.FromContext(ctx); active {
		traceArgs := make([]trace.Arg, len(args))
		for i, a := range args {
			if v, ok := a.(trace.Operand); ok {
				traceArgs[i] = v
			} else {
				traceArgs[i] = trace.ScalarLiteral{Value: literalOf(a)}
			}
		}
		outs, err := h.CallUfunc(desc, traceArgs, out)
		return outs, nil, err
	}

	eager, ok := r.eagerUfunc[name]
	if !ok {
		return nil, nil, fmt.Errorf("fusion: %s has no eager (untraced) implementation", name)
	}
	values := make([]backend.Value, len(args))
	for i, a := range args {
		v, ok := a.(backend.Value)
		if !ok {
			return nil, nil, fmt.Errorf("fusion: %s requires concrete values outside a trace, got %T", name, a)
		}
		values[i] = v
	}
	result, err := eager(values)
	if err != nil {
		return nil, nil, err
	}
	return nil, []backend.Value{result}, nil
}

func literalOf(v backend.Value) dtype.ConstValue {
	switch x := v.(type) {
	case dtype.ConstValue:
		return x
	default:
		return dtype.ConstValue{}
	}
}
