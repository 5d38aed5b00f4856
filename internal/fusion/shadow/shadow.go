// Package shadow implements component D of SPEC_FULL.md: the
// operator-bearing value a traced function actually computes with.
// It wraps trace.Operand with the arithmetic/comparison/cast method
// surface spec.md §4.D describes, dispatching every operator through
// the ufunc registry (component F) rather than Go operator overloading,
// since Go has none.
package shadow

import (
	"context"
	"fmt"

	"sentra/internal/errors"
	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/trace"
	"sentra/internal/fusion/ufunc"
)

// Shadow is a tagged union over trace.Operand: NDim < 0 marks a
// scalar, matching Operand.IsScalar.
type Shadow struct {
	ctx context.Context
	reg *ufunc.Registry
	op  trace.Operand
}

// New wraps an already-traced operand. Callers normally get a Shadow
// back from another Shadow method rather than constructing one
// directly; the traced function itself wraps the fresh pre-map
// operands that History.Compile passes it.
func New(ctx context.Context, reg *ufunc.Registry, op trace.Operand) Shadow {
	return Shadow{ctx: ctx, reg: reg, op: op}
}

func (s Shadow) Operand() trace.Operand { return s.op }
func (s Shadow) IsArray() bool          { return !s.op.IsScalar() }
func (s Shadow) Dtype() dtype.Dtype     { return s.op.Var.Dtype }

func (s Shadow) wrap(out trace.Operand) Shadow {
	return Shadow{ctx: s.ctx, reg: s.reg, op: out}
}

func (s Shadow) binary(name string, other Shadow) (Shadow, error) {
	outs, _, err := s.reg.Call(s.ctx, name, []interface{}{s.op, other.op}, nil)
	if err != nil {
		return Shadow{}, err
	}
	return s.wrap(outs[0]), nil
}

func (s Shadow) unary(name string) (Shadow, error) {
	outs, _, err := s.reg.Call(s.ctx, name, []interface{}{s.op}, nil)
	if err != nil {
		return Shadow{}, err
	}
	return s.wrap(outs[0]), nil
}

func (s Shadow) Add(o Shadow) (Shadow, error)      { return s.binary("add", o) }
func (s Shadow) Sub(o Shadow) (Shadow, error)      { return s.binary("subtract", o) }
func (s Shadow) Mul(o Shadow) (Shadow, error)      { return s.binary("multiply", o) }
func (s Shadow) Div(o Shadow) (Shadow, error)      { return s.binary("divide", o) }
func (s Shadow) FloorDiv(o Shadow) (Shadow, error) { return s.binary("floor_divide", o) }
func (s Shadow) Mod(o Shadow) (Shadow, error)      { return s.binary("remainder", o) }
func (s Shadow) Pow(o Shadow) (Shadow, error)      { return s.binary("power", o) }
func (s Shadow) LShift(o Shadow) (Shadow, error)   { return s.binary("left_shift", o) }
func (s Shadow) RShift(o Shadow) (Shadow, error)   { return s.binary("right_shift", o) }
func (s Shadow) And(o Shadow) (Shadow, error)      { return s.binary("bitwise_and", o) }
func (s Shadow) Or(o Shadow) (Shadow, error)       { return s.binary("bitwise_or", o) }
func (s Shadow) Xor(o Shadow) (Shadow, error)      { return s.binary("bitwise_xor", o) }

func (s Shadow) Neg() (Shadow, error)    { return s.unary("negative") }
func (s Shadow) Invert() (Shadow, error) { return s.unary("invert") }

func (s Shadow) Lt(o Shadow) (Shadow, error) { return s.binary("less", o) }
func (s Shadow) Le(o Shadow) (Shadow, error) { return s.binary("less_equal", o) }
func (s Shadow) Eq(o Shadow) (Shadow, error) { return s.binary("equal", o) }
func (s Shadow) Ne(o Shadow) (Shadow, error) { return s.binary("not_equal", o) }
func (s Shadow) Gt(o Shadow) (Shadow, error) { return s.binary("greater", o) }
func (s Shadow) Ge(o Shadow) (Shadow, error) { return s.binary("greater_equal", o) }

// Copy returns a new shadow holding a fresh copy of this value — the
// analog of cupy's Fusion ndarray.copy(), used when a traced function
// needs to read a value through a separate variable than the one it
// writes in place.
func (s Shadow) Copy() (Shadow, error) { return s.unary("copy") }

// inPlace dispatches name with self as both an operand and the
// ufunc's out-argument. spec.md §4.D restricts in-place forms to
// arrays: a scalar shadow has no storage an in-place write could
// target.
func (s Shadow) inPlace(name string, other Shadow) (Shadow, error) {
	if s.op.IsScalar() {
		return Shadow{}, errors.NewValueError(fmt.Sprintf("in-place %s is not valid on a scalar shadow", name))
	}
	out := s.op
	outs, _, err := s.reg.Call(s.ctx, name, []interface{}{s.op, other.op}, &out)
	if err != nil {
		return Shadow{}, err
	}
	return s.wrap(outs[0]), nil
}

func (s Shadow) AddAssign(o Shadow) (Shadow, error)      { return s.inPlace("add", o) }
func (s Shadow) SubAssign(o Shadow) (Shadow, error)      { return s.inPlace("subtract", o) }
func (s Shadow) MulAssign(o Shadow) (Shadow, error)      { return s.inPlace("multiply", o) }
func (s Shadow) DivAssign(o Shadow) (Shadow, error)      { return s.inPlace("divide", o) }
func (s Shadow) FloorDivAssign(o Shadow) (Shadow, error) { return s.inPlace("floor_divide", o) }
func (s Shadow) ModAssign(o Shadow) (Shadow, error)      { return s.inPlace("remainder", o) }
func (s Shadow) PowAssign(o Shadow) (Shadow, error)      { return s.inPlace("power", o) }
func (s Shadow) LShiftAssign(o Shadow) (Shadow, error)   { return s.inPlace("left_shift", o) }
func (s Shadow) RShiftAssign(o Shadow) (Shadow, error)   { return s.inPlace("right_shift", o) }
func (s Shadow) AndAssign(o Shadow) (Shadow, error)      { return s.inPlace("bitwise_and", o) }
func (s Shadow) OrAssign(o Shadow) (Shadow, error)       { return s.inPlace("bitwise_or", o) }
func (s Shadow) XorAssign(o Shadow) (Shadow, error)      { return s.inPlace("bitwise_xor", o) }

// FullSlice is the only index form SetIndex accepts — Go has no
// `x[...]`/`x[:]` literal, so the full-range index is modeled as this
// sentinel type instead of a general slice/index argument.
type FullSlice struct{}

// SetIndex writes other into s at idx, which must be a FullSlice.
// spec.md §4.D only defines the full-slice in-place assignment form
// (`x[...] = y`); anything else is a ValueError in the original and is
// rejected here the same way.
func (s Shadow) SetIndex(idx interface{}, other Shadow) (Shadow, error) {
	if _, ok := idx.(FullSlice); !ok {
		return Shadow{}, errors.NewValueError("only the full-slice index form is supported for in-place assignment")
	}
	if s.op.IsScalar() {
		return Shadow{}, errors.NewValueError("cannot index-assign into a scalar shadow")
	}
	out := s.op
	outs, _, err := s.reg.Call(s.ctx, "copy", []interface{}{other.op}, &out)
	if err != nil {
		return Shadow{}, err
	}
	return s.wrap(outs[0]), nil
}

// Astype casts s to d, memoizing the result on the underlying
// ir.Var's AstypeCache so repeated casts to the same dtype in one
// trace reuse the first cast instead of recording a second cast op
// (spec.md §4.D "Astype memoization").
func (s Shadow) Astype(d dtype.Dtype) (Shadow, error) {
	result, err := s.reg.CallAstype(s.ctx, s.op, d)
	if err != nil {
		return Shadow{}, err
	}
	out, ok := result.(trace.Operand)
	if !ok {
		return Shadow{}, errors.NewFusionRuntimeError("astype did not return a traced operand")
	}
	return s.wrap(out), nil
}

// Sum reduces s over axis (nil meaning every axis). spec.md §4.D
// routes every reduction method through the same CallReduction entry
// point component F exposes; Prod/Max/Min differ only in name.
func (s Shadow) reduce(name string, axis []int) (Shadow, error) {
	kwargs := ufunc.ReduceKwargsIn{HasAxis: axis != nil, Axis: axis}
	result, err := s.reg.CallReduction(s.ctx, name, s.op, kwargs)
	if err != nil {
		return Shadow{}, err
	}
	out, ok := result.(trace.Operand)
	if !ok {
		return Shadow{}, errors.NewFusionRuntimeError("reduction did not return a traced operand")
	}
	return s.wrap(out), nil
}

func (s Shadow) Sum(axis []int) (Shadow, error)  { return s.reduce("sum", axis) }
func (s Shadow) Prod(axis []int) (Shadow, error) { return s.reduce("prod", axis) }
func (s Shadow) Max(axis []int) (Shadow, error)  { return s.reduce("amax", axis) }
func (s Shadow) Min(axis []int) (Shadow, error)  { return s.reduce("amin", axis) }
