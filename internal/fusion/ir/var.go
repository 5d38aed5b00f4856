package ir

import (
	"fmt"

	"sentra/internal/fusion/dtype"
)

// Var is a numbered SSA-style CUDA variable (spec.md §3 "CUDA
// variable"). A nil Const means the variable holds no compile-time
// value; a non-nil Const is a literal, declared `const` unless
// Mutable has been set (invariant 6).
type Var struct {
	Index   int
	Dtype   dtype.Dtype
	Const   *dtype.ConstValue
	Mutable bool

	// AstypeCache memoizes astype(d) results keyed by target dtype, so
	// casting the same shadow value to the same dtype twice in one
	// trace reuses the first cast's variable instead of recording a
	// second cast op (spec.md §4.D "Astype memoization").
	AstypeCache map[dtype.Dtype]*Var
}

// Mutate flips Mutable to true — called the first time a ufunc writes
// this variable as an output (spec.md §3 "CUDA variable").
func (v *Var) Mutate() { v.Mutable = true }

func (v *Var) Ref() string { return fmt.Sprintf("v%d", v.Index) }

// Declaration renders one of the three forms spec.md §4.C names:
// `T v{i};`, `T v{i} = literal;`, or `const T v{i} = literal;`.
func (v *Var) Declaration() (string, error) {
	ct, err := dtype.CTypeOf(v.Dtype)
	if err != nil {
		return "", err
	}
	if v.Const == nil {
		return fmt.Sprintf("%s v%d;\n", ct, v.Index), nil
	}
	lit := dtype.Literal(*v.Const, v.Dtype)
	if v.Mutable {
		return fmt.Sprintf("%s v%d = %s;\n", ct, v.Index, lit), nil
	}
	return fmt.Sprintf("const %s v%d = %s;\n", ct, v.Index, lit), nil
}

// DeclarationInParam renders v as an in-kernel parameter declaration.
// A mutable input (one that some op later writes back into, e.g. the
// `x` of `x += y`) drops the const qualifier that would otherwise
// apply to a kernel's nominal input parameters.
func (v *Var) DeclarationInParam() (string, error) {
	ct, err := dtype.CTypeOf(v.Dtype)
	if err != nil {
		return "", err
	}
	prefix := ""
	if v.Mutable {
		prefix = "non_const "
	}
	return fmt.Sprintf("%s%s v%d", prefix, ct, v.Index), nil
}

// DeclarationOutParam renders v as an out-kernel parameter declaration.
func (v *Var) DeclarationOutParam() (string, error) {
	ct, err := dtype.CTypeOf(v.Dtype)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s v%d", ct, v.Index), nil
}
