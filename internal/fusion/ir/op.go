package ir

import (
	"fmt"
	"strings"

	"sentra/internal/fusion/dtype"
)

// Op is an operation node: a submodule bound to an ordered list of
// argument variables, inputs first then outputs (spec.md §3
// "Operation node", invariant 5).
type Op struct {
	Index     int
	Submodule *Submodule
	Args      []*Var
}

// dtypes returns the submodule's parameter dtypes in the same order
// as Args: in_params then out_params.
func (op *Op) dtypes() []dtype.Dtype {
	ds := make([]dtype.Dtype, 0, len(op.Submodule.InParams)+len(op.Submodule.OutParams))
	for _, p := range op.Submodule.InParams {
		ds = append(ds, p.Dtype)
	}
	for _, p := range op.Submodule.OutParams {
		ds = append(ds, p.Dtype)
	}
	return ds
}

// tempName is the `v{opIndex}_{argPosition}` temporary naming scheme
// spec.md §4.C specifies to avoid collisions across operations.
func (op *Op) tempName(j int) string {
	return fmt.Sprintf("v%d_%d", op.Index, j)
}

// DeclarationArgs declares the per-operation temporaries used to cast
// arguments in and out of the submodule call.
func (op *Op) DeclarationArgs() (string, error) {
	dtypes := op.dtypes()
	var b strings.Builder
	for j, d := range dtypes {
		ct, err := dtype.CTypeOf(d)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s %s;", ct, op.tempName(j))
	}
	b.WriteString("\n")
	return b.String(), nil
}

// Code renders the operation block: a banner comment, inbound casts,
// the submodule call, then outbound casts for the output arguments
// (spec.md §4.C).
func (op *Op) Code() (string, error) {
	dtypes := op.dtypes()
	if len(op.Args) != len(dtypes) {
		return "", fmt.Errorf("fusion: op #%d arity mismatch: %d args, %d params", op.Index, len(op.Args), len(dtypes))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "// op # %d\n", op.Index)

	tempNames := make([]string, len(op.Args))
	for j, d := range dtypes {
		ct, err := dtype.CTypeOf(d)
		if err != nil {
			return "", err
		}
		tempNames[j] = op.tempName(j)
		fmt.Fprintf(&b, "%s = static_cast<%s>(v%d);\n", tempNames[j], ct, op.Args[j].Index)
	}

	b.WriteString(op.Submodule.FCall(tempNames))

	nin := len(op.Submodule.InParams)
	for j := nin; j < len(op.Args); j++ {
		ct, err := dtype.CTypeOf(op.Args[j].Dtype)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "v%d = static_cast<%s>(%s);\n", op.Args[j].Index, ct, tempNames[j])
	}

	return b.String(), nil
}
