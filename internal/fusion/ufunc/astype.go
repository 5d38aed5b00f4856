package ufunc

import (
	"context"
	"fmt"

	"sentra/internal/fusion/backend"
	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/ir"
	"sentra/internal/fusion/trace"
)

// CallAstype casts arg to d unconditionally, the way cupy's
// _create_astype_ufunc builds one single-overload ufunc per target
// dtype rather than reusing the general can_cast-driven selection
// astype needs to honor an explicit, possibly-unsafe request (spec.md
// §4.D "Astype").
func (r *Registry) CallAstype(ctx context.Context, arg interface{}, d dtype.Dtype) (interface{}, error) {
	if h, active := trace.FromContext(ctx); active {
		operand, ok := arg.(trace.Operand)
		if !ok {
			return nil, fmt.Errorf("fusion: astype requires a traced operand, got %T", arg)
		}
		if operand.Var.Dtype == d {
			return operand, nil
		}
		if operand.Var.AstypeCache != nil {
			if cached, ok := operand.Var.AstypeCache[d]; ok {
				return trace.Operand{Var: cached, NDim: operand.NDim, IsPostmap: operand.IsPostmap}, nil
			}
		}
		ct, err := dtype.CTypeOf(d)
		if err != nil {
			return nil, err
		}
		desc := &trace.UfuncDescriptor{
			Name: "astype_" + d.String(), Nin: 1, Nout: 1,
			Ops: []trace.Overload{{
				InDtypes: []dtype.Dtype{operand.Var.Dtype}, OutDtypes: []dtype.Dtype{d},
				Body: fmt.Sprintf("out0 = static_cast<%s>(in0)", ct),
				Eval: func(in []float64) []float64 { return []float64{in[0]} },
			}},
		}
		outs, err := h.CallUfunc(desc, []trace.Arg{operand}, nil)
		if err != nil {
			return nil, err
		}
		if operand.Var.AstypeCache == nil {
			operand.Var.AstypeCache = map[dtype.Dtype]*ir.Var{}
		}
		operand.Var.AstypeCache[d] = outs[0].Var
		return outs[0], nil
	}

	v, ok := arg.(backend.Value)
	if !ok {
		return nil, fmt.Errorf("fusion: astype requires a concrete value outside a trace, got %T", arg)
	}
	switch x := v.(type) {
	case dtype.ConstValue:
		x.Kind = d
		return x, nil
	case *backend.NDArray:
		return &backend.NDArray{Dtype: d, Shape: x.Shape, Data: x.Data}, nil
	default:
		return nil, fmt.Errorf("fusion: astype: unrecognized value type %T", v)
	}
}
