// cmd/fusionc/commands/demo.go
package commands

import (
	"context"
	"flag"
	"fmt"

	"sentra/internal/fusion/backend"
	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/fuse"
	"sentra/internal/fusion/ir"
	"sentra/internal/fusion/shadow"
	"sentra/internal/fusion/trace"
	"sentra/internal/fusion/ufunc"
)

// DemoCommand traces, compiles, and launches a small fused kernel
// against the Reference backend, then prints the emitted device
// source and the numeric result — the module's equivalent of
// `sentra run` against a built-in example script.
func DemoCommand(args []string) error {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	kind := fs.String("kind", "elementwise", "which demo to run: elementwise or reduction")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reg := ufunc.NewRegistry()

	switch *kind {
	case "elementwise":
		return runElementwiseDemo(reg)
	case "reduction":
		return runReductionDemo(reg)
	default:
		return fmt.Errorf("fusionc: unknown demo kind %q", *kind)
	}
}

// runElementwiseDemo fuses `(a + b) * c` over three float64 arrays.
func runElementwiseDemo(reg *ufunc.Registry) error {
	fn := func(ctx context.Context, args []trace.Operand) ([]*trace.Operand, error) {
		a := shadow.New(ctx, reg, args[0])
		b := shadow.New(ctx, reg, args[1])
		c := shadow.New(ctx, reg, args[2])

		sum, err := a.Add(b)
		if err != nil {
			return nil, err
		}
		prod, err := sum.Mul(c)
		if err != nil {
			return nil, err
		}
		out := prod.Operand()
		return []*trace.Operand{&out}, nil
	}

	f := fuse.New("affine", fn)

	a, err := backend.Arange(dtype.Float64, 1, 5, 1)
	if err != nil {
		return err
	}
	b, err := backend.Linspace(dtype.Float64, 10, 40, 4)
	if err != nil {
		return err
	}
	c := backend.Ones(dtype.Float64, 4)
	for i := range c.Data {
		c.Data[i] = 2
	}

	results, err := f.Call(context.Background(), a, b, c)
	if err != nil {
		return err
	}

	out := results[0].(*backend.NDArray)
	fmt.Printf("result: %v\n", out.Data)
	fmt.Println(f.CacheReport())
	return nil
}

// runReductionDemo fuses `sum(x * 2)` over one float64 array.
func runReductionDemo(reg *ufunc.Registry) error {
	fn := func(ctx context.Context, args []trace.Operand) ([]*trace.Operand, error) {
		x := shadow.New(ctx, reg, args[0])
		two := shadow.New(ctx, reg, trace.Operand{
			Var:  mustConstVar(ctx, dtype.Float64, 2),
			NDim: -1,
		})
		scaled, err := x.Mul(two)
		if err != nil {
			return nil, err
		}
		sum, err := scaled.Sum(nil)
		if err != nil {
			return nil, err
		}
		out := sum.Operand()
		return []*trace.Operand{&out}, nil
	}

	f := fuse.New("scaled_sum", fn)
	x := &backend.NDArray{Dtype: dtype.Float64, Shape: []int{4}, Data: []float64{1, 2, 3, 4}}

	results, err := f.Call(context.Background(), x)
	if err != nil {
		return err
	}
	fmt.Printf("result: %v\n", results[0])
	return nil
}

// mustConstVar allocates a fresh constant local for a literal used
// inside a traced function body — the Go equivalent of writing the
// bare literal `2` directly in a fused expression.
func mustConstVar(ctx context.Context, d dtype.Dtype, v float64) *ir.Var {
	h, _ := trace.FromContext(ctx)
	c := dtype.ConstValue{Kind: d, Float: v}
	return h.FreshLocal(d, &c)
}
