// Package fuse implements component H of SPEC_FULL.md: the `@fuse`
// decorator's Go analogue. Facade.Call is the single entry point a
// caller uses in place of cupy's `Fusion.__call__`: on an accelerated
// signature it traces (once per signature), compiles, caches, and
// launches a fused kernel; on a host-only signature it bypasses
// fusion entirely, grounded on fusion.py's own early-return when none
// of the call's arguments are accelerator arrays.
package fuse

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"sentra/internal/errors"
	"sentra/internal/fusion/backend"
	"sentra/internal/fusion/dtype"
	"sentra/internal/fusion/trace"
)

// Store is the persistent tier a Facade may write through to —
// satisfied by cachestore.Store. It is declared here, not imported
// from cachestore, so a Facade can be built and tested without ever
// pulling in a SQL driver.
type Store interface {
	Get(ctx context.Context, key string) (source string, found bool, err error)
	Put(ctx context.Context, key, source string) error
}

// HostFunc runs the same computation as the traced UserFunc but
// directly on host values, for calls Facade.Call decides to bypass
// (spec.md §4.H "host-only arguments bypass fusion"). Go cannot run
// one function body under two incompatible value representations the
// way the original's duck-typed operators do, so the bypass path is a
// second, explicit implementation rather than a shared one.
type HostFunc func(args []interface{}) ([]interface{}, error)

type compiledKernel struct {
	plan   *trace.KernelPlan
	kernel backend.Kernel
}

// Facade is one `@fuse`-decorated function: a traced implementation,
// an optional host-only bypass, and the two-tier cache spec.md §4.H
// and §5 describe.
type Facade struct {
	name    string
	traced  trace.UserFunc
	host    HostFunc
	backend backend.Backend
	store   Store

	memo  sync.Map // signature string -> *compiledKernel
	group singleflight.Group
}

// Option configures a Facade at construction time.
type Option func(*Facade)

// WithHost attaches the bypass implementation for host-only calls.
func WithHost(h HostFunc) Option { return func(f *Facade) { f.host = h } }

// WithStore attaches the persistent cache tier.
func WithStore(s Store) Option { return func(f *Facade) { f.store = s } }

// WithBackend overrides the default Reference backend — used to point
// a Facade at backend.Remote instead.
func WithBackend(b backend.Backend) Option { return func(f *Facade) { f.backend = b } }

// New builds a Facade. If name is empty, one is derived from fn's own
// Go function name plus a short uuid suffix, keeping emitted
// `__device__` symbol names collision-free across facades wrapping
// closures that share a base name (spec.md's `name` parameter is
// generalized this way, since Go closures are frequently anonymous).
func New(name string, fn trace.UserFunc, opts ...Option) *Facade {
	if name == "" {
		name = deriveName(fn)
	}
	f := &Facade{name: name, traced: fn, backend: backend.NewReference()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func deriveName(fn trace.UserFunc) string {
	pc := reflect.ValueOf(fn).Pointer()
	base := "fused"
	if fnInfo := runtime.FuncForPC(pc); fnInfo != nil {
		full := fnInfo.Name()
		if i := strings.LastIndex(full, "."); i >= 0 {
			full = full[i+1:]
		}
		full = strings.TrimSuffix(full, "-fm")
		if full != "" {
			base = full
		}
	}
	return base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Call dispatches one invocation. spec.md:123's nested-fusion bypass
// takes priority over everything else: if ctx already carries an
// active trace (this call happens inside another fused function's
// traced body), run f.traced directly against that same trace so its
// inner ufuncs are themselves intercepted by the enclosing History,
// instead of installing a second History or compiling/launching a
// kernel (fusion.py's `if hasattr(_thread_local, 'history'): return
// self.func(*args)`). Otherwise, host-only argument sets (anything
// that is not an *backend.NDArray or dtype.ConstValue) bypass fusion
// outright; everything else traces, caches, and launches per
// signature.
func (f *Facade) Call(ctx context.Context, args ...interface{}) ([]interface{}, error) {
	if _, active := trace.FromContext(ctx); active {
		return f.callNested(ctx, args)
	}
	if !allAccelerated(args) {
		if f.host == nil {
			return nil, errors.NewNotImplementedError(fmt.Sprintf("%s received host-only arguments but has no bypass implementation", f.name))
		}
		return f.host(args)
	}

	values := make([]backend.Value, len(args))
	params := make([]trace.ParamInfo, len(args))
	for i, a := range args {
		v := a.(backend.Value)
		values[i] = v
		params[i] = paramInfoOf(v)
	}

	key := signatureKey(f.name, params)

	if ck, ok := f.memo.Load(key); ok {
		return f.launch(ctx, ck.(*compiledKernel), values)
	}

	result, err, _ := f.group.Do(key, func() (interface{}, error) {
		if ck, ok := f.memo.Load(key); ok {
			return ck, nil
		}
		ck, err := f.compile(ctx, key, params)
		if err != nil {
			return nil, err
		}
		f.memo.Store(key, ck)
		return ck, nil
	})
	if err != nil {
		return nil, err
	}
	return f.launch(ctx, result.(*compiledKernel), values)
}

// callNested runs the traced function body directly against ctx's
// already-active History, the bypass spec.md:123 mandates. Its
// arguments must already be trace.Operand values belonging to that
// same History — the shadows an enclosing fused function built them
// from — and its results are returned the same way, so the caller's
// shadow layer can keep wrapping them.
func (f *Facade) callNested(ctx context.Context, args []interface{}) ([]interface{}, error) {
	operands := make([]trace.Operand, len(args))
	for i, a := range args {
		op, ok := a.(trace.Operand)
		if !ok {
			return nil, errors.NewTypeError(fmt.Sprintf("%s: nested call requires traced operand arguments, got %T", f.name, a))
		}
		operands[i] = op
	}
	rawOuts, err := f.traced(ctx, operands)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, len(rawOuts))
	for i, o := range rawOuts {
		if o == nil {
			continue
		}
		out[i] = *o
	}
	return out, nil
}

func (f *Facade) compile(ctx context.Context, key string, params []trace.ParamInfo) (*compiledKernel, error) {
	if f.store != nil {
		if _, found, err := f.store.Get(ctx, key); err == nil && found {
			// A real GPU backend could rehydrate a Kernel straight from
			// the cached source text; backend.Backend (spec.md §6) has
			// no such constructor, and this module's own Reference
			// backend must still walk the structured IR to evaluate a
			// kernel, so a persistent hit still requires a retrace. The
			// store mainly serves as a cross-process audit trail here.
		}
	}

	h := trace.NewHistory()
	plan, err := h.Compile(ctx, f.traced, params, f.name)
	if err != nil {
		return nil, errors.NewFusionRuntimeError(fmt.Sprintf("%s: compile failed", f.name)).Wrap(err)
	}

	var kernel backend.Kernel
	switch {
	case plan.Reduction != nil:
		kernel, err = f.backend.NewReduction(*plan.Reduction)
	case plan.Elementwise != nil:
		kernel, err = f.backend.NewElementwise(*plan.Elementwise)
	default:
		return nil, errors.NewFusionRuntimeError(fmt.Sprintf("%s produced no launchable kernel", f.name))
	}
	if err != nil {
		return nil, err
	}

	if f.store != nil {
		_ = f.store.Put(ctx, key, kernel.Source())
	}

	return &compiledKernel{plan: plan, kernel: kernel}, nil
}

func (f *Facade) launch(ctx context.Context, ck *compiledKernel, values []backend.Value) ([]interface{}, error) {
	results, err := ck.kernel.Launch(ctx, values...)
	if err != nil {
		return nil, err
	}
	if ck.plan.NoReturn {
		return nil, nil
	}
	out := make([]interface{}, len(results))
	for i, r := range results {
		nd := -1
		if i < len(ck.plan.OutNDims) {
			nd = ck.plan.OutNDims[i]
		}
		out[i] = reconcileRank(r, nd)
	}
	return out, nil
}

// reconcileRank re-wraps a launch result at the rank the trace
// recorded for it: a Reference-backend reduction to a single element
// collapses to a scalar even when the traced return value was
// logically an array, and vice versa, so Call's output always matches
// what the traced function actually returned.
func reconcileRank(v backend.Value, ndim int) backend.Value {
	switch x := v.(type) {
	case dtype.ConstValue:
		if ndim >= 0 {
			return &backend.NDArray{Dtype: x.Kind, Shape: []int{1}, Data: []float64{constAsFloat(x)}}
		}
		return x
	case *backend.NDArray:
		if ndim < 0 && x.Size() == 1 {
			return scalarOf(x)
		}
		return x
	default:
		return v
	}
}

func scalarOf(x *backend.NDArray) dtype.ConstValue {
	f := x.Data[0]
	switch x.Dtype {
	case dtype.Bool:
		return dtype.ConstValue{Kind: x.Dtype, Bool: f != 0}
	case dtype.Float32, dtype.Float64:
		return dtype.ConstValue{Kind: x.Dtype, Float: f}
	default:
		return dtype.ConstValue{Kind: x.Dtype, IsInt: true, Signed: true, Int: int64(f)}
	}
}

func constAsFloat(c dtype.ConstValue) float64 {
	switch {
	case c.IsInt && c.Signed:
		return float64(c.Int)
	case c.IsInt:
		return float64(c.Uint)
	case c.Kind == dtype.Bool:
		if c.Bool {
			return 1
		}
		return 0
	default:
		return c.Float
	}
}

func allAccelerated(args []interface{}) bool {
	for _, a := range args {
		switch a.(type) {
		case *backend.NDArray, dtype.ConstValue:
		default:
			return false
		}
	}
	return true
}

func paramInfoOf(v backend.Value) trace.ParamInfo {
	switch x := v.(type) {
	case *backend.NDArray:
		return trace.ParamInfo{Dtype: x.Dtype, NDim: len(x.Shape)}
	case dtype.ConstValue:
		return trace.ParamInfo{Dtype: x.Kind, NDim: -1}
	default:
		return trace.ParamInfo{}
	}
}

// signatureKey is the cache key spec.md §3/§5 describes as "the
// argument signature (dtype, rank) tuple" — human-readable for
// humanize-backed diagnostics and stable across repeated calls with
// the same shape of arguments.
func signatureKey(name string, params []trace.ParamInfo) string {
	var b strings.Builder
	b.WriteString(name)
	for _, p := range params {
		fmt.Fprintf(&b, "|%s:%d", p.Dtype, p.NDim)
	}
	return b.String()
}

// CacheReport is a human-readable diagnostic of the in-memory tier's
// current size, using the same humanize formatting the teacher's own
// CLI output favors for byte counts and record counts.
func (f *Facade) CacheReport() string {
	n := 0
	f.memo.Range(func(_, _ interface{}) bool { n++; return true })
	return fmt.Sprintf("%s: %s cached kernel variant(s)", f.name, humanize.Comma(int64(n)))
}
