package trace

import "context"

type historyKey struct{}

// WithHistory returns a context carrying h as the active trace, the
// Go replacement for cupy's `_thread_local.history`. Only one History
// may be active per context: spec.md:123 requires a fused call made
// from inside another fused call's trace to bypass fusion entirely
// and run as a direct, intercepted part of the enclosing trace — not
// to install a second, shadowing History. That bypass is fuse.Facade's
// responsibility (it checks FromContext before calling Compile); this
// function itself has no nesting logic of its own.
func WithHistory(ctx context.Context, h *History) context.Context {
	return context.WithValue(ctx, historyKey{}, h)
}

// FromContext returns the active History, if ctx was derived from a
// WithHistory call further up the call stack.
func FromContext(ctx context.Context) (*History, bool) {
	h, ok := ctx.Value(historyKey{}).(*History)
	return h, ok
}
