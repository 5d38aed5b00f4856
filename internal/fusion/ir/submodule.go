// Package ir holds the IR-level building blocks of a fused kernel:
// typed submodules (device functions), SSA-style CUDA variables, and
// the operation nodes that bind them together. This realizes
// components B and C of SPEC_FULL.md, plus the per-node slice of
// component G (the code emitter) — each type renders its own device
// source fragment; the phases are assembled by the trace package.
package ir

import (
	"fmt"
	"strings"

	"sentra/internal/fusion/dtype"
)

// Param is a (dtype, identifier) pair, as spec.md §3 "Submodule key"
// describes.
type Param struct {
	Dtype dtype.Dtype
	Name  string
}

// Submodule is a concrete, type-specialized instantiation of a ufunc
// overload — spec.md §4.B's `_Submodule`.
type Submodule struct {
	Name      string
	InParams  []Param
	OutParams []Param
	Op        string
	Preamble  string

	// Eval is an optional reference implementation used only by
	// internal/fusion/backend's Reference kernel, which has no real
	// CUDA compiler to hand Op to. It is nil for submodules the
	// reference evaluator does not know how to run (the kernel still
	// compiles and its Source() is still valid; only Launch degrades).
	Eval func(in []float64) []float64
}

// SubmoduleKey identifies a submodule for deduplication: spec.md §3
// requires two submodules with an equal key to emit byte-identical
// source, so the emitter deduplicates by key rather than by pointer.
type SubmoduleKey struct {
	Name   string
	Dtypes string // dtypes joined, since Go map keys can't hold slices
}

// Key returns the deduplication key for s.
func (s *Submodule) Key() SubmoduleKey {
	dtypes := make([]string, 0, len(s.InParams)+len(s.OutParams))
	for _, p := range s.InParams {
		dtypes = append(dtypes, p.Dtype.String())
	}
	for _, p := range s.OutParams {
		dtypes = append(dtypes, p.Dtype.String())
	}
	return SubmoduleKey{Name: s.Name, Dtypes: strings.Join(dtypes, ",")}
}

// allParams returns in_params followed by out_params, the order the
// device function signature and FCall argument list both use.
func (s *Submodule) allParams() []Param {
	all := make([]Param, 0, len(s.InParams)+len(s.OutParams))
	all = append(all, s.InParams...)
	all = append(all, s.OutParams...)
	return all
}

// Code renders the submodule as a `__device__` function definition,
// spec.md §4.B / §6.
func (s *Submodule) Code() (string, error) {
	params := s.allParams()
	paramDecls := make([]string, 0, len(params))
	typedefs := make([]string, 0, len(params))
	for _, p := range params {
		ct, err := dtype.CTypeOf(p.Dtype)
		if err != nil {
			return "", err
		}
		paramDecls = append(paramDecls, fmt.Sprintf("%s &%s", ct, p.Name))
		typedefs = append(typedefs, fmt.Sprintf("typedef %s %s_type;\n", ct, p.Name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "__device__ void %s(%s) {\n", s.Name, strings.Join(paramDecls, ", "))
	for _, td := range typedefs {
		b.WriteString(td)
	}
	b.WriteString(s.Op)
	b.WriteString(";\n}\n")
	return b.String(), nil
}

// FCall renders a call-site invocation of s with the given argument
// expressions.
func (s *Submodule) FCall(args []string) string {
	return fmt.Sprintf("%s(%s);\n", s.Name, strings.Join(args, ", "))
}
