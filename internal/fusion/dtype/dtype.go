// Package dtype implements the numeric type registry shared by every
// fusion component: the dtype enum, C-type mapping, kind scores and
// the two casting rules used when the tracer resolves a ufunc overload.
package dtype

import "fmt"

// Dtype is one member of the fixed numeric tower the fusion tracer
// understands.
type Dtype int

const (
	Bool Dtype = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float16
	Float32
	Float64
	Complex64
	Complex128

	numDtypes
)

// Canonical ascends bool, then int/uint widths, then float/complex
// widths — the same ordering CuPy's `_dtype_list` walks when building
// astype rule tables and the order this module uses to build
// homogeneous ufunc overload tables.
var Canonical = []Dtype{
	Bool,
	Int8, Int16, Int32, Int64,
	Uint8, Uint16, Uint32, Uint64,
	Float16, Float32, Float64,
	Complex64, Complex128,
}

var names = map[Dtype]string{
	Bool:       "bool",
	Int8:       "int8",
	Int16:      "int16",
	Int32:      "int32",
	Int64:      "int64",
	Uint8:      "uint8",
	Uint16:     "uint16",
	Uint32:     "uint32",
	Uint64:     "uint64",
	Float16:    "float16",
	Float32:    "float32",
	Float64:    "float64",
	Complex64:  "complex64",
	Complex128: "complex128",
}

func (d Dtype) String() string {
	if s, ok := names[d]; ok {
		return s
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

// ctypes mirrors CuPy's `_dtype_to_ctype`.
var ctypes = map[Dtype]string{
	Bool:       "bool",
	Int8:       "signed char",
	Int16:      "short",
	Int32:      "int",
	Int64:      "long long",
	Uint8:      "unsigned char",
	Uint16:     "unsigned short",
	Uint32:     "unsigned int",
	Uint64:     "unsigned long long",
	Float16:    "float16",
	Float32:    "float",
	Float64:    "double",
	Complex64:  "complex<float>",
	Complex128: "complex<double>",
}

// ErrUnknownDtype is returned (never recovered from — trace-time fatal
// per spec.md §4.A) when a Dtype value outside the fixed tower reaches
// the registry.
type ErrUnknownDtype struct{ Dtype Dtype }

func (e ErrUnknownDtype) Error() string {
	return fmt.Sprintf("fusion: unknown dtype %v", e.Dtype)
}

// CTypeOf returns the device C type used to declare variables of d.
func CTypeOf(d Dtype) (string, error) {
	c, ok := ctypes[d]
	if !ok {
		return "", ErrUnknownDtype{d}
	}
	return c, nil
}

// MustCTypeOf panics on an unknown dtype; used only where the caller
// has already validated d came from the Canonical table.
func MustCTypeOf(d Dtype) string {
	c, err := CTypeOf(d)
	if err != nil {
		panic(err)
	}
	return c
}

// kindScore mirrors CuPy's `_kind_score`: bool=0, int/uint=1, float/complex=2.
var kindScore = map[Dtype]int{
	Bool: 0,

	Int8: 1, Int16: 1, Int32: 1, Int64: 1,
	Uint8: 1, Uint16: 1, Uint32: 1, Uint64: 1,

	Float16: 2, Float32: 2, Float64: 2,
	Complex64: 2, Complex128: 2,
}

// KindScore returns the promotion-kind bucket of d.
func KindScore(d Dtype) int {
	s, ok := kindScore[d]
	if !ok {
		panic(ErrUnknownDtype{d})
	}
	return s
}

func isFloat(d Dtype) bool   { return d == Float16 || d == Float32 || d == Float64 }
func isComplex(d Dtype) bool { return d == Complex64 || d == Complex128 }
func isUint(d Dtype) bool {
	switch d {
	case Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}
func isInt(d Dtype) bool {
	switch d {
	case Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

var bitWidth = map[Dtype]int{
	Bool: 1,

	Int8: 8, Uint8: 8,
	Int16: 16, Uint16: 16, Float16: 16,
	Int32: 32, Uint32: 32, Float32: 32, Complex64: 64,
	Int64: 64, Uint64: 64, Float64: 64, Complex128: 128,
}

// realWidth is the bit width of the real (or only) component: complex64
// has float32 lanes, complex128 has float64 lanes.
func realWidth(d Dtype) int {
	switch d {
	case Complex64:
		return 32
	case Complex128:
		return 64
	default:
		return bitWidth[d]
	}
}

// CastRule selects between the two casting predicates of spec.md §4.A.
type CastRule int

const (
	Safe CastRule = iota
	SameKind
)

// CanCast reports whether a value of dtype src may be cast to dst
// under rule. It is the dtype-level predicate used for array operands
// (as opposed to CanCastScalar, used for the min-scalar rule).
func CanCast(src, dst Dtype, rule CastRule) bool {
	if src == dst {
		return true
	}
	if safeCast(src, dst) {
		return true
	}
	if rule == SameKind {
		return KindScore(src) == KindScore(dst)
	}
	return false
}

func safeCast(src, dst Dtype) bool {
	if src == Bool {
		return true
	}
	switch {
	case isInt(src) && isInt(dst):
		return bitWidth[dst] >= bitWidth[src]
	case isUint(src) && isUint(dst):
		return bitWidth[dst] >= bitWidth[src]
	case isUint(src) && isInt(dst):
		return bitWidth[dst] > bitWidth[src]
	case isInt(src) && isUint(dst):
		return false
	case (isInt(src) || isUint(src)) && isFloat(dst):
		// Conservative width-aware rule: an N-bit integer is only
		// guaranteed exactly representable in a float with a wide
		// enough mantissa; float64 is always accepted.
		if dst == Float64 {
			return true
		}
		return bitWidth[src] <= 16
	case (isInt(src) || isUint(src)) && isComplex(dst):
		if dst == Complex128 {
			return true
		}
		return bitWidth[src] <= 16
	case isFloat(src) && isFloat(dst):
		return bitWidth[dst] >= bitWidth[src]
	case isFloat(src) && isComplex(dst):
		return realWidth(dst) >= bitWidth[src]
	case isComplex(src) && isComplex(dst):
		return bitWidth[dst] >= bitWidth[src]
	default:
		return false
	}
}

// ConstValue is a known scalar literal captured at trace time: at most
// one of the fields is meaningful, selected by Kind.
type ConstValue struct {
	Kind    Dtype // the literal's own natural dtype
	Bool    bool
	Int     int64
	Uint    uint64
	Float   float64
	ImagI   float64 // imaginary part, when Kind is complex
	IsInt   bool    // for float literals: true if the value has no fractional part
	Signed  bool    // for integer literals: whether Int (true) or Uint (false) holds the value
}

// CanCastScalar implements the value-aware "min-scalar" casting check
// (CuPy's `can_cast1`): a known scalar literal casts more permissively
// than its natural dtype would under CanCast, because the concrete
// value — not just its kind — determines safety.
//
// When v is nil the scalar's value is not statically known and this
// function falls back to treating it as the zero value of srcKind, a
// deliberately unsafe simplification inherited from the original (see
// DESIGN.md, Open Question (b)): it can mis-select overloads near
// signed/unsigned range boundaries.
func CanCastScalar(v *ConstValue, srcKind Dtype, dst Dtype) bool {
	if v == nil {
		return canCastZeroOf(srcKind, dst)
	}
	switch v.Kind {
	case Bool:
		return true
	case Complex64, Complex128:
		if isComplex(dst) {
			return true
		}
		if v.ImagI != 0 {
			return false
		}
		return canCastFloatValue(v.Float, v.IsInt, dst)
	default:
		if isFloat(v.Kind) {
			return canCastFloatValue(v.Float, v.IsInt, dst)
		}
		return canCastIntValue(v, dst)
	}
}

func canCastZeroOf(srcKind Dtype, dst Dtype) bool {
	switch {
	case srcKind == Bool:
		return true
	case isFloat(srcKind) || isComplex(srcKind):
		return canCastFloatValue(0, true, dst)
	default:
		return canCastIntValue(&ConstValue{Int: 0, Signed: true}, dst)
	}
}

func canCastFloatValue(f float64, isIntValued bool, dst Dtype) bool {
	if isFloat(dst) || isComplex(dst) {
		return true
	}
	if !isIntValued {
		return false
	}
	return intFitsRange(int64(f), dst)
}

func canCastIntValue(v *ConstValue, dst Dtype) bool {
	if isFloat(dst) || isComplex(dst) {
		return true
	}
	if v.Signed {
		return intFitsRange(v.Int, dst)
	}
	return uintFitsRange(v.Uint, dst)
}

var intRanges = map[Dtype][2]int64{
	Int8:  {-128, 127},
	Int16: {-32768, 32767},
	Int32: {-2147483648, 2147483647},
	Int64: {-9223372036854775808, 9223372036854775807},
}

var uintMax = map[Dtype]uint64{
	Uint8:  1<<8 - 1,
	Uint16: 1<<16 - 1,
	Uint32: 1<<32 - 1,
	Uint64: 1<<64 - 1,
}

func intFitsRange(v int64, dst Dtype) bool {
	if r, ok := intRanges[dst]; ok {
		return v >= r[0] && v <= r[1]
	}
	if max, ok := uintMax[dst]; ok {
		if v < 0 {
			return false
		}
		return uint64(v) <= max
	}
	return false
}

func uintFitsRange(v uint64, dst Dtype) bool {
	if max, ok := uintMax[dst]; ok {
		return v <= max
	}
	if r, ok := intRanges[dst]; ok {
		return r[1] >= 0 && v <= uint64(r[1])
	}
	return false
}
