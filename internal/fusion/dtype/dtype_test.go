package dtype

import "testing"

func TestCanCastSafe(t *testing.T) {
	cases := []struct {
		src, dst Dtype
		want     bool
	}{
		{Bool, Int8, true},
		{Int8, Int16, true},
		{Int16, Int8, false},
		{Uint8, Int16, true},
		{Uint8, Int8, false},
		{Int8, Uint8, false},
		{Int32, Float64, true},
		{Int32, Float32, false},
		{Float32, Float64, true},
		{Float64, Float32, false},
		{Float32, Complex64, true},
		{Float64, Complex64, false},
	}
	for _, c := range cases {
		if got := CanCast(c.src, c.dst, Safe); got != c.want {
			t.Errorf("CanCast(%v, %v, Safe) = %v, want %v", c.src, c.dst, got, c.want)
		}
	}
}

func TestCanCastSameKind(t *testing.T) {
	if !CanCast(Int64, Int8, SameKind) {
		t.Error("int64 -> int8 should be allowed under same_kind")
	}
	if !CanCast(Uint64, Int8, SameKind) {
		t.Error("uint64 -> int8 should be allowed under same_kind (shared int kind score)")
	}
	if CanCast(Float64, Int32, SameKind) {
		t.Error("float64 -> int32 should not be allowed under same_kind")
	}
}

func TestCanCastScalarMinScalarRule(t *testing.T) {
	one := &ConstValue{Kind: Int64, Int: 1, Signed: true, IsInt: true}
	if !CanCastScalar(one, Int64, Int32) {
		t.Error("scalar 1 should fit int32")
	}

	oneAndHalf := &ConstValue{Kind: Float64, Float: 1.5, IsInt: false}
	if CanCastScalar(oneAndHalf, Float64, Int32) {
		t.Error("scalar 1.5 must not cast to int32")
	}
	if !CanCastScalar(oneAndHalf, Float64, Float64) {
		t.Error("scalar 1.5 must cast to float64")
	}
}

func TestCanCastScalarUnknownConstant(t *testing.T) {
	if !CanCastScalar(nil, Int32, Int64) {
		t.Error("unknown int32 scalar should cast against zero, fitting int64")
	}
}

func TestLiteralRendering(t *testing.T) {
	if got := Literal(ConstValue{Bool: true}, Bool); got != "true" {
		t.Errorf("bool literal = %q", got)
	}
	if got := Literal(ConstValue{Kind: Complex128, Float: 1, ImagI: 2}, Complex128); got != "(1, 2)" {
		t.Errorf("complex literal = %q", got)
	}
	if got := Literal(ConstValue{Signed: true, Int: 42}, Int32); got != "42" {
		t.Errorf("int literal = %q", got)
	}
}
