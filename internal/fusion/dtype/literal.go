package dtype

import "strconv"

// Literal renders v as a C++ initializer for a variable declared with
// dtype d, matching spec.md §4.C: booleans render lowercase, complex
// literals render as a positional `(re, im)` pair, everything else
// renders as its plain numeric token.
func Literal(v ConstValue, d Dtype) string {
	if d == Bool {
		return strconv.FormatBool(v.Bool)
	}
	if isComplex(d) {
		re := v.Float
		im := v.ImagI
		if v.Kind != Complex64 && v.Kind != Complex128 {
			// real/int constant promoted into a complex slot: zero imaginary part
			re = scalarAsFloat(v)
			im = 0
		}
		return "(" + formatFloat(re) + ", " + formatFloat(im) + ")"
	}
	if isFloat(d) {
		return formatFloat(scalarAsFloat(v))
	}
	if v.Signed {
		return strconv.FormatInt(v.Int, 10)
	}
	return strconv.FormatUint(v.Uint, 10)
}

func scalarAsFloat(v ConstValue) float64 {
	switch {
	case v.Kind == Bool:
		if v.Bool {
			return 1
		}
		return 0
	case isFloat(v.Kind) || isComplex(v.Kind):
		return v.Float
	case v.Signed:
		return float64(v.Int)
	default:
		return float64(v.Uint)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
