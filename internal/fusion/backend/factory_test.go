package backend

import (
	"testing"

	"sentra/internal/fusion/dtype"
)

func TestZerosOnes(t *testing.T) {
	z := Zeros(dtype.Float64, 2, 3)
	if z.Size() != 6 {
		t.Fatalf("got size %d, want 6", z.Size())
	}
	for _, v := range z.Data {
		if v != 0 {
			t.Fatalf("Zeros produced non-zero element %v", v)
		}
	}

	o := Ones(dtype.Float64, 4)
	for _, v := range o.Data {
		if v != 1 {
			t.Fatalf("Ones produced non-one element %v", v)
		}
	}
}

func TestArangeRejectsZeroStep(t *testing.T) {
	if _, err := Arange(dtype.Float64, 0, 10, 0); err == nil {
		t.Fatal("expected an error for a zero step")
	}
}

func TestArangeAndLinspace(t *testing.T) {
	a, err := Arange(dtype.Float64, 0, 5, 1)
	if err != nil {
		t.Fatalf("Arange: %v", err)
	}
	want := []float64{0, 1, 2, 3, 4}
	for i, v := range want {
		if a.Data[i] != v {
			t.Fatalf("Arange[%d] = %v, want %v", i, a.Data[i], v)
		}
	}

	l, err := Linspace(dtype.Float64, 0, 1, 5)
	if err != nil {
		t.Fatalf("Linspace: %v", err)
	}
	if l.Data[0] != 0 || l.Data[4] != 1 {
		t.Fatalf("Linspace endpoints = %v, want 0 and 1", l.Data)
	}
}

func TestReshapeRejectsSizeMismatch(t *testing.T) {
	arr := Zeros(dtype.Float64, 2, 3)
	if _, err := Reshape(arr, 4, 4); err == nil {
		t.Fatal("expected an error for a mismatched reshape")
	}
	reshaped, err := Reshape(arr, 3, 2)
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}
	if reshaped.Size() != arr.Size() {
		t.Fatalf("reshaped size %d != original %d", reshaped.Size(), arr.Size())
	}
}
