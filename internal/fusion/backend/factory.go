package backend

import (
	"fmt"
	"math"

	"sentra/internal/fusion/dtype"
)

// Zeros, Ones, Arange, Linspace and Reshape adapt the teacher's
// internal/dataframe.NDArray factory helpers to this package's
// dtype-tagged NDArray — the same shapes, generalized from a
// float64-only array to the one carrying the logical Dtype a fused
// kernel's signature selects on. The teacher panics on a shape/size
// mismatch; this module returns an error instead, since a CLI demo or
// facade caller is expected to handle a bad literal gracefully rather
// than crash the process.

// Zeros builds a Dtype-tagged array of the given shape filled with
// zero values.
func Zeros(d dtype.Dtype, shape ...int) *NDArray {
	size := productOf(shape)
	return &NDArray{Dtype: d, Shape: append([]int(nil), shape...), Data: make([]float64, size)}
}

// Ones builds a Dtype-tagged array of the given shape filled with 1.
func Ones(d dtype.Dtype, shape ...int) *NDArray {
	arr := Zeros(d, shape...)
	for i := range arr.Data {
		arr.Data[i] = 1
	}
	return arr
}

// Arange builds a 1-D array of evenly spaced values in [start, stop).
func Arange(d dtype.Dtype, start, stop, step float64) (*NDArray, error) {
	if step == 0 {
		return nil, fmt.Errorf("fusion: backend.Arange: step cannot be zero")
	}
	n := int(math.Ceil((stop - start) / step))
	if n < 0 {
		n = 0
	}
	data := make([]float64, n)
	for i := 0; i < n; i++ {
		data[i] = start + float64(i)*step
	}
	return &NDArray{Dtype: d, Shape: []int{n}, Data: data}, nil
}

// Linspace builds a 1-D array of num linearly spaced values spanning
// [start, stop] inclusive.
func Linspace(d dtype.Dtype, start, stop float64, num int) (*NDArray, error) {
	if num <= 0 {
		return nil, fmt.Errorf("fusion: backend.Linspace: num must be positive")
	}
	data := make([]float64, num)
	if num == 1 {
		data[0] = start
		return &NDArray{Dtype: d, Shape: []int{1}, Data: data}, nil
	}
	step := (stop - start) / float64(num-1)
	for i := 0; i < num; i++ {
		data[i] = start + float64(i)*step
	}
	return &NDArray{Dtype: d, Shape: []int{num}, Data: data}, nil
}

// Reshape returns a copy of arr with a new shape over the same
// element count, sharing no backing storage with arr.
func Reshape(arr *NDArray, shape ...int) (*NDArray, error) {
	size := productOf(shape)
	if size != arr.Size() {
		return nil, fmt.Errorf("fusion: backend.Reshape: cannot reshape array of size %d into shape %v", arr.Size(), shape)
	}
	data := make([]float64, len(arr.Data))
	copy(data, arr.Data)
	return &NDArray{Dtype: arr.Dtype, Shape: append([]int(nil), shape...), Data: data}, nil
}

func productOf(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
