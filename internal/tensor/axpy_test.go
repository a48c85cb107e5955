package tensor

import "testing"

func TestAxpy(t *testing.T) {
	dst := []float32{1, 2, 3}
	src := []float32{10, 20, 30}
	Axpy(dst, 2, src)
	want := []float32{21, 42, 63}
	if !equalF32(dst, want, 0) {
		t.Fatalf("dst = %v, want %v", dst, want)
	}
}

func TestAxpyZeroAlphaNoop(t *testing.T) {
	dst := []float32{1, 2, 3}
	Axpy(dst, 0, []float32{10, 20, 30})
	want := []float32{1, 2, 3}
	if !equalF32(dst, want, 0) {
		t.Fatalf("dst = %v, want %v", dst, want)
	}
}

func TestAxpyShorterSrc(t *testing.T) {
	dst := []float32{1, 2, 3}
	Axpy(dst, 1, []float32{10})
	want := []float32{11, 2, 3}
	if !equalF32(dst, want, 0) {
		t.Fatalf("dst = %v, want %v", dst, want)
	}
}
