package tensor

import "testing"

func TestComputeStrides(t *testing.T) {
	got := computeStrides([]int64{2, 3, 4})
	want := []int64{12, 4, 1}
	if !equalI64(got, want) {
		t.Fatalf("strides = %v, want %v", got, want)
	}
}

func TestNormalizeDimNegative(t *testing.T) {
	got, err := normalizeDim(-1, 3)
	if err != nil {
		t.Fatalf("normalizeDim: %v", err)
	}
	if got != 2 {
		t.Fatalf("normalizeDim(-1, 3) = %d, want 2", got)
	}
}

func TestNormalizeDimOutOfRange(t *testing.T) {
	if _, err := normalizeDim(5, 3); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestShapeElemCountNegativeDim(t *testing.T) {
	if _, err := shapeElemCount([]int64{2, -1}); err == nil {
		t.Fatal("expected error for negative dimension")
	}
}
