package tensor

import "testing"

func TestRepeat(t *testing.T) {
	x, _ := New([]float32{1, 2}, []int64{1, 2})
	out, err := Repeat(x, 2)
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if got := out.Shape(); !equalI64(got, []int64{2, 2}) {
		t.Fatalf("shape = %v, want [2 2]", got)
	}
	want := []float32{1, 2, 1, 2}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestRepeatRejectsNonPositiveCount(t *testing.T) {
	x, _ := New([]float32{1}, []int64{1, 1})
	if _, err := Repeat(x, 0); err == nil {
		t.Fatal("expected error for n=0")
	}
}

func TestConcatenate(t *testing.T) {
	a, _ := New([]float32{1, 2}, []int64{1, 2})
	b, _ := New([]float32{3, 4}, []int64{1, 2})
	out, err := Concatenate(a, b)
	if err != nil {
		t.Fatalf("concatenate: %v", err)
	}
	if got := out.Shape(); !equalI64(got, []int64{2, 2}) {
		t.Fatalf("shape = %v, want [2 2]", got)
	}
	want := []float32{1, 2, 3, 4}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestMultiplyByScalar(t *testing.T) {
	x, _ := New([]float32{1, -2, 3}, []int64{3})
	out := MultiplyByScalar(x, 2)
	want := []float32{2, -4, 6}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
	if got := x.Data(); !equalF32(got, []float32{1, -2, 3}, 0) {
		t.Fatalf("input mutated: %v", got)
	}
}

func TestAdd(t *testing.T) {
	a, _ := New([]float32{1, 2, 3}, []int64{3})
	b, _ := New([]float32{10, 20, 30}, []int64{3})
	out, err := Add(a, b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	want := []float32{11, 22, 33}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestAddRejectsMismatchedLength(t *testing.T) {
	a, _ := New([]float32{1, 2}, []int64{2})
	b, _ := New([]float32{1, 2, 3}, []int64{3})
	if _, err := Add(a, b); err == nil {
		t.Fatal("expected error for mismatched element counts")
	}
}

func TestNormalizeMinusOneToOne(t *testing.T) {
	x, _ := New([]float32{-1, 0, 1, -2, 2}, []int64{5})
	out := NormalizeMinusOneToOne(x)
	want := []float32{0, 0.5, 1, 0, 1}
	if got := out.Data(); !equalF32(got, want, 1e-6) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestToBytePixel(t *testing.T) {
	x, _ := New([]float32{0, 0.5, 1, -1, 2}, []int64{5})
	got := ToBytePixel(x)
	want := []byte{0, 128, 255, 0, 255}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
