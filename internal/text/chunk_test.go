package text

import "testing"

func TestWindowsSplitsIntoFixedSizeChunks(t *testing.T) {
	ids := make([]int64, 154) // 2 * 77
	for i := range ids {
		ids[i] = int64(i)
	}

	windows := Windows(ids, 77, -1)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}

	for _, w := range windows {
		if len(w) != 77 {
			t.Fatalf("expected window length 77, got %d", len(w))
		}
	}
}

func TestWindowsPadsShortFinalWindow(t *testing.T) {
	ids := make([]int64, 100)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	windows := Windows(ids, 77, -1)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}

	last := windows[1]
	if len(last) != 77 {
		t.Fatalf("expected padded window length 77, got %d", len(last))
	}

	for i := 100 - 77; i < 77; i++ {
		if last[i] != -1 {
			t.Fatalf("expected pad token at %d, got %d", i, last[i])
		}
	}
}

func TestWindowsSingleWindowPassthrough(t *testing.T) {
	ids := []int64{1, 2, 3}

	windows := Windows(ids, 0, -1)
	if len(windows) != 1 || len(windows[0]) != 3 {
		t.Fatalf("expected passthrough single window, got %v", windows)
	}
}
