package text

import "testing"

type stubTokenizer struct{}

func (stubTokenizer) Encode(text string) ([]int64, error) {
	ids := make([]int64, 0, len(text))
	for range text {
		ids = append(ids, int64(len(ids)+1))
	}

	return ids, nil
}

func TestPreparePadsToSharedLength(t *testing.T) {
	prompt, neg, err := Prepare("short", "a much longer negative prompt text", stubTokenizer{}, 77, 0)
	if err != nil {
		t.Fatal(err)
	}

	if len(prompt.TokenIDs) != len(neg.TokenIDs) {
		t.Fatalf("prompt and negative must share padded length: %d vs %d", len(prompt.TokenIDs), len(neg.TokenIDs))
	}

	if len(prompt.TokenIDs)%77 != 0 {
		t.Fatalf("padded length must be a multiple of the tokenizer limit, got %d", len(prompt.TokenIDs))
	}
}

func TestPrepareWindowsWhenOverLimit(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}

	prompt, _, err := Prepare(long, "", stubTokenizer{}, 77, 0)
	if err != nil {
		t.Fatal(err)
	}

	if prompt.Windows != 3 {
		t.Fatalf("expected 3 windows for 200 tokens over limit 77, got %d", prompt.Windows)
	}

	if len(prompt.TokenIDs) != 3*77 {
		t.Fatalf("expected padded length 231, got %d", len(prompt.TokenIDs))
	}
}

func TestPrepareShortPromptStillPadsToLimit(t *testing.T) {
	prompt, _, err := Prepare("hi", "", stubTokenizer{}, 77, 0)
	if err != nil {
		t.Fatal(err)
	}

	if prompt.Windows != 1 || len(prompt.TokenIDs) != 77 {
		t.Fatalf("expected one 77-token window, got windows=%d len=%d", prompt.Windows, len(prompt.TokenIDs))
	}
}
