package text

import "fmt"

// Tokenizer is the minimal interface required by Prepare. It is satisfied
// by tokenizer.Tokenizer from the tokenizer package.
type Tokenizer interface {
	Encode(text string) ([]int64, error)
}

// PreparedPrompt holds one tokenized, padded prompt ready for the text
// encoder, alongside the window boundaries used to re-assemble a
// long-prompt's per-window embeddings back into one sequence.
type PreparedPrompt struct {
	TokenIDs []int64 // padded to a multiple of the tokenizer's window size
	Windows  int     // number of tokenizerLimit-sized windows
}

// Prepare tokenizes prompt, then pads it to the longer of prompt/negative
// so both share one sequence length, per the padding rule in the prompt
// encoder design: pad each sequence to L_max = max(len(prompt), len(neg),
// tokenizerLimit), rounded up to a whole number of tokenizerLimit windows,
// with padTokenID, then split into tokenizerLimit windows when L_max exceeds it.
func Prepare(prompt, negative string, tok Tokenizer, tokenizerLimit int, padTokenID int64) (PreparedPrompt, PreparedPrompt, error) {
	promptIDs, err := tok.Encode(prompt)
	if err != nil {
		return PreparedPrompt{}, PreparedPrompt{}, fmt.Errorf("encode prompt: %w", err)
	}

	negIDs, err := tok.Encode(negative)
	if err != nil {
		return PreparedPrompt{}, PreparedPrompt{}, fmt.Errorf("encode negative prompt: %w", err)
	}

	lMax := tokenizerLimit
	if len(promptIDs) > lMax {
		lMax = len(promptIDs)
	}

	if len(negIDs) > lMax {
		lMax = len(negIDs)
	}

	// Round up to a whole number of tokenizerLimit-sized windows so both
	// sequences chunk identically.
	windows := (lMax + tokenizerLimit - 1) / tokenizerLimit
	if windows < 1 {
		windows = 1
	}

	paddedLen := windows * tokenizerLimit

	return PreparedPrompt{
			TokenIDs: padTo(promptIDs, paddedLen, padTokenID),
			Windows:  windows,
		}, PreparedPrompt{
			TokenIDs: padTo(negIDs, paddedLen, padTokenID),
			Windows:  windows,
		}, nil
}

// padTo right-pads ids to length with padID, or truncates if ids is already
// longer (the caller ensures length is computed from the longer side, so
// truncation should not occur in practice).
func padTo(ids []int64, length int, padID int64) []int64 {
	if len(ids) >= length {
		return append([]int64(nil), ids[:length]...)
	}

	out := make([]int64, length)
	copy(out, ids)

	for i := len(ids); i < length; i++ {
		out[i] = padID
	}

	return out
}
