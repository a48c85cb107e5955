// Package tokenizer provides the prompt-side tokenization sub-model. It
// stands in for the CLIP/T5 BPE vocabulary a real Stable Diffusion text
// encoder pairs with, using a pure-Go SentencePiece implementation so the
// module stays fully go-buildable without a tokenizer shared library.
package tokenizer

// Tokenizer encodes prompt text into token IDs ready for padding and
// windowing by the prompt encoder.
type Tokenizer interface {
	// Encode tokenizes text and returns token IDs.
	Encode(text string) ([]int64, error)
}
