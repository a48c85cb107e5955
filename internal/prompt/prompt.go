// Package prompt builds the UNet-ready embedding tensors from a prompt and
// negative prompt: tokenize, pad to a shared length, window into
// tokenizer-limit chunks when the prompt is long, run the text encoder(s),
// and concatenate for classifier-free guidance.
package prompt

import (
	"context"
	"fmt"

	"github.com/example/go-diffusionstack/internal/onnx"
	"github.com/example/go-diffusionstack/internal/tensor"
	"github.com/example/go-diffusionstack/internal/text"
	"github.com/example/go-diffusionstack/internal/tokenizer"
)

// Embeddings are the tensors a diffuser hands to the UNet on every step.
type Embeddings struct {
	// PromptEmbeds has shape [1, T, D], or [2, T, D] (negative || positive)
	// when guidance is enabled.
	PromptEmbeds *tensor.Tensor

	// PooledPromptEmbeds is present for SDXL/Cascade-style pipelines with a
	// second, pooling text encoder.
	PooledPromptEmbeds *tensor.Tensor

	// NegativePooled mirrors PooledPromptEmbeds for the negative prompt when
	// guidance is enabled.
	NegativePooled *tensor.Tensor
}

// TextEncoder is the subset of onnx.SubModel the prompt encoder calls.
type TextEncoder interface {
	RunInference(ctx context.Context, params *onnx.InferenceParams) (map[string]*onnx.Tensor, error)
}

// Encoder ties a tokenizer to one or two text encoder sub-models.
type Encoder struct {
	Tokenizer      tokenizer.Tokenizer
	TextEncoder    TextEncoder
	TextEncoder2   TextEncoder // nil for single-encoder pipelines
	TokenizerLimit int
	PadTokenID     int64
}

// Encode runs the full prompt-encoding pipeline described in the component
// design: pad, window, encode, concatenate windows, then concatenate
// negative/positive for guidance.
func (e *Encoder) Encode(ctx context.Context, promptText, negativeText string, guidance bool) (*Embeddings, error) {
	if e.Tokenizer == nil || e.TextEncoder == nil {
		return nil, fmt.Errorf("prompt: encoder is not configured")
	}

	pos, neg, err := text.Prepare(promptText, negativeText, e.Tokenizer, e.TokenizerLimit, e.PadTokenID)
	if err != nil {
		return nil, fmt.Errorf("prompt: prepare: %w", err)
	}

	posEmbed, posPooled, err := e.encodeWindowed(ctx, pos, e.TextEncoder)
	if err != nil {
		return nil, fmt.Errorf("prompt: encode positive: %w", err)
	}

	var negEmbed, negPooled *tensor.Tensor

	if guidance {
		negEmbed, negPooled, err = e.encodeWindowed(ctx, neg, e.TextEncoder)
		if err != nil {
			return nil, fmt.Errorf("prompt: encode negative: %w", err)
		}
	}

	if e.TextEncoder2 != nil {
		posEmbed2, posPooled2, err := e.encodeWindowed(ctx, pos, e.TextEncoder2)
		if err != nil {
			return nil, fmt.Errorf("prompt: encode positive (encoder 2): %w", err)
		}

		posEmbed, err = concatLastDim(posEmbed, posEmbed2)
		if err != nil {
			return nil, fmt.Errorf("prompt: concat dual-encoder positive: %w", err)
		}

		posPooled = posPooled2

		if guidance {
			negEmbed2, negPooled2, err := e.encodeWindowed(ctx, neg, e.TextEncoder2)
			if err != nil {
				return nil, fmt.Errorf("prompt: encode negative (encoder 2): %w", err)
			}

			negEmbed, err = concatLastDim(negEmbed, negEmbed2)
			if err != nil {
				return nil, fmt.Errorf("prompt: concat dual-encoder negative: %w", err)
			}

			negPooled = negPooled2
		}
	}

	embeds := posEmbed
	pooled := posPooled
	negativePooled := negPooled

	if guidance {
		embeds, err = tensor.Concatenate(negEmbed, posEmbed)
		if err != nil {
			return nil, fmt.Errorf("prompt: concat guidance batch: %w", err)
		}
	}

	return &Embeddings{
		PromptEmbeds:       embeds,
		PooledPromptEmbeds: pooled,
		NegativePooled:     negativePooled,
	}, nil
}

// encodeWindowed splits a prepared prompt into tokenizer-limit windows, runs
// the text encoder on each, and re-assembles the per-window hidden states
// along the sequence axis. The pooled output, when the encoder produces one,
// is taken from the last window, matching a CLS/EOS-pooled encoder's
// convention of pooling the final token position.
func (e *Encoder) encodeWindowed(ctx context.Context, prepared text.PreparedPrompt, enc TextEncoder) (*tensor.Tensor, *tensor.Tensor, error) {
	windows := text.Windows(prepared.TokenIDs, e.TokenizerLimit, e.PadTokenID)

	var (
		combined *onnx.Tensor
		pooled   *tensor.Tensor
	)

	for i, window := range windows {
		err := ctx.Err()
		if err != nil {
			return nil, nil, err
		}

		idsTensor, err := onnx.NewTensor(window, []int64{1, int64(len(window))})
		if err != nil {
			return nil, nil, fmt.Errorf("build input ids tensor: %w", err)
		}

		params := onnx.NewInferenceParams().AddInputTensor("input_ids", idsTensor)

		outputs, err := enc.RunInference(ctx, params)
		if err != nil {
			return nil, nil, fmt.Errorf("window %d: %w", i, err)
		}

		hidden, ok := outputs["last_hidden_state"]
		if !ok {
			return nil, nil, fmt.Errorf("window %d: text encoder produced no last_hidden_state output", i)
		}

		if combined == nil {
			combined = hidden
		} else {
			combined, err = onnx.ConcatTensorsDim1(combined, hidden)
			if err != nil {
				return nil, nil, fmt.Errorf("window %d: concat hidden states: %w", i, err)
			}
		}

		if p, ok := outputs["pooler_output"]; ok {
			data, err := onnx.ExtractFloat32(p)
			if err != nil {
				return nil, nil, fmt.Errorf("window %d: extract pooled output: %w", i, err)
			}

			pooled, err = tensor.New(data, p.Shape())
			if err != nil {
				return nil, nil, fmt.Errorf("window %d: build pooled tensor: %w", i, err)
			}
		}
	}

	data, err := onnx.ExtractFloat32(combined)
	if err != nil {
		return nil, nil, fmt.Errorf("extract combined hidden states: %w", err)
	}

	dense, err := tensor.New(data, combined.Shape())
	if err != nil {
		return nil, nil, fmt.Errorf("build combined hidden state tensor: %w", err)
	}

	return dense, pooled, nil
}

// concatLastDim joins two [1, T, D] embeddings along the feature axis,
// producing [1, T, D_a + D_b], the dual-encoder feature-concat contract.
func concatLastDim(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	at, err := onnx.NewTensor(a.RawData(), a.Shape())
	if err != nil {
		return nil, err
	}

	bt, err := onnx.NewTensor(b.RawData(), b.Shape())
	if err != nil {
		return nil, err
	}

	atT, err := transposeLastTwo(at)
	if err != nil {
		return nil, err
	}

	btT, err := transposeLastTwo(bt)
	if err != nil {
		return nil, err
	}

	catT, err := onnx.ConcatTensorsDim1(atT, btT)
	if err != nil {
		return nil, err
	}

	data, err := onnx.ExtractFloat32(catT)
	if err != nil {
		return nil, err
	}

	dense, err := tensor.New(data, catT.Shape())
	if err != nil {
		return nil, err
	}

	return dense.Transpose(1, 2)
}

// transposeLastTwo swaps the T and D axes of a [1,T,D] onnx.Tensor so
// ConcatTensorsDim1 (which joins along dim 1) can be reused to join along
// the feature axis instead of the sequence axis.
func transposeLastTwo(t *onnx.Tensor) (*onnx.Tensor, error) {
	data, err := onnx.ExtractFloat32(t)
	if err != nil {
		return nil, err
	}

	dense, err := tensor.New(data, t.Shape())
	if err != nil {
		return nil, err
	}

	swapped, err := dense.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	return onnx.NewTensor(swapped.RawData(), swapped.Shape())
}
