package diffuser

import (
	"context"
	"testing"

	"github.com/example/go-diffusionstack/internal/onnx"
	"github.com/example/go-diffusionstack/internal/prompt"
	"github.com/example/go-diffusionstack/internal/scheduler"
)

func TestCascadePriorFeedsSequenceAndPooledEmbeds(t *testing.T) {
	unet := &fakeRunner{
		out: map[string]*onnx.Tensor{
			"out_sample": mustONNX(t, make([]float32, 16), []int64{1, 16, 1, 1}),
		},
	}

	seq := mustTensor(t, []float32{1, 2}, []int64{1, 1, 2})
	pooled := mustTensor(t, []float32{3, 4}, []int64{1, 1, 2})

	d := &CascadePrior{UNet: unet}

	req := &Request{
		Embeds: &prompt.Embeddings{PromptEmbeds: seq, PooledPromptEmbeds: pooled},
		Options: SchedulerOptions{
			SchedulerType:  scheduler.TypeDDPM,
			InferenceSteps: 2,
			Height:         8,
			Width:          8,
		},
	}

	if _, err := d.DiffusePrior(context.Background(), req); err != nil {
		t.Fatalf("DiffusePrior: %v", err)
	}

	if unet.calls == 0 {
		t.Fatal("expected the prior unet to be invoked")
	}

	encoderHidden, ok := unet.params[0].Input("encoder_hidden_states")
	if !ok {
		t.Fatal("expected encoder_hidden_states to carry the sequence embeds")
	}

	if got := encoderHidden.Shape(); got[1] != seq.Shape()[1] || got[2] != seq.Shape()[2] {
		t.Fatalf("expected encoder_hidden_states shape to match the sequence embeds, got %v want %v", got, seq.Shape())
	}

	pooledIn, ok := unet.params[0].Input("clip_text_pooled")
	if !ok {
		t.Fatal("expected a separate clip_text_pooled input carrying the pooled embeds")
	}

	if got := pooledIn.Shape(); got[1] != pooled.Shape()[1] || got[2] != pooled.Shape()[2] {
		t.Fatalf("expected clip_text_pooled shape to match the pooled embeds, got %v want %v", got, pooled.Shape())
	}
}

func TestCascadePriorOmitsPooledInputWhenAbsent(t *testing.T) {
	unet := &fakeRunner{
		out: map[string]*onnx.Tensor{
			"out_sample": mustONNX(t, make([]float32, 16), []int64{1, 16, 1, 1}),
		},
	}

	seq := mustTensor(t, []float32{1, 2}, []int64{1, 1, 2})

	d := &CascadePrior{UNet: unet}

	req := &Request{
		Embeds: &prompt.Embeddings{PromptEmbeds: seq},
		Options: SchedulerOptions{
			SchedulerType:  scheduler.TypeDDPM,
			InferenceSteps: 2,
			Height:         8,
			Width:          8,
		},
	}

	if _, err := d.DiffusePrior(context.Background(), req); err != nil {
		t.Fatalf("DiffusePrior: %v", err)
	}

	if _, ok := unet.params[0].Input("clip_text_pooled"); ok {
		t.Fatal("expected no clip_text_pooled input when pooled embeds are absent")
	}
}
