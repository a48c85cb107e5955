package diffuser

import (
	"context"
	"testing"

	"github.com/example/go-diffusionstack/internal/image"
	"github.com/example/go-diffusionstack/internal/onnx"
	"github.com/example/go-diffusionstack/internal/prompt"
	"github.com/example/go-diffusionstack/internal/scheduler"
)

func TestImageInpaintBuildsNineChannelSample(t *testing.T) {
	unet := &fakeRunner{
		out: map[string]*onnx.Tensor{
			"out_sample": mustONNX(t, make([]float32, 4*8*8), []int64{1, 4, 8, 8}),
		},
	}
	encoder := newInpaintRequestEncoder(t, []int64{1, 4, 8, 8})
	decoder := &fakeRunner{
		out: map[string]*onnx.Tensor{
			"sample": mustONNX(t, make([]float32, 3*64*64), []int64{1, 3, 64, 64}),
		},
	}

	d := &ImageInpaint{UNet: unet, VAEEncoder: encoder, VAEDecoder: decoder}

	pixels := mustTensor(t, make([]float32, 3*64*64), []int64{1, 3, 64, 64})
	mask := mustTensor(t, make([]float32, 1*8*8), []int64{1, 1, 8, 8})

	req := &Request{
		Embeds:         &prompt.Embeddings{PromptEmbeds: mustTensor(t, []float32{0}, []int64{1, 1, 1})},
		InputImage:     ptrInputImage(image.FromTensor(pixels)),
		InputMask:      ptrInputImage(image.FromTensor(mask)),
		Options: SchedulerOptions{
			SchedulerType:  scheduler.TypeDDPM,
			InferenceSteps: 2,
			Height:         64,
			Width:          64,
		},
		VAEScaleFactor: 1,
	}

	if _, err := d.Diffuse(context.Background(), req); err != nil {
		t.Fatalf("Diffuse: %v", err)
	}

	if unet.calls == 0 {
		t.Fatal("expected the unet to be invoked")
	}

	sampleIn, ok := unet.params[0].Input("sample")
	if !ok {
		t.Fatal("expected unet to receive a sample input")
	}

	if got := sampleIn.Shape(); len(got) != 4 || got[1] != 9 {
		t.Fatalf("expected a 9-channel (latent||mask||masked_latent) sample, got shape %v", got)
	}

	if _, ok := unet.params[0].Input("mask"); ok {
		t.Fatal("mask must be folded into the 9-channel sample, not sent as a separate named input")
	}

	if _, ok := unet.params[0].Input("masked_image"); ok {
		t.Fatal("masked_image must be folded into the 9-channel sample, not sent as a separate named input")
	}
}
