package diffuser

import (
	"context"
	"fmt"
	"math"

	"github.com/example/go-diffusionstack/internal/diffuserr"
	"github.com/example/go-diffusionstack/internal/scheduler"
	"github.com/example/go-diffusionstack/internal/tensor"
)

// cascadeSpatialDivisor is Stable Cascade's hand-chosen prior-latent spatial
// divisor. Preserved exactly as specified, not rounded to a cleaner power of
// two.
const cascadeSpatialDivisor = 42.67

// CascadePrior is the first of Stable Cascade's two diffuser phases: its own
// UNet produces a [1,16,ceil(H/42.67),ceil(W/42.67)] latent under DDPM, fed
// pooled+sequence embeds and a zeroed image_embeds input. It has no VAE
// decoder of its own; its output feeds CascadeDecoder via Request.PriorLatents.
type CascadePrior struct {
	UNet Runner
}

// DiffusePrior runs the prior phase and returns its raw latent (not a pixel
// tensor); the pipeline shell hands this straight to CascadeDecoder.
func (d *CascadePrior) DiffusePrior(ctx context.Context, req *Request) (*tensor.Tensor, error) {
	if d.UNet == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("cascade prior diffuser requires unet"))
	}

	priorOptions := req.Options
	priorOptions.SchedulerType = scheduler.TypeDDPM

	sched, err := newScheduler(priorOptions)
	if err != nil {
		return nil, err
	}

	priorH := int(math.Ceil(float64(req.Options.Height) / cascadeSpatialDivisor))
	priorW := int(math.Ceil(float64(req.Options.Width) / cascadeSpatialDivisor))

	shape := []int64{1, 16, int64(priorH), int64(priorW)}

	latents, err := sched.CreateRandomSample(shape, sched.InitNoiseSigma())
	if err != nil {
		return nil, diffuserr.New(diffuserr.InferenceFailed, fmt.Errorf("create prior latent: %w", err))
	}

	imageEmbeds, err := tensor.Zeros(shape)
	if err != nil {
		return nil, diffuserr.New(diffuserr.InferenceFailed, err)
	}

	staticExtras := map[string]*tensor.Tensor{"image_embeds": imageEmbeds}
	if req.Embeds.PooledPromptEmbeds != nil {
		staticExtras["clip_text_pooled"] = req.Embeds.PooledPromptEmbeds
	}

	latents, err = runDenoiseLoop(ctx, denoiseLoopParams{
		UNet:          d.UNet,
		Scheduler:     sched,
		Timesteps:     sched.Timesteps(),
		Latents:       latents,
		Embeds:        req.Embeds.PromptEmbeds,
		Guidance:      req.Options.Guidance(),
		GuidanceScale: req.Options.GuidanceScale,
		OnProgress:    req.OnProgress,
		StaticExtras:  staticExtras,
	})
	if err != nil {
		return nil, err
	}

	return latents, nil
}

// CascadeDecoder is Stable Cascade's second phase: seeds from the prior
// phase's latents (concatenated with zero when guidance is off), runs a
// second UNet fixed at InferenceSteps=10, GuidanceScale=0, and decodes via
// the VQGAN decoder to RGB.
type CascadeDecoder struct {
	UNet  Runner
	VQGAN Runner
}

// Diffuse implements Diffuser. req.PriorLatents must be set from a prior
// CascadePrior.DiffusePrior call.
func (d *CascadeDecoder) Diffuse(ctx context.Context, req *Request) (*tensor.Tensor, error) {
	if d.UNet == nil || d.VQGAN == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("cascade decoder diffuser requires unet and vqgan"))
	}

	if req.PriorLatents == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("cascade decoder requires prior-phase latents"))
	}

	decoderOptions := req.Options
	decoderOptions.InferenceSteps = 10
	decoderOptions.GuidanceScale = 0

	sched, err := newScheduler(decoderOptions)
	if err != nil {
		return nil, err
	}

	effectiveImageEmbeds := req.PriorLatents
	if !decoderOptions.Guidance() {
		zero, err := tensor.Zeros(req.PriorLatents.Shape())
		if err != nil {
			return nil, diffuserr.New(diffuserr.InferenceFailed, err)
		}

		effectiveImageEmbeds, err = tensor.Concatenate(req.PriorLatents, zero)
		if err != nil {
			return nil, diffuserr.New(diffuserr.InferenceFailed, err)
		}
	}

	channels := req.SampleChannels
	if channels == 0 {
		channels = 4
	}

	latents, err := randomLatent(sched, 1, channels, req.Options.Height, req.Options.Width)
	if err != nil {
		return nil, err
	}

	latents, err = runDenoiseLoop(ctx, denoiseLoopParams{
		UNet:          d.UNet,
		Scheduler:     sched,
		Timesteps:     sched.Timesteps(),
		Latents:       latents,
		Embeds:        req.Embeds.PromptEmbeds,
		Guidance:      decoderOptions.Guidance(),
		GuidanceScale: decoderOptions.GuidanceScale,
		OnProgress:    req.OnProgress,
		StaticExtras:  map[string]*tensor.Tensor{"image_embeds": effectiveImageEmbeds},
	})
	if err != nil {
		return nil, err
	}

	return decodeLatents(ctx, d.VQGAN, latents, req.VAEScaleFactor)
}
