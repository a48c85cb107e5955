package diffuser

import (
	"context"
	"fmt"

	"github.com/example/go-diffusionstack/internal/diffuserr"
	"github.com/example/go-diffusionstack/internal/image"
	"github.com/example/go-diffusionstack/internal/onnx"
	"github.com/example/go-diffusionstack/internal/tensor"
)

// ControlNet runs a ControlNet session on every step alongside the UNet,
// feeding its side-input outputs into the UNet call.
type ControlNet struct {
	UNet       Runner
	ControlNet Runner
	VAEDecoder Runner
}

// Diffuse implements Diffuser.
func (d *ControlNet) Diffuse(ctx context.Context, req *Request) (*tensor.Tensor, error) {
	if d.UNet == nil || d.ControlNet == nil || d.VAEDecoder == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("controlnet diffuser requires unet, controlnet, and vae_decoder"))
	}

	if req.InputControlImage == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("controlnet diffuser requires an input control image"))
	}

	sched, err := newScheduler(req.Options)
	if err != nil {
		return nil, err
	}

	channels := req.SampleChannels
	if channels == 0 {
		channels = 4
	}

	latents, err := randomLatent(sched, 1, channels, req.Options.Height, req.Options.Width)
	if err != nil {
		return nil, err
	}

	controlImage, err := req.InputControlImage.GetImageTensor(req.Options.Height, req.Options.Width, image.ZeroToOne)
	if err != nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("decode control image: %w", err))
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
		BuildExtras: func(ctx context.Context, step int, t int64, scaledLatent *tensor.Tensor) (map[string]*onnx.Tensor, error) {
			return runControlNet(ctx, d.ControlNet, scaledLatent, t, req.Embeds.PromptEmbeds, controlImage, req.Options.ConditioningScale)
		},
	})
	if err != nil {
		return nil, err
	}

	return decodeLatents(ctx, d.VAEDecoder, latents, req.VAEScaleFactor)
}

// runControlNet runs the ControlNet graph and returns its side-input
// outputs keyed by their own output names, ready to merge into the UNet's
// extras map unchanged.
func runControlNet(ctx context.Context, cn Runner, scaledLatent *tensor.Tensor, t int64, embeds, controlImage *tensor.Tensor, conditioningScale float32) (map[string]*onnx.Tensor, error) {
	latentONNX, err := denseToONNX(scaledLatent)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
	}

	tTensor, err := timestepTensor(t)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
	}

	embedsONNX, err := denseToONNX(embeds)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
	}

	controlONNX, err := denseToONNX(controlImage)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
	}

	scaleONNX, err := onnx.NewTensor([]float32{conditioningScale}, []int64{1})
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
	}

	params := onnx.NewInferenceParams().
		AddInputTensor("sample", latentONNX).
		AddInputTensor("timestep", tTensor).
		AddInputTensor("encoder_hidden_states", embedsONNX).
		AddInputTensor("controlnet_cond", controlONNX).
		AddInputTensor("conditioning_scale", scaleONNX)

	outputs, err := cn.RunInference(ctx, params)
	if err != nil {
		return nil, diffuserr.New(diffuserr.InferenceFailed, fmt.Errorf("controlnet inference: %w", err))
	}

	return outputs, nil
}

// ControlNetImage composes ControlNet with ImageToImage's start-step logic:
// the latent is prepared from an input image and noised to the
// strength-selected start step, then every remaining step also runs
// ControlNet.
type ControlNetImage struct {
	UNet       Runner
	ControlNet Runner
	VAEEncoder Runner
	VAEDecoder Runner
}

// Diffuse implements Diffuser.
func (d *ControlNetImage) Diffuse(ctx context.Context, req *Request) (*tensor.Tensor, error) {
	if d.UNet == nil || d.ControlNet == nil || d.VAEEncoder == nil || d.VAEDecoder == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("controlnet+image diffuser requires unet, controlnet, vae_encoder, and vae_decoder"))
	}

	if req.InputImage == nil || req.InputControlImage == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("controlnet+image diffuser requires an input image and control image"))
	}

	sched, err := newScheduler(req.Options)
	if err != nil {
		return nil, err
	}

	latents, timesteps, err := prepareImageConditionedLatent(ctx, sched, d.VAEEncoder, req)
	if err != nil {
		return nil, err
	}

	controlImage, err := req.InputControlImage.GetImageTensor(req.Options.Height, req.Options.Width, image.ZeroToOne)
	if err != nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("decode control image: %w", err))
	}

	latents, err = runDenoiseLoop(ctx, denoiseLoopParams{
		UNet:          d.UNet,
		Scheduler:     sched,
		Timesteps:     timesteps,
		Latents:       latents,
		Embeds:        req.Embeds.PromptEmbeds,
		Guidance:      req.Options.Guidance(),
		GuidanceScale: req.Options.GuidanceScale,
		OnProgress:    req.OnProgress,
		BuildExtras: func(ctx context.Context, step int, t int64, scaledLatent *tensor.Tensor) (map[string]*onnx.Tensor, error) {
			return runControlNet(ctx, d.ControlNet, scaledLatent, t, req.Embeds.PromptEmbeds, controlImage, req.Options.ConditioningScale)
		},
	})
	if err != nil {
		return nil, err
	}

	return decodeLatents(ctx, d.VAEDecoder, latents, req.VAEScaleFactor)
}
