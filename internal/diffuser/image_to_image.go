package diffuser

import (
	"context"
	"fmt"

	"github.com/example/go-diffusionstack/internal/diffuserr"
	"github.com/example/go-diffusionstack/internal/image"
	"github.com/example/go-diffusionstack/internal/tensor"
)

// ImageToImage encodes an input image into a clean latent, noises it to the
// strength-selected start step, and denoises only the remaining timesteps.
type ImageToImage struct {
	UNet       Runner
	VAEEncoder Runner
	VAEDecoder Runner
}

// Diffuse implements Diffuser.
func (d *ImageToImage) Diffuse(ctx context.Context, req *Request) (*tensor.Tensor, error) {
	if d.UNet == nil || d.VAEEncoder == nil || d.VAEDecoder == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("image-to-image diffuser requires unet, vae_encoder, and vae_decoder"))
	}

	if req.InputImage == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("image-to-image requires an input image"))
	}

	sched, err := newScheduler(req.Options)
	if err != nil {
		return nil, err
	}

	latents, timesteps, err := prepareImageConditionedLatent(ctx, sched, d.VAEEncoder, req)
	if err != nil {
		return nil, err
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
	})
	if err != nil {
		return nil, err
	}

	return decodeLatents(ctx, d.VAEDecoder, latents, req.VAEScaleFactor)
}

// prepareImageConditionedLatent implements the shared ImageToImage start:
// encode the input image, scale into latent space, noise it to the
// strength-selected start step, and return only the remaining timesteps.
func prepareImageConditionedLatent(ctx context.Context, sched interface {
	Timesteps() []int64
	AddNoise(clean, noise *tensor.Tensor, t int64) (*tensor.Tensor, error)
	InitNoiseSigma() float32
	CreateRandomSample(shape []int64, sigma float32) (*tensor.Tensor, error)
}, encoder Runner, req *Request,
) (*tensor.Tensor, []int64, error) {
	pixels, err := req.InputImage.GetImageTensor(req.Options.Height, req.Options.Width, image.MinusOneToOne)
	if err != nil {
		return nil, nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("decode input image: %w", err))
	}

	clean, err := encodeImageLatent(ctx, encoder, pixels, req.VAEScaleFactor)
	if err != nil {
		return nil, nil, err
	}

	timesteps := sched.Timesteps()
	steps := len(timesteps)

	strength := req.Options.Strength
	if strength <= 0 || strength > 1 {
		strength = 1
	}

	tStart := steps - int(float32(steps)*strength)
	if tStart < 0 {
		tStart = 0
	}

	if tStart >= steps {
		return clean, nil, nil
	}

	remaining := timesteps[tStart:]

	noise, err := sched.CreateRandomSample(clean.Shape(), 1)
	if err != nil {
		return nil, nil, diffuserr.New(diffuserr.InferenceFailed, fmt.Errorf("sample noise: %w", err))
	}

	noisy, err := sched.AddNoise(clean, noise, remaining[0])
	if err != nil {
		return nil, nil, diffuserr.New(diffuserr.InferenceFailed, fmt.Errorf("add noise: %w", err))
	}

	return noisy, remaining, nil
}
