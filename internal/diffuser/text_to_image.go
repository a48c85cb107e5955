package diffuser

import (
	"context"
	"fmt"

	"github.com/example/go-diffusionstack/internal/diffuserr"
	"github.com/example/go-diffusionstack/internal/tensor"
)

// TextToImage is the baseline diffuser: a random gaussian latent denoised
// over the full timestep schedule.
type TextToImage struct {
	UNet       Runner
	VAEDecoder Runner
}

// Diffuse implements Diffuser.
func (d *TextToImage) Diffuse(ctx context.Context, req *Request) (*tensor.Tensor, error) {
	if d.UNet == nil || d.VAEDecoder == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("text-to-image diffuser requires unet and vae_decoder"))
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

	latents, err = runDenoiseLoop(ctx, denoiseLoopParams{
		UNet:          d.UNet,
		Scheduler:     sched,
		Timesteps:     sched.Timesteps(),
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
