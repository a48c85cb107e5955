package diffuser

import (
	"context"
	"fmt"

	"github.com/example/go-diffusionstack/internal/diffuserr"
	"github.com/example/go-diffusionstack/internal/image"
	"github.com/example/go-diffusionstack/internal/onnx"
	"github.com/example/go-diffusionstack/internal/tensor"
)

// ImageInpaintLegacy behaves like ImageToImage, but after every scheduler
// step it blends the denoised latent with a re-noised copy of the original
// latent using the (resized) mask, the "legacy" RePaint-style inpainting
// the component design names.
type ImageInpaintLegacy struct {
	UNet       Runner
	VAEEncoder Runner
	VAEDecoder Runner
}

// Diffuse implements Diffuser.
func (d *ImageInpaintLegacy) Diffuse(ctx context.Context, req *Request) (*tensor.Tensor, error) {
	if d.UNet == nil || d.VAEEncoder == nil || d.VAEDecoder == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("legacy inpaint diffuser requires unet, vae_encoder, and vae_decoder"))
	}

	if req.InputImage == nil || req.InputMask == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("legacy inpaint requires an input image and mask"))
	}

	sched, err := newScheduler(req.Options)
	if err != nil {
		return nil, err
	}

	latents, timesteps, err := prepareImageConditionedLatent(ctx, sched, d.VAEEncoder, req)
	if err != nil {
		return nil, err
	}

	latentShape := latents.Shape()
	if len(latentShape) != 4 {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, fmt.Errorf("expected 4D latent, got shape %v", latentShape))
	}

	mask, err := req.InputMask.GetImageTensor(int(latentShape[2]), int(latentShape[3]), image.ZeroToOne)
	if err != nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("decode mask: %w", err))
	}

	maskSingleChannel, err := mask.Narrow(1, 0, 1)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
	}

	original := latents.Clone()

	latents, err = runDenoiseLoop(ctx, denoiseLoopParams{
		UNet:          d.UNet,
		Scheduler:     sched,
		Timesteps:     timesteps,
		Latents:       latents,
		Embeds:        req.Embeds.PromptEmbeds,
		Guidance:      req.Options.Guidance(),
		GuidanceScale: req.Options.GuidanceScale,
		OnProgress:    req.OnProgress,
		PerStep: func(ctx context.Context, step int, t int64, denoised, _ *tensor.Tensor) (*tensor.Tensor, error) {
			noise, err := sched.CreateRandomSample(original.Shape(), 1)
			if err != nil {
				return nil, diffuserr.New(diffuserr.InferenceFailed, err)
			}

			reNoised, err := sched.AddNoise(original, noise, t)
			if err != nil {
				return nil, diffuserr.New(diffuserr.InferenceFailed, err)
			}

			return blendMasked(denoised, reNoised, maskSingleChannel)
		},
	})
	if err != nil {
		return nil, err
	}

	return decodeLatents(ctx, d.VAEDecoder, latents, req.VAEScaleFactor)
}

// blendMasked computes mask*denoised + (1-mask)*reNoised, broadcasting the
// single-channel mask across the latent's channel axis. Where the mask is 1
// the denoised latent is taken; where it is 0 the re-noised original latent
// is kept.
func blendMasked(denoised, reNoised, mask *tensor.Tensor) (*tensor.Tensor, error) {
	shape := denoised.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("blendMasked: expected 4D latent, got shape %v", shape)
	}

	channels := int(shape[1])
	plane := int(shape[2] * shape[3])

	denoisedData := denoised.RawData()
	reNoisedData := reNoised.RawData()
	maskData := mask.RawData()

	out := make([]float32, len(denoisedData))

	for c := range channels {
		base := c * plane

		for i := range plane {
			m := maskData[i]
			out[base+i] = m*denoisedData[base+i] + (1-m)*reNoisedData[base+i]
		}
	}

	return tensor.New(out, shape)
}

// ImageInpaint feeds the UNet a 9-channel input (latent || mask ||
// masked_latent) over the full timestep list, with no mid-step blending.
type ImageInpaint struct {
	UNet       Runner
	VAEEncoder Runner
	VAEDecoder Runner
}

// Diffuse implements Diffuser.
func (d *ImageInpaint) Diffuse(ctx context.Context, req *Request) (*tensor.Tensor, error) {
	if d.UNet == nil || d.VAEEncoder == nil || d.VAEDecoder == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("inpaint diffuser requires unet, vae_encoder, and vae_decoder"))
	}

	if req.InputImage == nil || req.InputMask == nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("inpaint requires an input image and mask"))
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

	pixels, err := req.InputImage.GetImageTensor(req.Options.Height, req.Options.Width, image.MinusOneToOne)
	if err != nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("decode input image: %w", err))
	}

	maskedLatent, err := encodeImageLatent(ctx, d.VAEEncoder, pixels, req.VAEScaleFactor)
	if err != nil {
		return nil, err
	}

	latentShape := maskedLatent.Shape()

	mask, err := req.InputMask.GetImageTensor(int(latentShape[2]), int(latentShape[3]), image.ZeroToOne)
	if err != nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("decode mask: %w", err))
	}

	maskSingleChannel, err := mask.Narrow(1, 0, 1)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
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
			batch := scaledLatent.Shape()[0]

			maskBatch := broadcastToBatch(maskSingleChannel, batch)
			maskedBatch := broadcastToBatch(maskedLatent, batch)

			fullSample, err := tensor.Concat([]*tensor.Tensor{scaledLatent, maskBatch, maskedBatch}, 1)
			if err != nil {
				return nil, diffuserr.New(diffuserr.ShapeMismatch, fmt.Errorf("concat 9-channel inpaint sample: %w", err))
			}

			sampleONNX, err := denseToONNX(fullSample)
			if err != nil {
				return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
			}

			// overrides the 4-channel "sample" runUNet already added, widening
			// it to the 9-channel (latent || mask || masked_latent) input the
			// real inpainting UNet graph declares.
			return map[string]*onnx.Tensor{
				"sample": sampleONNX,
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}

	return decodeLatents(ctx, d.VAEDecoder, latents, req.VAEScaleFactor)
}

// broadcastToBatch repeats a batch-1 tensor to match batch, used to widen
// the mask/masked-latent extras to the guidance-doubled batch the scaled
// latent carries.
func broadcastToBatch(t *tensor.Tensor, batch int64) *tensor.Tensor {
	if batch <= 1 {
		return t
	}

	out, err := tensor.Repeat(t, int(batch))
	if err != nil {
		return t
	}

	return out
}
