package diffuser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/go-diffusionstack/internal/diffuserr"
	"github.com/example/go-diffusionstack/internal/onnx"
	"github.com/example/go-diffusionstack/internal/scheduler"
	"github.com/example/go-diffusionstack/internal/tensor"
)

// newScheduler builds a fresh Scheduler and computes its timestep schedule,
// wrapping both the unsupported-type and the set-timesteps failure in a
// diffuserr.Error so the pipeline boundary can branch on Kind.
func newScheduler(opts SchedulerOptions) (scheduler.Scheduler, error) {
	sched, err := scheduler.New(opts.SchedulerType, opts.schedulerOptions())
	if err != nil {
		return nil, diffuserr.New(diffuserr.UnsupportedScheduler, err)
	}

	err = sched.SetTimesteps(opts.InferenceSteps, opts.OriginalInferenceSteps)
	if err != nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, err)
	}

	return sched, nil
}

// randomLatent draws the initial gaussian latent for a text-to-image run,
// scaled by the scheduler's init noise sigma.
func randomLatent(sched scheduler.Scheduler, batch, channels, height, width int) (*tensor.Tensor, error) {
	shape := []int64{int64(batch), int64(channels), int64(height) / 8, int64(width) / 8}

	latent, err := sched.CreateRandomSample(shape, sched.InitNoiseSigma())
	if err != nil {
		return nil, diffuserr.New(diffuserr.InferenceFailed, fmt.Errorf("create random latent: %w", err))
	}

	return latent, nil
}

// timestepTensor builds the scalar int64 timestep tensor a UNet graph
// expects as its second input.
func timestepTensor(t int64) (*onnx.Tensor, error) {
	return onnx.NewTensor([]int64{t}, []int64{1})
}

// denseToONNX wraps a dense tensor as a float32 ONNX input.
func denseToONNX(t *tensor.Tensor) (*onnx.Tensor, error) {
	return onnx.NewTensor(t.RawData(), t.Shape())
}

// onnxToDense converts a float32 ONNX output tensor back into a dense
// tensor.
func onnxToDense(t *onnx.Tensor) (*tensor.Tensor, error) {
	data, err := onnx.ExtractFloat32(t)
	if err != nil {
		return nil, err
	}

	return tensor.New(data, t.Shape())
}

// runUNet scales the latent for guidance if needed, runs the UNet, and
// returns the combined (or single) noise prediction tensor.
func runUNet(ctx context.Context, unet Runner, sched scheduler.Scheduler, latents *tensor.Tensor, t int64, embeds *tensor.Tensor, guidance bool, guidanceScale float32, extras map[string]*onnx.Tensor) (*tensor.Tensor, error) {
	input := latents

	if guidance {
		var err error

		input, err = tensor.Repeat(latents, 2)
		if err != nil {
			return nil, diffuserr.New(diffuserr.InferenceFailed, err)
		}
	}

	scaled, err := sched.ScaleInput(input, t)
	if err != nil {
		return nil, diffuserr.New(diffuserr.InferenceFailed, fmt.Errorf("scale input: %w", err))
	}

	latentONNX, err := denseToONNX(scaled)
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

	params := onnx.NewInferenceParams().
		AddInputTensor("sample", latentONNX).
		AddInputTensor("timestep", tTensor).
		AddInputTensor("encoder_hidden_states", embedsONNX)

	for name, value := range extras {
		params.AddInputTensor(name, value)
	}

	outputs, err := unet.RunInference(ctx, params)
	if err != nil {
		return nil, diffuserr.New(diffuserr.InferenceFailed, fmt.Errorf("unet inference: %w", err))
	}

	predONNX, ok := outputs["out_sample"]
	if !ok {
		predONNX, ok = outputs["sample"]
	}

	if !ok {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, fmt.Errorf("unet produced no recognized output tensor"))
	}

	pred, err := onnxToDense(predONNX)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
	}

	if !guidance {
		return pred, nil
	}

	return applyGuidance(pred, guidanceScale)
}

// applyGuidance splits a batch-2 noise prediction into (negative, positive)
// halves along dim 0 and linearly extrapolates: neg + w*(pos-neg).
func applyGuidance(pred *tensor.Tensor, scale float32) (*tensor.Tensor, error) {
	shape := pred.Shape()
	if len(shape) == 0 || shape[0] != 2 {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, fmt.Errorf("expected batch dim 2 for guidance, got shape %v", shape))
	}

	neg, err := pred.Narrow(0, 0, 1)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
	}

	pos, err := pred.Narrow(0, 1, 1)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
	}

	posData := pos.RawData()
	negData := neg.RawData()

	out := make([]float32, len(negData))

	for i := range out {
		out[i] = negData[i] + scale*(posData[i]-negData[i])
	}

	return tensor.New(out, neg.Shape())
}

// decodeLatents scales latents by the VAE scale factor, runs the VAE
// decoder, and normalizes its [-1,1] output into a [0,1] pixel tensor.
func decodeLatents(ctx context.Context, decoder Runner, latents *tensor.Tensor, scaleFactor float32) (*tensor.Tensor, error) {
	scaled := tensor.MultiplyByScalar(latents, scaleFactor)

	scaledONNX, err := denseToONNX(scaled)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
	}

	params := onnx.NewInferenceParams().AddInputTensor("latent_sample", scaledONNX)

	outputs, err := decoder.RunInference(ctx, params)
	if err != nil {
		return nil, diffuserr.New(diffuserr.InferenceFailed, fmt.Errorf("vae decode: %w", err))
	}

	sampleONNX, ok := outputs["sample"]
	if !ok {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, fmt.Errorf("vae decoder produced no sample output"))
	}

	sample, err := onnxToDense(sampleONNX)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
	}

	return tensor.NormalizeMinusOneToOne(sample), nil
}

// encodeImageLatent runs the VAE encoder on a pre-built pixel tensor and
// scales the result into latent space.
func encodeImageLatent(ctx context.Context, encoder Runner, pixels *tensor.Tensor, scaleFactor float32) (*tensor.Tensor, error) {
	pixelsONNX, err := denseToONNX(pixels)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
	}

	params := onnx.NewInferenceParams().AddInputTensor("sample", pixelsONNX)

	outputs, err := encoder.RunInference(ctx, params)
	if err != nil {
		return nil, diffuserr.New(diffuserr.InferenceFailed, fmt.Errorf("vae encode: %w", err))
	}

	latentONNX, ok := outputs["latent_sample"]
	if !ok {
		latentONNX, ok = outputs["sample"]
	}

	if !ok {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, fmt.Errorf("vae encoder produced no recognized output"))
	}

	latent, err := onnxToDense(latentONNX)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
	}

	return tensor.MultiplyByScalar(latent, scaleFactor), nil
}

// reportProgress invokes the caller's progress callback, swallowing and
// logging any panic so a misbehaving callback never aborts a generation.
func reportProgress(cb ProgressFunc, p Progress) {
	if cb == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("diffuser: progress callback panicked", "panic", r)
		}
	}()

	cb(p)
}

// checkCancelled returns a diffuserr.Cancelled error if ctx is done.
func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return diffuserr.New(diffuserr.Cancelled, err)
	}

	return nil
}

// denoiseLoopParams bundles the inputs shared by every step-by-step
// denoising loop, so variants differ only in what extras they build and
// what they do between steps via PerStep.
type denoiseLoopParams struct {
	UNet          Runner
	Scheduler     scheduler.Scheduler
	Timesteps     []int64
	Latents       *tensor.Tensor
	Embeds        *tensor.Tensor
	Guidance      bool
	GuidanceScale float32
	OnProgress    ProgressFunc
	BatchIndex    int

	// StaticExtras are additional named UNet inputs held constant across
	// every step (Stable Cascade's zeroed image_embeds input).
	StaticExtras map[string]*tensor.Tensor

	// BuildExtras, when non-nil, is called once per step to produce
	// additional named UNet inputs (ControlNet outputs, inpaint channels).
	BuildExtras func(ctx context.Context, step int, t int64, scaledLatent *tensor.Tensor) (map[string]*onnx.Tensor, error)

	// PerStep, when non-nil, runs after the scheduler step and may replace
	// the latent (ImageInpaintLegacy's mask blend, InstaFlow's distilled
	// velocity term).
	PerStep func(ctx context.Context, step int, t int64, latents, noisePred *tensor.Tensor) (*tensor.Tensor, error)
}

// runDenoiseLoop executes the shared outer structure from the component
// design: for each timestep, scale, predict noise, apply guidance, step the
// scheduler, run any per-step hook, and report progress.
func runDenoiseLoop(ctx context.Context, p denoiseLoopParams) (*tensor.Tensor, error) {
	latents := p.Latents
	total := len(p.Timesteps)

	for step, t := range p.Timesteps {
		err := checkCancelled(ctx)
		if err != nil {
			return nil, err
		}

		extras := make(map[string]*onnx.Tensor, len(p.StaticExtras))

		for name, value := range p.StaticExtras {
			valueONNX, err := denseToONNX(value)
			if err != nil {
				return nil, diffuserr.New(diffuserr.ShapeMismatch, err)
			}

			extras[name] = valueONNX
		}

		if p.BuildExtras != nil {
			scaled := latents
			if p.Guidance {
				scaled, err = tensor.Repeat(latents, 2)
				if err != nil {
					return nil, diffuserr.New(diffuserr.InferenceFailed, err)
				}
			}

			scaled, err = p.Scheduler.ScaleInput(scaled, t)
			if err != nil {
				return nil, diffuserr.New(diffuserr.InferenceFailed, err)
			}

			built, err := p.BuildExtras(ctx, step, t, scaled)
			if err != nil {
				return nil, err
			}

			for name, value := range built {
				extras[name] = value
			}
		}

		noisePred, err := runUNet(ctx, p.UNet, p.Scheduler, latents, t, p.Embeds, p.Guidance, p.GuidanceScale, extras)
		if err != nil {
			return nil, err
		}

		result, err := p.Scheduler.Step(noisePred, t, latents)
		if err != nil {
			return nil, diffuserr.New(diffuserr.InferenceFailed, fmt.Errorf("scheduler step: %w", err))
		}

		latents = result.PrevSample

		if p.PerStep != nil {
			latents, err = p.PerStep(ctx, step, t, latents, noisePred)
			if err != nil {
				return nil, err
			}
		}

		reportProgress(p.OnProgress, Progress{Step: step + 1, Total: total, Latent: latents, BatchIndex: p.BatchIndex})
	}

	return latents, nil
}
