package scheduler

import "github.com/example/go-diffusionstack/internal/tensor"

// ddimScheduler implements the deterministic (eta=0) DDIM step.
type ddimScheduler struct{ *base }

func newDDIM(b *base) *ddimScheduler { return &ddimScheduler{b} }

func (d *ddimScheduler) SetTimesteps(inferenceSteps, _ int) error {
	return d.setTimesteps(inferenceSteps)
}

func (d *ddimScheduler) InitNoiseSigma() float32 { return 1.0 }

func (d *ddimScheduler) ScaleInput(latent *tensor.Tensor, _ int64) (*tensor.Tensor, error) {
	return latent.Clone(), nil
}

func (d *ddimScheduler) Step(noisePred *tensor.Tensor, timestep int64, latent *tensor.Tensor) (StepResult, error) {
	prevT := prevTimestep(d.timesteps, timestep, d.opts.NumTrainTimesteps)

	alphaProdT := d.alphaCumprodAt(timestep)
	alphaProdTPrev := d.finalAlphaCumprod
	if prevT >= 0 {
		alphaProdTPrev = d.alphaCumprodAt(prevT)
	}

	betaProdT := 1 - alphaProdT

	predOriginal, err := predictOriginalSample(d.opts.PredictionType, noisePred, latent, alphaProdT, betaProdT)
	if err != nil {
		return StepResult{}, err
	}

	if d.opts.ClipSample {
		clamp(predOriginal, -1, 1)
	}

	epsilon, err := predictEpsilon(d.opts.PredictionType, noisePred, latent, predOriginal, alphaProdT, betaProdT)
	if err != nil {
		return StepResult{}, err
	}

	direction := tensor.MultiplyByScalar(epsilon, sqrtf32(1-alphaProdTPrev))

	prev := tensor.MultiplyByScalar(predOriginal, sqrtf32(alphaProdTPrev))

	prev, err = tensor.Add(prev, direction)
	if err != nil {
		return StepResult{}, err
	}

	return StepResult{PrevSample: prev, PredOriginalSample: predOriginal}, nil
}

// predictEpsilon recovers the noise term implied by pred_original_sample,
// needed by deterministic solvers (DDIM) regardless of the model's declared
// prediction target.
func predictEpsilon(pt PredictionType, noisePred, sample, predOriginal *tensor.Tensor, alphaProdT, betaProdT float32) (*tensor.Tensor, error) {
	switch pt {
	case "", PredictionEpsilon:
		return noisePred.Clone(), nil
	case PredictionSample:
		num, err := tensor.Add(sample, tensor.MultiplyByScalar(predOriginal, -sqrtf32(alphaProdT)))
		if err != nil {
			return nil, err
		}

		return tensor.MultiplyByScalar(num, 1/sqrtf32(betaProdT)), nil
	case PredictionVPrediction:
		a := tensor.MultiplyByScalar(noisePred, sqrtf32(alphaProdT))
		b := tensor.MultiplyByScalar(sample, sqrtf32(betaProdT))

		return tensor.Add(a, b)
	default:
		return nil, errUnsupportedPredictionType(pt)
	}
}
