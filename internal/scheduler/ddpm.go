package scheduler

import (
	"math"

	"github.com/example/go-diffusionstack/internal/tensor"
)

// ddpmScheduler implements full reverse-variance ancestral sampling (Ho et
// al. 2020), supporting epsilon / v-prediction / sample prediction types.
type ddpmScheduler struct{ *base }

func newDDPM(b *base) *ddpmScheduler { return &ddpmScheduler{b} }

func (d *ddpmScheduler) SetTimesteps(inferenceSteps, _ int) error {
	return d.setTimesteps(inferenceSteps)
}

func (d *ddpmScheduler) InitNoiseSigma() float32 { return 1.0 }

func (d *ddpmScheduler) ScaleInput(latent *tensor.Tensor, _ int64) (*tensor.Tensor, error) {
	return latent.Clone(), nil
}

func (d *ddpmScheduler) Step(noisePred *tensor.Tensor, timestep int64, latent *tensor.Tensor) (StepResult, error) {
	prevT := prevTimestep(d.timesteps, timestep, d.opts.NumTrainTimesteps)

	alphaProdT := d.alphaCumprodAt(timestep)
	alphaProdTPrev := d.finalAlphaCumprod
	if prevT >= 0 {
		alphaProdTPrev = d.alphaCumprodAt(prevT)
	}

	betaProdT := 1 - alphaProdT
	betaProdTPrev := 1 - alphaProdTPrev
	currentAlphaT := alphaProdT / alphaProdTPrev
	currentBetaT := 1 - currentAlphaT

	predOriginal, err := predictOriginalSample(d.opts.PredictionType, noisePred, latent, alphaProdT, betaProdT)
	if err != nil {
		return StepResult{}, err
	}

	if d.opts.ClipSample {
		clamp(predOriginal, -1, 1)
	}

	originalCoeff := sqrtf32(alphaProdTPrev) * currentBetaT / betaProdT
	sampleCoeff := sqrtf32(currentAlphaT) * betaProdTPrev / betaProdT

	prev := tensor.MultiplyByScalar(predOriginal, originalCoeff)

	sampleTerm := tensor.MultiplyByScalar(latent, sampleCoeff)

	prev, err = tensor.Add(prev, sampleTerm)
	if err != nil {
		return StepResult{}, err
	}

	if timestep > 0 {
		variance := currentBetaT * betaProdTPrev / betaProdT
		if variance < 1e-20 {
			variance = 1e-20
		}

		std := float32(math.Sqrt(float64(variance)))

		noise, err := d.CreateRandomSample(cloneShape(latent), std)
		if err != nil {
			return StepResult{}, err
		}

		prev, err = tensor.Add(prev, noise)
		if err != nil {
			return StepResult{}, err
		}
	}

	return StepResult{PrevSample: prev, PredOriginalSample: predOriginal}, nil
}

// predictOriginalSample converts the UNet's raw output into an x_0 estimate
// according to the model's declared prediction target.
func predictOriginalSample(pt PredictionType, noisePred, sample *tensor.Tensor, alphaProdT, betaProdT float32) (*tensor.Tensor, error) {
	switch pt {
	case "", PredictionEpsilon:
		sqrtAlpha := sqrtf32(alphaProdT)
		sqrtBeta := sqrtf32(betaProdT)

		scaledNoise := tensor.MultiplyByScalar(noisePred, sqrtBeta)

		num, err := tensor.Add(sample, tensor.MultiplyByScalar(scaledNoise, -1))
		if err != nil {
			return nil, err
		}

		return tensor.MultiplyByScalar(num, 1/sqrtAlpha), nil
	case PredictionSample:
		return noisePred.Clone(), nil
	case PredictionVPrediction:
		sqrtAlpha := sqrtf32(alphaProdT)
		sqrtBeta := sqrtf32(betaProdT)

		a := tensor.MultiplyByScalar(sample, sqrtAlpha)
		b := tensor.MultiplyByScalar(noisePred, sqrtBeta)

		return tensor.Add(a, tensor.MultiplyByScalar(b, -1))
	default:
		return nil, errUnsupportedPredictionType(pt)
	}
}

func clamp(t *tensor.Tensor, lo, hi float32) {
	data := t.RawData()
	for i, v := range data {
		if v < lo {
			data[i] = lo
		} else if v > hi {
			data[i] = hi
		}
	}
}

// prevTimestep returns the schedule entry that follows timestep in
// timesteps (strictly decreasing), or -1 if timestep is the last entry.
func prevTimestep(timesteps []int64, timestep int64, numTrainTimesteps int) int64 {
	for i, t := range timesteps {
		if t == timestep {
			if i+1 < len(timesteps) {
				return timesteps[i+1]
			}

			return -1
		}
	}

	// timestep not found in schedule (e.g. called outside Step's normal
	// loop): fall back to the fixed-stride estimate.
	if len(timesteps) < 2 {
		return -1
	}

	stride := timesteps[0] - timesteps[1]
	prev := timestep - stride

	if prev < 0 {
		return -1
	}

	return prev
}
