package scheduler

import "github.com/example/go-diffusionstack/internal/tensor"

// eulerScheduler implements the deterministic Euler ODE step in sigma
// space (Karras et al. 2022 ancestral-free variant).
type eulerScheduler struct{ *base }

func newEuler(b *base) *eulerScheduler { return &eulerScheduler{b} }

func (e *eulerScheduler) SetTimesteps(inferenceSteps, _ int) error {
	return e.setTimesteps(inferenceSteps)
}

func (e *eulerScheduler) InitNoiseSigma() float32 {
	sigmaMax := e.sigmaAt(e.sigmaMaxTimestep())

	return sqrtf32(sigmaMax*sigmaMax + 1)
}

func (e *eulerScheduler) ScaleInput(latent *tensor.Tensor, timestep int64) (*tensor.Tensor, error) {
	sigma := e.sigmaAt(timestep)

	return tensor.MultiplyByScalar(latent, 1/sqrtf32(sigma*sigma+1)), nil
}

func (e *eulerScheduler) Step(noisePred *tensor.Tensor, timestep int64, latent *tensor.Tensor) (StepResult, error) {
	sigma := e.sigmaAt(timestep)
	sigmaNext := e.sigmaNext(timestep)

	predOriginal, err := predictOriginalSampleSigma(e.opts.PredictionType, noisePred, latent, sigma)
	if err != nil {
		return StepResult{}, err
	}

	derivative, err := eulerDerivative(latent, predOriginal, sigma)
	if err != nil {
		return StepResult{}, err
	}

	dt := sigmaNext - sigma

	prev, err := tensor.Add(latent, tensor.MultiplyByScalar(derivative, dt))
	if err != nil {
		return StepResult{}, err
	}

	return StepResult{PrevSample: prev, PredOriginalSample: predOriginal}, nil
}

// predictOriginalSampleSigma converts the UNet output to an x_0 estimate in
// sigma-space solvers, where the forward process is x_t = x_0 + sigma*eps.
func predictOriginalSampleSigma(pt PredictionType, noisePred, sample *tensor.Tensor, sigma float32) (*tensor.Tensor, error) {
	switch pt {
	case "", PredictionEpsilon:
		scaled := tensor.MultiplyByScalar(noisePred, -sigma)

		return tensor.Add(sample, scaled)
	case PredictionSample:
		return noisePred.Clone(), nil
	case PredictionVPrediction:
		c := 1 / (sigma*sigma + 1)
		a := tensor.MultiplyByScalar(sample, c)
		b := tensor.MultiplyByScalar(noisePred, -sigma*c)

		return tensor.Add(a, b)
	default:
		return nil, errUnsupportedPredictionType(pt)
	}
}

func eulerDerivative(sample, predOriginal *tensor.Tensor, sigma float32) (*tensor.Tensor, error) {
	diff, err := tensor.Add(sample, tensor.MultiplyByScalar(predOriginal, -1))
	if err != nil {
		return nil, err
	}

	if sigma == 0 {
		return diff, nil
	}

	return tensor.MultiplyByScalar(diff, 1/sigma), nil
}
