package scheduler

import "github.com/example/go-diffusionstack/internal/tensor"

// eulerAncestralScheduler is the Euler step with stochastic ancestral noise
// injected proportional to sigma_up.
type eulerAncestralScheduler struct{ *base }

func newEulerAncestral(b *base) *eulerAncestralScheduler { return &eulerAncestralScheduler{b} }

func (e *eulerAncestralScheduler) SetTimesteps(inferenceSteps, _ int) error {
	return e.setTimesteps(inferenceSteps)
}

func (e *eulerAncestralScheduler) InitNoiseSigma() float32 {
	sigmaMax := e.sigmaAt(e.sigmaMaxTimestep())

	return sqrtf32(sigmaMax*sigmaMax + 1)
}

func (e *eulerAncestralScheduler) ScaleInput(latent *tensor.Tensor, timestep int64) (*tensor.Tensor, error) {
	sigma := e.sigmaAt(timestep)

	return tensor.MultiplyByScalar(latent, 1/sqrtf32(sigma*sigma+1)), nil
}

func (e *eulerAncestralScheduler) Step(noisePred *tensor.Tensor, timestep int64, latent *tensor.Tensor) (StepResult, error) {
	sigma := e.sigmaAt(timestep)
	sigmaNext := e.sigmaNext(timestep)

	predOriginal, err := predictOriginalSampleSigma(e.opts.PredictionType, noisePred, latent, sigma)
	if err != nil {
		return StepResult{}, err
	}

	var sigmaUp, sigmaDown float32

	if sigmaNext == 0 {
		sigmaUp, sigmaDown = 0, 0
	} else {
		sigmaUpSq := sigmaNext * sigmaNext * (sigma*sigma - sigmaNext*sigmaNext) / (sigma * sigma)
		sigmaUp = sqrtf32(sigmaUpSq)
		sigmaDown = sqrtf32(sigmaNext*sigmaNext - sigmaUpSq)
	}

	derivative, err := eulerDerivative(latent, predOriginal, sigma)
	if err != nil {
		return StepResult{}, err
	}

	dt := sigmaDown - sigma

	prev, err := tensor.Add(latent, tensor.MultiplyByScalar(derivative, dt))
	if err != nil {
		return StepResult{}, err
	}

	if sigmaUp > 0 {
		noise, err := e.CreateRandomSample(cloneShape(latent), sigmaUp)
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
