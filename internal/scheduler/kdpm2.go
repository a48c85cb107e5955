package scheduler

import (
	"math"

	"github.com/example/go-diffusionstack/internal/tensor"
)

// kdpm2Scheduler implements the midpoint-style (Heun) second-order step:
// each nominal timestep is split into a coarse Euler half-step to an
// interpolated midpoint sigma, followed by a correction step that averages
// the derivative evaluated at the original sample with the derivative
// evaluated at the midpoint. This doubles the number of UNet evaluations
// per nominal step, so Timesteps() returns 2*inferenceSteps-1 entries
// (the final nominal step has no successor to interpolate against) instead
// of inferenceSteps — callers drive it through the same scale_input / unet
// / step loop as every other scheduler, just over a longer sequence.
type kdpm2Scheduler struct {
	*base

	sigmas    []float32
	coarseTs  []int64 // one entry per nominal step, length inferenceSteps
	combined  []int64 // interleaved coarse/midpoint timesteps, what Timesteps() returns
	combinedSigmas []float32

	stage          int // 0: expect coarse call next, 1: expect midpoint call next
	origSample     *tensor.Tensor
	origSigma      float32
	derivative1    *tensor.Tensor
	nextCoarseSigma float32
}

func newKDPM2(b *base) *kdpm2Scheduler { return &kdpm2Scheduler{base: b} }

func (k *kdpm2Scheduler) SetTimesteps(inferenceSteps, _ int) error {
	if err := k.setTimesteps(inferenceSteps); err != nil {
		return err
	}

	k.coarseTs = k.timesteps

	n := len(k.coarseTs)

	sigmas := make([]float32, n+1)
	for i, t := range k.coarseTs {
		sigmas[i] = k.sigmaAt(t)
	}
	// sigmas[n] stays 0.
	k.sigmas = sigmas

	if n < 2 {
		k.combined = append([]int64(nil), k.coarseTs...)
		k.combinedSigmas = append([]float32(nil), sigmas...)
		k.stage = 0

		return nil
	}

	combined := make([]int64, 0, 2*n-1)
	combinedSigmas := make([]float32, 0, 2*n-1)

	for i := 0; i < n-1; i++ {
		combined = append(combined, k.coarseTs[i])
		combinedSigmas = append(combinedSigmas, sigmas[i])

		midSigma := logMidpoint(sigmas[i], sigmas[i+1])
		midTimestep := (k.coarseTs[i] + k.coarseTs[i+1]) / 2

		combined = append(combined, midTimestep)
		combinedSigmas = append(combinedSigmas, midSigma)
	}

	combined = append(combined, k.coarseTs[n-1])
	combinedSigmas = append(combinedSigmas, sigmas[n-1])

	k.combined = combined
	k.combinedSigmas = combinedSigmas
	k.stage = 0

	return nil
}

// Timesteps returns the doubled coarse/midpoint sequence consumed by the
// outer diffuser loop.
func (k *kdpm2Scheduler) Timesteps() []int64 {
	return append([]int64(nil), k.combined...)
}

func (k *kdpm2Scheduler) InitNoiseSigma() float32 {
	sigmaMax := k.sigmaAt(k.sigmaMaxTimestep())

	return sqrtf32(sigmaMax*sigmaMax + 1)
}

func (k *kdpm2Scheduler) ScaleInput(latent *tensor.Tensor, timestep int64) (*tensor.Tensor, error) {
	sigma := k.combinedSigma(timestep)

	return tensor.MultiplyByScalar(latent, 1/sqrtf32(sigma*sigma+1)), nil
}

func (k *kdpm2Scheduler) combinedSigma(timestep int64) float32 {
	idx := sigmaIndex(k.combined, timestep)
	if idx < len(k.combinedSigmas) {
		return k.combinedSigmas[idx]
	}

	return k.sigmaAt(timestep)
}

func (k *kdpm2Scheduler) Step(noisePred *tensor.Tensor, timestep int64, latent *tensor.Tensor) (StepResult, error) {
	idx := sigmaIndex(k.combined, timestep)
	sigma := k.combinedSigmas[idx]

	predOriginal, err := predictOriginalSampleSigma(k.opts.PredictionType, noisePred, latent, sigma)
	if err != nil {
		return StepResult{}, err
	}

	if k.stage == 0 {
		derivative, err := eulerDerivative(latent, predOriginal, sigma)
		if err != nil {
			return StepResult{}, err
		}

		var midSigma float32
		if idx+1 < len(k.combinedSigmas) {
			midSigma = k.combinedSigmas[idx+1]
		}

		nextCoarse := float32(0)
		if idx+2 < len(k.combinedSigmas) {
			nextCoarse = k.combinedSigmas[idx+2]
		}

		prev, err := tensor.Add(latent, tensor.MultiplyByScalar(derivative, midSigma-sigma))
		if err != nil {
			return StepResult{}, err
		}

		k.origSample = latent.Clone()
		k.origSigma = sigma
		k.derivative1 = derivative
		k.nextCoarseSigma = nextCoarse
		k.stage = 1

		return StepResult{PrevSample: prev, PredOriginalSample: predOriginal}, nil
	}

	derivative2, err := eulerDerivative(latent, predOriginal, sigma)
	if err != nil {
		return StepResult{}, err
	}

	avgDerivative, err := tensor.Add(tensor.MultiplyByScalar(k.derivative1, 0.5), tensor.MultiplyByScalar(derivative2, 0.5))
	if err != nil {
		return StepResult{}, err
	}

	prev, err := tensor.Add(k.origSample, tensor.MultiplyByScalar(avgDerivative, k.nextCoarseSigma-k.origSigma))
	if err != nil {
		return StepResult{}, err
	}

	k.stage = 0

	return StepResult{PrevSample: prev, PredOriginalSample: predOriginal}, nil
}

// logMidpoint interpolates two sigmas at their geometric mean (their
// midpoint in log-sigma space), the conventional KDPM2 interpolation.
func logMidpoint(a, b float32) float32 {
	if a <= 0 || b <= 0 {
		return (a + b) / 2
	}

	return float32(math.Exp((math.Log(float64(a)) + math.Log(float64(b))) / 2))
}
