// Package scheduler implements the discrete-time reverse diffusion solver
// family shared by every diffuser: timestep schedule construction, noise
// sigma bookkeeping, input scaling, the per-step update rule, seeded random
// latent sampling, and strength-based noising for image-conditioned runs.
package scheduler

import (
	"fmt"

	"github.com/example/go-diffusionstack/internal/tensor"
)

// Type names one of the supported solver families.
type Type string

const (
	TypeDDPM          Type = "ddpm"
	TypeDDIM          Type = "ddim"
	TypeEuler         Type = "euler"
	TypeEulerAncestral Type = "euler_ancestral"
	TypeLMS           Type = "lms"
	TypeKDPM2         Type = "kdpm2"
)

// PredictionType is what the UNet's noise_pred output represents.
type PredictionType string

const (
	PredictionEpsilon     PredictionType = "epsilon"
	PredictionVPrediction PredictionType = "v_prediction"
	PredictionSample      PredictionType = "sample"
)

// BetaSchedule selects how the betas table is spaced.
type BetaSchedule string

const (
	BetaLinear          BetaSchedule = "linear"
	BetaScaledLinear    BetaSchedule = "scaled_linear"
	BetaSquaredCosCapV2 BetaSchedule = "squaredcos_cap_v2"
)

// TimestepSpacing selects how integer timesteps are picked out of the
// trained [0, num_train_timesteps) range.
type TimestepSpacing string

const (
	SpacingLinspace TimestepSpacing = "linspace"
	SpacingLeading  TimestepSpacing = "leading"
	SpacingTrailing TimestepSpacing = "trailing"
)

// Options is the numeric recipe a scheduler is constructed from. It mirrors
// the scheduler-relevant fields of SchedulerOptions; Options values are
// never mutated after construction — a new Options is built per run.
type Options struct {
	Seed                   uint64
	NumTrainTimesteps      int
	BetaStart              float32
	BetaEnd                float32
	BetaSchedule           BetaSchedule
	PredictionType         PredictionType
	TimestepSpacing        TimestepSpacing
	TrainedBetas           []float32
	ClipSample             bool
	OriginalInferenceSteps int
}

// DefaultOptions returns the conventional Stable Diffusion v1.x recipe.
func DefaultOptions() Options {
	return Options{
		NumTrainTimesteps: 1000,
		BetaStart:         0.00085,
		BetaEnd:           0.012,
		BetaSchedule:      BetaScaledLinear,
		PredictionType:    PredictionEpsilon,
		TimestepSpacing:   SpacingLeading,
	}
}

// StepResult is the outcome of one scheduler.Step call.
type StepResult struct {
	PrevSample        *tensor.Tensor
	PredOriginalSample *tensor.Tensor
}

// Scheduler is the shared contract every solver variant implements. A
// Scheduler is created fresh per generation, mutated in place by Step, and
// dropped at generation end.
type Scheduler interface {
	// SetTimesteps computes the ordered, strictly decreasing timestep
	// sequence for inferenceSteps denoising steps. originalInferenceSteps
	// is only consulted by solvers that support a distilled/original step
	// count (LCM-style); pass 0 when not applicable.
	SetTimesteps(inferenceSteps, originalInferenceSteps int) error

	// Timesteps returns the sequence computed by SetTimesteps.
	Timesteps() []int64

	// InitNoiseSigma is the scale applied to the initial random latent.
	InitNoiseSigma() float32

	// ScaleInput scales latent for the given timestep before it is fed to
	// the UNet. Solvers that don't need scaling (DDPM, DDIM) return latent
	// unchanged.
	ScaleInput(latent *tensor.Tensor, timestep int64) (*tensor.Tensor, error)

	// Step consumes the UNet's noise prediction for the given timestep and
	// the current latent, returning the updated latent.
	Step(noisePred *tensor.Tensor, timestep int64, latent *tensor.Tensor) (StepResult, error)

	// CreateRandomSample draws a seeded standard-normal latent of shape,
	// scaled by sigma (normally InitNoiseSigma()).
	CreateRandomSample(shape []int64, sigma float32) (*tensor.Tensor, error)

	// AddNoise returns clean scaled by the schedule's signal coefficient at
	// timestep plus noise scaled by its noise coefficient, implementing the
	// strength-based img2img noising step.
	AddNoise(clean, noise *tensor.Tensor, timestep int64) (*tensor.Tensor, error)
}

// New constructs a Scheduler of the given Type.
func New(t Type, opts Options) (Scheduler, error) {
	base, err := newBase(opts)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	switch t {
	case TypeDDPM:
		return newDDPM(base), nil
	case TypeDDIM:
		return newDDIM(base), nil
	case TypeEuler:
		return newEuler(base), nil
	case TypeEulerAncestral:
		return newEulerAncestral(base), nil
	case TypeLMS:
		return newLMS(base), nil
	case TypeKDPM2:
		return newKDPM2(base), nil
	default:
		return nil, fmt.Errorf("scheduler: unsupported scheduler type %q", t)
	}
}
