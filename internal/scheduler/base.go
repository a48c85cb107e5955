package scheduler

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/example/go-diffusionstack/internal/tensor"
)

// base holds the precomputed betas/alphas table and timestep-spacing policy
// shared by every solver variant. Each concrete scheduler embeds *base and
// adds its own stepping state (derivative history, midpoint cache, ...).
type base struct {
	opts Options

	betas          []float32
	alphas         []float32
	alphasCumprod  []float32
	finalAlphaCumprod float32

	timesteps []int64
	rng       *rand.Rand
}

func newBase(opts Options) (*base, error) {
	if opts.NumTrainTimesteps <= 0 {
		opts.NumTrainTimesteps = 1000
	}

	betas, err := buildBetas(opts)
	if err != nil {
		return nil, err
	}

	alphas := make([]float32, len(betas))
	alphasCumprod := make([]float32, len(betas))

	cum := float32(1)
	for i, b := range betas {
		alphas[i] = 1 - b
		cum *= alphas[i]
		alphasCumprod[i] = cum
	}

	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}

	return &base{
		opts:              opts,
		betas:             betas,
		alphas:            alphas,
		alphasCumprod:     alphasCumprod,
		finalAlphaCumprod: alphasCumprod[0],
		rng:               rand.New(rand.NewSource(int64(seed))), //nolint:gosec // reproducibility, not security
	}, nil
}

// buildBetas constructs the betas table per opts.BetaSchedule, or returns a
// copy of opts.TrainedBetas verbatim when provided.
func buildBetas(opts Options) ([]float32, error) {
	if len(opts.TrainedBetas) > 0 {
		return append([]float32(nil), opts.TrainedBetas...), nil
	}

	n := opts.NumTrainTimesteps
	betas := make([]float32, n)

	switch opts.BetaSchedule {
	case "", BetaLinear:
		for i := 0; i < n; i++ {
			betas[i] = opts.BetaStart + (opts.BetaEnd-opts.BetaStart)*float32(i)/float32(n-1)
		}
	case BetaScaledLinear:
		startSqrt := float32(math.Sqrt(float64(opts.BetaStart)))
		endSqrt := float32(math.Sqrt(float64(opts.BetaEnd)))

		for i := 0; i < n; i++ {
			v := startSqrt + (endSqrt-startSqrt)*float32(i)/float32(n-1)
			betas[i] = v * v
		}
	case BetaSquaredCosCapV2:
		alphaBar := func(t float64) float64 {
			return math.Cos((t+0.008)/1.008*math.Pi/2) * math.Cos((t+0.008)/1.008*math.Pi/2)
		}

		const maxBeta = 0.999

		for i := 0; i < n; i++ {
			t1 := float64(i) / float64(n)
			t2 := float64(i+1) / float64(n)
			b := 1 - alphaBar(t2)/alphaBar(t1)

			if b > maxBeta {
				b = maxBeta
			}

			betas[i] = float32(b)
		}
	default:
		return nil, fmt.Errorf("unsupported beta schedule %q", opts.BetaSchedule)
	}

	return betas, nil
}

// setTimesteps resolves inferenceSteps integer timesteps from the trained
// range according to opts.TimestepSpacing, strictly decreasing.
func (b *base) setTimesteps(inferenceSteps int) error {
	if inferenceSteps < 1 {
		return fmt.Errorf("inference_steps must be >= 1, got %d", inferenceSteps)
	}

	n := b.opts.NumTrainTimesteps
	out := make([]int64, inferenceSteps)

	switch b.opts.TimestepSpacing {
	case "", SpacingLeading:
		ratio := n / inferenceSteps
		for i := 0; i < inferenceSteps; i++ {
			out[i] = int64((inferenceSteps - 1 - i) * ratio)
		}
	case SpacingTrailing:
		ratio := float64(n) / float64(inferenceSteps)
		for i := 0; i < inferenceSteps; i++ {
			step := i + 1
			out[i] = int64(n) - 1 - int64(math.Round(float64(step)*ratio-1))
		}
	case SpacingLinspace:
		if inferenceSteps == 1 {
			out[0] = int64(n - 1)
		} else {
			for i := 0; i < inferenceSteps; i++ {
				frac := float64(inferenceSteps-1-i) / float64(inferenceSteps-1)
				out[i] = int64(math.Round(frac * float64(n-1)))
			}
		}
	default:
		return fmt.Errorf("unsupported timestep spacing %q", b.opts.TimestepSpacing)
	}

	b.timesteps = out

	return nil
}

func (b *base) alphaCumprodAt(timestep int64) float32 {
	if timestep < 0 {
		return b.finalAlphaCumprod
	}

	idx := int(timestep)
	if idx >= len(b.alphasCumprod) {
		idx = len(b.alphasCumprod) - 1
	}

	return b.alphasCumprod[idx]
}

// sigmaAt is the ODE-space noise level at timestep, derived from
// alphas_cumprod: sigma = sqrt((1-a)/a).
func (b *base) sigmaAt(timestep int64) float32 {
	a := b.alphaCumprodAt(timestep)

	return float32(math.Sqrt(float64((1 - a) / a)))
}

// randomNormal draws n seeded standard-normal float32 values.
func (b *base) randomNormal(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(b.rng.NormFloat64())
	}

	return out
}

func cloneShape(t *tensor.Tensor) []int64 {
	return t.Shape()
}
