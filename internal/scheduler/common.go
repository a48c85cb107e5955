package scheduler

import (
	"fmt"
	"math"

	"github.com/example/go-diffusionstack/internal/tensor"
)

func sqrtf32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}

// Timesteps returns the last schedule computed by SetTimesteps.
func (b *base) Timesteps() []int64 {
	return append([]int64(nil), b.timesteps...)
}

// CreateRandomSample draws shape-sized standard-normal noise from the
// scheduler's seeded RNG and scales it by sigma. Every scheduler shares this
// implementation: reproducibility only depends on the shared RNG stream, not
// on solver-specific state.
func (b *base) CreateRandomSample(shape []int64, sigma float32) (*tensor.Tensor, error) {
	count, err := elemCount(shape)
	if err != nil {
		return nil, err
	}

	data := b.randomNormal(count)
	for i := range data {
		data[i] *= sigma
	}

	return tensor.New(data, shape)
}

// AddNoise implements the DDPM/DDIM forward process: x_t = sqrt(a_t)*x_0 +
// sqrt(1-a_t)*eps. It is shared by every scheduler because it only depends
// on alphas_cumprod, not on reverse-process state.
func (b *base) AddNoise(clean, noise *tensor.Tensor, timestep int64) (*tensor.Tensor, error) {
	a := b.alphaCumprodAt(timestep)
	sqrtA := sqrtf32(a)
	sqrtOneMinusA := sqrtf32(1 - a)

	scaledClean := scale(clean, sqrtA)
	scaledNoise := scale(noise, sqrtOneMinusA)

	return tensor.Add(scaledClean, scaledNoise)
}

func scale(t *tensor.Tensor, s float32) *tensor.Tensor {
	out := t.Clone()
	data := out.RawData()
	for i := range data {
		data[i] *= s
	}

	return out
}

func errUnsupportedPredictionType(pt PredictionType) error {
	return fmt.Errorf("scheduler: unsupported prediction type %q", pt)
}

func elemCount(shape []int64) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 1 {
			return 0, fmt.Errorf("scheduler: shape %v has non-positive dimension", shape)
		}

		n *= int(d)
	}

	return n, nil
}
