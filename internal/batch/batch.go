// Package batch expands one base scheduler recipe into an ordered list of
// recipes varied along a single axis (seed, step count, guidance scale, or
// strength), a pure transform with no I/O.
package batch

import (
	"math"
	"math/rand/v2"
)

// Axis selects which SchedulerOptions field BatchOptions varies.
type Axis string

const (
	AxisSeed     Axis = "seed"
	AxisStep     Axis = "step"
	AxisGuidance Axis = "guidance"
	AxisStrength Axis = "strength"
)

// Options describes one axis expansion.
type Options struct {
	Axis      Axis
	Count     int     // consulted for AxisSeed
	From      float32 // consulted for AxisStep/AxisGuidance/AxisStrength
	To        float32
	Increment float32 // consulted for AxisGuidance/AxisStrength
}

// SchedulerOptions is the minimal numeric recipe batch.Generate varies. It
// mirrors the fields of the diffuser package's SchedulerOptions that are
// reachable by a batch axis; callers convert to/from their own richer type.
type SchedulerOptions struct {
	Seed           uint64
	InferenceSteps int
	GuidanceScale  float32
	Strength       float32
}

// Generate expands base into an ordered slice of recipes, each varying the
// chosen axis and carrying every other field through unchanged.
func Generate(base SchedulerOptions, opts Options) []SchedulerOptions {
	switch opts.Axis {
	case AxisSeed:
		return generateSeed(base, opts.Count)
	case AxisStep:
		return generateStep(base, opts.From, opts.To)
	case AxisGuidance:
		return generateGuidance(base, opts.From, opts.To, opts.Increment)
	case AxisStrength:
		return generateStrength(base, opts.From, opts.To, opts.Increment)
	default:
		return []SchedulerOptions{base}
	}
}

func generateSeed(base SchedulerOptions, count int) []SchedulerOptions {
	n := max(1, count)
	out := make([]SchedulerOptions, n)

	for i := range out {
		cfg := base
		cfg.Seed = rand.Uint64()
		out[i] = cfg
	}

	return out
}

func generateStep(base SchedulerOptions, from, to float32) []SchedulerOptions {
	n := max(1, int(to-from))
	out := make([]SchedulerOptions, n)

	for i := range out {
		cfg := base
		cfg.InferenceSteps = int(from) + i
		out[i] = cfg
	}

	return out
}

func generateGuidance(base SchedulerOptions, from, to, increment float32) []SchedulerOptions {
	n := countIncrements(from, to, increment)
	out := make([]SchedulerOptions, n)

	for i := range out {
		cfg := base
		cfg.GuidanceScale = from + float32(i)*increment
		out[i] = cfg
	}

	return out
}

func generateStrength(base SchedulerOptions, from, to, increment float32) []SchedulerOptions {
	n := countIncrements(from, to, increment)
	out := make([]SchedulerOptions, n)

	for i := range out {
		cfg := base
		cfg.Strength = from + float32(i)*increment
		out[i] = cfg
	}

	return out
}

func countIncrements(from, to, increment float32) int {
	if increment <= 0 {
		return 1
	}

	n := int(math.Ceil(float64((to - from) / increment)))

	return max(1, n)
}
