package main

import (
	"testing"

	"github.com/example/go-diffusionstack/internal/config"
	"github.com/example/go-diffusionstack/internal/scheduler"
)

func TestDefaultSchedulerOptionsAppliesGenerationConfig(t *testing.T) {
	cfg := config.GenerationConfig{
		SchedulerType:  "euler_ancestral",
		InferenceSteps: 25,
		GuidanceScale:  8.5,
	}

	opts := defaultSchedulerOptions(cfg)

	if opts.InferenceSteps != 25 {
		t.Errorf("InferenceSteps = %d, want 25", opts.InferenceSteps)
	}
	if opts.GuidanceScale != 8.5 {
		t.Errorf("GuidanceScale = %v, want 8.5", opts.GuidanceScale)
	}
	if opts.SchedulerType != scheduler.Type("euler_ancestral") {
		t.Errorf("SchedulerType = %v, want euler_ancestral", opts.SchedulerType)
	}
	if opts.BetaSchedule != scheduler.BetaScaledLinear {
		t.Errorf("BetaSchedule = %v, want scaled_linear default", opts.BetaSchedule)
	}
	if opts.Height != 512 || opts.Width != 512 {
		t.Errorf("expected default 512x512, got %dx%d", opts.Height, opts.Width)
	}
}
