package main

import (
	"fmt"
	"path/filepath"

	"github.com/example/go-diffusionstack/internal/config"
	"github.com/example/go-diffusionstack/internal/diffuser"
	"github.com/example/go-diffusionstack/internal/modelset"
	"github.com/example/go-diffusionstack/internal/onnx"
	"github.com/example/go-diffusionstack/internal/onnxrt"
	"github.com/example/go-diffusionstack/internal/pipeline"
	"github.com/example/go-diffusionstack/internal/scheduler"
)

// buildPipeline loads the configured model set, bootstraps the ONNX runtime,
// and builds a Pipeline ready for Run/RunBatch. Every sdstack subcommand that
// actually generates pixels shares this wiring.
func buildPipeline(cfg config.Config) (*pipeline.Pipeline, error) {
	err := onnxrt.ConfigureMemoryPool(cfg.Runtime.MemoryPoolBytes)
	if err != nil {
		return nil, fmt.Errorf("configure memory pool: %w", err)
	}

	_, err = onnxrt.Bootstrap(cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("bootstrap onnx runtime: %w", err)
	}

	set, err := modelset.Load(filepath.Join(cfg.Paths.ModelSetPath, "modelset.json"))
	if err != nil {
		return nil, fmt.Errorf("load model set: %w", err)
	}

	runnerCfg := onnx.RunnerConfig{LibraryPath: cfg.Runtime.ORTLibraryPath}

	p, err := pipeline.New(set, cfg.Paths.ONNXManifest, runnerCfg, cfg.Runtime.MemoryMode)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	return p, nil
}

// defaultSchedulerOptions returns the conventional Stable Diffusion v1.x
// numeric recipe, overridden by the generation defaults in cfg. Callers
// apply their own per-run overrides to the returned value.
func defaultSchedulerOptions(cfg config.GenerationConfig) diffuser.SchedulerOptions {
	base := scheduler.DefaultOptions()

	return diffuser.SchedulerOptions{
		InferenceSteps:  cfg.InferenceSteps,
		GuidanceScale:   float32(cfg.GuidanceScale),
		Strength:        1,
		Height:          512,
		Width:           512,
		SchedulerType:   scheduler.Type(cfg.SchedulerType),
		BetaStart:       base.BetaStart,
		BetaEnd:         base.BetaEnd,
		BetaSchedule:    base.BetaSchedule,
		PredictionType:  base.PredictionType,
		TimestepSpacing: base.TimestepSpacing,
	}
}
