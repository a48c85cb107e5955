package onnx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// SubModelState is the lifecycle of one named ONNX graph: Unloaded, Loaded,
// or back to Unloaded. Metadata remains available in every state because it
// is cached from the manifest at construction time.
type SubModelState int

const (
	StateUnloaded SubModelState = iota
	StateLoaded
)

func (s SubModelState) String() string {
	if s == StateLoaded {
		return "loaded"
	}

	return "unloaded"
}

// SubModel is a thin, independently loadable/unloadable handle around one
// ONNX graph runner. Pipelines hold one SubModel per tokenizer, text
// encoder, UNet, ControlNet, and VAE encoder/decoder so the memory-residency
// policy (minimum vs. maximum) can unload each as soon as its run is done
// without tearing down the whole Engine.
type SubModel struct {
	mu   sync.Mutex
	name string
	meta Session
	cfg  RunnerConfig

	state  SubModelState
	runner GraphRunner

	// factory constructs a fresh runner on Load. It is swappable so tests
	// can substitute a spy without touching a real ORT library.
	factory func(Session, RunnerConfig) (GraphRunner, error)
}

// NewSubModel creates an Unloaded handle for the named graph, using the
// engine's cached manifest metadata.
func NewSubModel(e *Engine, name string, cfg RunnerConfig) (*SubModel, error) {
	meta, ok := e.Metadata(name)
	if !ok {
		return nil, fmt.Errorf("onnx: sub-model %q not declared in manifest", name)
	}

	return &SubModel{
		name: name,
		meta: meta,
		cfg:  cfg,
		factory: func(meta Session, cfg RunnerConfig) (GraphRunner, error) {
			return NewRunner(meta, cfg)
		},
	}, nil
}

// Name returns the graph name.
func (s *SubModel) Name() string { return s.name }

// State reports the current lifecycle state.
func (s *SubModel) State() SubModelState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Metadata returns the cached input/output node signatures, available
// regardless of load state.
func (s *SubModel) Metadata() Session { return s.meta }

// Load creates the backing runner if not already loaded.
func (s *SubModel) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateLoaded {
		return nil
	}

	runner, err := s.factory(s.meta, s.cfg)
	if err != nil {
		return fmt.Errorf("load sub-model %q: %w", s.name, err)
	}

	s.runner = runner
	s.state = StateLoaded
	slog.Info("sub-model loaded", "name", s.name)

	return nil
}

// Unload releases the backing runner. Safe to call when already Unloaded.
func (s *SubModel) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoaded {
		return
	}

	if s.runner != nil {
		s.runner.Close()
		s.runner = nil
	}

	s.state = StateUnloaded
	slog.Info("sub-model unloaded", "name", s.name)
}

// RunInference runs the graph synchronously. It requires the handle to be
// Loaded.
func (s *SubModel) RunInference(ctx context.Context, params *InferenceParams) (map[string]*Tensor, error) {
	s.mu.Lock()
	runner := s.runner
	state := s.state
	s.mu.Unlock()

	if state != StateLoaded || runner == nil {
		return nil, fmt.Errorf("onnx: sub-model %q is not loaded", s.name)
	}

	if params == nil || len(params.inputs) == 0 {
		return nil, fmt.Errorf("onnx: sub-model %q: inference params must include at least one input", s.name)
	}

	return runner.Run(ctx, params.inputs)
}

// RunInferenceAsync runs the graph on a separate goroutine and returns a
// channel that receives exactly one result.
func (s *SubModel) RunInferenceAsync(ctx context.Context, params *InferenceParams) <-chan InferenceResult {
	out := make(chan InferenceResult, 1)

	go func() {
		outputs, err := s.RunInference(ctx, params)
		out <- InferenceResult{Outputs: outputs, Err: err}
		close(out)
	}()

	return out
}

// InferenceResult is the payload delivered on a RunInferenceAsync channel.
type InferenceResult struct {
	Outputs map[string]*Tensor
	Err     error
}
