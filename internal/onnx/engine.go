package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Engine manages ONNX graph runners loaded from a manifest. Each named graph
// corresponds to one sub-model handle in the diffusion pipeline: a tokenizer,
// a text encoder, a UNet, a VAE encoder/decoder, or an optional ControlNet.
type Engine struct {
	runners map[string]GraphRunner
	sm      *SessionManager

	manifestPath string
}

// NewEngine loads the ONNX manifest and creates a Runner for each graph.
func NewEngine(manifestPath string, cfg RunnerConfig) (*Engine, error) {
	sm, err := NewSessionManager(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	runners := make(map[string]GraphRunner, len(sm.Sessions()))
	for _, sess := range sm.Sessions() {
		runner, err := NewRunner(sess, cfg)
		if err != nil {
			for _, r := range runners {
				r.Close()
			}

			return nil, fmt.Errorf("create runner %q: %w", sess.Name, err)
		}

		runners[sess.Name] = runner
		slog.Info("created ONNX runner", "graph", sess.Name)
	}

	return &Engine{
		runners:      runners,
		sm:           sm,
		manifestPath: manifestPath,
	}, nil
}

// Runner returns the named graph runner, if it exists.
func (e *Engine) Runner(name string) (*Runner, bool) {
	r, ok := e.runners[name]
	if !ok {
		return nil, false
	}

	concrete, ok := r.(*Runner)

	return concrete, ok
}

// HasGraph reports whether a graph with the given name was loaded from the
// manifest. Pipelines use this to check optional sub-models (ControlNet,
// a second text encoder) before attempting to run them.
func (e *Engine) HasGraph(name string) bool {
	_, ok := e.runners[name]

	return ok
}

// Metadata returns the declared input/output node shapes for the named
// graph, as recorded in the manifest.
func (e *Engine) Metadata(name string) (Session, bool) {
	if e.sm == nil {
		return Session{}, false
	}

	return e.sm.Session(name)
}

// Close releases all ORT resources.
func (e *Engine) Close() {
	for _, r := range e.runners {
		r.Close()
	}
}

// RunInference executes the named graph with the inputs accumulated in
// params and returns its outputs. It is the concrete implementation behind
// every sub-model's run_inference contract; each output tensor is returned
// exactly once and is the caller's responsibility to consume.
func (e *Engine) RunInference(ctx context.Context, graph string, params *InferenceParams) (map[string]*Tensor, error) {
	runner, ok := e.runners[graph]
	if !ok {
		return nil, fmt.Errorf("onnx: graph %q not found in manifest", graph)
	}

	if params == nil || len(params.inputs) == 0 {
		return nil, errors.New("onnx: inference params must include at least one input tensor")
	}

	outputs, err := runner.Run(ctx, params.inputs)
	if err != nil {
		return nil, fmt.Errorf("onnx: run %q: %w", graph, err)
	}

	return outputs, nil
}

// InferenceParams builds the named input tensors for one RunInference call.
// It mirrors the OnnxInferenceParameters builder: add_input_tensor and
// add_input populate named inputs; add_output_buffer is a no-op placeholder
// here because the purego ORT binding allocates outputs itself, but the
// method is kept so callers written against the builder contract compile
// unchanged against a future backend that pre-allocates buffers.
type InferenceParams struct {
	inputs map[string]*Tensor
}

// NewInferenceParams creates an empty parameter builder.
func NewInferenceParams() *InferenceParams {
	return &InferenceParams{inputs: make(map[string]*Tensor)}
}

// AddInputTensor adds a tensor under its own graph input name.
func (p *InferenceParams) AddInputTensor(name string, t *Tensor) *InferenceParams {
	p.inputs[name] = t

	return p
}

// AddInput is an alias for AddInputTensor kept for parity with the builder
// contract's add_input(named_value) form.
func (p *InferenceParams) AddInput(name string, t *Tensor) *InferenceParams {
	return p.AddInputTensor(name, t)
}

// Input returns the tensor previously added under name, if any. A GraphRunner
// fake can use this to assert on what a caller actually built without the
// params type leaking its internal map.
func (p *InferenceParams) Input(name string) (*Tensor, bool) {
	t, ok := p.inputs[name]
	return t, ok
}

// AddOutputBuffer is a no-op: the ORT binding allocates its own outputs.
// Kept so pipeline code can request pre-allocated buffers without branching
// on backend.
func (p *InferenceParams) AddOutputBuffer(string, []int64) *InferenceParams {
	return p
}
