package onnx

import (
	"context"
	"testing"
)

type closeSpyRunner struct {
	name    string
	closed  bool
	calls   int
	outputs map[string]*Tensor
}

func (c *closeSpyRunner) Run(context.Context, map[string]*Tensor) (map[string]*Tensor, error) {
	c.calls++

	return c.outputs, nil
}

func (c *closeSpyRunner) Name() string { return c.name }

func (c *closeSpyRunner) Close() { c.closed = true }

func TestNewEngineWithRunners_CopiesInputMap(t *testing.T) {
	emb, err := NewTensor([]float32{0.1, 0.2}, []int64{1, 1, 2})
	if err != nil {
		t.Fatalf("NewTensor: %v", err)
	}

	tc := &closeSpyRunner{name: "text_encoder", outputs: map[string]*Tensor{"embeddings": emb}}

	orig := map[string]GraphRunner{"text_encoder": tc}
	e := NewEngineWithRunners(orig)

	delete(orig, "text_encoder")

	tokens, _ := NewTensor([]int64{1, 2, 3}, []int64{1, 3})
	params := NewInferenceParams().AddInputTensor("tokens", tokens)

	outputs, err := e.RunInference(context.Background(), "text_encoder", params)
	if err != nil {
		t.Fatalf("RunInference returned error after map mutation: %v", err)
	}

	if _, ok := outputs["embeddings"]; !ok {
		t.Fatal("expected 'embeddings' in output")
	}

	if tc.calls != 1 {
		t.Fatalf("expected copied runner to be called once, got %d calls", tc.calls)
	}
}

func TestEngineRunnerAndClose(t *testing.T) {
	spy := &closeSpyRunner{name: "spy"}
	real := &Runner{name: "real"}

	e := &Engine{
		runners: map[string]GraphRunner{
			"spy":  spy,
			"real": real,
		},
	}

	if _, ok := e.Runner("missing"); ok {
		t.Fatal("Runner(missing) should not exist")
	}

	if _, ok := e.Runner("spy"); ok {
		t.Fatal("Runner(spy) should return false for non-*Runner concrete type")
	}

	got, ok := e.Runner("real")
	if !ok {
		t.Fatal("Runner(real) should exist and be concrete *Runner")
	}

	if got.Name() != "real" {
		t.Fatalf("Runner(real).Name() = %q, want real", got.Name())
	}

	e.Close()

	if !spy.closed {
		t.Fatal("expected spy runner to be closed")
	}
}
