package video

import (
	"context"
	"errors"
	"testing"

	"github.com/example/go-diffusionstack/internal/image"
	"github.com/example/go-diffusionstack/internal/tensor"
)

type fakeFrameSource struct {
	frames []image.InputImage
}

func (f *fakeFrameSource) Frame(index int) (image.InputImage, *image.InputImage, bool) {
	if index >= len(f.frames) {
		return image.InputImage{}, nil, false
	}

	return f.frames[index], nil, true
}

type fakeDiffuser struct {
	seedsSeen []uint64
	failAt    int
}

func (f *fakeDiffuser) DiffuseFrame(_ context.Context, index int, seed uint64, _ image.InputImage, _ *image.InputImage) (*tensor.Tensor, error) {
	f.seedsSeen = append(f.seedsSeen, seed)

	if f.failAt >= 0 && index == f.failAt {
		return nil, errors.New("boom")
	}

	return tensor.New([]float32{float32(index)}, []int64{1})
}

func TestRunFixedSeedAppliesToEveryFrame(t *testing.T) {
	source := &fakeFrameSource{frames: make([]image.InputImage, 3)}
	d := &fakeDiffuser{failAt: -1}
	out := make(chan FrameResult, 8)

	err := Run(context.Background(), source, d, Options{BaseSeed: 7, SeedPolicy: SeedFixed}, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var results []FrameResult
	for r := range out {
		results = append(results, r)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 frame results, got %d", len(results))
	}

	for _, r := range results {
		if r.Seed != 7 {
			t.Fatalf("expected fixed seed 7, got %d", r.Seed)
		}
	}
}

func TestRunJitterSeedIncrementsPerFrame(t *testing.T) {
	source := &fakeFrameSource{frames: make([]image.InputImage, 3)}
	d := &fakeDiffuser{failAt: -1}
	out := make(chan FrameResult, 8)

	err := Run(context.Background(), source, d, Options{BaseSeed: 10, SeedPolicy: SeedJitter}, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []uint64{10, 11, 12}
	i := 0

	for r := range out {
		if r.Seed != want[i] {
			t.Fatalf("frame %d: expected seed %d, got %d", i, want[i], r.Seed)
		}
		i++
	}

	if i != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), i)
	}
}

func TestRunStopsOnFrameError(t *testing.T) {
	source := &fakeFrameSource{frames: make([]image.InputImage, 5)}
	d := &fakeDiffuser{failAt: 2}
	out := make(chan FrameResult, 8)

	err := Run(context.Background(), source, d, Options{}, out)
	if err == nil {
		t.Fatal("expected error from failing frame")
	}

	var results []FrameResult
	for r := range out {
		results = append(results, r)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results (2 ok + 1 failure), got %d", len(results))
	}

	if results[2].Err == nil {
		t.Fatal("expected last result to carry the frame error")
	}
}

func TestRunRejectsNilCollaborators(t *testing.T) {
	out := make(chan FrameResult, 1)

	err := Run(context.Background(), nil, &fakeDiffuser{failAt: -1}, Options{}, out)
	if err == nil {
		t.Fatal("expected error for nil frame source")
	}
}

func TestRunCancelledContextStopsImmediately(t *testing.T) {
	source := &fakeFrameSource{frames: make([]image.InputImage, 3)}
	d := &fakeDiffuser{failAt: -1}
	out := make(chan FrameResult, 8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, source, d, Options{}, out)
	if err == nil {
		t.Fatal("expected cancellation error")
	}

	for range out {
	}
}
