// Package video adapts a single-frame diffuser into a frame sequence: run
// the selected image diffuser once per input frame, carrying the seed
// forward either fixed or jittered, and stream each decoded frame out on a
// channel as soon as it is ready. It mirrors the streaming shape of a
// chunked text-to-speech synthesis loop, one frame standing in for one
// audio chunk.
package video

import (
	"context"
	"fmt"

	"github.com/example/go-diffusionstack/internal/diffuserr"
	"github.com/example/go-diffusionstack/internal/image"
	"github.com/example/go-diffusionstack/internal/tensor"
)

// SeedPolicy selects how the per-frame seed is derived from the run's base
// seed.
type SeedPolicy int

const (
	// SeedFixed reuses the same seed for every frame.
	SeedFixed SeedPolicy = iota
	// SeedJitter adds the frame index to the base seed, +1 per frame.
	SeedJitter
)

// FrameSource yields the ordered input frames of a decoded video, plus an
// optional per-frame mask for inpaint-style video-to-video runs.
type FrameSource interface {
	// Frame returns the index-th frame, or ok=false once index is past the
	// last frame.
	Frame(index int) (pixels image.InputImage, mask *image.InputImage, ok bool)
}

// FrameDiffuser is the subset of a pipeline this adapter drives: one
// single-image generation per frame.
type FrameDiffuser interface {
	DiffuseFrame(ctx context.Context, frameIndex int, seed uint64, frame image.InputImage, mask *image.InputImage) (*tensor.Tensor, error)
}

// FrameResult is one completed frame, or the error that stopped the run.
type FrameResult struct {
	Index  int
	Seed   uint64
	Pixels *tensor.Tensor
	Err    error
}

// Options configures one video-to-video run.
type Options struct {
	BaseSeed   uint64
	SeedPolicy SeedPolicy
}

// Run drives diffuser once per frame from source, sending a FrameResult on
// out for each completed (or failed) frame in order. The channel is closed
// before Run returns; callers range over it from a separate goroutine.
func Run(ctx context.Context, source FrameSource, diffuser FrameDiffuser, opts Options, out chan<- FrameResult) error {
	defer close(out)

	if source == nil || diffuser == nil {
		return diffuserr.New(diffuserr.InvalidOptions, fmt.Errorf("video: frame source and diffuser are required"))
	}

	for index := 0; ; index++ {
		err := ctx.Err()
		if err != nil {
			return diffuserr.New(diffuserr.Cancelled, err)
		}

		frame, mask, ok := source.Frame(index)
		if !ok {
			return nil
		}

		seed := frameSeed(opts, index)

		pixels, err := diffuser.DiffuseFrame(ctx, index, seed, frame, mask)

		result := FrameResult{Index: index, Seed: seed, Pixels: pixels, Err: err}

		select {
		case out <- result:
		case <-ctx.Done():
			return diffuserr.New(diffuserr.Cancelled, ctx.Err())
		}

		if err != nil {
			return err
		}
	}
}

// frameSeed derives the seed for the given frame index under opts' policy.
func frameSeed(opts Options, index int) uint64 {
	if opts.SeedPolicy == SeedJitter {
		return opts.BaseSeed + uint64(index)
	}

	return opts.BaseSeed
}
