// Package diffuser implements the per-task denoising loops: latent
// preparation, guidance composition, scheduler stepping, optional
// ControlNet side-input, and VAE decode. Each variant implements the shared
// Diffuser contract; the pipeline shell selects one by DiffuserType.
package diffuser

import (
	"context"

	"github.com/example/go-diffusionstack/internal/image"
	"github.com/example/go-diffusionstack/internal/onnx"
	"github.com/example/go-diffusionstack/internal/prompt"
	"github.com/example/go-diffusionstack/internal/scheduler"
	"github.com/example/go-diffusionstack/internal/tensor"
)

// Type selects a diffuser variant.
type Type string

const (
	TypeTextToImage        Type = "text_to_image"
	TypeImageToImage       Type = "image_to_image"
	TypeImageInpaint       Type = "image_inpaint"
	TypeImageInpaintLegacy Type = "image_inpaint_legacy"
	TypeControlNet         Type = "controlnet"
	TypeControlNetImage    Type = "controlnet_image"
	TypeInstaFlow          Type = "insta_flow"
	TypeCascadePrior       Type = "cascade_prior"
	TypeCascadeDecoder     Type = "cascade_decoder"
	TypeVideoToVideo       Type = "video_to_video"
)

// Runner is the subset of onnx.SubModel every diffuser calls: synchronous
// inference on a loaded graph. UNet, ControlNet, and the VAE encoder/decoder
// all satisfy it.
type Runner interface {
	RunInference(ctx context.Context, params *onnx.InferenceParams) (map[string]*onnx.Tensor, error)
}

// SchedulerOptions is the immutable numeric recipe for one generation. A new
// value is built per run; batch expansion produces fresh copies with one
// field varied.
type SchedulerOptions struct {
	Seed                   uint64
	InferenceSteps         int
	GuidanceScale          float32
	Strength               float32
	Height                 int
	Width                  int
	SchedulerType          scheduler.Type
	BetaStart              float32
	BetaEnd                float32
	BetaSchedule           scheduler.BetaSchedule
	PredictionType         scheduler.PredictionType
	TimestepSpacing        scheduler.TimestepSpacing
	ConditioningScale      float32
	OriginalInferenceSteps int
	TrainedBetas           []float32
}

// Guidance reports whether classifier-free guidance is enabled.
func (o SchedulerOptions) Guidance() bool {
	return o.GuidanceScale > 1
}

func (o SchedulerOptions) schedulerOptions() scheduler.Options {
	return scheduler.Options{
		Seed:                   o.Seed,
		NumTrainTimesteps:      1000,
		BetaStart:              o.BetaStart,
		BetaEnd:                o.BetaEnd,
		BetaSchedule:           o.BetaSchedule,
		PredictionType:         o.PredictionType,
		TimestepSpacing:        o.TimestepSpacing,
		TrainedBetas:           o.TrainedBetas,
		OriginalInferenceSteps: o.OriginalInferenceSteps,
	}
}

// Progress is reported after every scheduler step.
type Progress struct {
	Step       int
	Total      int
	Latent     *tensor.Tensor // optional intermediate snapshot
	BatchIndex int
}

// ProgressFunc receives one Progress event per completed step. It must never
// block; a panic it raises is recovered and logged by the diffuser and does
// not abort the generation.
type ProgressFunc func(Progress)

// Request bundles everything one Diffuse call needs: the prompt embeddings,
// the numeric recipe, and optional image/mask/control conditioning.
type Request struct {
	Embeds            *prompt.Embeddings
	Options           SchedulerOptions
	InputImage        *image.InputImage
	InputMask         *image.InputImage
	InputControlImage *image.InputImage
	VAEScaleFactor    float32 // e.g. 1/0.18215
	SampleChannels    int     // latent channel count, e.g. 4
	OnProgress        ProgressFunc

	// PriorLatents carries Stable Cascade's prior-phase output into the
	// decoder phase. Unused by every other variant.
	PriorLatents *tensor.Tensor
}

// Diffuser is the shared contract every per-task control loop implements.
type Diffuser interface {
	// Diffuse runs the full denoising loop and returns a [1,3,H,W] pixel
	// tensor in [0,1].
	Diffuse(ctx context.Context, req *Request) (*tensor.Tensor, error)
}
