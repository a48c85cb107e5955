// Package pipeline is the shell that ties a loaded StableDiffusionModelSet,
// its sub-model handles, and a chosen diffuser/scheduler pair into the two
// operations a caller actually wants: run one generation, or run a batch.
// It owns sub-model load/unload timing and serializes access to the shared
// ONNX sessions, mirroring the teacher's Service/VoiceManager split between
// synthesis orchestration and resource lookup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/example/go-diffusionstack/internal/batch"
	"github.com/example/go-diffusionstack/internal/config"
	"github.com/example/go-diffusionstack/internal/diffuser"
	"github.com/example/go-diffusionstack/internal/diffuserr"
	"github.com/example/go-diffusionstack/internal/image"
	"github.com/example/go-diffusionstack/internal/modelset"
	"github.com/example/go-diffusionstack/internal/onnx"
	"github.com/example/go-diffusionstack/internal/prompt"
	"github.com/example/go-diffusionstack/internal/tensor"
	"github.com/example/go-diffusionstack/internal/tokenizer"
)

// subModelKeys names the onnx manifest graphs a pipeline may hold, keyed
// identically to the graph names an onnx manifest declares and to the
// modelset.SubModelPaths field each one resolves from. Tokenizer is handled
// separately since it is not an ONNX graph.
var subModelKeys = []string{
	"text_encoder", "text_encoder_2", "unet", "unet_prior",
	"controlnet", "vae_encoder", "vae_decoder",
}

// Pipeline constructs and runs diffusers against one loaded model set. It is
// safe for concurrent Run/RunBatch calls; all share the same underlying ONNX
// sessions, serialized by an internal mutex since a single ORT session
// handle is not safe for concurrent Run calls.
type Pipeline struct {
	set        *modelset.StableDiffusionModelSet
	tokenizer  tokenizer.Tokenizer
	subModels  map[string]*onnx.SubModel
	memoryMode string

	mu sync.Mutex
}

// New builds a Pipeline from a loaded model set and an ONNX manifest
// describing the same sub-model graphs by name. It briefly constructs an
// Engine to read each graph's cached metadata, then builds independently
// loadable SubModel handles and closes the borrowed Engine, since the
// pipeline's own load/unload policy — not the Engine's eager-load-everything
// behavior — governs sub-model residency from here on.
func New(set *modelset.StableDiffusionModelSet, onnxManifestPath string, cfg onnx.RunnerConfig, memoryMode string) (*Pipeline, error) {
	if set == nil {
		return nil, errors.New("pipeline: model set is required")
	}

	tokenizerPath, err := set.ResolvePath(set.SubModels.Tokenizer)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ModelLoadFailed, fmt.Errorf("resolve tokenizer: %w", err))
	}

	tok, err := tokenizer.NewSentencePieceTokenizer(tokenizerPath)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ModelLoadFailed, fmt.Errorf("init tokenizer: %w", err))
	}

	engine, err := onnx.NewEngine(onnxManifestPath, cfg)
	if err != nil {
		return nil, diffuserr.New(diffuserr.ModelLoadFailed, fmt.Errorf("init onnx engine: %w", err))
	}
	defer engine.Close()

	subModels := make(map[string]*onnx.SubModel, len(subModelKeys))

	for _, key := range subModelKeys {
		path := subModelPath(set, key)
		if path == "" {
			continue
		}

		if !engine.HasGraph(key) {
			return nil, diffuserr.New(diffuserr.ModelLoadFailed, fmt.Errorf("onnx manifest has no graph %q declared by the model set", key))
		}

		sm, err := onnx.NewSubModel(engine, key, cfg)
		if err != nil {
			return nil, diffuserr.New(diffuserr.ModelLoadFailed, fmt.Errorf("build sub-model handle %q: %w", key, err))
		}

		subModels[key] = sm
	}

	mode, err := config.NormalizeMemoryMode(memoryMode)
	if err != nil {
		return nil, diffuserr.New(diffuserr.InvalidOptions, err)
	}

	return &Pipeline{
		set:        set,
		tokenizer:  tok,
		subModels:  subModels,
		memoryMode: mode,
	}, nil
}

// subModelPath returns the configured path for a SubModelPaths field by its
// manifest key, or "" when not declared.
func subModelPath(set *modelset.StableDiffusionModelSet, key string) string {
	switch key {
	case "text_encoder":
		return set.SubModels.TextEncoder
	case "text_encoder_2":
		return set.SubModels.TextEncoder2
	case "unet":
		return set.SubModels.UNet
	case "unet_prior":
		return set.SubModels.UNetPrior
	case "controlnet":
		return set.SubModels.ControlNet
	case "vae_encoder":
		return set.SubModels.VAEEncoder
	case "vae_decoder":
		return set.SubModels.VAEDecoder
	default:
		return ""
	}
}

// Close releases every loaded sub-model's ORT resources.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sm := range p.subModels {
		sm.Unload()
	}
}

// Request is everything one Pipeline.Run call needs beyond the pipeline's
// own configuration.
type Request struct {
	Prompt            string
	NegativePrompt    string
	DiffuserType      diffuser.Type
	Options           diffuser.SchedulerOptions
	InputImage        *image.InputImage
	InputMask         *image.InputImage
	InputControlImage *image.InputImage
	OnProgress        diffuser.ProgressFunc
}

// Result is one completed generation's output, including the seed actually
// used after zero-seed substitution.
type Result struct {
	Pixels *tensor.Tensor
	Seed   uint64
}

// Run validates req against the model set's declared capabilities,
// resolves a concrete diffuser, loads the sub-models it needs, runs it, and
// unloads them again under MemoryModeMinimum.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.set.SupportsDiffuser(req.DiffuserType) {
		return Result{}, diffuserr.Newf(diffuserr.UnsupportedDiffuser, "model set %q does not support diffuser %q", p.set.Name, req.DiffuserType)
	}

	if !p.set.SupportsScheduler(req.Options.SchedulerType) {
		return Result{}, diffuserr.Newf(diffuserr.UnsupportedScheduler, "model set %q does not support scheduler %q", p.set.Name, req.Options.SchedulerType)
	}

	if req.Options.Seed == 0 {
		req.Options.Seed = rand.Uint64()
	}

	keys := requiredSubModels(req.DiffuserType, p.set)

	err := p.loadAll(keys)
	if err != nil {
		return Result{}, err
	}

	if p.memoryMode == config.MemoryModeMinimum {
		defer p.unloadAll(keys)
	}

	embeds, err := p.encodePrompt(ctx, req)
	if err != nil {
		return Result{}, err
	}

	dReq := &diffuser.Request{
		Embeds:            embeds,
		Options:           req.Options,
		InputImage:        req.InputImage,
		InputMask:         req.InputMask,
		InputControlImage: req.InputControlImage,
		VAEScaleFactor:    p.set.ScaleFactor,
		SampleChannels:    4,
		OnProgress:        req.OnProgress,
	}

	pixels, err := p.diffuse(ctx, req.DiffuserType, dReq)
	if err != nil {
		return Result{}, err
	}

	return Result{Pixels: pixels, Seed: req.Options.Seed}, nil
}

// encodePrompt builds a prompt.Encoder over this pipeline's tokenizer and
// text encoder sub-models and runs it for req.
func (p *Pipeline) encodePrompt(ctx context.Context, req Request) (*prompt.Embeddings, error) {
	enc := &prompt.Encoder{
		Tokenizer:      p.tokenizer,
		TextEncoder:    p.subModels["text_encoder"],
		TokenizerLimit: p.set.TokenizerLimit,
		PadTokenID:     p.set.PadTokenID,
	}

	if sm, ok := p.subModels["text_encoder_2"]; ok {
		enc.TextEncoder2 = sm
	}

	embeds, err := enc.Encode(ctx, req.Prompt, req.NegativePrompt, req.Options.Guidance())
	if err != nil {
		return nil, diffuserr.New(diffuserr.InferenceFailed, err)
	}

	return embeds, nil
}

// diffuse dispatches to the concrete Diffuser implementation for t, wiring
// in the sub-model runners it declares. Stable Cascade is the one type that
// composes two diffuser phases rather than running a single Diffuse call.
func (p *Pipeline) diffuse(ctx context.Context, t diffuser.Type, req *diffuser.Request) (*tensor.Tensor, error) {
	switch t {
	case diffuser.TypeTextToImage:
		d := &diffuser.TextToImage{UNet: p.subModels["unet"], VAEDecoder: p.subModels["vae_decoder"]}
		return d.Diffuse(ctx, req)

	case diffuser.TypeImageToImage:
		d := &diffuser.ImageToImage{UNet: p.subModels["unet"], VAEEncoder: p.subModels["vae_encoder"], VAEDecoder: p.subModels["vae_decoder"]}
		return d.Diffuse(ctx, req)

	case diffuser.TypeImageInpaintLegacy:
		d := &diffuser.ImageInpaintLegacy{UNet: p.subModels["unet"], VAEEncoder: p.subModels["vae_encoder"], VAEDecoder: p.subModels["vae_decoder"]}
		return d.Diffuse(ctx, req)

	case diffuser.TypeImageInpaint:
		d := &diffuser.ImageInpaint{UNet: p.subModels["unet"], VAEEncoder: p.subModels["vae_encoder"], VAEDecoder: p.subModels["vae_decoder"]}
		return d.Diffuse(ctx, req)

	case diffuser.TypeControlNet:
		d := &diffuser.ControlNet{UNet: p.subModels["unet"], ControlNet: p.subModels["controlnet"], VAEDecoder: p.subModels["vae_decoder"]}
		return d.Diffuse(ctx, req)

	case diffuser.TypeControlNetImage:
		d := &diffuser.ControlNetImage{UNet: p.subModels["unet"], ControlNet: p.subModels["controlnet"], VAEEncoder: p.subModels["vae_encoder"], VAEDecoder: p.subModels["vae_decoder"]}
		return d.Diffuse(ctx, req)

	case diffuser.TypeInstaFlow:
		d := &diffuser.InstaFlow{UNet: p.subModels["unet"], VAEDecoder: p.subModels["vae_decoder"]}
		return d.Diffuse(ctx, req)

	case diffuser.TypeCascadeDecoder:
		return p.diffuseCascade(ctx, req)

	default:
		return nil, diffuserr.Newf(diffuserr.UnsupportedDiffuser, "no diffuser implementation for %q", t)
	}
}

// diffuseCascade runs Stable Cascade's two-phase generation: the prior UNet
// produces a low-resolution latent, which feeds the decoder UNet + VQGAN.
func (p *Pipeline) diffuseCascade(ctx context.Context, req *diffuser.Request) (*tensor.Tensor, error) {
	prior := &diffuser.CascadePrior{UNet: p.subModels["unet_prior"]}

	priorLatents, err := prior.DiffusePrior(ctx, req)
	if err != nil {
		return nil, err
	}

	decoderReq := *req
	decoderReq.PriorLatents = priorLatents

	decoder := &diffuser.CascadeDecoder{UNet: p.subModels["unet"], VQGAN: p.subModels["vae_decoder"]}

	return decoder.Diffuse(ctx, &decoderReq)
}

// requiredSubModels lists the sub-model keys a given diffuser type needs,
// plus text_encoder, and text_encoder_2 when the set declares a second
// encoder. The keys are not filtered against the set; loadAll rejects a key
// the set does not declare.
func requiredSubModels(t diffuser.Type, set *modelset.StableDiffusionModelSet) []string {
	var keys []string

	switch t {
	case diffuser.TypeTextToImage, diffuser.TypeInstaFlow:
		keys = []string{"unet", "vae_decoder"}
	case diffuser.TypeImageToImage, diffuser.TypeImageInpaintLegacy, diffuser.TypeImageInpaint:
		keys = []string{"unet", "vae_encoder", "vae_decoder"}
	case diffuser.TypeControlNet:
		keys = []string{"unet", "controlnet", "vae_decoder"}
	case diffuser.TypeControlNetImage:
		keys = []string{"unet", "controlnet", "vae_encoder", "vae_decoder"}
	case diffuser.TypeCascadeDecoder:
		keys = []string{"unet_prior", "unet", "vae_decoder"}
	}

	keys = append(keys, "text_encoder")
	if set.HasDualEncoder() {
		keys = append(keys, "text_encoder_2")
	}

	return keys
}

func (p *Pipeline) loadAll(keys []string) error {
	for _, key := range keys {
		sm, ok := p.subModels[key]
		if !ok {
			return diffuserr.Newf(diffuserr.ModelLoadFailed, "required sub-model %q is not declared in the model set", key)
		}

		err := sm.Load()
		if err != nil {
			return diffuserr.New(diffuserr.ModelLoadFailed, err)
		}
	}

	return nil
}

func (p *Pipeline) unloadAll(keys []string) {
	for _, key := range keys {
		if sm, ok := p.subModels[key]; ok {
			sm.Unload()
		}
	}
}

// BatchResult pairs one batch member's resolved scheduler recipe with its
// generated output, or the error that stopped that member short.
type BatchResult struct {
	Options diffuser.SchedulerOptions
	Pixels  *tensor.Tensor
	Seed    uint64
	Err     error
}

// RunBatch expands base into a sequence of scheduler recipes along one axis
// and runs each in turn, streaming results on the returned channel as they
// complete. The channel is closed once every member has run or ctx is
// cancelled.
func (p *Pipeline) RunBatch(ctx context.Context, req Request, opts batch.Options) <-chan BatchResult {
	out := make(chan BatchResult)

	go func() {
		defer close(out)

		base := batch.SchedulerOptions{
			Seed:           req.Options.Seed,
			InferenceSteps: req.Options.InferenceSteps,
			GuidanceScale:  req.Options.GuidanceScale,
			Strength:       req.Options.Strength,
		}

		for _, varied := range batch.Generate(base, opts) {
			err := ctx.Err()
			if err != nil {
				return
			}

			memberReq := applyVaried(req, varied)

			result, err := p.Run(ctx, memberReq)

			var pixels *tensor.Tensor
			if err == nil {
				pixels = result.Pixels
			}

			select {
			case out <- BatchResult{Options: memberReq.Options, Pixels: pixels, Seed: memberReq.Options.Seed, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// VideoAdapter wraps a Pipeline and a base Request so it satisfies
// video.FrameDiffuser: every frame reuses the same prompt and scheduler
// recipe, substituting only the input frame, its mask, and the per-frame
// seed the video adapter derives.
type VideoAdapter struct {
	Pipeline *Pipeline
	Base     Request
}

// DiffuseFrame implements video.FrameDiffuser.
func (v *VideoAdapter) DiffuseFrame(ctx context.Context, frameIndex int, seed uint64, frame image.InputImage, mask *image.InputImage) (*tensor.Tensor, error) {
	req := v.Base
	req.Options.Seed = seed
	req.InputImage = &frame
	req.InputMask = mask

	result, err := v.Pipeline.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	return result.Pixels, nil
}

// applyVaried returns a copy of req with its scheduler options overwritten
// by one batch-generated recipe, leaving every other Request field (prompt,
// diffuser type, input image/mask) unchanged.
func applyVaried(req Request, varied batch.SchedulerOptions) Request {
	out := req
	out.Options.Seed = varied.Seed
	out.Options.InferenceSteps = varied.InferenceSteps
	out.Options.GuidanceScale = varied.GuidanceScale
	out.Options.Strength = varied.Strength

	return out
}
