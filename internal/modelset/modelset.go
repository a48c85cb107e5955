// Package modelset defines the configuration surface a Pipeline is built
// from: the file paths and declared capabilities of one diffusion model
// repo checkout. It owns no inference logic; it resolves names to paths the
// same way a voice bank resolves a named voice to a verified local file.
package modelset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/go-diffusionstack/internal/diffuser"
	"github.com/example/go-diffusionstack/internal/scheduler"
)

// SubModelPaths enumerates the on-disk ONNX graphs (and tokenizer model)
// a StableDiffusionModelSet is built from. Paths are relative to the
// manifest's directory unless absolute; fields left empty denote a sub-model
// this pipeline does not use (e.g. ControlNet, or the second SDXL encoder).
type SubModelPaths struct {
	Tokenizer    string `json:"tokenizer"`
	Tokenizer2   string `json:"tokenizer_2,omitempty"`
	TextEncoder  string `json:"text_encoder"`
	TextEncoder2 string `json:"text_encoder_2,omitempty"`
	UNet         string `json:"unet"`
	UNetPrior    string `json:"unet_prior,omitempty"`
	ControlNet   string `json:"controlnet,omitempty"`
	VAEEncoder   string `json:"vae_encoder,omitempty"`
	VAEDecoder   string `json:"vae_decoder"`
}

// StableDiffusionModelSet is the declared shape of one model repo checkout:
// where its sub-model graphs live and what it supports. It is the unit of
// load/unload in the pipeline's memory-residency policy.
type StableDiffusionModelSet struct {
	Name                string           `json:"name"`
	PipelineType        string           `json:"pipeline_type"`
	SupportedDiffusers  []diffuser.Type  `json:"supported_diffusers"`
	SupportedSchedulers []scheduler.Type `json:"supported_schedulers"`
	SampleSize          int              `json:"sample_size"`
	ScaleFactor         float32          `json:"scale_factor"`
	TokenizerLimit      int              `json:"tokenizer_limit"`
	PadTokenID          int64            `json:"pad_token_id"`
	SubModels           SubModelPaths    `json:"sub_models"`

	baseDir string
}

// Load reads a StableDiffusionModelSet from a JSON manifest on disk,
// resolving relative sub-model paths against the manifest's directory and
// verifying the required files it references exist. It rejects a manifest
// that declares no supported diffusers or a non-positive tokenizer_limit;
// the declared diffuser types themselves are not checked.
func Load(manifestPath string) (*StableDiffusionModelSet, error) {
	if manifestPath == "" {
		return nil, errors.New("modelset: manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("modelset: read manifest: %w", err)
	}

	var set StableDiffusionModelSet

	err = json.Unmarshal(data, &set)
	if err != nil {
		return nil, fmt.Errorf("modelset: decode manifest: %w", err)
	}

	set.baseDir = filepath.Dir(manifestPath)

	if len(set.SupportedDiffusers) == 0 {
		return nil, errors.New("modelset: manifest declares no supported diffusers")
	}

	if set.TokenizerLimit <= 0 {
		return nil, errors.New("modelset: tokenizer_limit must be positive")
	}

	err = set.resolveRequired()
	if err != nil {
		return nil, err
	}

	return &set, nil
}

func (s *StableDiffusionModelSet) resolveRequired() error {
	required := map[string]string{
		"tokenizer":    s.SubModels.Tokenizer,
		"text_encoder": s.SubModels.TextEncoder,
		"unet":         s.SubModels.UNet,
		"vae_decoder":  s.SubModels.VAEDecoder,
	}

	for name, path := range required {
		if path == "" {
			return fmt.Errorf("modelset: missing required sub-model %q", name)
		}

		_, err := s.ResolvePath(path)
		if err != nil {
			return fmt.Errorf("modelset: sub-model %q: %w", name, err)
		}
	}

	return nil
}

// ResolvePath resolves a sub-model-relative path against the manifest's
// directory and verifies the file exists, mirroring a voice bank's
// id-to-verified-file lookup but operating on bare paths rather than IDs
// since sub-model names are already fixed fields on SubModelPaths.
func (s *StableDiffusionModelSet) ResolvePath(relPath string) (string, error) {
	if relPath == "" {
		return "", errors.New("modelset: empty sub-model path")
	}

	resolved := relPath
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(s.baseDir, resolved)
	}

	resolved = filepath.Clean(resolved)

	_, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", relPath, err)
	}

	return resolved, nil
}

// SupportsDiffuser reports whether t is one of this set's declared diffuser
// types.
func (s *StableDiffusionModelSet) SupportsDiffuser(t diffuser.Type) bool {
	for _, d := range s.SupportedDiffusers {
		if d == t {
			return true
		}
	}

	return false
}

// SupportsScheduler reports whether t is one of this set's declared
// scheduler types. An empty SupportedSchedulers list is treated as "all",
// matching the teacher repo's tolerant default for unconstrained manifests.
func (s *StableDiffusionModelSet) SupportsScheduler(t scheduler.Type) bool {
	if len(s.SupportedSchedulers) == 0 {
		return true
	}

	for _, sc := range s.SupportedSchedulers {
		if sc == t {
			return true
		}
	}

	return false
}

// IsCascade reports whether this set is a Stable Cascade prior/decoder pair,
// the one pipeline shape that needs a second UNet path.
func (s *StableDiffusionModelSet) IsCascade() bool {
	return s.SubModels.UNetPrior != ""
}

// HasDualEncoder reports whether this set declares a second text encoder
// (SDXL/Cascade-style).
func (s *StableDiffusionModelSet) HasDualEncoder() bool {
	return s.SubModels.TextEncoder2 != ""
}
