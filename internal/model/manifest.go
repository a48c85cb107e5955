// Package model describes pinned file sets for downloadable Stable Diffusion
// model repos, the same shape a local cache manager uses to decide whether an
// on-disk file matches what a named hub revision expects. The SHA256 fields
// of the built-in pins are empty, and this package verifies no hashes.
package model

import "fmt"

// Manifest lists the files that make up one hub repo revision.
type Manifest struct {
	Repo  string      `json:"repo"`
	Files []ModelFile `json:"files"`
}

// ModelFile pins one file within a Manifest to a revision and checksum.
type ModelFile struct {
	Filename  string `json:"filename"`
	Revision  string `json:"revision"`
	SHA256    string `json:"sha256"`
	LocalPath string `json:"local_path,omitempty"` // Override local save path (defaults to Filename).
}

// PinnedManifest returns the known file set for a well-known diffusion hub
// repo. Unlisted repos are not an error at the modelset layer; callers that
// need hash verification should fail closed, callers that only need path
// resolution can proceed without a pin.
func PinnedManifest(repo string) (Manifest, error) {
	switch repo {
	case "runwayml/stable-diffusion-v1-5":
		return Manifest{
			Repo: repo,
			Files: []ModelFile{
				{Filename: "text_encoder/model.onnx", Revision: "onnx", SHA256: ""},
				{Filename: "unet/model.onnx", Revision: "onnx", SHA256: ""},
				{Filename: "vae_decoder/model.onnx", Revision: "onnx", SHA256: ""},
				{Filename: "vae_encoder/model.onnx", Revision: "onnx", SHA256: ""},
				{Filename: "tokenizer/tokenizer.model", Revision: "onnx", SHA256: ""},
			},
		}, nil
	case "stabilityai/stable-diffusion-xl-base-1.0":
		return Manifest{
			Repo: repo,
			Files: []ModelFile{
				{Filename: "text_encoder/model.onnx", Revision: "onnx", SHA256: ""},
				{Filename: "text_encoder_2/model.onnx", Revision: "onnx", SHA256: ""},
				{Filename: "unet/model.onnx", Revision: "onnx", SHA256: ""},
				{Filename: "vae_decoder/model.onnx", Revision: "onnx", SHA256: ""},
				{Filename: "tokenizer/tokenizer.model", Revision: "onnx", SHA256: ""},
				{Filename: "tokenizer_2/tokenizer.model", Revision: "onnx", SHA256: ""},
			},
		}, nil
	case "stabilityai/stable-cascade":
		return Manifest{
			Repo: repo,
			Files: []ModelFile{
				{Filename: "prior/model.onnx", Revision: "onnx", SHA256: ""},
				{Filename: "decoder/model.onnx", Revision: "onnx", SHA256: ""},
				{Filename: "text_encoder/model.onnx", Revision: "onnx", SHA256: ""},
				{Filename: "tokenizer/tokenizer.model", Revision: "onnx", SHA256: ""},
			},
		}, nil
	default:
		return Manifest{}, fmt.Errorf("no pinned manifest for repo %q", repo)
	}
}
