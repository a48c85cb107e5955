package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/example/go-diffusionstack/internal/diffuser"
	"github.com/example/go-diffusionstack/internal/image"
	"github.com/example/go-diffusionstack/internal/pipeline"
	"github.com/example/go-diffusionstack/internal/tensor"
	"github.com/spf13/cobra"
)

var progressStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

func newGenerateCmd() *cobra.Command {
	var (
		prompt         string
		negativePrompt string
		diffuserType   string
		inputImage     string
		inputMask      string
		controlImage   string
		out            string
		seed           uint64
		steps          int
		guidance       float64
		strength       float64
		height         int
		width          int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one image generation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			p, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			opts := defaultSchedulerOptions(cfg.Generation)
			opts.Seed = seed
			if steps > 0 {
				opts.InferenceSteps = steps
			}
			if guidance > 0 {
				opts.GuidanceScale = float32(guidance)
			}
			if strength > 0 {
				opts.Strength = float32(strength)
			}
			if height > 0 {
				opts.Height = height
			}
			if width > 0 {
				opts.Width = width
			}

			req := pipeline.Request{
				Prompt:         prompt,
				NegativePrompt: negativePrompt,
				DiffuserType:   diffuser.Type(diffuserType),
				Options:        opts,
				OnProgress:     renderProgress,
			}

			if inputImage != "" {
				img := image.FromPath(inputImage)
				req.InputImage = &img
			}
			if inputMask != "" {
				mask := image.FromPath(inputMask)
				req.InputMask = &mask
			}
			if controlImage != "" {
				ctrl := image.FromPath(controlImage)
				req.InputControlImage = &ctrl
			}

			result, err := p.Run(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}

			outPath := out
			if outPath == "" {
				outPath = filepath.Join(cfg.Paths.OutputDir, fmt.Sprintf("%d.png", result.Seed))
			}

			return writeImage(outPath, result.Pixels)
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "Generation prompt")
	cmd.Flags().StringVar(&negativePrompt, "negative-prompt", "", "Negative prompt")
	cmd.Flags().StringVar(&diffuserType, "diffuser", string(diffuser.TypeTextToImage), "Diffuser variant (text_to_image|image_to_image|image_inpaint|controlnet|insta_flow|cascade_decoder|...)")
	cmd.Flags().StringVar(&inputImage, "input-image", "", "Input image path (image_to_image/inpaint/controlnet)")
	cmd.Flags().StringVar(&inputMask, "input-mask", "", "Inpaint mask path")
	cmd.Flags().StringVar(&controlImage, "control-image", "", "ControlNet conditioning image path")
	cmd.Flags().StringVar(&out, "out", "", "Output PNG path (default: <output-dir>/<seed>.png)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed (0 picks a random seed)")
	cmd.Flags().IntVar(&steps, "steps", 0, "Denoising steps (0 uses the configured default)")
	cmd.Flags().Float64Var(&guidance, "guidance", 0, "Classifier-free guidance scale (0 uses the configured default)")
	cmd.Flags().Float64Var(&strength, "strength", 0, "Image-to-image/inpaint noise strength (0 uses 1.0)")
	cmd.Flags().IntVar(&height, "height", 0, "Output height in pixels (0 uses 512)")
	cmd.Flags().IntVar(&width, "width", 0, "Output width in pixels (0 uses 512)")

	return cmd
}

// renderProgress prints one lipgloss-styled line per completed denoising
// step. It never blocks and never returns an error, per diffuser.ProgressFunc.
func renderProgress(p diffuser.Progress) {
	fmt.Fprintln(os.Stderr, progressStyle.Render(fmt.Sprintf("step %d/%d", p.Step, p.Total)))
}

func writeImage(path string, pixels *tensor.Tensor) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("generate: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("generate: create output file: %w", err)
	}
	defer f.Close()

	return image.EncodePNG(pixels, f)
}
