package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/go-diffusionstack/internal/batch"
	"github.com/example/go-diffusionstack/internal/diffuser"
	"github.com/example/go-diffusionstack/internal/image"
	"github.com/example/go-diffusionstack/internal/pipeline"
	"github.com/spf13/cobra"
)

func newBatchCmd() *cobra.Command {
	var (
		prompt         string
		negativePrompt string
		diffuserType   string
		inputImage     string
		axis           string
		count          int
		from           float64
		to             float64
		increment      float64
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run a batch of generations varied along one axis",
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

			req := pipeline.Request{
				Prompt:         prompt,
				NegativePrompt: negativePrompt,
				DiffuserType:   diffuser.Type(diffuserType),
				Options:        defaultSchedulerOptions(cfg.Generation),
				OnProgress:     renderProgress,
			}

			if inputImage != "" {
				img := image.FromPath(inputImage)
				req.InputImage = &img
			}

			batchOpts := batch.Options{
				Axis:      batch.Axis(axis),
				Count:     count,
				From:      float32(from),
				To:        float32(to),
				Increment: float32(increment),
			}

			results := p.RunBatch(cmd.Context(), req, batchOpts)

			i := 0
			for r := range results {
				i++

				if r.Err != nil {
					fmt.Fprintf(os.Stderr, "batch member %d: %v\n", i, r.Err)
					continue
				}

				outPath := filepath.Join(cfg.Paths.OutputDir, fmt.Sprintf("%d-%d.png", i, r.Seed))

				err := writeImage(outPath, r.Pixels)
				if err != nil {
					fmt.Fprintf(os.Stderr, "batch member %d: write output: %v\n", i, err)
					continue
				}

				fmt.Fprintln(os.Stdout, outPath)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "Generation prompt")
	cmd.Flags().StringVar(&negativePrompt, "negative-prompt", "", "Negative prompt")
	cmd.Flags().StringVar(&diffuserType, "diffuser", string(diffuser.TypeTextToImage), "Diffuser variant")
	cmd.Flags().StringVar(&inputImage, "input-image", "", "Input image path (image_to_image/inpaint/controlnet)")
	cmd.Flags().StringVar(&axis, "axis", string(batch.AxisSeed), "Axis to vary (seed|step|guidance|strength)")
	cmd.Flags().IntVar(&count, "count", 4, "Member count for the seed axis")
	cmd.Flags().Float64Var(&from, "from", 0, "Range start for step/guidance/strength axes")
	cmd.Flags().Float64Var(&to, "to", 0, "Range end for step/guidance/strength axes")
	cmd.Flags().Float64Var(&increment, "increment", 0.5, "Step increment for guidance/strength axes")

	return cmd
}
