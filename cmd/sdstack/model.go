package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/example/go-diffusionstack/internal/model"
	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Model set acquisition and verification commands",
	}

	cmd.AddCommand(newModelVerifyCmd())

	return cmd
}

func newModelVerifyCmd() *cobra.Command {
	var repo string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that a model set directory has every file a known hub repo pins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			manifest, err := model.PinnedManifest(repo)
			if err != nil {
				return err
			}

			return verifyModelSet(cfg.Paths.ModelSetPath, manifest, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "runwayml/stable-diffusion-v1-5", "Hub repo whose pinned file set to check against")

	return cmd
}

// verifyModelSet checks that every file manifest pins exists under dir,
// reporting one pass/fail line per file to w and returning an error naming
// the missing count if any file is absent.
func verifyModelSet(dir string, manifest model.Manifest, w io.Writer) error {
	missing := 0

	for _, f := range manifest.Files {
		localPath := f.LocalPath
		if localPath == "" {
			localPath = f.Filename
		}

		full := filepath.Join(dir, localPath)

		_, err := os.Stat(full)
		if err != nil {
			missing++
			fmt.Fprintf(w, "%s missing %s\n", failMark, full)
			continue
		}

		fmt.Fprintf(w, "%s %s\n", passMark, full)
	}

	if missing > 0 {
		return fmt.Errorf("model verify: %d file(s) missing from %q", missing, dir)
	}

	return nil
}
