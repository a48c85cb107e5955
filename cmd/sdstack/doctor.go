package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/go-diffusionstack/internal/modelset"
	"github.com/example/go-diffusionstack/internal/onnxrt"
	"github.com/spf13/cobra"
)

const (
	passMark = "[ok]  "
	failMark = "[FAIL]"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the ONNX Runtime install and configured model set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			failed := false

			info, err := onnxrt.DetectRuntime(cfg.Runtime)
			if err != nil {
				failed = true
				fmt.Fprintf(os.Stdout, "%s onnx runtime: %v\n", failMark, err)
			} else {
				fmt.Fprintf(os.Stdout, "%s onnx runtime: %s (%s)\n", passMark, info.LibraryPath, info.Version)
			}

			manifestPath := filepath.Join(cfg.Paths.ModelSetPath, "modelset.json")

			set, err := modelset.Load(manifestPath)
			if err != nil {
				failed = true
				fmt.Fprintf(os.Stdout, "%s model set %q: %v\n", failMark, manifestPath, err)
			} else {
				fmt.Fprintf(os.Stdout, "%s model set %q: %s (%d supported diffusers)\n", passMark, manifestPath, set.Name, len(set.SupportedDiffusers))
			}

			if failed {
				return fmt.Errorf("doctor: one or more checks failed")
			}

			return nil
		},
	}

	return cmd
}
