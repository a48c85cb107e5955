package main

import (
	"fmt"
	"os"

	"github.com/example/go-diffusionstack/internal/onnxrt"
)

func main() {
	defer func() {
		_ = onnxrt.Shutdown()
	}()

	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		os.Exit(1)
	}
}
