// Package onnxrt owns process-wide ONNX Runtime lifecycle: library
// detection, bootstrap, shutdown, and the memory pool ceiling every
// sub-model allocation is expected to respect. internal/onnx's Engine and
// SessionManager load and run individual graphs; onnxrt is the one place
// that initializes the runtime those graphs execute under.
package onnxrt

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/example/go-diffusionstack/internal/config"
	"github.com/example/go-diffusionstack/internal/onnx"
)

// Info mirrors onnx.RuntimeInfo with the pool ceiling attached, so callers
// that only import onnxrt never need to reach into internal/onnx directly.
type Info struct {
	onnx.RuntimeInfo
	MemoryPoolBytes int64
}

var (
	bootstrapOnce sync.Once
	bootstrapInfo Info
	bootstrapErr  error

	poolBytes atomic.Int64
)

// Bootstrap detects and initializes the ONNX Runtime library once per
// process. Later calls return the first call's result again: the same Info,
// or the same error if the first call failed.
func Bootstrap(cfg config.RuntimeConfig) (Info, error) {
	bootstrapOnce.Do(func() {
		runtimeInfo, err := onnx.Bootstrap(cfg)
		if err != nil {
			bootstrapErr = err
			return
		}

		bootstrapInfo = Info{
			RuntimeInfo:     runtimeInfo,
			MemoryPoolBytes: poolBytes.Load(),
		}
		bootstrapInfo.Initialized = true
	})

	if bootstrapErr != nil {
		return Info{}, bootstrapErr
	}

	return bootstrapInfo, nil
}

// Shutdown releases process-wide runtime state. Safe to call more than
// once; safe to call even if Bootstrap never succeeded.
func Shutdown() error {
	return onnx.Shutdown()
}

// DetectRuntime probes for an ONNX Runtime shared library without
// registering it as the process-wide runtime. Used by CLI diagnostics
// ("sdstack doctor") ahead of a real Bootstrap call.
func DetectRuntime(cfg config.RuntimeConfig) (onnx.RuntimeInfo, error) {
	return onnx.DetectRuntime(cfg)
}

// ConfigureMemoryPool sets the process-wide image/tensor memory pool
// ceiling in bytes. It must be called before Bootstrap; calling it after
// the runtime has already initialized returns an error since most ORT
// allocator arenas cannot be resized post-init.
func ConfigureMemoryPool(bytes int64) error {
	if bytes <= 0 {
		return fmt.Errorf("onnxrt: memory pool size must be positive, got %d", bytes)
	}

	if bootstrapInfo.Initialized {
		return fmt.Errorf("onnxrt: cannot configure memory pool after Bootstrap has run")
	}

	poolBytes.Store(bytes)

	return nil
}

// MemoryPoolBytes returns the configured pool ceiling, or 0 if
// ConfigureMemoryPool was never called.
func MemoryPoolBytes() int64 {
	return poolBytes.Load()
}
