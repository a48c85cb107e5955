package onnxrt

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/example/go-diffusionstack/internal/config"
)

func resetForTest() {
	bootstrapOnce = sync.Once{}
	bootstrapInfo = Info{}
	bootstrapErr = nil
	poolBytes.Store(0)
}

func TestConfigureMemoryPoolRejectsNonPositive(t *testing.T) {
	resetForTest()

	if err := ConfigureMemoryPool(0); err == nil {
		t.Fatal("expected error for zero pool size")
	}

	if err := ConfigureMemoryPool(-1); err == nil {
		t.Fatal("expected error for negative pool size")
	}
}

func TestConfigureMemoryPoolBeforeBootstrap(t *testing.T) {
	resetForTest()

	const want int64 = 512 * 1024 * 1024

	if err := ConfigureMemoryPool(want); err != nil {
		t.Fatalf("ConfigureMemoryPool failed: %v", err)
	}

	if got := MemoryPoolBytes(); got != want {
		t.Fatalf("MemoryPoolBytes = %d, want %d", got, want)
	}
}

func TestBootstrapCarriesPoolCeiling(t *testing.T) {
	resetForTest()

	tmp := t.TempDir()
	lib := filepath.Join(tmp, "libonnxruntime.so")
	if err := os.WriteFile(lib, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write fake lib: %v", err)
	}

	const want int64 = 1024 * 1024

	if err := ConfigureMemoryPool(want); err != nil {
		t.Fatalf("ConfigureMemoryPool failed: %v", err)
	}

	info, err := Bootstrap(config.RuntimeConfig{ORTLibraryPath: lib})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if info.MemoryPoolBytes != want {
		t.Fatalf("MemoryPoolBytes = %d, want %d", info.MemoryPoolBytes, want)
	}

	if err := Shutdown(); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestConfigureMemoryPoolRejectedAfterBootstrap(t *testing.T) {
	resetForTest()

	tmp := t.TempDir()
	lib := filepath.Join(tmp, "libonnxruntime.so")
	if err := os.WriteFile(lib, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write fake lib: %v", err)
	}

	if _, err := Bootstrap(config.RuntimeConfig{ORTLibraryPath: lib}); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if err := ConfigureMemoryPool(1024); err == nil {
		t.Fatal("expected error configuring pool after bootstrap")
	}

	if err := Shutdown(); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}
