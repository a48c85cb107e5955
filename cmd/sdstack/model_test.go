package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-diffusionstack/internal/model"
)

func TestVerifyModelSetAllPresent(t *testing.T) {
	dir := t.TempDir()

	manifest := model.Manifest{
		Repo: "test/repo",
		Files: []model.ModelFile{
			{Filename: "unet/model.onnx"},
			{Filename: "vae_decoder/model.onnx"},
		},
	}

	for _, f := range manifest.Files {
		full := filepath.Join(dir, f.Filename)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer

	err := verifyModelSet(dir, manifest, &buf)
	if err != nil {
		t.Fatalf("verifyModelSet: %v", err)
	}

	if strings.Count(buf.String(), passMark) != 2 {
		t.Fatalf("expected 2 pass lines, got output: %s", buf.String())
	}
}

func TestVerifyModelSetReportsMissing(t *testing.T) {
	dir := t.TempDir()

	manifest := model.Manifest{
		Files: []model.ModelFile{
			{Filename: "unet/model.onnx"},
			{Filename: "vae_decoder/model.onnx"},
		},
	}

	full := filepath.Join(dir, "unet/model.onnx")
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer

	err := verifyModelSet(dir, manifest, &buf)
	if err == nil {
		t.Fatal("expected error for missing file")
	}

	if !strings.Contains(buf.String(), failMark) {
		t.Fatalf("expected a fail line, got output: %s", buf.String())
	}
}

func TestVerifyModelSetRespectsLocalPathOverride(t *testing.T) {
	dir := t.TempDir()

	manifest := model.Manifest{
		Files: []model.ModelFile{
			{Filename: "unet/model.onnx", LocalPath: "custom/unet.onnx"},
		},
	}

	full := filepath.Join(dir, "custom/unet.onnx")
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer

	err := verifyModelSet(dir, manifest, &buf)
	if err != nil {
		t.Fatalf("verifyModelSet: %v", err)
	}
}
