package model

import "testing"

func TestPinnedManifestKnownRepos(t *testing.T) {
	repos := []string{
		"runwayml/stable-diffusion-v1-5",
		"stabilityai/stable-diffusion-xl-base-1.0",
		"stabilityai/stable-cascade",
	}

	for _, repo := range repos {
		m, err := PinnedManifest(repo)
		if err != nil {
			t.Fatalf("PinnedManifest(%q): %v", repo, err)
		}

		if m.Repo != repo {
			t.Errorf("PinnedManifest(%q).Repo = %q", repo, m.Repo)
		}

		if len(m.Files) == 0 {
			t.Errorf("PinnedManifest(%q) returned no files", repo)
		}
	}
}

func TestPinnedManifestUnknownRepo(t *testing.T) {
	_, err := PinnedManifest("nobody/nothing")
	if err == nil {
		t.Fatal("expected error for unknown repo")
	}
}

func TestPinnedManifestXLHasDualEncoder(t *testing.T) {
	m, err := PinnedManifest("stabilityai/stable-diffusion-xl-base-1.0")
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, f := range m.Files {
		if f.Filename == "text_encoder_2/model.onnx" {
			found = true
		}
	}

	if !found {
		t.Fatal("expected SDXL manifest to pin a second text encoder")
	}
}
