package scheduler

import (
	"testing"

	"github.com/example/go-diffusionstack/internal/tensor"
)

func testOptions(seed uint64) Options {
	o := DefaultOptions()
	o.Seed = seed

	return o
}

func TestTimestepsStrictlyDecreasing(t *testing.T) {
	for _, typ := range []Type{TypeDDPM, TypeDDIM, TypeEuler, TypeEulerAncestral, TypeLMS} {
		sched, err := New(typ, testOptions(42))
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}

		if err := sched.SetTimesteps(30, 0); err != nil {
			t.Fatalf("%s: SetTimesteps: %v", typ, err)
		}

		ts := sched.Timesteps()
		if len(ts) != 30 {
			t.Fatalf("%s: expected 30 timesteps, got %d", typ, len(ts))
		}

		for i := 1; i < len(ts); i++ {
			if ts[i] >= ts[i-1] {
				t.Fatalf("%s: timesteps not strictly decreasing at %d: %d >= %d", typ, i, ts[i], ts[i-1])
			}
		}
	}
}

func TestKDPM2DoublesLength(t *testing.T) {
	sched, err := New(TypeKDPM2, testOptions(1))
	if err != nil {
		t.Fatal(err)
	}

	if err := sched.SetTimesteps(10, 0); err != nil {
		t.Fatal(err)
	}

	ts := sched.Timesteps()
	if len(ts) != 19 {
		t.Fatalf("expected 2*10-1=19 timesteps, got %d", len(ts))
	}
}

func TestCreateRandomSampleReproducible(t *testing.T) {
	o := testOptions(7)

	s1, err := New(TypeDDPM, o)
	if err != nil {
		t.Fatal(err)
	}

	s2, err := New(TypeDDPM, o)
	if err != nil {
		t.Fatal(err)
	}

	shape := []int64{1, 4, 8, 8}

	a, err := s1.CreateRandomSample(shape, 1.0)
	if err != nil {
		t.Fatal(err)
	}

	b, err := s2.CreateRandomSample(shape, 1.0)
	if err != nil {
		t.Fatal(err)
	}

	da, db := a.Data(), b.Data()
	for i := range da {
		if da[i] != db[i] {
			t.Fatalf("same seed produced different samples at %d: %v vs %v", i, da[i], db[i])
		}
	}
}

func TestStepPreservesShape(t *testing.T) {
	for _, typ := range []Type{TypeDDPM, TypeDDIM, TypeEuler, TypeEulerAncestral, TypeLMS} {
		sched, err := New(typ, testOptions(3))
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}

		if err := sched.SetTimesteps(5, 0); err != nil {
			t.Fatal(err)
		}

		shape := []int64{1, 4, 8, 8}

		latent, err := sched.CreateRandomSample(shape, sched.InitNoiseSigma())
		if err != nil {
			t.Fatal(err)
		}

		for _, ts := range sched.Timesteps() {
			scaled, err := sched.ScaleInput(latent, ts)
			if err != nil {
				t.Fatalf("%s: scale: %v", typ, err)
			}

			noisePred, err := tensor.Zeros(scaled.Shape())
			if err != nil {
				t.Fatal(err)
			}

			res, err := sched.Step(noisePred, ts, latent)
			if err != nil {
				t.Fatalf("%s: step: %v", typ, err)
			}

			latent = res.PrevSample
		}

		if got := len(latent.Data()); got != 1*4*8*8 {
			t.Fatalf("%s: expected %d elements, got %d", typ, 1*4*8*8, got)
		}
	}
}

func TestAddNoiseAtFirstTimestepPreservesLength(t *testing.T) {
	sched, err := New(TypeDDIM, testOptions(11))
	if err != nil {
		t.Fatal(err)
	}

	if err := sched.SetTimesteps(10, 0); err != nil {
		t.Fatal(err)
	}

	shape := []int64{1, 4, 4, 4}

	clean, err := tensor.Zeros(shape)
	if err != nil {
		t.Fatal(err)
	}

	noise, err := sched.CreateRandomSample(shape, 1.0)
	if err != nil {
		t.Fatal(err)
	}

	ts := sched.Timesteps()

	noised, err := sched.AddNoise(clean, noise, ts[0])
	if err != nil {
		t.Fatal(err)
	}

	if len(noised.Data()) != len(noise.Data()) {
		t.Fatalf("shape mismatch after AddNoise")
	}
}
