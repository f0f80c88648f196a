package imagegan

import (
	"io"
	"log"
	"math/rand"
	"path/filepath"
	"testing"

	"gorgonia.org/tensor"
)

func newQuietService(t *testing.T, cfg *Config) *Service {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	s, err := NewService(cfg, WithServiceLogger(quiet), WithTrainerOptions(WithLogger(quiet)), WithRandSource(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestServiceTrainAndGenerate(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.Epochs = 1
	writeImages(t, cfg.DatasetDir, 4, 8, 8)
	ds, err := NewImageDataset(cfg.DatasetDir, cfg.ImageSize)
	if err != nil {
		t.Fatal(err)
	}

	trained := newQuietService(t, cfg)
	defer trained.Close()
	if _, err := trained.Generate(nil, nil); err != ErrModelNotLoaded {
		t.Fatalf("Generate() before loading should give ErrModelNotLoaded, but got %v", err)
	}
	if _, err := trained.Train(ds); err != nil {
		t.Fatal(err)
	}

	seed := int64(11)
	a, err := trained.Generate(&seed, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Shape().Eq(tensor.Shape{cfg.ImageSize, cfg.ImageSize, ImageChannels}) {
		t.Fatalf("Image shape = %v, want (%d, %d, 3)", a.Shape(), cfg.ImageSize, cfg.ImageSize)
	}
	for i, v := range a.Data().([]float64) {
		if v < 0 || v > 1 {
			t.Fatalf("Value #%d = %v is out of [0;1]", i, v)
		}
	}
	b, err := trained.Generate(&seed, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertSameImage(t, a, b)

	// Fresh service reads checkpoint written by training and produces the same image
	loaded := newQuietService(t, cfg)
	defer loaded.Close()
	if err := loaded.LoadModel(); err != nil {
		t.Fatal(err)
	}
	c, err := loaded.Generate(&seed, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertSameImage(t, a, c)

	// Explicit latent vector equals the one drawn from the seed
	latent := NormRandDense(rand.New(rand.NewSource(seed)), 1, cfg.LatentSize).Data().([]float64)
	d, err := loaded.Generate(nil, latent)
	if err != nil {
		t.Fatal(err)
	}
	assertSameImage(t, a, d)
	if _, err := loaded.Generate(nil, latent[:1]); err == nil {
		t.Errorf("Latent vector of wrong length should fail")
	}
	if _, err := loaded.Generate(nil, nil); err != nil {
		t.Errorf("Random latent vector should work: %v", err)
	}

	fname := filepath.Join(t.TempDir(), "out.png")
	if err := SaveImage(a, fname); err != nil {
		t.Fatal(err)
	}
	fileExists(t, fname)
}

func TestServiceSaveModel(t *testing.T) {
	cfg := tinyConfig(t)
	s := newQuietService(t, cfg)
	defer s.Close()
	if err := s.SaveModel(); err != ErrModelNotLoaded {
		t.Fatalf("SaveModel() without weights should give ErrModelNotLoaded, but got %v", err)
	}
	if err := s.LoadModel(); err == nil {
		t.Fatalf("LoadModel() without checkpoint should fail")
	}

	// Seed weights from a checkpoint of fresh generator, then save them back
	src := newQuietService(t, cfg)
	defer src.Close()
	ckpt, err := NewCheckpoint("", 0, src.runner.Learnables())
	if err != nil {
		t.Fatal(err)
	}
	if err := SaveCheckpoint(ckpt, cfg.ModelPath()); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadModel(); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveModel(); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadModel(); err != nil {
		t.Fatal(err)
	}
}

func assertSameImage(t *testing.T, a, b *tensor.Dense) {
	t.Helper()
	ad, bd := a.Data().([]float64), b.Data().([]float64)
	if len(ad) != len(bd) {
		t.Fatalf("Images have %d and %d values", len(ad), len(bd))
	}
	for i := range ad {
		if ad[i] != bd[i] {
			t.Fatalf("Images differ at #%d: %v vs %v", i, ad[i], bd[i])
		}
	}
}
