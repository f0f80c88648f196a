package imagegan

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// tinyConfig Small networks and batches so training tests finish quickly
func tinyConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ImageSize = 8
	cfg.LatentSize = 4
	cfg.GeneratorChannels = [2]int{4, 2}
	cfg.DiscriminatorChannels = [2]int{2, 4}
	cfg.BatchSize = 2
	cfg.SampleNum = 4
	cfg.Epochs = 2
	cfg.Discriminator = NetworkSchedule{LearningRate: 0.001, Milestones: []int{1}, Gamma: 0.5}
	cfg.Generator = NetworkSchedule{LearningRate: 0.001, Milestones: []int{1}, Gamma: 0.5}
	cfg.Seed = 7
	cfg.DatasetDir = filepath.Join(dir, "data")
	cfg.ModelsDir = filepath.Join(dir, "models")
	cfg.OutputDir = filepath.Join(dir, "plots")
	return cfg
}

// writeImages Writes n solid-colored PNGs of size w x h into dir
func writeImages(t *testing.T, dir string, n, w, h int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		c := color.RGBA{R: uint8(40 * i), G: 128, B: uint8(255 - 30*i), A: 255}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetRGBA(x, y, c)
			}
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("img_%02d.png", i)))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			t.Fatal(err)
		}
		f.Close()
	}
}

func fileExists(t *testing.T, fname string) {
	t.Helper()
	info, err := os.Stat(fname)
	if err != nil {
		t.Errorf("File %s should exist: %v", fname, err)
		return
	}
	if info.Size() == 0 {
		t.Errorf("File %s is empty", fname)
	}
}
