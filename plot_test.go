package imagegan

import (
	"math/rand"
	"path/filepath"
	"testing"

	"gorgonia.org/tensor"
)

func TestSampleGrid(t *testing.T) {
	tests := []struct {
		n          int
		cols, rows int
	}{
		{1, 1, 1},
		{4, 2, 2},
		{5, 3, 2},
		{16, 4, 4},
	}
	for _, tt := range tests {
		samples := tensor.New(tensor.WithShape(tt.n, 3, 6, 6), tensor.WithBacking(make([]float64, tt.n*3*6*6)))
		grid, err := SampleGrid(samples)
		if err != nil {
			t.Fatal(err)
		}
		b := grid.Bounds()
		if b.Dx() != tt.cols*8+2 || b.Dy() != tt.rows*8+2 {
			t.Errorf("n = %d: grid is %dx%d, want %dx%d", tt.n, b.Dx(), b.Dy(), tt.cols*8+2, tt.rows*8+2)
		}
		// Zero in normalized space is mid-gray
		if c := grid.RGBAAt(2, 2); c.R != 128 || c.A != 255 {
			t.Errorf("n = %d: first pixel = %v, want mid-gray", tt.n, c)
		}
	}
	if _, err := SampleGrid(tensor.New(tensor.WithShape(2, 1, 6, 6), tensor.WithBacking(make([]float64, 72)))); err == nil {
		t.Errorf("Single channel samples should fail")
	}
}

func TestSaveArtifacts(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(1))
	gen := []float64{rng.Float64(), rng.Float64(), rng.Float64()}
	dis := []float64{rng.Float64(), rng.Float64(), rng.Float64()}
	lossFile := filepath.Join(dir, LossPlotName)
	if err := PlotLosses(gen, dis, lossFile); err != nil {
		t.Fatal(err)
	}
	fileExists(t, lossFile)
	if err := PlotLosses(gen, dis[:1], lossFile); err == nil {
		t.Errorf("Histories of different lengths should fail")
	}

	samples := NormRandDense(rng, 4, 3*8*8)
	if err := samples.Reshape(4, 3, 8, 8); err != nil {
		t.Fatal(err)
	}
	gridFile := filepath.Join(dir, SampleGridName(1))
	if err := SaveSampleGrid(samples, gridFile); err != nil {
		t.Fatal(err)
	}
	fileExists(t, gridFile)
}
