package imagegan

import (
	"image"
	"image/color"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

func TestTransformImage(t *testing.T) {
	// 12x8 image: left half black, right half white
	img := image.NewRGBA(image.Rect(0, 0, 12, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 12; x++ {
			if x >= 6 {
				img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{A: 255})
			}
		}
	}
	out, err := TransformImage(img, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Shape().Eq(tensor.Shape{3, 4, 4}) {
		t.Fatalf("Shape = %v, want (3, 4, 4)", out.Shape())
	}
	data := out.Data().([]float64)
	for i, v := range data {
		if v < -1 || v > 1 {
			t.Fatalf("Value #%d = %v is out of [-1;1]", i, v)
		}
	}
	// Left column of red channel is dark, right column is bright
	if data[0] >= 0 || data[3] <= 0 {
		t.Errorf("Center crop lost horizontal gradient: left %v, right %v", data[0], data[3])
	}
}

func TestImageDataset(t *testing.T) {
	root := t.TempDir()
	writeImages(t, filepath.Join(root, "cats"), 2, 10, 12)
	writeImages(t, filepath.Join(root, "birds"), 3, 16, 16)
	if err := os.WriteFile(filepath.Join(root, "birds", "notes.txt"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	ds, err := NewImageDataset(root, 8)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", ds.Len())
	}
	classes := ds.Classes()
	if len(classes) != 2 || classes[0] != "birds" || classes[1] != "cats" {
		t.Fatalf("Classes() = %v, want [birds cats]", classes)
	}
	for i := 0; i < ds.Len(); i++ {
		img, label, err := ds.Item(i)
		if err != nil {
			t.Fatal(err)
		}
		if !img.Shape().Eq(tensor.Shape{3, 8, 8}) {
			t.Errorf("Item %d shape = %v, want (3, 8, 8)", i, img.Shape())
		}
		wantLabel := 0
		if filepath.Base(filepath.Dir(ds.Path(i))) == "cats" {
			wantLabel = 1
		}
		if label != wantLabel {
			t.Errorf("Item %d (%s) label = %d, want %d", i, ds.Path(i), label, wantLabel)
		}
	}
	if _, _, err := ds.Item(ds.Len()); err == nil {
		t.Errorf("Out of range index should fail")
	}
}

func TestImageDatasetErrors(t *testing.T) {
	root := t.TempDir()
	if _, err := NewImageDataset(filepath.Join(root, "missing"), 8); err == nil {
		t.Errorf("Missing directory should fail")
	}
	empty := filepath.Join(root, "empty")
	if err := os.MkdirAll(empty, 0755); err != nil {
		t.Fatal(err)
	}
	_, err := NewImageDataset(empty, 8)
	if errors.Cause(err) != ErrEmptyDataset {
		t.Errorf("Empty directory should give ErrEmptyDataset, but got %v", err)
	}
}

func TestLoader(t *testing.T) {
	root := t.TempDir()
	writeImages(t, root, 5, 8, 8)
	ds, err := NewImageDataset(root, 8)
	if err != nil {
		t.Fatal(err)
	}
	ld, err := NewLoader(ds, 2, true, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if ld.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ld.Len())
	}
	for pass := 0; pass < 2; pass++ {
		batches := 0
		for {
			batch, err := ld.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			if !batch.Images.Shape().Eq(tensor.Shape{2, 3, 8, 8}) {
				t.Errorf("Batch shape = %v, want (2, 3, 8, 8)", batch.Images.Shape())
			}
			if len(batch.Labels) != 2 {
				t.Errorf("Got %d labels, want 2", len(batch.Labels))
			}
			batches++
		}
		if batches != 2 {
			t.Errorf("Pass %d: got %d batches, want 2 (trailing partial batch is dropped)", pass, batches)
		}
		ld.Reset()
	}

	if _, err := NewLoader(ds, 6, false, nil); err == nil {
		t.Errorf("Batch larger than dataset should fail")
	}
	if _, err := NewLoader(ds, 2, true, nil); err == nil {
		t.Errorf("Shuffling without random source should fail")
	}
}

func TestTransformImageKeepsStraightColors(t *testing.T) {
	tests := []struct {
		name  string
		alpha uint8
	}{
		{"transparent", 0},
		{"half transparent", 128},
		{"opaque", 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Unchanged size and twice bigger one which goes through resampling
			for _, srcSize := range []int{4, 8} {
				img := image.NewNRGBA(image.Rect(0, 0, srcSize, srcSize))
				for y := 0; y < srcSize; y++ {
					for x := 0; x < srcSize; x++ {
						img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: tt.alpha})
					}
				}
				out, err := TransformImage(img, 4)
				if err != nil {
					t.Fatal(err)
				}
				for i, v := range out.Data().([]float64) {
					if v < 0.999 {
						t.Fatalf("Source %dx%d: value #%d = %v, want 1 (white)", srcSize, srcSize, i, v)
					}
				}
			}
		})
	}
}

func TestShorterEdgeDims(t *testing.T) {
	tests := []struct {
		w, h, size   int
		wantW, wantH int
	}{
		{12, 7, 4, 6, 4},
		{7, 12, 4, 4, 6},
		{10, 10, 8, 8, 8},
		{33, 32, 32, 33, 32},
	}
	for _, tt := range tests {
		w, h := shorterEdgeDims(tt.w, tt.h, tt.size)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("shorterEdgeDims(%d, %d, %d) = (%d, %d), want (%d, %d)", tt.w, tt.h, tt.size, w, h, tt.wantW, tt.wantH)
		}
	}
}
