package imagegan

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gorgonia.org/tensor"
)

// PlotLosses Plot both loss curves over epochs and save chart into file (format is taken from file extension)
func PlotLosses(generatorLoss, discriminatorLoss []float64, fname string) error {
	if len(generatorLoss) != len(discriminatorLoss) {
		return fmt.Errorf("Loss histories must have same length, but generator has %d values and discriminator has %d values", len(generatorLoss), len(discriminatorLoss))
	}
	p := plot.New()
	p.Title.Text = "Generator and Discriminator Loss During Training"
	p.X.Label.Text = "epochs"
	p.Y.Label.Text = "Loss"
	p.Add(plotter.NewGrid())
	err := plotutil.AddLines(p,
		"generator", lossXYs(generatorLoss),
		"discriminator", lossXYs(discriminatorLoss),
	)
	if err != nil {
		return errors.Wrap(err, "Can't add loss lines")
	}
	p.Legend.Top = true
	if err := p.Save(6*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}

func lossXYs(losses []float64) plotter.XYs {
	xys := make(plotter.XYs, len(losses))
	for i, v := range losses {
		xys[i].X = float64(i + 1)
		xys[i].Y = v
	}
	return xys
}

// ImageFromCHW Converts normalized image tensor (3, size, size) into RGBA image
func ImageFromCHW(t *tensor.Dense) (*image.RGBA, error) {
	shp := t.Shape()
	if len(shp) != 3 || shp[0] != ImageChannels {
		return nil, fmt.Errorf("Image tensor must have shape (3, h, w), but got %v", shp)
	}
	data, ok := t.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("Image tensor data is %T, but []float64 is expected", t.Data())
	}
	h, w := shp[1], shp[2]
	plane := h * w
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			img.SetRGBA(x, y, color.RGBA{
				R: toByte(Denormalize(data[idx])),
				G: toByte(Denormalize(data[plane+idx])),
				B: toByte(Denormalize(data[2*plane+idx])),
				A: 255,
			})
		}
	}
	return img, nil
}

// ImageFromHWC Converts displayable image tensor (h, w, 3) with values in [0;1] into RGBA image
func ImageFromHWC(t *tensor.Dense) (*image.RGBA, error) {
	shp := t.Shape()
	if len(shp) != 3 || shp[2] != ImageChannels {
		return nil, fmt.Errorf("Image tensor must have shape (h, w, 3), but got %v", shp)
	}
	data, ok := t.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("Image tensor data is %T, but []float64 is expected", t.Data())
	}
	h, w := shp[0], shp[1]
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := (y*w + x) * ImageChannels
			img.SetRGBA(x, y, color.RGBA{R: toByte(data[idx]), G: toByte(data[idx+1]), B: toByte(data[idx+2]), A: 255})
		}
	}
	return img, nil
}

func toByte(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// SampleGrid Tiles batch of normalized images (n, 3, size, size) into square-ish grid with 2px padding
func SampleGrid(samples *tensor.Dense) (*image.RGBA, error) {
	shp := samples.Shape()
	if len(shp) != 4 || shp[1] != ImageChannels {
		return nil, fmt.Errorf("Samples must have shape (n, 3, h, w), but got %v", shp)
	}
	n, h, w := shp[0], shp[2], shp[3]
	const pad = 2
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	grid := image.NewRGBA(image.Rect(0, 0, cols*(w+pad)+pad, rows*(h+pad)+pad))
	for i := 0; i < n; i++ {
		view, err := samples.Slice(SlicerOneStep{i, i + 1})
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't select sample #%d", i))
		}
		sample := view.Materialize().(*tensor.Dense)
		if err := sample.Reshape(ImageChannels, h, w); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't reshape sample #%d", i))
		}
		img, err := ImageFromCHW(sample)
		if err != nil {
			return nil, err
		}
		x0 := pad + (i%cols)*(w+pad)
		y0 := pad + (i/cols)*(h+pad)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				grid.SetRGBA(x0+x, y0+y, img.RGBAAt(x, y))
			}
		}
	}
	return grid, nil
}

// SavePNG Encodes image into PNG file
func SavePNG(img image.Image, fname string) error {
	f, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create image file")
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return errors.Wrap(err, "Can't encode PNG")
	}
	return f.Close()
}

// SaveSampleGrid Renders batch of generated images (n, 3, size, size) as grid into PNG file
func SaveSampleGrid(samples *tensor.Dense, fname string) error {
	grid, err := SampleGrid(samples)
	if err != nil {
		return err
	}
	return SavePNG(grid, fname)
}
