package imagegan

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"gorgonia.org/tensor"
)

var (
	// ErrEmptyDataset Directory contains no supported images
	ErrEmptyDataset = errors.New("dataset contains no images")
)

var supportedImageExt = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// Dataset Finite indexed collection of normalized images (3, size, size) with labels
type Dataset interface {
	Len() int
	Item(i int) (*tensor.Dense, int, error)
	ImageSize() int
}

// ImageDataset Images found in directory. Label is index of the first-level sub-directory (in sorted order), files directly in root have label 0.
type ImageDataset struct {
	root      string
	imageSize int
	files     []string
	labels    []int
	classes   []string
}

// NewImageDataset Indexes supported images (png, jpeg, gif) under dir recursively. Files are not decoded until Item() is called.
func NewImageDataset(dir string, imageSize int) (*ImageDataset, error) {
	if imageSize < 1 {
		return nil, fmt.Errorf("Image size must be positive, but got %d", imageSize)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't access dataset directory '%s'", dir))
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("Dataset path '%s' is not a directory", dir)
	}
	ds := &ImageDataset{
		root:      dir,
		imageSize: imageSize,
	}
	classIdx := map[string]int{}
	err = filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() || !supportedImageExt[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		class := ""
		if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
			class = parts[0]
		}
		if _, ok := classIdx[class]; !ok {
			classIdx[class] = 0
			ds.classes = append(ds.classes, class)
		}
		ds.files = append(ds.files, path)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't walk dataset directory '%s'", dir))
	}
	if len(ds.files) == 0 {
		return nil, errors.Wrap(ErrEmptyDataset, dir)
	}
	sort.Strings(ds.files)
	sort.Strings(ds.classes)
	for i, c := range ds.classes {
		classIdx[c] = i
	}
	ds.labels = make([]int, len(ds.files))
	for i, f := range ds.files {
		rel, _ := filepath.Rel(dir, f)
		class := ""
		if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
			class = parts[0]
		}
		ds.labels[i] = classIdx[class]
	}
	return ds, nil
}

// Len Returns number of images
func (ds *ImageDataset) Len() int {
	return len(ds.files)
}

// ImageSize Returns spatial size of images produced by Item()
func (ds *ImageDataset) ImageSize() int {
	return ds.imageSize
}

// Classes Returns sorted class names. Empty name stands for images placed directly in root directory
func (ds *ImageDataset) Classes() []string {
	return ds.classes
}

// Path Returns path of i-th image
func (ds *ImageDataset) Path(i int) string {
	return ds.files[i]
}

// Item Reads i-th image and applies transforms: resize (shorter edge) => center crop => tensor [0;1] => first 3 channels => normalize to [-1;1]
func (ds *ImageDataset) Item(i int) (*tensor.Dense, int, error) {
	if i < 0 || i >= len(ds.files) {
		return nil, 0, fmt.Errorf("Index %d is out of range [0;%d)", i, len(ds.files))
	}
	f, err := os.Open(ds.files[i])
	if err != nil {
		return nil, 0, errors.Wrap(err, "Can't open image")
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, 0, errors.Wrap(err, fmt.Sprintf("Can't decode image '%s'", ds.files[i]))
	}
	t, err := TransformImage(img, ds.imageSize)
	if err != nil {
		return nil, 0, errors.Wrap(err, fmt.Sprintf("Can't transform image '%s'", ds.files[i]))
	}
	return t, ds.labels[i], nil
}

// TransformImage Converts image into normalized tensor (3, size, size).
// Color channels are kept straight (not premultiplied by alpha), so dropping alpha leaves RGB untouched.
func TransformImage(img image.Image, size int) (*tensor.Dense, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("Image is empty")
	}
	rgb, alpha := splitAlpha(img)
	w, h := shorterEdgeDims(b.Dx(), b.Dy(), size)
	if w != b.Dx() || h != b.Dy() {
		rgbScaled := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(rgbScaled, rgbScaled.Bounds(), rgb, rgb.Bounds(), draw.Src, nil)
		alphaScaled := image.NewGray(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(alphaScaled, alphaScaled.Bounds(), alpha, alpha.Bounds(), draw.Src, nil)
		rgb, alpha = rgbScaled, alphaScaled
	}
	crop := centerCropRect(rgb.Bounds(), size)
	rgbaCHW := toCHW(rgb.SubImage(crop).(*image.RGBA), alpha.SubImage(crop).(*image.Gray))
	// Drop alpha channel
	rgbView, err := rgbaCHW.Slice(SlicerOneStep{0, ImageChannels})
	if err != nil {
		return nil, errors.Wrap(err, "Can't truncate channels")
	}
	out := rgbView.Materialize().(*tensor.Dense)
	data := out.Data().([]float64)
	for i := range data {
		data[i] = Normalize(data[i])
	}
	return out, nil
}

// splitAlpha Separates straight colors (stored as opaque RGBA) from alpha, so resampling never mixes them
func splitAlpha(img image.Image) (*image.RGBA, *image.Gray) {
	b := img.Bounds()
	rect := image.Rect(0, 0, b.Dx(), b.Dy())
	rgb := image.NewRGBA(rect)
	alpha := image.NewGray(rect)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			rgb.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
			alpha.SetGray(x, y, color.Gray{Y: c.A})
		}
	}
	return rgb, alpha
}

// shorterEdgeDims Scales (w, h) so the shorter edge equals size. Longer edge is truncated.
func shorterEdgeDims(w, h, size int) (int, int) {
	if w <= h {
		return size, h * size / w
	}
	return w * size / h, size
}

func centerCropRect(b image.Rectangle, size int) image.Rectangle {
	x0 := b.Min.X + (b.Dx()-size)/2
	y0 := b.Min.Y + (b.Dy()-size)/2
	return image.Rect(x0, y0, x0+size, y0+size)
}

// toCHW Straight RGB plus alpha => tensor (4, h, w) with values in [0;1]
func toCHW(rgb *image.RGBA, alpha *image.Gray) *tensor.Dense {
	b := rgb.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	data := make([]float64, 4*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := rgb.RGBAAt(b.Min.X+x, b.Min.Y+y)
			idx := y*w + x
			data[idx] = float64(c.R) / 255
			data[plane+idx] = float64(c.G) / 255
			data[2*plane+idx] = float64(c.B) / 255
			data[3*plane+idx] = float64(alpha.GrayAt(b.Min.X+x, b.Min.Y+y).Y) / 255
		}
	}
	return tensor.New(tensor.WithShape(4, h, w), tensor.WithBacking(data))
}

// Batch Real images (batch, 3, size, size) and their labels
type Batch struct {
	Images *tensor.Dense
	Labels []int
}

// Loader Restartable iteration over dataset in batches. Incomplete trailing batch is dropped.
type Loader struct {
	ds        Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	order     []int
	pos       int
}

// NewLoader Creates loader. When shuffle is set, rng must not be nil.
func NewLoader(ds Dataset, batchSize int, shuffle bool, rng *rand.Rand) (*Loader, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("Batch size must be positive, but got %d", batchSize)
	}
	if ds.Len() < batchSize {
		return nil, fmt.Errorf("Dataset has %d images which is less than batch size %d", ds.Len(), batchSize)
	}
	if shuffle && rng == nil {
		return nil, fmt.Errorf("Shuffling loader needs random source")
	}
	ld := &Loader{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rng,
		order:     make([]int, ds.Len()),
	}
	ld.Reset()
	return ld, nil
}

// Len Returns number of full batches in one pass
func (ld *Loader) Len() int {
	return ld.ds.Len() / ld.batchSize
}

// Reset Restarts iteration (and reshuffles if needed)
func (ld *Loader) Reset() {
	for i := range ld.order {
		ld.order[i] = i
	}
	if ld.shuffle {
		ld.rng.Shuffle(len(ld.order), func(i, j int) {
			ld.order[i], ld.order[j] = ld.order[j], ld.order[i]
		})
	}
	ld.pos = 0
}

// Next Returns next batch or io.EOF when pass is over
func (ld *Loader) Next() (*Batch, error) {
	if ld.pos+ld.batchSize > len(ld.order) {
		return nil, io.EOF
	}
	size := ld.ds.ImageSize()
	sampleSize := ImageChannels * size * size
	data := make([]float64, ld.batchSize*sampleSize)
	labels := make([]int, ld.batchSize)
	for i := 0; i < ld.batchSize; i++ {
		idx := ld.order[ld.pos+i]
		img, label, err := ld.ds.Item(idx)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't read item #%d", idx))
		}
		copy(data[i*sampleSize:(i+1)*sampleSize], img.Data().([]float64))
		labels[i] = label
	}
	ld.pos += ld.batchSize
	return &Batch{
		Images: tensor.New(tensor.WithShape(ld.batchSize, ImageChannels, size, size), tensor.WithBacking(data)),
		Labels: labels,
	}, nil
}
