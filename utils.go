package imagegan

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NormRandDense Return reference to tensor.Dense filled with normally distributed float64 values (mean = 0, stddev = 1)
//
// rng - source of randomness. Same seeded source gives same values
// batchSize - Simply batch size
// n - Number of elements in each batch
// Resulting dense will have batchSize*n elements
//
func NormRandDense(rng *rand.Rand, batchSize, n int) *tensor.Dense {
	data := make([]float64, batchSize*n)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return tensor.New(tensor.WithShape(batchSize, n), tensor.WithBacking(data))
}

// NormalInit Returns initialization function which draws float64 values from N(0, stddev^2) using provided source
func NormalInit(rng *rand.Rand, stddev float64) gorgonia.InitWFn {
	return func(dt tensor.Dtype, s ...int) interface{} {
		size := tensor.Shape(s).TotalSize()
		data := make([]float64, size)
		for i := range data {
			data[i] = rng.NormFloat64() * stddev
		}
		return data
	}
}

// CopyValues Copies values of src nodes into values of dst nodes in place.
// Both sequences must have same length and pairwise equal shapes.
func CopyValues(dst, src gorgonia.Nodes) error {
	if len(dst) != len(src) {
		return fmt.Errorf("Number of destination nodes (%d) differs from number of source nodes (%d)", len(dst), len(src))
	}
	for i := range src {
		dstData, err := float64Data(dst[i])
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't access destination node '%s'", dst[i].Name()))
		}
		srcData, err := float64Data(src[i])
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't access source node '%s'", src[i].Name()))
		}
		if !dst[i].Shape().Eq(src[i].Shape()) {
			return fmt.Errorf("Shape of node '%s' %v differs from shape of node '%s' %v", dst[i].Name(), dst[i].Shape(), src[i].Name(), src[i].Shape())
		}
		copy(dstData, srcData)
	}
	return nil
}

// ClipValues Clips every value of provided nodes into [-c; c] in place
func ClipValues(nodes gorgonia.Nodes, c float64) error {
	for _, n := range nodes {
		data, err := float64Data(n)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't access node '%s'", n.Name()))
		}
		for i := range data {
			if data[i] > c {
				data[i] = c
			} else if data[i] < -c {
				data[i] = -c
			}
		}
	}
	return nil
}

func float64Data(n *gorgonia.Node) ([]float64, error) {
	if n.Value() == nil {
		return nil, fmt.Errorf("node has no value")
	}
	dense, ok := n.Value().(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("node value is %T, but *tensor.Dense is expected", n.Value())
	}
	data, ok := dense.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("node data is %T, but []float64 is expected", dense.Data())
	}
	return data, nil
}

// SlicerOneStep Just iterator with step size = 1
type SlicerOneStep struct {
	StartIdx, EndIdx int
}

func (s SlicerOneStep) Start() int { return s.StartIdx }
func (s SlicerOneStep) End() int   { return s.EndIdx }
func (s SlicerOneStep) Step() int  { return 1 }

// Normalize Maps [0;1] into [-1;1]
func Normalize(x float64) float64 {
	return (x - 0.5) / 0.5
}

// Denormalize Maps [-1;1] back into [0;1]. Values outside are clamped.
func Denormalize(x float64) float64 {
	v := x*0.5 + 0.5
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
