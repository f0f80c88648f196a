package imagegan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer Just an alias to Weight+Bias+ActivationFunction combo
//
// ReshapeDims - per-sample dimensions for LayerReshape, batch size is prepended during feedforward
// Scale - upscaling factor for LayerUpsample (2 means 2x bigger spatial size)
//
type Layer struct {
	WeightNode     *gorgonia.Node
	BiasNode       *gorgonia.Node
	Activation     ActivationFunc
	ActivationOpts []Options
	Type           LayerType

	KernelHeight int
	KernelWidth  int
	Padding      []int
	Stride       []int
	Dilation     []int
	ReshapeDims  []int
	Scale        int
}

type LayerType uint16

const (
	LayerLinear = LayerType(iota)
	LayerFlatten
	LayerConvolutional
	LayerReshape
	LayerUpsample
)

func (lt LayerType) String() string {
	switch lt {
	case LayerLinear:
		return "linear"
	case LayerFlatten:
		return "flatten"
	case LayerConvolutional:
		return "conv2d"
	case LayerReshape:
		return "reshape"
	case LayerUpsample:
		return "upsample2d"
	default:
		return fmt.Sprintf("layer(%d)", uint16(lt))
	}
}

var (
	allowedNoWeights = []LayerType{LayerFlatten, LayerReshape, LayerUpsample}
)

func noWeightsAllowed(checkType LayerType) bool {
	return checkLayerType(checkType, allowedNoWeights...)
}

func checkLayerType(checkType LayerType, t ...LayerType) bool {
	for _, typeOf := range t {
		if checkType == typeOf {
			return true
		}
	}
	return false
}

// Fwd Feedforward input through the layer. Activation is not applied here.
//
// batchSize - batch size. If it's >= 2 then broadcast function will be applied for bias
//
func (l *Layer) Fwd(batchSize int, input *gorgonia.Node) (*gorgonia.Node, error) {
	if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
		return nil, fmt.Errorf("Layer of type '%s' has nil weight node", l.Type)
	}
	var out *gorgonia.Node
	var err error
	switch l.Type {
	case LayerLinear:
		tOp, err := gorgonia.Transpose(l.WeightNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose weights")
		}
		out, err = gorgonia.Mul(input, tOp)
		if err != nil {
			return nil, errors.Wrap(err, "Can't multiply input and weights")
		}
	case LayerConvolutional:
		out, err = gorgonia.Conv2d(input, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride, l.Dilation)
		if err != nil {
			return nil, errors.Wrap(err, "Can't convolve[2D] input by kernel")
		}
	case LayerFlatten:
		out, err = gorgonia.Reshape(input, tensor.Shape{batchSize, input.Shape().TotalSize() / batchSize})
		if err != nil {
			return nil, errors.Wrap(err, "Can't flatten input")
		}
	case LayerReshape:
		dims := append(tensor.Shape{batchSize}, l.ReshapeDims...)
		out, err = gorgonia.Reshape(input, dims)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't reshape input to %v", dims))
		}
	case LayerUpsample:
		if l.Scale < 2 {
			return nil, fmt.Errorf("Upsample scale must be >= 2, but got %d", l.Scale)
		}
		out, err = gorgonia.Upsample2D(input, l.Scale)
		if err != nil {
			return nil, errors.Wrap(err, "Can't upsample[2D] input")
		}
	default:
		return nil, fmt.Errorf("Layer type '%d' (uint16) is not handled", l.Type)
	}

	if l.BiasNode == nil {
		return out, nil
	}
	if batchSize < 2 {
		out, err = gorgonia.Add(out, l.BiasNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't add bias to non-activated output")
		}
		return out, nil
	}
	out, err = gorgonia.BroadcastAdd(out, l.BiasNode, nil, []byte{0})
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't add [in broadcast term with batch_size = %d] bias to non-activated output", batchSize))
	}
	return out, nil
}

// clone Returns copy of layer's configuration with weights and bias defined on another graph.
// Values are copied, so the new nodes do not share memory with the source ones.
func (l *Layer) clone(g *gorgonia.ExprGraph, suffix string) *Layer {
	cp := &Layer{
		Activation:     l.Activation,
		ActivationOpts: l.ActivationOpts,
		Type:           l.Type,
		KernelHeight:   l.KernelHeight,
		KernelWidth:    l.KernelWidth,
		Padding:        l.Padding,
		Stride:         l.Stride,
		Dilation:       l.Dilation,
		ReshapeDims:    l.ReshapeDims,
		Scale:          l.Scale,
	}
	if l.WeightNode != nil {
		cp.WeightNode = cloneNode(g, l.WeightNode, suffix)
	}
	if l.BiasNode != nil {
		cp.BiasNode = cloneNode(g, l.BiasNode, suffix)
	}
	return cp
}

func cloneNode(g *gorgonia.ExprGraph, n *gorgonia.Node, suffix string) *gorgonia.Node {
	val := n.Value().(*tensor.Dense).Clone().(*tensor.Dense)
	return gorgonia.NewTensor(g, n.Dtype(), n.Dims(), gorgonia.WithShape(n.Shape()...), gorgonia.WithName(n.Name()+suffix), gorgonia.WithValue(val))
}
