package imagegan

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ImageChannels Number of channels of every image passed to/from networks
const ImageChannels = 3

// GeneratorNet Abstraction for generator part of GAN: latent vectors (batch, latent) => images (batch, 3, size, size)
type GeneratorNet struct {
	private *Network
}

// Generator Constructor for GeneratorNet
func Generator(Layers ...*Layer) *GeneratorNet {
	return &GeneratorNet{private: &Network{
		Name:   "generator",
		Layers: Layers,
	}}
}

// DefineGenerator Defines generator's learnables on graph and returns network
//
// input(latent) => linear(c0*base*base)+relu => reshape(c0,base,base) => upsample(x2)
//               => conv3x3(c1)+relu => upsample(x2) => conv3x3(3)+tanh
// where base = image_size/4
//
func DefineGenerator(g *gorgonia.ExprGraph, cfg *Config, rng *rand.Rand) *GeneratorNet {
	base := cfg.ImageSize / 4
	c0, c1 := cfg.GeneratorChannels[0], cfg.GeneratorChannels[1]
	initW := NormalInit(rng, cfg.InitStdDev)

	gen_w0 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(c0*base*base, cfg.LatentSize), gorgonia.WithName("generator_w0"), gorgonia.WithInit(initW))
	gen_b0 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, c0*base*base), gorgonia.WithName("generator_b0"), gorgonia.WithInit(gorgonia.Zeroes()))
	gen_w1 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(c1, c0, 3, 3), gorgonia.WithName("generator_w1"), gorgonia.WithInit(initW))
	gen_w2 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(ImageChannels, c1, 3, 3), gorgonia.WithName("generator_w2"), gorgonia.WithInit(initW))

	return Generator(
		[]*Layer{
			{
				WeightNode: gen_w0,
				BiasNode:   gen_b0,
				Type:       LayerLinear,
				Activation: Rectify,
			},
			{
				Type:        LayerReshape,
				ReshapeDims: []int{c0, base, base},
			},
			{
				Type:  LayerUpsample,
				Scale: 2,
			},
			{
				WeightNode:   gen_w1,
				Type:         LayerConvolutional,
				Activation:   Rectify,
				KernelHeight: 3,
				KernelWidth:  3,
				Padding:      []int{1, 1},
				Stride:       []int{1, 1},
				Dilation:     []int{1, 1},
			},
			{
				Type:  LayerUpsample,
				Scale: 2,
			},
			{
				WeightNode:   gen_w2,
				Type:         LayerConvolutional,
				Activation:   Tanh,
				KernelHeight: 3,
				KernelWidth:  3,
				Padding:      []int{1, 1},
				Stride:       []int{1, 1},
				Dilation:     []int{1, 1},
			},
		}...,
	)
}

// Out Returns reference to output node
func (net *GeneratorNet) Out() *gorgonia.Node {
	return net.private.out
}

// Learnables Returns learnables nodes
func (net *GeneratorNet) Learnables() gorgonia.Nodes {
	return net.private.Learnables()
}

// Fwd Initializates feedforward for provided input
//
// input - Input node
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
//
func (net *GeneratorNet) Fwd(input *gorgonia.Node, batchSize int) error {
	if err := net.private.Fwd(input, batchSize); err != nil {
		return errors.Wrap(err, "[Generator]")
	}
	return nil
}

// Clone Defines a copy of generator on another graph, learnables values are copied
func (net *GeneratorNet) Clone(g *gorgonia.ExprGraph, suffix string) *GeneratorNet {
	return &GeneratorNet{private: net.private.clone(g, net.private.Name+suffix, suffix)}
}

// GeneratorRunner Generator defined on its own graph without gradients.
// It is used for sampling fake images during training and for inference.
type GeneratorRunner struct {
	batchSize int
	graph     *gorgonia.ExprGraph
	net       *GeneratorNet
	input     *gorgonia.Node
	out       gorgonia.Value
	vm        gorgonia.VM
}

// NewGeneratorRunner Defines generator for fixed batch size on a new graph
//
// source - when not nil, runner's generator copies its structure and current values, otherwise fresh generator is defined
//
func NewGeneratorRunner(cfg *Config, batchSize int, source *GeneratorNet, rng *rand.Rand, vmOpts ...gorgonia.VMOpt) (*GeneratorRunner, error) {
	g := gorgonia.NewGraph()
	var net *GeneratorNet
	if source != nil {
		net = source.Clone(g, fmt.Sprintf("_run%d", batchSize))
	} else {
		net = DefineGenerator(g, cfg, rng)
	}
	input := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(batchSize, cfg.LatentSize), gorgonia.WithName("generator_input"))
	if err := net.Fwd(input, batchSize); err != nil {
		return nil, err
	}
	runner := &GeneratorRunner{
		batchSize: batchSize,
		graph:     g,
		net:       net,
		input:     input,
	}
	gorgonia.Read(net.Out(), &runner.out)
	runner.vm = gorgonia.NewTapeMachine(g, vmOpts...)
	return runner, nil
}

// Learnables Returns learnables of runner's generator
func (r *GeneratorRunner) Learnables() gorgonia.Nodes {
	return r.net.Learnables()
}

// Sync Copies current values of provided learnables into runner's generator
func (r *GeneratorRunner) Sync(src gorgonia.Nodes) error {
	return CopyValues(r.net.Learnables(), src)
}

// Run Feedforwards batch of latent vectors (batch, latent) and returns copy of generated images (batch, 3, size, size)
func (r *GeneratorRunner) Run(latent *tensor.Dense) (*tensor.Dense, error) {
	if latent.Shape()[0] != r.batchSize {
		return nil, fmt.Errorf("Latent batch has %d rows, but runner expects %d", latent.Shape()[0], r.batchSize)
	}
	if err := gorgonia.Let(r.input, latent); err != nil {
		return nil, errors.Wrap(err, "Can't init generator input value")
	}
	defer r.vm.Reset()
	if err := r.vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "Can't run generator VM")
	}
	out, ok := r.out.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("Generator output is %T, but *tensor.Dense is expected", r.out)
	}
	return out.Clone().(*tensor.Dense), nil
}

// Close Releases VM resources
func (r *GeneratorRunner) Close() error {
	return r.vm.Close()
}
