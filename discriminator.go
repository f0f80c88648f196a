package imagegan

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// DiscriminatorNet Abstraction for discriminator part of GAN. It's simple neural network actually: images (batch, 3, size, size) => scores (batch, 1)
type DiscriminatorNet struct {
	private *Network
}

// Discriminator Constructor for DiscriminatorNet
func Discriminator(Layers ...*Layer) *DiscriminatorNet {
	return &DiscriminatorNet{private: &Network{
		Name:   "discriminator",
		Layers: Layers,
	}}
}

// DefineDiscriminator Defines discriminator's learnables on graph and returns network
//
// input(3,size,size) => conv3x3/2(c0)+leaky => conv3x3/2(c1)+leaky => flatten => linear(1)+output activation
//
// outputActivation - activation of the score, it depends on the objective (see Objective.OutputActivation)
//
func DefineDiscriminator(g *gorgonia.ExprGraph, cfg *Config, outputActivation ActivationFunc, rng *rand.Rand) *DiscriminatorNet {
	base := cfg.ImageSize / 4
	c0, c1 := cfg.DiscriminatorChannels[0], cfg.DiscriminatorChannels[1]
	initW := NormalInit(rng, cfg.InitStdDev)

	dis_w0 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(c0, ImageChannels, 3, 3), gorgonia.WithName("discriminator_w0"), gorgonia.WithInit(initW))
	dis_w1 := gorgonia.NewTensor(g, gorgonia.Float64, 4, gorgonia.WithShape(c1, c0, 3, 3), gorgonia.WithName("discriminator_w1"), gorgonia.WithInit(initW))
	dis_w2 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, c1*base*base), gorgonia.WithName("discriminator_w2"), gorgonia.WithInit(initW))
	dis_b2 := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(1, 1), gorgonia.WithName("discriminator_b2"), gorgonia.WithInit(gorgonia.Zeroes()))

	return Discriminator(
		[]*Layer{
			{
				WeightNode:     dis_w0,
				Type:           LayerConvolutional,
				Activation:     LeakyRectify,
				ActivationOpts: []Options{{Alpha: 0.2}},
				KernelHeight:   3,
				KernelWidth:    3,
				Padding:        []int{1, 1},
				Stride:         []int{2, 2},
				Dilation:       []int{1, 1},
			},
			{
				WeightNode:     dis_w1,
				Type:           LayerConvolutional,
				Activation:     LeakyRectify,
				ActivationOpts: []Options{{Alpha: 0.2}},
				KernelHeight:   3,
				KernelWidth:    3,
				Padding:        []int{1, 1},
				Stride:         []int{2, 2},
				Dilation:       []int{1, 1},
			},
			{
				Type: LayerFlatten,
			},
			{
				WeightNode: dis_w2,
				BiasNode:   dis_b2,
				Type:       LayerLinear,
				Activation: outputActivation,
			},
		}...,
	)
}

// Out Returns reference to output node
func (net *DiscriminatorNet) Out() *gorgonia.Node {
	return net.private.out
}

// Learnables Returns learnables nodes
func (net *DiscriminatorNet) Learnables() gorgonia.Nodes {
	return net.private.Learnables()
}

// Fwd Initializates feedforward for provided input
//
// input - Input node
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
//
func (net *DiscriminatorNet) Fwd(input *gorgonia.Node, batchSize int) error {
	if err := net.private.Fwd(input, batchSize); err != nil {
		return errors.Wrap(err, "[Discriminator]")
	}
	return nil
}
