package imagegan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// GAN Generator stacked with frozen copy of Discriminator. It is used for Generator's training step only.
//
// generatorPart - reference to Generator (defined on the same graph as GAN)
// discriminatorPart - reference to Discriminator (defined on its own graph)
// modifiedDiscriminator - copy of structure of Discriminator which learnables are ignored during the training process
//
type GAN struct {
	generatorPart     *GeneratorNet
	discriminatorPart *DiscriminatorNet

	modifiedDiscriminator *DiscriminatorNet

	out           *gorgonia.Node
	learnablesGen gorgonia.Nodes
}

// NewGAN Prepares GAN on the graph where definedGenerator has been defined
func NewGAN(g *gorgonia.ExprGraph, definedGenerator *GeneratorNet, definedDiscriminator *DiscriminatorNet) (*GAN, error) {
	for i, l := range definedDiscriminator.private.Layers {
		if l == nil {
			return nil, fmt.Errorf("Discriminator's Layer %d is nil", i)
		}
		if l.WeightNode == nil && !noWeightsAllowed(l.Type) {
			return nil, fmt.Errorf("Discriminator's Layer %d has nil weight node", i)
		}
	}
	definedGAN := GAN{
		generatorPart:         definedGenerator,
		discriminatorPart:     definedDiscriminator,
		modifiedDiscriminator: &DiscriminatorNet{private: definedDiscriminator.private.clone(g, "gan_discriminator", "_gan")},
		learnablesGen:         definedGenerator.Learnables(),
	}
	return &definedGAN, nil
}

// Out Returns reference to output node
func (net *GAN) Out() *gorgonia.Node {
	return net.out
}

// GeneratorLearnables Returns learnables nodes of generator part. These are the only nodes GAN's solver should update.
func (net *GAN) GeneratorLearnables() gorgonia.Nodes {
	return net.learnablesGen
}

// SyncDiscriminator Copies current values of Discriminator's learnables into frozen copy
func (net *GAN) SyncDiscriminator() error {
	if err := CopyValues(net.modifiedDiscriminator.Learnables(), net.discriminatorPart.Learnables()); err != nil {
		return errors.Wrap(err, "Can't sync GAN's discriminator part")
	}
	return nil
}

// Fwd Initializates feedforward for discriminator part of GAN
//
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
// Note: input node is not needed since input for Discriminator is just Generator's output
//
func (net *GAN) Fwd(batchSize int) error {
	if net.generatorPart.Out() == nil {
		return fmt.Errorf("Generator part of GAN must be feedforwarded before GAN itself")
	}
	if err := net.modifiedDiscriminator.private.Fwd(net.generatorPart.Out(), batchSize); err != nil {
		return errors.Wrap(err, "[GAN, Discriminator part]")
	}
	net.out = net.modifiedDiscriminator.Out()
	return nil
}
