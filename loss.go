package imagegan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
)

// Names of supported adversarial objectives
const (
	LossBCE         = "bce"
	LossLeastSquare = "lsgan"
	LossWasserstein = "wasserstein"
)

// bceEpsilon keeps log() away from zero when discriminator saturates
const bceEpsilon = 1e-12

func reduce(x *gorgonia.Node, reduction []LossReduction) (*gorgonia.Node, error) {
	reductionDefault := LossReductionMean
	if len(reduction) != 0 {
		reductionDefault = reduction[0]
	}
	switch reductionDefault {
	case LossReductionSum:
		return gorgonia.Sum(x)
	case LossReductionMean:
		return gorgonia.Mean(x)
	default:
		return nil, fmt.Errorf("Reduction type %d is not supported", reductionDefault)
	}
}

// MSELoss See ref. https://en.wikipedia.org/wiki/Mean_squared_error
// Default reduction is 'mean'
func MSELoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	sub, err := gorgonia.Sub(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A-B)")
	}
	sqr, err := gorgonia.Square(sub)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	return reduce(sqr, reduction)
}

// BinaryCrossEntropyLoss See ref. https://en.wikipedia.org/wiki/Cross_entropy#Cross-entropy_loss_function_and_logistic_regression
// -[B*log(A) + (1-B)*log(1-A)]. Sample could belong to 0 or 1 only.
// Default reduction is 'mean'
func BinaryCrossEntropyLoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	eps := gorgonia.NewScalar(a.Graph(), a.Dtype(), gorgonia.WithValue(bceEpsilon), gorgonia.WithName(a.Name()+"_bce_eps"))

	aEps, err := gorgonia.Add(a, eps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A+eps)")
	}
	logMain, err := gorgonia.Log(aEps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(A)")
	}
	hprodMain, err := gorgonia.HadamardProd(logMain, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*B)")
	}

	onesTensor := gorgonia.NewTensor(a.Graph(), a.Dtype(), a.Dims(), gorgonia.WithShape(a.Shape()...), gorgonia.WithName(a.Name()+"_bce_ones"), gorgonia.WithInit(gorgonia.Ones()))
	oneSubA, err := gorgonia.Sub(onesTensor, a)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A)")
	}
	oneSubAEps, err := gorgonia.Add(oneSubA, eps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-A+eps)")
	}
	logBin, err := gorgonia.Log(oneSubAEps)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do log(1-A)")
	}
	oneSubB, err := gorgonia.Sub(onesTensor, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (1-B)")
	}
	hprodBin, err := gorgonia.HadamardProd(logBin, oneSubB)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x.*(1-B))")
	}
	sum, err := gorgonia.Add(hprodMain, hprodBin)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+y)")
	}
	neg, err := gorgonia.Neg(sum)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do -1*x")
	}
	return reduce(neg, reduction)
}

// WassersteinLoss Critic loss: mean(A.*B) where B holds -1 for samples which score should grow and +1 for samples which score should drop.
// Default reduction is 'mean'
func WassersteinLoss(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	hprod, err := gorgonia.HadamardProd(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (A.*B)")
	}
	return reduce(hprod, reduction)
}

// LossFunc Loss node constructor: prediction, target
type LossFunc func(a, b *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error)

// Objective Adversarial objective: loss function, labels and discriminator's output activation which fit each other.
//
// RealLabel - target for real images in discriminator step
// FakeLabel - target for generated images in discriminator step
// GeneratorLabel - target for generated images in generator step (generator wants them to be judged as real)
// ClipWeights - discriminator weights must be clipped after each update
//
type Objective struct {
	Name             string
	Loss             LossFunc
	OutputActivation string
	RealLabel        float64
	FakeLabel        float64
	GeneratorLabel   float64
	ClipWeights      bool
}

var objectives = map[string]Objective{
	LossBCE: {
		Name:             LossBCE,
		Loss:             BinaryCrossEntropyLoss,
		OutputActivation: "sigmoid",
		RealLabel:        1,
		FakeLabel:        0,
		GeneratorLabel:   1,
	},
	LossLeastSquare: {
		Name:             LossLeastSquare,
		Loss:             MSELoss,
		OutputActivation: "sigmoid",
		RealLabel:        1,
		FakeLabel:        0,
		GeneratorLabel:   1,
	},
	LossWasserstein: {
		Name:             LossWasserstein,
		Loss:             WassersteinLoss,
		OutputActivation: "none",
		RealLabel:        -1,
		FakeLabel:        1,
		GeneratorLabel:   -1,
		ClipWeights:      true,
	},
}

// ObjectiveByName Returns objective for its name (see LossBCE, LossLeastSquare, LossWasserstein)
func ObjectiveByName(name string) (Objective, error) {
	obj, ok := objectives[name]
	if !ok {
		return Objective{}, fmt.Errorf("Loss '%s' is not supported", name)
	}
	return obj, nil
}

// DiscriminatorTargets Returns targets for batch of [real..., fake...] images
func (obj Objective) DiscriminatorTargets(realNum, fakeNum int) []float64 {
	targets := make([]float64, realNum+fakeNum)
	for i := range targets {
		if i < realNum {
			targets[i] = obj.RealLabel
		} else {
			targets[i] = obj.FakeLabel
		}
	}
	return targets
}

// GeneratorTargets Returns targets for batch of generated images in generator step
func (obj Objective) GeneratorTargets(num int) []float64 {
	targets := make([]float64, num)
	for i := range targets {
		targets[i] = obj.GeneratorLabel
	}
	return targets
}
