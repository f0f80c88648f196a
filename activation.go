package imagegan

import (
	"gorgonia.org/gorgonia"
)

// ActivationFunc Just an alias to Gorgonia's unary ops with optional parameters (see Options)
type ActivationFunc func(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)

func NoActivation(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) { return a, nil }
func Tanh(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)         { return gorgonia.Tanh(a) }
func Sigmoid(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Sigmoid(a) }
func Rectify(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error)      { return gorgonia.Rectify(a) }

// LeakyRectify Leaky ReLU. First option with non-zero 'Alpha' provides slope for negative values, default slope is 0.2
func LeakyRectify(a *gorgonia.Node, opts ...Options) (*gorgonia.Node, error) {
	alpha := 0.2
	for i := range opts {
		if opts[i].Alpha != 0 {
			alpha = opts[i].Alpha
			break
		}
	}
	return gorgonia.LeakyRelu(a, alpha)
}

// Options Struct for holding options for certain activation functions.
type Options struct {
	Alpha float64
}

var activationsByName = map[string]ActivationFunc{
	"none":    NoActivation,
	"relu":    Rectify,
	"leaky":   LeakyRectify,
	"tanh":    Tanh,
	"sigmoid": Sigmoid,
}

// ActivationByName Returns activation function for its short name (e.g. "relu", "tanh")
func ActivationByName(name string) (ActivationFunc, bool) {
	f, ok := activationsByName[name]
	return f, ok
}
