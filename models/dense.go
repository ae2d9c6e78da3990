package models

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrUnknownActivation = errors.New("unknown activation")
	ErrNoLayers          = errors.New("network has no layers")
	ErrBadLayerShape     = errors.New("layer shape does not chain with its input")
)

// Activation names a layer activation function.
type Activation string

const (
	ActivationLinear  Activation = "linear"
	ActivationReLU    Activation = "relu"
	ActivationTanh    Activation = "tanh"
	ActivationSigmoid Activation = "sigmoid"
)

func (a Activation) apply(v float64) (float64, error) {
	switch a {
	case ActivationLinear, "":
		return v, nil
	case ActivationReLU:
		return math.Max(0, v), nil
	case ActivationTanh:
		return math.Tanh(v), nil
	case ActivationSigmoid:
		return 1.0 / (1.0 + math.Exp(-v)), nil
	default:
		return 0, fmt.Errorf("%q, %w", string(a), ErrUnknownActivation)
	}
}

// DenseLayer is one fully connected layer. Weights are indexed
// [input][output].
type DenseLayer struct {
	Weights    [][]float64 `json:"weights"`
	Biases     []float64   `json:"biases"`
	Activation Activation  `json:"activation"`
}

// DenseNetwork is an inference-only feed forward network mapping a flattened
// input window of shape (InputSteps, InputDims) to a single scalar. The
// network is fit elsewhere and consumed here as a serialized artifact.
type DenseNetwork struct {
	InputSteps int          `json:"input_steps"`
	InputDims  int          `json:"input_dims"`
	Layers     []DenseLayer `json:"layers"`
}

// Validate checks that the layer shapes chain from the flattened window size
// down to a single output and that all activations are known.
func (n *DenseNetwork) Validate() error {
	if n == nil || len(n.Layers) == 0 {
		return ErrNoLayers
	}
	if n.InputSteps <= 0 || n.InputDims <= 0 {
		return fmt.Errorf("input window is %dx%d, %w", n.InputSteps, n.InputDims, ErrBadLayerShape)
	}

	width := n.InputSteps * n.InputDims
	for i, layer := range n.Layers {
		if len(layer.Weights) != width {
			return fmt.Errorf("layer %d expects %d inputs but got %d, %w", i, width, len(layer.Weights), ErrBadLayerShape)
		}
		var out int
		for j, row := range layer.Weights {
			if j == 0 {
				out = len(row)
				continue
			}
			if len(row) != out {
				return fmt.Errorf("layer %d weight row %d is ragged, %w", i, j, ErrBadLayerShape)
			}
		}
		if out == 0 || len(layer.Biases) != out {
			return fmt.Errorf("layer %d has %d biases for %d outputs, %w", i, len(layer.Biases), out, ErrBadLayerShape)
		}
		if _, err := layer.Activation.apply(0); err != nil {
			return fmt.Errorf("layer %d, %w", i, err)
		}
		width = out
	}
	if width != 1 {
		return fmt.Errorf("final layer emits %d outputs instead of 1, %w", width, ErrBadLayerShape)
	}
	return nil
}

// Forward runs the network on an input window of shape (InputSteps,
// InputDims), flattening it row major, and returns the scalar output.
func (n *DenseNetwork) Forward(window mat.Matrix) (float64, error) {
	if window == nil {
		return 0, ErrNoDesignMatrix
	}
	r, c := window.Dims()
	if r != n.InputSteps || c != n.InputDims {
		return 0, fmt.Errorf("got %dx%d window, but network expects %dx%d, %w",
			r, c, n.InputSteps, n.InputDims, ErrFeatureLenMismatch)
	}

	v := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v = append(v, window.At(i, j))
		}
	}

	for li, layer := range n.Layers {
		out := make([]float64, len(layer.Biases))
		for k := range out {
			acc := layer.Biases[k]
			for i, w := range layer.Weights {
				acc += v[i] * w[k]
			}
			a, err := layer.Activation.apply(acc)
			if err != nil {
				return 0, fmt.Errorf("layer %d, %w", li, err)
			}
			out[k] = a
		}
		v = out
	}
	return v[0], nil
}
