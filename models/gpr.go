package models

import (
	"errors"
	"fmt"
	"math"

	mat_ "github.com/evfleet/sohcast/mat"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var ErrNotPositiveDefinite = errors.New("kernel matrix is not positive definite")

// GPROptions represents input options for Gaussian process regression with an
// RBF plus white-noise kernel.
type GPROptions struct {
	// RBFLengthScale controls the width of the radial basis kernel. Must be positive.
	RBFLengthScale float64 `json:"rbf_length_scale"`

	// WhiteNoise is added to the kernel diagonal during fitting, regularizing the solve.
	WhiteNoise float64 `json:"white_noise"`

	// NormalizeY centers and scales the target before fitting and undoes it on predict.
	NormalizeY bool `json:"normalize_y"`
}

// Validate runs basic validation on GPR options
func (g *GPROptions) Validate() (*GPROptions, error) {
	if g == nil {
		g = NewDefaultGPROptions()
	}
	if g.RBFLengthScale <= 0 {
		return nil, fmt.Errorf("rbf length scale %f, %w", g.RBFLengthScale, ErrBadParams)
	}
	if g.WhiteNoise < 0 {
		return nil, fmt.Errorf("white noise %f, %w", g.WhiteNoise, ErrBadParams)
	}
	return g, nil
}

// NewDefaultGPROptions returns a default set of GPR options
func NewDefaultGPROptions() *GPROptions {
	return &GPROptions{
		RBFLengthScale: 1.0,
		WhiteNoise:     1.0,
	}
}

// GPR computes a Gaussian process regression mean predictor. Fitting solves
// for the dual weights alpha with a Cholesky factorization of the kernel
// matrix; prediction is a kernel dot product against the training inputs.
// Inference is deterministic.
type GPR struct {
	opt *GPROptions

	xTrain  *mat.Dense
	alpha   []float64
	yMean   float64
	yStd    float64
	trained bool
}

// NewGPR initializes a GPR model ready for fitting
func NewGPR(opt *GPROptions) (*GPR, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &GPR{opt: opt, yStd: 1.0}, nil
}

// Fit the model according to the given training data
func (g *GPR) Fit(x, y mat.Matrix) error {
	if g.opt == nil {
		return ErrNoOptions
	}
	if x == nil {
		return ErrNoTrainingMatrix
	}
	if y == nil {
		return ErrNoTargetMatrix
	}
	m, _ := x.Dims()
	ym, _ := y.Dims()
	if ym != m {
		return fmt.Errorf("training data has %d rows and target has %d rows, %w", m, ym, ErrTargetLenMismatch)
	}
	if m == 0 {
		return ErrNoTrainingRows
	}

	yArr := mat.Col(nil, 0, y)
	g.yMean = 0.0
	g.yStd = 1.0
	if g.opt.NormalizeY {
		mean, stddev := stat.MeanStdDev(yArr, nil)
		if stddev == 0 || math.IsNaN(stddev) {
			stddev = 1.0
		}
		g.yMean = mean
		g.yStd = stddev
	}
	yNorm := make([]float64, m)
	for i := 0; i < m; i++ {
		yNorm[i] = (yArr[i] - g.yMean) / g.yStd
	}

	xTrain := mat.DenseCopyOf(x)
	k := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		xi := xTrain.RawRowView(i)
		for j := i; j < m; j++ {
			v := rbfKernel(xi, xTrain.RawRowView(j), g.opt.RBFLengthScale)
			if i == j {
				v += g.opt.WhiteNoise
			}
			k.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(k); !ok {
		return ErrNotPositiveDefinite
	}
	alpha := mat.NewVecDense(m, nil)
	if err := chol.SolveVecTo(alpha, mat.NewVecDense(m, yNorm)); err != nil {
		return fmt.Errorf("unable to solve for dual weights, %w", err)
	}

	g.xTrain = xTrain
	g.alpha = alpha.RawVector().Data
	g.trained = true
	return nil
}

// Predict returns the posterior mean for each row of x
func (g *GPR) Predict(x mat.Matrix) ([]float64, error) {
	if g.opt == nil {
		return nil, ErrNoOptions
	}
	if !g.trained {
		return nil, ErrUntrainedModel
	}
	if x == nil {
		return nil, ErrNoDesignMatrix
	}
	m, n := x.Dims()
	_, tn := g.xTrain.Dims()
	if n != tn {
		return nil, fmt.Errorf("got %d features in design matrix, but expected %d, %w", n, tn, ErrFeatureLenMismatch)
	}

	tm, _ := g.xTrain.Dims()
	res := make([]float64, m)
	row := make([]float64, n)
	for i := 0; i < m; i++ {
		mat.Row(row, i, x)
		var s float64
		for j := 0; j < tm; j++ {
			s += g.alpha[j] * rbfKernel(row, g.xTrain.RawRowView(j), g.opt.RBFLengthScale)
		}
		res[i] = s*g.yStd + g.yMean
	}
	return res, nil
}

// Score computes the coefficient of determination of the prediction
func (g *GPR) Score(x, y mat.Matrix) (float64, error) {
	if x == nil {
		return 0.0, ErrNoDesignMatrix
	}
	if y == nil {
		return 0.0, ErrNoTargetMatrix
	}
	m, _ := x.Dims()
	ym, _ := y.Dims()
	if m != ym {
		return 0.0, fmt.Errorf("design matrix has %d rows and target has %d rows, %w", m, ym, ErrTargetLenMismatch)
	}

	res, err := g.Predict(x)
	if err != nil {
		return 0.0, err
	}
	ySlice := mat.Col(nil, 0, y)
	score := stat.RSquaredFrom(res, ySlice, nil)
	if math.IsNaN(score) {
		score = 1.0
	}
	return score, nil
}

// GPRParams is the serializeable representation of a fitted GPR, sufficient
// to reconstruct the predictor without refitting.
type GPRParams struct {
	Options *GPROptions `json:"options"`
	XTrain  [][]float64 `json:"x_train"`
	Alpha   []float64   `json:"alpha"`
	YMean   float64     `json:"y_mean"`
	YStd    float64     `json:"y_std"`
}

// Params exports the fitted model state
func (g *GPR) Params() (GPRParams, error) {
	if !g.trained {
		return GPRParams{}, ErrUntrainedModel
	}
	m, n := g.xTrain.Dims()
	xTrain := make([][]float64, m)
	for i := 0; i < m; i++ {
		row := make([]float64, n)
		copy(row, g.xTrain.RawRowView(i))
		xTrain[i] = row
	}
	alpha := make([]float64, len(g.alpha))
	copy(alpha, g.alpha)
	return GPRParams{
		Options: g.opt,
		XTrain:  xTrain,
		Alpha:   alpha,
		YMean:   g.yMean,
		YStd:    g.yStd,
	}, nil
}

// NewGPRFromParams reconstructs a fitted GPR from serialized parameters. The
// returned model can be used for inference immediately.
func NewGPRFromParams(p GPRParams) (*GPR, error) {
	opt, err := p.Options.Validate()
	if err != nil {
		return nil, err
	}
	if len(p.XTrain) == 0 {
		return nil, fmt.Errorf("no training inputs, %w", ErrBadParams)
	}
	if len(p.Alpha) != len(p.XTrain) {
		return nil, fmt.Errorf("got %d dual weights for %d training inputs, %w", len(p.Alpha), len(p.XTrain), ErrBadParams)
	}
	xTrain, err := mat_.NewDenseFromArray(p.XTrain)
	if err != nil {
		return nil, fmt.Errorf("ragged training inputs, %w", err)
	}
	yStd := p.YStd
	if yStd == 0 {
		yStd = 1.0
	}
	return &GPR{
		opt:     opt,
		xTrain:  xTrain,
		alpha:   p.Alpha,
		yMean:   p.YMean,
		yStd:    yStd,
		trained: true,
	}, nil
}

// rbfKernel computes exp(-||a-b||^2 / (2*l^2))
func rbfKernel(a, b []float64, lengthScale float64) float64 {
	var d2 float64
	for i := 0; i < len(a); i++ {
		d := a[i] - b[i]
		d2 += d * d
	}
	return math.Exp(-d2 / (2.0 * lengthScale * lengthScale))
}
