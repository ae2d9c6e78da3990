package models

import (
	"fmt"
	"math"

	mat_ "github.com/evfleet/sohcast/mat"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultSVRIterations = 1000
	DefaultSVRTolerance  = 1e-4

	// support vectors with dual weights below this magnitude are pruned after fitting
	svrSupportThreshold = 1e-12
)

// SVROptions represents input options for epsilon support vector regression
// with an RBF kernel.
type SVROptions struct {
	// C is the box constraint on the dual weights, controlling regularization. Must be positive.
	C float64 `json:"c"`

	// Epsilon is the width of the insensitive tube around the target.
	Epsilon float64 `json:"epsilon"`

	// Gamma is the RBF kernel coefficient. Non-positive selects the scale
	// heuristic 1/(n_features * var(x)) at fit time.
	Gamma float64 `json:"gamma"`

	// Iterations is the maximum number of sweeps through all dual weights.
	Iterations int `json:"iterations"`

	// Tolerance is the smallest weight change on each sweep to determine when to stop iterating.
	Tolerance float64 `json:"tolerance"`
}

// Validate runs basic validation on SVR options
func (s *SVROptions) Validate() (*SVROptions, error) {
	if s == nil {
		s = NewDefaultSVROptions()
	}
	if s.C <= 0 {
		return nil, fmt.Errorf("box constraint %f, %w", s.C, ErrBadParams)
	}
	if s.Epsilon < 0 {
		return nil, fmt.Errorf("epsilon %f, %w", s.Epsilon, ErrBadParams)
	}
	if s.Iterations < 0 {
		return nil, fmt.Errorf("iterations %d, %w", s.Iterations, ErrBadParams)
	}
	if s.Tolerance < 0 {
		return nil, fmt.Errorf("tolerance %f, %w", s.Tolerance, ErrBadParams)
	}
	if s.Iterations == 0 {
		s.Iterations = DefaultSVRIterations
	}
	if s.Tolerance == 0 {
		s.Tolerance = DefaultSVRTolerance
	}
	return s, nil
}

// NewDefaultSVROptions returns a default set of SVR options
func NewDefaultSVROptions() *SVROptions {
	return &SVROptions{
		C:          1.0,
		Epsilon:    0.1,
		Iterations: DefaultSVRIterations,
		Tolerance:  DefaultSVRTolerance,
	}
}

// SVR computes epsilon support vector regression in the dual, using cyclic
// coordinate descent with soft-thresholding for the epsilon term and box
// clipping for the C constraint. The sweep order is fixed so fitting is
// deterministic.
type SVR struct {
	opt *SVROptions

	gamma   float64
	sv      *mat.Dense
	nFeat   int
	coef    []float64
	b       float64
	trained bool
}

// NewSVR initializes an SVR model ready for fitting
func NewSVR(opt *SVROptions) (*SVR, error) {
	opt, err := opt.Validate()
	if err != nil {
		return nil, err
	}
	return &SVR{opt: opt}, nil
}

// Fit the model according to the given training data
func (s *SVR) Fit(x, y mat.Matrix) error {
	if s.opt == nil {
		return ErrNoOptions
	}
	if x == nil {
		return ErrNoTrainingMatrix
	}
	if y == nil {
		return ErrNoTargetMatrix
	}
	m, n := x.Dims()
	ym, _ := y.Dims()
	if ym != m {
		return fmt.Errorf("training data has %d rows and target has %d rows, %w", m, ym, ErrTargetLenMismatch)
	}
	if m == 0 {
		return ErrNoTrainingRows
	}

	xTrain := mat.DenseCopyOf(x)
	yArr := mat.Col(nil, 0, y)
	s.gamma = s.resolveGamma(xTrain, m, n)

	// precompute the kernel matrix
	k := make([][]float64, m)
	for i := 0; i < m; i++ {
		k[i] = make([]float64, m)
		for j := 0; j < m; j++ {
			k[i][j] = rbfGamma(xTrain.RawRowView(i), xTrain.RawRowView(j), s.gamma)
		}
	}

	beta := make([]float64, m)
	kBeta := make([]float64, m)
	s.b = stat.Mean(yArr, nil)

	for iter := 0; iter < s.opt.Iterations; iter++ {
		maxCoef := 0.0
		maxUpdate := 0.0

		for j := 0; j < m; j++ {
			betaCurr := beta[j]

			// partial residual excluding coordinate j
			num := yArr[j] - s.b - (kBeta[j] - k[j][j]*betaCurr)
			betaNext := SoftThreshold(num, s.opt.Epsilon) / k[j][j]
			betaNext = math.Max(-s.opt.C, math.Min(s.opt.C, betaNext))

			maxCoef = math.Max(maxCoef, math.Abs(betaNext))
			maxUpdate = math.Max(maxUpdate, math.Abs(betaNext-betaCurr))

			if betaNext != betaCurr {
				delta := betaNext - betaCurr
				for i := 0; i < m; i++ {
					kBeta[i] += k[i][j] * delta
				}
				beta[j] = betaNext
			}
		}

		// refit the bias to the current residual
		var r float64
		for i := 0; i < m; i++ {
			r += yArr[i] - kBeta[i]
		}
		s.b = r / float64(m)

		if maxUpdate < s.opt.Tolerance*maxCoef {
			break
		}
	}

	// keep only support vectors
	var rows []int
	for i := 0; i < m; i++ {
		if math.Abs(beta[i]) > svrSupportThreshold {
			rows = append(rows, i)
		}
	}
	var sv *mat.Dense
	coef := make([]float64, len(rows))
	if len(rows) > 0 {
		sv = mat.NewDense(len(rows), n, nil)
		for i, r := range rows {
			sv.SetRow(i, xTrain.RawRowView(r))
			coef[i] = beta[r]
		}
	}
	s.sv = sv
	s.nFeat = n
	s.coef = coef
	s.trained = true
	return nil
}

func (s *SVR) resolveGamma(x *mat.Dense, m, n int) float64 {
	if s.opt.Gamma > 0 {
		return s.opt.Gamma
	}
	all := make([]float64, 0, m*n)
	for i := 0; i < m; i++ {
		all = append(all, x.RawRowView(i)...)
	}
	v := stat.Variance(all, nil)
	if v == 0 || math.IsNaN(v) {
		return 1.0 / float64(n)
	}
	return 1.0 / (float64(n) * v)
}

// Predict using the SVR model
func (s *SVR) Predict(x mat.Matrix) ([]float64, error) {
	if s.opt == nil {
		return nil, ErrNoOptions
	}
	if !s.trained {
		return nil, ErrUntrainedModel
	}
	if x == nil {
		return nil, ErrNoDesignMatrix
	}
	m, n := x.Dims()
	if n != s.nFeat {
		return nil, fmt.Errorf("got %d features in design matrix, but expected %d, %w", n, s.nFeat, ErrFeatureLenMismatch)
	}

	var sm int
	if s.sv != nil {
		sm, _ = s.sv.Dims()
	}
	res := make([]float64, m)
	row := make([]float64, n)
	for i := 0; i < m; i++ {
		mat.Row(row, i, x)
		v := s.b
		for j := 0; j < sm; j++ {
			v += s.coef[j] * rbfGamma(row, s.sv.RawRowView(j), s.gamma)
		}
		res[i] = v
	}
	return res, nil
}

// Score computes the coefficient of determination of the prediction
func (s *SVR) Score(x, y mat.Matrix) (float64, error) {
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

	res, err := s.Predict(x)
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

// SVRParams is the serializeable representation of a fitted SVR.
type SVRParams struct {
	Options        *SVROptions `json:"options"`
	Gamma          float64     `json:"gamma"`
	NFeatures      int         `json:"n_features"`
	SupportVectors [][]float64 `json:"support_vectors"`
	Coef           []float64   `json:"coef"`
	B              float64     `json:"b"`
}

// Params exports the fitted model state
func (s *SVR) Params() (SVRParams, error) {
	if !s.trained {
		return SVRParams{}, ErrUntrainedModel
	}
	var sv [][]float64
	if s.sv != nil {
		m, n := s.sv.Dims()
		sv = make([][]float64, m)
		for i := 0; i < m; i++ {
			row := make([]float64, n)
			copy(row, s.sv.RawRowView(i))
			sv[i] = row
		}
	}
	coef := make([]float64, len(s.coef))
	copy(coef, s.coef)
	return SVRParams{
		Options:        s.opt,
		Gamma:          s.gamma,
		NFeatures:      s.nFeat,
		SupportVectors: sv,
		Coef:           coef,
		B:              s.b,
	}, nil
}

// NewSVRFromParams reconstructs a fitted SVR from serialized parameters. The
// returned model can be used for inference immediately.
func NewSVRFromParams(p SVRParams) (*SVR, error) {
	opt, err := p.Options.Validate()
	if err != nil {
		return nil, err
	}
	if p.Gamma <= 0 {
		return nil, fmt.Errorf("gamma %f, %w", p.Gamma, ErrBadParams)
	}
	if len(p.Coef) != len(p.SupportVectors) {
		return nil, fmt.Errorf("got %d dual weights for %d support vectors, %w", len(p.Coef), len(p.SupportVectors), ErrBadParams)
	}
	if p.NFeatures <= 0 {
		return nil, fmt.Errorf("n_features %d, %w", p.NFeatures, ErrBadParams)
	}
	var sv *mat.Dense
	if len(p.SupportVectors) > 0 {
		sv, err = mat_.NewDenseFromArray(p.SupportVectors)
		if err != nil {
			return nil, fmt.Errorf("ragged support vectors, %w", err)
		}
		if _, n := sv.Dims(); n != p.NFeatures {
			return nil, fmt.Errorf("support vectors have %d columns for n_features %d, %w", n, p.NFeatures, ErrBadParams)
		}
	}
	return &SVR{
		opt:     opt,
		gamma:   p.Gamma,
		sv:      sv,
		nFeat:   p.NFeatures,
		coef:    p.Coef,
		b:       p.B,
		trained: true,
	}, nil
}

// SoftThreshold returns 0.0 if the value is less than or equal to the gamma input
func SoftThreshold(x, gamma float64) float64 {
	res := math.Max(0, math.Abs(x)-gamma)
	if math.Signbit(x) {
		return -res
	}
	return res
}

// rbfGamma computes exp(-gamma*||a-b||^2), the sklearn-style RBF parameterization
func rbfGamma(a, b []float64, gamma float64) float64 {
	var d2 float64
	for i := 0; i < len(a); i++ {
		d := a[i] - b[i]
		d2 += d * d
	}
	return math.Exp(-gamma * d2)
}
