package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each column to zero mean and unit standard deviation.
// The zero value is unusable; fit one with FitStandardScaler or decode one
// from a serialized artifact and call Validate.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitStandardScaler computes the per column mean and standard deviation of x.
// Columns with zero or undefined spread get a scale of 1.0 so transforming
// stays invertible.
func FitStandardScaler(x mat.Matrix) *StandardScaler {
	_, n := x.Dims()
	s := &StandardScaler{
		Mean:  make([]float64, n),
		Scale: make([]float64, n),
	}
	for j := 0; j < n; j++ {
		col := mat.Col(nil, j, x)
		mean, stddev := stat.MeanStdDev(col, nil)
		if stddev == 0 || math.IsNaN(stddev) {
			stddev = 1.0
		}
		s.Mean[j] = mean
		s.Scale[j] = stddev
	}
	return s
}

// Validate checks that a scaler, typically decoded from an artifact, has
// consistent non-degenerate parameters.
func (s *StandardScaler) Validate() error {
	if s == nil || len(s.Mean) == 0 {
		return ErrBadScaler
	}
	if len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("got %d means and %d scales, %w", len(s.Mean), len(s.Scale), ErrBadScaler)
	}
	for i, sc := range s.Scale {
		if sc == 0 || math.IsNaN(sc) {
			return fmt.Errorf("column %d has scale %f, %w", i, sc, ErrBadScaler)
		}
	}
	return nil
}

// Dims returns the number of columns the scaler was fit on.
func (s *StandardScaler) Dims() int {
	return len(s.Mean)
}

// Transform maps x into scaled space returning a new matrix.
func (s *StandardScaler) Transform(x mat.Matrix) (*mat.Dense, error) {
	return s.apply(x, func(v float64, j int) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	})
}

// InverseTransform maps a scaled matrix back into physical units.
func (s *StandardScaler) InverseTransform(x mat.Matrix) (*mat.Dense, error) {
	return s.apply(x, func(v float64, j int) float64 {
		return v*s.Scale[j] + s.Mean[j]
	})
}

// InverseScalar maps a single scaled value back into physical units for a
// scaler fit on exactly one column.
func (s *StandardScaler) InverseScalar(v float64) (float64, error) {
	if s.Dims() != 1 {
		return 0, fmt.Errorf("scaler has %d columns, %w", s.Dims(), ErrFeatureLenMismatch)
	}
	return v*s.Scale[0] + s.Mean[0], nil
}

func (s *StandardScaler) apply(x mat.Matrix, f func(v float64, j int) float64) (*mat.Dense, error) {
	if x == nil {
		return nil, ErrNoDesignMatrix
	}
	m, n := x.Dims()
	if n != s.Dims() {
		return nil, fmt.Errorf("got %d columns in matrix, but scaler has %d, %w", n, s.Dims(), ErrFeatureLenMismatch)
	}
	out := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, f(x.At(i, j), j))
		}
	}
	return out, nil
}
