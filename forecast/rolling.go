// Package forecast implements the capacity forecasters: the rolling
// sequence-plus-residual predictor and the static regression baselines.
package forecast

import (
	"math"

	"github.com/evfleet/sohcast/artifact"
	"github.com/evfleet/sohcast/fault"
	"github.com/evfleet/sohcast/featurestore"
	"gonum.org/v1/gonum/mat"
)

// SequenceResidual performs the rolling multi-step capacity forecast: a
// sequence model predicts the next scaled capacity from a lookback window of
// known-or-previously-predicted capacities plus that window's features, and a
// GP residual model corrects it from calendar month and temperature extremes.
// Each prediction is fed back into the window, so later steps depend on
// earlier predicted values.
type SequenceResidual struct {
	bundle *artifact.Bundle
}

// NewSequenceResidual creates a rolling forecaster over a loaded bundle.
func NewSequenceResidual(bundle *artifact.Bundle) *SequenceResidual {
	return &SequenceResidual{bundle: bundle}
}

// Forecast returns a predicted series the same length as the slice capacity
// vector, NaN everywhere except indices [nKnown, nKnown+H) where
// H = min(maxH, len(capacity)-nKnown).
func (f *SequenceResidual) Forecast(s *featurestore.VehicleSlice, nKnown, maxH int) ([]float64, error) {
	c := s.Capacity
	if len(c) <= nKnown {
		return nil, fault.New(fault.KindInsufficientHistory,
			"vehicle %d: %d known months is not enough for n_known=%d", s.Vehicle, len(c), nKnown)
	}

	h := effectiveHorizon(maxH, len(c), nKnown)
	predicted := nanSeries(len(c))

	_, nFeat := s.Features.Dims()
	cWin := make([]float64, nKnown, nKnown+h)
	copy(cWin, c[:nKnown])

	for k := nKnown; k < nKnown+h; k++ {
		window, err := f.buildWindow(s, cWin, k, nKnown, nFeat)
		if err != nil {
			return nil, err
		}
		yhat, err := f.bundle.SequenceModel.Forward(window)
		if err != nil {
			return nil, err
		}

		rhat, err := f.residualAt(s, k)
		if err != nil {
			return nil, err
		}

		// the sequence output and residual are summed in scaled capacity
		// space before transforming back to ampere-hours
		yNext, err := f.bundle.CapacityScaler.InverseScalar(yhat + rhat)
		if err != nil {
			return nil, err
		}

		predicted[k] = yNext
		cWin = append(cWin, yNext)
	}

	return predicted, nil
}

// buildWindow assembles the scaled model input for step k: the last nKnown
// capacity values as column 0 and the feature rows [k-nKnown, k) as the
// remaining columns, scaled in their separate spaces.
func (f *SequenceResidual) buildWindow(s *featurestore.VehicleSlice, cWin []float64, k, nKnown, nFeat int) (*mat.Dense, error) {
	capCol := mat.NewDense(nKnown, 1, nil)
	for i := 0; i < nKnown; i++ {
		capCol.Set(i, 0, cWin[len(cWin)-nKnown+i])
	}
	capScaled, err := f.bundle.CapacityScaler.Transform(capCol)
	if err != nil {
		return nil, err
	}

	featScaled, err := f.bundle.FeatureScaler.Transform(s.Features.Slice(k-nKnown, k, 0, nFeat))
	if err != nil {
		return nil, err
	}

	window := mat.NewDense(nKnown, 1+nFeat, nil)
	for i := 0; i < nKnown; i++ {
		window.Set(i, 0, capScaled.At(i, 0))
		for j := 0; j < nFeat; j++ {
			window.Set(i, 1+j, featScaled.At(i, j))
		}
	}
	return window, nil
}

func (f *SequenceResidual) residualAt(s *featurestore.VehicleSlice, k int) (float64, error) {
	x2 := mat.NewDense(1, 3, []float64{float64(s.Month[k]), s.Tmax[k], s.Tmin[k]})
	x2Scaled, err := f.bundle.ExogenousScaler.Transform(x2)
	if err != nil {
		return 0, err
	}
	rhat, err := f.bundle.ResidualModel.Predict(x2Scaled)
	if err != nil {
		return 0, err
	}
	return rhat[0], nil
}

// effectiveHorizon caps the requested horizon at the available data and
// floors it at zero. An empty window is not an error; it yields an all-NaN
// predicted series.
func effectiveHorizon(maxH, total, nKnown int) int {
	h := maxH
	if avail := total - nKnown; avail < h {
		h = avail
	}
	if h < 0 {
		h = 0
	}
	return h
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
