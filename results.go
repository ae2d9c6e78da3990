package sohcast

import (
	"math"

	"github.com/evfleet/sohcast/forecast"
	"github.com/goccy/go-json"
)

// Series is a float series whose NaN positions marshal as explicit JSON
// nulls, preserving the positional masking of the forecast window.
type Series []float64

func (s Series) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(s))
	for i := range s {
		if math.IsNaN(s[i]) {
			continue
		}
		v := s[i]
		out[i] = &v
	}
	return json.Marshal(out)
}

// Nullable is a scalar metric that marshals as JSON null when undefined (NaN).
type Nullable float64

func (n Nullable) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(n)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(n))
}

// Defined reports whether the metric holds a value.
func (n Nullable) Defined() bool {
	return !math.IsNaN(float64(n))
}

// Result is the uniform forecast result contract. Actual and Predicted have
// the same length as T; Predicted is null outside the forecast window.
type Result struct {
	VehicleID  int    `json:"vehicle_id"`
	Model      string `json:"model"`
	ModelLabel string `json:"model_label"`
	NKnown     int    `json:"n_known"`
	Horizon    int    `json:"horizon"`

	T         []int  `json:"t"`
	Actual    Series `json:"actual"`
	Predicted Series `json:"predicted"`

	MAE  Nullable `json:"mae"`
	RMSE Nullable `json:"rmse"`

	CurrentCa       float64  `json:"current_ca"`
	LastPredictedCa float64  `json:"last_predicted_ca"`
	DegradationAh   float64  `json:"degradation_ah"`
	DegradationPct  Nullable `json:"degradation_pct"`

	// Chart is an optional base64 encoded rendering of actual vs predicted
	// capacity. Purely a visual aid; absent unless requested and renderable.
	Chart string `json:"chart,omitempty"`
}

// newResult aligns the actual and predicted series against a 1-based time
// index and derives the error and degradation metrics.
func newResult(req Request, label string, nKnown int, actual, predicted []float64) (*Result, error) {
	t := make([]int, len(actual))
	for i := range t {
		t[i] = i + 1
	}

	mae, err := forecast.MAE(predicted, actual)
	if err != nil {
		return nil, err
	}
	rmse, err := forecast.RMSE(predicted, actual)
	if err != nil {
		return nil, err
	}

	currentCa := actual[nKnown-1]

	// last non-null prediction, falling back to the last actual value when
	// the forecast window is empty
	lastPred := actual[len(actual)-1]
	for i := len(predicted) - 1; i >= 0; i-- {
		if !math.IsNaN(predicted[i]) {
			lastPred = predicted[i]
			break
		}
	}

	degrAh := currentCa - lastPred
	degrPct := math.NaN()
	if currentCa > 0 {
		degrPct = degrAh / currentCa * 100.0
	}

	return &Result{
		VehicleID:       req.Vehicle,
		Model:           req.Model,
		ModelLabel:      label,
		NKnown:          nKnown,
		Horizon:         req.Horizon,
		T:               t,
		Actual:          Series(actual),
		Predicted:       Series(predicted),
		MAE:             Nullable(mae),
		RMSE:            Nullable(rmse),
		CurrentCa:       currentCa,
		LastPredictedCa: lastPred,
		DegradationAh:   degrAh,
		DegradationPct:  Nullable(degrPct),
	}, nil
}
