package forecast

import (
	"math"
	"testing"

	"github.com/evfleet/sohcast/artifact"
	"github.com/evfleet/sohcast/fault"
	"github.com/evfleet/sohcast/featurestore"
	"github.com/evfleet/sohcast/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func identityScaler(dims int) *models.StandardScaler {
	s := &models.StandardScaler{
		Mean:  make([]float64, dims),
		Scale: make([]float64, dims),
	}
	for i := range s.Scale {
		s.Scale[i] = 1.0
	}
	return s
}

// testBundle builds a bundle whose sequence model echoes the last window
// capacity and whose residual model always predicts residualMean. With
// identity scalers each step therefore predicts the previous window value
// plus residualMean.
func testBundle(t *testing.T, nKnown, nFeat int, residualMean float64) *artifact.Bundle {
	t.Helper()

	width := nKnown * (1 + nFeat)
	weights := make([][]float64, width)
	for i := range weights {
		weights[i] = []float64{0}
	}
	weights[(nKnown-1)*(1+nFeat)][0] = 1.0
	network := &models.DenseNetwork{
		InputSteps: nKnown,
		InputDims:  1 + nFeat,
		Layers: []models.DenseLayer{
			{Weights: weights, Biases: []float64{0}, Activation: models.ActivationLinear},
		},
	}
	require.Nil(t, network.Validate())

	residual, err := models.NewGPRFromParams(models.GPRParams{
		Options: &models.GPROptions{RBFLengthScale: 5.0, WhiteNoise: 1.0},
		XTrain:  [][]float64{{1, 25, 10}},
		Alpha:   []float64{0},
		YMean:   residualMean,
		YStd:    1.0,
	})
	require.Nil(t, err)

	return &artifact.Bundle{
		UseFeatures:     make([]string, nFeat),
		NKnownDefault:   nKnown,
		CapacityScaler:  identityScaler(1),
		FeatureScaler:   identityScaler(nFeat),
		ExogenousScaler: identityScaler(3),
		SequenceModel:   network,
		ResidualModel:   residual,
	}
}

func testSlice(capacity []float64, nFeat int) *featurestore.VehicleSlice {
	n := len(capacity)
	s := &featurestore.VehicleSlice{
		Vehicle:  1,
		Capacity: capacity,
		Features: mat.NewDense(n, nFeat, nil),
		Month:    make([]int, n),
		Tmax:     make([]float64, n),
		Tmin:     make([]float64, n),
	}
	for i := 0; i < n; i++ {
		s.Month[i] = i%12 + 1
		s.Tmax[i] = 25.0
		s.Tmin[i] = 10.0
		for j := 0; j < nFeat; j++ {
			s.Features.Set(i, j, float64(i+j))
		}
	}
	return s
}

func TestSequenceResidualForecast(t *testing.T) {
	capacity := []float64{90, 89.5, 89, 88.5, 88, 87.5, 87, 86.5}

	testData := map[string]struct {
		nKnown   int
		maxH     int
		residual float64
		filled   []int
		expected func(k int) float64
	}{
		"horizon within data": {
			nKnown:   3,
			maxH:     4,
			filled:   []int{3, 4, 5, 6},
			expected: func(k int) float64 { return 89.0 },
		},
		"horizon capped by data": {
			nKnown:   3,
			maxH:     100,
			filled:   []int{3, 4, 5, 6, 7},
			expected: func(k int) float64 { return 89.0 },
		},
		"zero horizon": {
			nKnown: 3,
			maxH:   0,
			filled: nil,
		},
		"residual feeds back": {
			nKnown:   3,
			maxH:     3,
			residual: 0.5,
			filled:   []int{3, 4, 5},
			expected: func(k int) float64 { return 89.0 + 0.5*float64(k-2) },
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			bundle := testBundle(t, td.nKnown, 1, td.residual)
			slice := testSlice(capacity, 1)

			predicted, err := NewSequenceResidual(bundle).Forecast(slice, td.nKnown, td.maxH)
			require.Nil(t, err)
			require.Equal(t, len(capacity), len(predicted))

			filled := make(map[int]struct{}, len(td.filled))
			for _, k := range td.filled {
				filled[k] = struct{}{}
			}
			for k, v := range predicted {
				if _, exists := filled[k]; !exists {
					assert.True(t, math.IsNaN(v), "index %d should be undefined", k)
					continue
				}
				assert.InDelta(t, td.expected(k), v, 1e-9, "index %d", k)
			}
		})
	}
}

func TestSequenceResidualInsufficientHistory(t *testing.T) {
	bundle := testBundle(t, 6, 1, 0)
	slice := testSlice([]float64{90, 89, 88}, 1)

	testData := map[string]int{
		"equal":   3,
		"greater": 6,
	}
	for name, nKnown := range testData {
		t.Run(name, func(t *testing.T) {
			_, err := NewSequenceResidual(bundle).Forecast(slice, nKnown, 4)
			require.NotNil(t, err)
			assert.Equal(t, fault.KindInsufficientHistory, fault.KindOf(err))
		})
	}
}

func TestSequenceResidualDeterministic(t *testing.T) {
	bundle := testBundle(t, 3, 2, 0.1)
	slice := testSlice([]float64{90, 89.5, 89, 88.5, 88, 87.5}, 2)

	f := NewSequenceResidual(bundle)
	a, err := f.Forecast(slice, 3, 3)
	require.Nil(t, err)
	b, err := f.Forecast(slice, 3, 3)
	require.Nil(t, err)

	for i := range a {
		if math.IsNaN(a[i]) {
			assert.True(t, math.IsNaN(b[i]))
			continue
		}
		assert.Equal(t, a[i], b[i])
	}
}

func TestEffectiveHorizon(t *testing.T) {
	testData := map[string]struct {
		maxH     int
		total    int
		nKnown   int
		expected int
	}{
		"within":        {4, 12, 6, 4},
		"capped":        {100, 12, 6, 6},
		"exact":         {6, 12, 6, 6},
		"zero":          {0, 12, 6, 0},
		"floored":       {4, 6, 8, 0},
		"no known data": {4, 6, 6, 0},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, td.expected, effectiveHorizon(td.maxH, td.total, td.nKnown))
		})
	}
}
