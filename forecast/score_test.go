package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMAE(t *testing.T) {
	nan := math.NaN()
	testData := map[string]struct {
		predicted []float64
		actual    []float64
		expected  float64
	}{
		"exact":        {[]float64{1, 2, 3}, []float64{1, 2, 3}, 0.0},
		"offset":       {[]float64{2, 3, 4}, []float64{1, 2, 3}, 1.0},
		"skips nan":    {[]float64{nan, 3, 4}, []float64{1, 2, nan}, 1.0},
		"all nan":      {[]float64{nan, nan}, []float64{1, 2}, nan},
		"empty series": {nil, nil, nan},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			v, err := MAE(td.predicted, td.actual)
			require.Nil(t, err)
			if math.IsNaN(td.expected) {
				assert.True(t, math.IsNaN(v))
				return
			}
			assert.InDelta(t, td.expected, v, 1e-12)
		})
	}
}

func TestRMSE(t *testing.T) {
	nan := math.NaN()
	testData := map[string]struct {
		predicted []float64
		actual    []float64
		expected  float64
	}{
		"exact":     {[]float64{1, 2, 3}, []float64{1, 2, 3}, 0.0},
		"offset":    {[]float64{2, 3, 4}, []float64{1, 2, 3}, 1.0},
		"mixed":     {[]float64{3, 0}, []float64{0, 4}, 3.5355339059327378},
		"skips nan": {[]float64{nan, 4}, []float64{1, 2}, 2.0},
		"all nan":   {[]float64{nan}, []float64{1}, nan},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			v, err := RMSE(td.predicted, td.actual)
			require.Nil(t, err)
			if math.IsNaN(td.expected) {
				assert.True(t, math.IsNaN(v))
				return
			}
			assert.InDelta(t, td.expected, v, 1e-12)
		})
	}
}

func TestScoreLenMismatch(t *testing.T) {
	_, err := MAE([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrResLenMismatch)

	_, err = RMSE([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrResLenMismatch)
}
