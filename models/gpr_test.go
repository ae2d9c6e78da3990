package models

import (
	"testing"

	mat_ "github.com/evfleet/sohcast/mat"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestGPROptionsValidate(t *testing.T) {
	testData := map[string]struct {
		opt *GPROptions
		err error
	}{
		"nil defaults":       {nil, nil},
		"valid":              {&GPROptions{RBFLengthScale: 5.0, WhiteNoise: 1.0}, nil},
		"zero length scale":  {&GPROptions{RBFLengthScale: 0}, ErrBadParams},
		"negative noise":     {&GPROptions{RBFLengthScale: 1.0, WhiteNoise: -0.1}, ErrBadParams},
		"noise free allowed": {&GPROptions{RBFLengthScale: 1.0, WhiteNoise: 0}, nil},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			opt, err := td.opt.Validate()
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			assert.Greater(t, opt.RBFLengthScale, 0.0)
		})
	}
}

func TestGPRFitPredict(t *testing.T) {
	// noisy-free interpolation should pass close to the training targets
	x, err := mat_.NewDenseFromArray([][]float64{{0}, {1}, {2}, {3}, {4}})
	require.Nil(t, err)
	y, err := mat_.NewDenseFromArray([][]float64{{90}, {89}, {88.2}, {87.1}, {86.5}})
	require.Nil(t, err)

	g, err := NewGPR(&GPROptions{RBFLengthScale: 1.0, WhiteNoise: 1e-8, NormalizeY: true})
	require.Nil(t, err)
	require.Nil(t, g.Fit(x, y))

	res, err := g.Predict(x)
	require.Nil(t, err)
	require.Equal(t, 5, len(res))
	for i, expected := range mat.Col(nil, 0, y) {
		assert.InDelta(t, expected, res[i], 1e-3)
	}

	score, err := g.Score(x, y)
	require.Nil(t, err)
	assert.Greater(t, score, 0.99)
}

func TestGPRPredictBeforeFit(t *testing.T) {
	g, err := NewGPR(nil)
	require.Nil(t, err)

	x, err := mat_.NewDenseFromArray([][]float64{{1}})
	require.Nil(t, err)
	_, err = g.Predict(x)
	assert.ErrorIs(t, err, ErrUntrainedModel)
}

func TestGPRFitErrors(t *testing.T) {
	x, err := mat_.NewDenseFromArray([][]float64{{1}, {2}})
	require.Nil(t, err)
	y, err := mat_.NewDenseFromArray([][]float64{{1}})
	require.Nil(t, err)

	g, err := NewGPR(nil)
	require.Nil(t, err)

	assert.ErrorIs(t, g.Fit(nil, y), ErrNoTrainingMatrix)
	assert.ErrorIs(t, g.Fit(x, nil), ErrNoTargetMatrix)
	assert.ErrorIs(t, g.Fit(x, y), ErrTargetLenMismatch)
}

func TestGPRParamsRoundTrip(t *testing.T) {
	x, err := mat_.NewDenseFromArray([][]float64{{1, 20, 5}, {2, 22, 7}, {3, 25, 9}})
	require.Nil(t, err)
	y, err := mat_.NewDenseFromArray([][]float64{{0.1}, {-0.2}, {0.05}})
	require.Nil(t, err)

	g, err := NewGPR(&GPROptions{RBFLengthScale: 5.0, WhiteNoise: 1.0})
	require.Nil(t, err)
	require.Nil(t, g.Fit(x, y))

	params, err := g.Params()
	require.Nil(t, err)

	// a serialize cycle must not change inference
	out, err := json.Marshal(params)
	require.Nil(t, err)
	var decoded GPRParams
	require.Nil(t, json.Unmarshal(out, &decoded))

	restored, err := NewGPRFromParams(decoded)
	require.Nil(t, err)

	query, err := mat_.NewDenseFromArray([][]float64{{1.5, 21, 6}, {4, 30, 11}})
	require.Nil(t, err)

	expected, err := g.Predict(query)
	require.Nil(t, err)
	res, err := restored.Predict(query)
	require.Nil(t, err)
	for i := range expected {
		assert.InDelta(t, expected[i], res[i], 1e-12)
	}
}

func TestNewGPRFromParamsErrors(t *testing.T) {
	opt := &GPROptions{RBFLengthScale: 1.0}
	testData := map[string]struct {
		params GPRParams
	}{
		"no inputs":    {GPRParams{Options: opt}},
		"alpha len":    {GPRParams{Options: opt, XTrain: [][]float64{{1}}, Alpha: []float64{1, 2}}},
		"bad options":  {GPRParams{Options: &GPROptions{RBFLengthScale: -1}, XTrain: [][]float64{{1}}, Alpha: []float64{1}}},
		"ragged input": {GPRParams{Options: opt, XTrain: [][]float64{{1, 2}, {3}}, Alpha: []float64{1, 2}}},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			_, err := NewGPRFromParams(td.params)
			assert.NotNil(t, err)
		})
	}
}

func TestGPRFeatureMismatch(t *testing.T) {
	x, err := mat_.NewDenseFromArray([][]float64{{1, 2}, {3, 4}})
	require.Nil(t, err)
	y, err := mat_.NewDenseFromArray([][]float64{{1}, {2}})
	require.Nil(t, err)

	g, err := NewGPR(nil)
	require.Nil(t, err)
	require.Nil(t, g.Fit(x, y))

	bad, err := mat_.NewDenseFromArray([][]float64{{1, 2, 3}})
	require.Nil(t, err)
	_, err = g.Predict(bad)
	assert.ErrorIs(t, err, ErrFeatureLenMismatch)
}
