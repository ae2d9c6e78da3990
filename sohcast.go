// Package sohcast estimates and forecasts electric vehicle battery state of
// health, expressed as usable capacity in ampere-hours, from monthly
// aggregated telemetry features per vehicle.
package sohcast

import (
	"os"
	"time"

	"github.com/evfleet/sohcast/artifact"
	"github.com/evfleet/sohcast/cache"
	"github.com/evfleet/sohcast/fault"
	"github.com/evfleet/sohcast/featurestore"
	"github.com/evfleet/sohcast/forecast"
	"github.com/rs/zerolog"
)

// Model keys accepted by RunForecast.
const (
	ModelSeq2SeqGPR = "seq2seq_gpr"
	ModelGPR        = "gpr"
	ModelSVR        = "svr"
)

var modelLabels = map[string]string{
	ModelSeq2SeqGPR: "Seq2Seq-I + GPR-I",
	ModelGPR:        "GPR",
	ModelSVR:        "SVR",
}

// Request describes one forecast invocation.
type Request struct {
	// Vehicle is the identifier matching the feature table's vehicle column.
	Vehicle int
	// Model is one of the model key constants.
	Model string
	// NKnown is the lookback window length. Non-positive selects the bundle
	// default.
	NKnown int
	// Horizon is the requested number of months to forecast. The effective
	// window is capped by available data.
	Horizon int
	// WithChart attaches a rendered chart artifact to the result when set.
	WithChart bool
}

// Engine is the forecast orchestrator. It owns the process-wide feature
// table and artifact bundle caches and the static baseline trainer, and
// returns an independent Result per call.
type Engine struct {
	cfg Config
	log zerolog.Logger

	table  *cache.Cache[*featurestore.Table]
	bundle *cache.Cache[*artifact.Bundle]
	static *forecast.StaticBaseline
}

// New creates an Engine from the given config.
func New(cfg Config) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:    cfg,
		log:    zerolog.New(os.Stderr).With().Timestamp().Str("component", "sohcast").Logger(),
		table:  cache.New[*featurestore.Table](),
		bundle: cache.New[*artifact.Bundle](),
		static: forecast.NewStaticBaseline(cfg.StaticCacheDir),
	}, nil
}

// RunForecast forecasts one vehicle's capacity trajectory with the selected
// model and assembles the uniform result contract. The model key is
// validated before any backing file is touched.
func (e *Engine) RunForecast(req Request) (*Result, error) {
	label, exists := modelLabels[req.Model]
	if !exists {
		return nil, fault.New(fault.KindUnknownModel, "model key %q", req.Model)
	}
	start := time.Now()

	table, err := e.table.GetOrInit(func() (*featurestore.Table, error) {
		return featurestore.Load(e.cfg.FeatureCSV)
	})
	if err != nil {
		return nil, err
	}
	bundle, err := e.bundle.GetOrInit(func() (*artifact.Bundle, error) {
		return artifact.Load(e.cfg.ArtifactDir, table)
	})
	if err != nil {
		return nil, err
	}

	nKnown := req.NKnown
	if nKnown <= 0 {
		nKnown = bundle.NKnownDefault
	}

	slice, err := featurestore.NewVehicleSlice(table, req.Vehicle, bundle.UseFeatures)
	if err != nil {
		return nil, err
	}

	var predicted []float64
	switch req.Model {
	case ModelSeq2SeqGPR:
		predicted, err = forecast.NewSequenceResidual(bundle).Forecast(slice, nKnown, req.Horizon)
	case ModelGPR, ModelSVR:
		var sb *forecast.StaticBundle
		sb, err = e.static.EnsureTrained(forecast.StaticKind(req.Model), table, bundle.UseFeatures)
		if err == nil {
			predicted, err = e.static.Forecast(sb, slice, nKnown, req.Horizon)
		}
	}
	if err != nil {
		return nil, err
	}

	res, err := newResult(req, label, nKnown, slice.Capacity, predicted)
	if err != nil {
		return nil, err
	}

	if req.WithChart {
		enc, err := renderChart(res)
		if err != nil {
			// the chart is a visual aid only; rendering failure never fails
			// the forecast
			e.log.Warn().Err(err).Int("vehicle", req.Vehicle).Msg("unable to render forecast chart")
		} else {
			res.Chart = enc
		}
	}

	e.log.Info().
		Int("vehicle", req.Vehicle).
		Str("model", req.Model).
		Int("n_known", nKnown).
		Int("horizon", req.Horizon).
		Dur("elapsed", time.Since(start)).
		Msg("forecast complete")

	return res, nil
}
